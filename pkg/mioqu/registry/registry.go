package registry

import (
	"errors"
	"fmt"
)

// ErrInvalidToken indicates a lookup on a slot that is out of range, free,
// or occupied by a newer generation.
var ErrInvalidToken = errors.New("invalid token")

// Index is the key type of a Registry. The low 32 bits hold the slot index and
// the high 32 bits the slot generation.
type Index interface {
	~uint64
}

const indexBits = 32
const indexMask = 1<<indexBits - 1

// Compose packs a slot index and generation into a key.
func Compose[I Index](index int, generation uint32) I {
	return I(uint64(generation)<<indexBits | uint64(index)&indexMask)
}

// IndexOf returns the dense slot index of a key.
func IndexOf[I Index](key I) int {
	return int(uint64(key) & indexMask)
}

// GenerationOf returns the slot generation of a key.
func GenerationOf[I Index](key I) uint32 {
	return uint32(uint64(key) >> indexBits)
}

// TokenError describes why a key did not resolve to a live slot.
type TokenError struct {
	// Index is the slot index carried by the key.
	Index int
	// Generation is the generation carried by the key.
	Generation uint32
	// Reason is one of "out of range", "free slot" or "stale generation".
	Reason string
}

// Error implements the error interface.
func (e *TokenError) Error() string {
	return fmt.Sprintf("token %d/%d: %s", e.Index, e.Generation, e.Reason)
}

// Unwrap returns ErrInvalidToken for errors.Is support.
func (e *TokenError) Unwrap() error {
	return ErrInvalidToken
}

type slot[V any] struct {
	value      V
	generation uint32
	occupied   bool
}

// Registry is an arena of optional values with LIFO free-list reuse.
type Registry[I Index, V any] struct {
	slots []slot[V]
	free  []int
	live  int
}

// New creates a new empty registry.
func New[I Index, V any]() *Registry[I, V] {
	return &Registry[I, V]{}
}

// Add stores a value and returns its key.
// The most recently freed slot is reused first; otherwise the slot sequence grows.
func (r *Registry[I, V]) Add(value V) I {
	r.live++
	if n := len(r.free); n > 0 {
		idx := r.free[n-1]
		r.free = r.free[:n-1]
		s := &r.slots[idx]
		s.value = value
		s.occupied = true
		return Compose[I](idx, s.generation)
	}
	r.slots = append(r.slots, slot[V]{value: value, occupied: true})
	return Compose[I](len(r.slots)-1, 0)
}

// Remove clears the slot addressed by key and pushes its index on the free list.
// Removing a free slot or a stale key is a no-op and reports false.
func (r *Registry[I, V]) Remove(key I) bool {
	s, err := r.lookup(key)
	if err != nil {
		return false
	}
	var zero V
	s.value = zero
	s.occupied = false
	s.generation++
	r.free = append(r.free, IndexOf(key))
	r.live--
	return true
}

// Get returns a pointer to the value addressed by key.
// The pointer stays valid until the next Add.
func (r *Registry[I, V]) Get(key I) (*V, error) {
	s, err := r.lookup(key)
	if err != nil {
		return nil, err
	}
	return &s.value, nil
}

// MustGet returns the value addressed by key, panicking if it is not live.
func (r *Registry[I, V]) MustGet(key I) *V {
	v, err := r.Get(key)
	if err != nil {
		panic("registry: " + err.Error())
	}
	return v
}

// Contains reports whether key addresses a live slot.
func (r *Registry[I, V]) Contains(key I) bool {
	_, err := r.lookup(key)
	return err == nil
}

// Len returns the number of live values.
func (r *Registry[I, V]) Len() int {
	return r.live
}

// Cap returns the number of slots, live or free.
func (r *Registry[I, V]) Cap() int {
	return len(r.slots)
}

// Range calls fn for each live value in index order.
// If fn returns false, iteration stops. fn must not call Add or Remove.
func (r *Registry[I, V]) Range(fn func(I, *V) bool) {
	for i := range r.slots {
		s := &r.slots[i]
		if !s.occupied {
			continue
		}
		if !fn(Compose[I](i, s.generation), &s.value) {
			return
		}
	}
}

func (r *Registry[I, V]) lookup(key I) (*slot[V], error) {
	idx, gen := IndexOf(key), GenerationOf(key)
	if idx >= len(r.slots) {
		return nil, &TokenError{Index: idx, Generation: gen, Reason: "out of range"}
	}
	s := &r.slots[idx]
	if !s.occupied {
		return nil, &TokenError{Index: idx, Generation: gen, Reason: "free slot"}
	}
	if s.generation != gen {
		return nil, &TokenError{Index: idx, Generation: gen, Reason: "stale generation"}
	}
	return s, nil
}
