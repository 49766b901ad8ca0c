// Package registry provides the slot arena that gives processors their identity.
//
// A Registry is a sequence of slots, each either occupied by a value or free,
// plus a stack of freed indices. Add reuses the most recently freed index
// before growing the sequence, so indices stay dense.
//
// # Basic Usage
//
//	type Token uint64
//
//	r := registry.New[Token, string]()
//	a := r.Add("a") // index 0
//	b := r.Add("b") // index 1
//	r.Remove(a)
//	c := r.Add("c") // index 0 again, new generation
//
//	v, err := r.Get(b)
//	if err != nil {
//	    // ErrInvalidToken: out of range, freed, or stale
//	}
//	*v = "B"
//
// # Generations
//
// Every slot carries a generation counter that is bumped when the slot is
// reused. A key packs the dense index into its low 32 bits and the generation
// into its high 32 bits, so a key handed out before a Remove never resolves to
// the value stored by a later Add in the same slot.
//
// # Ownership
//
// A Registry is not safe for concurrent use. It is meant to have exactly one
// owner, the goroutine running the dispatcher.
package registry
