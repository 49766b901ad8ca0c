package reactor

import (
	"fmt"
	"strings"

	"github.com/inre/mioqu/pkg/mioqu/registry"
)

// Token identifies a processor slot and any file descriptor registered for it.
// The low 32 bits hold the dense slot index, the high 32 bits the slot generation.
type Token uint64

// TokenFromIndex returns the generation-zero Token for a dense index.
func TokenFromIndex(index int) Token {
	return registry.Compose[Token](index, 0)
}

// Index returns the dense slot index.
func (t Token) Index() int {
	return registry.IndexOf(t)
}

// Generation returns the slot generation.
func (t Token) Generation() uint32 {
	return registry.GenerationOf(t)
}

// String renders the token as index/generation.
func (t Token) String() string {
	return fmt.Sprintf("%d/%d", t.Index(), t.Generation())
}

// EventSet is a set of readiness events.
type EventSet uint8

const (
	Readable EventSet = 1 << iota
	Writable
	Error
	Hangup
)

// IsReadable reports whether the set contains Readable.
func (e EventSet) IsReadable() bool { return e&Readable != 0 }

// IsWritable reports whether the set contains Writable.
func (e EventSet) IsWritable() bool { return e&Writable != 0 }

// IsError reports whether the set contains Error.
func (e EventSet) IsError() bool { return e&Error != 0 }

// IsHangup reports whether the set contains Hangup.
func (e EventSet) IsHangup() bool { return e&Hangup != 0 }

// String lists the events in the set, e.g. "readable|hangup".
func (e EventSet) String() string {
	if e == 0 {
		return "none"
	}
	var parts []string
	for _, ev := range []struct {
		bit  EventSet
		name string
	}{
		{Readable, "readable"},
		{Writable, "writable"},
		{Error, "error"},
		{Hangup, "hangup"},
	} {
		if e&ev.bit != 0 {
			parts = append(parts, ev.name)
		}
	}
	return strings.Join(parts, "|")
}
