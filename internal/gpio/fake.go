package gpio

import (
	"errors"
	"sync"
)

// Change is one recorded SetLevel call.
type Change struct {
	Channel Channel
	On      bool
}

// FakeOutput is a test double that records every level change.
// Safe for concurrent use; timer callbacks call it from other goroutines.
type FakeOutput struct {
	mu sync.Mutex

	// changes holds every SetLevel call in order, including repeats.
	changes []Change

	// levels holds the last level set per channel.
	levels map[Channel]bool

	// SetError, if set, will be returned by SetLevel (after recording).
	SetError error

	closed bool
}

// NewFakeOutput creates a FakeOutput with every channel off.
func NewFakeOutput() *FakeOutput {
	return &FakeOutput{levels: make(map[Channel]bool)}
}

// SetLevel records the change.
func (f *FakeOutput) SetLevel(ch Channel, on bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return nil
	}
	f.changes = append(f.changes, Change{Channel: ch, On: on})
	f.levels[ch] = on
	return f.SetError
}

// Close marks the output as closed; later SetLevel calls are dropped.
func (f *FakeOutput) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return errors.New("gpio: already closed")
	}
	f.closed = true
	return nil
}

// Level returns the last level set on ch.
func (f *FakeOutput) Level(ch Channel) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.levels[ch]
}

// Changes returns a copy of the recorded changes.
func (f *FakeOutput) Changes() []Change {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Change(nil), f.changes...)
}

// ChangesFor returns the recorded levels for one channel, in order.
func (f *FakeOutput) ChangesFor(ch Channel) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for _, c := range f.changes {
		if c.Channel == ch {
			out = append(out, c.On)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (f *FakeOutput) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// Reset clears recorded changes but keeps current levels.
func (f *FakeOutput) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = nil
}
