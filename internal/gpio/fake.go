package gpio

import "sync"

// State is one pair of element outputs.
type State struct {
	Low  bool
	High bool
}

// FakeWriter is a test double that records every write.
type FakeWriter struct {
	mu     sync.Mutex
	writes []State

	// WriteError, if set, is returned by Write and the write is not recorded.
	WriteError error

	// Closed tracks if Close was called
	Closed bool
}

// NewFakeWriter creates an empty FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// Write records the requested state.
func (f *FakeWriter) Write(low, high bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.writes = append(f.writes, State{Low: low, High: high})
	return nil
}

// Writes returns a copy of every recorded write.
func (f *FakeWriter) Writes() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]State(nil), f.writes...)
}

// Last returns the most recent write; ok is false if there were none.
func (f *FakeWriter) Last() (s State, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.writes) == 0 {
		return State{}, false
	}
	return f.writes[len(f.writes)-1], true
}

// Close records an all-off write and marks the writer closed.
func (f *FakeWriter) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, State{})
	f.Closed = true
	return nil
}

// Reset forgets recorded writes.
func (f *FakeWriter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = nil
	f.Closed = false
}
