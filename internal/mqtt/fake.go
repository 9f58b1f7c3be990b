package mqtt

import (
	"sync"
	"time"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Lines contains all telemetry lines that were sent.
	Lines []string

	// Payloads contains the JSON payloads for the lines.
	Payloads [][]byte

	// StatusPayloads contains every status snapshot published.
	StatusPayloads [][]byte

	// SendError, if set, will be returned by Send.
	SendError error

	// PublishStatusError, if set, will be returned by PublishStatus.
	PublishStatusError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// Send records the line.
func (f *FakePublisher) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendError != nil {
		return f.SendError
	}

	payload, err := FormatLine(time.Now(), line)
	if err != nil {
		return err
	}
	f.Lines = append(f.Lines, line)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// PublishStatus records the status payload.
func (f *FakePublisher) PublishStatus(payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishStatusError != nil {
		return f.PublishStatusError
	}
	f.StatusPayloads = append(f.StatusPayloads, append([]byte(nil), payload...))
	return nil
}

// Sent returns a copy of the recorded lines.
func (f *FakePublisher) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Lines...)
}

// Statuses returns a copy of the recorded status payloads.
func (f *FakePublisher) Statuses() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.StatusPayloads...)
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Lines = nil
	f.Payloads = nil
	f.StatusPayloads = nil
	f.Closed = false
	f.SendError = nil
	f.PublishStatusError = nil
	f.Connected = false
}
