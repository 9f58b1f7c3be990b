package telemetry

import (
	"errors"
	"sync"

	"go.uber.org/zap"
)

// Sink delivers one telemetry line to the operator.
type Sink interface {
	Send(line string) error
}

// MultiSink sends every line to a primary sink and mirrors it to secondary
// sinks. Only primary errors are returned; mirror failures are logged.
type MultiSink struct {
	primary Sink
	mirrors []Sink
	log     *zap.SugaredLogger
}

// NewMultiSink creates a fan-out sink. Nil mirrors are skipped.
func NewMultiSink(log *zap.SugaredLogger, primary Sink, mirrors ...Sink) *MultiSink {
	m := &MultiSink{primary: primary, log: log}
	for _, s := range mirrors {
		if s != nil {
			m.mirrors = append(m.mirrors, s)
		}
	}
	if m.log == nil {
		m.log = zap.NewNop().Sugar()
	}
	return m
}

// Send delivers line to all sinks.
func (m *MultiSink) Send(line string) error {
	err := m.primary.Send(line)
	for _, s := range m.mirrors {
		if merr := s.Send(line); merr != nil {
			m.log.Debugw("telemetry mirror send failed", "err", merr)
		}
	}
	return err
}

// FakeSink records sent lines for test assertions.
type FakeSink struct {
	mu    sync.Mutex
	Lines []string

	// FailAfter, if >= 0, makes Send fail once that many lines have been
	// accepted. -1 (the NewFakeSink default) never fails.
	FailAfter int
	// Err is returned when a send fails.
	Err error
}

// NewFakeSink creates a FakeSink that never fails.
func NewFakeSink() *FakeSink {
	return &FakeSink{FailAfter: -1}
}

// Send records line, or fails per FailAfter.
func (f *FakeSink) Send(line string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailAfter >= 0 && len(f.Lines) >= f.FailAfter {
		if f.Err != nil {
			return f.Err
		}
		return errors.New("fake sink failure")
	}
	f.Lines = append(f.Lines, line)
	return nil
}

// Sent returns a copy of the recorded lines.
func (f *FakeSink) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.Lines...)
}

// Reset clears recorded lines and makes the sink healthy again.
func (f *FakeSink) Reset() {
	f.mu.Lock()
	f.Lines = nil
	f.FailAfter = -1
	f.mu.Unlock()
}
