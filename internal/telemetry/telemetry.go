// Package telemetry queues status and error lines from any goroutine and
// ships them to the operator from a single broadcast task.
//
// Producers never block: lines go into round-robin queues that lose the
// oldest entries on overflow. One consumer drains the queues on every
// broadcast tick and writes the lines to a Sink.
package telemetry

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/sweeney/heater-controller/internal/rrqueue"
)

// Severity classifies a telemetry line. Anything at Warning or above is
// also kept on the error queue for on-demand reports.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
	Fatal
)

// String returns the severity name.
func (s Severity) String() string {
	switch s {
	case Info:
		return "INFO"
	case Warning:
		return "WARN"
	case Error:
		return "ERROR"
	case Fatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Report framing lines.
const (
	overflowMessage  = "Message queue overflowed.  Some messages were lost."
	reportHeaderFmt  = "Error Report. %d errors since last report"
	reportTrailer    = "End Error Report"
	noErrorsMessage  = "No new Error Messages to report."
	defaultQueueSize = 32
	defaultLineLen   = 256
)

// Config sizes the queues.
type Config struct {
	QueueSize int // slots per queue buffer
	LineLen   int // maximum bytes per line; longer lines are truncated
}

// Telemetry owns the message and error queues.
type Telemetry struct {
	messages *rrqueue.Queue[string]
	errors   *rrqueue.Queue[string]
	lineLen  int

	totalErrors     atomic.Uint64
	newErrors       atomic.Uint64
	reportRequested atomic.Bool

	// log must not be tee'd back into this Telemetry: it is used on the
	// drain path.
	log *zap.SugaredLogger
}

// New creates a Telemetry. Zero config fields take the built-in defaults.
func New(cfg Config, log *zap.SugaredLogger) *Telemetry {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.LineLen <= 0 {
		cfg.LineLen = defaultLineLen
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Telemetry{
		messages: rrqueue.New[string](cfg.QueueSize),
		errors:   rrqueue.New[string](cfg.QueueSize),
		lineLen:  cfg.LineLen,
		log:      log,
	}
}

// SendMessage queues a line for the next broadcast. Warning and above are
// also kept for the error report and counted.
func (t *Telemetry) SendMessage(sev Severity, text string) {
	text = truncate(text, t.lineLen)
	t.messages.Enqueue(text)
	if sev >= Warning {
		t.errors.Enqueue(text)
		// total first, so newErrors never exceeds totalErrors.
		t.totalErrors.Add(1)
		t.newErrors.Add(1)
	}
}

// SendMessagef formats and queues a line.
func (t *Telemetry) SendMessagef(sev Severity, format string, args ...any) {
	t.SendMessage(sev, fmt.Sprintf(format, args...))
}

// SendError queues an Error line.
func (t *Telemetry) SendError(text string) {
	t.SendMessage(Error, text)
}

// RequestErrorReport asks the next drain cycle to send the error queue.
func (t *Telemetry) RequestErrorReport() {
	t.reportRequested.Store(true)
}

// TotalErrors returns the number of errors since start.
func (t *Telemetry) TotalErrors() uint64 {
	return t.totalErrors.Load()
}

// NewErrors returns the number of errors since the last error report.
func (t *Telemetry) NewErrors() uint64 {
	return t.newErrors.Load()
}

// DrainAndSend sends everything queued since the last cycle to sink.
// It stops at the first sink error and returns it; the rest of this cycle's
// lines are dropped, and the next cycle starts fresh.
func (t *Telemetry) DrainAndSend(sink Sink) error {
	var err error

	if lines, wrapped, ok := t.messages.Drain(); ok {
		if wrapped {
			// Picked up next cycle, and counted as an error like any warning.
			t.SendMessage(Warning, overflowMessage)
		}
		err = sendAll(sink, lines)
	}

	if err != nil || !t.reportRequested.Load() {
		return err
	}

	lines, _, ok := t.errors.Drain()
	nerrs := t.newErrors.Swap(0)
	t.reportRequested.Store(false)
	if !ok {
		return sink.Send(noErrorsMessage)
	}
	if err := sink.Send(fmt.Sprintf(reportHeaderFmt, nerrs)); err != nil {
		return err
	}
	if err := sendAll(sink, lines); err != nil {
		return err
	}
	return sink.Send(reportTrailer)
}

func sendAll(sink Sink, lines []string) error {
	for _, line := range lines {
		if err := sink.Send(line); err != nil {
			return err
		}
	}
	return nil
}

// Run drains to sink on every tick until ctx is done, then does a final drain.
func (t *Telemetry) Run(ctx context.Context, sink Sink, tick <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			t.drain(sink)
			return
		case <-tick:
			t.drain(sink)
		}
	}
}

func (t *Telemetry) drain(sink Sink) {
	if err := t.DrainAndSend(sink); err != nil {
		t.log.Warnw("telemetry send failed; retrying next cycle", "err", err)
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
