package power

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sweeney/heater-controller/internal/gpio"
	"github.com/sweeney/heater-controller/internal/telemetry"
)

// value is a fixed temperature source.
type value struct {
	mu sync.Mutex
	v  float64
}

func (s *value) Current() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.v
}

func (s *value) DesiredNow() float64 { return s.Current() }

func (s *value) set(v float64) {
	s.mu.Lock()
	s.v = v
	s.mu.Unlock()
}

type message struct {
	sev  telemetry.Severity
	text string
}

// recorder captures telemetry.
type recorder struct {
	mu   sync.Mutex
	msgs []message
}

func (r *recorder) SendMessage(sev telemetry.Severity, text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, message{sev, text})
}

func (r *recorder) find(sev telemetry.Severity, substr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.msgs {
		if m.sev == sev && strings.Contains(m.text, substr) {
			return true
		}
	}
	return false
}

func (r *recorder) count(sev telemetry.Severity) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, m := range r.msgs {
		if m.sev == sev {
			n++
		}
	}
	return n
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type harness struct {
	desired, ambient, heater *value
	out                      *gpio.FakeWriter
	tel                      *recorder
	clock                    *fakeClock
	ctl                      *Controller
}

func newHarness(desired, ambient, heater float64) *harness {
	h := &harness{
		desired: &value{v: desired},
		ambient: &value{v: ambient},
		heater:  &value{v: heater},
		out:     gpio.NewFakeWriter(),
		tel:     &recorder{},
		clock:   &fakeClock{t: time.Date(2026, 1, 1, 6, 0, 0, 0, time.UTC)},
	}
	cfg := Config{Limits: DefaultLimits(), FlyingBlind: 30 * time.Minute, InitialLevel: Off}
	h.ctl = NewController(cfg, h.desired, h.ambient, h.heater, h.out, h.tel, h.clock.Now, nil)
	return h
}

func TestControllerFirstTickWritesPins(t *testing.T) {
	h := newHarness(19, 19.5, 30)

	if d := h.ctl.Tick(); d.Level != Off {
		t.Fatalf("level: got %s, want off", d.Level)
	}
	if len(h.out.Writes()) != 1 {
		t.Fatalf("expected pins written on first tick, got %d writes", len(h.out.Writes()))
	}
}

func TestControllerWritesEveryTick(t *testing.T) {
	h := newHarness(19, 18, 30)

	h.ctl.Tick()
	h.ctl.Tick()
	h.ctl.Tick()
	writes := h.out.Writes()
	if len(writes) != 3 {
		t.Fatalf("expected a write per tick, got %d", len(writes))
	}
	for i, w := range writes {
		if w != (gpio.State{High: true}) {
			t.Errorf("write %d: got %+v, want medium pins", i, w)
		}
	}

	h.ambient.set(15)
	h.ctl.Tick()
	if last, _ := h.out.Last(); last != (gpio.State{Low: true, High: true}) {
		t.Errorf("high pins: got %+v", last)
	}
	if h.ctl.Level() != High {
		t.Errorf("Level(): got %s, want high", h.ctl.Level())
	}
}

func TestControllerRestoresPinsChangedOutside(t *testing.T) {
	h := newHarness(19, 18, 30)
	h.ctl.Tick()

	// Something else drives both pins off between ticks.
	h.out.Write(false, false)
	h.ctl.Tick()
	if last, _ := h.out.Last(); last != (gpio.State{High: true}) {
		t.Errorf("pins not restored: got %+v", last)
	}
}

func TestControllerSummaryEveryTick(t *testing.T) {
	h := newHarness(19, NoValue, 30)

	h.ctl.Tick()
	h.ctl.Tick()
	if n := h.tel.count(telemetry.Info); n != 2 {
		t.Errorf("expected 2 summaries, got %d", n)
	}
	if !h.tel.find(telemetry.Info, "ambient none") {
		t.Error("summary should show missing ambient as none")
	}
}

func TestControllerFlyingBlind(t *testing.T) {
	h := newHarness(19, 18, 30)
	h.ctl.Tick()

	h.ambient.set(NoValue)
	h.clock.Advance(29 * time.Minute)
	h.ctl.Tick()
	if h.tel.count(telemetry.Error) != 0 {
		t.Fatal("no error expected before the flying-blind limit")
	}
	if h.ctl.Level() != Medium {
		t.Errorf("missing data should hold previous level, got %s", h.ctl.Level())
	}

	h.clock.Advance(2 * time.Minute)
	h.ctl.Tick()
	if !h.tel.find(telemetry.Error, "No information to control with!") {
		t.Error("expected flying-blind error")
	}
}

func TestControllerCutoffAndOverTemperature(t *testing.T) {
	h := newHarness(19, 15, 30)
	h.ctl.Tick()

	h.heater.set(56)
	if d := h.ctl.Tick(); d.Level != Off {
		t.Fatalf("cutoff: got %s", d.Level)
	}
	if !h.tel.find(telemetry.Warning, "Discontinuing heat") {
		t.Error("expected cutoff warning")
	}
	if last, _ := h.out.Last(); last != (gpio.State{}) {
		t.Errorf("pins should be off, got %+v", last)
	}

	h.heater.set(60)
	h.ctl.Tick()
	if !h.tel.find(telemetry.Fatal, "heater over-temperature") {
		t.Error("expected fatal over-temperature")
	}
}

func TestControllerOverride(t *testing.T) {
	h := newHarness(19, 25, 30)

	h.ctl.SetOverride(High)
	if h.ctl.Override() != High {
		t.Fatalf("Override(): got %s", h.ctl.Override())
	}
	if d := h.ctl.Tick(); d.Level != High || !d.Overridden {
		t.Errorf("got %+v", d)
	}

	h.ctl.SetOverride(Auto)
	if d := h.ctl.Tick(); d.Level != Off {
		t.Errorf("after auto: got %s", d.Level)
	}
}

func TestControllerSetMaxHeater(t *testing.T) {
	h := newHarness(19, 15, 45)

	h.ctl.SetMaxHeater(40)
	if d := h.ctl.Tick(); !d.Cutoff {
		t.Errorf("lowered max should cut off, got %+v", d)
	}
}

func TestControllerWriteErrorRetried(t *testing.T) {
	h := newHarness(19, 18, 30)
	h.out.WriteError = errors.New("line busy")

	h.ctl.Tick()
	h.ctl.Tick()
	if !h.tel.find(telemetry.Error, "line busy") {
		t.Error("expected write error telemetry")
	}
	if n := h.tel.count(telemetry.Error); n != 2 {
		t.Errorf("expected one error per failed tick, got %d", n)
	}

	h.out.WriteError = nil
	h.ctl.Tick()
	if len(h.out.Writes()) != 1 {
		t.Error("write should be retried on the next tick")
	}
}

type observed struct {
	mu    sync.Mutex
	ticks []Tick
}

func (o *observed) ObserveTick(t Tick) {
	o.mu.Lock()
	o.ticks = append(o.ticks, t)
	o.mu.Unlock()
}

func TestControllerObserver(t *testing.T) {
	h := newHarness(19, 18, 30)
	o := &observed{}
	h.ctl.SetObserver(o)

	h.ctl.Tick()
	if len(o.ticks) != 1 {
		t.Fatalf("expected 1 observed tick, got %d", len(o.ticks))
	}
	got := o.ticks[0]
	if got.Desired != 19 || got.Ambient != 18 || got.Decision.Level != Medium || got.Override != Auto {
		t.Errorf("unexpected tick: %+v", got)
	}
}

func TestControllerRunSwitchesOffOnExit(t *testing.T) {
	h := newHarness(19, 15, 30)
	tick := make(chan time.Time)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		h.ctl.Run(ctx, tick)
		close(done)
	}()

	tick <- time.Now()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	writes := h.out.Writes()
	if len(writes) < 2 {
		t.Fatalf("expected an initial write and a shutdown write, got %v", writes)
	}
	if writes[0] != (gpio.State{Low: true, High: true}) {
		t.Errorf("first write: got %+v, want high", writes[0])
	}
	if last := writes[len(writes)-1]; last != (gpio.State{}) {
		t.Errorf("shutdown write: got %+v", last)
	}
	if h.ctl.Level() != Off {
		t.Errorf("Level after Run: got %s", h.ctl.Level())
	}
}
