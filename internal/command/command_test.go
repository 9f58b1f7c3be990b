package command

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/heater-controller/internal/kvstore"
	"github.com/sweeney/heater-controller/internal/power"
	"github.com/sweeney/heater-controller/internal/schedule"
	"github.com/sweeney/heater-controller/internal/telemetry"
)

type fakePower struct {
	overrides []power.Level
	maxHeater []float64
}

func (f *fakePower) SetOverride(l power.Level) { f.overrides = append(f.overrides, l) }
func (f *fakePower) SetMaxHeater(v float64) { f.maxHeater = append(f.maxHeater, v) }

type fakeTelemetry struct {
	lines     []string
	requested int
	total     uint64
}

func (f *fakeTelemetry) SendMessage(sev telemetry.Severity, text string) {
	f.lines = append(f.lines, text)
}
func (f *fakeTelemetry) RequestErrorReport() { f.requested++ }
func (f *fakeTelemetry) TotalErrors() uint64 { return f.total }

type fixture struct {
	router *Router
	sched  *schedule.Resolver
	store  *kvstore.Memory
	power  *fakePower
	tel    *fakeTelemetry
}

func newFixture() *fixture {
	store := kvstore.NewMemory()
	now := time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC)
	sched := schedule.NewResolver(store, func() int { return 8 }, func() time.Time { return now }, nil)
	f := &fixture{
		sched: sched,
		store: store,
		power: &fakePower{},
		tel:   &fakeTelemetry{total: 4},
	}
	start := now.Add(-(2*time.Hour + 5*time.Minute))
	f.router = NewRouter(sched, f.power, f.tel, "v1.2.3", start, nil)
	f.router.now = func() time.Time { return now }
	return f
}

func TestHello(t *testing.T) {
	f := newFixture()
	if err := f.router.Handle([]byte("hello\x00")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.tel.lines) != 1 || f.tel.lines[0] != "hello back" {
		t.Errorf("got %v", f.tel.lines)
	}
}

func TestVersion(t *testing.T) {
	f := newFixture()
	f.router.Handle([]byte("version"))
	if len(f.tel.lines) != 1 || f.tel.lines[0] != "v1.2.3" {
		t.Errorf("got %v", f.tel.lines)
	}
}

func TestLevel(t *testing.T) {
	tests := []struct {
		cmd  string
		want power.Level
	}{
		{"level off", power.Off},
		{"level low", power.Low},
		{"level medium", power.Medium},
		{"level HIGH", power.High},
		{"level auto", power.Auto},
	}
	for _, tt := range tests {
		f := newFixture()
		if err := f.router.Handle([]byte(tt.cmd)); err != nil {
			t.Errorf("%s: %v", tt.cmd, err)
			continue
		}
		if len(f.power.overrides) != 1 || f.power.overrides[0] != tt.want {
			t.Errorf("%s: got %v", tt.cmd, f.power.overrides)
		}
	}
}

func TestLevelUnknownLeavesStateUnchanged(t *testing.T) {
	f := newFixture()
	if err := f.router.Handle([]byte("level turbo")); err == nil {
		t.Error("expected error")
	}
	if len(f.power.overrides) != 0 {
		t.Error("override should not change")
	}
}

func TestBump(t *testing.T) {
	f := newFixture()
	if err := f.router.Handle([]byte("bump 3 2")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if got := f.sched.DesiredNow(); got != schedule.DefaultTemp+3 {
		t.Errorf("desired: got %v", got)
	}
}

func TestBumpMalformed(t *testing.T) {
	for _, cmd := range []string{"bump", "bump 3", "bump x 2", "bump 3 y"} {
		f := newFixture()
		if err := f.router.Handle([]byte(cmd)); err == nil {
			t.Errorf("%q: expected error", cmd)
		}
		if _, _, active := f.sched.Override(); active {
			t.Errorf("%q: override should not be set", cmd)
		}
	}
}

func TestMaxTemp(t *testing.T) {
	f := newFixture()
	if err := f.router.Handle([]byte("maxtemp 48.5")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if len(f.power.maxHeater) != 1 || f.power.maxHeater[0] != 48.5 {
		t.Fatalf("max heater: got %v", f.power.maxHeater)
	}
	if len(f.tel.lines) != 1 || f.tel.lines[0] != "Max heater temperature set to 48.5" {
		t.Errorf("reply: got %v", f.tel.lines)
	}
}

func TestMaxTempRejected(t *testing.T) {
	for _, cmd := range []string{"maxtemp", "maxtemp hot", "maxtemp NaN", "maxtemp 0", "maxtemp -5", "maxtemp 120"} {
		f := newFixture()
		if err := f.router.Handle([]byte(cmd)); err == nil {
			t.Errorf("%q: expected error", cmd)
		}
		if len(f.power.maxHeater) != 0 {
			t.Errorf("%q: limit should be unchanged, got %v", cmd, f.power.maxHeater)
		}
	}
}

func TestSchedule(t *testing.T) {
	f := newFixture()
	if err := f.router.Handle([]byte("schedule 15,16,17")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	s := f.sched.Current()
	if s[0] != 15 || s[1] != 16 || s[23] != 17 {
		t.Errorf("schedule: got %v", s)
	}
	stored, found, _ := f.store.Get(context.Background(), schedule.StoreKey)
	if !found || stored != schedule.Format(s) {
		t.Errorf("stored: got %q", stored)
	}
}

func TestScheduleRejected(t *testing.T) {
	f := newFixture()
	err := f.router.Handle([]byte("schedule 15,45"))
	var se *schedule.ScheduleError
	if !errors.As(err, &se) {
		t.Fatalf("expected ScheduleError, got %v", err)
	}
	if f.sched.Current() != schedule.Default() {
		t.Error("schedule should be unchanged")
	}
}

func TestReport(t *testing.T) {
	f := newFixture()
	if err := f.router.Handle([]byte("report")); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if f.tel.requested != 1 {
		t.Errorf("error report requested %d times", f.tel.requested)
	}
	if len(f.tel.lines) != 6 {
		t.Fatalf("expected 2 status lines and 4 schedule lines, got %v", f.tel.lines)
	}
	if f.tel.lines[0] != "Current time is 2026-01-01 08:00:00" {
		t.Errorf("time line: %q", f.tel.lines[0])
	}
	if f.tel.lines[1] != "Time since boot: 2:05.  Errors since boot: 4" {
		t.Errorf("uptime line: %q", f.tel.lines[1])
	}
	if !strings.HasPrefix(f.tel.lines[2], "schedule 19, 19") {
		t.Errorf("schedule line: %q", f.tel.lines[2])
	}
}

func TestUnknownAndEmptyIgnored(t *testing.T) {
	f := newFixture()
	for _, cmd := range []string{"reboot", "", "  \n", "errtest"} {
		if err := f.router.Handle([]byte(cmd)); err != nil {
			t.Errorf("%q: %v", cmd, err)
		}
	}
	if len(f.tel.lines) != 0 || len(f.power.overrides) != 0 {
		t.Error("ignored commands should have no effect")
	}
}
