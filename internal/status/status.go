// Package status provides a thread-safe status tracker for the heater
// controller. It is read by the HTTP handlers and the MQTT status publisher.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/heater-controller/internal/power"
	"github.com/sweeney/heater-controller/internal/schedule"
)

// Config contains daemon configuration for display.
type Config struct {
	AmbientPort     int
	ConsolePort     int
	BroadcastAddr   string
	ControlInterval time.Duration
	MaxHeater       float64
	Broker          string
	HTTPAddr        string
}

// ErrorCounter reports telemetry error counts.
type ErrorCounter interface {
	TotalErrors() uint64
	NewErrors() uint64
}

// ScheduleSource reports the active schedule and any bump.
type ScheduleSource interface {
	Current() schedule.Schedule
	Override() (temp int, until time.Time, active bool)
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Desired  float64 // power.NoValue when unknown
	Ambient  float64
	Heater   float64
	Level    power.Level
	Override power.Level
	Cutoff   bool
	LastTick time.Time

	BumpTemp   int
	BumpUntil  time.Time
	BumpActive bool
	Schedule   schedule.Schedule

	TotalErrors uint64
	NewErrors   uint64

	MQTTConnected bool
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu    sync.RWMutex
	snap  Snapshot
	now   func() time.Time
	errs  ErrorCounter
	sched ScheduleSource
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		now: time.Now,
		snap: Snapshot{
			Desired:   power.NoValue,
			Ambient:   power.NoValue,
			Heater:    power.NoValue,
			Level:     power.Off,
			Override:  power.Auto,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetSources registers live sources read on every Snapshot. Either may be nil.
func (t *Tracker) SetSources(errs ErrorCounter, sched ScheduleSource) {
	t.mu.Lock()
	t.errs = errs
	t.sched = sched
	t.mu.Unlock()
}

// ObserveTick records the outcome of a control iteration.
// Called from the control loop on every tick.
func (t *Tracker) ObserveTick(tick power.Tick) {
	t.mu.Lock()
	t.snap.Desired = tick.Desired
	t.snap.Ambient = tick.Ambient
	t.snap.Heater = tick.Heater
	t.snap.Level = tick.Decision.Level
	t.snap.Override = tick.Override
	t.snap.Cutoff = tick.Decision.Cutoff
	t.snap.LastTick = tick.Time
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	errs, sched := t.errs, t.sched
	t.mu.RUnlock()

	if errs != nil {
		s.NewErrors = errs.NewErrors()
		s.TotalErrors = errs.TotalErrors()
	}
	if sched != nil {
		s.Schedule = sched.Current()
		s.BumpTemp, s.BumpUntil, s.BumpActive = sched.Override()
	}
	s.Now = t.now()
	return s
}
