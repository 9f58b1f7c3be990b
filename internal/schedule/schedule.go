// Package schedule resolves the desired room temperature from a 24-hour
// schedule and a temporary override ("bump") that expires on its own.
package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"go.uber.org/zap"
)

// Hours in a schedule.
const Hours = 24

// Schedule bounds and default, in Celsius.
const (
	MinTemp     = 10
	MaxTemp     = 30
	DefaultTemp = 19
)

// StoreKey is the persisted-state key holding the schedule text.
const StoreKey = "ts"

// Schedule holds the desired temperature for each hour of the day.
type Schedule [Hours]int

// Default returns a schedule with every hour at DefaultTemp.
func Default() Schedule {
	var s Schedule
	for i := range s {
		s[i] = DefaultTemp
	}
	return s
}

// ScheduleError reports the first invalid schedule entry.
type ScheduleError struct {
	Index int    // zero-based position of the bad entry
	Token string // offending text, for parsed schedules
	Value int
}

func (e *ScheduleError) Error() string {
	if e.Token != "" {
		return fmt.Sprintf("schedule entry %d: %q is not an integer in [%d,%d]", e.Index, e.Token, MinTemp, MaxTemp)
	}
	return fmt.Sprintf("schedule entry %d: %d out of range [%d,%d]", e.Index, e.Value, MinTemp, MaxTemp)
}

// Validate checks every entry is within [MinTemp, MaxTemp].
func Validate(s Schedule) error {
	for i, v := range s {
		if v < MinTemp || v > MaxTemp {
			return &ScheduleError{Index: i, Value: v}
		}
	}
	return nil
}

// Parse reads up to 24 comma- or space-separated integers. Missing trailing
// values repeat the last value given; empty text yields the default
// schedule. Extra values are ignored. Any bad token rejects the whole text.
func Parse(text string) (Schedule, error) {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})

	var s Schedule
	v := DefaultTemp
	i := 0
	for ; i < Hours && i < len(tokens); i++ {
		n, err := strconv.Atoi(tokens[i])
		if err != nil || n < MinTemp || n > MaxTemp {
			return Schedule{}, &ScheduleError{Index: i, Token: tokens[i], Value: n}
		}
		v = n
		s[i] = v
	}
	for ; i < Hours; i++ {
		s[i] = v
	}
	return s, nil
}

// Format renders s as comma-separated text that Parse accepts.
func Format(s Schedule) string {
	parts := make([]string, Hours)
	for i, v := range s {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

// Store persists string values across restarts.
type Store interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Resolver combines the schedule with any active bump. It is safe for
// concurrent use: the console path writes while the control loop reads.
type Resolver struct {
	store Store
	hour  func() int
	now   func() time.Time
	log   *zap.SugaredLogger

	mu            sync.Mutex
	schedule      Schedule
	overrideTemp  int
	overrideUntil time.Time // zero means no override
}

// NewResolver creates a resolver with the default schedule. hour returns
// the local wall-clock hour [0,23]; now is the monotonic clock used for
// override expiry. Nil functions fall back to time.Now.
func NewResolver(store Store, hour func() int, now func() time.Time, log *zap.SugaredLogger) *Resolver {
	if now == nil {
		now = time.Now
	}
	if hour == nil {
		hour = func() int { return time.Now().Hour() }
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Resolver{
		store:    store,
		hour:     hour,
		now:      now,
		log:      log,
		schedule: Default(),
	}
}

// Restore loads the persisted schedule, if any. A stored schedule that no
// longer parses is logged and the current schedule is kept.
func (r *Resolver) Restore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	text, found, err := r.store.Get(ctx, StoreKey)
	if err != nil {
		return fmt.Errorf("load schedule: %w", err)
	}
	if !found {
		return nil
	}
	s, err := Parse(text)
	if err != nil {
		r.log.Warnw("ignoring malformed stored schedule", "schedule", text, "err", err)
		return nil
	}
	r.mu.Lock()
	r.schedule = s
	r.mu.Unlock()
	r.log.Infow("restored schedule", "schedule", text)
	return nil
}

// SetSchedule replaces the whole schedule, or nothing if any entry is out
// of range. The new schedule is persisted after it takes effect; a persist
// error is returned but does not undo the update.
func (r *Resolver) SetSchedule(ctx context.Context, s Schedule) error {
	if err := Validate(s); err != nil {
		return err
	}
	r.mu.Lock()
	r.schedule = s
	r.mu.Unlock()
	r.log.Infow("temperature schedule updated", "schedule", Format(s))

	if r.store == nil {
		return nil
	}
	if err := r.store.Set(ctx, StoreKey, Format(s)); err != nil {
		return fmt.Errorf("persist schedule: %w", err)
	}
	return nil
}

// SetScheduleText parses text and applies it with SetSchedule.
func (r *Resolver) SetScheduleText(ctx context.Context, text string) error {
	s, err := Parse(text)
	if err != nil {
		return err
	}
	return r.SetSchedule(ctx, s)
}

// Current returns a copy of the schedule.
func (r *Resolver) Current() Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.schedule
}

// Bump sets the desired temperature to the currently resolved value plus
// increment for the next hours hours. Repeated bumps compound. hours <= 0
// clears any override instead.
func (r *Resolver) Bump(increment, hours int) {
	now := r.now()
	hour := r.hour()

	r.mu.Lock()
	defer r.mu.Unlock()

	if hours <= 0 {
		r.overrideUntil = time.Time{}
		r.log.Infow("temperature override cleared")
		return
	}
	current := r.resolveLocked(hour, now)
	r.overrideTemp = current + increment
	r.overrideUntil = now.Add(time.Duration(hours) * time.Hour)
	r.log.Infow("bumped temperature", "from", current, "to", r.overrideTemp, "hours", hours)
}

// Resolve returns the desired temperature for hour at now. An expired
// override is cleared as a side effect.
func (r *Resolver) Resolve(hour int, now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(hour, now)
}

func (r *Resolver) resolveLocked(hour int, now time.Time) int {
	if !r.overrideUntil.IsZero() {
		if now.Before(r.overrideUntil) {
			return r.overrideTemp
		}
		r.overrideUntil = time.Time{}
	}
	if hour < 0 || hour >= Hours {
		hour = ((hour % Hours) + Hours) % Hours
	}
	return r.schedule[hour]
}

// DesiredNow resolves against the resolver's clocks.
func (r *Resolver) DesiredNow() float64 {
	return float64(r.Resolve(r.hour(), r.now()))
}

// Override reports the stored override. active is false when none is set;
// an expired but not yet resolved override still reports active.
func (r *Resolver) Override() (temp int, until time.Time, active bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.overrideTemp, r.overrideUntil, !r.overrideUntil.IsZero()
}

// ReportLines renders the schedule as four lines of six hours each.
func (r *Resolver) ReportLines() []string {
	s := r.Current()
	lines := make([]string, 0, Hours/6)
	for j := 0; j < Hours; j += 6 {
		lines = append(lines, fmt.Sprintf("schedule %d, %d, %d, %d, %d, %d",
			s[j], s[j+1], s[j+2], s[j+3], s[j+4], s[j+5]))
	}
	return lines
}
