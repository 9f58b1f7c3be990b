// Package temps holds the temperature readings the controller acts on: the
// room (ambient) temperature pushed by a remote sensor over UDP and the
// heater temperature read from a local sensor.
package temps

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/heater-controller/internal/power"
	"github.com/sweeney/heater-controller/internal/telemetry"
)

// Plausible ambient range, in Celsius.
const (
	MinAmbient = 2.0
	MaxAmbient = 40.0
)

// DefaultLifetime is how long a reading is trusted.
const DefaultLifetime = 30 * time.Minute

// Ambient holds the most recent room temperature. It is written by the
// ambient listener and read by the control loop.
type Ambient struct {
	lifetime time.Duration
	now      func() time.Time
	log      *zap.SugaredLogger
	tel      power.Reporter

	mu       sync.Mutex
	value    float64
	received time.Time
	reported float64 // last value logged as a change
}

// NewAmbient creates an empty store. Until the first reading, Current
// returns power.NoValue.
func NewAmbient(lifetime time.Duration, now func() time.Time, log *zap.SugaredLogger, tel power.Reporter) *Ambient {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Ambient{
		lifetime: lifetime,
		now:      now,
		log:      log,
		tel:      tel,
		value:    power.NoValue,
		reported: power.NoValue,
	}
}

// Handle parses one datagram as a decimal temperature.
func (a *Ambient) Handle(payload []byte) error {
	text := string(bytes.Trim(payload, " \t\r\n\x00"))
	v, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return fmt.Errorf("ambient reading %q is not a number", text)
	}
	return a.Set(v)
}

// Set records v if it is within the plausible range.
func (a *Ambient) Set(v float64) error {
	if v < MinAmbient || v > MaxAmbient {
		msg := fmt.Sprintf("ambient temperature %.1f out of range, discarded", v)
		a.log.Warn(msg)
		if a.tel != nil {
			a.tel.SendMessage(telemetry.Warning, msg)
		}
		return nil
	}

	now := a.now()
	a.mu.Lock()
	a.value = v
	a.received = now
	changed := power.Missing(a.reported) || math.Abs(v-a.reported) >= 1
	if changed {
		a.reported = v
	}
	a.mu.Unlock()

	if changed {
		a.log.Infow("ambient temperature", "celsius", v)
	}
	return nil
}

// Current returns the latest reading, or power.NoValue if none has arrived
// within the lifetime.
func (a *Ambient) Current() float64 {
	now := a.now()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.received.IsZero() || now.Sub(a.received) > a.lifetime {
		return power.NoValue
	}
	return a.value
}

// Received reports when the last accepted reading arrived.
func (a *Ambient) Received() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.received
}
