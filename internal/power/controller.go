package power

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/sweeney/heater-controller/internal/telemetry"
)

// TemperatureSource yields the latest reading, or NoValue.
type TemperatureSource interface {
	Current() float64
}

// DesiredSource yields the temperature the room should be at now.
type DesiredSource interface {
	DesiredNow() float64
}

// Outputs drives the two element lines.
type Outputs interface {
	Write(low, high bool) error
}

// Reporter accepts telemetry lines.
type Reporter interface {
	SendMessage(sev telemetry.Severity, text string)
}

// Tick is the outcome of one control iteration.
type Tick struct {
	Time     time.Time
	Desired  float64
	Ambient  float64
	Heater   float64
	Override Level
	Decision Decision
}

// Observer is told about every control iteration.
type Observer interface {
	ObserveTick(Tick)
}

// Config holds the controller's tunables.
type Config struct {
	Limits       Limits
	FlyingBlind  time.Duration // missing-data time before an error is raised
	InitialLevel Level
}

// Controller runs the control law against live sources. Tick and Run must
// be called from a single goroutine; the setters are safe from any.
type Controller struct {
	cfg      Config
	desired  DesiredSource
	ambient  TemperatureSource
	heater   TemperatureSource
	out      Outputs
	tel      Reporter
	now      func() time.Time
	log      *zap.SugaredLogger
	observer Observer

	mu        sync.Mutex
	override  Level
	maxHeater float64

	current  atomic.Int32
	level    Level
	lastFull time.Time
}

// NewController wires a controller. tel and log may be nil.
func NewController(cfg Config, desired DesiredSource, ambient, heater TemperatureSource, out Outputs, tel Reporter, now func() time.Time, log *zap.SugaredLogger) *Controller {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Controller{
		cfg:       cfg,
		desired:   desired,
		ambient:   ambient,
		heater:    heater,
		out:       out,
		tel:       tel,
		now:       now,
		log:       log.With("task", "power"),
		override:  Auto,
		maxHeater: cfg.Limits.MaxHeater,
		level:     cfg.InitialLevel,
		lastFull:  now(),
	}
	c.current.Store(int32(cfg.InitialLevel))
	return c
}

// SetObserver registers o to receive every Tick.
func (c *Controller) SetObserver(o Observer) {
	c.observer = o
}

// SetOverride forces a level until cleared with Auto.
func (c *Controller) SetOverride(l Level) {
	c.mu.Lock()
	c.override = l
	c.mu.Unlock()
	c.log.Infow("power override", "level", l)
}

// Override returns the current override, Auto if none.
func (c *Controller) Override() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.override
}

// SetMaxHeater changes the heater cutoff temperature.
func (c *Controller) SetMaxHeater(v float64) {
	c.mu.Lock()
	c.maxHeater = v
	c.mu.Unlock()
	c.log.Infow("max heater temperature", "celsius", v)
}

// Level returns the level most recently chosen.
func (c *Controller) Level() Level {
	return Level(c.current.Load())
}

func (c *Controller) settings() (Level, Limits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	lim := c.cfg.Limits
	lim.MaxHeater = c.maxHeater
	return c.override, lim
}

// Tick runs one control iteration.
func (c *Controller) Tick() Decision {
	now := c.now()
	desired := c.desired.DesiredNow()
	ambient := c.ambient.Current()
	heater := c.heater.Current()
	override, lim := c.settings()

	d := Decide(Input{
		Desired:  desired,
		Ambient:  ambient,
		Heater:   heater,
		Override: override,
		Previous: c.level,
	}, lim)

	if !Missing(desired) && !Missing(ambient) {
		c.lastFull = now
	}

	switch {
	case d.OverTemp:
		c.report(telemetry.Fatal, fmt.Sprintf("heater over-temperature: %.1f exceeds limit %.1f", heater, lim.MaxHeater))
	case d.Cutoff:
		c.report(telemetry.Warning, fmt.Sprintf("Discontinuing heat, heater temperature is %.1f", heater))
	case d.MissingData:
		if blind := now.Sub(c.lastFull); blind > c.cfg.FlyingBlind {
			c.report(telemetry.Error, fmt.Sprintf("No information to control with! (%s without readings)", blind.Round(time.Second)))
		}
	}

	c.apply(d.Level)

	c.report(telemetry.Info, fmt.Sprintf("Desired %s, ambient %s, heater %s, power %s",
		formatTemp(desired), formatTemp(ambient), formatTemp(heater), d.Level))

	if c.observer != nil {
		c.observer.ObserveTick(Tick{
			Time:     now,
			Desired:  desired,
			Ambient:  ambient,
			Heater:   heater,
			Override: override,
			Decision: d,
		})
	}
	return d
}

// apply writes the pins for l. They are rewritten on every tick, so a failed
// write or an outside change is corrected on the next one.
func (c *Controller) apply(l Level) {
	if l != c.level {
		c.log.Infow("power level change", "from", c.level, "to", l)
	}
	c.level = l
	c.current.Store(int32(l))

	low, high := l.Pins()
	if err := c.out.Write(low, high); err != nil {
		c.report(telemetry.Error, fmt.Sprintf("unable to set power level %s: %v", l, err))
	}
}

// Run ticks once immediately and then on every value from tick, until ctx
// is cancelled. The elements are switched off on return.
func (c *Controller) Run(ctx context.Context, tick <-chan time.Time) {
	c.Tick()
	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return
		case <-tick:
			c.Tick()
		}
	}
}

func (c *Controller) shutdown() {
	c.level = Off
	c.current.Store(int32(Off))
	if err := c.out.Write(false, false); err != nil {
		c.log.Errorw("unable to switch elements off", "err", err)
		return
	}
	c.log.Info("elements switched off")
}

func (c *Controller) report(sev telemetry.Severity, text string) {
	switch sev {
	case telemetry.Info:
		c.log.Debug(text)
	case telemetry.Warning:
		c.log.Warn(text)
	default:
		c.log.Error(text)
	}
	if c.tel != nil {
		c.tel.SendMessage(sev, text)
	}
}

func formatTemp(v float64) string {
	if Missing(v) {
		return "none"
	}
	return fmt.Sprintf("%.1f", v)
}
