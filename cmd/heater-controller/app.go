package main

import (
	"context"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sweeney/heater-controller/internal/command"
	"github.com/sweeney/heater-controller/internal/config"
	"github.com/sweeney/heater-controller/internal/listener"
	"github.com/sweeney/heater-controller/internal/logger"
	"github.com/sweeney/heater-controller/internal/mqtt"
	"github.com/sweeney/heater-controller/internal/power"
	"github.com/sweeney/heater-controller/internal/schedule"
	"github.com/sweeney/heater-controller/internal/status"
	"github.com/sweeney/heater-controller/internal/telemetry"
	"github.com/sweeney/heater-controller/internal/temps"
	"github.com/sweeney/heater-controller/internal/web"
)

// restoreTimeout bounds loading the persisted schedule at startup.
const restoreTimeout = 5 * time.Second

// deps are the hardware and I/O endpoints; tests substitute fakes.
type deps struct {
	outputs power.Outputs
	heater  temps.HeaterSensor
	store   schedule.Store
	sink    telemetry.Sink
	mirror  mqtt.Publisher

	// listenHost is the interface the UDP listeners bind; empty for all.
	listenHost string

	now  func() time.Time
	hour func() int
}

// app owns every long-running task.
type app struct {
	cfg  *config.Config
	log  *zap.SugaredLogger // base logger, not forwarded to telemetry
	teed *zap.SugaredLogger

	tel      *telemetry.Telemetry
	sink     telemetry.Sink
	primary  telemetry.Sink
	mirror   mqtt.Publisher
	resolver *schedule.Resolver
	ambient  *temps.Ambient
	ctl      *power.Controller
	tracker  *status.Tracker
	router   *command.Router

	heartbeat chan struct{}

	ambientLn *listener.Listener
	consoleLn *listener.Listener
	web       *web.Server
}

func newApp(cfg *config.Config, log *zap.SugaredLogger, d deps) *app {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.hour == nil {
		d.hour = func() int { return time.Now().Hour() }
	}
	start := d.now()

	tel := telemetry.New(telemetry.Config{
		QueueSize: cfg.Telemetry.QueueSize,
		LineLen:   cfg.Telemetry.LineLen,
	}, log)
	teed := logger.WithTelemetry(log, tel)

	resolver := schedule.NewResolver(d.store, d.hour, d.now, teed)
	ctx, cancel := context.WithTimeout(context.Background(), restoreTimeout)
	if err := resolver.Restore(ctx); err != nil {
		teed.Warnw("using default schedule", "err", err)
	}
	cancel()

	ambient := temps.NewAmbient(cfg.Sensors.ReadLifetime, d.now, log, tel)
	heater := temps.NewHeaterSource(d.heater, log, tel)

	initial, _ := power.ParseLevel(cfg.Control.InitialLevel)
	ctl := power.NewController(power.Config{
		Limits: power.Limits{
			MaxHeater:     cfg.Control.MaxHeater,
			SafetyMargin:  cfg.Control.SafetyMargin,
			HighCapMargin: cfg.Control.HighCapMargin,
			LowBand:       cfg.Control.LowBand,
			MidBand:       cfg.Control.MidBand,
		},
		FlyingBlind:  cfg.Control.FlyingBlind,
		InitialLevel: initial,
	}, resolver, ambient, heater, d.outputs, tel, d.now, log)

	tracker := status.NewTracker(start, status.Config{
		AmbientPort:     cfg.Ports.Ambient,
		ConsolePort:     cfg.Ports.Console,
		BroadcastAddr:   cfg.Broadcast.Addr,
		ControlInterval: cfg.Control.Interval,
		MaxHeater:       cfg.Control.MaxHeater,
		Broker:          cfg.MQTT.Broker,
		HTTPAddr:        cfg.HTTP.Addr,
	})
	tracker.SetSources(tel, resolver)
	heartbeat := make(chan struct{}, 1)
	ctl.SetObserver(&heartbeatObserver{tracker: tracker, notify: heartbeat})

	router := command.NewRouter(resolver, ctl, tel, version, start, teed)

	a := &app{
		cfg:       cfg,
		log:       log,
		teed:      teed,
		tel:       tel,
		primary:   d.sink,
		sink:      d.sink,
		resolver:  resolver,
		ambient:   ambient,
		ctl:       ctl,
		tracker:   tracker,
		router:    router,
		heartbeat: heartbeat,
		ambientLn: listener.New("ambient", listenAddr(d.listenHost, cfg.Ports.Ambient), ambient, teed),
		consoleLn: listener.New("console", listenAddr(d.listenHost, cfg.Ports.Console), router, teed),
	}
	if cfg.HTTP.Addr != "" {
		a.web = web.New(cfg.HTTP.Addr, tracker, teed)
	}
	if d.mirror != nil {
		a.setMirror(d.mirror)
	}
	return a
}

func listenAddr(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// setMirror adds an MQTT mirror behind the primary broadcast sink.
func (a *app) setMirror(pub mqtt.Publisher) {
	a.mirror = pub
	a.sink = telemetry.NewMultiSink(a.log, a.primary, pub)
}

// Run starts every task and blocks until ctx is cancelled and all tasks
// have finished.
func (a *app) Run(ctx context.Context) error {
	controlTick := time.NewTicker(a.cfg.Control.Interval)
	defer controlTick.Stop()
	broadcastTick := time.NewTicker(a.cfg.Broadcast.Interval)
	defer broadcastTick.Stop()

	return a.run(ctx, controlTick.C, broadcastTick.C)
}

// run is Run with the tick sources supplied. A task that fails ends alone;
// the rest keep running.
func (a *app) run(ctx context.Context, controlTick, broadcastTick <-chan time.Time) error {
	a.publishStatus("STARTUP")

	g, ctx := errgroup.WithContext(ctx)

	for _, ln := range []*listener.Listener{a.ambientLn, a.consoleLn} {
		ln := ln
		g.Go(func() error {
			if err := ln.Run(ctx); err != nil {
				a.log.Errorw("listener stopped", "err", err)
				a.tel.SendMessage(telemetry.Fatal, err.Error())
			}
			return nil
		})
	}

	g.Go(func() error {
		a.tel.Run(ctx, a.sink, broadcastTick)
		return nil
	})

	g.Go(func() error {
		a.ctl.Run(ctx, controlTick)
		return nil
	})

	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-a.heartbeat:
				a.publishStatus("HEARTBEAT")
			}
		}
	})

	if a.web != nil {
		g.Go(func() error {
			if err := a.web.Run(ctx); err != nil {
				a.teed.Errorw("status server stopped", "err", err)
			}
			return nil
		})
	}

	err := g.Wait()
	a.publishStatus("SHUTDOWN")
	a.log.Info("shut down")
	return err
}

// heartbeatObserver updates the tracker on every control tick, then
// signals the status publisher without blocking.
type heartbeatObserver struct {
	tracker *status.Tracker
	notify  chan struct{}
}

func (o *heartbeatObserver) ObserveTick(t power.Tick) {
	o.tracker.ObserveTick(t)
	select {
	case o.notify <- struct{}{}:
	default:
	}
}

// publishStatus sends a retained status snapshot to the mirror, if any.
func (a *app) publishStatus(event string) {
	if a.mirror == nil {
		return
	}
	if cs, ok := a.mirror.(mqtt.ConnectionStatus); ok {
		a.tracker.SetMQTTConnected(cs.IsConnected())
	}
	snap := a.tracker.Snapshot()
	if err := a.mirror.PublishStatus(status.FormatStatusEvent(snap, event)); err != nil {
		a.log.Debugw("status publish failed", "event", event, "err", err)
	}
}
