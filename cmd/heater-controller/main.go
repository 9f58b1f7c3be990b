// Command heater-controller drives a two-element heater from a schedule, a
// remote room-temperature sensor and a local heater sensor, and broadcasts
// telemetry over UDP.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/sweeney/heater-controller/internal/config"
	"github.com/sweeney/heater-controller/internal/gpio"
	"github.com/sweeney/heater-controller/internal/kvstore"
	"github.com/sweeney/heater-controller/internal/logger"
	"github.com/sweeney/heater-controller/internal/mqtt"
	"github.com/sweeney/heater-controller/internal/telemetry"
	"github.com/sweeney/heater-controller/internal/temps"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	fs := config.NewFlagSet("heater-controller")
	cfg, err := config.Load(fs, os.Args[1:])
	if errors.Is(err, pflag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "Usage: heater-controller [flags]\n\n%s", fs.FlagUsages())
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "heater-controller: %v\n", err)
		os.Exit(2)
	}

	log, closeLog := logger.New(logger.Options{Level: cfg.Log.Level, File: cfg.Log.File})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, cfg, log)
	stop()
	if err != nil {
		log.Errorw("fatal", "err", err)
		closeLog()
		os.Exit(1)
	}
	closeLog()
}

// run opens the real devices and runs the controller until ctx is done.
func run(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger) error {
	if cfg.Source != "" {
		log.Infow("loaded config", "file", cfg.Source)
	}

	outputs, err := gpio.NewRealWriter(cfg.GPIO.Chip, cfg.GPIO.LowPin, cfg.GPIO.HighPin)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer func() {
		if err := outputs.Close(); err != nil {
			log.Errorw("close gpio", "err", err)
		}
	}()

	store, err := kvstore.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	udp, err := telemetry.NewUDPSink(cfg.Broadcast.Addr, log)
	if err != nil {
		return fmt.Errorf("init broadcast: %w", err)
	}
	defer udp.Close()

	d := deps{
		outputs: outputs,
		heater:  temps.SysfsSensor{Path: cfg.Sensors.HeaterPath},
		store:   store,
		sink:    udp,
	}

	a := newApp(cfg, log, d)

	// The mirror logs through the teed logger, so it is connected after
	// the telemetry stream exists.
	if cfg.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(cfg.MQTT.Broker, cfg.MQTT.Topic, a.teed)
		if err != nil {
			a.teed.Warnw("mqtt mirror disabled", "broker", cfg.MQTT.Broker, "err", err)
		} else {
			defer pub.Close()
			a.setMirror(pub)
		}
	}

	log.Infow("started",
		"version", version,
		"ambient_port", cfg.Ports.Ambient,
		"console_port", cfg.Ports.Console,
		"broadcast", cfg.Broadcast.Addr,
		"control_interval", cfg.Control.Interval)

	return a.Run(ctx)
}
