// Package config loads controller settings from defaults, an optional YAML
// file, HEATER_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sweeney/heater-controller/internal/logger"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "HEATER"

// Config is the full controller configuration.
type Config struct {
	Ports     Ports     `mapstructure:"ports"`
	Broadcast Broadcast `mapstructure:"broadcast"`
	Telemetry Telemetry `mapstructure:"telemetry"`
	Control   Control   `mapstructure:"control"`
	Sensors   Sensors   `mapstructure:"sensors"`
	GPIO      GPIO      `mapstructure:"gpio"`
	Store     Store     `mapstructure:"store"`
	MQTT      MQTT      `mapstructure:"mqtt"`
	HTTP      HTTP      `mapstructure:"http"`
	Log       Log       `mapstructure:"log"`

	// Source is the config file that was read, if any.
	Source string `mapstructure:"-"`
}

type Ports struct {
	Ambient int `mapstructure:"ambient"`
	Console int `mapstructure:"console"`
}

type Broadcast struct {
	Addr     string        `mapstructure:"addr"`
	Interval time.Duration `mapstructure:"interval"`
}

type Telemetry struct {
	QueueSize int `mapstructure:"queue_size"`
	LineLen   int `mapstructure:"line_len"`
}

type Control struct {
	Interval      time.Duration `mapstructure:"interval"`
	MaxHeater     float64       `mapstructure:"max_heater"`
	SafetyMargin  float64       `mapstructure:"safety_margin"`
	HighCapMargin float64       `mapstructure:"high_cap_margin"`
	LowBand       float64       `mapstructure:"low_band"`
	MidBand       float64       `mapstructure:"mid_band"`
	FlyingBlind   time.Duration `mapstructure:"flying_blind"`
	InitialLevel  string        `mapstructure:"initial_level"`
}

type Sensors struct {
	ReadLifetime time.Duration `mapstructure:"read_lifetime"`
	HeaterPath   string        `mapstructure:"heater_path"`
}

type GPIO struct {
	Chip    string `mapstructure:"chip"`
	LowPin  int    `mapstructure:"low_pin"`
	HighPin int    `mapstructure:"high_pin"`
}

type Store struct {
	Path string `mapstructure:"path"`
}

type MQTT struct {
	Broker string `mapstructure:"broker"` // empty disables the mirror
	Topic  string `mapstructure:"topic"`
}

type HTTP struct {
	Addr string `mapstructure:"addr"` // empty disables the status server
}

type Log struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

// defaults holds the built-in defaults.
var defaults = map[string]any{
	"ports.ambient":           3339,
	"ports.console":           3337,
	"broadcast.addr":          "10.0.0.255:3341",
	"broadcast.interval":      2 * time.Second,
	"telemetry.queue_size":    32,
	"telemetry.line_len":      256,
	"control.interval":        30 * time.Second,
	"control.max_heater":      55.0,
	"control.safety_margin":   2.0,
	"control.high_cap_margin": 1.0,
	"control.low_band":        0.2,
	"control.mid_band":        2.0,
	"control.flying_blind":    30 * time.Minute,
	"control.initial_level":   "off",
	"sensors.read_lifetime":   30 * time.Minute,
	"sensors.heater_path":     "/sys/class/thermal/thermal_zone0/temp",
	"gpio.chip":               "gpiochip0",
	"gpio.low_pin":            6,
	"gpio.high_pin":           10,
	"store.path":              "heater.db",
	"mqtt.broker":             "",
	"mqtt.topic":              "heater/controller/telemetry",
	"http.addr":               ":8080",
	"log.level":               "info",
	"log.file":                "",
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// flagKeys maps command-line flags to config keys.
var flagKeys = map[string]string{
	"ambient-port":   "ports.ambient",
	"console-port":   "ports.console",
	"broadcast-addr": "broadcast.addr",
	"store":          "store.path",
	"mqtt-broker":    "mqtt.broker",
	"http-addr":      "http.addr",
	"log-level":      "log.level",
	"log-file":       "log.file",
	"gpio-chip":      "gpio.chip",
	"heater-sensor":  "sensors.heater_path",
}

// NewFlagSet declares the command-line flags.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", "", "path to YAML config file (default: heater.yaml in /etc/heater-controller or .)")
	fs.Int("ambient-port", defaults["ports.ambient"].(int), "UDP port for ambient temperature readings")
	fs.Int("console-port", defaults["ports.console"].(int), "UDP port for console commands")
	fs.String("broadcast-addr", defaults["broadcast.addr"].(string), "UDP address telemetry is broadcast to")
	fs.String("store", defaults["store.path"].(string), "path to the sqlite state file")
	fs.String("mqtt-broker", "", "MQTT broker URL for the telemetry mirror (empty disables)")
	fs.String("http-addr", defaults["http.addr"].(string), "status server address (empty disables)")
	fs.String("log-level", defaults["log.level"].(string), "log level: debug, info, warn, error")
	fs.String("log-file", "", "also log to this file, rotated")
	fs.String("gpio-chip", defaults["gpio.chip"].(string), "GPIO character device")
	fs.String("heater-sensor", defaults["sensors.heater_path"].(string), "heater thermal zone file")
	fs.BoolP("help", "h", false, "show help")
	return fs
}

// Load parses args against fs and resolves the full configuration.
// pflag.ErrHelp is returned unwrapped when help was requested.
func Load(fs *pflag.FlagSet, args []string) (*Config, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if help, _ := fs.GetBool("help"); help {
		return nil, pflag.ErrHelp
	}

	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for flag, key := range flagKeys {
		if f := fs.Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, fmt.Errorf("bind flag %s: %w", flag, err)
			}
		}
	}

	if err := readConfigFile(v, fs); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) error {
	path, _ := fs.GetString("config")
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName("heater")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/heater-controller")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Validate rejects settings the controller cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(validPort(c.Ports.Ambient), "ports.ambient %d out of range", c.Ports.Ambient)
	check(validPort(c.Ports.Console), "ports.console %d out of range", c.Ports.Console)
	check(c.Ports.Ambient != c.Ports.Console, "ports.ambient and ports.console must differ")
	check(c.Broadcast.Addr != "", "broadcast.addr is required")
	check(c.Broadcast.Interval > 0, "broadcast.interval must be positive")
	check(c.Telemetry.QueueSize > 0, "telemetry.queue_size must be positive")
	check(c.Telemetry.LineLen > 0, "telemetry.line_len must be positive")
	check(c.Control.Interval > 0, "control.interval must be positive")
	check(c.Control.FlyingBlind > 0, "control.flying_blind must be positive")
	check(c.Control.MaxHeater > 0, "control.max_heater must be positive")
	check(c.Control.SafetyMargin >= 0, "control.safety_margin must not be negative")
	check(c.Control.HighCapMargin >= 0, "control.high_cap_margin must not be negative")
	check(c.Control.LowBand >= 0 && c.Control.LowBand <= c.Control.MidBand,
		"control.low_band %.2f must be between 0 and control.mid_band %.2f", c.Control.LowBand, c.Control.MidBand)
	check(c.Control.InitialLevel == "off" || c.Control.InitialLevel == "low",
		"control.initial_level %q must be off or low", c.Control.InitialLevel)
	check(c.Sensors.ReadLifetime > 0, "sensors.read_lifetime must be positive")
	check(c.GPIO.LowPin != c.GPIO.HighPin, "gpio.low_pin and gpio.high_pin must differ")
	check(c.Store.Path != "", "store.path is required")
	check(logger.ValidLevel(c.Log.Level), "log.level %q is not one of debug, info, warn, error", c.Log.Level)

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func validPort(p int) bool {
	return p > 0 && p <= 65535
}
