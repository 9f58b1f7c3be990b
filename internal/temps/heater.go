package temps

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/sweeney/heater-controller/internal/power"
	"github.com/sweeney/heater-controller/internal/telemetry"
)

// HeaterSensor reads the heater temperature in Celsius.
type HeaterSensor interface {
	Read() (float64, error)
}

// DefaultHeaterPath is the first Linux thermal zone.
const DefaultHeaterPath = "/sys/class/thermal/thermal_zone0/temp"

// SysfsSensor reads a thermal zone file reporting millidegrees.
type SysfsSensor struct {
	Path string
}

// Read parses the millidegree value in Path.
func (s SysfsSensor) Read() (float64, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		return 0, fmt.Errorf("read heater sensor: %w", err)
	}
	milli, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("parse heater sensor %s: %w", s.Path, err)
	}
	return float64(milli) / 1000, nil
}

// FakeSensor is a test double returning a settable value.
type FakeSensor struct {
	mu    sync.Mutex
	Value float64
	Err   error
	Reads int
}

// Read returns Value or Err.
func (f *FakeSensor) Read() (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Reads++
	if f.Err != nil {
		return 0, f.Err
	}
	return f.Value, nil
}

// Set changes the value returned by Read.
func (f *FakeSensor) Set(v float64) {
	f.mu.Lock()
	f.Value = v
	f.mu.Unlock()
}

// HeaterSource adapts a HeaterSensor for the controller. A failed read
// reports power.NoValue, so the heater temperature is treated as unknown.
type HeaterSource struct {
	sensor HeaterSensor
	log    *zap.SugaredLogger
	tel    power.Reporter
}

// NewHeaterSource wraps sensor.
func NewHeaterSource(sensor HeaterSensor, log *zap.SugaredLogger, tel power.Reporter) *HeaterSource {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &HeaterSource{sensor: sensor, log: log, tel: tel}
}

// Current reads the sensor.
func (h *HeaterSource) Current() float64 {
	v, err := h.sensor.Read()
	if err != nil {
		msg := fmt.Sprintf("heater temperature unavailable: %v", err)
		h.log.Warn(msg)
		if h.tel != nil {
			h.tel.SendMessage(telemetry.Warning, msg)
		}
		return power.NoValue
	}
	return v
}
