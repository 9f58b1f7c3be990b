package status

import (
	"encoding/json"
	"time"

	"github.com/sweeney/heater-controller/internal/power"
	"github.com/sweeney/heater-controller/internal/schedule"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details. Unknown temperatures are null.
type StatusInner struct {
	Event         string     `json:"event,omitempty"`
	Desired       *float64   `json:"desired"`
	Ambient       *float64   `json:"ambient"`
	Heater        *float64   `json:"heater"`
	Level         string     `json:"level"`
	Override      string     `json:"override"`
	Cutoff        bool       `json:"cutoff"`
	LastTick      string     `json:"last_tick,omitempty"`
	Bump          *BumpJSON  `json:"bump,omitempty"`
	Schedule      []int      `json:"schedule"`
	Errors        ErrorsJSON `json:"errors"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	MQTT          MQTTStatus `json:"mqtt"`
	Config        ConfigJSON `json:"config"`
}

// BumpJSON describes an active temporary override.
type BumpJSON struct {
	Temp  int    `json:"temp"`
	Until string `json:"until"`
}

// ErrorsJSON reports telemetry error counts.
type ErrorsJSON struct {
	Total uint64 `json:"total"`
	New   uint64 `json:"new"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	AmbientPort       int     `json:"ambient_port"`
	ConsolePort       int     `json:"console_port"`
	BroadcastAddr     string  `json:"broadcast_addr"`
	ControlIntervalMs int64   `json:"control_interval_ms"`
	MaxHeater         float64 `json:"max_heater"`
	Broker            string  `json:"broker"`
	HTTPAddr          string  `json:"http_addr"`
}

func temp(v float64) *float64 {
	if power.Missing(v) {
		return nil
	}
	return &v
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Desired:       temp(snap.Desired),
		Ambient:       temp(snap.Ambient),
		Heater:        temp(snap.Heater),
		Level:         snap.Level.String(),
		Override:      snap.Override.String(),
		Cutoff:        snap.Cutoff,
		Schedule:      snap.Schedule[:],
		Errors:        ErrorsJSON{Total: snap.TotalErrors, New: snap.NewErrors},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			AmbientPort:       snap.Config.AmbientPort,
			ConsolePort:       snap.Config.ConsolePort,
			BroadcastAddr:     snap.Config.BroadcastAddr,
			ControlIntervalMs: snap.Config.ControlInterval.Milliseconds(),
			MaxHeater:         snap.Config.MaxHeater,
			Broker:            snap.Config.Broker,
			HTTPAddr:          snap.Config.HTTPAddr,
		},
	}
	if snap.Schedule == (schedule.Schedule{}) {
		inner.Schedule = nil
	}
	if !snap.LastTick.IsZero() {
		inner.LastTick = snap.LastTick.UTC().Format(time.RFC3339)
	}
	if snap.BumpActive {
		inner.Bump = &BumpJSON{Temp: snap.BumpTemp, Until: snap.BumpUntil.UTC().Format(time.RFC3339)}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the compact JSON status for an MQTT status
// message, tagged with event (e.g. "STARTUP", "HEARTBEAT", "SHUTDOWN").
func FormatStatusEvent(snap Snapshot, event string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
