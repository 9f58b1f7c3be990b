// Package mqtt mirrors telemetry to an MQTT broker and publishes a retained
// status snapshot, with an abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"
)

// DefaultTopic is the MQTT topic for telemetry lines.
const DefaultTopic = "heater/controller/telemetry"

// StatusTopic returns the retained status topic for a telemetry topic.
func StatusTopic(topic string) string {
	return topic + "/status"
}

// Publisher publishes controller output to MQTT.
type Publisher interface {
	// Send publishes one telemetry line. It satisfies telemetry.Sink.
	Send(line string) error

	// PublishStatus publishes a pre-formatted JSON status snapshot, retained.
	PublishStatus(payload []byte) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// LinePayload is the MQTT message payload for a telemetry line.
type LinePayload struct {
	Telemetry LineInner `json:"telemetry"`
}

// LineInner contains the line and when it was published.
type LineInner struct {
	Timestamp string `json:"timestamp"`
	Line      string `json:"line"`
}

// FormatLine creates the JSON payload for a telemetry line.
func FormatLine(at time.Time, line string) ([]byte, error) {
	return json.Marshal(LinePayload{
		Telemetry: LineInner{
			Timestamp: at.UTC().Format(time.RFC3339),
			Line:      line,
		},
	})
}

// offlinePayload is the retained last-will message.
const offlinePayload = `{"status":{"event":"OFFLINE"}}`
