package mqtt

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 2 * time.Second
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	topic  string
	now    func() time.Time
}

// ClientID returns a unique client ID so several controllers can share a
// broker.
func ClientID() string {
	return "heater-controller-" + uuid.NewString()[:8]
}

// NewRealPublisher creates a publisher connected to the given broker.
func NewRealPublisher(broker, topic string, log *zap.SugaredLogger) (*RealPublisher, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With("task", "mqtt")
	if topic == "" {
		topic = DefaultTopic
	}

	id := ClientID()
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(id).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(StatusTopic(topic), offlinePayload, 1, true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warnw("connection lost", "err", err)
		}).
		SetOnConnectHandler(func(paho.Client) {
			log.Infow("connected", "broker", broker, "client_id", id)
		})

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &RealPublisher{
		client: client,
		topic:  topic,
		now:    time.Now,
	}, nil
}

// Send publishes a telemetry line.
func (p *RealPublisher) Send(line string) error {
	payload, err := FormatLine(p.now(), line)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 0 (at-most-once), not retained
	return wait(p.client.Publish(p.topic, 0, false, payload), "publish")
}

// PublishStatus publishes a retained status snapshot.
func (p *RealPublisher) PublishStatus(payload []byte) error {
	return wait(p.client.Publish(StatusTopic(p.topic), 1, true, payload), "publish status")
}

func wait(token paho.Token, what string) error {
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%s timeout", what)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	return nil
}

// IsConnected reports whether the client is connected.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
