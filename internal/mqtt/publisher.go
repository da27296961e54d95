// Package mqtt republishes zone status snapshots to an MQTT broker so
// dashboards outside Home Assistant can follow the zones. Publishing is
// best-effort: a broker outage never affects the controllers.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"lightzone/internal/zone"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"
)

// TopicPrefix is the root of the per-zone status topics
const TopicPrefix = "lightzone"

// Publisher implements zone.StatusSink over an MQTT broker
type Publisher struct {
	client paho.Client
	logger *zap.Logger
}

// NewPublisher connects to the broker at the given URL
func NewPublisher(broker string, logger *zap.Logger) (*Publisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID("lightzoned").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &Publisher{
		client: client,
		logger: logger.Named("mqtt"),
	}, nil
}

// PublishStatus sends a zone snapshot to its status topic, retained so
// late subscribers see the current state immediately.
func (p *Publisher) PublishStatus(snapshot zone.StatusSnapshot) {
	payload, err := json.Marshal(snapshot)
	if err != nil {
		p.logger.Error("Failed to marshal status snapshot", zap.Error(err))
		return
	}

	topic := fmt.Sprintf("%s/%s/status", TopicPrefix, snapshot.Zone)
	token := p.client.Publish(topic, 0, true, payload)
	if !token.WaitTimeout(5 * time.Second) {
		p.logger.Warn("Publish timeout", zap.String("topic", topic))
		return
	}
	if err := token.Error(); err != nil {
		p.logger.Warn("Publish failed", zap.String("topic", topic), zap.Error(err))
	}
}

// Close disconnects from the broker
func (p *Publisher) Close() {
	p.client.Disconnect(1000)
}
