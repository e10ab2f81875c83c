package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

// MQTT topic suffixes under the configured prefix.
const (
	TopicSnapshot = "snapshot"
	TopicCommand  = "command"
	TopicLink     = "link"
)

// MQTTPublisher publishes station output as JSON on MQTT topics. Snapshots
// go out at QoS 0; commands and link transitions at QoS 1.
type MQTTPublisher struct {
	client  *paho.Client
	prefix  string
	log     *slog.Logger
	timeout time.Duration
}

// DialMQTT connects to broker (host:port) over TCP. An empty clientID gets a
// random one.
func DialMQTT(ctx context.Context, broker, clientID, prefix string, logger *slog.Logger) (*MQTTPublisher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if clientID == "" {
		clientID = "droneops-ground-" + uuid.NewString()
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", broker)
	if err != nil {
		return nil, fmt.Errorf("dial mqtt broker: %w", err)
	}
	client := paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		OnClientError: func(err error) {
			logger.Error("mqtt client error", "err", err)
		},
	})
	ack, err := client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  30,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	if ack.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("mqtt connect refused: reason %d", ack.ReasonCode)
	}
	logger.Info("mqtt publisher connected", "broker", broker, "client_id", clientID)
	return &MQTTPublisher{client: client, prefix: prefix, log: logger, timeout: 5 * time.Second}, nil
}

func (p *MQTTPublisher) topic(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "/" + suffix
}

func (p *MQTTPublisher) publish(suffix string, qos byte, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if _, err := p.client.Publish(ctx, &paho.Publish{
		Topic:   p.topic(suffix),
		QoS:     qos,
		Payload: payload,
		Properties: &paho.PublishProperties{
			ContentType: "application/json",
		},
	}); err != nil {
		p.log.Warn("mqtt publish failed", "topic", p.topic(suffix), "err", err)
		return err
	}
	return nil
}

// WriteSnapshot publishes a snapshot.
func (p *MQTTPublisher) WriteSnapshot(row SnapshotRow) error {
	return p.publish(TopicSnapshot, 0, row)
}

// WriteCommand publishes an issued command.
func (p *MQTTPublisher) WriteCommand(row CommandRow) error {
	return p.publish(TopicCommand, 1, row)
}

// WriteLink publishes a link state transition.
func (p *MQTTPublisher) WriteLink(row LinkRow) error {
	return p.publish(TopicLink, 1, row)
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() error {
	return p.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
