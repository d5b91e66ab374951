package alerting

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MQTTOptions configure the MQTT notification channel.
type MQTTOptions struct {
	BrokerURL   string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	Timeout     time.Duration
}

// MQTTNotifier publishes notifications to an MQTT broker, one topic per
// severity level under the configured prefix.
type MQTTNotifier struct {
	client  mqtt.Client
	prefix  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewMQTTNotifier connects to the broker and returns a notifier.
func NewMQTTNotifier(opts MQTTOptions, logger zerolog.Logger) (*MQTTNotifier, error) {
	if opts.BrokerURL == "" {
		return nil, fmt.Errorf("mqtt broker url is required")
	}
	if opts.ClientID == "" {
		opts.ClientID = "energy-flow-monitor"
	}
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "energyflow/notifications"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetConnectTimeout(opts.Timeout).
		SetAutoReconnect(true)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	client := mqtt.NewClient(clientOpts)
	token := client.Connect()
	if !token.WaitTimeout(opts.Timeout) {
		return nil, fmt.Errorf("mqtt connect timed out after %s", opts.Timeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	return &MQTTNotifier{
		client:  client,
		prefix:  opts.TopicPrefix,
		timeout: opts.Timeout,
		logger:  logger.With().Str("component", "alert_mqtt").Logger(),
	}, nil
}

// Notify publishes the notification payload.
func (n *MQTTNotifier) Notify(_ context.Context, note Notification) error {
	payload, err := json.Marshal(note)
	if err != nil {
		return fmt.Errorf("marshal mqtt payload: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", n.prefix, note.Level)
	token := n.client.Publish(topic, 0, false, payload)
	if !token.WaitTimeout(n.timeout) {
		return fmt.Errorf("mqtt publish timed out after %s", n.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt publish: %w", err)
	}

	n.logger.Info().Str("topic", topic).Str("title", note.Title).Msg("notification delivered (mqtt)")
	return nil
}

// Close disconnects from the broker.
func (n *MQTTNotifier) Close() {
	n.client.Disconnect(250)
}

var _ Notifier = (*MQTTNotifier)(nil)
