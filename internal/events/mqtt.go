package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/mockloc/mockloc/internal/config"
	"github.com/mockloc/mockloc/pkg/core"
	"github.com/rs/zerolog"
)

const publishTimeout = 5 * time.Second

// MQTTPublisher publishes events as JSON to <prefix>/<session>/events and the
// latest strategy state, retained, to <prefix>/<session>/status.
type MQTTPublisher struct {
	client mqtt.Client
	prefix string
	logger zerolog.Logger
}

// DialMQTT connects to the configured broker.
func DialMQTT(cfg config.MQTTConfig, logger zerolog.Logger) (*MQTTPublisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("mqtt: broker address is required")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	}
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn().Err(err).Msg("mqtt: connection lost")
	})
	opts.SetReconnectingHandler(func(_ mqtt.Client, _ *mqtt.ClientOptions) {
		logger.Info().Msg("mqtt: reconnecting")
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(30 * time.Second) {
		return nil, fmt.Errorf("mqtt: connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt: connect failed: %w", err)
	}

	return NewMQTTPublisher(client, cfg.TopicPrefix, logger), nil
}

// NewMQTTPublisher wraps an already connected client.
func NewMQTTPublisher(client mqtt.Client, prefix string, logger zerolog.Logger) *MQTTPublisher {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = "mockloc"
	}
	return &MQTTPublisher{client: client, prefix: prefix, logger: logger}
}

type statusPayload struct {
	Strategy string    `json:"strategy"`
	Active   bool      `json:"active"`
	Time     time.Time `json:"time"`
}

// Publish sends the event without waiting for the broker.
func (p *MQTTPublisher) Publish(e core.Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		p.logger.Error().Err(err).Msg("mqtt: encode event")
		return
	}
	p.send(fmt.Sprintf("%s/%s/events", p.prefix, e.SessionID), 0, false, payload)

	var status *statusPayload
	switch e.Kind {
	case core.EventStrategyActivated:
		status = &statusPayload{Strategy: e.Strategy, Active: true, Time: e.Time}
	case core.EventStopped, core.EventExhausted:
		status = &statusPayload{Strategy: core.StrategyInactive.String(), Time: e.Time}
	}
	if status != nil {
		body, _ := json.Marshal(status)
		p.send(fmt.Sprintf("%s/%s/status", p.prefix, e.SessionID), 1, true, body)
	}
}

func (p *MQTTPublisher) send(topic string, qos byte, retain bool, payload []byte) {
	token := p.client.Publish(topic, qos, retain, payload)
	go func() {
		if !token.WaitTimeout(publishTimeout) {
			p.logger.Warn().Str("topic", topic).Msg("mqtt: publish timeout")
			return
		}
		if err := token.Error(); err != nil {
			p.logger.Warn().Err(err).Str("topic", topic).Msg("mqtt: publish failed")
		}
	}()
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}
