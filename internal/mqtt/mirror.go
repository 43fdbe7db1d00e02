package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"pbxbridge/internal/domain"
)

// Mirror republishes normalized events onto an MQTT broker so external
// systems (wallboards, reporting) can consume them without attaching to
// the websocket hub. It implements the router's Subscriber interface.
type Mirror struct {
	client      paho.Client
	topicPrefix string
	qos         byte
	logger      zerolog.Logger
}

type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	Logger      zerolog.Logger
}

// New creates and connects the mirror. The underlying client handles
// its own reconnection.
func New(opts Options) (*Mirror, error) {
	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(60 * time.Second)

	client := paho.NewClient(clientOpts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connecting to MQTT broker %s: %w", opts.Broker, err)
	}

	return &Mirror{
		client:      client,
		topicPrefix: opts.TopicPrefix,
		qos:         1,
		logger:      opts.Logger.With().Str("component", "mqtt").Logger(),
	}, nil
}

func (m *Mirror) OnCallEvent(evt domain.NormalizedCallEvent) {
	m.publish(fmt.Sprintf("%s/calls/%s", m.topicPrefix, evt.Type), evt)
}

func (m *Mirror) OnAgentStatus(upd domain.AgentStatusUpdate) {
	m.publish(fmt.Sprintf("%s/agents/%s/status", m.topicPrefix, upd.AgentID), upd)
}

func (m *Mirror) publish(topic string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return
	}

	token := m.client.Publish(topic, m.qos, false, data)
	token.Wait()
	if err := token.Error(); err != nil {
		m.logger.Warn().Err(err).Str("topic", topic).Msg("Failed to publish event")
	}
}

func (m *Mirror) Close() error {
	m.client.Disconnect(1000)
	return nil
}
