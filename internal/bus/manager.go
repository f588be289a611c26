package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"iot-relay/internal/config"
	"iot-relay/internal/models"
)

var ErrMissingTopics = errors.New("gps and rfid topics are required")

// StatusFunc receives bus status transitions as a side channel, independent
// of the device/scan data path.
type StatusFunc func(status models.BusStatus, detail string)

// ConnectRequest describes one upstream connection attempt.
type ConnectRequest struct {
	BrokerURL string `json:"broker"`
	GPSTopic  string `json:"gpsTopic"`
	RFIDTopic string `json:"rfidTopic"`
	Username  string `json:"username"`
	Password  string `json:"password"`
}

// Manager owns the single upstream MQTT connection. A new connect request
// tears down the active connection first, so two live connections never
// coexist and messages are never ingested twice.
type Manager struct {
	cfg      config.MQTTConfig
	logger   zerolog.Logger
	inbound  chan models.RawMessage
	onStatus StatusFunc

	mu        sync.Mutex
	client    mqtt.Client
	gpsTopic  string
	rfidTopic string

	statusMu sync.Mutex
	status   models.BusStatus
}

func NewManager(cfg config.MQTTConfig, onStatus StatusFunc, logger zerolog.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger,
		inbound:  make(chan models.RawMessage, cfg.InboundBuffer),
		onStatus: onStatus,
		status:   models.BusDisconnected,
	}
}

// Inbound is the single-consumer channel of raw bus messages, in arrival
// order. The relay pipeline drains it.
func (m *Manager) Inbound() <-chan models.RawMessage {
	return m.inbound
}

func (m *Manager) Connect(ctx context.Context, req ConnectRequest) error {
	broker, err := ParseBrokerURL(req.BrokerURL)
	if err != nil {
		return err
	}
	if req.GPSTopic == "" || req.RFIDTopic == "" {
		return ErrMissingTopics
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.teardownLocked()
	m.setStatus(models.BusConnecting, "")

	m.gpsTopic = req.GPSTopic
	m.rfidTopic = req.RFIDTopic

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker.Address())
	opts.SetClientID(fmt.Sprintf("%s-%s", m.cfg.ClientPrefix, uuid.NewString()[:8]))
	if req.Username != "" {
		opts.SetUsername(req.Username)
		opts.SetPassword(req.Password)
	}
	opts.SetCleanSession(m.cfg.CleanSession)
	opts.SetKeepAlive(m.cfg.KeepAlive)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetryInterval(m.cfg.ReconnectInterval)
	opts.SetMaxReconnectInterval(m.cfg.ReconnectInterval)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(m.onConnectionLost)

	m.logger.Info().
		Str("broker", broker.Address()).
		Str("gps_topic", req.GPSTopic).
		Str("rfid_topic", req.RFIDTopic).
		Msg("Connecting to broker")

	client := mqtt.NewClient(opts)
	token := client.Connect()

	connectCtx := ctx
	if m.cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		connectCtx, cancel = context.WithTimeout(ctx, m.cfg.ConnectTimeout)
		defer cancel()
	}

	select {
	case <-token.Done():
		if token.Error() != nil {
			m.setStatus(models.BusError, token.Error().Error())
			return fmt.Errorf("error connecting to broker %s: %w", broker.Address(), token.Error())
		}
	case <-connectCtx.Done():
		client.Disconnect(0)
		m.setStatus(models.BusError, "connect timed out")
		return fmt.Errorf("connection to broker %s timed out: %w", broker.Address(), connectCtx.Err())
	}

	m.client = client
	return nil
}

// Disconnect tears down the active connection. Safe to call when already
// disconnected; it also stops any pending reconnect attempts.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.teardownLocked()
}

func (m *Manager) Status() models.BusStatus {
	m.statusMu.Lock()
	defer m.statusMu.Unlock()
	return m.status
}

func (m *Manager) teardownLocked() {
	if m.client == nil {
		return
	}
	m.logger.Info().Msg("Disconnecting from broker")
	m.client.Disconnect(250)
	m.client = nil
	m.setStatus(models.BusDisconnected, "")
}

// setStatus keeps status under its own lock so the callback never runs while
// the connection lock is held.
func (m *Manager) setStatus(status models.BusStatus, detail string) {
	m.statusMu.Lock()
	changed := m.status != status
	m.status = status
	m.statusMu.Unlock()

	if changed && m.onStatus != nil {
		m.onStatus(status, detail)
	}
}

// onConnect fires on the initial connect and on every automatic reconnect,
// so subscriptions are re-established for clean sessions.
func (m *Manager) onConnect(client mqtt.Client) {
	m.mu.Lock()
	subscriptions := []struct {
		topic string
		kind  models.MessageKind
	}{
		{m.gpsTopic, models.KindGPS},
		{m.rfidTopic, models.KindRFID},
	}
	m.mu.Unlock()

	m.logger.Info().Msg("Successfully connected to broker")

	subscribed := true
	for _, sub := range subscriptions {
		if err := m.subscribe(client, sub.topic, sub.kind); err != nil {
			m.logger.Error().Err(err).Str("topic", sub.topic).Msg("Subscription failed")
			subscribed = false
		}
	}

	if subscribed {
		m.setStatus(models.BusConnected, "")
	} else {
		m.setStatus(models.BusError, "subscription failed")
	}
}

func (m *Manager) onConnectionLost(client mqtt.Client, err error) {
	m.logger.Warn().Err(err).Msg("Lost connection to broker")
	m.setStatus(models.BusError, err.Error())
}

func (m *Manager) subscribe(client mqtt.Client, topic string, kind models.MessageKind) error {
	handler := func(_ mqtt.Client, msg mqtt.Message) {
		m.dispatch(kind, msg.Topic(), msg.Payload())
	}

	token := client.Subscribe(topic, m.cfg.QoS, handler)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("subscribe to topic %s timed out", topic)
	}
	if token.Error() != nil {
		return fmt.Errorf("error subscribing to topic %s: %w", topic, token.Error())
	}

	m.logger.Info().Str("topic", topic).Msg("Added topic subscription")
	return nil
}

// dispatch hands a raw message to the pipeline without ever blocking the
// paho callback: when the consumer is saturated the message is dropped.
func (m *Manager) dispatch(kind models.MessageKind, topic string, payload []byte) {
	select {
	case m.inbound <- models.RawMessage{Kind: kind, Topic: topic, Payload: payload}:
	default:
		m.logger.Warn().
			Str("topic", topic).
			Int("payload_size", len(payload)).
			Msg("Inbound buffer full, dropping message")
	}
}
