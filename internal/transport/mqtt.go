package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	// ErrNotConnected is returned by Publish and Subscribe while the broker is unreachable
	ErrNotConnected = errors.New("mqtt not connected")
	// ErrStopped is returned when starting a transport that was already stopped
	ErrStopped = errors.New("transport stopped")
)

const (
	eventBuffer          = 64
	subscribeTimeout     = 5 * time.Second
	publishTimeout       = 2 * time.Second
	connectRetryInterval = 2 * time.Second
	maxReconnectInterval = 30 * time.Second
	disconnectQuiesceMs  = 250
)

// MQTTTransport implements domain.Transport on top of an MQTT broker.
// paho reconnects on its own; connection changes and incoming messages
// are delivered on a single events channel.
type MQTTTransport struct {
	logger    *zap.Logger
	cfg       config.MQTTConfig
	clientID  string
	newClient func(*mqtt.ClientOptions) BrokerClient

	events chan domain.TransportEvent
	done   chan struct{}
	wg     sync.WaitGroup // Tracks publish watchers and the connect watcher

	mu      sync.RWMutex
	client  BrokerClient
	running bool
	closed  bool

	warnMu          sync.Mutex
	lastDropWarning time.Time // Rate limiting for "channel full" warnings
}

// NewMQTTTransport creates a transport for the configured broker
func NewMQTTTransport(cfg *config.AppConfig, logger *zap.Logger) *MQTTTransport {
	clientID := cfg.MQTT.ClientID
	if clientID == "" {
		clientID = "ledmatrix-" + uuid.NewString()[:8]
	}
	return &MQTTTransport{
		logger:    logger,
		cfg:       cfg.MQTT,
		clientID:  clientID,
		newClient: newPahoClient,
		events:    make(chan domain.TransportEvent, eventBuffer),
		done:      make(chan struct{}),
	}
}

// ClientID returns the identifier presented to the broker
func (t *MQTTTransport) ClientID() string {
	return t.clientID
}

// Start begins connecting in the background and returns immediately
func (t *MQTTTransport) Start(ctx context.Context) error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return ErrStopped
	}
	if t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = true
	client := t.newClient(t.clientOptions())
	t.client = client
	t.mu.Unlock()

	t.logger.Info("Connecting to MQTT broker",
		zap.String("broker", t.cfg.Broker),
		zap.String("clientID", t.clientID))

	token := client.Connect()
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		select {
		case <-token.Done():
			// With connect retry enabled the token only fails on a fatal
			// error such as bad credentials
			if err := token.Error(); err != nil {
				t.logger.Error("MQTT connect failed", zap.Error(err))
			}
		case <-t.done:
		}
	}()

	return nil
}

// Stop disconnects from the broker and closes the events channel
func (t *MQTTTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return nil
	}
	t.running = false
	client := t.client
	t.mu.Unlock()

	// Unblocks lifecycle sends and watchers
	close(t.done)

	if client != nil {
		client.Disconnect(disconnectQuiesceMs)
	}

	t.logger.Debug("Waiting for transport goroutines to finish")
	t.wg.Wait()

	t.mu.Lock()
	t.closed = true
	close(t.events)
	t.mu.Unlock()

	t.logger.Info("MQTT transport shutdown complete")
	return nil
}

// Subscribe registers a topic filter; matching messages arrive on Events()
func (t *MQTTTransport) Subscribe(topic string, qos byte) error {
	client := t.currentClient()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Subscribe(topic, qos, nil)
	if !token.WaitTimeout(subscribeTimeout) {
		return fmt.Errorf("subscribe to %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe to %s: %w", topic, err)
	}

	t.logger.Info("Subscribed", zap.String("topic", topic), zap.Uint8("qos", qos))
	return nil
}

// Publish queues payload and returns without waiting for delivery.
// Delivery failures are logged.
func (t *MQTTTransport) Publish(topic string, qos byte, retain bool, payload []byte) error {
	client := t.currentClient()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}

	token := client.Publish(topic, qos, retain, payload)

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if !token.WaitTimeout(publishTimeout) {
			t.logger.Warn("Publish not confirmed in time",
				zap.String("topic", topic),
				zap.Duration("timeout", publishTimeout))
			return
		}
		if err := token.Error(); err != nil {
			t.logger.Error("Publish failed",
				zap.String("topic", topic),
				zap.Int("bytes", len(payload)),
				zap.Error(err))
		}
	}()
	return nil
}

// IsConnected reports whether the broker connection is open
func (t *MQTTTransport) IsConnected() bool {
	client := t.currentClient()
	return client != nil && client.IsConnectionOpen()
}

// Events returns a read-only channel of connection and message events
func (t *MQTTTransport) Events() <-chan domain.TransportEvent {
	return t.events
}

func (t *MQTTTransport) currentClient() BrokerClient {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.client
}

func (t *MQTTTransport) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(t.cfg.Broker)
	opts.SetClientID(t.clientID)
	opts.SetCleanSession(true)
	opts.SetKeepAlive(time.Duration(t.cfg.KeepAliveS) * time.Second)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(connectRetryInterval)
	opts.SetMaxReconnectInterval(maxReconnectInterval)
	if t.cfg.Username != "" {
		opts.SetUsername(t.cfg.Username)
		opts.SetPassword(t.cfg.Password)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) { t.handleConnect() })
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) { t.handleConnectionLost(err) })
	opts.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) { t.handleMessage(msg) })
	return opts
}

func (t *MQTTTransport) handleConnect() {
	t.logger.Info("MQTT connection established",
		zap.String("broker", t.cfg.Broker),
		zap.String("clientID", t.clientID))
	t.emitLifecycle(domain.TransportEvent{Kind: domain.EventConnected})
}

func (t *MQTTTransport) handleConnectionLost(err error) {
	t.logger.Warn("MQTT connection lost, will auto-reconnect",
		zap.String("broker", t.cfg.Broker),
		zap.Duration("maxRetryInterval", maxReconnectInterval),
		zap.Error(err))
	t.emitLifecycle(domain.TransportEvent{Kind: domain.EventDisconnected, Err: err})
}

// handleMessage forwards an incoming message without blocking paho's router
func (t *MQTTTransport) handleMessage(msg mqtt.Message) {
	ev := domain.TransportEvent{
		Kind: domain.EventMessage,
		Message: domain.Message{
			Topic:     msg.Topic(),
			Payload:   msg.Payload(),
			QoS:       msg.Qos(),
			Duplicate: msg.Duplicate(),
			Retained:  msg.Retained(),
			MessageID: msg.MessageID(),
		},
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}

	select {
	case t.events <- ev:
		t.logger.Debug("Message received",
			zap.String("topic", ev.Message.Topic),
			zap.Int("bytes", len(ev.Message.Payload)))
	default:
		t.logChannelFullWarning(ev.Message.Topic)
	}
}

// emitLifecycle delivers connection changes reliably; only Stop can abandon them
func (t *MQTTTransport) emitLifecycle(ev domain.TransportEvent) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}

	select {
	case t.events <- ev:
	case <-t.done:
	}
}

// logChannelFullWarning logs a dropped message at most once per interval
func (t *MQTTTransport) logChannelFullWarning(topic string) {
	t.warnMu.Lock()
	defer t.warnMu.Unlock()

	const warningInterval = 5 * time.Second
	now := time.Now()

	if now.Sub(t.lastDropWarning) >= warningInterval {
		t.logger.Warn("Events channel full, dropping message",
			zap.String("topic", topic),
			zap.Int("buffer", cap(t.events)))
		t.lastDropWarning = now
	}
}
