package transport

import (
	"errors"
	"strings"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/genricoloni/ledmatrix/internal/config"
	"github.com/genricoloni/ledmatrix/internal/domain"
	"github.com/genricoloni/ledmatrix/internal/transport/mocks"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// fakeToken is an already completed mqtt.Token
type fakeToken struct {
	err  error
	done chan struct{}
}

func completedToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (f *fakeToken) Wait() bool                     { return true }
func (f *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (f *fakeToken) Done() <-chan struct{}          { return f.done }
func (f *fakeToken) Error() error                   { return f.err }

// pendingToken never completes
type pendingToken struct{}

func (pendingToken) Wait() bool                     { return false }
func (pendingToken) WaitTimeout(time.Duration) bool { return false }
func (pendingToken) Done() <-chan struct{}          { return make(chan struct{}) }
func (pendingToken) Error() error                   { return nil }

type fakeMessage struct {
	topic    string
	payload  []byte
	qos      byte
	dup      bool
	retained bool
	id       uint16
}

func (m *fakeMessage) Duplicate() bool   { return m.dup }
func (m *fakeMessage) Qos() byte         { return m.qos }
func (m *fakeMessage) Retained() bool    { return m.retained }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return m.id }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

func newTestTransport(logger *zap.Logger, client BrokerClient) *MQTTTransport {
	cfg := config.Default()
	cfg.MQTT.ClientID = "test-client"
	tr := NewMQTTTransport(cfg, logger)
	tr.newClient = func(*mqtt.ClientOptions) BrokerClient { return client }
	return tr
}

func TestNewMQTTTransport_ClientID(t *testing.T) {
	cfg := config.Default()
	tr := NewMQTTTransport(cfg, zap.NewNop())
	if !strings.HasPrefix(tr.ClientID(), "ledmatrix-") || len(tr.ClientID()) != len("ledmatrix-")+8 {
		t.Errorf("unexpected generated client id %q", tr.ClientID())
	}

	other := NewMQTTTransport(cfg, zap.NewNop())
	if other.ClientID() == tr.ClientID() {
		t.Error("generated client ids should differ between instances")
	}

	cfg.MQTT.ClientID = "sign-1"
	if got := NewMQTTTransport(cfg, zap.NewNop()).ClientID(); got != "sign-1" {
		t.Errorf("configured client id: want sign-1, got %q", got)
	}
}

func TestClientOptions(t *testing.T) {
	cfg := config.Default()
	cfg.MQTT.Broker = "tcp://broker.lan:1883"
	cfg.MQTT.ClientID = "sign-1"
	cfg.MQTT.Username = "led"
	cfg.MQTT.Password = "secret"
	cfg.MQTT.KeepAliveS = 30

	opts := NewMQTTTransport(cfg, zap.NewNop()).clientOptions()

	if len(opts.Servers) != 1 || opts.Servers[0].String() != "tcp://broker.lan:1883" {
		t.Errorf("unexpected servers %v", opts.Servers)
	}
	if opts.ClientID != "sign-1" || opts.Username != "led" || opts.Password != "secret" {
		t.Errorf("unexpected identity %q/%q", opts.ClientID, opts.Username)
	}
	if !opts.AutoReconnect || !opts.ConnectRetry {
		t.Error("reconnect and connect retry should be enabled")
	}
	if opts.MaxReconnectInterval != maxReconnectInterval || opts.ConnectRetryInterval != connectRetryInterval {
		t.Errorf("unexpected retry intervals %v/%v", opts.ConnectRetryInterval, opts.MaxReconnectInterval)
	}
	if opts.KeepAlive != 30 {
		t.Errorf("keepalive: want 30, got %d", opts.KeepAlive)
	}
}

func TestStartStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBrokerClient(ctrl)
	client.EXPECT().Connect().Return(completedToken(nil))
	client.EXPECT().Disconnect(uint(disconnectQuiesceMs))

	tr := newTestTransport(zap.NewNop(), client)

	if err := tr.Start(testContext(t)); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	// Second start is a no-op
	if err := tr.Start(testContext(t)); err != nil {
		t.Fatalf("second start failed: %v", err)
	}
	if err := tr.Stop(testContext(t)); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	if _, ok := <-tr.Events(); ok {
		t.Error("events channel should be closed after stop")
	}
	if err := tr.Start(testContext(t)); !errors.Is(err, ErrStopped) {
		t.Errorf("restart after stop: want ErrStopped, got %v", err)
	}
	// Second stop is a no-op
	if err := tr.Stop(testContext(t)); err != nil {
		t.Errorf("second stop failed: %v", err)
	}
}

func TestStart_ConnectFailureIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBrokerClient(ctrl)
	client.EXPECT().Connect().Return(completedToken(errors.New("not authorized")))
	client.EXPECT().Disconnect(gomock.Any())

	tr := newTestTransport(zap.New(core), client)
	if err := tr.Start(testContext(t)); err != nil {
		t.Fatalf("start should not fail synchronously: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for logs.FilterMessage("MQTT connect failed").Len() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if logs.FilterMessage("MQTT connect failed").Len() != 1 {
		t.Errorf("expected connect failure to be logged, got %v", logs.All())
	}

	if err := tr.Stop(testContext(t)); err != nil {
		t.Fatal(err)
	}
}

func TestSubscribe(t *testing.T) {
	const topic = "ledslie/sequences/1/+"

	tests := []struct {
		name          string
		setupMock     func(*mocks.MockBrokerClient)
		expectedError error
		errorContains string
	}{
		{
			name: "Success - Subscribed",
			setupMock: func(m *mocks.MockBrokerClient) {
				m.EXPECT().IsConnectionOpen().Return(true)
				m.EXPECT().Subscribe(topic, byte(1), gomock.Nil()).Return(completedToken(nil))
			},
		},
		{
			name: "Error - Not Connected",
			setupMock: func(m *mocks.MockBrokerClient) {
				m.EXPECT().IsConnectionOpen().Return(false)
			},
			expectedError: ErrNotConnected,
		},
		{
			name: "Error - Broker Refused",
			setupMock: func(m *mocks.MockBrokerClient) {
				m.EXPECT().IsConnectionOpen().Return(true)
				m.EXPECT().Subscribe(topic, byte(1), gomock.Nil()).Return(completedToken(errors.New("refused")))
			},
			errorContains: "refused",
		},
		{
			name: "Error - Timeout",
			setupMock: func(m *mocks.MockBrokerClient) {
				m.EXPECT().IsConnectionOpen().Return(true)
				m.EXPECT().Subscribe(topic, byte(1), gomock.Nil()).Return(pendingToken{})
			},
			errorContains: "timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			client := mocks.NewMockBrokerClient(ctrl)
			tt.setupMock(client)

			tr := newTestTransport(zap.NewNop(), client)
			tr.client = client

			err := tr.Subscribe(topic, 1)
			switch {
			case tt.expectedError != nil:
				if !errors.Is(err, tt.expectedError) {
					t.Errorf("want %v, got %v", tt.expectedError, err)
				}
			case tt.errorContains != "":
				if err == nil || !strings.Contains(err.Error(), tt.errorContains) {
					t.Errorf("expected error containing %q, got %v", tt.errorContains, err)
				}
			default:
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
			}
		})
	}
}

func TestSubscribe_BeforeStart(t *testing.T) {
	tr := NewMQTTTransport(config.Default(), zap.NewNop())
	if err := tr.Subscribe("ledslie/#", 0); !errors.Is(err, ErrNotConnected) {
		t.Errorf("want ErrNotConnected, got %v", err)
	}
	if tr.IsConnected() {
		t.Error("transport should not report connected before start")
	}
}

func TestPublish(t *testing.T) {
	payload := []byte{0, 1, 2, 3}

	tests := []struct {
		name          string
		setupMock     func(*mocks.MockBrokerClient)
		expectedError error
		expectedLog   string
	}{
		{
			name: "Success - Queued",
			setupMock: func(m *mocks.MockBrokerClient) {
				m.EXPECT().IsConnectionOpen().Return(true)
				m.EXPECT().Publish("ledslie/frames/1", byte(0), false, payload).Return(completedToken(nil))
			},
		},
		{
			name: "Error - Not Connected",
			setupMock: func(m *mocks.MockBrokerClient) {
				m.EXPECT().IsConnectionOpen().Return(false)
			},
			expectedError: ErrNotConnected,
		},
		{
			name: "Async Failure - Logged Not Returned",
			setupMock: func(m *mocks.MockBrokerClient) {
				m.EXPECT().IsConnectionOpen().Return(true)
				m.EXPECT().Publish("ledslie/frames/1", byte(0), false, payload).Return(completedToken(errors.New("connection reset")))
			},
			expectedLog: "Publish failed",
		},
		{
			name: "Async Timeout - Logged Not Returned",
			setupMock: func(m *mocks.MockBrokerClient) {
				m.EXPECT().IsConnectionOpen().Return(true)
				m.EXPECT().Publish("ledslie/frames/1", byte(0), false, payload).Return(pendingToken{})
			},
			expectedLog: "Publish not confirmed in time",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.WarnLevel)
			ctrl := gomock.NewController(t)
			client := mocks.NewMockBrokerClient(ctrl)
			tt.setupMock(client)

			tr := newTestTransport(zap.New(core), client)
			tr.client = client

			err := tr.Publish("ledslie/frames/1", 0, false, payload)
			tr.wg.Wait()

			if tt.expectedError != nil {
				if !errors.Is(err, tt.expectedError) {
					t.Errorf("want %v, got %v", tt.expectedError, err)
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.expectedLog != "" && logs.FilterMessage(tt.expectedLog).Len() != 1 {
				t.Errorf("expected log %q, got %v", tt.expectedLog, logs.All())
			}
			if tt.expectedLog == "" && logs.Len() != 0 {
				t.Errorf("unexpected logs: %v", logs.All())
			}
		})
	}
}

func TestHandleMessage(t *testing.T) {
	tr := NewMQTTTransport(config.Default(), zap.NewNop())

	tr.handleMessage(&fakeMessage{
		topic:    "ledslie/sequences/1/clock",
		payload:  []byte("[]"),
		qos:      1,
		dup:      true,
		retained: true,
		id:       42,
	})

	select {
	case ev := <-tr.Events():
		if ev.Kind != domain.EventMessage {
			t.Fatalf("kind: want message, got %v", ev.Kind)
		}
		want := domain.Message{
			Topic:     "ledslie/sequences/1/clock",
			Payload:   []byte("[]"),
			QoS:       1,
			Duplicate: true,
			Retained:  true,
			MessageID: 42,
		}
		got := ev.Message
		if got.Topic != want.Topic || string(got.Payload) != string(want.Payload) ||
			got.QoS != want.QoS || got.Duplicate != want.Duplicate ||
			got.Retained != want.Retained || got.MessageID != want.MessageID {
			t.Errorf("want %+v, got %+v", want, got)
		}
	case <-time.After(time.Second):
		t.Fatal("Timeout: message was not forwarded")
	}
}

func TestHandleMessage_FullChannelDrops(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	tr := NewMQTTTransport(config.Default(), zap.New(core))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < eventBuffer+10; i++ {
			tr.handleMessage(&fakeMessage{topic: "ledslie/sequences/1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("handleMessage blocked on a full channel")
	}

	if len(tr.events) != eventBuffer {
		t.Errorf("buffer: want %d queued, got %d", eventBuffer, len(tr.events))
	}
	// Rate limited to one warning
	if logs.FilterMessage("Events channel full, dropping message").Len() != 1 {
		t.Errorf("expected exactly one drop warning, got %d", logs.Len())
	}
}

func TestConnectionEvents(t *testing.T) {
	tr := NewMQTTTransport(config.Default(), zap.NewNop())

	go tr.handleConnect()
	ev := <-tr.Events()
	if ev.Kind != domain.EventConnected {
		t.Errorf("want connected, got %v", ev.Kind)
	}

	lost := errors.New("EOF")
	go tr.handleConnectionLost(lost)
	ev = <-tr.Events()
	if ev.Kind != domain.EventDisconnected || !errors.Is(ev.Err, lost) {
		t.Errorf("want disconnected with cause, got %+v", ev)
	}
}

func TestLifecycleEventsIgnoredAfterStop(t *testing.T) {
	ctrl := gomock.NewController(t)
	client := mocks.NewMockBrokerClient(ctrl)
	client.EXPECT().Connect().Return(completedToken(nil))
	client.EXPECT().Disconnect(gomock.Any())

	tr := newTestTransport(zap.NewNop(), client)
	if err := tr.Start(testContext(t)); err != nil {
		t.Fatal(err)
	}
	if err := tr.Stop(testContext(t)); err != nil {
		t.Fatal(err)
	}

	// Must neither panic on the closed channel nor block
	tr.handleConnect()
	tr.handleMessage(&fakeMessage{topic: "late"})
}
