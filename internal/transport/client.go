package transport

import (
	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// BrokerClient is the subset of the paho client the transport uses.
// This abstraction allows us to mock broker interactions in tests.
//
//go:generate mockgen -destination=mocks/broker_client_mock.go -package=mocks github.com/genricoloni/ledmatrix/internal/transport BrokerClient
type BrokerClient interface {
	// Connect starts connecting; the token completes once the session is up
	Connect() mqtt.Token

	// Disconnect waits up to quiesce milliseconds for in-flight work
	Disconnect(quiesce uint)

	// IsConnectionOpen reports whether the network connection is usable
	IsConnectionOpen() bool

	// Subscribe registers a topic filter. A nil callback routes messages
	// to the default publish handler.
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token

	// Publish queues a message for delivery
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// newPahoClient creates the real client from options
func newPahoClient(opts *mqtt.ClientOptions) BrokerClient {
	return mqtt.NewClient(opts)
}
