package domain

import (
	"context"
	"time"
)

// Transport defines the publish/subscribe collaborator the scheduler talks to.
// Implementations own the connection lifecycle and reconnect on their own.
//
//go:generate mockgen -destination=mocks/transport_mock.go -package=mocks github.com/genricoloni/ledmatrix/internal/domain Transport
type Transport interface {
	// Start begins connecting to the broker. It returns immediately;
	// connection state is reported on Events().
	Start(ctx context.Context) error

	// Stop disconnects and closes the events channel
	Stop(ctx context.Context) error

	// Subscribe registers interest in a topic filter. Messages arrive on Events().
	Subscribe(topic string, qos byte) error

	// Publish sends payload without waiting for delivery.
	// Delivery failures are reported asynchronously by the implementation.
	Publish(topic string, qos byte, retain bool, payload []byte) error

	// IsConnected reports the current connection state
	IsConnected() bool

	// Events returns a read-only channel of connection and message events
	Events() <-chan TransportEvent
}

// Clock supplies the current time. Tests replace it with a controllable stub.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock
type SystemClock struct{}

// Now returns time.Now()
func (SystemClock) Now() time.Time {
	return time.Now()
}

// NewSystemClock returns the wall clock as a Clock
func NewSystemClock() Clock {
	return SystemClock{}
}
