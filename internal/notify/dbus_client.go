package notify

import (
	"github.com/godbus/dbus/v5"
)

const (
	notificationsService = "org.freedesktop.Notifications"
	notificationsPath    = "/org/freedesktop/Notifications"
	notifyMethod         = "org.freedesktop.Notifications.Notify"
)

// NotificationClient defines the desktop notification call.
// This abstraction allows us to mock D-Bus interactions in tests.
//
//go:generate mockgen -destination=mocks/notification_client_mock.go -package=mocks github.com/genricoloni/ledmatrix/internal/notify NotificationClient
type NotificationClient interface {
	// Notify shows a notification and returns its id. A non-zero
	// replacesID updates that notification in place.
	Notify(appName string, replacesID uint32, icon, summary, body string, timeoutMs int32) (uint32, error)

	// Close closes the D-Bus connection
	Close() error
}

// StdNotificationClient is the real implementation using godbus
type StdNotificationClient struct {
	conn *dbus.Conn
}

// NewStdNotificationClient connects to the session bus
func NewStdNotificationClient() (*StdNotificationClient, error) {
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, err
	}
	return &StdNotificationClient{conn: conn}, nil
}

// Notify calls org.freedesktop.Notifications.Notify
func (c *StdNotificationClient) Notify(appName string, replacesID uint32, icon, summary, body string, timeoutMs int32) (uint32, error) {
	obj := c.conn.Object(notificationsService, dbus.ObjectPath(notificationsPath))
	var id uint32
	err := obj.Call(notifyMethod, 0,
		appName,
		replacesID,
		icon,
		summary,
		body,
		[]string{},
		map[string]dbus.Variant{"urgency": dbus.MakeVariant(byte(2))},
		timeoutMs,
	).Store(&id)
	return id, err
}

// Close closes the D-Bus connection
func (c *StdNotificationClient) Close() error {
	return c.conn.Close()
}
