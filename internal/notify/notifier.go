package notify

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	appName        = "ledmatrix"
	alertIcon      = "dialog-warning"
	alertTimeoutMs = 10000
)

// DesktopNotifier raises a desktop notification for every alert program seen.
// Repeated alerts with the same identifier replace the earlier notification.
type DesktopNotifier struct {
	logger *zap.Logger
	client NotificationClient

	mu    sync.Mutex
	shown map[string]uint32
}

// NewDesktopNotifier wraps a notification client
func NewDesktopNotifier(logger *zap.Logger, client NotificationClient) *DesktopNotifier {
	return &DesktopNotifier{
		logger: logger,
		client: client,
		shown:  make(map[string]uint32),
	}
}

// Alert shows or refreshes the notification for program id
func (n *DesktopNotifier) Alert(id string, frames int, duration time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	summary := "LED alert"
	if id != "" {
		summary = fmt.Sprintf("LED alert: %s", id)
	}
	body := fmt.Sprintf("%d frames, %s", frames, duration)

	notificationID, err := n.client.Notify(appName, n.shown[id], alertIcon, summary, body, alertTimeoutMs)
	if err != nil {
		return fmt.Errorf("desktop notification for %q: %w", id, err)
	}
	n.shown[id] = notificationID

	n.logger.Debug("Desktop notification shown",
		zap.String("program", id),
		zap.Uint32("notificationID", notificationID))
	return nil
}

// Close releases the D-Bus connection
func (n *DesktopNotifier) Close() error {
	return n.client.Close()
}
