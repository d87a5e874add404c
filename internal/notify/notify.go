// Package notify shows desktop notifications for recording events.
package notify

import (
	"log/slog"

	"github.com/gen2brain/beeep"
)

// Notifier delivers a short message to the user
type Notifier interface {
	Notify(title, message string)
}

// New returns a desktop notifier, or one that does nothing when disabled
func New(enabled bool) Notifier {
	if !enabled {
		return Noop{}
	}
	return Desktop{}
}

// Desktop shows notifications through the host notification center
type Desktop struct{}

// Notify implements Notifier. Failures are logged and otherwise ignored.
func (Desktop) Notify(title, message string) {
	if err := beeep.Notify(title, message, ""); err != nil {
		slog.Debug("Failed to show notification", "title", title, "error", err)
	}
}

// Noop discards notifications
type Noop struct{}

func (Noop) Notify(string, string) {}
