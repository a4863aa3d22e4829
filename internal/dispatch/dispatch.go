// Package dispatch delivers best-effort push events to riders and drivers.
// Delivery failures are the caller's to log, never to propagate.
package dispatch

import (
	"log/slog"

	"github.com/example/voyago/internal/models"
)

// Sink pushes one event to one recipient.
type Sink interface {
	Push(event models.Event, recipientID string) error
}

// LogSink writes events to the log instead of delivering them. Used in local
// runs and tests where no push channel is configured.
type LogSink struct {
	Logger *slog.Logger
}

func (l *LogSink) Push(event models.Event, recipientID string) error {
	l.Logger.Info("notification", "kind", event.Kind, "recipient", recipientID, "fields", event.Fields)
	return nil
}
