package notify

import (
	"context"
	"log/slog"

	"github.com/crewbase/crewsync/internal/event"
)

// Notifier is the single abstract sink for operator notifications. Concrete
// delivery (log line, web push, webhook) is pluggable.
type Notifier interface {
	Notify(ctx context.Context, title, message string, severity event.Severity) error
}

// SlogNotifier delivers notifications as structured log lines.
type SlogNotifier struct{}

func (SlogNotifier) Notify(ctx context.Context, title, message string, severity event.Severity) error {
	switch severity {
	case event.SeverityCritical:
		slog.ErrorContext(ctx, "notification", "title", title, "message", message, "severity", severity.String())
	case event.SeverityWarning:
		slog.WarnContext(ctx, "notification", "title", title, "message", message, "severity", severity.String())
	default:
		slog.InfoContext(ctx, "notification", "title", title, "message", message, "severity", severity.String())
	}
	return nil
}

// Multi fans a notification out to several sinks. Delivery errors are
// logged and swallowed: a failing sink never blocks the pipeline that
// produced the notification, and never prevents delivery to other sinks.
type Multi struct {
	sinks []Notifier
}

func NewMulti(sinks ...Notifier) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) Notify(ctx context.Context, title, message string, severity event.Severity) error {
	for _, sink := range m.sinks {
		if err := sink.Notify(ctx, title, message, severity); err != nil {
			slog.Error("notification delivery failed", "title", title, "error", err)
		}
	}
	return nil
}
