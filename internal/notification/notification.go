package notification

import (
	"context"
	"log/slog"

	"github.com/onlyfriends/onlyfriends/internal/phone"
)

const (
	// KindVerificationCode carries a one-time code to a phone number.
	KindVerificationCode = "verification_code"
	// KindWelcome is sent once an account finishes registration.
	KindWelcome = "welcome"
)

// Message describes a notification payload. Destination is a canonical phone number.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger. It stands in
// for a real SMS sender in development.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message with a masked destination.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		slog.String("kind", message.Kind),
		slog.String("destination", phone.Mask(message.Destination)),
		slog.String("body", message.Body),
	)
	return nil
}

// Nop drops every message.
type Nop struct{}

// Send implements Notifier.
func (Nop) Send(context.Context, Message) error { return nil }
