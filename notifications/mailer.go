package notifications

import (
	"context"
	"errors"
	"fmt"

	"github.com/anjiri1684/mentor_payouts/logging"
)

var ErrInvalidRecipient = errors.New("invalid recipient email")

type Email struct {
	To      string
	ToName  string
	Subject string
	Body    string
	// HTML marks Body as an HTML document rather than plain text.
	HTML bool
}

// Mailer delivers a single email. Delivery is best effort: callers log a
// returned error and move on.
type Mailer interface {
	Send(ctx context.Context, email Email) error
}

type NotificationError struct {
	To  string
	Err error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notify %s: %v", e.To, e.Err)
}

func (e *NotificationError) Unwrap() error { return e.Err }

// LogMailer writes emails to the log instead of sending them. Used when no
// email provider is configured.
type LogMailer struct {
	Logger logging.Logger
}

func (m *LogMailer) Send(_ context.Context, email Email) error {
	m.Logger.WithFields(logging.Fields{
		"to":      email.To,
		"subject": email.Subject,
	}).Info("Email provider not configured, logging email instead of sending")
	return nil
}
