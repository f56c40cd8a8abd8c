package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"

	"github.com/anjiri1684/mentor_payouts/logging"
)

const defaultBrevoURL = "https://api.brevo.com/v3/smtp/email"

type brevoPayload struct {
	Sender      map[string]string   `json:"sender"`
	To          []map[string]string `json:"to"`
	Subject     string              `json:"subject"`
	HTMLContent string              `json:"htmlContent,omitempty"`
	TextContent string              `json:"textContent,omitempty"`
}

type BrevoConfig struct {
	APIKey      string
	SenderEmail string
	SenderName  string
	Endpoint    string
	Client      *http.Client
	MaxRetries  int
	Logger      logging.Logger
}

// BrevoMailer sends transactional email through the Brevo SMTP API.
type BrevoMailer struct {
	apiKey      string
	senderEmail string
	senderName  string
	endpoint    string
	client      *http.Client
	executor    failsafe.Executor[*http.Response]
	logger      logging.Logger
}

// NewBrevoMailer returns nil when the API key or sender are missing, so the
// caller can fall back to a LogMailer.
func NewBrevoMailer(cfg BrevoConfig) *BrevoMailer {
	if cfg.APIKey == "" || cfg.SenderEmail == "" {
		return nil
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultBrevoURL
	}
	if cfg.Client == nil {
		cfg.Client = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewLogger()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 2
	}

	retry := retrypolicy.NewBuilder[*http.Response]().
		WithBackoff(100*time.Millisecond, time.Second).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(func(_ *http.Response, err error) bool {
			var se *statusError
			return err != nil && (!errors.As(err, &se) || se.retryable())
		}).
		Build()

	return &BrevoMailer{
		apiKey:      cfg.APIKey,
		senderEmail: cfg.SenderEmail,
		senderName:  cfg.SenderName,
		endpoint:    cfg.Endpoint,
		client:      cfg.Client,
		executor:    failsafe.With[*http.Response](retry),
		logger:      cfg.Logger,
	}
}

type statusError struct {
	code int
}

func (e *statusError) Error() string { return fmt.Sprintf("brevo returned status %d", e.code) }

func (e *statusError) retryable() bool {
	return e.code >= 500 || e.code == http.StatusTooManyRequests
}

func (s *BrevoMailer) Send(ctx context.Context, email Email) error {
	toEmail := strings.TrimSpace(email.To)
	if toEmail == "" || !strings.Contains(toEmail, "@") {
		return &NotificationError{To: toEmail, Err: ErrInvalidRecipient}
	}

	recipientName := email.ToName
	if recipientName == "" {
		recipientName = toEmail[:strings.Index(toEmail, "@")]
	}

	payload := brevoPayload{
		Sender:  map[string]string{"name": s.senderName, "email": s.senderEmail},
		To:      []map[string]string{{"email": toEmail, "name": recipientName}},
		Subject: email.Subject,
	}
	if email.HTML {
		payload.HTMLContent = email.Body
	} else {
		payload.TextContent = email.Body
		payload.HTMLContent = "<pre>" + html.EscapeString(email.Body) + "</pre>"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return &NotificationError{To: toEmail, Err: fmt.Errorf("failed to marshal payload: %w", err)}
	}

	resp, err := s.executor.WithContext(ctx).Get(func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, "POST", s.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("accept", "application/json")
		req.Header.Set("api-key", s.apiKey)
		req.Header.Set("content-type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusCreated {
			bodyBytes, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			s.logger.WithFields(logging.Fields{
				"status": resp.StatusCode,
				"body":   string(bodyBytes),
			}).Warn("Brevo API error")
			return nil, &statusError{code: resp.StatusCode}
		}
		return resp, nil
	})
	if err != nil {
		return &NotificationError{To: toEmail, Err: err}
	}
	resp.Body.Close()

	s.logger.WithField("to", toEmail).Debug("Email sent")
	return nil
}
