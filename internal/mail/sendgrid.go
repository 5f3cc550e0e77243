package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/retry"
)

const defaultSendGridURL = "https://api.sendgrid.com"

// SendGridConfig configures the SendGrid v3 API transport.
type SendGridConfig struct {
	APIKey  string
	BaseURL string // defaults to https://api.sendgrid.com
	From    string
	Timeout time.Duration
}

// SendGrid sends through the SendGrid v3 mail/send endpoint.
type SendGrid struct {
	cfg        SendGridConfig
	from       emailAddress
	httpClient *http.Client
	policy     retry.Policy
	log        *logger.Logger
}

// NewSendGrid validates cfg and returns a SendGrid transport.
func NewSendGrid(cfg SendGridConfig, policy retry.Policy, log *logger.Logger) (*SendGrid, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("sendgrid: api key required")
	}
	from, err := parseSender(cfg.From)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = defaultSendGridURL
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &SendGrid{
		cfg:        cfg,
		from:       emailAddress{Email: from.Address, Name: from.Name},
		httpClient: &http.Client{Timeout: cfg.Timeout},
		policy:     withTransient(policy),
		log:        log.With("transport", "sendgrid"),
	}, nil
}

// ─── Wire types ──────────────────────────────────────────────────────────────

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type mailSendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []mailContent     `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type mailContent struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

type errorItem struct {
	Message string `json:"message"`
	Field   any    `json:"field,omitempty"`
}

type errorResponse struct {
	Errors []errorItem `json:"errors"`
}

// HTTPError is a non-2xx SendGrid response.
type HTTPError struct {
	StatusCode int
	Body       string
	Errors     []errorItem
}

func (e *HTTPError) Error() string {
	if len(e.Errors) > 0 && strings.TrimSpace(e.Errors[0].Message) != "" {
		return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, e.Errors[0].Message)
	}
	msg := strings.TrimSpace(e.Body)
	if msg == "" {
		msg = "<empty body>"
	}
	if len(msg) > 500 {
		msg = msg[:500] + "..."
	}
	return fmt.Sprintf("sendgrid http %d: %s", e.StatusCode, msg)
}

// HTTPStatusCode lets retry.IsRetryable classify the response.
func (e *HTTPError) HTTPStatusCode() int { return e.StatusCode }

// ─── Transport ───────────────────────────────────────────────────────────────

// Verify checks the API key against the scopes endpoint.
func (s *SendGrid) Verify(ctx context.Context) error {
	if err := s.do(ctx, http.MethodGet, "/v3/scopes", nil); err != nil {
		return errors.Wrap(err, "sendgrid: verify")
	}
	return nil
}

// Send delivers one HTML message, retrying transient failures.
func (s *SendGrid) Send(ctx context.Context, to, subject, html string) error {
	to = strings.TrimSpace(to)
	if to == "" {
		return errors.New("sendgrid: recipient required")
	}
	wire := mailSendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: to}}}},
		From:             s.from,
		Subject:          subject,
		Content:          []mailContent{{Type: "text/html", Value: html}},
	}
	return s.policy.Do(ctx, "sendgrid send", func(ctx context.Context) error {
		return s.do(ctx, http.MethodPost, "/v3/mail/send", wire)
	})
}

func (s *SendGrid) do(ctx context.Context, method, path string, body any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return errors.Wrap(err, "encode request")
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, &buf)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	raw, readErr := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		he := &HTTPError{StatusCode: resp.StatusCode, Body: string(raw)}
		var er errorResponse
		if json.Unmarshal(raw, &er) == nil && len(er.Errors) > 0 {
			he.Errors = er.Errors
		}
		return he
	}
	if readErr != nil {
		s.log.Debug("sendgrid response body unreadable", "path", path, "error", readErr)
	}
	return nil
}
