// Package mail delivers rendered digests. Two transports exist: SMTP through
// go-mail and the SendGrid v3 HTTP API. Both retry transient failures through
// the shared retry policy.
package mail

import (
	"context"
	netmail "net/mail"
	"strings"

	"github.com/cockroachdb/errors"
	gomail "github.com/wneessen/go-mail"

	"jobmate/jobsync/internal/config"
	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/retry"
)

// Transport sends one HTML message to one recipient.
type Transport interface {
	Send(ctx context.Context, to, subject, html string) error
	// Verify checks that the provider is reachable and accepts our
	// credentials, without sending anything.
	Verify(ctx context.Context) error
}

// New builds the transport selected by cfg.Provider.
func New(cfg config.MailConfig, policy retry.Policy, log *logger.Logger) (Transport, error) {
	switch strings.ToLower(cfg.Provider) {
	case "sendgrid":
		return NewSendGrid(SendGridConfig{APIKey: cfg.SendGridAPIKey, From: cfg.From}, policy, log)
	case "", "smtp":
		return NewSMTP(SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			From:     cfg.From,
		}, policy, log)
	default:
		return nil, errors.Newf("unknown mail provider %q", cfg.Provider)
	}
}

// Transient reports whether a send failure is worth retrying: network
// errors, timeouts, 408/429/5xx API responses and 4xx SMTP replies.
func Transient(err error) bool {
	if retry.IsRetryable(err) {
		return true
	}
	var se *gomail.SendError
	return errors.As(err, &se) && se.IsTemp()
}

// withTransient narrows policy to transient errors.
func withTransient(p retry.Policy) retry.Policy {
	p.RetryIf = Transient
	return p
}

func parseSender(from string) (*netmail.Address, error) {
	if strings.TrimSpace(from) == "" {
		return nil, errors.New("mail: sender address required")
	}
	addr, err := netmail.ParseAddress(from)
	if err != nil {
		return nil, errors.Wrapf(err, "mail: invalid sender %q", from)
	}
	return addr, nil
}
