package mail

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	gomail "github.com/wneessen/go-mail"

	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/retry"
)

const defaultSMTPTimeout = 15 * time.Second

// SMTPConfig configures an authenticated submission server.
type SMTPConfig struct {
	Host     string
	Port     int // 587 uses STARTTLS, 465 implicit TLS
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// SMTP sends through an SMTP submission server. Every send opens its own
// connection so concurrent sends never share protocol state.
type SMTP struct {
	cfg    SMTPConfig
	opts   []gomail.Option
	policy retry.Policy
	log    *logger.Logger
}

// NewSMTP validates cfg and returns an SMTP transport.
func NewSMTP(cfg SMTPConfig, policy retry.Policy, log *logger.Logger) (*SMTP, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp: host required")
	}
	if _, err := parseSender(cfg.From); err != nil {
		return nil, err
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}

	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithTimeout(cfg.Timeout),
		gomail.WithTLSPolicy(gomail.TLSMandatory),
	}
	if cfg.Port == 465 {
		opts = append(opts, gomail.WithSSL())
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	return &SMTP{
		cfg:    cfg,
		opts:   opts,
		policy: withTransient(policy),
		log:    log.With("transport", "smtp", "host", cfg.Host),
	}, nil
}

func (s *SMTP) client() (*gomail.Client, error) {
	c, err := gomail.NewClient(s.cfg.Host, s.opts...)
	if err != nil {
		return nil, errors.Wrap(err, "smtp: build client")
	}
	return c, nil
}

// Verify dials, negotiates TLS and authenticates, then disconnects.
func (s *SMTP) Verify(ctx context.Context) error {
	c, err := s.client()
	if err != nil {
		return err
	}
	if err := c.DialWithContext(ctx); err != nil {
		return errors.Wrapf(err, "smtp: verify %s:%d", s.cfg.Host, s.cfg.Port)
	}
	if err := c.Close(); err != nil {
		s.log.Warn("smtp close after verify failed", "error", err)
	}
	return nil
}

// Send delivers one HTML message, retrying transient failures.
func (s *SMTP) Send(ctx context.Context, to, subject, html string) error {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return errors.Wrap(err, "smtp: sender")
	}
	if err := m.To(to); err != nil {
		return errors.Wrap(err, "smtp: recipient")
	}
	m.Subject(subject)
	m.SetBodyString(gomail.TypeTextHTML, html)

	c, err := s.client()
	if err != nil {
		return err
	}
	return s.policy.Do(ctx, "smtp send", func(ctx context.Context) error {
		return c.DialAndSendWithContext(ctx, m)
	})
}
