// Package retry wraps fallible operations with exponential backoff. Every
// outbound network call in jobsync goes through Policy.Do.
package retry

import (
	"context"
	"fmt"
	"math/rand"
	"net"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"

	"jobmate/jobsync/internal/logger"
)

// Policy describes how an operation is retried. The wait before attempt n+1
// is BaseDelay * 2^(n-1).
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Jitter spreads each wait by +/-20% so that pipelines failing on the
	// same outage do not retry in lockstep. Off unless configured.
	Jitter bool
	// RetryIf reports whether err is worth another attempt. Nil retries
	// every error.
	RetryIf func(err error) bool
	Log     *logger.Logger

	wait func(ctx context.Context, d time.Duration) error
}

// Default mirrors the scraper defaults: 3 attempts starting at 2s.
func Default(log *logger.Logger) Policy {
	return Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second, Log: log}
}

// Do invokes op until it succeeds, the attempts are exhausted, RetryIf
// rejects the error, or ctx is done. The last error is returned.
func (p Policy) Do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	wait := p.wait
	if wait == nil {
		wait = sleep
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = op(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		if p.RetryIf != nil && !p.RetryIf(err) {
			return err
		}

		delay := Backoff(p.BaseDelay, attempt)
		if p.Jitter {
			delay = jitter(delay)
		}
		if p.Log != nil {
			p.Log.Warn("retrying after failure",
				"op", name, "attempt", attempt, "max_attempts", attempts,
				"wait", delay.String(), "error", err)
		}
		if werr := wait(ctx, delay); werr != nil {
			return errors.Wrapf(werr, "%s: interrupted after attempt %d (last error: %v)", name, attempt, err)
		}
	}
	return errors.Wrapf(err, "%s: gave up after %d attempts", name, attempts)
}

// Backoff returns base * 2^(attempt-1).
func Backoff(base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return base * time.Duration(1<<uint(attempt-1))
}

func jitter(base time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}
	delta := float64(base) * 0.2
	return time.Duration(float64(base) - delta + rand.Float64()*2*delta)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// StatusError is returned for non-2xx HTTP responses.
type StatusError struct {
	Code int
	URL  string
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		n := 200
		for n > 0 && !utf8.RuneStart(body[n]) {
			n--
		}
		body = body[:n] + "..."
	}
	return fmt.Sprintf("http %s: status %d: %s", e.URL, e.Code, body)
}

func (e *StatusError) HTTPStatusCode() int { return e.Code }

// IsRetryableHTTPStatus reports 408, 429 and 5xx as transient.
func IsRetryableHTTPStatus(code int) bool {
	if code == 408 || code == 429 {
		return true
	}
	return code >= 500 && code <= 599
}

// IsRetryable classifies transient failures: timeouts, network errors and
// retryable HTTP statuses. Malformed payloads and 4xx are permanent.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var sc interface{ HTTPStatusCode() int }
	if errors.As(err, &sc) {
		return IsRetryableHTTPStatus(sc.HTTPStatusCode())
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
