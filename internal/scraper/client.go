package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/time/rate"

	"jobmate/jobsync/internal/retry"
)

const (
	// DefaultUserAgent is sent on every request; several career sites reject
	// obvious bot agents.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	httpTimeout  = 15 * time.Second
	maxBodyBytes = 16 << 20
)

// Client is the HTTP client shared by the JSON adapters: one timeout, one
// retry policy, one politeness limiter.
type Client struct {
	http      *http.Client
	policy    retry.Policy
	limiter   *rate.Limiter
	userAgent string
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithRateLimit caps outbound requests per second. rate.Inf disables pacing.
func WithRateLimit(perSecond rate.Limit, burst int) ClientOption {
	return func(c *Client) { c.limiter = rate.NewLimiter(perSecond, burst) }
}

// NewClient builds a Client. Requests time out after timeout (15s when
// zero) and go through policy with transient-only retries.
func NewClient(timeout time.Duration, policy retry.Policy, opts ...ClientOption) *Client {
	if timeout <= 0 {
		timeout = httpTimeout
	}
	policy.RetryIf = retry.IsRetryable
	c := &Client{
		http:      &http.Client{Timeout: timeout},
		policy:    policy,
		limiter:   rate.NewLimiter(rate.Limit(2), 1),
		userAgent: DefaultUserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get fetches url with optional extra headers.
func (c *Client) Get(ctx context.Context, url string, headers map[string]string) (Page, error) {
	return c.do(ctx, http.MethodGet, url, nil, headers)
}

// PostJSON posts payload encoded as JSON.
func (c *Client) PostJSON(ctx context.Context, url string, payload interface{}, headers map[string]string) (Page, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return Page{}, errors.Wrap(err, "encode request body")
	}
	if headers == nil {
		headers = map[string]string{}
	}
	headers["Content-Type"] = "application/json"
	return c.do(ctx, http.MethodPost, url, body, headers)
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, headers map[string]string) (Page, error) {
	var page Page
	safe := redactQuery(url)
	err := c.policy.Do(ctx, method+" "+safe, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return errors.Wrap(err, "build request")
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json, text/html;q=0.9, */*;q=0.8")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			var ue *neturl.Error
			if errors.As(err, &ue) {
				ue.URL = safe
			}
			return errors.Wrapf(err, "http %s", method)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return errors.Wrap(err, "read body")
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &retry.StatusError{Code: resp.StatusCode, URL: safe, Body: string(data)}
		}

		page = Page{URL: url, Format: formatOf(resp.Header.Get("Content-Type")), Body: data}
		return nil
	})
	return page, err
}

func formatOf(contentType string) Format {
	if strings.Contains(strings.ToLower(contentType), "html") {
		return FormatHTML
	}
	return FormatJSON
}

// redactQuery drops the query string, which may carry API keys.
func redactQuery(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		return raw[:i]
	}
	return raw
}
