package scraper

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/retry"
)

func testClient() *Client {
	return NewClient(2*time.Second, retry.Policy{MaxAttempts: 1}, WithRateLimit(rate.Inf, 1))
}

func serve(t *testing.T, contentType, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentType)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func nopLog() *logger.Logger { return logger.Nop() }
