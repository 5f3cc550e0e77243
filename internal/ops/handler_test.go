package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/scheduler"
	"jobmate/jobsync/internal/syncstate"
)

type fakeRuns struct {
	runs      []syncstate.Run
	err       error
	pipeline  string
	limit     int
	olderThan time.Duration
}

func (f *fakeRuns) ListRuns(_ context.Context, pipeline string, limit int) ([]syncstate.Run, error) {
	f.pipeline, f.limit = pipeline, limit
	return f.runs, f.err
}

func (f *fakeRuns) StaleRuns(_ context.Context, olderThan time.Duration) ([]syncstate.Run, error) {
	f.olderThan = olderThan
	return f.runs, f.err
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

type fakeSchedule []scheduler.Upcoming

func (s fakeSchedule) Upcoming() []scheduler.Upcoming { return s }

func serveOps(t *testing.T, runs Runs, db Pinger, sched Schedule) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	NewHandler(runs, db, sched, logger.Nop()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealth(t *testing.T) {
	var body healthResponse
	srv := serveOps(t, &fakeRuns{}, fakePinger{}, nil)
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/health", &body))
	assert.Equal(t, healthResponse{Status: "ok", Service: "jobsync", Version: Version, Database: "ok"}, body)

	down := serveOps(t, &fakeRuns{}, fakePinger{err: errors.New("refused")}, nil)
	assert.Equal(t, http.StatusServiceUnavailable, getJSON(t, down.URL+"/health", &body))
	assert.Equal(t, "degraded", body.Status)
	assert.Equal(t, "unreachable", body.Database)
}

func TestRuns_PassesFilters(t *testing.T) {
	cursor := "2026-01-02T03:04:05Z"
	runs := &fakeRuns{runs: []syncstate.Run{{ID: 9, Pipeline: "ats", Status: syncstate.StatusSuccess, Cursor: &cursor}}}
	srv := serveOps(t, runs, fakePinger{}, nil)

	var got []syncstate.Run
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs?pipeline=ats&limit=5", &got))
	assert.Equal(t, "ats", runs.pipeline)
	assert.Equal(t, 5, runs.limit)
	require.Len(t, got, 1)
	assert.Equal(t, int64(9), got[0].ID)
	assert.Equal(t, cursor, *got[0].Cursor)
}

func TestRuns_BadLimit(t *testing.T) {
	srv := serveOps(t, &fakeRuns{}, fakePinger{}, nil)
	for _, q := range []string{"limit=0", "limit=501", "limit=ten"} {
		assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/runs?"+q, nil), q)
	}
}

func TestRuns_DatabaseError(t *testing.T) {
	srv := serveOps(t, &fakeRuns{err: errors.New("boom")}, fakePinger{}, nil)
	var body map[string]string
	assert.Equal(t, http.StatusInternalServerError, getJSON(t, srv.URL+"/runs", &body))
	assert.Equal(t, "database error", body["error"])
}

func TestStaleRuns(t *testing.T) {
	runs := &fakeRuns{runs: []syncstate.Run{}}
	srv := serveOps(t, runs, fakePinger{}, nil)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/stale", nil))
	assert.Equal(t, DefaultStaleAfter, runs.olderThan)

	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/runs/stale?olderThan=90m", nil))
	assert.Equal(t, 90*time.Minute, runs.olderThan)

	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/runs/stale?olderThan=-1h", nil))
	assert.Equal(t, http.StatusBadRequest, getJSON(t, srv.URL+"/runs/stale?olderThan=soon", nil))
}

func TestSchedule(t *testing.T) {
	next := time.Date(2026, 10, 17, 3, 0, 0, 0, time.UTC)
	srv := serveOps(t, &fakeRuns{}, fakePinger{}, fakeSchedule{{Name: "full-sync", Spec: "0 3 * * *", Next: next}})

	var got []scheduler.Upcoming
	assert.Equal(t, http.StatusOK, getJSON(t, srv.URL+"/schedule", &got))
	require.Len(t, got, 1)
	assert.Equal(t, "full-sync", got[0].Name)
	assert.True(t, next.Equal(got[0].Next))

	bare := serveOps(t, &fakeRuns{}, fakePinger{}, nil)
	got = nil
	assert.Equal(t, http.StatusOK, getJSON(t, bare.URL+"/schedule", &got))
	assert.Empty(t, got)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := serveOps(t, &fakeRuns{}, fakePinger{}, nil)
	resp, err := http.Post(srv.URL+"/runs", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
