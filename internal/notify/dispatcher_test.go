package notify

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/matcher"
	"jobmate/jobsync/internal/model"
)

// ─── Fakes ───────────────────────────────────────────────────────────────────

type fakeRecipients struct {
	users []model.User // ascending id

	mu        sync.Mutex
	afters    []int64
	pageSizes []int
	recorded  map[int64][]int64
	recordErr map[int64]bool
	pageErr   error
}

func newRecipients(n int) *fakeRecipients {
	f := &fakeRecipients{recorded: map[int64][]int64{}, recordErr: map[int64]bool{}}
	for i := 1; i <= n; i++ {
		// Gaps in the id sequence, as after deletions.
		id := int64(i * 3)
		f.users = append(f.users, model.User{
			ID: id, Email: fmt.Sprintf("user%d@example.com", id), JobTitles: []string{"Engineer"},
		})
	}
	return f
}

func (f *fakeRecipients) UserPage(_ context.Context, after int64, limit int) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pageErr != nil {
		return nil, f.pageErr
	}
	f.afters = append(f.afters, after)
	var out []model.User
	for _, u := range f.users {
		if u.ID > after && len(out) < limit {
			out = append(out, u)
		}
	}
	f.pageSizes = append(f.pageSizes, len(out))
	return out, nil
}

func (f *fakeRecipients) RecordSent(_ context.Context, userID int64, jobIDs []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.recordErr[userID] {
		return errors.New("connection reset")
	}
	f.recorded[userID] = jobIDs
	return nil
}

type fakeMatcher struct {
	empty map[int64]bool
	fail  map[int64]bool
}

func (m fakeMatcher) FindJobs(_ context.Context, p matcher.Preferences, limit int) (model.Digest, error) {
	if m.fail[p.UserID] {
		return model.Digest{}, errors.New("statement timeout")
	}
	if m.empty[p.UserID] {
		return model.Digest{}, nil
	}
	return model.Digest{
		TopPicks:    []model.Candidate{{Job: model.Job{ID: p.UserID*100 + 1}, SkillScore: 1}},
		Recommended: []model.Candidate{{Job: model.Job{ID: p.UserID*100 + 2}}},
	}, nil
}

type fakeRenderer struct{ fail map[int64]bool }

func (r fakeRenderer) Render(u model.User, d model.Digest) (string, error) {
	if r.fail[u.ID] {
		return "", errors.New("template exploded")
	}
	return fmt.Sprintf("<p>%d jobs for %d</p>", d.Len(), u.ID), nil
}

type fakeTransport struct {
	verifyErr error
	failTo    map[string]bool
	delay     time.Duration

	mu        sync.Mutex
	verified  int
	sent      []string
	subjects  []string
	cur, peak int
}

func (t *fakeTransport) Verify(context.Context) error {
	t.mu.Lock()
	t.verified++
	t.mu.Unlock()
	return t.verifyErr
}

func (t *fakeTransport) Send(_ context.Context, to, subject, _ string) error {
	t.mu.Lock()
	t.cur++
	if t.cur > t.peak {
		t.peak = t.cur
	}
	t.mu.Unlock()

	time.Sleep(t.delay)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.cur--
	if t.failTo[to] {
		return errors.New("550 mailbox unavailable")
	}
	t.sent = append(t.sent, to)
	t.subjects = append(t.subjects, subject)
	return nil
}

func dispatcher(r Recipients, m Matcher, rd Renderer, t *fakeTransport, cfg Config) *Dispatcher {
	return New(r, m, rd, t, cfg, logger.Nop())
}

// ─── Tests ───────────────────────────────────────────────────────────────────

func TestRun_PagesByAscendingCursor(t *testing.T) {
	rec := newRecipients(1200)
	tr := &fakeTransport{}
	stats, err := dispatcher(rec, fakeMatcher{}, fakeRenderer{}, tr, Config{PageSize: 500}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []int{500, 500, 200}, rec.pageSizes)
	require.Len(t, rec.afters, 3)
	assert.Equal(t, int64(0), rec.afters[0])
	for i := 1; i < len(rec.afters); i++ {
		assert.Greater(t, rec.afters[i], rec.afters[i-1], "cursor strictly increases")
	}
	assert.Equal(t, rec.users[499].ID, rec.afters[1], "cursor is the last id of the previous page")

	assert.Equal(t, 3, stats.Pages)
	assert.Equal(t, int64(1200), stats.UsersProcessed)
	assert.Equal(t, int64(1200), stats.Sent)
	assert.Zero(t, stats.Errors)
	assert.Len(t, tr.sent, 1200)
	assert.Equal(t, 1, tr.verified)
	assert.NotEmpty(t, stats.RunID)
}

func TestRun_ExactMultipleOfPageSizeStopsOnEmptyPage(t *testing.T) {
	rec := newRecipients(10)
	stats, err := dispatcher(rec, fakeMatcher{}, fakeRenderer{}, &fakeTransport{}, Config{PageSize: 5}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{5, 5, 0}, rec.pageSizes)
	assert.Equal(t, 2, stats.Pages)
	assert.Equal(t, int64(10), stats.Sent)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	rec := newRecipients(40)
	tr := &fakeTransport{delay: 5 * time.Millisecond}
	_, err := dispatcher(rec, fakeMatcher{}, fakeRenderer{}, tr, Config{Concurrency: 5, PageSize: 500}).Run(context.Background())
	require.NoError(t, err)

	assert.LessOrEqual(t, tr.peak, 5)
	assert.Greater(t, tr.peak, 1, "users are processed in parallel")
}

func TestRun_IsolatesPerUserFailures(t *testing.T) {
	rec := newRecipients(10)
	ids := func(i int) int64 { return rec.users[i].ID }
	rec.recordErr[ids(5)] = true
	m := fakeMatcher{fail: map[int64]bool{ids(1): true}, empty: map[int64]bool{ids(4): true}}
	rd := fakeRenderer{fail: map[int64]bool{ids(2): true}}
	tr := &fakeTransport{failTo: map[string]bool{rec.users[3].Email: true}}

	stats, err := dispatcher(rec, m, rd, tr, Config{}).Run(context.Background())
	require.NoError(t, err, "per-user failures never fail the run")

	assert.Equal(t, int64(10), stats.UsersProcessed)
	assert.Equal(t, int64(1), stats.Skipped)
	// match, render, send and log failures.
	assert.Equal(t, int64(4), stats.Errors)
	// Everyone except match, render and send failures and the skipped user
	// got mail; the user whose log write failed still counts as sent.
	assert.Equal(t, int64(6), stats.Sent)
	assert.Len(t, tr.sent, 6)
	assert.Len(t, rec.recorded, 5)
	assert.NotContains(t, rec.recorded, ids(5))
}

func TestRun_RecordsEveryIncludedJob(t *testing.T) {
	rec := newRecipients(1)
	tr := &fakeTransport{}
	_, err := dispatcher(rec, fakeMatcher{}, fakeRenderer{}, tr, Config{}).Run(context.Background())
	require.NoError(t, err)

	id := rec.users[0].ID
	assert.Equal(t, []int64{id*100 + 1, id*100 + 2}, rec.recorded[id])
	assert.Equal(t, []string{"🎯 2 new jobs matching your preferences"}, tr.subjects)
}

func TestRun_PreflightFailureAborts(t *testing.T) {
	rec := newRecipients(3)
	tr := &fakeTransport{verifyErr: errors.New("dial tcp: i/o timeout")}
	stats, err := dispatcher(rec, fakeMatcher{}, fakeRenderer{}, tr, Config{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mail preflight")
	assert.Empty(t, rec.afters, "no user is fetched")
	assert.Empty(t, tr.sent)
	assert.Zero(t, stats.UsersProcessed)
}

func TestRun_DryRunNeitherSendsNorLogs(t *testing.T) {
	rec := newRecipients(3)
	tr := &fakeTransport{verifyErr: errors.New("no credentials")}
	stats, err := dispatcher(rec, fakeMatcher{}, fakeRenderer{}, tr, Config{DryRun: true}).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, stats.DryRun)
	assert.Equal(t, int64(3), stats.Sent)
	assert.Zero(t, tr.verified)
	assert.Empty(t, tr.sent)
	assert.Empty(t, rec.recorded)
}

func TestRun_PageErrorAborts(t *testing.T) {
	rec := newRecipients(3)
	rec.pageErr = errors.New("too many connections")
	_, err := dispatcher(rec, fakeMatcher{}, fakeRenderer{}, &fakeTransport{}, Config{}).Run(context.Background())
	assert.Error(t, err)
}

func TestRun_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := newRecipients(3)
	_, err := dispatcher(rec, fakeMatcher{}, fakeRenderer{}, &fakeTransport{}, Config{DryRun: true}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNew_Defaults(t *testing.T) {
	d := New(nil, nil, nil, nil, Config{}, logger.Nop())
	assert.Equal(t, Config{Concurrency: 5, PageSize: 500, MaxJobs: 10}, d.cfg)
}
