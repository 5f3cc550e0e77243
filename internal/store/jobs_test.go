package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobsync/internal/model"
	"jobmate/jobsync/internal/testutil"
)

// fakeRows replays a fixed list of "inserted" flags.
type fakeRows struct {
	flags []bool
	i     int
	err   error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                   { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, nil }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }

func (r *fakeRows) Next() bool {
	if r.i >= len(r.flags) {
		return false
	}
	r.i++
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	*(dest[0].(*bool)) = r.flags[r.i-1]
	return nil
}

// fakeQuerier answers each statement with the next response.
type fakeQuerier struct {
	responses [][]bool
	calls     int
	argCounts []int
	err       error
}

func (q *fakeQuerier) Query(_ context.Context, _ string, args ...any) (pgx.Rows, error) {
	q.argCounts = append(q.argCounts, len(args))
	if q.err != nil {
		return nil, q.err
	}
	var flags []bool
	if q.calls < len(q.responses) {
		flags = q.responses[q.calls]
	}
	q.calls++
	return &fakeRows{flags: flags}, nil
}

func job(company, id, title string) model.Job {
	return model.Job{Company: company, ExternalID: id, Title: title, IsActive: true, Source: "test"}
}

func TestBuildUpsert_Placeholders(t *testing.T) {
	sql := buildUpsert(2)
	cols := len(upsertColumns)

	assert.True(t, strings.HasPrefix(sql, "INSERT INTO jobs (external_id, company,"))
	assert.Contains(t, sql, "($1, $2,")
	assert.Contains(t, sql, "$34)")
	assert.NotContains(t, sql, "$35")
	assert.Equal(t, 2*cols, strings.Count(sql, "$"))
	assert.Contains(t, sql, "ON CONFLICT (company, external_id)")
	assert.Contains(t, sql, "IS DISTINCT FROM")
	assert.Contains(t, sql, "RETURNING (xmax = 0)")
}

func TestDedupe_LastOccurrenceWins(t *testing.T) {
	in := []model.Job{
		job("Acme", "1", "old"),
		job("Acme", "2", "b"),
		job("Acme", "1", "new"),
		job("Globex", "1", "other company"),
	}
	out, dropped := dedupe(in)

	assert.Equal(t, 1, dropped)
	require.Len(t, out, 3)
	assert.Equal(t, "b", out[0].Title)
	assert.Equal(t, "new", out[1].Title)
	assert.Equal(t, "other company", out[2].Title)
}

func TestDedupe_NoDuplicatesReturnsInput(t *testing.T) {
	in := []model.Job{job("Acme", "1", "a"), job("Acme", "2", "b")}
	out, dropped := dedupe(in)
	assert.Zero(t, dropped)
	assert.Len(t, out, 2)
}

func TestRowArgs_Defaults(t *testing.T) {
	args := rowArgs(job("Acme", "1", "a"))
	require.Len(t, args, len(upsertColumns))
	assert.Equal(t, "FULL_TIME", args[5])
	assert.Nil(t, args[6].(*string))
	assert.Equal(t, model.CategoryDiscover, args[16])
}

func TestUpsertBatch_Counts(t *testing.T) {
	q := &fakeQuerier{responses: [][]bool{{true, true, false}}}
	s := New(q, 0)

	res, err := s.UpsertBatch(context.Background(), []model.Job{
		job("Acme", "1", "a"),
		job("Acme", "2", "b"),
		job("Acme", "3", "c"),
		job("Acme", "4", "d"),
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 2, Updated: 1, Skipped: 1}, res)
	assert.Equal(t, 4, res.Total())
}

func TestUpsertBatch_Chunks(t *testing.T) {
	q := &fakeQuerier{responses: [][]bool{{true, true}, {true, true}, {false}}}
	s := New(q, 2)

	jobs := []model.Job{
		job("Acme", "1", "a"), job("Acme", "2", "b"),
		job("Acme", "3", "c"), job("Acme", "4", "d"),
		job("Acme", "5", "e"),
	}
	res, err := s.UpsertBatch(context.Background(), jobs)
	require.NoError(t, err)
	assert.Equal(t, 3, q.calls)
	assert.Equal(t, []int{34, 34, 17}, q.argCounts)
	assert.Equal(t, Result{Inserted: 4, Updated: 1}, res)
}

func TestUpsertBatch_Empty(t *testing.T) {
	q := &fakeQuerier{}
	res, err := New(q, 10).UpsertBatch(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, res.Total())
	assert.Zero(t, q.calls)
}

func TestUpsertBatch_RejectsEmptyIdentity(t *testing.T) {
	q := &fakeQuerier{}
	_, err := New(q, 10).UpsertBatch(context.Background(), []model.Job{job("", "1", "a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty identity")
	assert.Zero(t, q.calls)
}

func TestUpsertBatch_QueryError(t *testing.T) {
	q := &fakeQuerier{err: errors.New("connection reset")}
	_, err := New(q, 10).UpsertBatch(context.Background(), []model.Job{job("Acme", "1", "a")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "upsert jobs 0-0")
	assert.Contains(t, err.Error(), "connection reset")
}

func TestUpsertBatch_Integration(t *testing.T) {
	pool := testutil.Pool(t)
	ctx := context.Background()
	s := New(pool, 0)
	posted := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	base := job("Acme", "42", "Backend Engineer")
	base.PostedAt = &posted
	base.Location = model.StrPtr("Remote")

	res, err := s.UpsertBatch(ctx, []model.Job{base})
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 1}, res)

	// Same content again is a no-op.
	res, err = s.UpsertBatch(ctx, []model.Job{base})
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 1}, res)

	changed := base
	changed.Title = "Senior Backend Engineer"
	res, err = s.UpsertBatch(ctx, []model.Job{changed})
	require.NoError(t, err)
	assert.Equal(t, Result{Updated: 1}, res)

	var title, category string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT title, job_category FROM jobs WHERE company = 'Acme' AND external_id = '42'`).Scan(&title, &category))
	assert.Equal(t, "Senior Backend Engineer", title)
	assert.Equal(t, model.CategoryDiscover, category)
}

func TestUpsertBatch_IntegrationSameIDDifferentCompanies(t *testing.T) {
	pool := testutil.Pool(t)
	ctx := context.Background()

	res, err := New(pool, 0).UpsertBatch(ctx, []model.Job{
		job("Acme", "1001", "Engineer"),
		job("Globex", "1001", "Engineer"),
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Inserted: 2}, res)

	var n int
	require.NoError(t, pool.QueryRow(ctx, `SELECT COUNT(*) FROM jobs WHERE external_id = '1001'`).Scan(&n))
	assert.Equal(t, 2, n)
}
