// Package store owns the jobs table. It is the only writer of job rows.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"jobmate/jobsync/internal/model"
)

// DefaultBatchSize keeps one statement well under Postgres' 65535
// parameter limit.
const DefaultBatchSize = 500

// Querier is the slice of pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Result counts what an upsert did with each job it was given.
type Result struct {
	Inserted int
	Updated  int
	Skipped  int
}

// Add accumulates r2 into r.
func (r *Result) Add(r2 Result) {
	r.Inserted += r2.Inserted
	r.Updated += r2.Updated
	r.Skipped += r2.Skipped
}

// Total is the number of jobs accounted for.
func (r Result) Total() int { return r.Inserted + r.Updated + r.Skipped }

// Store upserts canonical jobs keyed on (company, external_id).
type Store struct {
	db        Querier
	batchSize int
}

// New returns a Store writing through db in batches of batchSize
// (DefaultBatchSize when <= 0).
func New(db Querier, batchSize int) *Store {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Store{db: db, batchSize: batchSize}
}

var upsertColumns = []string{
	"external_id", "company", "title", "location", "department",
	"employment_type", "experience_level", "description", "apply_url",
	"posted_at", "source", "is_remote", "is_active", "min_salary",
	"max_salary", "company_logo", "job_category",
}

// The update only fires when visible content changed, so a re-sync of
// unchanged postings neither bumps updated_at nor returns a row.
// xmax = 0 on a returned row means the row was freshly inserted.
const upsertSuffix = `
ON CONFLICT (company, external_id) DO UPDATE SET
    title            = EXCLUDED.title,
    location         = EXCLUDED.location,
    description      = EXCLUDED.description,
    company_logo     = EXCLUDED.company_logo,
    department       = EXCLUDED.department,
    employment_type  = EXCLUDED.employment_type,
    experience_level = EXCLUDED.experience_level,
    apply_url        = EXCLUDED.apply_url,
    posted_at        = EXCLUDED.posted_at,
    is_remote        = EXCLUDED.is_remote,
    is_active        = EXCLUDED.is_active,
    min_salary       = EXCLUDED.min_salary,
    max_salary       = EXCLUDED.max_salary,
    updated_at       = NOW()
WHERE (jobs.title, jobs.location, jobs.description, jobs.company_logo)
      IS DISTINCT FROM
      (EXCLUDED.title, EXCLUDED.location, EXCLUDED.description, EXCLUDED.company_logo)
RETURNING (xmax = 0) AS inserted`

// buildUpsert returns the statement for n rows.
func buildUpsert(n int) string {
	var b strings.Builder
	b.WriteString("INSERT INTO jobs (")
	b.WriteString(strings.Join(upsertColumns, ", "))
	b.WriteString(")\nVALUES ")
	cols := len(upsertColumns)
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",\n       ")
		}
		b.WriteByte('(')
		for c := 0; c < cols; c++ {
			if c > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*cols+c+1)
		}
		b.WriteByte(')')
	}
	b.WriteString(upsertSuffix)
	return b.String()
}

func rowArgs(j model.Job) []any {
	var level *string
	if j.ExperienceLevel != nil {
		s := string(*j.ExperienceLevel)
		level = &s
	}
	employment := j.EmploymentType
	if employment == "" {
		employment = model.FullTime
	}
	return []any{
		j.ExternalID, j.Company, j.Title, j.Location, j.Department,
		string(employment), level, j.Description, j.ApplyURL,
		j.PostedAt, j.Source, j.IsRemote, j.IsActive, j.MinSalary,
		j.MaxSalary, j.CompanyLogo, model.CategoryDiscover,
	}
}

// dedupe keeps the last occurrence of each (company, external_id); one
// statement cannot touch the same row twice. Dropped duplicates count as
// skipped.
func dedupe(jobs []model.Job) ([]model.Job, int) {
	last := make(map[model.JobKey]int, len(jobs))
	for i, j := range jobs {
		last[j.Key()] = i
	}
	if len(last) == len(jobs) {
		return jobs, 0
	}
	out := make([]model.Job, 0, len(last))
	for i, j := range jobs {
		if last[j.Key()] == i {
			out = append(out, j)
		}
	}
	return out, len(jobs) - len(out)
}

// UpsertBatch writes jobs in chunks and reports how each was handled.
// Persistence errors abort and are returned with the counts so far.
func (s *Store) UpsertBatch(ctx context.Context, jobs []model.Job) (Result, error) {
	var total Result
	for start := 0; start < len(jobs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(jobs) {
			end = len(jobs)
		}
		r, err := s.upsertChunk(ctx, jobs[start:end])
		if err != nil {
			return total, errors.Wrapf(err, "upsert jobs %d-%d", start, end-1)
		}
		total.Add(r)
	}
	return total, nil
}

func (s *Store) upsertChunk(ctx context.Context, chunk []model.Job) (Result, error) {
	rows, dupes := dedupe(chunk)
	res := Result{Skipped: dupes}
	if len(rows) == 0 {
		return res, nil
	}

	args := make([]any, 0, len(rows)*len(upsertColumns))
	for _, j := range rows {
		if j.Company == "" || j.ExternalID == "" {
			return res, errors.Newf("job %q has an empty identity (company=%q external_id=%q)", j.Title, j.Company, j.ExternalID)
		}
		args = append(args, rowArgs(j)...)
	}

	result, err := s.db.Query(ctx, buildUpsert(len(rows)), args...)
	if err != nil {
		return res, err
	}
	defer result.Close()

	returned := 0
	for result.Next() {
		var inserted bool
		if err := result.Scan(&inserted); err != nil {
			return res, errors.Wrap(err, "scan upsert result")
		}
		returned++
		if inserted {
			res.Inserted++
		} else {
			res.Updated++
		}
	}
	if err := result.Err(); err != nil {
		return res, err
	}

	res.Skipped += len(rows) - returned
	return res, nil
}
