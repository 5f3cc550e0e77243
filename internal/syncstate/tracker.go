package syncstate

import (
	"context"
	"database/sql"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// ─── Types ───────────────────────────────────────────────────────────────────

// Run is one row of job_sync_history.
type Run struct {
	ID            int64      `json:"id"`
	Pipeline      string     `json:"pipeline"`
	StartTime     time.Time  `json:"startTime"`
	EndTime       *time.Time `json:"endTime,omitempty"`
	Status        Status     `json:"status"`
	JobsProcessed int        `json:"jobsProcessed"`
	JobsInserted  int        `json:"jobsInserted"`
	Cursor        *string    `json:"cursor,omitempty"`
	ErrorMessage  *string    `json:"errorMessage,omitempty"`
}

// ─── Tracker ─────────────────────────────────────────────────────────────────

// Tracker is the only writer of job_sync_history. It goes through
// database/sql so the statements can be exercised without a server.
type Tracker struct {
	db  *sql.DB
	now func() time.Time
}

// NewTracker returns a Tracker over db.
func NewTracker(db *sql.DB) *Tracker {
	return &Tracker{db: db, now: time.Now}
}

// maxErrorLen bounds error_message; wrapped error chains can get long.
const maxErrorLen = 4000

// StartSync opens a RUNNING row for pipeline and returns its id.
func (t *Tracker) StartSync(ctx context.Context, pipeline string) (int64, error) {
	var id int64
	err := t.db.QueryRowContext(ctx,
		`INSERT INTO job_sync_history (pipeline_name, start_time, status)
		 VALUES ($1, NOW(), $2)
		 RETURNING id`,
		pipeline, string(StatusRunning),
	).Scan(&id)
	if err != nil {
		return 0, errors.Wrapf(err, "startSync %s", pipeline)
	}
	return id, nil
}

// CompleteSync marks a RUNNING run SUCCESS with its stats and new cursor.
// cursor is stored as given; pass the previous watermark when the run saw
// nothing newer.
func (t *Tracker) CompleteSync(ctx context.Context, runID int64, processed, inserted int, cursor *string) error {
	res, err := t.db.ExecContext(ctx,
		`UPDATE job_sync_history
		 SET end_time       = NOW(),
		     status         = $1,
		     jobs_processed = $2,
		     jobs_inserted  = $3,
		     cursor_value   = $4
		 WHERE id = $5 AND status = $6`,
		string(StatusSuccess), processed, inserted, cursor, runID, string(StatusRunning),
	)
	if err != nil {
		return errors.Wrapf(err, "completeSync run %d", runID)
	}
	return t.checkTransition(ctx, res, runID, StatusSuccess)
}

// FailSync marks a RUNNING run FAILED with msg.
func (t *Tracker) FailSync(ctx context.Context, runID int64, msg string) error {
	msg = truncate(msg, maxErrorLen)
	res, err := t.db.ExecContext(ctx,
		`UPDATE job_sync_history
		 SET end_time      = NOW(),
		     status        = $1,
		     error_message = $2
		 WHERE id = $3 AND status = $4`,
		string(StatusFailed), msg, runID, string(StatusRunning),
	)
	if err != nil {
		return errors.Wrapf(err, "failSync run %d", runID)
	}
	return t.checkTransition(ctx, res, runID, StatusFailed)
}

// checkTransition explains an UPDATE that matched no RUNNING row.
func (t *Tracker) checkTransition(ctx context.Context, res sql.Result, runID int64, to Status) error {
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}

	var raw string
	err = t.db.QueryRowContext(ctx,
		`SELECT status FROM job_sync_history WHERE id = $1`, runID,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrRunNotFound, "run %d", runID)
	}
	if err != nil {
		return errors.Wrapf(err, "load run %d", runID)
	}
	from, _ := ParseStatus(raw)
	if IsTerminal(from) {
		return errors.Wrapf(ErrInvalidTransition, "run %d already finished: %s → %s", runID, raw, to)
	}
	if !IsTransitionAllowed(from, to) {
		return errors.Wrapf(ErrInvalidTransition, "run %d: %s → %s", runID, raw, to)
	}
	// Finished concurrently between the UPDATE and the SELECT.
	return errors.Wrapf(ErrInvalidTransition, "run %d changed while transitioning to %s", runID, to)
}

// GetLastCursor returns the cursor of the newest SUCCESS run of pipeline,
// or nil when there is none. nil means the next run is a full sync.
func (t *Tracker) GetLastCursor(ctx context.Context, pipeline string) (*string, error) {
	var cursor sql.NullString
	err := t.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM job_sync_history
		 WHERE pipeline_name = $1 AND status = $2
		 ORDER BY start_time DESC, id DESC
		 LIMIT 1`,
		pipeline, string(StatusSuccess),
	).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "getLastCursor %s", pipeline)
	}
	if !cursor.Valid || cursor.String == "" {
		return nil, nil
	}
	return &cursor.String, nil
}

// ─── Operational queries ─────────────────────────────────────────────────────

const runColumns = `id, pipeline_name, start_time, end_time, status,
       jobs_processed, jobs_inserted, cursor_value, error_message`

// ListRuns returns the newest runs first, for one pipeline or all of them
// when pipeline is empty.
func (t *Tracker) ListRuns(ctx context.Context, pipeline string, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	var (
		rows *sql.Rows
		err  error
	)
	if pipeline != "" {
		rows, err = t.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM job_sync_history
			 WHERE pipeline_name = $1
			 ORDER BY start_time DESC, id DESC LIMIT $2`, pipeline, limit)
	} else {
		rows, err = t.db.QueryContext(ctx,
			`SELECT `+runColumns+` FROM job_sync_history
			 ORDER BY start_time DESC, id DESC LIMIT $1`, limit)
	}
	if err != nil {
		return nil, errors.Wrap(err, "listRuns query")
	}
	return scanRuns(rows)
}

// StaleRuns returns RUNNING rows started more than olderThan ago. They
// belong to processes that died mid-run; nothing closes them automatically.
func (t *Tracker) StaleRuns(ctx context.Context, olderThan time.Duration) ([]Run, error) {
	rows, err := t.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM job_sync_history
		 WHERE status = $1 AND start_time < $2
		 ORDER BY start_time ASC`,
		string(StatusRunning), t.now().Add(-olderThan),
	)
	if err != nil {
		return nil, errors.Wrap(err, "staleRuns query")
	}
	return scanRuns(rows)
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	defer rows.Close()
	runs := make([]Run, 0)
	for rows.Next() {
		var (
			r      Run
			end    sql.NullTime
			status string
			cursor sql.NullString
			msg    sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.Pipeline, &r.StartTime, &end, &status,
			&r.JobsProcessed, &r.JobsInserted, &cursor, &msg); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.Status = Status(status)
		if end.Valid {
			r.EndTime = &end.Time
		}
		if cursor.Valid {
			r.Cursor = &cursor.String
		}
		if msg.Valid {
			r.ErrorMessage = &msg.String
		}
		runs = append(runs, r)
	}
	return runs, errors.Wrap(rows.Err(), "iterate runs")
}

// ─── Sentinel errors ─────────────────────────────────────────────────────────

// ErrRunNotFound is returned when a run id does not exist.
var ErrRunNotFound = errors.New("sync run not found")

// ErrInvalidTransition is returned when a finished run is completed or
// failed a second time.
var ErrInvalidTransition = errors.New("invalid sync run transition")

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence;
// Postgres rejects invalid UTF-8 in text columns.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
