// Package pipeline drives named scrape → load pipelines and records each run
// in the sync history.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/redis/go-redis/v9"

	"jobmate/jobsync/internal/lock"
	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/model"
	"jobmate/jobsync/internal/scraper"
	"jobmate/jobsync/internal/store"
)

// EventPipelineFinished is the Redis channel a finished run is announced on.
const EventPipelineFinished = "EVENT_PIPELINE_FINISHED"

// ─── Collaborators ───────────────────────────────────────────────────────────

// Tracker is the run-history side of syncstate.Tracker.
type Tracker interface {
	StartSync(ctx context.Context, pipeline string) (int64, error)
	CompleteSync(ctx context.Context, runID int64, processed, inserted int, cursor *string) error
	FailSync(ctx context.Context, runID int64, msg string) error
	GetLastCursor(ctx context.Context, pipeline string) (*string, error)
}

// Loader persists a scraped batch.
type Loader interface {
	UpsertBatch(ctx context.Context, jobs []model.Job) (store.Result, error)
}

// Sources turns an endpoint into jobs, never failing.
type Sources interface {
	Collect(ctx context.Context, log *logger.Logger, ep scraper.Endpoint, opts scraper.FetchOptions) []model.Job
}

// ─── Report ──────────────────────────────────────────────────────────────────

// Outcome statuses.
const (
	OutcomeSuccess = "SUCCESS"
	OutcomeFailed  = "FAILED"
	OutcomeSkipped = "SKIPPED" // another process holds the pipeline lock
)

// Outcome is what happened to one pipeline.
type Outcome struct {
	Pipeline  string        `json:"pipeline"`
	RunID     int64         `json:"runId,omitempty"`
	Mode      string        `json:"mode"`
	Status    string        `json:"status"`
	Processed int           `json:"processed"`
	Filtered  int           `json:"filtered"`
	Result    store.Result  `json:"result"`
	Cursor    *string       `json:"cursor,omitempty"`
	Error     string        `json:"error,omitempty"`
	Duration  time.Duration `json:"duration"`
}

// Report collects the outcomes of one Run call in execution order.
type Report struct {
	Outcomes []Outcome
}

// Failed reports whether any pipeline failed.
func (r Report) Failed() bool {
	for _, o := range r.Outcomes {
		if o.Status == OutcomeFailed {
			return true
		}
	}
	return false
}

// ─── Runner ──────────────────────────────────────────────────────────────────

// Options tune one Run call.
type Options struct {
	// FullSync ignores stored watermarks.
	FullSync bool
}

// Runner executes pipelines sequentially. One pipeline failing never stops
// the next one.
type Runner struct {
	tracker Tracker
	loader  Loader
	sources Sources
	locker  *lock.Locker
	rdb     *redis.Client
	log     *logger.Logger
	now     func() time.Time
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithLocker serialises runs of the same pipeline across processes.
func WithLocker(l *lock.Locker) RunnerOption { return func(r *Runner) { r.locker = l } }

// WithEvents publishes EventPipelineFinished on rdb after every run.
func WithEvents(rdb *redis.Client) RunnerOption { return func(r *Runner) { r.rdb = rdb } }

// NewRunner wires a Runner.
func NewRunner(tracker Tracker, loader Loader, sources Sources, log *logger.Logger, opts ...RunnerOption) *Runner {
	r := &Runner{
		tracker: tracker,
		loader:  loader,
		sources: sources,
		log:     log,
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run executes specs in order and returns one outcome per pipeline.
func (r *Runner) Run(ctx context.Context, specs []scraper.PipelineSpec, opts Options) Report {
	var rep Report
	for _, spec := range specs {
		start := r.now()
		out := r.runOne(ctx, spec, opts)
		out.Duration = r.now().Sub(start)
		rep.Outcomes = append(rep.Outcomes, out)
		r.publish(ctx, out)
	}
	return rep
}

func (r *Runner) runOne(ctx context.Context, spec scraper.PipelineSpec, opts Options) (out Outcome) {
	log := r.log.With("pipeline", spec.Name)
	out = Outcome{Pipeline: spec.Name, Mode: "full"}

	held, err := r.locker.Acquire(ctx, spec.Name)
	if errors.Is(err, lock.ErrHeld) {
		log.Warn("pipeline already running elsewhere, skipping")
		out.Status = OutcomeSkipped
		return out
	}
	if err != nil {
		log.Error("could not take pipeline lock", "error", err)
		out.Status, out.Error = OutcomeFailed, err.Error()
		return out
	}
	defer func() {
		if ok, err := held.Release(context.WithoutCancel(ctx)); err != nil || !ok {
			log.Warn("pipeline lock was not released cleanly", "released", ok, "error", err)
		}
	}()

	runID, err := r.tracker.StartSync(ctx, spec.Name)
	if err != nil {
		log.Error("could not record run start", "error", err)
		out.Status, out.Error = OutcomeFailed, err.Error()
		return out
	}
	out.RunID = runID
	log = log.With("run_id", runID)

	fail := func(cause error) Outcome {
		log.Error("pipeline failed", "error", cause)
		out.Status, out.Error = OutcomeFailed, cause.Error()
		if err := r.tracker.FailSync(context.WithoutCancel(ctx), runID, cause.Error()); err != nil {
			log.Error("could not record run failure", "error", err)
		}
		return out
	}
	defer func() {
		if rec := recover(); rec != nil {
			out = fail(errors.Newf("panic: %v", rec))
		}
	}()

	// The watermark is read even on full syncs so the run never stores an
	// older one.
	oldCursor, err := r.tracker.GetLastCursor(ctx, spec.Name)
	if err != nil {
		return fail(errors.Wrap(err, "read watermark"))
	}
	var prev, since *time.Time
	if oldCursor != nil {
		if t, perr := time.Parse(time.RFC3339, *oldCursor); perr != nil {
			log.Warn("unparseable watermark, running full sync", "cursor", *oldCursor)
		} else {
			prev = &t
		}
	}
	if spec.Incremental && !opts.FullSync && prev != nil {
		since = prev
		out.Mode = "incremental"
	}
	log.Info("pipeline started", "mode", out.Mode, "endpoints", len(spec.Endpoints))

	b := r.collect(ctx, log, spec, scraper.FetchOptions{Since: since, Now: r.now()})
	if err := ctx.Err(); err != nil {
		return fail(errors.Wrap(err, "scrape interrupted"))
	}
	out.Filtered = b.filtered
	cursor := nextCursor(oldCursor, prev, b.newest)

	if len(b.jobs) == 0 {
		log.Info("no jobs found, keeping watermark", "filtered", b.filtered)
		if err := r.tracker.CompleteSync(ctx, runID, 0, 0, oldCursor); err != nil {
			return fail(errors.Wrap(err, "record empty run"))
		}
		out.Status, out.Cursor = OutcomeSuccess, oldCursor
		return out
	}

	res, err := r.loader.UpsertBatch(ctx, b.jobs)
	if err != nil {
		return fail(errors.Wrap(err, "load"))
	}
	out.Processed, out.Result = len(b.jobs), res

	if err := r.tracker.CompleteSync(ctx, runID, len(b.jobs), res.Inserted, cursor); err != nil {
		return fail(errors.Wrap(err, "record run"))
	}
	out.Status, out.Cursor = OutcomeSuccess, cursor
	log.Info("pipeline finished",
		"processed", len(b.jobs), "inserted", res.Inserted, "updated", res.Updated,
		"skipped", res.Skipped, "filtered", b.filtered, "cursor", model.Deref(cursor))
	return out
}

// nextCursor is max(old, newest); the watermark never moves backwards.
func nextCursor(old *string, prev, newest *time.Time) *string {
	if newest == nil || (prev != nil && !newest.After(*prev)) {
		return old
	}
	s := newest.UTC().Format(time.RFC3339)
	return &s
}

func (r *Runner) publish(ctx context.Context, out Outcome) {
	if r.rdb == nil {
		return
	}
	event, _ := json.Marshal(map[string]string{
		"type":      EventPipelineFinished,
		"pipeline":  out.Pipeline,
		"status":    out.Status,
		"runId":     fmt.Sprint(out.RunID),
		"processed": fmt.Sprint(out.Processed),
		"inserted":  fmt.Sprint(out.Result.Inserted),
	})
	if err := r.rdb.Publish(ctx, EventPipelineFinished, event).Err(); err != nil {
		r.log.Warn("publish "+EventPipelineFinished+" failed", "error", err)
	}
}
