// Package notify runs the digest: it pages through eligible users, matches
// jobs for each, renders and sends the email, and logs what was sent.
//
// Users are processed with a hard cap on in-flight work. A failure for one
// user is counted and logged; it never stops the run. Only a failed mail
// preflight or a failed user page aborts.
package notify

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"jobmate/jobsync/internal/digest"
	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/mail"
	"jobmate/jobsync/internal/matcher"
	"jobmate/jobsync/internal/model"
)

const (
	DefaultConcurrency = 5
	DefaultPageSize    = 500
	DefaultMaxJobs     = 10
)

// ─── Collaborators ───────────────────────────────────────────────────────────

// Recipients pages eligible users and records sends. *Store implements it.
type Recipients interface {
	UserPage(ctx context.Context, after int64, limit int) ([]model.User, error)
	RecordSent(ctx context.Context, userID int64, jobIDs []int64) error
}

// Matcher is the job-matching engine.
type Matcher interface {
	FindJobs(ctx context.Context, p matcher.Preferences, limit int) (model.Digest, error)
}

// Renderer turns a digest into an HTML body.
type Renderer interface {
	Render(u model.User, d model.Digest) (string, error)
}

// ─── Stats ───────────────────────────────────────────────────────────────────

// Stats are the run counters.
type Stats struct {
	RunID          string        `json:"runId"`
	DryRun         bool          `json:"dryRun"`
	Sent           int64         `json:"sent"`
	Skipped        int64         `json:"skipped"`
	Errors         int64         `json:"errors"`
	UsersProcessed int64         `json:"usersProcessed"`
	Pages          int           `json:"pages"`
	Duration       time.Duration `json:"duration"`
}

type counters struct {
	sent, skipped, errors, processed atomic.Int64
}

// ─── Dispatcher ──────────────────────────────────────────────────────────────

// Config tunes a Dispatcher. Zero values take the defaults.
type Config struct {
	Concurrency int
	PageSize    int
	MaxJobs     int
	// DryRun renders every digest but neither sends nor logs it.
	DryRun bool
}

// Dispatcher drives one digest run.
type Dispatcher struct {
	users     Recipients
	matcher   Matcher
	renderer  Renderer
	transport mail.Transport
	cfg       Config
	log       *logger.Logger
}

// New wires a Dispatcher.
func New(users Recipients, m Matcher, r Renderer, t mail.Transport, cfg Config, log *logger.Logger) *Dispatcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.MaxJobs < 1 {
		cfg.MaxJobs = DefaultMaxJobs
	}
	return &Dispatcher{users: users, matcher: m, renderer: r, transport: t, cfg: cfg, log: log}
}

// Run processes every eligible user once. The returned error is non-nil
// only when the run could not proceed; per-user failures show up in
// Stats.Errors.
func (d *Dispatcher) Run(ctx context.Context) (Stats, error) {
	start := time.Now()
	stats := Stats{RunID: uuid.NewString(), DryRun: d.cfg.DryRun}
	log := d.log.With("digest_run", stats.RunID)

	var c counters
	finish := func() Stats {
		stats.Sent = c.sent.Load()
		stats.Skipped = c.skipped.Load()
		stats.Errors = c.errors.Load()
		stats.UsersProcessed = c.processed.Load()
		stats.Duration = time.Since(start)
		return stats
	}

	if !d.cfg.DryRun {
		if err := d.transport.Verify(ctx); err != nil {
			log.Error("mail transport preflight failed, aborting", "error", err)
			return finish(), errors.Wrap(err, "mail preflight")
		}
	}
	log.Info("digest run started",
		"dry_run", d.cfg.DryRun, "concurrency", d.cfg.Concurrency, "page_size", d.cfg.PageSize)

	var cursor int64
	for {
		if err := ctx.Err(); err != nil {
			return finish(), errors.Wrap(err, "digest run interrupted")
		}
		page, err := d.users.UserPage(ctx, cursor, d.cfg.PageSize)
		if err != nil {
			return finish(), err
		}
		if len(page) == 0 {
			break
		}
		stats.Pages++

		d.processPage(ctx, log, page, &c)

		last := page[len(page)-1].ID
		if last <= cursor {
			return finish(), errors.Newf("user cursor did not advance: %d after %d", last, cursor)
		}
		cursor = last
		log.Info("user page done", "page", stats.Pages, "users", len(page), "cursor", cursor)

		if len(page) < d.cfg.PageSize {
			break
		}
	}

	out := finish()
	log.Info("digest run finished",
		"sent", out.Sent, "skipped", out.Skipped, "errors", out.Errors,
		"users_processed", out.UsersProcessed, "pages", out.Pages, "duration", out.Duration.String())
	return out, nil
}

// processPage handles one page with at most Concurrency users in flight.
func (d *Dispatcher) processPage(ctx context.Context, log *logger.Logger, page []model.User, c *counters) {
	var g errgroup.Group
	g.SetLimit(d.cfg.Concurrency)
	for _, u := range page {
		if ctx.Err() != nil {
			break
		}
		u := u
		g.Go(func() error {
			d.processUser(ctx, log, u, c)
			return nil
		})
	}
	_ = g.Wait()
}

func (d *Dispatcher) processUser(ctx context.Context, log *logger.Logger, u model.User, c *counters) {
	defer c.processed.Add(1)
	log = log.With("user_id", u.ID)
	defer func() {
		if rec := recover(); rec != nil {
			c.errors.Add(1)
			log.Error("digest for user panicked", "panic", rec)
		}
	}()

	dg, err := d.matcher.FindJobs(ctx, matcher.Preferences{
		UserID: u.ID, Titles: u.JobTitles, Skills: u.Skills, RoleTypes: u.RoleTypes,
	}, d.cfg.MaxJobs)
	if err != nil {
		c.errors.Add(1)
		log.Error("match failed", "error", err)
		return
	}
	if dg.Len() == 0 {
		c.skipped.Add(1)
		log.Debug("no matching jobs")
		return
	}

	html, err := d.renderer.Render(u, dg)
	if err != nil {
		c.errors.Add(1)
		log.Error("render failed", "error", err)
		return
	}
	subject := digest.Subject(dg.Len())

	if d.cfg.DryRun {
		c.sent.Add(1)
		log.Info("dry run, digest not sent", "email", u.Email, "jobs", dg.Len(), "subject", subject)
		return
	}

	if err := d.transport.Send(ctx, u.Email, subject, html); err != nil {
		c.errors.Add(1)
		log.Error("send failed", "email", u.Email, "error", err)
		return
	}
	c.sent.Add(1)

	ids := make([]int64, 0, dg.Len())
	for _, j := range dg.All() {
		ids = append(ids, j.ID)
	}
	// The mail already went out; a lost log row means it may repeat tomorrow.
	if err := d.users.RecordSent(context.WithoutCancel(ctx), u.ID, ids); err != nil {
		c.errors.Add(1)
		log.Error("email sent but not logged", "email", u.Email, "error", err)
		return
	}
	log.Info("digest sent", "email", u.Email, "jobs", dg.Len())
}
