package main

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"jobmate/jobsync/internal/config"
	"jobmate/jobsync/internal/db"
	"jobmate/jobsync/internal/digest"
	"jobmate/jobsync/internal/lock"
	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/mail"
	"jobmate/jobsync/internal/matcher"
	"jobmate/jobsync/internal/notify"
	"jobmate/jobsync/internal/pipeline"
	"jobmate/jobsync/internal/retry"
	"jobmate/jobsync/internal/scraper"
	"jobmate/jobsync/internal/store"
	"jobmate/jobsync/internal/syncstate"
)

// pipelineLockTTL outlives the slowest full sync seen so far.
const pipelineLockTTL = 2 * time.Hour

// app is the process-wide wiring shared by every command.
type app struct {
	cfg     *config.Config
	log     *logger.Logger
	pool    *pgxpool.Pool
	rdb     *redis.Client // nil when REDIS_URL is unset
	tracker *syncstate.Tracker
	catalog *scraper.Catalog
}

// newApp loads config and opens Postgres and, when configured, Redis.
func newApp(ctx context.Context) (*app, error) {
	// ── Config ──────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, errors.Wrap(err, "init logger")
	}
	catalog, err := scraper.LoadCatalog(cfg.SourcesFile)
	if err != nil {
		return nil, err
	}

	// ── PostgreSQL ──────────────────────────────────────────────────────────
	log.Info("connecting to PostgreSQL", "schema", cfg.DBSchema)
	pool, err := db.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBSchema, cfg.DBMaxConns)
	if err != nil {
		return nil, errors.Wrap(err, "postgres")
	}

	// ── Redis ───────────────────────────────────────────────────────────────
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "redis")
	}
	if rdb == nil {
		log.Info("REDIS_URL not set, pipeline locks and events disabled")
	}

	return &app{
		cfg:     cfg,
		log:     log,
		pool:    pool,
		rdb:     rdb,
		tracker: syncstate.NewTracker(db.SQLDB(pool)),
		catalog: catalog,
	}, nil
}

func (a *app) Close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	a.pool.Close()
	a.log.Sync()
}

func (a *app) retryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: a.cfg.RetryMaxAttempts,
		BaseDelay:   a.cfg.RetryBaseDelay,
		Jitter:      a.cfg.RetryJitter,
		Log:         a.log,
	}
}

func (a *app) runner() *pipeline.Runner {
	sources := scraper.NewDefaultRegistry(scraper.Options{
		Timeout:        a.cfg.HTTPTimeout,
		Retry:          a.retryPolicy(),
		AdzunaAppID:    a.cfg.AdzunaAppID,
		AdzunaAppKey:   a.cfg.AdzunaAppKey,
		AdzunaCountry:  a.cfg.AdzunaCountry,
		AdzunaResolve:  a.cfg.AdzunaResolveLimit,
		SkillHubURL:    a.cfg.SkillHubURL,
		SkillHubAPIKey: a.cfg.SkillHubAPIKey,
		Log:            a.log,
	})
	return pipeline.NewRunner(a.tracker, store.New(a.pool, 0), sources, a.log,
		pipeline.WithLocker(lock.New(a.rdb, pipelineLockTTL)),
		pipeline.WithEvents(a.rdb),
	)
}

// dispatcher wires the digest run. Mail credentials are only required when
// the run will actually send.
func (a *app) dispatcher(dryRun bool) (*notify.Dispatcher, error) {
	var transport mail.Transport
	if !dryRun {
		if err := a.cfg.RequireMail(); err != nil {
			return nil, err
		}
		t, err := mail.New(a.cfg.Mail, a.retryPolicy(), a.log)
		if err != nil {
			return nil, err
		}
		transport = t
	}
	renderer, err := digest.NewRenderer(a.cfg.Digest.AppURL)
	if err != nil {
		return nil, err
	}
	return notify.New(notify.NewStore(a.pool), matcher.New(a.pool), renderer, transport, notify.Config{
		Concurrency: a.cfg.Digest.Concurrency,
		PageSize:    a.cfg.Digest.PageSize,
		MaxJobs:     a.cfg.Digest.MaxJobs,
		DryRun:      dryRun,
	}, a.log), nil
}
