package pipeline

import (
	"context"
	"time"

	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/model"
	"jobmate/jobsync/internal/scraper"
)

// batch is the scrape result of one pipeline run. It is built fresh per run
// and never shared.
type batch struct {
	jobs     []model.Job
	filtered int
	// newest is the latest PostedAt seen, the candidate next watermark.
	newest *time.Time
}

// collect scrapes every endpoint of spec in order. A failing endpoint only
// loses its own jobs; Sources converts its errors to empty results.
func (r *Runner) collect(ctx context.Context, log *logger.Logger, spec scraper.PipelineSpec, opts scraper.FetchOptions) batch {
	var b batch
	for _, ep := range spec.Endpoints {
		if ctx.Err() != nil {
			log.Warn("context cancelled, stopping scrape", "remaining_from", ep.String())
			break
		}
		for _, job := range r.sources.Collect(ctx, log, ep, opts) {
			// ── Red-flag filter ────────────────────────────────
			if scraper.ContainsRedFlag(job.Title, job.Company, model.Deref(job.Description), spec.Exclude) {
				b.filtered++
				continue
			}
			if job.PostedAt != nil && (b.newest == nil || job.PostedAt.After(*b.newest)) {
				t := *job.PostedAt
				b.newest = &t
			}
			b.jobs = append(b.jobs, job)
		}
	}
	return b
}
