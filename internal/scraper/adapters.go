package scraper

import (
	"time"

	"golang.org/x/time/rate"

	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/retry"
)

// Options configures the default adapter set.
type Options struct {
	Timeout        time.Duration
	Retry          retry.Policy
	RequestsPerSec float64       // 0 keeps the client default
	PageDelay      time.Duration // random delay between HTML page visits
	AdzunaAppID    string
	AdzunaAppKey   string
	AdzunaCountry  string
	AdzunaResolve  int // redirect pages followed per Adzuna fetch
	SkillHubURL    string
	SkillHubAPIKey string
	Log            *logger.Logger
}

// NewDefaultRegistry wires every adapter onto one shared client.
func NewDefaultRegistry(o Options) *Registry {
	var clientOpts []ClientOption
	if o.RequestsPerSec > 0 {
		clientOpts = append(clientOpts, WithRateLimit(rate.Limit(o.RequestsPerSec), 1))
	}
	c := NewClient(o.Timeout, o.Retry, clientOpts...)

	adzuna := NewAdzuna(o.AdzunaAppID, o.AdzunaAppKey, o.AdzunaCountry, c, o.Log)
	adzuna.ResolveLimit = o.AdzunaResolve

	return NewRegistry(
		NewGreenhouse(c),
		NewLever(c),
		NewAshby(c),
		NewSmartRecruiters(c),
		NewApple(c),
		NewNetflix(c),
		NewTikTok(c),
		NewHTMLBoard(KindWorkday, o.Timeout, o.PageDelay, o.Retry),
		NewHTMLBoard(KindPhenom, o.Timeout, o.PageDelay, o.Retry),
		NewHTMLBoard(KindWorkable, o.Timeout, o.PageDelay, o.Retry),
		adzuna,
		NewSkillCareerHub(o.SkillHubURL, o.SkillHubAPIKey, c),
	)
}
