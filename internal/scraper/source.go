package scraper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/model"
)

// Kind names a provider family. Each Kind has exactly one Adapter.
type Kind string

const (
	KindGreenhouse      Kind = "greenhouse"
	KindLever           Kind = "lever"
	KindAshby           Kind = "ashby"
	KindSmartRecruiters Kind = "smartrecruiters"
	KindApple           Kind = "apple"
	KindNetflix         Kind = "netflix"
	KindTikTok          Kind = "tiktok"
	KindWorkday         Kind = "workday"
	KindPhenom          Kind = "phenom"
	KindWorkable        Kind = "workable"
	KindAdzuna          Kind = "adzuna"
	KindSkillCareerHub  Kind = "skillcareerhub"
)

// Endpoint is one configured source: a company board, a career page or an
// aggregator query.
type Endpoint struct {
	Kind    Kind     `yaml:"kind"`
	Company string   `yaml:"company"`
	Board   string   `yaml:"board"` // ATS board token, e.g. "stripe"
	URL     string   `yaml:"url"`   // overrides the URL derived from Board
	Terms   []string `yaml:"terms"` // search terms for aggregator sources
}

func (e Endpoint) String() string {
	if e.Company != "" {
		return fmt.Sprintf("%s:%s", e.Kind, e.Company)
	}
	return string(e.Kind)
}

// Format tells Normalize how to read a page. It comes from the response
// Content-Type, never from sniffing the body.
type Format int

const (
	FormatJSON Format = iota
	FormatHTML
)

// Page is one HTTP response body.
type Page struct {
	URL    string
	Format Format
	Body   []byte
}

// RawPayload is everything FetchRaw pulled for one endpoint.
type RawPayload struct {
	Pages []Page
	// Cutoff is the oldest PostedAt a time-ordered source keeps. Zero means
	// no cutoff.
	Cutoff time.Time
	// Links maps a link found in Pages to the URL that replaces it, e.g. an
	// aggregator redirect to the employer's apply page.
	Links map[string]string
}

// FetchOptions carries per-run context into FetchRaw.
type FetchOptions struct {
	// Since is the pipeline watermark; nil on a full sync.
	Since *time.Time
	Now   time.Time
}

// Adapter is the capability every provider family implements.
type Adapter interface {
	Kind() Kind
	FetchRaw(ctx context.Context, ep Endpoint, opts FetchOptions) (RawPayload, error)
	Normalize(ep Endpoint, raw RawPayload) ([]model.Job, error)
}

// Registry maps a Kind to its Adapter.
type Registry struct {
	adapters map[Kind]Adapter
}

// NewRegistry builds a registry from the given adapters. A later adapter
// with the same Kind replaces an earlier one.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[Kind]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Kind()] = a
}

// Lookup returns the adapter for k.
func (r *Registry) Lookup(k Kind) (Adapter, bool) {
	a, ok := r.adapters[k]
	return a, ok
}

// Kinds lists the registered kinds, sorted.
func (r *Registry) Kinds() []Kind {
	out := make([]Kind, 0, len(r.adapters))
	for k := range r.adapters {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Collect runs fetch then normalize for one endpoint. Every failure
// (unknown kind, network, status, payload shape, panic) is logged and
// becomes an empty result so the caller can move on to the next endpoint.
func (r *Registry) Collect(ctx context.Context, log *logger.Logger, ep Endpoint, opts FetchOptions) (jobs []model.Job) {
	log = log.With("source", ep.String())

	defer func() {
		if rec := recover(); rec != nil {
			log.Error("adapter panicked, skipping source", "panic", fmt.Sprint(rec))
			jobs = nil
		}
	}()

	adapter, ok := r.Lookup(ep.Kind)
	if !ok {
		log.Error("no adapter registered for source kind", "kind", string(ep.Kind))
		return nil
	}

	raw, err := adapter.FetchRaw(ctx, ep, opts)
	if err != nil {
		log.Error("fetch failed, skipping source", "error", err)
		return nil
	}

	jobs, err = adapter.Normalize(ep, raw)
	if err != nil {
		log.Error("normalize failed, skipping source", "error", err)
		return nil
	}

	log.Info("source collected", "jobs", len(jobs), "pages", len(raw.Pages))
	return jobs
}

// errShape marks a payload that decoded but did not have the expected shape.
var errShape = errors.New("unexpected payload shape")

func shapeErrorf(format string, args ...interface{}) error {
	return errors.Mark(errors.Newf(format, args...), errShape)
}

// companyOr returns the endpoint company or, failing that, the board token
// title-cased.
func companyOr(ep Endpoint, fallback string) string {
	if ep.Company != "" {
		return ep.Company
	}
	if fallback != "" {
		return fallback
	}
	if ep.Board == "" {
		return ""
	}
	return strings.ToUpper(ep.Board[:1]) + ep.Board[1:]
}
