package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"jobmate/jobsync/internal/logger"
	"jobmate/jobsync/internal/model"
)

const (
	adzunaBaseURL  = "https://api.adzuna.com/v1/api/jobs"
	adzunaPageSize = 50
	adzunaMaxPages = 10 // per search term
	// MaxJobAge bounds time-ordered sources: anything older is a stopping
	// signal because results arrive newest-first.
	MaxJobAge = 7 * 24 * time.Hour
)

// DefaultAdzunaTerms are searched when the endpoint lists none.
var DefaultAdzunaTerms = []string{
	"software engineer", "backend developer", "frontend developer",
	"full stack developer", "data engineer", "devops engineer",
	"machine learning engineer", "mobile developer",
}

// Adzuna pages through the Adzuna search API, newest first, one query per
// search term. If AppID or AppKey is empty, FetchRaw returns an empty
// payload and logs a warning.
type Adzuna struct {
	AppID   string
	AppKey  string
	Country string // "in", "gb", "us", …
	BaseURL string
	// ResolveLimit caps how many redirect pages a fetch follows to find the
	// employer's own apply link. Zero keeps Adzuna's redirect URLs.
	ResolveLimit int

	client *Client
	log    *logger.Logger
}

// NewAdzuna constructs the adapter on the shared client.
func NewAdzuna(appID, appKey, country string, c *Client, log *logger.Logger) *Adzuna {
	return &Adzuna{
		AppID:   appID,
		AppKey:  appKey,
		Country: country,
		BaseURL: adzunaBaseURL,
		client:  c,
		log:     log,
	}
}

func (a *Adzuna) Kind() Kind { return KindAdzuna }

// adzunaResponse mirrors the top-level Adzuna JSON response.
type adzunaResponse struct {
	Results []adzunaResult `json:"results"`
	Count   int            `json:"count"`
}

// adzunaResult mirrors a single Adzuna job listing.
type adzunaResult struct {
	ID           flexString     `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Company      adzunaLabel    `json:"company"`
	Location     adzunaLabel    `json:"location"`
	Category     adzunaCategory `json:"category"`
	SalaryMin    float64        `json:"salary_min"`
	SalaryMax    float64        `json:"salary_max"`
	RedirectURL  string         `json:"redirect_url"`
	Created      string         `json:"created"`
	ContractTime string         `json:"contract_time"`
	ContractType string         `json:"contract_type"`
}

type adzunaLabel struct {
	DisplayName string `json:"display_name"`
}

type adzunaCategory struct {
	Label string `json:"label"`
}

// cutoff is the oldest posting date a run keeps: the watermark when it is
// inside the age window, the age window otherwise.
func cutoff(opts FetchOptions) time.Time {
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}
	c := now.Add(-MaxJobAge).UTC()
	if opts.Since != nil && opts.Since.After(c) {
		c = opts.Since.UTC()
	}
	return c
}

// FetchRaw pulls every page of every term until a page is short, empty, or
// reaches a posting older than the cutoff. A failing term is logged and the
// next one still runs; FetchRaw only fails when no term returned anything.
func (a *Adzuna) FetchRaw(ctx context.Context, ep Endpoint, opts FetchOptions) (RawPayload, error) {
	raw := RawPayload{Cutoff: cutoff(opts)}
	if a.AppID == "" || a.AppKey == "" {
		a.log.Warn("ADZUNA_APP_ID / ADZUNA_APP_KEY not set, skipping adzuna")
		return raw, nil
	}

	terms := ep.Terms
	if len(terms) == 0 {
		terms = DefaultAdzunaTerms
	}

	var failed int
	var lastErr error
	for _, term := range terms {
		if err := ctx.Err(); err != nil {
			return raw, err
		}
		for page := 1; page <= adzunaMaxPages; page++ {
			p, results, err := a.fetchPage(ctx, ep, term, page)
			if err != nil {
				if ctx.Err() != nil {
					return raw, ctx.Err()
				}
				a.log.Warn("adzuna term failed", "term", term, "page", page, "error", err)
				if page == 1 {
					failed++
					lastErr = errors.Wrapf(err, "term %q", term)
				}
				break
			}
			if len(results) == 0 {
				break
			}
			raw.Pages = append(raw.Pages, p)
			if len(results) < adzunaPageSize || reachedCutoff(results, raw.Cutoff) {
				break
			}
		}
	}
	if failed == len(terms) {
		return raw, errors.Wrapf(lastErr, "all %d adzuna terms failed", failed)
	}

	if a.ResolveLimit > 0 {
		raw.Links = a.resolveApplyLinks(ctx, raw)
	}
	return raw, nil
}

func reachedCutoff(results []adzunaResult, cut time.Time) bool {
	for _, r := range results {
		if t := parseTime(r.Created); t != nil && t.Before(cut) {
			return true
		}
	}
	return false
}

func (a *Adzuna) fetchPage(ctx context.Context, ep Endpoint, term string, page int) (Page, []adzunaResult, error) {
	base := ep.URL
	if base == "" {
		base = fmt.Sprintf("%s/%s/search", a.BaseURL, a.Country)
	}
	endpoint := fmt.Sprintf("%s/%d", strings.TrimRight(base, "/"), page)

	params := url.Values{}
	params.Set("app_id", a.AppID)
	params.Set("app_key", a.AppKey)
	params.Set("results_per_page", strconv.Itoa(adzunaPageSize))
	params.Set("what", term)
	params.Set("category", "it-jobs")
	params.Set("content-type", "application/json")
	params.Set("sort_by", "date")

	p, err := a.client.Get(ctx, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return Page{}, nil, err
	}
	// Keep credentials out of logs and error messages.
	p.URL = endpoint

	var resp adzunaResponse
	if err := decodeJSON(p, &resp); err != nil {
		return Page{}, nil, err
	}
	return p, resp.Results, nil
}

func (a *Adzuna) Normalize(_ Endpoint, raw RawPayload) ([]model.Job, error) {
	var jobs []model.Job
	seen := make(map[model.JobKey]struct{})
	for _, p := range raw.Pages {
		var resp adzunaResponse
		if err := decodeJSON(p, &resp); err != nil {
			return nil, err
		}
		for _, r := range resp.Results {
			posted := parseTime(r.Created)
			if posted != nil && !raw.Cutoff.IsZero() && posted.Before(raw.Cutoff) {
				continue
			}
			company := r.Company.DisplayName
			if company == "" {
				company = "Unknown"
			}
			contract := r.ContractType
			if contract == "" {
				contract = r.ContractTime
			}
			applyURL := r.RedirectURL
			if link, ok := raw.Links[r.RedirectURL]; ok {
				applyURL = link
			}
			job := finish(model.Job{
				ExternalID:     SyntheticID(company, r.Title, string(r.ID), nil),
				Company:        company,
				Title:          r.Title,
				Location:       model.StrPtr(r.Location.DisplayName),
				Department:     model.StrPtr(r.Category.Label),
				EmploymentType: MapEmploymentType(contract),
				Description:    model.StrPtr(cleanText(r.Description)),
				ApplyURL:       applyURL,
				PostedAt:       posted,
				MinSalary:      floatPtr(r.SalaryMin),
				MaxSalary:      floatPtr(r.SalaryMax),
			}, string(KindAdzuna))
			if !keep(job) {
				continue
			}
			// The same posting shows up under several terms.
			if _, dup := seen[job.Key()]; dup {
				continue
			}
			seen[job.Key()] = struct{}{}
			jobs = append(jobs, job)
		}
	}
	return jobs, nil
}

// ─── Apply links ─────────────────────────────────────────────────────────────

var applyButtonSelectors = []string{
	`a[data-qa="apply-button"]`,
	`a.apply-button`,
	`a:contains("Apply")`,
}

// resolveApplyLinks follows up to ResolveLimit redirect URLs of in-window
// postings. Failures keep the redirect URL.
func (a *Adzuna) resolveApplyLinks(ctx context.Context, raw RawPayload) map[string]string {
	links := make(map[string]string)
	tried := make(map[string]struct{})
	for _, p := range raw.Pages {
		var resp adzunaResponse
		if err := decodeJSON(p, &resp); err != nil {
			continue
		}
		for _, r := range resp.Results {
			if len(tried) >= a.ResolveLimit || ctx.Err() != nil {
				return links
			}
			if r.RedirectURL == "" {
				continue
			}
			if t := parseTime(r.Created); t != nil && t.Before(raw.Cutoff) {
				continue
			}
			if _, ok := tried[r.RedirectURL]; ok {
				continue
			}
			tried[r.RedirectURL] = struct{}{}

			page, err := a.client.Get(ctx, r.RedirectURL, nil)
			if err != nil {
				a.log.Debug("adzuna apply link not resolved", "url", r.RedirectURL, "error", err)
				continue
			}
			if link, ok := applyLinkFromHTML(r.RedirectURL, page.Body); ok {
				links[r.RedirectURL] = link
			}
		}
	}
	return links
}

// applyLinkFromHTML picks the first apply button on a redirect page and
// resolves it against base. Only absolute http(s) links count.
func applyLinkFromHTML(base string, body []byte) (string, bool) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", false
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	for _, sel := range applyButtonSelectors {
		href, ok := doc.Find(sel).First().Attr("href")
		href = strings.TrimSpace(href)
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			continue
		}
		ref, err := url.Parse(href)
		if err != nil {
			continue
		}
		link := baseURL.ResolveReference(ref)
		if link.Scheme != "http" && link.Scheme != "https" {
			continue
		}
		return link.String(), true
	}
	return "", false
}
