package scraper

import (
	"bytes"
	"context"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"
	"github.com/gocolly/colly/v2"

	"jobmate/jobsync/internal/model"
	"jobmate/jobsync/internal/retry"
)

// htmlLayout describes where a career page keeps its job cards.
type htmlLayout struct {
	items    string
	title    string // empty: first anchor text
	location string
	baseURL  string // prefix for relative links; empty: page origin
}

var htmlLayouts = map[Kind]htmlLayout{
	KindWorkday: {
		items:    "li[data-automation-id='compositeContainer'], .job-item, [data-automation-id='jobPostingItem']",
		title:    "a, h3",
		location: "[data-automation-id='compositeLocation'], .location",
	},
	KindPhenom: {
		items:    ".job-item, .jobs-list-item, [data-ph-at-job-title-text]",
		title:    "h3, .job-title, [data-ph-at-job-title-text]",
		location: ".location, [data-ph-at-job-location-text]",
	},
	KindWorkable: {
		items:    "li.job",
		location: ".job-location",
		baseURL:  "https://apply.workable.com",
	},
}

// HTMLBoard scrapes server-rendered career pages with colly. Pages that
// only render client-side yield zero cards and are logged as empty.
type HTMLBoard struct {
	kind    Kind
	layout  htmlLayout
	timeout time.Duration
	delay   time.Duration
	policy  retry.Policy
}

// NewHTMLBoard returns the adapter for one of workday, phenom or workable.
func NewHTMLBoard(kind Kind, timeout, delay time.Duration, policy retry.Policy) *HTMLBoard {
	if timeout <= 0 {
		timeout = httpTimeout
	}
	policy.RetryIf = retry.IsRetryable
	return &HTMLBoard{kind: kind, layout: htmlLayouts[kind], timeout: timeout, delay: delay, policy: policy}
}

func (h *HTMLBoard) Kind() Kind { return h.kind }

func (h *HTMLBoard) FetchRaw(ctx context.Context, ep Endpoint, _ FetchOptions) (RawPayload, error) {
	if ep.URL == "" {
		return RawPayload{}, errors.Newf("%s endpoint %q has no url", h.kind, ep.Company)
	}

	c := colly.NewCollector(
		colly.UserAgent(DefaultUserAgent),
		colly.StdlibContext(ctx),
	)
	c.AllowURLRevisit = true
	c.SetRequestTimeout(h.timeout)
	if h.delay > 0 {
		if err := c.Limit(&colly.LimitRule{DomainGlob: "*", Parallelism: 1, RandomDelay: h.delay}); err != nil {
			return RawPayload{}, errors.Wrap(err, "colly limit rule")
		}
	}

	var (
		page   Page
		status int
		body   []byte
	)
	c.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.5")
	})
	c.OnResponse(func(r *colly.Response) {
		page = Page{
			URL:    r.Request.URL.String(),
			Format: formatOf(r.Headers.Get("Content-Type")),
			Body:   r.Body,
		}
	})
	c.OnError(func(r *colly.Response, _ error) {
		status = r.StatusCode
		body = r.Body
	})

	err := h.policy.Do(ctx, "GET "+ep.URL, func(context.Context) error {
		status, body = 0, nil
		if err := c.Visit(ep.URL); err != nil {
			if status != 0 {
				return &retry.StatusError{Code: status, URL: ep.URL, Body: string(body)}
			}
			return errors.Wrapf(err, "visit %s", ep.URL)
		}
		return nil
	})
	if err != nil {
		return RawPayload{}, err
	}
	// Career pages sometimes omit the header; the layout is HTML regardless.
	page.Format = FormatHTML
	return RawPayload{Pages: []Page{page}}, nil
}

func (h *HTMLBoard) Normalize(ep Endpoint, raw RawPayload) ([]model.Job, error) {
	var jobs []model.Job
	for _, p := range raw.Pages {
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
		if err != nil {
			return nil, errors.Wrap(err, "parse html")
		}
		base := h.layout.baseURL
		if base == "" {
			base = origin(p.URL, ep.URL)
		}

		seen := make(map[string]struct{})
		doc.Find(h.layout.items).Each(func(_ int, item *goquery.Selection) {
			anchor := item.Find("a").First()
			if goquery.NodeName(item) == "a" {
				anchor = item
			}
			link, _ := anchor.Attr("href")
			link = strings.TrimSpace(link)

			var title string
			if h.layout.title != "" {
				title = cleanText(item.Find(h.layout.title).First().Text())
			}
			if title == "" {
				title = cleanText(anchor.Text())
			}
			if title == "" || link == "" {
				return
			}
			if _, dup := seen[link]; dup {
				return
			}
			seen[link] = struct{}{}

			job := finish(model.Job{
				ExternalID: lastSegment(link),
				Company:    companyOr(ep, ""),
				Title:      title,
				Location:   model.StrPtr(cleanText(item.Find(h.layout.location).First().Text())),
				ApplyURL:   absolute(base, link),
			}, string(h.kind))
			if keep(job) {
				jobs = append(jobs, job)
			}
		})
	}
	return jobs, nil
}

func origin(candidates ...string) string {
	for _, c := range candidates {
		u, err := url.Parse(c)
		if err == nil && u.Scheme != "" && u.Host != "" {
			return u.Scheme + "://" + u.Host
		}
	}
	return ""
}

func absolute(base, link string) string {
	if strings.HasPrefix(link, "http://") || strings.HasPrefix(link, "https://") {
		return link
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(link, "/")
}

// lastSegment returns the final path element of a link, which career sites
// use as the requisition id.
func lastSegment(link string) string {
	u, err := url.Parse(link)
	p := link
	if err == nil {
		p = u.Path
	}
	seg := path.Base(strings.TrimRight(p, "/"))
	if seg == "." || seg == "/" || seg == "" {
		return link
	}
	return seg
}
