package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/cockroachdb/errors"

	"jobmate/jobsync/internal/model"
)

// ─── Greenhouse ──────────────────────────────────────────────────────────────

const greenhouseBaseURL = "https://boards-api.greenhouse.io/v1/boards"

// Greenhouse reads the public board API.
type Greenhouse struct{ client *Client }

func NewGreenhouse(c *Client) *Greenhouse { return &Greenhouse{client: c} }

func (g *Greenhouse) Kind() Kind { return KindGreenhouse }

type greenhouseResponse struct {
	Jobs []struct {
		ID          json.Number `json:"id"`
		Title       string      `json:"title"`
		AbsoluteURL string      `json:"absolute_url"`
		UpdatedAt   string      `json:"updated_at"`
		Content     string      `json:"content"`
		Location    struct {
			Name string `json:"name"`
		} `json:"location"`
		Departments []struct {
			Name string `json:"name"`
		} `json:"departments"`
	} `json:"jobs"`
}

func (g *Greenhouse) FetchRaw(ctx context.Context, ep Endpoint, _ FetchOptions) (RawPayload, error) {
	u := ep.URL
	if u == "" {
		u = fmt.Sprintf("%s/%s/jobs?content=true", greenhouseBaseURL, url.PathEscape(ep.Board))
	}
	page, err := g.client.Get(ctx, u, nil)
	if err != nil {
		return RawPayload{}, err
	}
	return RawPayload{Pages: []Page{page}}, nil
}

func (g *Greenhouse) Normalize(ep Endpoint, raw RawPayload) ([]model.Job, error) {
	company := companyOr(ep, "")
	var jobs []model.Job
	for _, p := range raw.Pages {
		var resp greenhouseResponse
		if err := decodeJSON(p, &resp); err != nil {
			return nil, err
		}
		for _, j := range resp.Jobs {
			depts := make([]string, 0, len(j.Departments))
			for _, d := range j.Departments {
				if d.Name != "" {
					depts = append(depts, d.Name)
				}
			}
			job := finish(model.Job{
				ExternalID:  j.ID.String(),
				Company:     company,
				Title:       j.Title,
				Location:    model.StrPtr(j.Location.Name),
				Department:  model.StrPtr(strings.Join(depts, ", ")),
				Description: model.StrPtr(htmlToText(j.Content)),
				ApplyURL:    j.AbsoluteURL,
				PostedAt:    parseTime(j.UpdatedAt),
			}, string(KindGreenhouse))
			if keep(job) {
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

// ─── Lever ───────────────────────────────────────────────────────────────────

const (
	leverBaseURL  = "https://api.lever.co/v0/postings"
	leverJobsHost = "https://jobs.lever.co"
)

// Lever reads the postings API. Some boards answer with an HTML page instead
// of JSON; Normalize then falls back to reading the page's anchors.
type Lever struct{ client *Client }

func NewLever(c *Client) *Lever { return &Lever{client: c} }

func (l *Lever) Kind() Kind { return KindLever }

type leverPosting struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	DescriptionPlain string `json:"descriptionPlain"`
	HostedURL        string `json:"hostedUrl"`
	CreatedAt        int64  `json:"createdAt"`
	Categories       struct {
		Location   string `json:"location"`
		Team       string `json:"team"`
		Commitment string `json:"commitment"`
	} `json:"categories"`
}

func (l *Lever) FetchRaw(ctx context.Context, ep Endpoint, _ FetchOptions) (RawPayload, error) {
	u := ep.URL
	if u == "" {
		u = fmt.Sprintf("%s/%s?mode=json", leverBaseURL, url.PathEscape(ep.Board))
	}
	page, err := l.client.Get(ctx, u, nil)
	if err != nil {
		return RawPayload{}, err
	}
	return RawPayload{Pages: []Page{page}}, nil
}

func (l *Lever) Normalize(ep Endpoint, raw RawPayload) ([]model.Job, error) {
	company := companyOr(ep, "")
	var jobs []model.Job
	for _, p := range raw.Pages {
		if p.Format == FormatHTML {
			htmlJobs, err := leverFromHTML(company, p.Body)
			if err != nil {
				return nil, err
			}
			jobs = append(jobs, htmlJobs...)
			continue
		}

		var postings []leverPosting
		if err := decodeJSON(p, &postings); err != nil {
			return nil, err
		}
		for _, j := range postings {
			job := finish(model.Job{
				ExternalID:     j.ID,
				Company:        company,
				Title:          j.Text,
				Location:       model.StrPtr(j.Categories.Location),
				Department:     model.StrPtr(j.Categories.Team),
				EmploymentType: MapEmploymentType(j.Categories.Commitment),
				Description:    model.StrPtr(j.DescriptionPlain),
				ApplyURL:       j.HostedURL,
				PostedAt:       epoch(j.CreatedAt),
			}, string(KindLever))
			if keep(job) {
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

// leverFromHTML treats every titled anchor as a posting. Structured fields
// stay empty; the link doubles as the external id.
func leverFromHTML(company string, body []byte) ([]model.Job, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "parse lever html")
	}
	var jobs []model.Job
	seen := make(map[string]struct{})
	doc.Find("a").Each(func(_ int, a *goquery.Selection) {
		title := cleanText(a.Text())
		link, _ := a.Attr("href")
		link = strings.TrimSpace(link)
		if title == "" || link == "" || strings.HasPrefix(link, "#") {
			return
		}
		if _, dup := seen[link]; dup {
			return
		}
		seen[link] = struct{}{}
		applyURL := link
		if !strings.HasPrefix(link, "http") {
			applyURL = leverJobsHost + "/" + strings.TrimPrefix(link, "/")
		}
		job := finish(model.Job{
			ExternalID: link,
			Company:    company,
			Title:      title,
			ApplyURL:   applyURL,
		}, "lever-html")
		if keep(job) {
			jobs = append(jobs, job)
		}
	})
	return jobs, nil
}

// ─── Ashby ───────────────────────────────────────────────────────────────────

const ashbyBaseURL = "https://api.ashbyhq.com/posting-api/job-board"

// Ashby reads the public posting API.
type Ashby struct{ client *Client }

func NewAshby(c *Client) *Ashby { return &Ashby{client: c} }

func (a *Ashby) Kind() Kind { return KindAshby }

type ashbyResponse struct {
	Jobs []struct {
		ID               string `json:"id"`
		Title            string `json:"title"`
		Location         string `json:"location"`
		Department       string `json:"department"`
		EmploymentType   string `json:"employmentType"`
		DescriptionPlain string `json:"descriptionPlain"`
		ApplyURL         string `json:"applyUrl"`
		PublishedAt      string `json:"publishedAt"`
		IsRemote         bool   `json:"isRemote"`
	} `json:"jobs"`
}

func (a *Ashby) FetchRaw(ctx context.Context, ep Endpoint, _ FetchOptions) (RawPayload, error) {
	u := ep.URL
	if u == "" {
		u = fmt.Sprintf("%s/%s", ashbyBaseURL, url.PathEscape(ep.Board))
	}
	page, err := a.client.Get(ctx, u, nil)
	if err != nil {
		return RawPayload{}, err
	}
	return RawPayload{Pages: []Page{page}}, nil
}

func (a *Ashby) Normalize(ep Endpoint, raw RawPayload) ([]model.Job, error) {
	company := companyOr(ep, "")
	var jobs []model.Job
	for _, p := range raw.Pages {
		var resp ashbyResponse
		if err := decodeJSON(p, &resp); err != nil {
			return nil, err
		}
		for _, j := range resp.Jobs {
			job := finish(model.Job{
				ExternalID:     j.ID,
				Company:        company,
				Title:          j.Title,
				Location:       model.StrPtr(j.Location),
				Department:     model.StrPtr(j.Department),
				EmploymentType: MapEmploymentType(j.EmploymentType),
				Description:    model.StrPtr(j.DescriptionPlain),
				ApplyURL:       j.ApplyURL,
				PostedAt:       parseTime(j.PublishedAt),
			}, string(KindAshby))
			job.IsRemote = job.IsRemote || j.IsRemote
			if keep(job) {
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

// ─── SmartRecruiters ─────────────────────────────────────────────────────────

const (
	smartRecruitersBaseURL  = "https://api.smartrecruiters.com/v1/companies"
	smartRecruitersPageSize = 100
	smartRecruitersMaxPages = 10
)

// SmartRecruiters pages through the postings API with offset/limit.
type SmartRecruiters struct{ client *Client }

func NewSmartRecruiters(c *Client) *SmartRecruiters { return &SmartRecruiters{client: c} }

func (s *SmartRecruiters) Kind() Kind { return KindSmartRecruiters }

// labelled decodes either a plain string or an object carrying a label.
type labelled string

func (l *labelled) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*l = labelled(s)
		return nil
	}
	var obj struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	*l = labelled(obj.Label)
	return nil
}

type smartRecruitersResponse struct {
	TotalFound int `json:"totalFound"`
	Content    []struct {
		ID               string   `json:"id"`
		Name             string   `json:"name"`
		Ref              string   `json:"ref"`
		ReleasedDate     string   `json:"releasedDate"`
		Department       labelled `json:"department"`
		TypeOfEmployment labelled `json:"typeOfEmployment"`
		ExperienceLevel  labelled `json:"experienceLevel"`
		Company          struct {
			Name string `json:"name"`
		} `json:"company"`
		Location struct {
			City    string `json:"city"`
			Country string `json:"country"`
			Remote  bool   `json:"remote"`
		} `json:"location"`
	} `json:"content"`
}

func (s *SmartRecruiters) FetchRaw(ctx context.Context, ep Endpoint, _ FetchOptions) (RawPayload, error) {
	base := ep.URL
	if base == "" {
		base = fmt.Sprintf("%s/%s/postings", smartRecruitersBaseURL, url.PathEscape(ep.Board))
	}

	var raw RawPayload
	for page, offset := 0, 0; page < smartRecruitersMaxPages; page++ {
		u, err := withQuery(base, map[string]string{
			"limit":  strconv.Itoa(smartRecruitersPageSize),
			"offset": strconv.Itoa(offset),
		})
		if err != nil {
			return raw, err
		}
		p, err := s.client.Get(ctx, u, nil)
		if err != nil {
			return raw, errors.Wrapf(err, "offset %d", offset)
		}
		raw.Pages = append(raw.Pages, p)

		var resp smartRecruitersResponse
		if err := decodeJSON(p, &resp); err != nil {
			return raw, err
		}
		offset += len(resp.Content)
		if len(resp.Content) < smartRecruitersPageSize || offset >= resp.TotalFound {
			break
		}
	}
	return raw, nil
}

func (s *SmartRecruiters) Normalize(ep Endpoint, raw RawPayload) ([]model.Job, error) {
	var jobs []model.Job
	for _, p := range raw.Pages {
		var resp smartRecruitersResponse
		if err := decodeJSON(p, &resp); err != nil {
			return nil, err
		}
		for _, j := range resp.Content {
			job := finish(model.Job{
				ExternalID:      j.ID,
				Company:         companyOr(ep, j.Company.Name),
				Title:           j.Name,
				Location:        model.StrPtr(j.Location.City),
				Department:      model.StrPtr(string(j.Department)),
				EmploymentType:  MapEmploymentType(string(j.TypeOfEmployment)),
				ExperienceLevel: MapExperienceLevel(string(j.ExperienceLevel)),
				ApplyURL:        j.Ref,
				PostedAt:        parseTime(j.ReleasedDate),
			}, string(KindSmartRecruiters))
			job.IsRemote = job.IsRemote || j.Location.Remote
			if keep(job) {
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

// ─── helpers ─────────────────────────────────────────────────────────────────

func decodeJSON(p Page, v interface{}) error {
	if p.Format == FormatHTML {
		return shapeErrorf("%s: expected JSON, got HTML", p.URL)
	}
	dec := json.NewDecoder(bytes.NewReader(p.Body))
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return errors.Mark(errors.Wrapf(err, "decode %s", p.URL), errShape)
	}
	return nil
}

func withQuery(base string, params map[string]string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", errors.Wrapf(err, "parse url %q", base)
	}
	q := u.Query()
	for k, v := range params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// htmlToText strips markup from descriptions delivered as (escaped) HTML.
func htmlToText(s string) string {
	if s == "" {
		return ""
	}
	// Greenhouse double-escapes: the JSON string holds &lt;p&gt;.
	s = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&amp;", "&").Replace(s)
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return cleanText(s)
	}
	return cleanText(doc.Text())
}
