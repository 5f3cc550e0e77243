package scraper

import (
	"context"
	"encoding/json"
	"strings"

	"jobmate/jobsync/internal/model"
)

const (
	appleSearchURL  = "https://jobs.apple.com/api/role/search"
	appleDetailURL  = "https://jobs.apple.com/en-us/details/"
	netflixSearch   = "https://jobs.netflix.com/api/search"
	netflixJobURL   = "https://jobs.netflix.com/jobs/"
	tiktokSearchURL = "https://careers.tiktok.com/api/position/list"
	tiktokJobURL    = "https://careers.tiktok.com/position/"
	tiktokPageLimit = 100
)

// flexString decodes a JSON string or number into its text form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// ─── Apple ───────────────────────────────────────────────────────────────────

// Apple posts a search query to the careers API.
type Apple struct{ client *Client }

func NewApple(c *Client) *Apple { return &Apple{client: c} }

func (a *Apple) Kind() Kind { return KindApple }

type appleResponse struct {
	SearchResults []struct {
		PositionID   flexString `json:"positionId"`
		PostingTitle string     `json:"postingTitle"`
		PostingDate  string     `json:"postingDate"`
		Locations    []struct {
			Name string `json:"name"`
		} `json:"locations"`
		Team struct {
			TeamName string `json:"teamName"`
		} `json:"team"`
		JobSummary string `json:"jobSummary"`
	} `json:"searchResults"`
}

func (a *Apple) FetchRaw(ctx context.Context, ep Endpoint, _ FetchOptions) (RawPayload, error) {
	u := ep.URL
	if u == "" {
		u = appleSearchURL
	}
	body := map[string]interface{}{"filters": map[string]interface{}{}, "page": 1}
	if len(ep.Terms) > 0 {
		body["query"] = strings.Join(ep.Terms, " ")
	}
	page, err := a.client.PostJSON(ctx, u, body, nil)
	if err != nil {
		return RawPayload{}, err
	}
	return RawPayload{Pages: []Page{page}}, nil
}

func (a *Apple) Normalize(ep Endpoint, raw RawPayload) ([]model.Job, error) {
	company := companyOr(ep, "Apple")
	var jobs []model.Job
	for _, p := range raw.Pages {
		var resp appleResponse
		if err := decodeJSON(p, &resp); err != nil {
			return nil, err
		}
		for _, j := range resp.SearchResults {
			locs := make([]string, 0, len(j.Locations))
			for _, l := range j.Locations {
				if l.Name != "" {
					locs = append(locs, l.Name)
				}
			}
			id := string(j.PositionID)
			job := finish(model.Job{
				ExternalID:  id,
				Company:     company,
				Title:       j.PostingTitle,
				Location:    model.StrPtr(strings.Join(locs, ", ")),
				Department:  model.StrPtr(j.Team.TeamName),
				Description: model.StrPtr(j.JobSummary),
				ApplyURL:    appleDetailURL + id,
				PostedAt:    parseTime(j.PostingDate),
			}, "apple-api")
			if keep(job) {
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

// ─── Netflix ─────────────────────────────────────────────────────────────────

// Netflix reads the careers search API.
type Netflix struct{ client *Client }

func NewNetflix(c *Client) *Netflix { return &Netflix{client: c} }

func (n *Netflix) Kind() Kind { return KindNetflix }

type netflixResponse struct {
	Records struct {
		Postings []netflixPosting `json:"postings"`
	} `json:"records"`
}

type netflixPosting struct {
	ExternalID flexString `json:"external_id"`
	Text       string     `json:"text"`
	Location   string     `json:"location"`
	Team       string     `json:"team"`
	CreatedAt  string     `json:"created_at"`
}

// netflixFlat covers the older shape where records is the posting list.
type netflixFlat struct {
	Records []netflixPosting `json:"records"`
}

func (n *Netflix) FetchRaw(ctx context.Context, ep Endpoint, _ FetchOptions) (RawPayload, error) {
	u := ep.URL
	if u == "" {
		u = netflixSearch
	}
	page, err := n.client.Get(ctx, u, nil)
	if err != nil {
		return RawPayload{}, err
	}
	return RawPayload{Pages: []Page{page}}, nil
}

func (n *Netflix) Normalize(ep Endpoint, raw RawPayload) ([]model.Job, error) {
	company := companyOr(ep, "Netflix")
	var jobs []model.Job
	for _, p := range raw.Pages {
		postings, err := decodeNetflix(p)
		if err != nil {
			return nil, err
		}
		for _, j := range postings {
			id := string(j.ExternalID)
			job := finish(model.Job{
				ExternalID: id,
				Company:    company,
				Title:      j.Text,
				Location:   model.StrPtr(j.Location),
				Department: model.StrPtr(j.Team),
				ApplyURL:   netflixJobURL + id,
				PostedAt:   parseTime(j.CreatedAt),
			}, "netflix-api")
			if keep(job) {
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

func decodeNetflix(p Page) ([]netflixPosting, error) {
	var flat netflixFlat
	if err := decodeJSON(p, &flat); err == nil {
		return flat.Records, nil
	}
	var nested netflixResponse
	if err := decodeJSON(p, &nested); err != nil {
		return nil, err
	}
	return nested.Records.Postings, nil
}

// ─── TikTok ──────────────────────────────────────────────────────────────────

// TikTok posts a position-list query.
type TikTok struct{ client *Client }

func NewTikTok(c *Client) *TikTok { return &TikTok{client: c} }

func (t *TikTok) Kind() Kind { return KindTikTok }

type tiktokResponse struct {
	Data struct {
		List []struct {
			ID         flexString `json:"id"`
			Title      string     `json:"title"`
			Location   string     `json:"location"`
			Category   string     `json:"category"`
			Type       string     `json:"type"`
			CreateTime int64      `json:"create_time"`
		} `json:"list"`
	} `json:"data"`
}

func (t *TikTok) FetchRaw(ctx context.Context, ep Endpoint, _ FetchOptions) (RawPayload, error) {
	u := ep.URL
	if u == "" {
		u = tiktokSearchURL
	}
	body := map[string]interface{}{
		"keyword":  strings.Join(ep.Terms, " "),
		"category": "",
		"location": "",
		"type":     "",
		"limit":    tiktokPageLimit,
	}
	page, err := t.client.PostJSON(ctx, u, body, nil)
	if err != nil {
		return RawPayload{}, err
	}
	return RawPayload{Pages: []Page{page}}, nil
}

func (t *TikTok) Normalize(ep Endpoint, raw RawPayload) ([]model.Job, error) {
	company := companyOr(ep, "TikTok")
	var jobs []model.Job
	for _, p := range raw.Pages {
		var resp tiktokResponse
		if err := decodeJSON(p, &resp); err != nil {
			return nil, err
		}
		for _, j := range resp.Data.List {
			id := string(j.ID)
			job := finish(model.Job{
				ExternalID:     id,
				Company:        company,
				Title:          j.Title,
				Location:       model.StrPtr(j.Location),
				Department:     model.StrPtr(j.Category),
				EmploymentType: MapEmploymentType(j.Type),
				ApplyURL:       tiktokJobURL + id,
				PostedAt:       epoch(j.CreateTime),
			}, "tiktok-api")
			if keep(job) {
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}
