package scraper

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"

	"jobmate/jobsync/internal/model"
)

// SkillCareerHub reads the SkillCareerHub listing endpoint in one call. It
// is a full-sync source: the endpoint has no date filter.
type SkillCareerHub struct {
	URL    string
	APIKey string
	client *Client
}

func NewSkillCareerHub(url, apiKey string, c *Client) *SkillCareerHub {
	return &SkillCareerHub{URL: url, APIKey: apiKey, client: c}
}

func (s *SkillCareerHub) Kind() Kind { return KindSkillCareerHub }

type skillHubJob struct {
	ID              flexString `json:"id"`
	Title           string     `json:"title"`
	CompanyName     string     `json:"company_name"`
	CompanyLogo     string     `json:"company_logo"`
	CompanyLocation string     `json:"company_location"`
	Location        string     `json:"location"`
	Category        string     `json:"category"`
	Type            string     `json:"type"`
	Experience      string     `json:"experience"`
	Description     string     `json:"description"`
	Requirements    []string   `json:"requirements"`
	Benefits        []string   `json:"benefits"`
	ApplyURL        string     `json:"apply_url"`
	CreatedAt       string     `json:"created_at"`
}

func (s *SkillCareerHub) FetchRaw(ctx context.Context, ep Endpoint, _ FetchOptions) (RawPayload, error) {
	u := ep.URL
	if u == "" {
		u = s.URL
	}
	if u == "" {
		return RawPayload{}, errors.New("SKILLHUB_URL is not configured")
	}
	headers := map[string]string{
		"apikey":         s.APIKey,
		"Authorization":  "Bearer " + s.APIKey,
		"Accept-Profile": "public",
		"Origin":         "https://skillcareerhub.com",
		"Referer":        "https://skillcareerhub.com/",
		"Cache-Control":  "no-cache",
	}
	page, err := s.client.Get(ctx, u, headers)
	if err != nil {
		return RawPayload{}, err
	}
	return RawPayload{Pages: []Page{page}}, nil
}

func (s *SkillCareerHub) Normalize(_ Endpoint, raw RawPayload) ([]model.Job, error) {
	var jobs []model.Job
	for _, p := range raw.Pages {
		var list []skillHubJob
		if err := decodeJSON(p, &list); err != nil {
			return nil, err
		}
		for _, j := range list {
			location := j.Location
			if location == "" {
				location = j.CompanyLocation
			}
			level := MapExperienceLevel(j.Experience)
			if level == nil {
				entry := model.Entry
				level = &entry
			}
			job := finish(model.Job{
				ExternalID:      SyntheticID(j.CompanyName, j.Title, string(j.ID), nil),
				Company:         j.CompanyName,
				Title:           j.Title,
				Location:        model.StrPtr(location),
				Department:      model.StrPtr(j.Category),
				EmploymentType:  MapEmploymentType(j.Type),
				ExperienceLevel: level,
				Description:     model.StrPtr(buildDescription(j)),
				ApplyURL:        j.ApplyURL,
				PostedAt:        parseTime(j.CreatedAt),
				CompanyLogo:     model.StrPtr(j.CompanyLogo),
			}, string(KindSkillCareerHub))
			if keep(job) {
				jobs = append(jobs, job)
			}
		}
	}
	return jobs, nil
}

// buildDescription appends requirement and benefit bullets to the free
// text description.
func buildDescription(j skillHubJob) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(j.Description))
	writeList := func(heading string, items []string) {
		if len(items) == 0 {
			return
		}
		b.WriteString("\n\n=== " + heading + " ===\n")
		for i, it := range items {
			if i > 0 {
				b.WriteString("\n")
			}
			b.WriteString("• " + strings.TrimSpace(it))
		}
	}
	writeList("Requirements", j.Requirements)
	writeList("Benefits", j.Benefits)
	return strings.TrimSpace(b.String())
}
