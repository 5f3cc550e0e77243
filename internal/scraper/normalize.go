package scraper

import (
	"strconv"
	"strings"
	"time"

	"github.com/gosimple/slug"

	"jobmate/jobsync/internal/model"
)

// MapEmploymentType maps free-text contract descriptions to the enum.
// Unknown or empty input falls back to FULL_TIME.
func MapEmploymentType(raw string) model.EmploymentType {
	t := strings.ToLower(raw)
	switch {
	case t == "":
		return model.FullTime
	case strings.Contains(t, "intern"):
		return model.Internship
	case strings.Contains(t, "part"):
		return model.PartTime
	case strings.Contains(t, "contract"):
		return model.Contract
	case strings.Contains(t, "temp"):
		return model.Temporary
	case strings.Contains(t, "free"):
		return model.Freelance
	default:
		return model.FullTime
	}
}

// MapExperienceLevel maps seniority text to the enum, or nil when nothing
// matches.
func MapExperienceLevel(raw string) *model.ExperienceLevel {
	e := strings.ToLower(raw)
	var lvl model.ExperienceLevel
	switch {
	case e == "":
		return nil
	case strings.Contains(e, "entry"), strings.Contains(e, "fresher"), strings.Contains(e, "graduate"), strings.HasPrefix(e, "0"):
		lvl = model.Entry
	case strings.Contains(e, "junior"):
		lvl = model.Junior
	case strings.Contains(e, "mid"):
		lvl = model.Mid
	case strings.Contains(e, "senior"):
		lvl = model.Senior
	case strings.Contains(e, "lead"), strings.Contains(e, "staff"), strings.Contains(e, "principal"):
		lvl = model.Lead
	case strings.Contains(e, "exec"), strings.Contains(e, "director"):
		lvl = model.Executive
	default:
		return nil
	}
	return &lvl
}

// SyntheticID builds a stable id for sources whose raw ids are not unique
// on their own: company_title_rawid, plus the posting date when known.
func SyntheticID(company, title, rawID string, postedAt *time.Time) string {
	parts := make([]string, 0, 4)
	for _, p := range []string{idPart(company), idPart(title), strings.TrimSpace(rawID)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if postedAt != nil {
		parts = append(parts, postedAt.UTC().Format("20060102"))
	}
	return strings.Join(parts, "_")
}

func idPart(s string) string {
	return strings.ReplaceAll(slug.Make(s), "-", "_")
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
}

// parseTime accepts the date shapes seen across providers. Unparseable
// input yields nil.
func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return epoch(n)
	}
	return nil
}

// epoch treats values above 1e12 as milliseconds, the rest as seconds.
func epoch(n int64) *time.Time {
	if n <= 0 {
		return nil
	}
	var t time.Time
	if n > 1_000_000_000_000 {
		t = time.UnixMilli(n).UTC()
	} else {
		t = time.Unix(n, 0).UTC()
	}
	return &t
}

func floatPtr(f float64) *float64 {
	if f <= 0 {
		return nil
	}
	return &f
}

func cleanText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// finish applies the defaults shared by every adapter.
func finish(j model.Job, source string) model.Job {
	j.Title = cleanText(j.Title)
	j.Company = strings.TrimSpace(j.Company)
	j.Source = source
	j.IsActive = true
	if j.EmploymentType == "" {
		j.EmploymentType = model.FullTime
	}
	j.IsRemote = DetectRemote(model.Deref(j.Location), j.Title)
	return j
}

// keep reports whether a normalized job is usable: it needs an identity
// and a title.
func keep(j model.Job) bool {
	return j.Company != "" && j.ExternalID != "" && j.Title != ""
}
