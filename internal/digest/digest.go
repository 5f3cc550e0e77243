// Package digest renders the job digest email.
package digest

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/cockroachdb/errors"

	"jobmate/jobsync/internal/model"
)

//go:embed digest.html.tmpl
var digestHTML string

// DefaultAppURL is linked from the footer when APP_URL is unset.
const DefaultAppURL = "https://trackhire.com"

var funcs = template.FuncMap{
	"join": strings.Join,
	"company": func(c model.Candidate) string {
		if c.Company == "" {
			return "Company not specified"
		}
		return c.Company
	},
	"location": func(c model.Candidate) string {
		if l := model.Deref(c.Location); l != "" {
			return l
		}
		return "Location not specified"
	},
	"posted": func(t *time.Time) string {
		if t == nil || t.IsZero() {
			return "Recently posted"
		}
		return t.Format("2 Jan 2006")
	},
}

// Renderer turns a digest into HTML. Every interpolated value goes through
// html/template's contextual escaping.
type Renderer struct {
	appURL string
	tmpl   *template.Template
}

// NewRenderer parses the embedded template.
func NewRenderer(appURL string) (*Renderer, error) {
	if appURL == "" {
		appURL = DefaultAppURL
	}
	t, err := template.New("digest").Funcs(funcs).Parse(digestHTML)
	if err != nil {
		return nil, errors.Wrap(err, "parse digest template")
	}
	return &Renderer{appURL: strings.TrimRight(appURL, "/"), tmpl: t}, nil
}

type view struct {
	Name           string
	Count          int
	Interests      []string
	TopPicks       []model.Candidate
	Recommended    []model.Candidate
	JobsURL        string
	UnsubscribeURL string
}

// Render returns the HTML body for u. It has no side effects.
func (r *Renderer) Render(u model.User, d model.Digest) (string, error) {
	name := strings.TrimSpace(u.Username)
	if name == "" {
		name = "there"
	}
	interests := append(append([]string{}, u.JobTitles...), u.Skills...)

	var buf bytes.Buffer
	err := r.tmpl.Execute(&buf, view{
		Name:           name,
		Count:          d.Len(),
		Interests:      interests,
		TopPicks:       d.TopPicks,
		Recommended:    d.Recommended,
		JobsURL:        r.appURL + "/jobs",
		UnsubscribeURL: r.appURL + "/settings/notifications",
	})
	if err != nil {
		return "", errors.Wrapf(err, "render digest for user %d", u.ID)
	}
	return buf.String(), nil
}

// Subject is the subject line for a digest of n jobs.
func Subject(n int) string {
	if n == 1 {
		return "🎯 1 new job match for your profile"
	}
	return fmt.Sprintf("🎯 %d new jobs matching your preferences", n)
}
