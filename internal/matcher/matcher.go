// Package matcher selects, scores, tiers and diversifies the jobs a user is
// sent in a digest. All filtering happens in one SQL statement.
package matcher

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5"

	"jobmate/jobsync/internal/model"
)

const (
	// CompanyCap is the most jobs one company may contribute to a digest.
	CompanyCap = 2
	// TopPickCount is the size of the top-picks tier.
	TopPickCount = 3
	// DefaultLimit is used when FindJobs is called with limit <= 0.
	DefaultLimit = 10
)

// Querier is the slice of pgxpool.Pool the matcher needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Preferences are one user's matching inputs.
type Preferences struct {
	UserID    int64
	Titles    []string
	Skills    []string
	RoleTypes []string
}

// Matcher runs the matching query.
type Matcher struct {
	db Querier
}

// New returns a Matcher reading through db.
func New(db Querier) *Matcher {
	return &Matcher{db: db}
}

// FindJobs returns up to limit jobs for p. A user with no titles gets an
// empty digest without a query being sent.
func (m *Matcher) FindJobs(ctx context.Context, p Preferences, limit int) (model.Digest, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}
	titles := cleanTerms(p.Titles)
	if len(titles) == 0 {
		return model.Digest{}, nil
	}

	sql, args := buildQuery(p.UserID, titles, cleanTerms(p.Skills), mapRoleTypes(p.RoleTypes), limit)
	rows, err := m.db.Query(ctx, sql, args...)
	if err != nil {
		return model.Digest{}, errors.Wrapf(err, "match jobs for user %d", p.UserID)
	}
	defer rows.Close()

	var cands []model.Candidate
	for rows.Next() {
		c, err := scanCandidate(rows)
		if err != nil {
			return model.Digest{}, errors.Wrap(err, "scan candidate")
		}
		cands = append(cands, c)
	}
	if err := rows.Err(); err != nil {
		return model.Digest{}, errors.Wrapf(err, "match jobs for user %d", p.UserID)
	}

	cands = capPerCompany(cands, CompanyCap)
	if len(cands) > limit {
		cands = cands[:limit]
	}
	return tier(cands), nil
}

// ─── Query ───────────────────────────────────────────────────────────────────

// args is a positional argument list that hands out placeholders.
type args []any

func (a *args) add(v any) string {
	*a = append(*a, v)
	return fmt.Sprintf("$%d", len(*a))
}

const selectColumns = `j.id, j.external_id, j.company, j.title, j.location,
               j.employment_type::text AS employment_type,
               j.experience_level::text AS experience_level,
               j.apply_url, j.posted_at, j.is_remote, j.company_logo`

// buildQuery assembles the matching statement. ROW_NUMBER over company
// enforces the diversity cap before LIMIT is applied, so capped companies
// never starve the result.
func buildQuery(userID int64, titles, skills []string, roles roleFilter, limit int) (string, []any) {
	var a args
	user := a.add(userID)

	titleConds := make([]string, len(titles))
	for i, t := range titles {
		titleConds[i] = "j.title ILIKE " + a.add(likePattern(t))
	}

	score := "0"
	if len(skills) > 0 {
		cases := make([]string, len(skills))
		for i, s := range skills {
			cases[i] = "CASE WHEN j.description ILIKE " + a.add(likePattern(s)) + " THEN 1 ELSE 0 END"
		}
		score = "(" + strings.Join(cases, " + ") + ")"
	}

	var roleConds []string
	if len(roles.Levels) > 0 {
		roleConds = append(roleConds,
			"(j.experience_level IS NULL OR j.experience_level::text = ANY("+a.add(roles.Levels)+"::text[]))")
	}
	if len(roles.Types) > 0 {
		roleConds = append(roleConds,
			"(j.employment_type IS NULL OR j.employment_type::text = ANY("+a.add(roles.Types)+"::text[]))")
	}

	capArg := a.add(CompanyCap)
	limitArg := a.add(limit)

	sql := `
WITH candidates AS (
    SELECT ` + selectColumns + `,
           ` + score + ` AS skill_score
    FROM jobs j
    WHERE j.is_active = TRUE
      AND j.posted_at >= NOW() - INTERVAL '7 days'
      AND (` + strings.Join(roleConds, " OR ") + `)
      AND (` + strings.Join(titleConds, " OR ") + `)
      AND NOT EXISTS (
          SELECT 1 FROM applied_jobs aj
          WHERE aj.user_id = ` + user + ` AND aj.job_id = j.id
      )
      AND NOT EXISTS (
          SELECT 1 FROM email_log el
          WHERE el.user_id = ` + user + `
            AND el.job_id = j.id
            AND el.sent_at >= NOW() - INTERVAL '7 days'
      )
),
ranked AS (
    SELECT c.*,
           ROW_NUMBER() OVER (
               PARTITION BY c.company
               ORDER BY c.skill_score DESC, c.posted_at DESC, c.id DESC
           ) AS company_rank
    FROM candidates c
)
SELECT id, external_id, company, title, location, employment_type,
       experience_level, apply_url, posted_at, is_remote, company_logo,
       skill_score
FROM ranked
WHERE company_rank <= ` + capArg + `
ORDER BY skill_score DESC, posted_at DESC, id DESC
LIMIT ` + limitArg
	return sql, a
}

// likePattern wraps s for a contains match, escaping LIKE wildcards.
func likePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}

// cleanTerms trims, drops empties and removes case-insensitive duplicates.
func cleanTerms(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		k := strings.ToLower(s)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s)
	}
	return out
}

func scanCandidate(rows pgx.Rows) (model.Candidate, error) {
	var (
		c          model.Candidate
		employment *string
		level      *string
		applyURL   *string
		postedAt   *time.Time
		score      int32
	)
	if err := rows.Scan(&c.ID, &c.ExternalID, &c.Company, &c.Title, &c.Location,
		&employment, &level, &applyURL, &postedAt, &c.IsRemote, &c.CompanyLogo, &score); err != nil {
		return c, err
	}
	if employment != nil {
		c.EmploymentType = model.EmploymentType(*employment)
	}
	if level != nil {
		l := model.ExperienceLevel(*level)
		c.ExperienceLevel = &l
	}
	c.ApplyURL = model.Deref(applyURL)
	c.PostedAt = postedAt
	c.IsActive = true
	c.SkillScore = int(score)
	return c, nil
}

// ─── Post-processing ─────────────────────────────────────────────────────────

// capPerCompany keeps at most n jobs per company, preserving order. The
// query already enforces this; the guard keeps the invariant local.
func capPerCompany(cands []model.Candidate, n int) []model.Candidate {
	counts := make(map[string]int)
	out := cands[:0:0]
	for _, c := range cands {
		if counts[c.Company] >= n {
			continue
		}
		counts[c.Company]++
		out = append(out, c)
	}
	return out
}

// tier puts the first TopPickCount candidates with a skill match into
// TopPicks and everything else, in order, into Recommended.
func tier(cands []model.Candidate) model.Digest {
	var d model.Digest
	for _, c := range cands {
		if c.SkillScore > 0 && len(d.TopPicks) < TopPickCount {
			d.TopPicks = append(d.TopPicks, c)
			continue
		}
		d.Recommended = append(d.Recommended, c)
	}
	return d
}
