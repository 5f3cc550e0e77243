package matcher

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobsync/internal/model"
	"jobmate/jobsync/internal/store"
	"jobmate/jobsync/internal/testutil"
)

// ─── Unit ────────────────────────────────────────────────────────────────────

func TestMapRoleTypes(t *testing.T) {
	f := mapRoleTypes([]string{"Intern", "Junior", "junior", "Full-Time", "astronaut"})
	assert.Equal(t, []string{"JUNIOR"}, f.Levels)
	assert.Equal(t, []string{"INTERNSHIP", "FULL_TIME"}, f.Types)
}

func TestMapRoleTypes_DefaultsToSenior(t *testing.T) {
	assert.Equal(t, roleFilter{Levels: []string{"SENIOR"}}, mapRoleTypes(nil))
	assert.Equal(t, roleFilter{Levels: []string{"SENIOR"}}, mapRoleTypes([]string{"wizard"}))
}

func TestBuildQuery_Placeholders(t *testing.T) {
	sql, args := buildQuery(42,
		[]string{"Engineer", "Developer"},
		[]string{"Go"},
		roleFilter{Levels: []string{"JUNIOR"}, Types: []string{"INTERNSHIP"}},
		10)

	require.Len(t, args, 8)
	assert.Equal(t, int64(42), args[0])
	assert.Equal(t, "%Engineer%", args[1])
	assert.Equal(t, "%Developer%", args[2])
	assert.Equal(t, "%Go%", args[3])
	assert.Equal(t, []string{"JUNIOR"}, args[4])
	assert.Equal(t, []string{"INTERNSHIP"}, args[5])
	assert.Equal(t, CompanyCap, args[6])
	assert.Equal(t, 10, args[7])

	assert.Contains(t, sql, "j.title ILIKE $2 OR j.title ILIKE $3")
	assert.Contains(t, sql, "CASE WHEN j.description ILIKE $4 THEN 1 ELSE 0 END")
	assert.Contains(t, sql, "j.experience_level IS NULL OR j.experience_level::text = ANY($5::text[])")
	assert.Contains(t, sql, ") OR (j.employment_type IS NULL")
	assert.Contains(t, sql, "aj.user_id = $1")
	assert.Contains(t, sql, "el.user_id = $1")
	assert.Contains(t, sql, "PARTITION BY c.company")
	assert.Contains(t, sql, "company_rank <= $7")
	assert.True(t, strings.HasSuffix(sql, "LIMIT $8"))
}

func TestBuildQuery_NoSkillsScoresZero(t *testing.T) {
	sql, args := buildQuery(1, []string{"Engineer"}, nil, roleFilter{Levels: []string{"SENIOR"}}, 5)
	assert.Contains(t, sql, "0 AS skill_score")
	assert.Len(t, args, 5)
}

func TestLikePattern_EscapesWildcards(t *testing.T) {
	assert.Equal(t, `%C\_\_%`, likePattern("C__"))
	assert.Equal(t, `%100\%%`, likePattern("100%"))
	assert.Equal(t, `%a\\b%`, likePattern(`a\b`))
}

func TestCleanTerms(t *testing.T) {
	assert.Equal(t, []string{"Go", "Rust"}, cleanTerms([]string{" Go ", "", "go", "Rust", "  "}))
}

// failingQuerier fails the test if the matcher sends a query.
type failingQuerier struct{ t *testing.T }

func (f failingQuerier) Query(context.Context, string, ...any) (pgx.Rows, error) {
	f.t.Fatal("no query expected")
	return nil, nil
}

func TestFindJobs_NoTitlesSkipsQuery(t *testing.T) {
	d, err := New(failingQuerier{t}).FindJobs(context.Background(), Preferences{UserID: 1, Titles: []string{"", "  "}}, 10)
	require.NoError(t, err)
	assert.Zero(t, d.Len())
}

func cand(company string, score int) model.Candidate {
	return model.Candidate{Job: model.Job{Company: company}, SkillScore: score}
}

func TestCapPerCompany(t *testing.T) {
	in := []model.Candidate{cand("A", 3), cand("A", 2), cand("B", 2), cand("A", 1), cand("B", 0), cand("B", 0)}
	out := capPerCompany(in, 2)
	require.Len(t, out, 4)
	counts := map[string]int{}
	for _, c := range out {
		counts[c.Company]++
	}
	assert.Equal(t, map[string]int{"A": 2, "B": 2}, counts)
	assert.Equal(t, 3, out[0].SkillScore)
}

func TestTier(t *testing.T) {
	d := tier([]model.Candidate{cand("A", 3), cand("B", 2), cand("C", 1), cand("D", 1), cand("E", 0)})
	require.Len(t, d.TopPicks, 3)
	assert.Equal(t, "A", d.TopPicks[0].Company)
	require.Len(t, d.Recommended, 2)
	assert.Equal(t, "D", d.Recommended[0].Company)
	assert.Equal(t, 5, d.Len())

	none := tier([]model.Candidate{cand("A", 0), cand("B", 0)})
	assert.Empty(t, none.TopPicks)
	assert.Len(t, none.Recommended, 2)
}

// ─── Integration ─────────────────────────────────────────────────────────────

func seedJobs(t *testing.T, pool *pgxpool.Pool, jobs ...model.Job) map[string]int64 {
	t.Helper()
	ctx := context.Background()
	_, err := store.New(pool, 0).UpsertBatch(ctx, jobs)
	require.NoError(t, err)

	ids := make(map[string]int64)
	rows, err := pool.Query(ctx, `SELECT external_id, id FROM jobs`)
	require.NoError(t, err)
	defer rows.Close()
	for rows.Next() {
		var ext string
		var id int64
		require.NoError(t, rows.Scan(&ext, &id))
		ids[ext] = id
	}
	return ids
}

func recentJob(company, id, title, desc string, age time.Duration) model.Job {
	p := time.Now().Add(-age)
	return model.Job{
		Company: company, ExternalID: id, Title: title,
		Description: model.StrPtr(desc), PostedAt: &p, IsActive: true,
		ApplyURL: "https://example.com/" + id,
	}
}

func TestFindJobs_SkillMatchRankedFirst(t *testing.T) {
	pool := testutil.Pool(t)
	seedJobs(t, pool,
		recentJob("Acme", "a1", "Backend Engineer", "Java and Spring", time.Hour),
		recentJob("Globex", "g1", "Platform Engineer", "We write Go and Terraform", 48*time.Hour),
		recentJob("Initech", "i1", "Data Engineer", "Python", 2*time.Hour),
		recentJob("Old", "o1", "Engineer", "Go", 8*24*time.Hour),
		recentJob("Acme", "a2", "Designer", "Go", time.Hour),
	)

	d, err := New(pool).FindJobs(context.Background(), Preferences{
		UserID: 1, Titles: []string{"Engineer"}, Skills: []string{"Go"},
	}, 10)
	require.NoError(t, err)

	all := d.All()
	require.Len(t, all, 3)
	assert.Equal(t, "g1", all[0].ExternalID)
	assert.Equal(t, 1, all[0].SkillScore)
	require.Len(t, d.TopPicks, 1)
	assert.Equal(t, "a1", all[1].ExternalID, "then newest first")
}

func TestFindJobs_ExclusionsAndDiversity(t *testing.T) {
	pool := testutil.Pool(t)
	ctx := context.Background()
	var jobs []model.Job
	for i := 0; i < 5; i++ {
		jobs = append(jobs, recentJob("MegaCorp", fmt.Sprintf("m%d", i), "Software Engineer", "", time.Duration(i+1)*time.Hour))
	}
	jobs = append(jobs,
		recentJob("Small", "s1", "Software Engineer", "", 10*time.Hour),
		recentJob("Small", "s2", "Software Engineer", "", 11*time.Hour),
	)
	ids := seedJobs(t, pool, jobs...)

	_, err := pool.Exec(ctx, `INSERT INTO applied_jobs (user_id, job_id) VALUES (7, $1)`, ids["s1"])
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO email_log (user_id, job_id, sent_at) VALUES (7, $1, NOW() - INTERVAL '1 day')`, ids["m0"])
	require.NoError(t, err)
	// Outside the window: eligible again.
	_, err = pool.Exec(ctx, `INSERT INTO email_log (user_id, job_id, sent_at) VALUES (7, $1, NOW() - INTERVAL '8 days')`, ids["m1"])
	require.NoError(t, err)

	d, err := New(pool).FindJobs(ctx, Preferences{UserID: 7, Titles: []string{"engineer"}}, 10)
	require.NoError(t, err)

	got := map[string]bool{}
	perCompany := map[string]int{}
	for _, c := range d.All() {
		got[c.ExternalID] = true
		perCompany[c.Company]++
	}
	assert.False(t, got["s1"], "applied job excluded")
	assert.False(t, got["m0"], "recently emailed job excluded")
	assert.True(t, got["m1"], "email older than the window does not suppress")
	assert.True(t, got["s2"])
	assert.LessOrEqual(t, perCompany["MegaCorp"], CompanyCap)
	assert.Equal(t, 3, d.Len())

	// Another user is unaffected by user 7's history.
	other, err := New(pool).FindJobs(ctx, Preferences{UserID: 8, Titles: []string{"engineer"}}, 10)
	require.NoError(t, err)
	assert.Equal(t, 4, other.Len())
}

func TestFindJobs_RoleFilter(t *testing.T) {
	pool := testutil.Pool(t)
	ctx := context.Background()

	intern := recentJob("A", "intern", "Engineer Intern", "", time.Hour)
	intern.EmploymentType = model.Internship
	junior := model.Junior
	jr := recentJob("B", "junior", "Junior Engineer", "", time.Hour)
	jr.ExperienceLevel = &junior
	senior := model.Senior
	sr := recentJob("C", "senior", "Senior Engineer", "", time.Hour)
	sr.ExperienceLevel = &senior
	seedJobs(t, pool, intern, jr, sr)

	d, err := New(pool).FindJobs(ctx, Preferences{UserID: 1, Titles: []string{"Engineer"}, RoleTypes: []string{"Junior"}}, 10)
	require.NoError(t, err)
	got := map[string]bool{}
	for _, c := range d.All() {
		got[c.ExternalID] = true
	}
	// intern has no level, so the level filter lets it through.
	assert.Equal(t, map[string]bool{"junior": true, "intern": true}, got)
}
