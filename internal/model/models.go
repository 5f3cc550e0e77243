// Package model defines the canonical records shared by the ingestion and
// notification sides of jobsync.
package model

import "time"

// EmploymentType mirrors the employment_type enum of the jobs table.
type EmploymentType string

const (
	FullTime   EmploymentType = "FULL_TIME"
	PartTime   EmploymentType = "PART_TIME"
	Contract   EmploymentType = "CONTRACT"
	Internship EmploymentType = "INTERNSHIP"
	Temporary  EmploymentType = "TEMPORARY"
	Freelance  EmploymentType = "FREELANCE"
)

// ExperienceLevel mirrors the experience_level enum of the jobs table.
type ExperienceLevel string

const (
	Entry     ExperienceLevel = "ENTRY"
	Junior    ExperienceLevel = "JUNIOR"
	Mid       ExperienceLevel = "MID"
	Senior    ExperienceLevel = "SENIOR"
	Lead      ExperienceLevel = "LEAD"
	Executive ExperienceLevel = "EXECUTIVE"
)

// CategoryDiscover is written to job_category for every ingested row.
const CategoryDiscover = "DISCOVER"

// Job is one canonical posting. (Company, ExternalID) is the identity:
// raw provider ids collide across companies.
type Job struct {
	ID              int64 // assigned by the store, zero before insert
	ExternalID      string
	Company         string
	Title           string
	Location        *string
	Department      *string
	EmploymentType  EmploymentType
	ExperienceLevel *ExperienceLevel
	Description     *string
	ApplyURL        string
	PostedAt        *time.Time
	Source          string
	IsRemote        bool
	IsActive        bool
	MinSalary       *float64
	MaxSalary       *float64
	CompanyLogo     *string
}

// Key is the dedup key of the jobs table.
func (j Job) Key() JobKey { return JobKey{Company: j.Company, ExternalID: j.ExternalID} }

// JobKey identifies a row in the jobs table.
type JobKey struct {
	Company    string
	ExternalID string
}

// User is a digest recipient with the preferences the matcher consumes.
// Owned by the user-management side; read-only here.
type User struct {
	ID        int64
	Username  string
	Email     string
	JobTitles []string
	Skills    []string
	RoleTypes []string
}

// Candidate is a matched job with its relevance score.
type Candidate struct {
	Job
	// SkillScore counts the user's skills found in the description.
	SkillScore int
}

// Digest is one user's matched jobs, split into tiers.
type Digest struct {
	TopPicks    []Candidate
	Recommended []Candidate
}

// Len is the number of jobs in the digest.
func (d Digest) Len() int { return len(d.TopPicks) + len(d.Recommended) }

// All returns every job, top picks first.
func (d Digest) All() []Candidate {
	out := make([]Candidate, 0, d.Len())
	out = append(out, d.TopPicks...)
	return append(out, d.Recommended...)
}

// StrPtr returns nil for an empty string.
func StrPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
