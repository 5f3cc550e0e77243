package matcher

import (
	"strings"

	"jobmate/jobsync/internal/model"
)

// roleFilter is what a user's role types select: experience levels,
// employment types, or both.
type roleFilter struct {
	Levels []string
	Types  []string
}

type roleTarget struct {
	level model.ExperienceLevel
	kind  model.EmploymentType
}

// roleTypes maps the role type labels the web app offers (normalised to
// lower case, single spaces) to the column they constrain.
var roleTypes = map[string]roleTarget{
	"intern":       {kind: model.Internship},
	"internship":   {kind: model.Internship},
	"entry":        {level: model.Entry},
	"entry level":  {level: model.Entry},
	"fresher":      {level: model.Entry},
	"graduate":     {level: model.Entry},
	"junior":       {level: model.Junior},
	"associate":    {level: model.Junior},
	"mid":          {level: model.Mid},
	"mid level":    {level: model.Mid},
	"intermediate": {level: model.Mid},
	"senior":       {level: model.Senior},
	"lead":         {level: model.Lead},
	"staff":        {level: model.Lead},
	"principal":    {level: model.Lead},
	"executive":    {level: model.Executive},
	"director":     {level: model.Executive},
	"full time":    {kind: model.FullTime},
	"part time":    {kind: model.PartTime},
	"contract":     {kind: model.Contract},
	"contractor":   {kind: model.Contract},
	"freelance":    {kind: model.Freelance},
	"temporary":    {kind: model.Temporary},
	"temp":         {kind: model.Temporary},
}

// DefaultLevel applies when none of a user's role types map to anything.
const DefaultLevel = model.Senior

func normaliseRole(s string) string {
	s = strings.ToLower(s)
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// mapRoleTypes resolves role type labels. Unknown labels are ignored; if
// nothing resolves, the filter falls back to DefaultLevel.
func mapRoleTypes(roles []string) roleFilter {
	var f roleFilter
	seen := make(map[string]bool)
	for _, r := range roles {
		t, ok := roleTypes[normaliseRole(r)]
		if !ok {
			continue
		}
		if t.level != "" && !seen["l:"+string(t.level)] {
			seen["l:"+string(t.level)] = true
			f.Levels = append(f.Levels, string(t.level))
		}
		if t.kind != "" && !seen["t:"+string(t.kind)] {
			seen["t:"+string(t.kind)] = true
			f.Types = append(f.Types, string(t.kind))
		}
	}
	if len(f.Levels) == 0 && len(f.Types) == 0 {
		f.Levels = []string{string(DefaultLevel)}
	}
	return f
}
