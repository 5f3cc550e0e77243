// Package scraper implements the source adapters: one Adapter per provider
// family, each turning a provider payload into canonical model.Job rows.
package scraper

import "strings"

var remoteTerms = []string{"remote", "work from home"}

// ContainsRedFlag returns true if any red flag term appears (case-insensitive)
// anywhere in the combined title + company + description text.
//
// Pipelines call it before loading; a match drops the job from the batch.
func ContainsRedFlag(title, company, description string, redFlags []string) bool {
	return containsAnyFold(title+" "+company+" "+description, redFlags)
}

// DetectRemote reports whether location or title mentions remote work.
func DetectRemote(location, title string) bool {
	return containsAnyFold(location+" "+title, remoteTerms)
}

func containsAnyFold(text string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	combined := strings.ToLower(text)
	for _, term := range terms {
		if term == "" {
			continue
		}
		if strings.Contains(combined, strings.ToLower(term)) {
			return true
		}
	}
	return false
}
