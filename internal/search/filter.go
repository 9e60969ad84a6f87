package search

import (
	"strings"
	"time"

	"jobmate/jobsearch/internal/model"
)

// ParseTerms splits a comma-separated exclusion list into trimmed,
// lower-cased terms. Blank entries are dropped.
func ParseTerms(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	terms := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			terms = append(terms, p)
		}
	}
	return terms
}

// ContainsTerm reports whether any term (already lower-cased) appears in the
// title or description, case-insensitively.
func ContainsTerm(title, description string, terms []string) bool {
	if len(terms) == 0 {
		return false
	}
	title = strings.ToLower(title)
	description = strings.ToLower(description)
	for _, t := range terms {
		if strings.Contains(title, t) || strings.Contains(description, t) {
			return true
		}
	}
	return false
}

func excludeTerms(jobs []model.JobPosting, terms []string) []model.JobPosting {
	if len(terms) == 0 {
		return jobs
	}
	out := jobs[:0:0]
	for _, j := range jobs {
		if !ContainsTerm(j.Title, j.Description, terms) {
			out = append(out, j)
		}
	}
	return out
}

// withinDates keeps postings whose created date falls in [from, to] as
// calendar days. With any bound set, undated postings are dropped.
func withinDates(jobs []model.JobPosting, from, to *time.Time) []model.JobPosting {
	if from == nil && to == nil {
		return jobs
	}
	out := jobs[:0:0]
	for _, j := range jobs {
		if j.CreatedDate == nil {
			continue
		}
		day := calendarDay(*j.CreatedDate)
		if from != nil && day.Before(calendarDay(*from)) {
			continue
		}
		if to != nil && day.After(calendarDay(*to)) {
			continue
		}
		out = append(out, j)
	}
	return out
}

// calendarDay truncates t to its UTC day. Scanned timestamps carry the
// server's zone, so the day must not be read from t's own location.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
