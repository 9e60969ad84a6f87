package scraper

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"

	"jobmate/jobsearch/internal/model"
	"jobmate/jobsearch/internal/store"
)

// mapper turns raw listings into postings, resolving lookup entities on the
// way. It holds no state between calls.
type mapper struct {
	store   *store.Store
	source  string
	country string // fallback when the listing carries no usable area
}

func (m *mapper) toPosting(ctx context.Context, raw RawJob, foundAt time.Time) (model.JobPosting, error) {
	p := model.JobPosting{
		ID:          uuid.New(),
		ExternalID:  string(raw.ID),
		Title:       strings.TrimSpace(raw.Title),
		SalaryMin:   raw.SalaryMin,
		SalaryMax:   raw.SalaryMax,
		Description: NormalizeDescription(raw.Description),
		ApplyURL:    raw.RedirectURL,
		Source:      m.source,
		CreatedDate: parseCreated(raw.Created),
		DateFound:   foundAt,
	}

	if name := strings.TrimSpace(raw.Company.DisplayName); name != "" {
		id, err := m.store.Companies.FindOrCreate(ctx, clip(name, 255))
		if err != nil {
			return model.JobPosting{}, fmt.Errorf("company %q: %w", name, err)
		}
		p.CompanyID = &id
	}

	if loc, ok := m.location(raw); ok {
		id, err := m.store.Locations.FindOrCreate(ctx, loc)
		if err != nil {
			return model.JobPosting{}, fmt.Errorf("location %q: %w", loc.DisplayName, err)
		}
		p.LocationID = &id
	}

	if tag := strings.TrimSpace(raw.Category.Tag); tag != "" {
		id, err := m.store.Categories.FindOrCreate(ctx, clip(tag, 100), clip(categoryName(raw.Category), 255))
		if err != nil {
			return model.JobPosting{}, fmt.Errorf("category %q: %w", tag, err)
		}
		p.CategoryID = &id
	}

	return p, nil
}

// location reads area as [country, state, ..., city]. A listing with only a
// display name becomes a city in the fetcher's country.
func (m *mapper) location(raw RawJob) (model.Location, bool) {
	area := make([]string, 0, len(raw.Location.Area))
	for _, a := range raw.Location.Area {
		if a = strings.TrimSpace(a); a != "" {
			area = append(area, a)
		}
	}
	display := strings.TrimSpace(raw.Location.DisplayName)
	if len(area) == 0 && display == "" {
		return model.Location{}, false
	}

	loc := model.Location{
		Country:     m.country,
		DisplayName: display,
		Latitude:    raw.Latitude,
		Longitude:   raw.Longitude,
	}
	switch {
	case len(area) == 0:
		loc.City = display
	default:
		if len(area[0]) == 2 {
			loc.Country = strings.ToUpper(area[0])
		}
		if len(area) > 1 {
			loc.State = area[1]
		}
		if len(area) > 2 {
			loc.City = area[len(area)-1]
		}
	}
	if loc.DisplayName == "" {
		loc.DisplayName = strings.Join(reverse(area), ", ")
	}

	loc.City = clip(loc.City, 100)
	loc.State = clip(loc.State, 100)
	loc.DisplayName = clip(loc.DisplayName, 255)
	return loc, true
}

func categoryName(c rawCategory) string {
	if label := strings.TrimSpace(c.Label); label != "" {
		return label
	}
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(c.Tag), "-", " "))
}

// NormalizeDescription strips markup and collapses runs of whitespace.
func NormalizeDescription(s string) string {
	if strings.ContainsRune(s, '<') {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(s)); err == nil {
			s = doc.Text()
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

var createdLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseCreated(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range createdLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func reverse(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[len(in)-1-i] = s
	}
	return out
}

// clip truncates s to at most n runes.
func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}
