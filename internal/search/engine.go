// Package search answers job queries from the local store. It geocodes the
// requested location and filters by great-circle distance, falling back to
// substring matching on the location name when geocoding fails. Results are
// post-filtered by excluded terms and created-date range and cached per
// parameter tuple for a fixed TTL.
package search

import (
	"context"
	"errors"
	"strings"
	"time"

	"jobmate/jobsearch/internal/cache"
	"jobmate/jobsearch/internal/logging"
	"jobmate/jobsearch/internal/model"
	"jobmate/jobsearch/internal/store"
)

const (
	DefaultTTL      = time.Hour
	DefaultDistance = 25

	dateLayout     = "2006-01-02"
	dateTimeLayout = time.RFC3339
)

// Geocoder resolves a location. ok=false means "use the text fallback".
type Geocoder interface {
	Geocode(ctx context.Context, location string) (model.Coordinates, bool)
}

// Params is one search request. Distance is in miles; zero or negative
// falls back to the engine default.
type Params struct {
	Query         string
	Location      string
	Distance      int
	ExcludedTerms string
	DateFrom      *time.Time
	DateTo        *time.Time
}

// Key identifies a cached result set. Dates are normalised to YYYY-MM-DD so
// two requests for the same day share an entry.
type Key struct {
	Query         string `json:"query"`
	Location      string `json:"location"`
	Distance      int    `json:"distance"`
	ExcludedTerms string `json:"excludedTerms"`
	DateFrom      string `json:"dateFrom"`
	DateTo        string `json:"dateTo"`
}

// Config wires an Engine. Cache defaults to an in-process cache.
type Config struct {
	Store           *store.Store
	Geocoder        Geocoder
	Cache           cache.Cache[Key, model.SearchResult]
	TTL             time.Duration
	DefaultDistance int
	Logger          *logging.Logger
}

type Engine struct {
	store    *store.Store
	geocoder Geocoder
	cache    cache.Cache[Key, model.SearchResult]
	ttl      time.Duration
	distance int
	log      *logging.Logger
}

func New(cfg Config) *Engine {
	e := &Engine{
		store:    cfg.Store,
		geocoder: cfg.Geocoder,
		cache:    cfg.Cache,
		ttl:      cfg.TTL,
		distance: cfg.DefaultDistance,
		log:      cfg.Logger,
	}
	if e.cache == nil {
		e.cache = cache.NewMemory[Key, model.SearchResult]()
	}
	if e.ttl <= 0 {
		e.ttl = DefaultTTL
	}
	if e.distance <= 0 {
		e.distance = DefaultDistance
	}
	if e.log == nil {
		e.log = logging.NewNop()
	}
	return e
}

// KeyFor builds the cache key for p after applying defaults.
func (e *Engine) KeyFor(p Params) Key {
	k := Key{
		Query:         p.Query,
		Location:      p.Location,
		Distance:      p.Distance,
		ExcludedTerms: p.ExcludedTerms,
	}
	if k.Distance <= 0 {
		k.Distance = e.distance
	}
	if p.DateFrom != nil {
		k.DateFrom = p.DateFrom.Format(dateLayout)
	}
	if p.DateTo != nil {
		k.DateTo = p.DateTo.Format(dateLayout)
	}
	return k
}

// Search returns the result set for p, from cache when a live entry exists.
// Cache entries are not invalidated by ingestion; they expire after the TTL.
func (e *Engine) Search(ctx context.Context, p Params) (model.SearchResult, error) {
	key := e.KeyFor(p)
	log := e.log.With("query", key.Query, "location", key.Location, "distance", key.Distance)

	if res, ok, err := e.cache.Get(ctx, key); err != nil {
		log.Warn("search cache read failed", "err", err)
	} else if ok {
		res.Cached = true
		log.Debug("search cache hit", "count", res.Count)
		return res, nil
	}

	jobs, err := e.find(ctx, key)
	if err != nil {
		return model.SearchResult{}, err
	}
	base := len(jobs)

	jobs = excludeTerms(jobs, ParseTerms(key.ExcludedTerms))
	afterTerms := len(jobs)

	jobs = withinDates(jobs, p.DateFrom, p.DateTo)

	results, err := e.project(ctx, jobs)
	if err != nil {
		return model.SearchResult{}, err
	}
	res := model.SearchResult{Count: len(results), Results: results}

	log.Info("search complete", "matched", base, "after_excluded_terms", afterTerms, "returned", res.Count)

	if err := e.cache.Set(ctx, key, res, e.ttl); err != nil {
		log.Warn("search cache write failed", "err", err)
	}
	return res, nil
}

func (e *Engine) find(ctx context.Context, key Key) ([]model.JobPosting, error) {
	if e.geocoder != nil && strings.TrimSpace(key.Location) != "" {
		if center, ok := e.geocoder.Geocode(ctx, key.Location); ok {
			e.log.Debug("radius search", "lat", center.Latitude, "lon", center.Longitude, "miles", key.Distance)
			return e.store.Jobs.FindWithinRadius(ctx, key.Query, center, float64(key.Distance))
		}
		e.log.Info("geocode miss, falling back to text match", "location", key.Location)
	}
	return e.store.Jobs.FindByText(ctx, key.Query, key.Location)
}

type lookups struct {
	companies  map[int64]string
	locations  map[int64]string
	categories map[int64]string
}

// project denormalises lookup names. Each distinct id is fetched once per
// call; a dangling reference leaves the name empty.
func (e *Engine) project(ctx context.Context, jobs []model.JobPosting) ([]model.JobResponse, error) {
	l := lookups{
		companies:  make(map[int64]string),
		locations:  make(map[int64]string),
		categories: make(map[int64]string),
	}

	out := make([]model.JobResponse, 0, len(jobs))
	for _, j := range jobs {
		r := model.JobResponse{
			ID:          j.ID.String(),
			ExternalID:  j.ExternalID,
			Title:       j.Title,
			CompanyID:   j.CompanyID,
			LocationID:  j.LocationID,
			CategoryID:  j.CategoryID,
			SalaryMin:   j.SalaryMin,
			SalaryMax:   j.SalaryMax,
			Description: j.Description,
			JobURL:      j.ApplyURL,
			Source:      j.Source,
		}
		if j.CreatedDate != nil {
			r.CreatedDate = j.CreatedDate.Format(dateTimeLayout)
		}
		if !j.DateFound.IsZero() {
			r.DateFound = j.DateFound.Format(dateTimeLayout)
		}
		if j.ApplyBy != nil {
			r.ApplyBy = j.ApplyBy.Format(dateLayout)
		}

		var err error
		if j.CompanyID != nil {
			if r.CompanyName, err = e.companyName(ctx, l, *j.CompanyID); err != nil {
				return nil, err
			}
			if r.CompanyName != "" {
				r.Company = &model.DisplayRef{DisplayName: r.CompanyName}
			}
		}
		if j.LocationID != nil {
			if r.LocationName, err = e.locationName(ctx, l, *j.LocationID); err != nil {
				return nil, err
			}
			if r.LocationName != "" {
				r.Location = &model.DisplayRef{DisplayName: r.LocationName}
			}
		}
		if j.CategoryID != nil {
			if r.CategoryName, err = e.categoryName(ctx, l, *j.CategoryID); err != nil {
				return nil, err
			}
		}
		out = append(out, r)
	}
	return out, nil
}

func (e *Engine) companyName(ctx context.Context, l lookups, id int64) (string, error) {
	if name, ok := l.companies[id]; ok {
		return name, nil
	}
	c, err := e.store.Companies.FindByID(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	l.companies[id] = c.Name
	return c.Name, nil
}

func (e *Engine) locationName(ctx context.Context, l lookups, id int64) (string, error) {
	if name, ok := l.locations[id]; ok {
		return name, nil
	}
	loc, err := e.store.Locations.FindByID(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	l.locations[id] = loc.DisplayName
	return loc.DisplayName, nil
}

func (e *Engine) categoryName(ctx context.Context, l lookups, id int64) (string, error) {
	if name, ok := l.categories[id]; ok {
		return name, nil
	}
	c, err := e.store.Categories.FindByID(ctx, id)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", err
	}
	l.categories[id] = c.Name
	return c.Name, nil
}
