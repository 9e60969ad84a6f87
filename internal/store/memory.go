package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"jobmate/jobsearch/internal/geocode"
	"jobmate/jobsearch/internal/model"
)

// NewMemory returns a Store kept entirely in process memory. It enforces the
// same unique constraints as the PostgreSQL schema and is used by tests and
// by local runs without a database.
func NewMemory() *Store {
	m := &memory{
		jobsByExternal: make(map[string]int),
		companyByName:  make(map[string]int64),
		locationByKey:  make(map[locationKey]int64),
		categoryByTag:  make(map[string]int64),
		companies:      make(map[int64]model.Company),
		locations:      make(map[int64]model.Location),
		categories:     make(map[int64]model.Category),
		savedQueries:   make(map[int64]model.SavedQuery),
		users:          make(map[string]model.User),
	}
	return &Store{
		Jobs:         (*memJobs)(m),
		Companies:    (*memCompanies)(m),
		Locations:    (*memLocations)(m),
		Categories:   (*memCategories)(m),
		SavedQueries: (*memSavedQueries)(m),
		Users:        (*memUsers)(m),
	}
}

// AddUser registers a user in a memory store. It is a no-op for other stores.
func AddUser(s *Store, u model.User) {
	if users, ok := s.Users.(*memUsers); ok {
		m := (*memory)(users)
		m.mu.Lock()
		m.users[u.ID] = u
		m.mu.Unlock()
	}
}

type locationKey struct {
	city, state, country string
}

type memory struct {
	mu sync.RWMutex

	jobs           []model.JobPosting
	jobsByExternal map[string]int

	nextID        int64
	companyByName map[string]int64
	locationByKey map[locationKey]int64
	categoryByTag map[string]int64
	companies     map[int64]model.Company
	locations     map[int64]model.Location
	categories    map[int64]model.Category

	savedQueries map[int64]model.SavedQuery
	users        map[string]model.User
}

func (m *memory) id() int64 {
	m.nextID++
	return m.nextID
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

type memJobs memory

func (r *memJobs) ExistsByExternalID(_ context.Context, externalID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.jobsByExternal[externalID]
	return ok, nil
}

func (r *memJobs) SaveAll(_ context.Context, jobs []model.JobPosting) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inserted := 0
	for _, j := range jobs {
		if _, ok := r.jobsByExternal[j.ExternalID]; ok {
			continue
		}
		r.jobsByExternal[j.ExternalID] = len(r.jobs)
		r.jobs = append(r.jobs, j)
		inserted++
	}
	return inserted, nil
}

func (r *memJobs) Count(_ context.Context) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int64(len(r.jobs)), nil
}

func (r *memJobs) FindByText(_ context.Context, query, location string) ([]model.JobPosting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc := strings.ToLower(location)
	return r.filter(query, func(l *model.Location) bool {
		return l == nil || strings.Contains(strings.ToLower(l.DisplayName), loc)
	}), nil
}

func (r *memJobs) FindWithinRadius(_ context.Context, query string, center model.Coordinates, miles float64) ([]model.JobPosting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.filter(query, func(l *model.Location) bool {
		if l == nil || !l.HasCoordinates() {
			return true
		}
		d := geocode.HaversineMiles(center.Latitude, center.Longitude, *l.Latitude, *l.Longitude)
		return d <= miles
	}), nil
}

// filter must be called with the read lock held. Results are newest first,
// matching the SQL ordering.
func (r *memJobs) filter(query string, keepLocation func(*model.Location) bool) []model.JobPosting {
	q := strings.ToLower(query)
	out := make([]model.JobPosting, 0)
	for _, j := range r.jobs {
		if !strings.Contains(strings.ToLower(j.Title), q) && !strings.Contains(strings.ToLower(j.Description), q) {
			continue
		}
		var loc *model.Location
		if j.LocationID != nil {
			if l, ok := r.locations[*j.LocationID]; ok {
				loc = &l
			}
		}
		if !keepLocation(loc) {
			continue
		}
		out = append(out, j)
	}
	sort.SliceStable(out, func(a, b int) bool {
		if !out[a].DateFound.Equal(out[b].DateFound) {
			return out[a].DateFound.After(out[b].DateFound)
		}
		return out[a].ExternalID < out[b].ExternalID
	})
	return out
}

// ─── Lookups ─────────────────────────────────────────────────────────────────

type memCompanies memory

func (r *memCompanies) FindOrCreate(_ context.Context, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.companyByName[name]; ok {
		return id, nil
	}
	id := (*memory)(r).id()
	r.companyByName[name] = id
	r.companies[id] = model.Company{ID: id, Name: name}
	return id, nil
}

func (r *memCompanies) FindByID(_ context.Context, id int64) (model.Company, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.companies[id]
	if !ok {
		return model.Company{}, ErrNotFound
	}
	return c, nil
}

type memLocations memory

func (r *memLocations) FindOrCreate(_ context.Context, loc model.Location) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := locationKey{loc.City, loc.State, loc.Country}
	if id, ok := r.locationByKey[key]; ok {
		return id, nil
	}
	id := (*memory)(r).id()
	loc.ID = id
	r.locationByKey[key] = id
	r.locations[id] = loc
	return id, nil
}

func (r *memLocations) FindByID(_ context.Context, id int64) (model.Location, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.locations[id]
	if !ok {
		return model.Location{}, ErrNotFound
	}
	return l, nil
}

type memCategories memory

func (r *memCategories) FindOrCreate(_ context.Context, tag, name string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.categoryByTag[tag]; ok {
		return id, nil
	}
	id := (*memory)(r).id()
	r.categoryByTag[tag] = id
	r.categories[id] = model.Category{ID: id, Tag: tag, Name: name}
	return id, nil
}

func (r *memCategories) FindByID(_ context.Context, id int64) (model.Category, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.categories[id]
	if !ok {
		return model.Category{}, ErrNotFound
	}
	return c, nil
}

// ─── Saved queries ───────────────────────────────────────────────────────────

type memSavedQueries memory

func (r *memSavedQueries) Create(_ context.Context, q *model.SavedQuery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.savedQueries {
		if existing.UserID == q.UserID && existing.Query == q.Query && existing.Location == q.Location {
			return ErrConflict
		}
	}
	now := time.Now().UTC()
	q.ID = (*memory)(r).id()
	q.CreatedAt = now
	q.UpdatedAt = now
	r.savedQueries[q.ID] = *q
	return nil
}

func (r *memSavedQueries) Get(_ context.Context, userID string, id int64) (model.SavedQuery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.savedQueries[id]
	if !ok || q.UserID != userID {
		return model.SavedQuery{}, ErrNotFound
	}
	return q, nil
}

func (r *memSavedQueries) ListByUser(_ context.Context, userID string) ([]model.SavedQuery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SavedQuery, 0)
	for _, q := range r.savedQueries {
		if q.UserID == userID {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(a, b int) bool {
		la, lb := out[a].LastRunAt, out[b].LastRunAt
		switch {
		case la != nil && lb != nil && !la.Equal(*lb):
			return la.After(*lb)
		case la != nil && lb == nil:
			return true
		case la == nil && lb != nil:
			return false
		}
		return out[a].ID < out[b].ID
	})
	return out, nil
}

func (r *memSavedQueries) ListActive(_ context.Context) ([]model.SavedQuery, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.SavedQuery, 0)
	for _, q := range r.savedQueries {
		if q.IsActive {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out, nil
}

func (r *memSavedQueries) Update(_ context.Context, q model.SavedQuery) (model.SavedQuery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.savedQueries[q.ID]
	if !ok || existing.UserID != q.UserID {
		return model.SavedQuery{}, ErrNotFound
	}
	for id, other := range r.savedQueries {
		if id != q.ID && other.UserID == q.UserID && other.Query == q.Query && other.Location == q.Location {
			return model.SavedQuery{}, ErrConflict
		}
	}
	existing.Query = q.Query
	existing.Location = q.Location
	existing.IsActive = q.IsActive
	existing.Distance = q.Distance
	existing.ExcludedTerms = q.ExcludedTerms
	existing.DateFrom = q.DateFrom
	existing.DateTo = q.DateTo
	existing.UpdatedAt = time.Now().UTC()
	r.savedQueries[q.ID] = existing
	return existing, nil
}

func (r *memSavedQueries) Toggle(_ context.Context, userID string, id int64) (model.SavedQuery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.savedQueries[id]
	if !ok || q.UserID != userID {
		return model.SavedQuery{}, ErrNotFound
	}
	q.IsActive = !q.IsActive
	q.UpdatedAt = time.Now().UTC()
	r.savedQueries[id] = q
	return q, nil
}

func (r *memSavedQueries) Delete(_ context.Context, userID string, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.savedQueries[id]
	if !ok || q.UserID != userID {
		return ErrNotFound
	}
	delete(r.savedQueries, id)
	return nil
}

func (r *memSavedQueries) RecordRun(_ context.Context, id int64, ranAt time.Time, newJobs int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.savedQueries[id]
	if !ok {
		return ErrNotFound
	}
	t := ranAt
	q.LastRunAt = &t
	q.NewJobsCount = newJobs
	q.UpdatedAt = time.Now().UTC()
	r.savedQueries[id] = q
	return nil
}

// ─── Users ───────────────────────────────────────────────────────────────────

type memUsers memory

func (r *memUsers) FindByID(_ context.Context, id string) (model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[id]
	if !ok {
		return model.User{}, ErrNotFound
	}
	return u, nil
}
