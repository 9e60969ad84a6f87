// Package store holds the persistence contracts for postings, their lookup
// entities, saved queries and users, plus PostgreSQL and in-memory
// implementations. Deduplication relies on unique constraints enforced here,
// never on in-process locking in the callers.
package store

import (
	"context"
	"errors"
	"time"

	"jobmate/jobsearch/internal/model"
)

var (
	// ErrNotFound is returned when a row is missing or not owned by the caller.
	ErrNotFound = errors.New("store: not found")
	// ErrConflict is returned when a write violates a unique constraint.
	ErrConflict = errors.New("store: unique constraint violation")
)

// JobRepository persists and queries job postings keyed by external id.
type JobRepository interface {
	ExistsByExternalID(ctx context.Context, externalID string) (bool, error)

	// SaveAll writes the batch in one transaction. Rows whose external id
	// already exists are skipped; the number of inserted rows is returned.
	SaveAll(ctx context.Context, jobs []model.JobPosting) (int, error)

	Count(ctx context.Context) (int64, error)

	// FindByText matches query against title/description and location
	// against the location display name, case-insensitively. Postings with
	// no location are kept.
	FindByText(ctx context.Context, query, location string) ([]model.JobPosting, error)

	// FindWithinRadius matches query like FindByText and keeps postings whose
	// location is within miles of center. Postings without coordinates are kept.
	FindWithinRadius(ctx context.Context, query string, center model.Coordinates, miles float64) ([]model.JobPosting, error)
}

// CompanyRepository resolves companies by name.
type CompanyRepository interface {
	FindOrCreate(ctx context.Context, name string) (int64, error)
	FindByID(ctx context.Context, id int64) (model.Company, error)
}

// LocationRepository resolves locations by (city, state, country).
type LocationRepository interface {
	FindOrCreate(ctx context.Context, loc model.Location) (int64, error)
	FindByID(ctx context.Context, id int64) (model.Location, error)
}

// CategoryRepository resolves categories by tag.
type CategoryRepository interface {
	FindOrCreate(ctx context.Context, tag, name string) (int64, error)
	FindByID(ctx context.Context, id int64) (model.Category, error)
}

// SavedQueryRepository owns the saved_queries table.
type SavedQueryRepository interface {
	// Create inserts q and fills ID, CreatedAt and UpdatedAt. Returns
	// ErrConflict when the user already saved the same query and location.
	Create(ctx context.Context, q *model.SavedQuery) error
	Get(ctx context.Context, userID string, id int64) (model.SavedQuery, error)
	// ListByUser orders by last_run_at descending, never-run queries last.
	ListByUser(ctx context.Context, userID string) ([]model.SavedQuery, error)
	ListActive(ctx context.Context) ([]model.SavedQuery, error)
	// Update replaces the user-editable fields of q (matched on ID and UserID).
	// Returns ErrConflict when the edit collides with another saved query.
	Update(ctx context.Context, q model.SavedQuery) (model.SavedQuery, error)
	Toggle(ctx context.Context, userID string, id int64) (model.SavedQuery, error)
	Delete(ctx context.Context, userID string, id int64) error
	// RecordRun stores scheduler bookkeeping only.
	RecordRun(ctx context.Context, id int64, ranAt time.Time, newJobs int) error
}

// UserRepository reads users owned by the identity provider.
type UserRepository interface {
	FindByID(ctx context.Context, id string) (model.User, error)
}

// Store groups every repository behind one value for wiring.
type Store struct {
	Jobs         JobRepository
	Companies    CompanyRepository
	Locations    LocationRepository
	Categories   CategoryRepository
	SavedQueries SavedQueryRepository
	Users        UserRepository
}
