package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"jobmate/jobsearch/internal/geocode"
	"jobmate/jobsearch/internal/model"
)

// NewPostgres wires every repository to db. db is expected to be backed by
// the pgx stdlib driver (see db.SQLDB).
func NewPostgres(db *sql.DB) *Store {
	return &Store{
		Jobs:         &pgJobs{db: db},
		Companies:    &pgCompanies{db: db},
		Locations:    &pgLocations{db: db},
		Categories:   &pgCategories{db: db},
		SavedQueries: &pgSavedQueries{db: db},
		Users:        &pgUsers{db: db},
	}
}

// ─── Jobs ────────────────────────────────────────────────────────────────────

type pgJobs struct {
	db *sql.DB
}

const jobColumns = `j.id::text, j.external_id, j.title, j.company_id, j.location_id, j.category_id,
	       j.salary_min, j.salary_max, j.description, j.job_url, j.source,
	       j.created_date, j.date_found, j.apply_by`

// textMatch is shared by both search queries; $1 is the escaped LIKE pattern.
const textMatch = `(j.title ILIKE $1 OR j.description ILIKE $1)`

func (r *pgJobs) ExistsByExternalID(ctx context.Context, externalID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM jobs WHERE external_id = $1)`,
		externalID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("jobs exists: %w", err)
	}
	return exists, nil
}

func (r *pgJobs) SaveAll(ctx context.Context, jobs []model.JobPosting) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("jobs begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	inserted := 0
	for _, j := range jobs {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO jobs (id, external_id, title, company_id, location_id, category_id,
			                   salary_min, salary_max, description, job_url, source,
			                   created_date, date_found, apply_by)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			 ON CONFLICT (external_id) DO NOTHING`,
			j.ID.String(), j.ExternalID, j.Title, j.CompanyID, j.LocationID, j.CategoryID,
			j.SalaryMin, j.SalaryMax, j.Description, j.ApplyURL, j.Source,
			j.CreatedDate, j.DateFound, j.ApplyBy,
		)
		if err != nil {
			return 0, fmt.Errorf("jobs insert %s: %w", j.ExternalID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("jobs rows affected: %w", err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("jobs commit: %w", err)
	}
	return inserted, nil
}

func (r *pgJobs) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM jobs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("jobs count: %w", err)
	}
	return n, nil
}

func (r *pgJobs) FindByText(ctx context.Context, query, location string) ([]model.JobPosting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs j
		 LEFT JOIN locations l ON l.id = j.location_id
		 WHERE `+textMatch+`
		   AND (l.display_name IS NULL OR l.display_name ILIKE $2)
		 ORDER BY j.date_found DESC, j.external_id`,
		likePattern(query), likePattern(location),
	)
	if err != nil {
		return nil, fmt.Errorf("jobs find by text: %w", err)
	}
	return scanJobs(rows)
}

func (r *pgJobs) FindWithinRadius(ctx context.Context, query string, center model.Coordinates, miles float64) ([]model.JobPosting, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+`
		 FROM jobs j
		 LEFT JOIN locations l ON l.id = j.location_id
		 WHERE `+textMatch+`
		   AND (l.latitude IS NULL OR l.longitude IS NULL OR
		        2 * $5::float8 * ASIN(SQRT(
		            POWER(SIN(RADIANS(l.latitude - $2::float8) / 2), 2) +
		            COS(RADIANS($2::float8)) * COS(RADIANS(l.latitude)) *
		            POWER(SIN(RADIANS(l.longitude - $3::float8) / 2), 2)
		        )) <= $4::float8)
		 ORDER BY j.date_found DESC, j.external_id`,
		likePattern(query), center.Latitude, center.Longitude, miles, geocode.EarthRadiusMiles,
	)
	if err != nil {
		return nil, fmt.Errorf("jobs find within radius: %w", err)
	}
	return scanJobs(rows)
}

func scanJobs(rows *sql.Rows) ([]model.JobPosting, error) {
	defer rows.Close()

	jobs := make([]model.JobPosting, 0)
	for rows.Next() {
		var (
			j                            model.JobPosting
			id                           string
			companyID, locationID, catID sql.NullInt64
			salaryMin, salaryMax         sql.NullFloat64
			createdDate, applyBy         sql.NullTime
		)
		if err := rows.Scan(
			&id, &j.ExternalID, &j.Title, &companyID, &locationID, &catID,
			&salaryMin, &salaryMax, &j.Description, &j.ApplyURL, &j.Source,
			&createdDate, &j.DateFound, &applyBy,
		); err != nil {
			return nil, fmt.Errorf("jobs scan: %w", err)
		}

		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("jobs scan id %q: %w", id, err)
		}
		j.ID = parsed
		j.CompanyID = nullInt(companyID)
		j.LocationID = nullInt(locationID)
		j.CategoryID = nullInt(catID)
		j.SalaryMin = nullFloat(salaryMin)
		j.SalaryMax = nullFloat(salaryMax)
		if createdDate.Valid {
			t := createdDate.Time
			j.CreatedDate = &t
		}
		if applyBy.Valid {
			t := applyBy.Time
			j.ApplyBy = &t
		}
		jobs = append(jobs, j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("jobs rows: %w", err)
	}
	return jobs, nil
}

// ─── Lookups ─────────────────────────────────────────────────────────────────

type pgCompanies struct {
	db *sql.DB
}

func (r *pgCompanies) FindOrCreate(ctx context.Context, name string) (int64, error) {
	id, err := findOrCreate(ctx, r.db,
		`SELECT id FROM companies WHERE name = $1`, []any{name},
		`INSERT INTO companies (name) VALUES ($1) ON CONFLICT (name) DO NOTHING RETURNING id`, []any{name},
	)
	if err != nil {
		return 0, fmt.Errorf("company %q: %w", name, err)
	}
	return id, nil
}

func (r *pgCompanies) FindByID(ctx context.Context, id int64) (model.Company, error) {
	c := model.Company{ID: id}
	err := r.db.QueryRowContext(ctx, `SELECT name FROM companies WHERE id = $1`, id).Scan(&c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Company{}, ErrNotFound
	}
	if err != nil {
		return model.Company{}, fmt.Errorf("company %d: %w", id, err)
	}
	return c, nil
}

type pgLocations struct {
	db *sql.DB
}

func (r *pgLocations) FindOrCreate(ctx context.Context, loc model.Location) (int64, error) {
	key := []any{loc.City, loc.State, loc.Country}
	id, err := findOrCreate(ctx, r.db,
		`SELECT id FROM locations WHERE city = $1 AND state = $2 AND country = $3`, key,
		`INSERT INTO locations (city, state, country, display_name, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (city, state, country) DO NOTHING
		 RETURNING id`,
		[]any{loc.City, loc.State, loc.Country, loc.DisplayName, loc.Latitude, loc.Longitude},
	)
	if err != nil {
		return 0, fmt.Errorf("location %q: %w", loc.DisplayName, err)
	}
	return id, nil
}

func (r *pgLocations) FindByID(ctx context.Context, id int64) (model.Location, error) {
	l := model.Location{ID: id}
	var lat, lon sql.NullFloat64
	err := r.db.QueryRowContext(ctx,
		`SELECT city, state, country, display_name, latitude, longitude FROM locations WHERE id = $1`, id,
	).Scan(&l.City, &l.State, &l.Country, &l.DisplayName, &lat, &lon)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Location{}, ErrNotFound
	}
	if err != nil {
		return model.Location{}, fmt.Errorf("location %d: %w", id, err)
	}
	l.Latitude = nullFloat(lat)
	l.Longitude = nullFloat(lon)
	return l, nil
}

type pgCategories struct {
	db *sql.DB
}

func (r *pgCategories) FindOrCreate(ctx context.Context, tag, name string) (int64, error) {
	id, err := findOrCreate(ctx, r.db,
		`SELECT id FROM categories WHERE tag = $1`, []any{tag},
		`INSERT INTO categories (tag, name) VALUES ($1, $2) ON CONFLICT (tag) DO NOTHING RETURNING id`, []any{tag, name},
	)
	if err != nil {
		return 0, fmt.Errorf("category %q: %w", tag, err)
	}
	return id, nil
}

func (r *pgCategories) FindByID(ctx context.Context, id int64) (model.Category, error) {
	c := model.Category{ID: id}
	err := r.db.QueryRowContext(ctx, `SELECT tag, name FROM categories WHERE id = $1`, id).Scan(&c.Tag, &c.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Category{}, ErrNotFound
	}
	if err != nil {
		return model.Category{}, fmt.Errorf("category %d: %w", id, err)
	}
	return c, nil
}

// findOrCreate reads an existing id, inserts when absent, and re-reads when
// the insert lost a race against a concurrent writer (ON CONFLICT DO NOTHING
// returns no row in that case).
func findOrCreate(ctx context.Context, db *sql.DB, selectSQL string, selectArgs []any, insertSQL string, insertArgs []any) (int64, error) {
	var id int64

	err := db.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("select: %w", err)
	}

	err = db.QueryRowContext(ctx, insertSQL, insertArgs...).Scan(&id)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("insert: %w", err)
	}

	if err := db.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&id); err != nil {
		return 0, fmt.Errorf("select after conflict: %w", err)
	}
	return id, nil
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern turns free text into a substring ILIKE pattern, escaping the
// wildcard characters so they match literally.
func likePattern(s string) string {
	return "%" + likeEscaper.Replace(s) + "%"
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
