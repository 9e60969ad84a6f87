package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"jobmate/jobsearch/internal/model"
)

type pgSavedQueries struct {
	db *sql.DB
}

const savedQueryColumns = `id, user_id, query, location, is_active, distance, excluded_terms,
	       date_from, date_to, last_run_at, new_jobs_count, created_at, updated_at`

func (r *pgSavedQueries) Create(ctx context.Context, q *model.SavedQuery) error {
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO saved_queries (user_id, query, location, is_active, distance, excluded_terms, date_from, date_to)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (user_id, query, location) DO NOTHING
		 RETURNING id, created_at, updated_at`,
		q.UserID, q.Query, q.Location, q.IsActive, q.Distance, q.ExcludedTerms, q.DateFrom, q.DateTo,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("saved query insert: %w", err)
	}
	return nil
}

func (r *pgSavedQueries) Get(ctx context.Context, userID string, id int64) (model.SavedQuery, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+savedQueryColumns+` FROM saved_queries WHERE id = $1 AND user_id = $2`,
		id, userID,
	)
	return scanSavedQuery(row)
}

func (r *pgSavedQueries) ListByUser(ctx context.Context, userID string) ([]model.SavedQuery, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+savedQueryColumns+`
		 FROM saved_queries
		 WHERE user_id = $1
		 ORDER BY last_run_at DESC NULLS LAST, id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("saved queries by user: %w", err)
	}
	return scanSavedQueries(rows)
}

func (r *pgSavedQueries) ListActive(ctx context.Context) ([]model.SavedQuery, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+savedQueryColumns+` FROM saved_queries WHERE is_active = true ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("active saved queries: %w", err)
	}
	return scanSavedQueries(rows)
}

func (r *pgSavedQueries) Update(ctx context.Context, q model.SavedQuery) (model.SavedQuery, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE saved_queries
		 SET query = $1, location = $2, is_active = $3, distance = $4,
		     excluded_terms = $5, date_from = $6, date_to = $7, updated_at = NOW()
		 WHERE id = $8 AND user_id = $9
		 RETURNING `+savedQueryColumns,
		q.Query, q.Location, q.IsActive, q.Distance, q.ExcludedTerms, q.DateFrom, q.DateTo,
		q.ID, q.UserID,
	)
	updated, err := scanSavedQuery(row)
	if isUniqueViolation(err) {
		return model.SavedQuery{}, ErrConflict
	}
	return updated, err
}

func (r *pgSavedQueries) Toggle(ctx context.Context, userID string, id int64) (model.SavedQuery, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE saved_queries
		 SET is_active = NOT is_active, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+savedQueryColumns,
		id, userID,
	)
	return scanSavedQuery(row)
}

func (r *pgSavedQueries) Delete(ctx context.Context, userID string, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM saved_queries WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("saved query delete: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saved query delete: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *pgSavedQueries) RecordRun(ctx context.Context, id int64, ranAt time.Time, newJobs int) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE saved_queries SET last_run_at = $1, new_jobs_count = $2, updated_at = NOW() WHERE id = $3`,
		ranAt, newJobs, id,
	)
	if err != nil {
		return fmt.Errorf("saved query record run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("saved query record run: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSavedQuery(row rowScanner) (model.SavedQuery, error) {
	var (
		q                           model.SavedQuery
		dateFrom, dateTo, lastRunAt sql.NullTime
	)
	err := row.Scan(
		&q.ID, &q.UserID, &q.Query, &q.Location, &q.IsActive, &q.Distance, &q.ExcludedTerms,
		&dateFrom, &dateTo, &lastRunAt, &q.NewJobsCount, &q.CreatedAt, &q.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SavedQuery{}, ErrNotFound
	}
	if err != nil {
		return model.SavedQuery{}, fmt.Errorf("saved query scan: %w", err)
	}
	q.DateFrom = nullTime(dateFrom)
	q.DateTo = nullTime(dateTo)
	q.LastRunAt = nullTime(lastRunAt)
	return q, nil
}

func scanSavedQueries(rows *sql.Rows) ([]model.SavedQuery, error) {
	defer rows.Close()

	out := make([]model.SavedQuery, 0)
	for rows.Next() {
		q, err := scanSavedQuery(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("saved query rows: %w", err)
	}
	return out, nil
}

// pgUsers reads the users table maintained by the identity provider.
type pgUsers struct {
	db *sql.DB
}

func (r *pgUsers) FindByID(ctx context.Context, id string) (model.User, error) {
	u := model.User{ID: id}
	var firstName, lastName sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT username, email, first_name, last_name FROM users WHERE id::text = $1`, id,
	).Scan(&u.Username, &u.Email, &firstName, &lastName)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("user %s: %w", id, err)
	}
	u.FirstName = firstName.String
	u.LastName = lastName.String
	return u, nil
}

// isUniqueViolation matches SQLSTATE 23505 as surfaced by the pgx driver.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
