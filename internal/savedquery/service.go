// Package savedquery contains the business logic for a user's saved
// searches. It is transport-agnostic; the api package adapts it to HTTP.
package savedquery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"jobmate/jobsearch/internal/logging"
	"jobmate/jobsearch/internal/model"
	"jobmate/jobsearch/internal/store"
)

const DefaultDistance = 25

var (
	// ErrNotFound is returned when a saved query is missing or belongs to
	// another user.
	ErrNotFound = errors.New("saved query not found")
	// ErrDuplicate is returned when the user already has the same query and
	// location saved.
	ErrDuplicate = errors.New("saved query already exists")
)

// ValidationError wraps a user-facing validation message.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }

// Date is a calendar day that unmarshals from "YYYY-MM-DD".
type Date struct{ time.Time }

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("date must be a string: %w", err)
	}
	t, err := ParseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// ParseDate accepts YYYY-MM-DD or an RFC 3339 timestamp and keeps the day.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", s)
	}
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
}

// Input is the user-editable part of a saved query.
type Input struct {
	Query         string `json:"query" validate:"required,max=255,querytext"`
	Location      string `json:"location" validate:"required,max=255,locationtext"`
	IsActive      *bool  `json:"isActive"`
	Distance      *int   `json:"distance" validate:"omitempty,min=0,max=500"`
	ExcludedTerms string `json:"excludedTerms" validate:"max=500"`
	DateFrom      *Date  `json:"dateFrom"`
	DateTo        *Date  `json:"dateTo"`
}

var (
	queryPattern    = regexp.MustCompile(`^[a-zA-Z0-9\s\-.]+$`)
	locationPattern = regexp.MustCompile(`^[a-zA-Z0-9\s,\-.]+$`)
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("querytext", func(fl validator.FieldLevel) bool {
		return queryPattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("locationtext", func(fl validator.FieldLevel) bool {
		return locationPattern.MatchString(fl.Field().String())
	})
	return v
}

// Service encapsulates saved-query business logic.
type Service struct {
	repo     store.SavedQueryRepository
	validate *validator.Validate
	log      *logging.Logger
}

func NewService(repo store.SavedQueryRepository, logger *logging.Logger) *Service {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Service{repo: repo, validate: newValidator(), log: logger}
}

// Create stores a new active saved query for userID. Distance defaults to 25
// miles.
func (s *Service) Create(ctx context.Context, userID string, in Input) (model.SavedQuery, error) {
	if err := s.check(in); err != nil {
		return model.SavedQuery{}, err
	}
	q := model.SavedQuery{UserID: userID, IsActive: true, Distance: DefaultDistance}
	apply(&q, in)

	if err := s.repo.Create(ctx, &q); err != nil {
		if errors.Is(err, store.ErrConflict) {
			s.log.Warn("saved query already exists", "user_id", userID, "query", q.Query, "location", q.Location)
			return model.SavedQuery{}, ErrDuplicate
		}
		return model.SavedQuery{}, fmt.Errorf("create saved query: %w", err)
	}
	s.log.Info("saved query created", "user_id", userID, "id", q.ID, "query", q.Query, "location", q.Location)
	return q, nil
}

// List returns the user's saved queries, most recently run first.
func (s *Service) List(ctx context.Context, userID string) ([]model.SavedQuery, error) {
	qs, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list saved queries: %w", err)
	}
	return qs, nil
}

// ListActive returns only the user's active saved queries.
func (s *Service) ListActive(ctx context.Context, userID string) ([]model.SavedQuery, error) {
	qs, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	active := make([]model.SavedQuery, 0, len(qs))
	for _, q := range qs {
		if q.IsActive {
			active = append(active, q)
		}
	}
	return active, nil
}

func (s *Service) Get(ctx context.Context, userID string, id int64) (model.SavedQuery, error) {
	q, err := s.repo.Get(ctx, userID, id)
	return q, mapErr(err, "get saved query")
}

// Update replaces the editable fields. Fields absent from in (nil IsActive,
// nil Distance) keep their stored value.
func (s *Service) Update(ctx context.Context, userID string, id int64, in Input) (model.SavedQuery, error) {
	if err := s.check(in); err != nil {
		return model.SavedQuery{}, err
	}
	q, err := s.repo.Get(ctx, userID, id)
	if err != nil {
		return model.SavedQuery{}, mapErr(err, "get saved query")
	}
	apply(&q, in)

	updated, err := s.repo.Update(ctx, q)
	if err != nil {
		return model.SavedQuery{}, mapErr(err, "update saved query")
	}
	s.log.Info("saved query updated", "user_id", userID, "id", id)
	return updated, nil
}

func (s *Service) Toggle(ctx context.Context, userID string, id int64) (model.SavedQuery, error) {
	q, err := s.repo.Toggle(ctx, userID, id)
	if err != nil {
		return model.SavedQuery{}, mapErr(err, "toggle saved query")
	}
	s.log.Info("saved query toggled", "user_id", userID, "id", id, "active", q.IsActive)
	return q, nil
}

func (s *Service) Delete(ctx context.Context, userID string, id int64) error {
	if err := mapErr(s.repo.Delete(ctx, userID, id), "delete saved query"); err != nil {
		return err
	}
	s.log.Info("saved query deleted", "user_id", userID, "id", id)
	return nil
}

func (s *Service) check(in Input) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &ValidationError{Msg: message(verrs[0])}
		}
		return &ValidationError{Msg: err.Error()}
	}
	if in.DateFrom != nil && in.DateTo != nil && in.DateFrom.After(in.DateTo.Time) {
		return &ValidationError{Msg: "dateFrom must not be after dateTo"}
	}
	return nil
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " cannot be blank"
	case "max":
		if fe.Kind() == reflect.String {
			return fmt.Sprintf("%s must not exceed %s characters", fe.Field(), fe.Param())
		}
		return fmt.Sprintf("%s must be at most %s", fe.Field(), fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", fe.Field(), fe.Param())
	case "querytext", "locationtext":
		return fe.Field() + " contains invalid characters"
	}
	return fmt.Sprintf("%s is invalid", fe.Field())
}

func apply(q *model.SavedQuery, in Input) {
	q.Query = strings.TrimSpace(in.Query)
	q.Location = strings.TrimSpace(in.Location)
	q.ExcludedTerms = strings.TrimSpace(in.ExcludedTerms)
	if in.IsActive != nil {
		q.IsActive = *in.IsActive
	}
	if in.Distance != nil {
		q.Distance = *in.Distance
	}
	q.DateFrom = nil
	if in.DateFrom != nil {
		t := in.DateFrom.Time
		q.DateFrom = &t
	}
	q.DateTo = nil
	if in.DateTo != nil {
		t := in.DateTo.Time
		q.DateTo = &t
	}
}

func mapErr(err error, op string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrDuplicate
	}
	return fmt.Errorf("%s: %w", op, err)
}
