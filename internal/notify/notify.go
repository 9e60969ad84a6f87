// Package notify delivers "new jobs found" notifications. Delivery is best
// effort: callers log failures and never roll back their own work.
package notify

import (
	"context"
	"errors"
	"time"

	"jobmate/jobsearch/internal/logging"
)

// ErrUserNotFound is returned when the owning user of a saved query no
// longer exists.
var ErrUserNotFound = errors.New("notify: user not found")

// Notification describes the outcome of one saved-query run.
type Notification struct {
	UserID   string    `json:"userId"`
	QueryID  int64     `json:"savedQueryId"`
	Query    string    `json:"query"`
	Location string    `json:"location"`
	NewJobs  int       `json:"newJobs"`
	RanAt    time.Time `json:"ranAt"`
}

type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Log only records the notification.
type Log struct {
	Logger *logging.Logger
}

func (l Log) Notify(_ context.Context, n Notification) error {
	if l.Logger != nil {
		l.Logger.Info("new jobs found", "user_id", n.UserID, "saved_query_id", n.QueryID,
			"query", n.Query, "location", n.Location, "new_jobs", n.NewJobs)
	}
	return nil
}
