// Package scheduler wires up the cron job that periodically re-runs every
// active saved query, records its bookkeeping and notifies the owner when
// new postings were found.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"jobmate/jobsearch/internal/logging"
	"jobmate/jobsearch/internal/model"
	"jobmate/jobsearch/internal/notify"
	"jobmate/jobsearch/internal/store"
)

const (
	DefaultSpec = "0 0 * * *"

	notifyTimeout = 30 * time.Second
)

// ErrAlreadyRunning is returned by RunOnce when a run is in progress.
var ErrAlreadyRunning = errors.New("scheduler: run already in progress")

// Ingester is the ingestion pipeline seen from the scheduler.
type Ingester interface {
	Ingest(ctx context.Context, query, location string, distance int) (int, error)
}

type Config struct {
	Queries    store.SavedQueryRepository
	Ingester   Ingester
	Notifier   notify.Notifier
	Spec       string // standard 5-field cron spec or descriptor such as "@every 6h"
	RunOnStart bool
	Logger     *logging.Logger
	Now        func() time.Time
}

// Scheduler wraps robfig/cron and manages the saved-query loop.
type Scheduler struct {
	cron       *cron.Cron
	spec       string
	queries    store.SavedQueryRepository
	ingester   Ingester
	notifier   notify.Notifier
	runOnStart bool
	now        func() time.Time
	log        *logging.Logger

	mu    sync.Mutex
	state State

	pending sync.WaitGroup // in-flight notifications
	bg      sync.WaitGroup // run-on-start
}

// New validates the cron spec and builds a Scheduler. Nothing runs until
// Start or RunOnce.
func New(cfg Config) (*Scheduler, error) {
	s := &Scheduler{
		spec:       cfg.Spec,
		queries:    cfg.Queries,
		ingester:   cfg.Ingester,
		notifier:   cfg.Notifier,
		runOnStart: cfg.RunOnStart,
		now:        cfg.Now,
		log:        cfg.Logger,
		state:      StateIdle,
	}
	if s.spec == "" {
		s.spec = DefaultSpec
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.log == nil {
		s.log = logging.NewNop()
	}
	if s.notifier == nil {
		s.notifier = notify.Log{Logger: s.log}
	}
	if _, err := cron.ParseStandard(s.spec); err != nil {
		return nil, fmt.Errorf("cron spec %q: %w", s.spec, err)
	}

	s.cron = cron.New(cron.WithChain(
		cron.Recover(cronLogger{s.log}),
		cron.SkipIfStillRunning(cronLogger{s.log}),
	))
	return s, nil
}

// Start registers the job and starts the cron loop. With RunOnStart one pass
// also runs immediately in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduled run skipped", "err", err)
		}
	})
	if err != nil {
		return fmt.Errorf("cron.AddFunc: %w", err)
	}

	s.cron.Start()
	s.log.Info("cron started", "spec", s.spec)

	if s.runOnStart {
		s.bg.Add(1)
		go func() {
			defer s.bg.Done()
			if _, err := s.RunOnce(ctx); err != nil {
				s.log.Warn("startup run skipped", "err", err)
			}
		}()
	}
	return nil
}

// Stop halts the cron loop and waits for the current run and any pending
// notifications to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.bg.Wait()
	s.pending.Wait()
	s.log.Info("cron stopped")
}

// Wait blocks until all notifications dispatched so far have completed.
func (s *Scheduler) Wait() {
	s.pending.Wait()
}

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !IsTransitionAllowed(s.state, to) {
		if s.state == StateRunning {
			return ErrAlreadyRunning
		}
		return fmt.Errorf("scheduler: %s → %s not allowed", s.state, to)
	}
	s.state = to
	return nil
}

// Report summarises one pass over the active saved queries.
type Report struct {
	RunID      string
	Queries    int
	Succeeded  int
	Failed     int
	NewJobs    int
	// Dispatched counts notifications handed to the notifier. Delivery is
	// asynchronous; failures are only logged.
	Dispatched int
}

// RunOnce processes every active saved query. A failing query is logged and
// skipped; only failing to load the query list aborts the run.
func (s *Scheduler) RunOnce(ctx context.Context) (Report, error) {
	if err := s.transition(StateRunning); err != nil {
		return Report{}, err
	}
	defer func() {
		if err := s.transition(StateIdle); err != nil {
			s.log.Error("scheduler state", "err", err)
		}
	}()

	report := Report{RunID: uuid.NewString()}
	log := s.log.With("run_id", report.RunID)
	started := s.now()
	log.Info("scheduled run started")

	active, err := s.queries.ListActive(ctx)
	if err != nil {
		log.Error("load active saved queries", "err", err)
		return report, fmt.Errorf("load active saved queries: %w", err)
	}
	report.Queries = len(active)
	if len(active) == 0 {
		log.Warn("no active saved queries")
		return report, nil
	}

	for _, q := range active {
		if err := ctx.Err(); err != nil {
			log.Warn("run interrupted", "err", err)
			return report, err
		}

		newJobs, err := s.runQuery(ctx, log, q)
		if err != nil {
			report.Failed++
			continue
		}
		report.Succeeded++
		report.NewJobs += newJobs
		if newJobs > 0 {
			report.Dispatched++
		}
	}

	log.Info("scheduled run complete",
		"queries", report.Queries, "succeeded", report.Succeeded, "failed", report.Failed,
		"new_jobs", report.NewJobs, "took", s.now().Sub(started).String())
	return report, nil
}

func (s *Scheduler) runQuery(ctx context.Context, runLog *logging.Logger, q model.SavedQuery) (int, error) {
	log := runLog.With("saved_query_id", q.ID, "query", q.Query, "location", q.Location)

	newJobs, err := s.ingester.Ingest(ctx, q.Query, q.Location, q.Distance)
	if err != nil {
		log.Error("ingestion failed", "err", err)
		return 0, err
	}

	ranAt := s.now()
	if err := s.queries.RecordRun(ctx, q.ID, ranAt, newJobs); err != nil {
		log.Error("record run failed", "err", err)
		return 0, err
	}
	log.Info("saved query processed", "new_jobs", newJobs)

	if newJobs > 0 {
		s.dispatch(ctx, log, notify.Notification{
			UserID:   q.UserID,
			QueryID:  q.ID,
			Query:    q.Query,
			Location: q.Location,
			NewJobs:  newJobs,
			RanAt:    ranAt,
		})
	}
	return newJobs, nil
}

// dispatch sends n in the background so a slow mail server never holds up
// the run.
func (s *Scheduler) dispatch(ctx context.Context, log *logging.Logger, n notify.Notification) {
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := s.notifier.Notify(nctx, n); err != nil {
			log.Warn("notification failed", "user_id", n.UserID, "err", err)
		}
	}()
}

// cronLogger adapts logging.Logger to cron.Logger.
type cronLogger struct {
	l *logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
