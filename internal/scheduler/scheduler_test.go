package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"jobmate/jobsearch/internal/logging"
	"jobmate/jobsearch/internal/model"
	"jobmate/jobsearch/internal/notify"
	"jobmate/jobsearch/internal/scheduler"
	"jobmate/jobsearch/internal/store"
)

type result struct {
	n   int
	err error
}

type fakeIngester struct {
	mu      sync.Mutex
	results map[string]result
	calls   []string
	block   chan struct{}
	started chan struct{}
}

func (f *fakeIngester) Ingest(_ context.Context, query, _ string, _ int) (int, error) {
	f.mu.Lock()
	f.calls = append(f.calls, query)
	f.mu.Unlock()
	if f.started != nil {
		close(f.started)
		f.started = nil
	}
	if f.block != nil {
		<-f.block
	}
	r := f.results[query]
	return r.n, r.err
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, n)
	return f.err
}

func seed(t *testing.T, st *store.Store, queries ...string) []model.SavedQuery {
	t.Helper()
	out := make([]model.SavedQuery, 0, len(queries))
	for _, q := range queries {
		sq := model.SavedQuery{UserID: "u-1", Query: q, Location: "Austin", Distance: 25, IsActive: true}
		require.NoError(t, st.SavedQueries.Create(context.Background(), &sq))
		out = append(out, sq)
	}
	return out
}

var fixedNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

func newScheduler(t *testing.T, st *store.Store, ing scheduler.Ingester, n notify.Notifier) *scheduler.Scheduler {
	return newLoggedScheduler(t, st, ing, n, nil)
}

func newLoggedScheduler(t *testing.T, st *store.Store, ing scheduler.Ingester, n notify.Notifier, log *logging.Logger) *scheduler.Scheduler {
	t.Helper()
	s, err := scheduler.New(scheduler.Config{
		Queries:  st.SavedQueries,
		Ingester: ing,
		Notifier: n,
		Logger:   log,
		Now:      func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return s
}

func TestRunOnce_IsolatesFailingQuery(t *testing.T) {
	st := store.NewMemory()
	seeded := seed(t, st, "nurse", "engineer", "welder")
	ing := &fakeIngester{results: map[string]result{
		"nurse":    {n: 3},
		"engineer": {err: errors.New("adzuna returned 500")},
		"welder":   {n: 0},
	}}
	notifier := &fakeNotifier{}
	core, logs := observer.New(zapcore.DebugLevel)
	s := newLoggedScheduler(t, st, ing, notifier, logging.NewWithCore(core))

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, []string{"nurse", "engineer", "welder"}, ing.calls)
	assert.Equal(t, 3, report.Queries)
	assert.Equal(t, 2, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.NewJobs)
	assert.Equal(t, 1, report.Dispatched)
	assert.NotEmpty(t, report.RunID)

	failures := logs.FilterMessage("ingestion failed").All()
	require.Len(t, failures, 1)
	assert.Equal(t, zapcore.ErrorLevel, failures[0].Level)
	fields := failures[0].ContextMap()
	assert.Equal(t, "engineer", fields["query"])
	assert.Equal(t, report.RunID, fields["run_id"])
	assert.Equal(t, "adzuna returned 500", fields["err"])

	get := func(id int64) model.SavedQuery {
		q, err := st.SavedQueries.Get(context.Background(), "u-1", id)
		require.NoError(t, err)
		return q
	}

	first := get(seeded[0].ID)
	require.NotNil(t, first.LastRunAt)
	assert.Equal(t, fixedNow, *first.LastRunAt)
	assert.Equal(t, 3, first.NewJobsCount)

	second := get(seeded[1].ID)
	assert.Nil(t, second.LastRunAt, "failed query bookkeeping is untouched")
	assert.Equal(t, 0, second.NewJobsCount)

	third := get(seeded[2].ID)
	require.NotNil(t, third.LastRunAt)
	assert.Equal(t, 0, third.NewJobsCount)

	require.Len(t, notifier.sent, 1, "only queries with new jobs notify")
	assert.Equal(t, notify.Notification{
		UserID: "u-1", QueryID: seeded[0].ID, Query: "nurse", Location: "Austin", NewJobs: 3, RanAt: fixedNow,
	}, notifier.sent[0])
}

func TestRunOnce_SkipsInactiveQueries(t *testing.T) {
	st := store.NewMemory()
	seeded := seed(t, st, "nurse", "engineer")
	_, err := st.SavedQueries.Toggle(context.Background(), "u-1", seeded[1].ID)
	require.NoError(t, err)

	ing := &fakeIngester{results: map[string]result{}}
	s := newScheduler(t, st, ing, &fakeNotifier{})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Queries)
	assert.Equal(t, []string{"nurse"}, ing.calls)
}

func TestRunOnce_NotificationFailureKeepsBookkeeping(t *testing.T) {
	st := store.NewMemory()
	seeded := seed(t, st, "nurse", "engineer")
	ing := &fakeIngester{results: map[string]result{"nurse": {n: 2}, "engineer": {n: 5}}}
	notifier := &fakeNotifier{err: notify.ErrUserNotFound}
	s := newScheduler(t, st, ing, notifier)

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	s.Wait()

	assert.Equal(t, 2, report.Succeeded)
	assert.Len(t, notifier.sent, 2, "a failed notification does not stop the next one")

	for i, want := range []int{2, 5} {
		q, err := st.SavedQueries.Get(context.Background(), "u-1", seeded[i].ID)
		require.NoError(t, err)
		require.NotNil(t, q.LastRunAt)
		assert.Equal(t, want, q.NewJobsCount)
	}
}

func TestRunOnce_NoActiveQueries(t *testing.T) {
	ing := &fakeIngester{}
	s := newScheduler(t, store.NewMemory(), ing, &fakeNotifier{})

	report, err := s.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Queries)
	assert.Empty(t, ing.calls)
}

func TestRunOnce_RejectsOverlappingRun(t *testing.T) {
	st := store.NewMemory()
	seed(t, st, "nurse")
	ing := &fakeIngester{
		results: map[string]result{"nurse": {n: 0}},
		block:   make(chan struct{}),
		started: make(chan struct{}),
	}
	started := ing.started
	s := newScheduler(t, st, ing, &fakeNotifier{})

	done := make(chan error, 1)
	go func() {
		_, err := s.RunOnce(context.Background())
		done <- err
	}()

	<-started
	assert.Equal(t, scheduler.StateRunning, s.State())

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, scheduler.ErrAlreadyRunning)

	close(ing.block)
	require.NoError(t, <-done)
	assert.Equal(t, scheduler.StateIdle, s.State())
}

func TestNew_RejectsBadSpec(t *testing.T) {
	_, err := scheduler.New(scheduler.Config{Queries: store.NewMemory().SavedQueries, Spec: "every day"})
	assert.Error(t, err)

	s, err := scheduler.New(scheduler.Config{Queries: store.NewMemory().SavedQueries, Spec: "@every 6h"})
	require.NoError(t, err)
	assert.Equal(t, scheduler.StateIdle, s.State())
}

func TestStartStop(t *testing.T) {
	st := store.NewMemory()
	seed(t, st, "nurse")
	ing := &fakeIngester{results: map[string]result{"nurse": {n: 1}}}
	notifier := &fakeNotifier{}

	s, err := scheduler.New(scheduler.Config{
		Queries:    st.SavedQueries,
		Ingester:   ing,
		Notifier:   notifier,
		Spec:       "@every 24h",
		RunOnStart: true,
	})
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()

	assert.Equal(t, []string{"nurse"}, ing.calls, "run-on-start completes before Stop returns")
	assert.Len(t, notifier.sent, 1)
}
