package scraper

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"jobmate/jobsearch/internal/logging"
	"jobmate/jobsearch/internal/model"
	"jobmate/jobsearch/internal/store"
)

const (
	DefaultMaxPages  = 5
	DefaultPageDelay = 500 * time.Millisecond
)

// Ingester runs the paginated fetch → dedup → persist cycle against one
// Source. It is safe for concurrent use; overlapping runs rely on the store's
// unique constraints for dedup.
type Ingester struct {
	source    Source
	store     *store.Store
	mapper    *mapper
	maxPages  int
	pageDelay time.Duration
	sleep     func(ctx context.Context, d time.Duration)
	now       func() time.Time
	log       *logging.Logger
}

// Option configures an Ingester.
type Option func(*Ingester)

func WithMaxPages(n int) Option {
	return func(w *Ingester) {
		if n > 0 {
			w.maxPages = n
		}
	}
}

func WithPageDelay(d time.Duration) Option {
	return func(w *Ingester) {
		if d >= 0 {
			w.pageDelay = d
		}
	}
}

// WithSleep replaces the inter-page pause. Tests use it to record delays.
func WithSleep(fn func(ctx context.Context, d time.Duration)) Option {
	return func(w *Ingester) { w.sleep = fn }
}

func WithClock(now func() time.Time) Option {
	return func(w *Ingester) { w.now = now }
}

func WithLogger(l *logging.Logger) Option {
	return func(w *Ingester) { w.log = l }
}

// WithCountry sets the country code given to locations whose listing has no
// area information.
func WithCountry(code string) Option {
	return func(w *Ingester) { w.mapper.country = code }
}

// NewIngester constructs an Ingester with a 5 page budget and a 500ms pause.
func NewIngester(src Source, st *store.Store, opts ...Option) *Ingester {
	w := &Ingester{
		source:    src,
		store:     st,
		mapper:    &mapper{store: st, source: src.Name(), country: "US"},
		maxPages:  DefaultMaxPages,
		pageDelay: DefaultPageDelay,
		sleep:     sleepCtx,
		now:       func() time.Time { return time.Now().UTC() },
		log:       logging.NewNop(),
	}
	if c, ok := src.(interface{ Country() string }); ok && c.Country() != "" {
		w.mapper.country = c.Country()
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// PageStats summarises one processed page.
type PageStats struct {
	Received   int
	Inserted   int
	Duplicates int
	NoID       int
}

// Ingest fetches up to the page budget for (query, location, distance) and
// returns how many new postings were persisted.
//
// Empty or unparseable pages and per-page persistence failures are logged
// and count as zero. A transport error or non-200 status aborts the call and
// is returned together with the count persisted so far. A zero-length
// results array ends pagination.
func (w *Ingester) Ingest(ctx context.Context, query, location string, distance int) (int, error) {
	if e, ok := w.source.(interface{ Enabled() bool }); ok && !e.Enabled() {
		w.log.Warn("source credentials missing, skipping ingestion", "source", w.source.Name())
		return 0, nil
	}

	log := w.log.With("query", query, "location", location, "distance", distance)
	log.Info("ingestion started", "max_pages", w.maxPages)

	total := 0
	for page := 1; page <= w.maxPages; page++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		body, err := w.fetch(ctx, SearchParams{Query: query, Location: location, Distance: distance, Page: page})
		if err != nil {
			log.Error("page fetch failed, aborting ingestion", "page", page, "err", err)
			return total, fmt.Errorf("page %d: %w", page, err)
		}

		if len(bytes.TrimSpace(body)) == 0 {
			log.Warn("empty response body", "page", page)
			w.pause(ctx, page)
			continue
		}

		jobs, err := ParsePage(body)
		if err != nil {
			log.Error("unparseable page", "page", page, "err", err)
			w.pause(ctx, page)
			continue
		}
		if len(jobs) == 0 {
			log.Info("no more results upstream", "page", page)
			break
		}

		stats, err := w.processPage(ctx, jobs)
		if err != nil {
			log.Error("page persistence failed", "page", page, "err", err)
		} else {
			total += stats.Inserted
			log.Info("page processed", "page", page,
				"received", stats.Received, "new", stats.Inserted,
				"duplicates", stats.Duplicates, "no_id", stats.NoID)
		}

		w.pause(ctx, page)
	}

	log.Info("ingestion finished", "new", total)
	return total, nil
}

func (w *Ingester) fetch(ctx context.Context, p SearchParams) ([]byte, error) {
	req, err := w.source.BuildRequest(ctx, p)
	if err != nil {
		return nil, err
	}
	// Path only: the query string carries credentials.
	w.log.Debug("fetching page", "page", p.Page, "path", req.URL.Path)
	return w.source.Execute(req)
}

// processPage stages every new listing of a page and writes them in a single
// batch. Any store error fails the whole page.
func (w *Ingester) processPage(ctx context.Context, jobs []RawJob) (PageStats, error) {
	stats := PageStats{Received: len(jobs)}
	foundAt := w.now()

	staged := make([]model.JobPosting, 0, len(jobs))
	seen := make(map[string]struct{}, len(jobs))

	for _, raw := range jobs {
		id := string(raw.ID)
		if id == "" {
			stats.NoID++
			continue
		}
		if _, dup := seen[id]; dup {
			stats.Duplicates++
			continue
		}
		seen[id] = struct{}{}

		exists, err := w.store.Jobs.ExistsByExternalID(ctx, id)
		if err != nil {
			return stats, fmt.Errorf("dedup check %s: %w", id, err)
		}
		if exists {
			stats.Duplicates++
			continue
		}

		posting, err := w.mapper.toPosting(ctx, raw, foundAt)
		if err != nil {
			return stats, fmt.Errorf("map %s: %w", id, err)
		}
		staged = append(staged, posting)
	}

	inserted, err := w.store.Jobs.SaveAll(ctx, staged)
	if err != nil {
		return stats, fmt.Errorf("save batch: %w", err)
	}
	// Rows skipped by the unique constraint were written by a concurrent run.
	stats.Duplicates += len(staged) - inserted
	stats.Inserted = inserted
	return stats, nil
}

func (w *Ingester) pause(ctx context.Context, page int) {
	if page >= w.maxPages || w.pageDelay <= 0 {
		return
	}
	w.sleep(ctx, w.pageDelay)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
