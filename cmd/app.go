package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"jobmate/jobsearch/internal/cache"
	"jobmate/jobsearch/internal/config"
	"jobmate/jobsearch/internal/db"
	"jobmate/jobsearch/internal/geocode"
	"jobmate/jobsearch/internal/logging"
	"jobmate/jobsearch/internal/model"
	"jobmate/jobsearch/internal/notify"
	"jobmate/jobsearch/internal/savedquery"
	"jobmate/jobsearch/internal/scheduler"
	"jobmate/jobsearch/internal/scraper"
	"jobmate/jobsearch/internal/search"
	"jobmate/jobsearch/internal/store"
)

const (
	searchCachePrefix  = "jobsearch:search:"
	geocodeCachePrefix = "jobsearch:geocode:"
)

// app owns every long-lived dependency of one process.
type app struct {
	cfg  *config.Config
	log  *logging.Logger
	pool *pgxpool.Pool
	rdb  *redis.Client // nil without REDIS_URL

	store    *store.Store
	ingester *scraper.Ingester
	engine   *search.Engine
	queries  *savedquery.Service
	notifier notify.Notifier
}

func newApp(ctx context.Context, configFile string) (*app, error) {
	cfg, err := config.Load(configFile)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	a := &app{cfg: cfg, log: logging.New(cfg.LogLevel)}

	// ── PostgreSQL ───────────────────────────────────────────────────────────
	a.log.Info("connecting to PostgreSQL")
	a.pool, err = db.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	a.store = store.NewPostgres(db.SQLDB(a.pool))

	// ── Redis (optional) ─────────────────────────────────────────────────────
	var (
		searchCache  cache.Cache[search.Key, model.SearchResult]
		geocodeCache cache.Cache[string, model.Coordinates]
		published    notify.Notifier = notify.Log{Logger: a.log.Named("notify")}
	)
	if cfg.RedisURL != "" {
		a.log.Info("connecting to Redis")
		a.rdb, err = db.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("redis: %w", err)
		}
		searchCache = cache.NewRedis[search.Key, model.SearchResult](a.rdb, searchCachePrefix)
		geocodeCache = cache.NewRedis[string, model.Coordinates](a.rdb, geocodeCachePrefix)
		published = notify.NewRedis(a.rdb, cfg.NotifyChannel)
	} else {
		a.log.Warn("REDIS_URL not set, using in-process caches and log-only notifications")
	}

	// ── Pipeline ─────────────────────────────────────────────────────────────
	fetcher := scraper.NewAdzunaFetcher(scraper.AdzunaConfig{
		AppID:          cfg.Adzuna.AppID,
		AppKey:         cfg.Adzuna.AppKey,
		Country:        cfg.Adzuna.Country,
		BaseURL:        cfg.Adzuna.BaseURL,
		ResultsPerPage: cfg.Adzuna.ResultsPerPage,
	})
	if !cfg.AdzunaEnabled() {
		a.log.Warn("ADZUNA_APP_ID/ADZUNA_APP_KEY not set, ingestion disabled")
	}
	a.ingester = scraper.NewIngester(fetcher, a.store,
		scraper.WithMaxPages(cfg.Ingest.MaxPages),
		scraper.WithPageDelay(cfg.Ingest.PageDelay),
		scraper.WithLogger(a.log.Named("scraper")),
	)

	geocoder := geocode.New(geocode.Config{
		BaseURL:    cfg.Geocoder.BaseURL,
		UserAgent:  cfg.Geocoder.UserAgent,
		RatePerSec: cfg.Geocoder.RatePerSec,
		Cache:      geocodeCache,
		Logger:     a.log.Named("geocode"),
	})
	a.engine = search.New(search.Config{
		Store:           a.store,
		Geocoder:        geocoder,
		Cache:           searchCache,
		TTL:             cfg.Search.CacheTTL,
		DefaultDistance: cfg.Search.DefaultDistance,
		Logger:          a.log.Named("search"),
	})

	a.queries = savedquery.NewService(a.store.SavedQueries, a.log.Named("savedquery"))

	// ── Notifications ────────────────────────────────────────────────────────
	emailCfg := notify.EmailConfig{
		Enabled:  cfg.Email.Enabled,
		From:     cfg.Email.From,
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.Username,
		Password: cfg.Email.Password,
	}
	a.notifier = notify.Multi{
		notify.NewEmail(emailCfg, a.store.Users, notify.NewSMTPSender(emailCfg), a.log.Named("email")),
		published,
	}
	return a, nil
}

func (a *app) scheduler() (*scheduler.Scheduler, error) {
	return scheduler.New(scheduler.Config{
		Queries:    a.store.SavedQueries,
		Ingester:   a.ingester,
		Notifier:   a.notifier,
		Spec:       a.cfg.Schedule.Spec,
		RunOnStart: a.cfg.Schedule.RunOnStart,
		Logger:     a.log.Named("scheduler"),
	})
}

func (a *app) close() {
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	_ = a.log.Sync()
}
