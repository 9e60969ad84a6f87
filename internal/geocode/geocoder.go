// Package geocode resolves free-text locations to coordinates through a
// Nominatim-compatible search API and computes great-circle distances.
//
// Lookups never fail loudly: blank input, an empty upstream result, or any
// transport/parse error yields ok=false and callers fall back to plain text
// matching. Only successful lookups are cached.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"jobmate/jobsearch/internal/cache"
	"jobmate/jobsearch/internal/logging"
	"jobmate/jobsearch/internal/model"
)

const (
	defaultBaseURL   = "https://nominatim.openstreetmap.org/search"
	defaultUserAgent = "JobSearchApplication/1.0"
	httpTimeout      = 10 * time.Second
)

// Config defines geocoder settings. Zero values fall back to defaults.
type Config struct {
	BaseURL    string
	UserAgent  string // Nominatim's usage policy requires an identifying agent
	RatePerSec float64
	HTTPClient *http.Client
	Cache      cache.Cache[string, model.Coordinates]
	Logger     *logging.Logger
}

// Geocoder is safe for concurrent use.
type Geocoder struct {
	baseURL    string
	userAgent  string
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      cache.Cache[string, model.Coordinates]
	log        *logging.Logger
}

// New builds a Geocoder. Without a cache it keeps results in process memory
// for the lifetime of the process.
func New(cfg Config) *Geocoder {
	g := &Geocoder{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent:  cfg.UserAgent,
		httpClient: cfg.HTTPClient,
		cache:      cfg.Cache,
		log:        cfg.Logger,
	}
	if g.baseURL == "" {
		g.baseURL = defaultBaseURL
	}
	if g.userAgent == "" {
		g.userAgent = defaultUserAgent
	}
	if g.httpClient == nil {
		g.httpClient = &http.Client{Timeout: httpTimeout}
	}
	if g.cache == nil {
		g.cache = cache.NewMemory[string, model.Coordinates]()
	}
	if g.log == nil {
		g.log = logging.NewNop()
	}

	limit := rate.Limit(cfg.RatePerSec)
	if cfg.RatePerSec <= 0 {
		limit = rate.Limit(1)
	}
	g.limiter = rate.NewLimiter(limit, 1)

	return g
}

// Geocode resolves location. The cache key is the raw input string.
func (g *Geocoder) Geocode(ctx context.Context, location string) (model.Coordinates, bool) {
	if strings.TrimSpace(location) == "" {
		return model.Coordinates{}, false
	}

	if c, ok, err := g.cache.Get(ctx, location); err != nil {
		g.log.Warn("geocode cache read failed", "location", location, "err", err)
	} else if ok {
		return c, true
	}

	c, err := g.lookup(ctx, location)
	if err != nil {
		g.log.Warn("geocode lookup failed", "location", location, "err", err)
		return model.Coordinates{}, false
	}

	g.log.Info("geocoded location", "location", location, "display_name", c.DisplayName,
		"lat", c.Latitude, "lon", c.Longitude)

	if err := g.cache.Set(ctx, location, c, 0); err != nil {
		g.log.Warn("geocode cache write failed", "location", location, "err", err)
	}
	return c, true
}

type place struct {
	Lat         json.RawMessage `json:"lat"`
	Lon         json.RawMessage `json:"lon"`
	DisplayName string          `json:"display_name"`
}

func (g *Geocoder) lookup(ctx context.Context, location string) (model.Coordinates, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return model.Coordinates{}, fmt.Errorf("rate limiter: %w", err)
	}

	params := url.Values{}
	params.Set("q", location)
	params.Set("format", "json")
	params.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return model.Coordinates{}, fmt.Errorf("geocoder returned %d", resp.StatusCode)
	}

	var places []place
	if err := json.Unmarshal(body, &places); err != nil {
		return model.Coordinates{}, fmt.Errorf("json unmarshal: %w", err)
	}
	if len(places) == 0 {
		return model.Coordinates{}, fmt.Errorf("no results for %q", location)
	}

	first := places[0]
	lat, okLat := parseCoordinate(first.Lat)
	lon, okLon := parseCoordinate(first.Lon)
	if !okLat || !okLon {
		return model.Coordinates{}, fmt.Errorf("result for %q has no coordinates", location)
	}

	return model.Coordinates{Latitude: lat, Longitude: lon, DisplayName: first.DisplayName}, nil
}

// parseCoordinate accepts both the quoted decimals Nominatim returns and
// plain JSON numbers.
func parseCoordinate(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 || string(raw) == "null" {
		return 0, false
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return f, err == nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	return f, true
}
