package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultAdzunaBaseURL = "https://api.adzuna.com/v1/api/jobs"
	defaultPageSize      = 50
	httpTimeout          = 15 * time.Second
	kmPerMile            = 1.609344
)

// SearchParams describe one page request against a job source.
type SearchParams struct {
	Query    string
	Location string
	Distance int // miles
	Page     int // 1-based
}

// Source is an external job board reachable over HTTP. Building a request
// and executing it are separate steps so the pipeline can log and fake them
// independently.
type Source interface {
	// Name is stored as the posting's source tag.
	Name() string
	BuildRequest(ctx context.Context, p SearchParams) (*http.Request, error)
	// Execute performs req and returns the raw body. Transport errors and
	// non-200 statuses are returned as errors; an empty body is not an error.
	Execute(req *http.Request) ([]byte, error)
}

// AdzunaConfig defines Adzuna API client settings.
type AdzunaConfig struct {
	AppID          string
	AppKey         string
	Country        string // "us", "gb", "fr", …
	BaseURL        string
	ResultsPerPage int
	HTTPClient     *http.Client
}

// AdzunaFetcher fetches job offers from the Adzuna public API, one page per
// request. If AppID or AppKey is empty the fetcher reports itself disabled
// and the pipeline skips ingestion with a warning.
type AdzunaFetcher struct {
	appID    string
	appKey   string
	country  string
	baseURL  string
	pageSize int
	client   *http.Client
}

// NewAdzunaFetcher constructs a fetcher with a shared HTTP client.
func NewAdzunaFetcher(cfg AdzunaConfig) *AdzunaFetcher {
	f := &AdzunaFetcher{
		appID:    cfg.AppID,
		appKey:   cfg.AppKey,
		country:  strings.ToLower(cfg.Country),
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		pageSize: cfg.ResultsPerPage,
		client:   cfg.HTTPClient,
	}
	if f.country == "" {
		f.country = "us"
	}
	if f.baseURL == "" {
		f.baseURL = defaultAdzunaBaseURL
	}
	if f.pageSize <= 0 {
		f.pageSize = defaultPageSize
	}
	if f.client == nil {
		f.client = &http.Client{Timeout: httpTimeout}
	}
	return f
}

func (f *AdzunaFetcher) Name() string { return "Adzuna" }

// Enabled reports whether credentials are configured.
func (f *AdzunaFetcher) Enabled() bool {
	return f.appID != "" && f.appKey != ""
}

// Country is the upper-cased country code used for new locations.
func (f *AdzunaFetcher) Country() string {
	return strings.ToUpper(f.country)
}

func (f *AdzunaFetcher) BuildRequest(ctx context.Context, p SearchParams) (*http.Request, error) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	endpoint := fmt.Sprintf("%s/%s/search/%d", f.baseURL, url.PathEscape(f.country), page)

	params := url.Values{}
	params.Set("app_id", f.appID)
	params.Set("app_key", f.appKey)
	params.Set("results_per_page", strconv.Itoa(f.pageSize))
	params.Set("what", p.Query)
	if p.Location != "" {
		params.Set("where", p.Location)
	}
	if p.Distance > 0 {
		// Adzuna expects kilometres.
		params.Set("distance", strconv.Itoa(int(math.Round(float64(p.Distance)*kmPerMile))))
	}
	params.Set("content-type", "application/json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("adzuna: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (f *AdzunaFetcher) Execute(req *http.Request) ([]byte, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("adzuna returned %d: %s", resp.StatusCode, truncate(strings.TrimSpace(string(body)), 512))
	}
	return body, nil
}

// RawJob mirrors a single Adzuna job listing.
type RawJob struct {
	ID          ExternalID  `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Company     rawCompany  `json:"company"`
	Location    rawLocation `json:"location"`
	Category    rawCategory `json:"category"`
	SalaryMin   *float64    `json:"salary_min"`
	SalaryMax   *float64    `json:"salary_max"`
	RedirectURL string      `json:"redirect_url"`
	Created     string      `json:"created"`
	Latitude    *float64    `json:"latitude"`
	Longitude   *float64    `json:"longitude"`
}

type rawCompany struct {
	DisplayName string `json:"display_name"`
}

type rawLocation struct {
	DisplayName string   `json:"display_name"`
	Area        []string `json:"area"` // [country, state, county, city], coarse to fine
}

type rawCategory struct {
	Tag   string `json:"tag"`
	Label string `json:"label"`
}

// ExternalID accepts both string and numeric ids.
type ExternalID string

func (e *ExternalID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*e = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*e = ExternalID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("external id: %w", err)
	}
	*e = ExternalID(n.String())
	return nil
}

// ParsePage decodes one page body. A missing or non-array "results" value
// yields zero results; a body that is not a JSON object is an error.
func ParsePage(body []byte) ([]RawJob, error) {
	var envelope struct {
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("json unmarshal: %w", err)
	}

	results := bytes.TrimSpace(envelope.Results)
	if len(results) == 0 || results[0] != '[' {
		return nil, nil
	}

	var jobs []RawJob
	if err := json.Unmarshal(results, &jobs); err != nil {
		return nil, fmt.Errorf("decode results: %w", err)
	}
	return jobs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
