package scraper_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jobmate/jobsearch/internal/scraper"
)

func TestAdzunaFetcher_BuildRequest(t *testing.T) {
	f := scraper.NewAdzunaFetcher(scraper.AdzunaConfig{
		AppID:          "id-123",
		AppKey:         "key-456",
		Country:        "GB",
		BaseURL:        "https://api.example.test/v1/api/jobs/",
		ResultsPerPage: 20,
	})

	req, err := f.BuildRequest(context.Background(), scraper.SearchParams{
		Query: "data engineer", Location: "London", Distance: 10, Page: 3,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/v1/api/jobs/gb/search/3", req.URL.Path)

	q := req.URL.Query()
	assert.Equal(t, "id-123", q.Get("app_id"))
	assert.Equal(t, "key-456", q.Get("app_key"))
	assert.Equal(t, "20", q.Get("results_per_page"))
	assert.Equal(t, "data engineer", q.Get("what"))
	assert.Equal(t, "London", q.Get("where"))
	assert.Equal(t, "16", q.Get("distance"), "miles are sent as kilometres")
	assert.Equal(t, "application/json", q.Get("content-type"))
	assert.Equal(t, "GB", f.Country())
}

func TestAdzunaFetcher_BuildRequestOmitsEmptyFilters(t *testing.T) {
	f := scraper.NewAdzunaFetcher(scraper.AdzunaConfig{AppID: "a", AppKey: "b"})

	req, err := f.BuildRequest(context.Background(), scraper.SearchParams{Query: "nurse"})
	require.NoError(t, err)

	assert.Equal(t, "/v1/api/jobs/us/search/1", req.URL.Path)
	assert.Equal(t, "50", req.URL.Query().Get("results_per_page"))
	assert.False(t, req.URL.Query().Has("where"))
	assert.False(t, req.URL.Query().Has("distance"))
}

func TestAdzunaFetcher_Enabled(t *testing.T) {
	assert.False(t, scraper.NewAdzunaFetcher(scraper.AdzunaConfig{}).Enabled())
	assert.False(t, scraper.NewAdzunaFetcher(scraper.AdzunaConfig{AppID: "a"}).Enabled())
	assert.True(t, scraper.NewAdzunaFetcher(scraper.AdzunaConfig{AppID: "a", AppKey: "b"}).Enabled())
}

func TestAdzunaFetcher_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/us/search/1":
			_, _ = w.Write([]byte(`{"results":[{"id":"1","title":"Nurse"}]}`))
		case "/us/search/2":
			w.WriteHeader(http.StatusOK)
		default:
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}
	}))
	defer srv.Close()

	f := scraper.NewAdzunaFetcher(scraper.AdzunaConfig{AppID: "a", AppKey: "b", BaseURL: srv.URL})

	req, err := f.BuildRequest(context.Background(), scraper.SearchParams{Query: "nurse", Page: 1})
	require.NoError(t, err)
	body, err := f.Execute(req)
	require.NoError(t, err)
	jobs, err := scraper.ParsePage(body)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, scraper.ExternalID("1"), jobs[0].ID)
	assert.Equal(t, "Nurse", jobs[0].Title)

	req, err = f.BuildRequest(context.Background(), scraper.SearchParams{Query: "nurse", Page: 2})
	require.NoError(t, err)
	body, err = f.Execute(req)
	require.NoError(t, err, "an empty body is not a transport error")
	assert.Empty(t, body)

	req, err = f.BuildRequest(context.Background(), scraper.SearchParams{Query: "nurse", Page: 3})
	require.NoError(t, err)
	_, err = f.Execute(req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestParsePage(t *testing.T) {
	jobs, err := scraper.ParsePage([]byte(`{"results":[
		{"id": 987654321, "title": "A", "salary_min": 1000.5},
		{"id": " 42 ", "title": "B", "company": {"display_name": "Acme"}, "category": {"tag": "it-jobs", "label": "IT Jobs"}}
	]}`))
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, scraper.ExternalID("987654321"), jobs[0].ID)
	require.NotNil(t, jobs[0].SalaryMin)
	assert.InDelta(t, 1000.5, *jobs[0].SalaryMin, 1e-9)
	assert.Nil(t, jobs[0].SalaryMax)
	assert.Equal(t, scraper.ExternalID("42"), jobs[1].ID)
	assert.Equal(t, "Acme", jobs[1].Company.DisplayName)

	jobs, err = scraper.ParsePage([]byte(`{"results": "none"}`))
	require.NoError(t, err)
	assert.Empty(t, jobs)

	_, err = scraper.ParsePage([]byte(`[1,2,3]`))
	assert.Error(t, err)
}
