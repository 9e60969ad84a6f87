// Package api implements the HTTP handlers for the job search service.
//
// Saved-query routes expect an x-user-id header forwarded by the Gateway.
//
// Routes:
//
//	GET    /health                                 → liveness
//	GET    /api/jobs/search                        → ingest, then search
//	GET    /api/jobs/saved-queries                 → list user's saved queries
//	GET    /api/jobs/saved-queries/active          → list user's active saved queries
//	GET    /api/jobs/saved-queries/{id}            → one saved query
//	POST   /api/jobs/saved-queries                 → create
//	PUT    /api/jobs/saved-queries/{id}            → update
//	PATCH  /api/jobs/saved-queries/{id}/toggle     → flip active flag
//	DELETE /api/jobs/saved-queries/{id}            → delete
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"jobmate/jobsearch/internal/logging"
	"jobmate/jobsearch/internal/model"
	"jobmate/jobsearch/internal/savedquery"
	"jobmate/jobsearch/internal/search"
)

const userHeader = "x-user-id"

// Ingester refreshes the store before a search.
type Ingester interface {
	Ingest(ctx context.Context, query, location string, distance int) (int, error)
}

// Searcher answers searches from the store.
type Searcher interface {
	Search(ctx context.Context, p search.Params) (model.SearchResult, error)
}

// Handler holds shared dependencies.
type Handler struct {
	ingester        Ingester
	searcher        Searcher
	queries         *savedquery.Service
	defaultDistance int
	version         string
	log             *logging.Logger
}

type Config struct {
	Ingester        Ingester
	Searcher        Searcher
	SavedQueries    *savedquery.Service
	DefaultDistance int
	Version         string
	Logger          *logging.Logger
}

func NewHandler(cfg Config) *Handler {
	h := &Handler{
		ingester:        cfg.Ingester,
		searcher:        cfg.Searcher,
		queries:         cfg.SavedQueries,
		defaultDistance: cfg.DefaultDistance,
		version:         cfg.Version,
		log:             cfg.Logger,
	}
	if h.defaultDistance <= 0 {
		h.defaultDistance = search.DefaultDistance
	}
	if h.log == nil {
		h.log = logging.NewNop()
	}
	return h
}

// RegisterRoutes mounts all routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /api/jobs/search", h.search)

	mux.HandleFunc("GET /api/jobs/saved-queries", h.withUser(h.listSavedQueries))
	mux.HandleFunc("GET /api/jobs/saved-queries/active", h.withUser(h.listActiveSavedQueries))
	mux.HandleFunc("GET /api/jobs/saved-queries/{id}", h.withUser(h.getSavedQuery))
	mux.HandleFunc("POST /api/jobs/saved-queries", h.withUser(h.createSavedQuery))
	mux.HandleFunc("PUT /api/jobs/saved-queries/{id}", h.withUser(h.updateSavedQuery))
	mux.HandleFunc("PATCH /api/jobs/saved-queries/{id}/toggle", h.withUser(h.toggleSavedQuery))
	mux.HandleFunc("DELETE /api/jobs/saved-queries/{id}", h.withUser(h.deleteSavedQuery))
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonOK(w, map[string]string{
		"status":  "ok",
		"service": "jobsearch",
		"version": h.version,
	})
}

// ─── Search ──────────────────────────────────────────────────────────────────

// search always refreshes from the upstream source before reading the store.
// Ingestion failures are logged; the caller still gets whatever the store holds.
func (h *Handler) search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := search.Params{
		Query:         strings.TrimSpace(q.Get("query")),
		Location:      strings.TrimSpace(q.Get("location")),
		Distance:      h.defaultDistance,
		ExcludedTerms: q.Get("excludedTerms"),
	}
	if p.Query == "" || p.Location == "" {
		jsonError(w, "query and location are required", http.StatusBadRequest)
		return
	}
	if raw := q.Get("distance"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil || d < 0 {
			jsonError(w, "distance must be a non-negative integer", http.StatusBadRequest)
			return
		}
		// 0 means "unset" so ingestion and the search cache key agree on the radius.
		if d > 0 {
			p.Distance = d
		}
	}
	if raw := q.Get("dateFrom"); raw != "" {
		t, err := savedquery.ParseDate(raw)
		if err != nil {
			jsonError(w, "dateFrom: "+err.Error(), http.StatusBadRequest)
			return
		}
		p.DateFrom = &t
	}
	if raw := q.Get("dateTo"); raw != "" {
		t, err := savedquery.ParseDate(raw)
		if err != nil {
			jsonError(w, "dateTo: "+err.Error(), http.StatusBadRequest)
			return
		}
		p.DateTo = &t
	}

	log := h.log.With("query", p.Query, "location", p.Location, "distance", p.Distance)
	log.Info("search request")

	if h.ingester != nil {
		if n, err := h.ingester.Ingest(r.Context(), p.Query, p.Location, p.Distance); err != nil {
			log.Warn("ingestion before search failed", "new", n, "err", err)
		}
	}

	res, err := h.searcher.Search(r.Context(), p)
	if err != nil {
		log.Error("search failed", "err", err)
		jsonError(w, "search failed", http.StatusInternalServerError)
		return
	}
	jsonOK(w, res)
}

// ─── Saved queries ───────────────────────────────────────────────────────────

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

func (h *Handler) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get(userHeader)
		if userID == "" {
			jsonError(w, "missing x-user-id header", http.StatusUnauthorized)
			return
		}
		next(w, r, userID)
	}
}

func (h *Handler) listSavedQueries(w http.ResponseWriter, r *http.Request, userID string) {
	qs, err := h.queries.List(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, qs)
}

func (h *Handler) listActiveSavedQueries(w http.ResponseWriter, r *http.Request, userID string) {
	qs, err := h.queries.ListActive(r.Context(), userID)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, qs)
}

func (h *Handler) getSavedQuery(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q, err := h.queries.Get(r.Context(), userID, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, q)
}

func (h *Handler) createSavedQuery(w http.ResponseWriter, r *http.Request, userID string) {
	var in savedquery.Input
	if !decode(w, r, &in) {
		return
	}
	q, err := h.queries.Create(r.Context(), userID, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonStatus(w, http.StatusCreated, q)
}

func (h *Handler) updateSavedQuery(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in savedquery.Input
	if !decode(w, r, &in) {
		return
	}
	q, err := h.queries.Update(r.Context(), userID, id, in)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, q)
}

func (h *Handler) toggleSavedQuery(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	q, err := h.queries.Toggle(r.Context(), userID, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	jsonOK(w, q)
}

func (h *Handler) deleteSavedQuery(w http.ResponseWriter, r *http.Request, userID string) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.queries.Delete(r.Context(), userID, id); err != nil {
		h.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps service errors onto HTTP status codes.
func (h *Handler) fail(w http.ResponseWriter, err error) {
	var verr *savedquery.ValidationError
	switch {
	case errors.As(err, &verr):
		jsonError(w, verr.Msg, http.StatusBadRequest)
	case errors.Is(err, savedquery.ErrNotFound):
		jsonError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, savedquery.ErrDuplicate):
		jsonError(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("saved query request failed", "err", err)
		jsonError(w, "database error", http.StatusInternalServerError)
	}
}

// ─── Helpers ─────────────────────────────────────────────────────────────────

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		jsonError(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func jsonOK(w http.ResponseWriter, v any) {
	jsonStatus(w, http.StatusOK, v)
}

func jsonStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	jsonStatus(w, code, map[string]string{"error": msg})
}
