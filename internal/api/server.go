// Package api serves properties, discovery jobs, subject matching, unit
// sync, and market insights over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/rentcomp/internal/discovery"
	"github.com/sells-group/rentcomp/internal/insights"
	"github.com/sells-group/rentcomp/internal/model"
	"github.com/sells-group/rentcomp/internal/store"
	"github.com/sells-group/rentcomp/internal/subject"
)

// Discoverer runs a discovery job for a property.
type Discoverer interface {
	Run(ctx context.Context, propertyID, searchURL string) (*discovery.RunResult, error)
}

// Deps are the collaborators the API serves. Discoverer may be nil when
// discovery is not configured.
type Deps struct {
	Store      store.Store
	Subjects   *subject.Service
	Insights   *insights.Service
	Discoverer Discoverer
}

// Server is the HTTP API.
type Server struct {
	deps    Deps
	origins []string
}

// NewServer creates a Server. An empty origins list allows any origin.
func NewServer(deps Deps, origins []string) *Server {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{deps: deps, origins: origins}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Authorization"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/properties", func(r chi.Router) {
		r.Get("/", s.listProperties)
		r.Post("/", s.createProperty)
		r.Get("/{id}", s.getProperty)
		r.Post("/{id}/discover", s.discover)
	})

	r.Route("/jobs/{id}", func(r chi.Router) {
		r.Get("/", s.getJob)
		r.Get("/listings", s.listListings)
		r.Get("/matches", s.inspect)
		r.Post("/resolve", s.resolve)
		r.Post("/subject", s.override)
		r.Post("/sync", s.sync)
		r.Get("/insights", s.insights)
	})

	r.Get("/listings/{id}/units", s.listUnits)

	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("api: encode response", zap.Error(err))
	}
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps domain errors to HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, subject.ErrListingNotInBatch):
		status = http.StatusBadRequest
	case errors.Is(err, subject.ErrEmptyBatch), errors.Is(err, insights.ErrNoSubject):
		status = http.StatusConflict
	case errors.Is(err, discovery.ErrNoLocation):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, subject.ErrNoUnitExtractor):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		zap.L().Error("api: request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: msg})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Properties

type createPropertyRequest struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	City    string `json:"city"`
	State   string `json:"state"`
}

func (s *Server) createProperty(w http.ResponseWriter, r *http.Request) {
	var req createPropertyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.Name == "" || req.Address == "" {
		badRequest(w, "name and address are required")
		return
	}
	p, err := s.deps.Store.CreateProperty(r.Context(), model.Property{
		Name:    req.Name,
		Address: req.Address,
		City:    req.City,
		State:   req.State,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listProperties(w http.ResponseWriter, r *http.Request) {
	props, err := s.deps.Store.ListProperties(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	if props == nil {
		props = []model.Property{}
	}
	writeJSON(w, http.StatusOK, props)
}

type propertyResponse struct {
	*model.Property
	LatestJob *model.ScrapeJob `json:"latest_job,omitempty"`
}

func (s *Server) getProperty(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.deps.Store.GetProperty(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := propertyResponse{Property: p}
	job, err := s.deps.Store.LatestJob(ctx, p.ID)
	switch {
	case err == nil:
		resp.LatestJob = job
	case !errors.Is(err, store.ErrNotFound):
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type discoverRequest struct {
	SearchURL string `json:"search_url"`
}

func (s *Server) discover(w http.ResponseWriter, r *http.Request) {
	if s.deps.Discoverer == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "discovery is not configured"})
		return
	}
	var req discoverRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "invalid request body")
			return
		}
	}
	res, err := s.deps.Discoverer.Run(r.Context(), chi.URLParam(r, "id"), req.SearchURL)
	if err != nil {
		if res != nil && res.Job != nil {
			zap.L().Warn("api: discovery failed", zap.String("job_id", res.Job.ID), zap.Error(err))
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// Jobs

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	job, err := s.deps.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) listListings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Store.GetJob(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	listings, err := s.deps.Store.ListListings(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if listings == nil {
		listings = []model.Listing{}
	}
	writeJSON(w, http.StatusOK, listings)
}

func (s *Server) inspect(w http.ResponseWriter, r *http.Request) {
	in, err := s.deps.Subjects.Inspect(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, in)
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	res, err := s.deps.Subjects.ResolveJob(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type overrideRequest struct {
	ListingID string `json:"listing_id"`
}

func (s *Server) override(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	if req.ListingID == "" {
		badRequest(w, "listing_id is required")
		return
	}
	jobID := chi.URLParam(r, "id")
	if err := s.deps.Subjects.Override(r.Context(), jobID, req.ListingID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":     "ok",
		"job_id":     jobID,
		"listing_id": req.ListingID,
	})
}

func (s *Server) sync(w http.ResponseWriter, r *http.Request) {
	competitors := r.URL.Query().Get("competitors") == "true"
	report, err := s.deps.Subjects.SyncUnits(r.Context(), chi.URLParam(r, "id"), competitors)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) insights(w http.ResponseWriter, r *http.Request) {
	narrate := r.URL.Query().Get("narrate") == "true"
	report, err := s.deps.Insights.Report(r.Context(), chi.URLParam(r, "id"), narrate)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) listUnits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Store.GetListing(ctx, id); err != nil {
		writeError(w, r, err)
		return
	}
	units, err := s.deps.Store.ListUnits(ctx, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if units == nil {
		units = []model.Unit{}
	}
	writeJSON(w, http.StatusOK, units)
}
