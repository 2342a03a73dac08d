package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Simplici0/shopworks/internal/domain/inventory"
	"github.com/Simplici0/shopworks/internal/domain/jobs"
	"github.com/Simplici0/shopworks/internal/domain/parts"
	"github.com/Simplici0/shopworks/internal/domain/rates"
	"github.com/Simplici0/shopworks/internal/metrics"
	"github.com/Simplici0/shopworks/internal/reconcile"
)

const maxBodyBytes = 1 << 20

type server struct {
	db         *sql.DB
	log        *slog.Logger
	metrics    *metrics.Metrics
	parts      *parts.Repo
	inventory  *inventory.Repo
	jobs       *jobs.Repo
	rates      *rates.Repo
	reconciler *reconcile.Reconciler
	now        func() time.Time
}

func newServer(database *sql.DB, log *slog.Logger, m *metrics.Metrics) *server {
	return &server{
		db:         database,
		log:        log,
		metrics:    m,
		parts:      parts.NewRepo(database),
		inventory:  inventory.NewRepo(database),
		jobs:       jobs.NewRepo(database),
		rates:      rates.NewRepo(database),
		reconciler: reconcile.New(log.With("component", "reconcile")),
		now:        time.Now,
	}
}

func (s *server) routes(exposeMetrics bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)

	r.Get("/health", s.handleHealth)
	if exposeMetrics {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/rates", s.handleGetRates)
		r.Put("/rates", s.handleUpdateRates)

		r.Get("/stock-items", s.handleListStockItems)
		r.Post("/stock-items", s.handleCreateStockItem)
		r.Put("/stock-items/{id}/price", s.handleUpdateStockPrice)

		r.Post("/jobs", s.handleCreateJob)
		r.Post("/jobs/{id}/shifts", s.handleCreateShift)

		r.Get("/parts", s.handleListParts)
		r.Post("/parts", s.handleCreatePart)
		r.Route("/parts/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetPart)
			r.Post("/requirements", s.handleRequirements)
			r.Post("/quote", s.handlePartQuote)
			r.Post("/variants/{suffix}/quote", s.handleVariantQuote)
			r.Post("/edits", s.handleEdit)
			r.Post("/reconcile", s.handleReconcile)
			r.Get("/labor-feedback", s.handleLaborFeedback)
		})
	})
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		s.log.Error("health check failed", "err", err)
		http.Error(w, "database unavailable", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// snapshot loads everything a quote or reconciliation reads for one part.
func (s *server) snapshot(ctx context.Context, id int64) (reconcile.Snapshot, error) {
	p, err := s.parts.Get(ctx, id)
	if err != nil {
		return reconcile.Snapshot{}, err
	}
	prices, err := s.inventory.PriceList(ctx)
	if err != nil {
		return reconcile.Snapshot{}, err
	}
	rc, err := s.rates.Get(ctx)
	if err != nil {
		return reconcile.Snapshot{}, err
	}
	return reconcile.Snapshot{Part: p, Prices: prices, Rates: rc}, nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// fail maps domain errors to status codes. Anything unrecognised is logged
// and reported as a 500 without detail.
func (s *server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, parts.ErrNotFound), errors.Is(err, inventory.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, parts.ErrStaleRevision):
		s.metrics.ObserveStaleRevision()
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, reconcile.ErrInvalidEdit), errors.Is(err, reconcile.ErrUnknownVariant):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"err", err,
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON reads a single JSON object into dst. An empty body leaves dst
// untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// isConstraint reports whether err is a sqlite constraint violation of the
// given kind ("UNIQUE", "FOREIGN KEY").
func isConstraint(err error, kind string) bool {
	return err != nil && strings.Contains(err.Error(), kind+" constraint failed")
}

func parseID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}
