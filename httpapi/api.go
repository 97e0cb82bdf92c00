// Package httpapi exposes the dispatcher over HTTP: job submission,
// inspection, supplemental input, cancellation, an SSE event stream,
// and the terminal-outcome archive.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	sched "github.com/scribeflow/sched"
	"github.com/scribeflow/sched/id"
	"github.com/scribeflow/sched/store"
)

// API wires the HTTP handlers for one dispatcher.
type API struct {
	d       *sched.Dispatcher
	archive store.Store
	logger  *slog.Logger
}

// Option configures an API.
type Option func(*API)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *API) { a.logger = l }
}

// WithArchive exposes the record archive under /v1/records.
func WithArchive(s store.Store) Option {
	return func(a *API) { a.archive = s }
}

// New creates an API for the given dispatcher.
func New(d *sched.Dispatcher, opts ...Option) *API {
	a := &API{d: d, logger: slog.Default()}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Handler returns the fully assembled http.Handler with all routes.
func (a *API) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", a.health)

		r.Route("/jobs", func(r chi.Router) {
			r.Post("/", a.submitJob)
			r.Get("/", a.listJobs)
			r.Get("/{jobID}", a.getJob)
			r.Post("/{jobID}/input", a.supplyInput)
			r.Post("/{jobID}/cancel", a.cancelJob)
			r.Get("/{jobID}/events", a.streamEvents)
		})

		if a.archive != nil {
			r.Route("/records", func(r chi.Router) {
				r.Get("/", a.listRecords)
				r.Get("/{jobID}", a.getRecord)
			})
		}
	})

	return r
}

// ───────────────────────────────────────────────────────────────────────
// Response helpers
// ───────────────────────────────────────────────────────────────────────

type errorResponse struct {
	Error string `json:"error"`
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("write response", slog.String("error", err.Error()))
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, errorResponse{Error: msg})
}

// writeDispatchError maps dispatcher sentinels to HTTP statuses.
func (a *API) writeDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, sched.ErrJobNotFound):
		a.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, sched.ErrQueueFull):
		a.writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, sched.ErrInvalidState):
		a.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, sched.ErrNotStarted), errors.Is(err, sched.ErrClosed):
		a.writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		a.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func jobIDParam(r *http.Request) (id.JobID, error) {
	return id.ParseJobID(chi.URLParam(r, "jobID"))
}
