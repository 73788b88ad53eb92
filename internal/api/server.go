package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
	"github.com/JakeFAU/bookmarks/internal/logging"
	"github.com/JakeFAU/bookmarks/internal/metrics"
)

const defaultRequestTimeout = 30 * time.Second

// BookmarkService is the set of operations the handlers call.
type BookmarkService interface {
	Create(ctx context.Context, in bookmark.CreateInput) (bookmark.Bookmark, error)
	List(ctx context.Context) ([]bookmark.Bookmark, error)
	Get(ctx context.Context, bookmarkID string) (bookmark.Bookmark, error)
	UpdateStatus(ctx context.Context, bookmarkID string, status string) (bookmark.Status, error)
	Delete(ctx context.Context, bookmarkID string) error
	Preview(ctx context.Context, rawURL string) (bookmark.Metadata, error)
}

// Checker reports whether a downstream dependency is reachable.
type Checker interface {
	Ping(ctx context.Context) error
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) error

// Ping calls f.
func (f CheckerFunc) Ping(ctx context.Context) error {
	return f(ctx)
}

// Server wires HTTP handlers to the bookmark service.
type Server struct {
	router         *chi.Mux
	svc            BookmarkService
	logger         *zap.Logger
	checks         map[string]Checker
	requestTimeout time.Duration
}

// Option customizes a Server.
type Option func(*Server)

// WithReadinessCheck adds a named dependency to /readyz.
func WithReadinessCheck(name string, c Checker) Option {
	return func(s *Server) {
		if c != nil {
			s.checks[name] = c
		}
	}
}

// WithRequestTimeout bounds handler execution. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.requestTimeout = d
	}
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc BookmarkService, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		svc:            svc,
		logger:         logger,
		checks:         map[string]Checker{},
		requestTimeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(corsMiddleware)
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware)
	r.Use(metrics.Middleware)
	if s.requestTimeout > 0 {
		r.Use(timeoutMiddleware(s.requestTimeout))
	}
	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not Found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method Not Allowed")
	})

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/bookmarks", func(r chi.Router) {
		r.Post("/", s.createBookmark)
		r.Get("/", s.listBookmarks)
		r.Route("/{bookmarkId}", func(r chi.Router) {
			r.Get("/", s.getBookmark)
			r.Put("/", s.updateBookmark)
			r.Patch("/", s.updateBookmark)
			r.Delete("/", s.deleteBookmark)
		})
	})
	r.Post("/metadata/preview", s.previewMetadata)

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Mux returns the underlying chi router for adapters that need it.
func (s *Server) Mux() *chi.Mux {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	failures := map[string]string{}
	for name, c := range s.checks {
		if err := c.Ping(r.Context()); err != nil {
			failures[name] = err.Error()
		}
	}
	if len(failures) > 0 {
		logging.FromContext(r.Context(), s.logger).Warn("readiness check failed", zap.Any("checks", failures))
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "unavailable", "checks": failures})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type createRequest struct {
	URL   string `json:"url" validate:"required"`
	Title string `json:"title"`
}

type updateRequest struct {
	Status string `json:"status" validate:"oneof=unread learning done"`
}

type previewRequest struct {
	URL string `json:"url" validate:"required"`
}

func (s *Server) createBookmark(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !s.bind(w, r, &req) {
		return
	}
	b, err := s.svc.Create(r.Context(), bookmark.CreateInput{URL: req.URL, Title: req.Title})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) listBookmarks(w http.ResponseWriter, r *http.Request) {
	items, err := s.svc.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) getBookmark(w http.ResponseWriter, r *http.Request) {
	b, err := s.svc.Get(r.Context(), chi.URLParam(r, "bookmarkId"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) updateBookmark(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if !s.bind(w, r, &req) {
		return
	}
	status, err := s.svc.UpdateStatus(r.Context(), chi.URLParam(r, "bookmarkId"), req.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bookmark.Status{"status": status})
}

func (s *Server) deleteBookmark(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Delete(r.Context(), chi.URLParam(r, "bookmarkId")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Successfully deleted")
}

func (s *Server) previewMetadata(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !s.bind(w, r, &req) {
		return
	}
	meta, err := s.svc.Preview(r.Context(), req.URL)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// bind decodes and validates the request body, writing a 400 on failure.
func (s *Server) bind(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(r, dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	if err := validateStruct(dst); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *bookmark.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, bookmark.ErrNotFound):
		writeError(w, http.StatusNotFound, bookmark.ErrNotFound.Error())
	default:
		logging.FromContext(r.Context(), s.logger).Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, internalErrorMessage)
	}
}
