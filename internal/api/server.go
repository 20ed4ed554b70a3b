// Package api exposes the extraction pipeline, the feedback log and the
// result archive over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/sells-group/receipt-ocr/internal/model"
	"github.com/sells-group/receipt-ocr/internal/store"
)

// Extractor processes one image into a result.
type Extractor interface {
	Process(ctx context.Context, path, id string) *model.DocumentResult
}

// Backend is the slice of the store the API reads and writes.
type Backend interface {
	AddFeedback(ctx context.Context, entries ...model.FeedbackEntry) ([]model.FeedbackEntry, error)
	FeedbackStats(ctx context.Context) (*model.FeedbackStats, error)
	GetResult(ctx context.Context, documentID string) (*model.DocumentResult, error)
	ListResults(ctx context.Context, filter store.ResultFilter) ([]model.DocumentResult, error)
}

// Options configures the handler.
type Options struct {
	AllowedOrigins []string
	MaxConcurrent  int64
	RequestTimeout time.Duration
}

type server struct {
	ext     Extractor
	backend Backend
	slots   *semaphore.Weighted
}

// NewHandler builds the router. ext or backend may be nil, in which case
// the routes depending on them answer 503.
func NewHandler(ext Extractor, backend Backend, opts Options) http.Handler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 4
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	s := &server{ext: ext, backend: backend, slots: semaphore.NewWeighted(opts.MaxConcurrent)}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	if opts.RequestTimeout > 0 {
		r.Use(middleware.Timeout(opts.RequestTimeout))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Post("/extract", s.handleExtract)
		r.Post("/feedback", s.handleFeedback)
		r.Get("/feedback/stats", s.handleFeedbackStats)
		r.Get("/results", s.handleListResults)
		r.Get("/results/{id}", s.handleGetResult)
	})
	return r
}

type extractRequest struct {
	ImagePath  string `json:"image_path"`
	DocumentID string `json:"document_id"`
}

func (s *server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if s.ext == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction is not configured")
		return
	}
	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ImagePath == "" {
		writeError(w, http.StatusBadRequest, "image_path is required")
		return
	}

	if err := s.slots.Acquire(r.Context(), 1); err != nil {
		writeError(w, http.StatusServiceUnavailable, "request canceled while waiting for a worker")
		return
	}
	defer s.slots.Release(1)

	res := s.ext.Process(r.Context(), req.ImagePath, req.DocumentID)
	writeJSON(w, http.StatusOK, res)
}

type feedbackRequest struct {
	Entries []model.FeedbackEntry `json:"entries"`
}

func (s *server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "store is not configured")
		return
	}
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Entries) == 0 {
		writeError(w, http.StatusBadRequest, "entries are required")
		return
	}

	added, err := s.backend.AddFeedback(r.Context(), req.Entries...)
	if err != nil {
		zap.L().Warn("api: feedback rejected", zap.Error(err))
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ids := make([]string, len(added))
	for i, e := range added {
		ids[i] = e.ID
	}
	writeJSON(w, http.StatusCreated, map[string]any{"accepted": len(added), "ids": ids})
}

func (s *server) handleFeedbackStats(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "store is not configured")
		return
	}
	stats, err := s.backend.FeedbackStats(r.Context())
	if err != nil {
		zap.L().Error("api: feedback stats", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load feedback stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *server) handleListResults(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "store is not configured")
		return
	}
	filter, err := parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	results, err := s.backend.ListResults(r.Context(), filter)
	if err != nil {
		zap.L().Error("api: list results", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list results")
		return
	}
	if results == nil {
		results = []model.DocumentResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (s *server) handleGetResult(w http.ResponseWriter, r *http.Request) {
	if s.backend == nil {
		writeError(w, http.StatusServiceUnavailable, "store is not configured")
		return
	}
	id := chi.URLParam(r, "id")
	res, err := s.backend.GetResult(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "result not found")
		return
	}
	if err != nil {
		zap.L().Error("api: get result", zap.String("document_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load result")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func parseFilter(r *http.Request) (store.ResultFilter, error) {
	q := r.URL.Query()
	f := store.ResultFilter{Status: model.Status(q.Get("status"))}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, eris.New("since must be RFC3339")
		}
		f.Since = t
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := q.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, eris.Errorf("%s must be a non-negative integer", key)
		}
		*dst = n
	}
	return f, nil
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Info("api: request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
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

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
