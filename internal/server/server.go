package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/tracyhatemice/kinbox/internal/aggregator"
	"github.com/tracyhatemice/kinbox/internal/cache"
	"github.com/tracyhatemice/kinbox/internal/message"
	"github.com/tracyhatemice/kinbox/internal/query"
)

const maxBodyBytes = 1 << 20

// Queries is the read API served over HTTP.
type Queries interface {
	List(ctx context.Context, creds message.Credentials) (query.Result, error)
	SearchBySender(ctx context.Context, creds message.Credentials, term string) (query.SearchResult, error)
}

// Server exposes the message API over HTTP.
type Server struct {
	queries Queries
	cache   cache.Store
	logger  *slog.Logger
	now     func() time.Time
	mux     *http.ServeMux
}

// New creates a Server. store is only consulted for health and cron.
func New(queries Queries, store cache.Store, logger *slog.Logger) *Server {
	if store == nil {
		store = cache.Nop{}
	}
	s := &Server{
		queries: queries,
		cache:   store,
		logger:  logger,
		now:     time.Now,
		mux:     http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /{$}", s.handleRoot)
	s.mux.HandleFunc("POST /api/messages", s.handleMessages)
	s.mux.HandleFunc("POST /api/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/cron", s.handleCron)
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	return s
}

// Handler returns the routed handler wrapped with request logging.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Sender   string `json:"sender,omitempty"`
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Kinbox Live Email Monitor API",
		"status":  "active",
	})
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	res, err := s.queries.List(r.Context(), credentials(req))
	if err != nil {
		s.writeError(w, r, err, "Unexpected error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeCredentials(w, r)
	if !ok {
		return
	}

	sender := r.URL.Query().Get("sender")
	if sender == "" {
		sender = req.Sender
	}

	res, err := s.queries.SearchBySender(r.Context(), credentials(req), sender)
	if err != nil {
		s.writeError(w, r, err, "Search error")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleCron prunes expired cache entries. It always answers 200.
func (s *Server) handleCron(w http.ResponseWriter, r *http.Request) {
	pruned, err := s.pruneCache()
	ts := s.timestamp()
	if err != nil {
		requestLogger(r, s.logger).Error("cron failed", "error", err)
		writeJSON(w, http.StatusOK, map[string]any{"error": err.Error(), "timestamp": ts})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Cron job executed",
		"timestamp": ts,
		"pruned":    pruned,
	})
}

func (s *Server) pruneCache() (pruned int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("prune cache: %v", r)
		}
	}()
	return s.cache.Prune(), nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"timestamp":  s.timestamp(),
		"cache_size": s.cache.Len(),
	})
}

func (s *Server) decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, bool) {
	var req credentialsRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		writeDetail(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return req, false
	}
	if req.Email == "" || req.Password == "" {
		writeDetail(w, http.StatusBadRequest, "email and password are required")
		return req, false
	}
	return req, true
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, prefix string) {
	var (
		authErr  *aggregator.AuthError
		aggErr   *aggregator.AggregationError
		validErr *query.ValidationError
	)
	log := requestLogger(r, s.logger)

	switch {
	case errors.As(err, &validErr):
		writeDetail(w, http.StatusBadRequest, validErr.Error())
	case errors.As(err, &authErr):
		log.Warn("authentication failed", "error", err)
		writeDetail(w, http.StatusUnauthorized, authErr.Error())
	case errors.As(err, &aggErr):
		log.Error("aggregation failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, aggErr.Error())
	default:
		log.Error("request failed", "error", err)
		writeDetail(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", prefix, err))
	}
}

func (s *Server) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func credentials(req credentialsRequest) message.Credentials {
	return message.Credentials{Address: req.Email, Secret: req.Password}
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type ctxKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-ID", id)
		log := s.logger.With("request_id", id)
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, log))

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		log.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start),
		)
	})
}

func requestLogger(r *http.Request, fallback *slog.Logger) *slog.Logger {
	if log, ok := r.Context().Value(ctxKey{}).(*slog.Logger); ok {
		return log
	}
	return fallback
}
