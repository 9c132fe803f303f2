// Package api exposes the operational HTTP surface of a worker process:
// health probes, Prometheus metrics, and a small status endpoint.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/trendscout/crawler/internal/metrics"
	"github.com/trendscout/crawler/internal/safety"
)

// QueueDepther reports how many jobs are waiting. Implemented by the Redis
// queue; nil is allowed when the depth is unknown.
type QueueDepther interface {
	Len(ctx context.Context) (int64, error)
}

// Server wires the status routes onto a chi router.
type Server struct {
	router  chi.Router
	breaker *safety.Breaker
	queue   QueueDepther
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(breaker *safety.Breaker, queue QueueDepther, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		breaker: breaker,
		queue:   queue,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/v1/status", s.status)

	s.router = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

type statusResponse struct {
	SafetyMode          bool  `json:"safety_mode"`
	ConsecutiveFailures int64 `json:"consecutive_failures"`
	QueueDepth          int64 `json:"queue_depth"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := statusResponse{
		SafetyMode:          !s.breaker.Allow(ctx),
		ConsecutiveFailures: s.breaker.Failures(ctx),
		QueueDepth:          -1,
	}
	if s.queue != nil {
		if depth, err := s.queue.Len(ctx); err == nil {
			resp.QueueDepth = depth
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("write status response failed", zap.Error(err))
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("handler panicked",
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
				)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
