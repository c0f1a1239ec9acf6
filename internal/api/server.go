package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sajjad-MoBe/MVCCStore/internal/shared"
)

// WorkerStats is the per-worker snapshot exposed on the stats endpoint.
type WorkerStats struct {
	Worker    int       `json:"worker"`
	Commits   int64     `json:"commits"`
	Aborts    int64     `json:"aborts"`
	StartTime time.Time `json:"start_time"`
	EndTime   time.Time `json:"end_time"`
}

// StatsFunc returns the current per-worker statistics.
type StatsFunc func() []WorkerStats

// Server exposes the engine's health, metrics and workload statistics over
// HTTP.
type Server struct {
	addr   string
	logger *shared.Logger
	stats  StatsFunc
	srv    *http.Server
}

// NewServer creates the admin HTTP server.
func NewServer(addr string, stats StatsFunc, logger *shared.Logger) *Server {
	if logger == nil {
		logger = shared.DefaultLogger
	}
	s := &Server{addr: addr, logger: logger, stats: stats}

	router := mux.NewRouter()
	router.Use(
		s.loggingMiddleware,
		s.recoveryMiddleware,
	)
	router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	router.HandleFunc("/stats", s.statsHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.srv = &http.Server{Addr: addr, Handler: router}
	return s
}

// Start begins serving. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("admin server listening on %s", s.addr)
	return s.srv.ListenAndServe()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "healthy"})
}

func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var stats []WorkerStats
	if s.stats != nil {
		stats = s.stats()
	}
	json.NewEncoder(w).Encode(stats)
}

// loggingMiddleware logs every request with its duration
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("%s %s took %v", r.Method, r.URL.Path, time.Since(start))
	})
}

// recoveryMiddleware converts panics into 500 responses
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic serving %s: %v", r.URL.Path, rec)
				http.Error(w, "internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}
