package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clickregen/portal-workers/pkg/circuitbreaker"
	"github.com/clickregen/portal-workers/pkg/logger"
	"github.com/clickregen/portal-workers/pkg/models"
)

// StatusProvider is implemented by the indexer scanner and the relayer
type StatusProvider interface {
	Status() map[string]interface{}
	Breaker() *circuitbreaker.CircuitBreaker
}

// LeaderboardProvider serves ranked leaderboard entries
type LeaderboardProvider interface {
	Leaderboard(n int) []models.LeaderboardEntry
}

// Server represents a health check HTTP server
type Server struct {
	port          string
	status        StatusProvider
	leaderboard   LeaderboardProvider
	metricsAPIKey string
	logger        logger.Logger
}

// NewServer creates a new health check server. leaderboard may be nil.
func NewServer(port string, status StatusProvider, leaderboard LeaderboardProvider, metricsAPIKey string, log logger.Logger) *Server {
	if log == nil {
		log = &logger.EmptyLogger{}
	}
	return &Server{
		port:          port,
		status:        status,
		leaderboard:   leaderboard,
		metricsAPIKey: metricsAPIKey,
		logger:        log,
	}
}

// metricsAuthMiddleware is a middleware that checks for a valid API key
func (s *Server) metricsAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Skip auth if no API key is configured
		if s.metricsAPIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Missing Authorization header", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
			return
		}

		if parts[1] != s.metricsAPIKey {
			http.Error(w, "Invalid API key", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Router builds the HTTP routes
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/ready", func(w http.ResponseWriter, _ *http.Request) {
		if s.status.Breaker().IsOpen() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("RPC circuit breaker open"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Ready"))
	}).Methods(http.MethodGet)

	r.HandleFunc("/status", func(w http.ResponseWriter, _ *http.Request) {
		s.writeJSON(w, s.status.Status())
	}).Methods(http.MethodGet)

	if s.leaderboard != nil {
		r.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	}

	// Circuit breaker admin control endpoint
	r.HandleFunc("/circuit/reset", func(w http.ResponseWriter, _ *http.Request) {
		s.status.Breaker().Reset()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Circuit breaker reset"))
	}).Methods(http.MethodPost)

	r.Handle("/metrics", s.metricsAuthMiddleware(promhttp.Handler()))

	return r
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	top := 0
	if raw := r.URL.Query().Get("top"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Invalid top parameter"))
			return
		}
		top = n
	}
	s.writeJSON(w, s.leaderboard.Leaderboard(top))
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Error encoding JSON response: %v", err)
	}
}

// Start serves until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("Starting health and metrics server on port %s", s.port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Error("Health server error: %v", err)
		return err
	}
	return nil
}
