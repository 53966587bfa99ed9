package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/unifi-audit/auditor/analysis"
	"github.com/unifi-audit/auditor/types"
)

// RunStore is the storage surface the API serves from. *storage.Database
// satisfies it; tests substitute a mock.
type RunStore interface {
	ListRuns(filter types.RunFilter) ([]*types.AuditRun, error)
	GetRun(id string) (*types.AuditRun, error)
	LatestRun(site string) (*types.AuditRun, error)
	HealthHistory(site string, limit int) ([]types.HealthPoint, error)
	QueryMetrics(filter types.MetricFilter) ([]types.TimeSeriesMetric, error)
}

// Server exposes stored audit runs and cross-run trends over HTTP
type Server interface {
	Start(ctx context.Context) error
	Stop() error
	Broadcast(msgType MessageType, data interface{})
}

// server implements the API server
type server struct {
	addr       string
	site       string
	trendCfg   analysis.Config
	store      RunStore
	hub        *Hub
	log        logrus.FieldLogger
	httpServer *http.Server
}

// NewServer creates a new API server instance
func NewServer(addr, site string, trendCfg analysis.Config, store RunStore, log logrus.FieldLogger) Server {
	return &server{
		addr:     addr,
		site:     site,
		trendCfg: trendCfg,
		store:    store,
		hub:      NewHub(log),
		log:      log.WithField("component", "api-server"),
	}
}

// Start initializes and starts the HTTP API server
func (s *server) Start(ctx context.Context) error {
	s.log.Info("Starting API server")

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go s.hub.Run(ctx)

	go func() {
		s.log.WithField("addr", s.httpServer.Addr).Info("API server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("API server failed")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP API server
func (s *server) Stop() error {
	s.log.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	s.hub.Close()

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Error("Failed to shutdown API server gracefully")
			return err
		}
	}

	s.log.Info("API server stopped")
	return nil
}

// Broadcast pushes a live update to every connected WebSocket client
func (s *server) Broadcast(msgType MessageType, data interface{}) {
	s.hub.Broadcast(msgType, data)
}

// setupRoutes configures all HTTP routes and middleware
func (s *server) setupRoutes() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.enableCORS)
	router.Use(s.loggingMiddleware)
	router.Use(s.recoveryMiddleware)

	router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods("GET", "OPTIONS")

	// /runs/latest must be registered before /runs/{runId} or the id
	// pattern swallows it
	api.HandleFunc("/runs/latest", s.handleLatestRun).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs/{runId}", s.handleGetRun).Methods("GET", "OPTIONS")
	api.HandleFunc("/runs/{runId}/report", s.handleGetRunReport).Methods("GET", "OPTIONS")

	api.HandleFunc("/trends/health", s.handleHealthTrend).Methods("GET", "OPTIONS")
	api.HandleFunc("/aps/{mac}/series", s.handleAPSeries).Methods("GET", "OPTIONS")
	api.HandleFunc("/compare/{runId}/{baselineRunId}", s.handleCompareRuns).Methods("GET", "OPTIONS")

	api.HandleFunc("/ws", s.hub.HandleWebSocket)

	return router
}

// enableCORS adds CORS headers to responses
func (s *server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapper.statusCode,
			"duration_ms": time.Since(start).Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Info("HTTP request processed")
	})
}

// recoveryMiddleware turns handler panics into 500 responses
func (s *server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.WithField("error", err).Error("Panic in HTTP handler")
				s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}

// responseWriterWrapper wraps http.ResponseWriter to capture status codes
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
