package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rflorenc/pan-deduper/internal/config"
	"github.com/rflorenc/pan-deduper/internal/metrics"
	"github.com/rflorenc/pan-deduper/internal/models"
	"github.com/rflorenc/pan-deduper/internal/platform"
)

// ConnectFunc opens the object source for a run.
type ConnectFunc func(ctx context.Context, cfg *config.Config, log *zap.Logger) (platform.Source, error)

// Server holds shared state for all API handlers.
type Server struct {
	// Config is the base settings every run starts from.
	Config  *config.Config
	Jobs    *models.JobStore
	Connect ConnectFunc
	Log     *zap.Logger
	Metrics *metrics.Recorder
	// Gatherer backs /metrics. Nil uses the default registry.
	Gatherer prometheus.Gatherer
}

// NewRouter builds the chi router with all API routes.
func NewRouter(s *Server) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(corsMiddleware)

	r.Route("/api", func(r chi.Router) {
		r.Post("/runs", s.StartRun)
		r.Get("/runs", s.ListRuns)
		r.Get("/runs/{id}", s.GetRun)
		r.Get("/runs/{id}/result", s.GetRunResult)
		r.Post("/runs/{id}/cancel", s.CancelRun)
	})

	// WebSocket (outside /api to avoid JSON content-type assumptions)
	r.Get("/ws/runs/{id}/logs", s.StreamRunLogs)

	gatherer := s.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if s.Log != nil {
			s.Log.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		}
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
