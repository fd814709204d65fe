// Package http exposes anomaly detection and forecasting as a JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"spese-insights/internal/anomaly"
	"spese-insights/internal/core"
	applog "spese-insights/internal/log"
	"spese-insights/internal/middleware/ratelimit"
	"spese-insights/internal/middleware/security"
	"spese-insights/internal/middleware/trace"
)

// Analyzer is the slice of the insights service the API calls.
type Analyzer interface {
	DetectAnomalies(ctx context.Context, req anomaly.DetectRequest) ([]core.AnomalyView, error)
	PreviewAnomalies(ctx context.Context, req anomaly.DetectRequest) ([]core.AnomalyResult, error)
	ReviewAnomaly(ctx context.Context, expenseID int64, confirmed bool) (core.Anomaly, error)
	Forecast(ctx context.Context, userID int64, months int) ([]core.ForecastView, error)
	ForecastByCategory(ctx context.Context, userID int64, months int) ([]core.ForecastView, error)
	ForecastHistory(ctx context.Context, userID int64) ([]string, error)
	ForecastsForMonth(ctx context.Context, userID int64, month string) ([]core.ForecastView, error)
}

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Defaults fill in query parameters the caller leaves out.
type Defaults struct {
	Threshold float64
	Method    core.DetectionMethod
	Months    int
}

// Config assembles a Server.
type Config struct {
	Addr     string
	Defaults Defaults
	// ReviewsPerMinute limits review submissions per client; 0 means 60.
	ReviewsPerMinute int
	Logger           *applog.Logger
}

// Server wraps http.Server with the API routes and their middleware.
type Server struct {
	http.Server
	insights     Analyzer
	health       Pinger
	defaults     Defaults
	limiter      *ratelimit.Limiter
	detector     *security.Detector
	tracer       *trace.Middleware
	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run server.
// health may be nil, in which case /readyz always succeeds.
func NewServer(cfg Config, insights Analyzer, health Pinger) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		Server: http.Server{
			Addr:              cfg.Addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		insights: insights,
		health:   health,
		defaults: cfg.Defaults,
		limiter:  ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: cfg.ReviewsPerMinute}),
		detector: detector,
		tracer:   trace.NewMiddleware(detector.ExtractClientIP),
	}

	r := chi.NewRouter()
	r.Use(s.tracer.Middleware)
	r.Use(applog.Middleware(logger, trace.GetRequestID))
	r.Use(middleware.Recoverer)
	r.Use(security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware)
	r.Use(detector.Middleware)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		NotFoundError("route not found").Write(w)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Write(w)
	})

	r.Get("/healthz", handleHealth)
	r.Get("/readyz", s.handleReady)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/users/{userID}", func(r chi.Router) {
			r.Get("/anomalies", s.handleDetect)
			r.Get("/anomalies/preview", s.handlePreview)
			r.Get("/forecasts", s.handleForecast)
			r.Get("/forecasts/categories", s.handleForecastByCategory)
			r.Get("/forecasts/history", s.handleForecastHistory)
			r.Get("/forecasts/history/{month}", s.handleForecastMonth)
		})
		r.With(s.limiter.Middleware(detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
			ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded, retry later").Write(w)
		})).Post("/anomalies/{expenseID}/review", s.handleReview)
	})

	s.Handler = r
	return s
}

// Metrics returns request counters for the server.
func (s *Server) Metrics() trace.Metrics {
	return s.tracer.GetMetrics()
}

// Shutdown stops background goroutines and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]string{"status": "ok"}).Write(w)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.health.Ping(ctx); err != nil {
			applog.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", applog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "storage unavailable").Write(w)
			return
		}
	}
	NewJSONResponse().Body(map[string]string{"status": "ready"}).Write(w)
}
