// Package httpapi is sentinel's operator HTTP surface (spec §6): health,
// read queries over the ledger and engine state, discovery and device
// registry management, mode control, action approval, and Prometheus
// exposition. Grounded on the teacher's internal/server/server.go (mux
// construction, middleware chain, RFC 7807 problem responses) generalized
// from plugin routes to this module's fixed route table.
package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/coolgrid/sentinel/pkg/models"
)

// Engine is the subset of *engine.Engine this package depends on, defined
// consumer-side (the teacher's PluginSource pattern) so httpapi stays
// testable against a fake engine.
type Engine interface {
	Tiles() map[string]models.Tile
	Status() models.Status
	Mode() (string, bool)
	SetMode(mode string, autoEnabled *bool)
	StartDiscovery(ctx context.Context, subnet, actor string, timeoutS int)
	ListDiscoveries(ctx context.Context) models.DiscoveryState
	ApproveDevice(ctx context.Context, actor string, d models.Device) error
	RemoveDeviceEntry(ctx context.Context, actor, id string) (bool, error)
	ApproveAction(ctx context.Context, id int64) (bool, error)
}

// Ledger is the subset of *ledger.Ledger this package depends on.
type Ledger interface {
	ListActions(ctx context.Context, limit int) ([]models.Action, error)
	ListAnomalies(ctx context.Context, limit int) ([]models.AnomalyRecord, error)
	TelemetryHistory(ctx context.Context, rack string, limit int) ([]models.TelemetryPoint, error)
	Ping(ctx context.Context) error
}

// Server is sentinel's operator HTTP surface.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *zap.Logger

	engine Engine
	ledger Ledger
}

// New constructs a Server. registry is the engine's own collector set
// (spec §6 "GET /metrics"); a nil registry falls back to the default
// Prometheus registry only (Go/process collectors and the HTTP metrics of
// middleware.go), with no engine-specific series. Extra registrars (the WS
// handler, the devices/validate prober) are mounted onto the same mux so
// this package doesn't need to depend on coder/websocket directly.
func New(addr string, eng Engine, led Ledger, registry *prometheus.Registry, logger *zap.Logger, extra ...func(*http.ServeMux)) *Server {
	mux := http.NewServeMux()
	s := &Server{mux: mux, logger: logger, engine: eng, ledger: led}
	s.registerRoutes(registry)
	for _, reg := range extra {
		reg(mux)
	}

	skip := []string{"/health", "/metrics", "/ws"}
	handler := Chain(mux,
		RecoveryMiddleware(logger),
		RequestIDMiddleware,
		LoggingMiddleware(logger, skip),
		SecurityHeadersMiddleware,
		RateLimitMiddleware(20, 40, skip),
	)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving HTTP requests; blocks until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Mux exposes the underlying mux without the middleware chain; the
// package's tests use it to drive route handlers directly.
func (s *Server) Mux() *http.ServeMux {
	return s.mux
}

func (s *Server) registerRoutes(registry *prometheus.Registry) {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /tiles", s.handleTiles)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("GET /actions", s.handleListActions)
	s.mux.HandleFunc("GET /anomalies", s.handleListAnomalies)
	s.mux.HandleFunc("GET /telemetry/history", s.handleTelemetryHistory)
	s.mux.HandleFunc("POST /discover/start", s.handleDiscoverStart)
	s.mux.HandleFunc("GET /discover", s.handleDiscoverList)
	s.mux.HandleFunc("POST /discover/approve", s.handleDiscoverApprove)
	s.mux.HandleFunc("DELETE /devices/{id}", s.handleDeviceRemove)
	s.mux.HandleFunc("GET /mode", s.handleModeGet)
	s.mux.HandleFunc("POST /mode", s.handleModeSet)
	s.mux.HandleFunc("POST /actions/approve", s.handleActionApprove)
	if registry != nil {
		// Merge the engine's own collector set with the default registerer
		// (httpRequestsTotal/httpRequestDuration in middleware.go, plus the
		// Go/process collectors promhttp.Handler() would otherwise serve)
		// so GET /metrics exposes both without a double-registration panic
		// across the multiple Engines constructed in tests.
		gatherer := prometheus.Gatherers{registry, prometheus.DefaultGatherer}
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	} else {
		s.mux.Handle("GET /metrics", promhttp.Handler())
	}
}
