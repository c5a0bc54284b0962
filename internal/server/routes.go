package server

import (
	"log/slog"
	"net/http"

	"github.com/maauso/inpaint-relay/internal/metrics"
)

// GeneratePath is the route of the image-generation endpoint.
const GeneratePath = "/api/generar-imagen"

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// Metrics, when set, records request metrics and serves GET /metrics.
	Metrics *metrics.Collector
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
	}
}

// NewRouter creates a new HTTP router with all routes configured.
// It uses Go 1.22+ ServeMux with method-based routing.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	// Register routes with method-based patterns (Go 1.22+)
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("POST "+GeneratePath, h.GenerateImage)

	middlewares := []func(http.Handler) http.Handler{
		RecoveryMiddleware(logger),
		RequestIDMiddleware(),
		LoggingMiddleware(logger),
	}

	if cfg.Metrics != nil {
		mux.Handle("GET /metrics", cfg.Metrics.Handler())
		middlewares = append(middlewares,
			MetricsMiddleware(cfg.Metrics, "/health", GeneratePath, "/metrics"),
		)
	}

	middlewares = append(middlewares, CORSMiddleware(cfg.AllowedOrigins))

	return ChainMiddleware(middlewares...)(mux)
}
