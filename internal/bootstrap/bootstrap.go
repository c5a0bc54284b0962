// Package bootstrap provides dependency initialization for the inpainting relay.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maauso/inpaint-relay/internal/config"
	"github.com/maauso/inpaint-relay/internal/generation"
	"github.com/maauso/inpaint-relay/internal/metrics"
	"github.com/maauso/inpaint-relay/internal/prediction"
	"github.com/maauso/inpaint-relay/internal/replicate"
	"github.com/maauso/inpaint-relay/internal/storage"
)

// metricsNamespace prefixes every exported metric.
const metricsNamespace = "inpaint_relay"

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	GenerationService *generation.Service
	Metrics           *metrics.Collector
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	// Initialize Replicate client
	client := replicate.NewClient(
		replicate.WithBaseURL(cfg.ReplicateBaseURL),
		replicate.WithTimeout(cfg.ReplicateHTTPTimeout()),
	)

	collector := metrics.NewCollector(metricsNamespace)

	opts := []generation.ServiceOption{
		generation.WithRecorder(collector),
		generation.WithPollerOptions(
			prediction.WithInterval(cfg.PollInterval()),
			prediction.WithMaxAttempts(cfg.PollMaxAttempts),
			prediction.WithTimeout(cfg.PollTimeout()),
			prediction.WithUnknownStatusGrace(cfg.PollUnknownStatusGrace),
		),
	}

	// Initialize optional artifact mirror
	mirror, err := initMirror(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if mirror != nil {
		opts = append(opts, generation.WithMirror(mirror))
	}

	svc := generation.NewService(client, logger, opts...)

	return &Dependencies{
		GenerationService: svc,
		Metrics:           collector,
	}, nil
}

// initMirror creates the S3 mirror when S3 is configured, or returns nil.
func initMirror(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*storage.Mirror, error) {
	if !cfg.S3Enabled() {
		logger.Info("artifact mirroring disabled")
		return nil, nil
	}

	s3Store, err := storage.NewS3Storage(ctx, storage.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 storage: %w", err)
	}
	logger.Info("S3 artifact mirror configured",
		slog.String("bucket", cfg.S3Bucket),
		slog.String("region", cfg.S3Region),
		slog.String("prefix", cfg.S3Prefix),
	)
	return storage.NewMirror(s3Store, storage.WithKeyPrefix(cfg.S3Prefix)), nil
}
