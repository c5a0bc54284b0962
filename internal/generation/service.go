// Package generation provides the GenerateImage use case: it validates an
// inbound request, submits a Replicate prediction, polls it to completion
// and optionally mirrors the resulting image.
package generation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/inpaint-relay/internal/prediction"
	"github.com/maauso/inpaint-relay/internal/replicate"
	"github.com/maauso/inpaint-relay/internal/requestid"
)

// Submitter creates predictions. replicate.HTTPClient satisfies it.
type Submitter interface {
	Submit(ctx context.Context, credential string, req replicate.SubmitRequest) (replicate.Prediction, error)
}

// Provider is the full provider surface the service needs.
type Provider interface {
	Submitter
	prediction.Fetcher
}

// Mirror copies a generated artifact to persistent storage.
type Mirror interface {
	Mirror(ctx context.Context, predictionID, sourceURL string) (string, error)
}

// Recorder receives generation metrics.
type Recorder interface {
	RecordGeneration(outcome string, duration time.Duration, attempts int)
	RecordStatus(status string)
}

// Result is a successful generation.
type Result struct {
	// PredictionID is the provider's prediction ID.
	PredictionID string
	// ImageURL is the URL returned to the caller.
	ImageURL string
	// SourceURL is the provider-hosted URL (differs from ImageURL when mirrored).
	SourceURL string
	// Attempts is the number of status fetches.
	Attempts int
	// Mirrored reports whether ImageURL points at mirrored storage.
	Mirrored bool
}

// Service orchestrates one generation per call. It holds no per-request state.
type Service struct {
	provider   Provider
	validator  *validator.Validate
	logger     *slog.Logger
	pollerOpts []prediction.PollerOption
	mirror     Mirror
	metrics    Recorder
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithPollerOptions sets the options applied to every poll loop.
func WithPollerOptions(opts ...prediction.PollerOption) ServiceOption {
	return func(s *Service) {
		s.pollerOpts = append(s.pollerOpts, opts...)
	}
}

// WithMirror enables artifact mirroring.
func WithMirror(m Mirror) ServiceOption {
	return func(s *Service) {
		s.mirror = m
	}
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) {
		s.metrics = r
	}
}

// NewService creates a new Service.
func NewService(provider Provider, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		provider:  provider,
		validator: newValidator(),
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Generate runs submit → poll → mirror for one request.
// Every failure is returned as an *Error. Nothing is retried.
func (s *Service) Generate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	req = req.normalized()

	logger := s.logger.With(slog.String("request_id", requestid.FromContext(ctx)))

	if err := validateRequest(s.validator, req); err != nil {
		logger.Warn("generation request rejected", slog.String("error", err.Error()))
		s.record(KindOf(err), start, 0)
		return nil, err
	}

	logger = logger.With(
		slog.String("model_version", req.ModelVersion),
		slog.String("token", maskToken(req.Credential)),
	)
	logger.Info("submitting prediction",
		slog.String("image_url", req.ImageURL),
		slog.Float64("creativity", req.Creativity),
	)

	pred, err := s.provider.Submit(ctx, req.Credential, replicate.SubmitRequest{
		ModelVersion: req.ModelVersion,
		Prompt:       req.Prompt,
		ImageURL:     req.ImageURL,
		Mask:         req.Mask,
		Creativity:   req.Creativity,
	})
	if err != nil {
		gerr := submissionError(ctx, err)
		logger.Error("prediction submission failed", slog.String("error", err.Error()))
		s.record(gerr.Kind, start, 0)
		return nil, gerr
	}

	job := prediction.New(pred)
	logger = logger.With(slog.String("prediction_id", job.ID))
	logger.Info("prediction submitted", slog.String("poll_url", job.PollURL))

	opts := append([]prediction.PollerOption{}, s.pollerOpts...)
	opts = append(opts, prediction.WithLogger(logger))
	if s.metrics != nil {
		opts = append(opts, prediction.WithObserver(func(j *prediction.Job) {
			s.metrics.RecordStatus(string(j.Status))
		}))
	}

	imageURL, err := prediction.NewPoller(s.provider, opts...).Poll(ctx, req.Credential, job)
	if err != nil {
		gerr := pollError(err)
		logger.Error("prediction did not succeed",
			slog.String("kind", string(gerr.Kind)),
			slog.Int("attempts", job.Attempts),
			slog.String("error", err.Error()),
		)
		s.record(gerr.Kind, start, job.Attempts)
		return nil, gerr
	}

	result := &Result{
		PredictionID: job.ID,
		ImageURL:     imageURL,
		SourceURL:    imageURL,
		Attempts:     job.Attempts,
	}

	if s.mirror != nil {
		mirrored, err := s.mirror.Mirror(ctx, job.ID, imageURL)
		if err != nil {
			logger.Warn("artifact mirroring failed, returning provider URL",
				slog.String("error", err.Error()),
			)
		} else {
			result.ImageURL = mirrored
			result.Mirrored = true
		}
	}

	logger.Info("prediction succeeded",
		slog.String("image_url", result.ImageURL),
		slog.Int("attempts", result.Attempts),
		slog.Duration("duration", time.Since(start)),
	)
	s.record("succeeded", start, job.Attempts)

	return result, nil
}

// record forwards an outcome to the metrics recorder, if any.
func (s *Service) record(outcome Kind, start time.Time, attempts int) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordGeneration(string(outcome), time.Since(start), attempts)
}

// submissionError classifies a Submit failure.
func submissionError(ctx context.Context, err error) *Error {
	switch {
	case errors.Is(err, replicate.ErrNoTrackingURL):
		return &Error{Kind: KindSubmission, Message: msgNoTrackingURL, Err: err}
	case ctx.Err() != nil && errors.Is(err, context.Canceled):
		return &Error{Kind: KindAborted, Message: msgAborted, Err: err}
	case errors.Is(err, replicate.ErrCredentialRequired):
		return &Error{Kind: KindValidation, Field: "replicate_token", Message: msgMissingToken, Err: err}
	default:
		return &Error{Kind: KindSubmission, Message: msgSubmissionFailed + ": " + err.Error(), Err: err}
	}
}

// pollError classifies a Poll failure.
func pollError(err error) *Error {
	switch {
	case errors.Is(err, prediction.ErrPollTimeout):
		return &Error{Kind: KindTimeout, Message: msgTimeout, Err: err}
	case errors.Is(err, prediction.ErrJobFailed), errors.Is(err, prediction.ErrUnexpectedStatus):
		return &Error{Kind: KindJobFailed, Message: msgJobFailed, Err: err}
	case errors.Is(err, prediction.ErrJobCanceled):
		return &Error{Kind: KindJobCanceled, Message: msgJobCanceled, Err: err}
	case errors.Is(err, context.Canceled):
		return &Error{Kind: KindAborted, Message: msgAborted, Err: err}
	default:
		return unexpectedError(err)
	}
}

// maskToken keeps only the last four characters of a credential for logs.
func maskToken(token string) string {
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}
