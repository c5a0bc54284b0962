package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maauso/inpaint-relay/internal/replicate"
)

// Static errors for poll outcomes.
var (
	// ErrJobFailed is returned when the prediction reports "failed".
	ErrJobFailed = errors.New("prediction: job failed")
	// ErrJobCanceled is returned when the prediction reports "canceled".
	ErrJobCanceled = errors.New("prediction: job canceled")
	// ErrPollTimeout is returned when the attempt cap or deadline is reached.
	ErrPollTimeout = errors.New("prediction: polling timed out")
	// ErrUnexpectedStatus is returned after too many unrecognized statuses in a row.
	ErrUnexpectedStatus = errors.New("prediction: unexpected status")
	// ErrNoOutput is returned when a succeeded prediction has no artifacts.
	ErrNoOutput = errors.New("prediction: succeeded without output")
)

// Fetcher fetches the current state of a prediction.
// replicate.HTTPClient satisfies it.
type Fetcher interface {
	Get(ctx context.Context, credential, pollURL string) (replicate.Prediction, error)
}

// Poller drives a Job to a terminal state.
type Poller struct {
	fetcher      Fetcher
	logger       *slog.Logger
	interval     time.Duration
	maxAttempts  int
	timeout      time.Duration
	unknownGrace int
	observer     func(job *Job)
}

// PollerOption configures a Poller.
type PollerOption func(*Poller)

// WithInterval sets the delay between status fetches.
func WithInterval(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d >= 0 {
			p.interval = d
		}
	}
}

// WithMaxAttempts caps the number of status fetches.
func WithMaxAttempts(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithTimeout sets the overall polling deadline.
func WithTimeout(d time.Duration) PollerOption {
	return func(p *Poller) {
		if d > 0 {
			p.timeout = d
		}
	}
}

// WithUnknownStatusGrace sets how many consecutive unrecognized statuses
// are tolerated before the job is treated as failed.
func WithUnknownStatusGrace(n int) PollerOption {
	return func(p *Poller) {
		if n > 0 {
			p.unknownGrace = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) PollerOption {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithObserver registers a callback invoked after every status fetch.
func WithObserver(fn func(job *Job)) PollerOption {
	return func(p *Poller) {
		p.observer = fn
	}
}

// NewPoller creates a Poller with defaults of a 1s interval, 300 attempts,
// a 5 minute deadline and a grace of 10 unrecognized statuses.
func NewPoller(fetcher Fetcher, opts ...PollerOption) *Poller {
	p := &Poller{
		fetcher:      fetcher,
		logger:       slog.Default(),
		interval:     time.Second,
		maxAttempts:  300,
		timeout:      5 * time.Minute,
		unknownGrace: 10,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Poll fetches the job status until it is terminal and returns the first
// output URL on success. Fetch errors end polling immediately.
func (p *Poller) Poll(ctx context.Context, credential string, job *Job) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	logger := p.logger.With(slog.String("prediction_id", job.ID))
	unknown := 0

	for {
		if job.Attempts >= p.maxAttempts {
			logger.Warn("polling attempts exhausted",
				slog.Int("attempts", job.Attempts),
				slog.String("status", string(job.Status)),
			)
			return "", fmt.Errorf("%w after %d attempts", ErrPollTimeout, job.Attempts)
		}

		pred, err := p.fetcher.Get(ctx, credential, job.PollURL)
		if err != nil {
			return "", p.abort(ctx, job, err)
		}
		if err := job.Observe(pred); err != nil {
			return "", err
		}
		if p.observer != nil {
			p.observer(job)
		}

		logger.Debug("prediction status",
			slog.Int("attempt", job.Attempts),
			slog.String("status", string(job.Status)),
		)

		switch job.Status {
		case StatusSucceeded:
			out := job.FirstOutput()
			if out == "" {
				return "", ErrNoOutput
			}
			return out, nil
		case StatusFailed:
			logger.Warn("prediction failed", slog.String("error", job.Error))
			return "", ErrJobFailed
		case StatusCanceled:
			return "", ErrJobCanceled
		case StatusStarting, StatusProcessing:
			unknown = 0
		default:
			unknown++
			logger.Warn("unrecognized prediction status",
				slog.String("status", string(job.Status)),
				slog.Int("consecutive", unknown),
			)
			if unknown >= p.unknownGrace {
				return "", fmt.Errorf("%w: %q", ErrUnexpectedStatus, job.Status)
			}
		}

		if err := p.wait(ctx); err != nil {
			return "", p.abort(ctx, job, err)
		}
	}
}

// wait sleeps for the poll interval or until ctx is done.
func (p *Poller) wait(ctx context.Context) error {
	if p.interval <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(p.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// abort maps an interrupted poll to ErrPollTimeout when the poll deadline
// fired, and passes other errors through.
func (p *Poller) abort(ctx context.Context, job *Job, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s (%d attempts)", ErrPollTimeout, p.timeout, job.Attempts)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("prediction: polling canceled: %w", err)
	}
	return err
}
