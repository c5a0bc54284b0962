// Package prediction provides the PredictionJob entity and the poller that
// drives a Replicate prediction from submission to a terminal outcome.
package prediction

import (
	"errors"
	"time"

	"github.com/maauso/inpaint-relay/internal/replicate"
)

// Status represents the current state of a Job.
// States are aligned with Replicate prediction states.
type Status string

const (
	// StatusStarting indicates the prediction is booting a model worker.
	StatusStarting Status = "starting"
	// StatusProcessing indicates the model is running.
	StatusProcessing Status = "processing"
	// StatusSucceeded indicates the prediction produced its output.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the prediction errored.
	StatusFailed Status = "failed"
	// StatusCanceled indicates the prediction was canceled.
	StatusCanceled Status = "canceled"
)

// ErrInvalidTransition is returned when a job already in a terminal state is observed again.
var ErrInvalidTransition = errors.New("prediction: invalid state transition")

// IsTerminal returns true if no further state change can occur.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// IsKnown reports whether the status is one Replicate documents.
func (s Status) IsKnown() bool {
	switch s {
	case StatusStarting, StatusProcessing, StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// fromReplicate maps a provider status to a job status.
func fromReplicate(s replicate.Status) Status {
	switch s {
	case replicate.StatusStarting:
		return StatusStarting
	case replicate.StatusProcessing:
		return StatusProcessing
	case replicate.StatusSucceeded:
		return StatusSucceeded
	case replicate.StatusFailed:
		return StatusFailed
	case replicate.StatusCanceled:
		return StatusCanceled
	default:
		return Status(s)
	}
}

// Job is one in-flight prediction. It lives only for the request that
// submitted it and is owned by a single Poller run, so it carries no lock.
type Job struct {
	// ID is the provider's prediction ID.
	ID string
	// PollURL is the status-tracking URL returned on submission.
	PollURL string
	// Status is the last observed state. Empty until the first observation.
	Status Status
	// Output holds the artifact URLs once succeeded.
	Output []string
	// Error holds the provider's failure detail, if any.
	Error string
	// Attempts counts status fetches.
	Attempts int
	// CreatedAt is when the submission was acknowledged.
	CreatedAt time.Time
	// UpdatedAt is when the job was last observed.
	UpdatedAt time.Time
	// CompletedAt is when a terminal status was observed.
	CompletedAt time.Time
}

// New creates a Job from a submission acknowledgment.
func New(p replicate.Prediction) *Job {
	now := time.Now()
	return &Job{
		ID:        p.ID,
		PollURL:   p.PollURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Observe records one status fetch.
// Returns ErrInvalidTransition if the job has already reached a terminal state.
func (j *Job) Observe(p replicate.Prediction) error {
	if j.Status.IsTerminal() {
		return ErrInvalidTransition
	}

	j.Attempts++
	j.Status = fromReplicate(p.Status)
	j.UpdatedAt = time.Now()
	if p.ID != "" {
		j.ID = p.ID
	}

	switch j.Status {
	case StatusSucceeded:
		j.Output = append([]string(nil), p.Output...)
		j.CompletedAt = j.UpdatedAt
	case StatusFailed, StatusCanceled:
		j.Error = p.Error
		j.CompletedAt = j.UpdatedAt
	}

	return nil
}

// IsTerminal returns true if the job is in a terminal state.
func (j *Job) IsTerminal() bool {
	return j.Status.IsTerminal()
}

// FirstOutput returns the first artifact URL, or "" if none.
func (j *Job) FirstOutput() string {
	if len(j.Output) == 0 {
		return ""
	}
	return j.Output[0]
}
