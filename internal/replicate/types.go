// Package replicate provides an HTTP client for the Replicate predictions API.
package replicate

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Status represents the status of a Replicate prediction.
type Status string

// Replicate prediction statuses aligned with the Replicate API.
const (
	StatusStarting   Status = "starting"
	StatusProcessing Status = "processing"
	StatusSucceeded  Status = "succeeded"
	StatusFailed     Status = "failed"
	StatusCanceled   Status = "canceled"
)

// IsTerminal returns true if the status is a terminal state.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusSucceeded, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Fixed inpainting parameters sent with every prediction.
const (
	DefaultNegativePrompt = "blurry, two riders, respect the mask, distorted, extra limbs, modify mask, " +
		"unrealistic lighting, low quality, wrong colors, vehicle flying, deformed rider, shadows missing, " +
		"duplicated wheels, glitch, no tire tracks"
	DefaultSteps         = 25
	DefaultWidth         = 1024
	DefaultHeight        = 512
	DefaultScheduler     = "DPMSolverMultistep"
	DefaultResolution    = "original"
	DefaultResemblance   = 0.5
	DefaultGuidanceScale = 7.5
)

// SubmitRequest contains the caller-controlled fields of a prediction.
type SubmitRequest struct {
	ModelVersion string  // Model version hash
	Prompt       string  // Positive prompt
	ImageURL     string  // Source image URL
	Mask         string  // Mask URL or data URI
	Creativity   float64 // Creativity in [0,1]
}

// predictionRequest represents the request body for POST /predictions.
type predictionRequest struct {
	Version string          `json:"version"`
	Input   predictionInput `json:"input"`
}

// predictionInput represents the input field of a prediction request.
type predictionInput struct {
	HDR            int     `json:"hdr"`
	Mask           string  `json:"mask"`
	Image          string  `json:"image"`
	Steps          int     `json:"steps"`
	Width          int     `json:"width"`
	Height         int     `json:"height"`
	Prompt         string  `json:"prompt"`
	NegativePrompt string  `json:"negative_prompt"`
	Scheduler      string  `json:"scheduler"`
	Creativity     float64 `json:"creativity"`
	Resolution     string  `json:"resolution"`
	Resemblance    float64 `json:"resemblance"`
	GuidanceScale  float64 `json:"guidance_scale"`
}

// newPredictionInput fills the fixed parameters around the caller fields.
func newPredictionInput(req SubmitRequest) predictionInput {
	return predictionInput{
		HDR:            0,
		Mask:           req.Mask,
		Image:          req.ImageURL,
		Steps:          DefaultSteps,
		Width:          DefaultWidth,
		Height:         DefaultHeight,
		Prompt:         req.Prompt,
		NegativePrompt: DefaultNegativePrompt,
		Scheduler:      DefaultScheduler,
		Creativity:     req.Creativity,
		Resolution:     DefaultResolution,
		Resemblance:    DefaultResemblance,
		GuidanceScale:  DefaultGuidanceScale,
	}
}

// predictionResponse represents a prediction object returned by both
// POST /predictions and GET /predictions/{id}.
type predictionResponse struct {
	ID     string         `json:"id"`
	Status string         `json:"status"`
	Output outputList     `json:"output,omitempty"`
	Error  any            `json:"error,omitempty"`
	URLs   predictionURLs `json:"urls"`
}

// predictionURLs holds the links returned with a prediction.
type predictionURLs struct {
	Get    string `json:"get,omitempty"`
	Cancel string `json:"cancel,omitempty"`
}

// errorResponse is the body Replicate sends with non-2xx responses.
type errorResponse struct {
	Detail string `json:"detail,omitempty"`
	Title  string `json:"title,omitempty"`
}

// outputList accepts either a list of URLs or a single URL.
type outputList []string

// UnmarshalJSON decodes a string, a list of strings, or null.
func (o *outputList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*o = nil
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("replicate: decode output: %w", err)
		}
		*o = outputList{s}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("replicate: decode output: %w", err)
	}
	*o = list
	return nil
}

// errorString renders the prediction error field, which Replicate
// sends as a string but occasionally as an object.
func errorString(v any) string {
	switch e := v.(type) {
	case nil:
		return ""
	case string:
		return e
	default:
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Sprint(e)
		}
		return string(b)
	}
}

// Prediction is the client-side view of a Replicate prediction.
type Prediction struct {
	ID      string
	Status  Status
	Output  []string // Artifact URLs (set when Status is StatusSucceeded)
	Error   string   // Error message (set when Status is StatusFailed)
	PollURL string   // Status-tracking URL from urls.get
}

// toPrediction maps a wire response to a Prediction.
func (r predictionResponse) toPrediction() Prediction {
	return Prediction{
		ID:      r.ID,
		Status:  Status(r.Status),
		Output:  []string(r.Output),
		Error:   errorString(r.Error),
		PollURL: r.URLs.Get,
	}
}
