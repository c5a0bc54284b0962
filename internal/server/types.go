// Package server provides the HTTP server for the image-generation relay.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"
)

// errInvalidCreativity is returned when creativity is neither a number nor a numeric string.
var errInvalidCreativity = errors.New("creativity must be a number")

// GenerateImageRequest is the HTTP request body for generating an image.
type GenerateImageRequest struct {
	// ReplicateToken is the caller's Replicate API token.
	ReplicateToken string `json:"replicate_token"`
	// ModelVersion is the Replicate model version to run.
	ModelVersion string `json:"model_version"`
	// Prompt is the positive prompt.
	Prompt string `json:"prompt"`
	// ImageURL is the source image URL.
	ImageURL string `json:"image_url"`
	// Mask is the inpainting mask URL or data URI.
	Mask string `json:"mask"`
	// Creativity is optional; a number or numeric string.
	Creativity *Creativity `json:"creativity,omitempty"`
}

// Creativity accepts both 0.4 and "0.4".
type Creativity float64

// UnmarshalJSON decodes a JSON number or a numeric string.
func (c *Creativity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return errInvalidCreativity
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) {
			return errInvalidCreativity
		}
		*c = Creativity(f)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return errInvalidCreativity
	}
	*c = Creativity(f)
	return nil
}

// GenerateImageResponse is the HTTP response for a generated image.
type GenerateImageResponse struct {
	// ImagenGenerada is the URL of the generated image.
	ImagenGenerada string `json:"imagen_generada"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code,omitempty"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	// Status is the health status of the service.
	Status string `json:"status"`
}
