package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/maauso/inpaint-relay/internal/generation"
	"github.com/maauso/inpaint-relay/internal/requestid"
)

// Generator runs one image generation. generation.Service satisfies it.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Result, error)
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	generator         Generator
	logger            *slog.Logger
	defaultCreativity float64
	legacyStatusOK    bool
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithDefaultCreativity sets the creativity used when the request omits it.
func WithDefaultCreativity(c float64) HandlerOption {
	return func(h *Handlers) {
		h.defaultCreativity = c
	}
}

// WithLegacyStatusOK makes every response use HTTP 200, as older
// frontends expect. Errors are still signaled by the "error" field.
func WithLegacyStatusOK(enabled bool) HandlerOption {
	return func(h *Handlers) {
		h.legacyStatusOK = enabled
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(generator Generator, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		generator:         generator,
		logger:            logger,
		defaultCreativity: generation.DefaultCreativity,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// GenerateImage handles POST /api/generar-imagen requests.
// It blocks until the prediction reaches a terminal state or polling gives up.
func (h *Handlers) GenerateImage(w http.ResponseWriter, r *http.Request) {
	logger := h.logger.With(slog.String("request_id", requestid.FromContext(r.Context())))

	var req GenerateImageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if errors.Is(err, errInvalidCreativity) {
			logger.Warn("invalid creativity value", slog.String("error", err.Error()))
			h.writeError(w, http.StatusBadRequest, "El valor de 'creativity' debe estar entre 0 y 1.", "VALIDATION_ERROR")
			return
		}
		logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		h.writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	creativity := h.defaultCreativity
	if req.Creativity != nil {
		creativity = float64(*req.Creativity)
	}

	result, err := h.generator.Generate(r.Context(), generation.Request{
		Credential:   req.ReplicateToken,
		ModelVersion: req.ModelVersion,
		Prompt:       req.Prompt,
		ImageURL:     req.ImageURL,
		Mask:         req.Mask,
		Creativity:   creativity,
	})
	if err != nil {
		kind := generation.KindOf(err)
		status, code := statusFor(kind)
		logger.Warn("image generation failed",
			slog.String("kind", string(kind)),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		h.writeError(w, status, generation.MessageOf(err), code)
		return
	}

	writeJSON(w, http.StatusOK, GenerateImageResponse{ImagenGenerada: result.ImageURL})
}

// statusFor maps a generation failure kind to an HTTP status and error code.
func statusFor(kind generation.Kind) (int, string) {
	switch kind {
	case generation.KindValidation:
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case generation.KindSubmission:
		return http.StatusBadGateway, "SUBMISSION_FAILED"
	case generation.KindJobFailed:
		return http.StatusBadGateway, "GENERATION_FAILED"
	case generation.KindJobCanceled:
		return http.StatusBadGateway, "GENERATION_CANCELED"
	case generation.KindTimeout:
		return http.StatusGatewayTimeout, "POLL_TIMEOUT"
	case generation.KindAborted:
		return http.StatusRequestTimeout, "REQUEST_ABORTED"
	default:
		return http.StatusInternalServerError, "BACKEND_ERROR"
	}
}

// writeError writes an error response, downgrading the status in legacy mode.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message, code string) {
	if h.legacyStatusOK {
		status = http.StatusOK
	}
	writeError(w, status, message, code)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
