package generation

import (
	"errors"
	"fmt"
)

// Kind classifies a generation failure.
type Kind string

const (
	// KindValidation indicates a missing or out-of-range request field.
	KindValidation Kind = "validation"
	// KindSubmission indicates the provider rejected or never acknowledged the prediction.
	KindSubmission Kind = "submission"
	// KindTimeout indicates polling gave up before a terminal status.
	KindTimeout Kind = "timeout"
	// KindJobFailed indicates the prediction ended in failure.
	KindJobFailed Kind = "job_failed"
	// KindJobCanceled indicates the prediction was canceled on the provider side.
	KindJobCanceled Kind = "job_canceled"
	// KindAborted indicates the caller went away before the prediction finished.
	KindAborted Kind = "aborted"
	// KindUnexpected covers everything else.
	KindUnexpected Kind = "unexpected"
)

// User-facing messages, kept identical to the ones the frontend already shows.
const (
	msgCreativityRange  = "El valor de 'creativity' debe estar entre 0 y 1."
	msgMissingToken     = "No se recibió la API key"
	msgMissingModel     = "No se recibió la version del modelo"
	msgMissingPrompt    = "Falta el parámetro prompt"
	msgMissingImageURL  = "Falta el parámetro image_url"
	msgMissingMask      = "Falta el parámetro mask"
	msgMissingFields    = "Faltan campos obligatorios en la solicitud."
	msgNoTrackingURL    = "No se pudo obtener la URL de seguimiento del modelo"
	msgSubmissionFailed = "No se pudo enviar la solicitud al modelo"
	msgJobFailed        = "Fallo en la generación de imagen"
	msgJobCanceled      = "La generación de imagen fue cancelada"
	msgTimeout          = "Tiempo de espera agotado esperando la imagen generada"
	msgAborted          = "La solicitud fue cancelada"
	msgBackendPrefix    = "Error en el backend: "
)

// Error is the structured failure returned by Service.Generate.
type Error struct {
	// Kind classifies the failure.
	Kind Kind
	// Field names the offending request field for validation errors.
	Field string
	// Message is safe to show to the caller.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("generation %s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("generation %s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnexpected if err is not an *Error.
func KindOf(err error) Kind {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Kind
	}
	return KindUnexpected
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var ge *Error
	if errors.As(err, &ge) {
		return ge.Message
	}
	return msgBackendPrefix + err.Error()
}

func unexpectedError(err error) *Error {
	return &Error{Kind: KindUnexpected, Message: msgBackendPrefix + err.Error(), Err: err}
}
