package generation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultCreativity is used when the caller omits creativity.
const DefaultCreativity = 0.2

// Request is one inbound image-generation request.
// Creativity is declared first so a range error wins over missing fields.
type Request struct {
	// Creativity controls how far the model may stray from the source, in [0,1].
	Creativity float64 `field:"creativity" validate:"gte=0,lte=1"`
	// Credential is the caller's Replicate API token. It is never stored.
	Credential string `field:"replicate_token" validate:"required"`
	// ModelVersion is the Replicate model version hash.
	ModelVersion string `field:"model_version" validate:"required"`
	// Prompt is the positive prompt.
	Prompt string `field:"prompt" validate:"required"`
	// ImageURL is the source image.
	ImageURL string `field:"image_url" validate:"required"`
	// Mask is the inpainting mask as a URL or data URI.
	Mask string `field:"mask" validate:"required"`
}

// normalized returns a copy with surrounding whitespace trimmed.
func (r Request) normalized() Request {
	r.Credential = strings.TrimSpace(r.Credential)
	r.ModelVersion = strings.TrimSpace(r.ModelVersion)
	r.Prompt = strings.TrimSpace(r.Prompt)
	r.ImageURL = strings.TrimSpace(r.ImageURL)
	r.Mask = strings.TrimSpace(r.Mask)
	return r
}

var fieldMessages = map[string]string{
	"creativity":      msgCreativityRange,
	"replicate_token": msgMissingToken,
	"model_version":   msgMissingModel,
	"prompt":          msgMissingPrompt,
	"image_url":       msgMissingImageURL,
	"mask":            msgMissingMask,
}

// newValidator returns a validator reporting fields by their wire names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("field")
	})
	return v
}

// validateRequest returns a KindValidation *Error for the first failing field.
func validateRequest(v *validator.Validate, req Request) error {
	err := v.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return unexpectedError(err)
	}

	field := verrs[0].Field()
	msg, ok := fieldMessages[field]
	if !ok {
		msg = msgMissingFields
	}
	return &Error{Kind: KindValidation, Field: field, Message: msg, Err: verrs[0]}
}
