// Package requestid provides correlation identifiers for inbound requests.
package requestid

import (
	"context"

	"github.com/google/uuid"
)

// Header is the HTTP header carrying the request ID.
const Header = "X-Request-ID"

type ctxKey struct{}

// Generate creates a new unique request ID.
// Format: req-<uuid>
// Example: req-3f1c9a52-7d0e-4b8b-9d6a-2f4b0f7c1e11
func Generate() string {
	return "req-" + uuid.NewString()
}

// WithID returns a copy of ctx carrying the request ID.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the request ID stored in ctx, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
