package requestid

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestGenerate(t *testing.T) {
	id := Generate()

	// Check format
	if !strings.HasPrefix(id, "req-") {
		t.Errorf("expected ID to start with 'req-', got %s", id)
	}
	if _, err := uuid.Parse(strings.TrimPrefix(id, "req-")); err != nil {
		t.Errorf("expected UUID suffix, got %s: %v", id, err)
	}

	// Check uniqueness
	id2 := Generate()
	if id == id2 {
		t.Error("expected different IDs for consecutive calls")
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := Generate()
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestContextRoundTrip(t *testing.T) {
	if got := FromContext(context.Background()); got != "" {
		t.Errorf("expected empty ID, got %q", got)
	}

	ctx := WithID(context.Background(), "req-abc")
	if got := FromContext(ctx); got != "req-abc" {
		t.Errorf("expected req-abc, got %q", got)
	}
}
