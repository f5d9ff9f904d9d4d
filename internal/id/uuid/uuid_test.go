// Package uuid includes tests for the UUID generator wrapper.
package uuid

import (
	"testing"

	goUUID "github.com/google/uuid"
)

// TestNewIDProducesValidV7 ensures generated IDs parse as version 7 UUIDs.
func TestNewIDProducesValidV7(t *testing.T) {
	t.Parallel()

	gen := New()
	id, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	parsed, err := goUUID.Parse(id)
	if err != nil {
		t.Fatalf("Parse(%q) error = %v", id, err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}

// TestNewIDUnique checks subsequent IDs differ.
func TestNewIDUnique(t *testing.T) {
	t.Parallel()

	gen := New()
	a, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	b, err := gen.NewID()
	if err != nil {
		t.Fatalf("NewID() error = %v", err)
	}
	if a == b {
		t.Fatalf("expected distinct IDs, got %q twice", a)
	}
}
