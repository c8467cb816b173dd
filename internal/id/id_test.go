package id

import (
	"testing"

	"github.com/google/uuid"
)

func TestNewBuildIDUniqueV7(t *testing.T) {
	t.Parallel()

	gen := New()
	a, err := gen.NewBuildID()
	if err != nil {
		t.Fatalf("NewBuildID() error = %v", err)
	}
	b, err := gen.NewBuildID()
	if err != nil {
		t.Fatalf("NewBuildID() error = %v", err)
	}
	if a == b {
		t.Fatalf("expected unique IDs, got %s twice", String(a))
	}
	parsed, err := uuid.Parse(String(a))
	if err != nil {
		t.Fatalf("String() produced invalid uuid: %v", err)
	}
	if parsed.Version() != 7 {
		t.Fatalf("expected version 7, got %d", parsed.Version())
	}
}
