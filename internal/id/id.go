// Package id generates build identifiers.
package id

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator produces 16-byte build IDs.
type Generator interface {
	NewBuildID() ([16]byte, error)
}

// UUIDGenerator creates time-ordered UUIDv7 build IDs.
type UUIDGenerator struct{}

// New creates a UUIDGenerator.
func New() UUIDGenerator {
	return UUIDGenerator{}
}

// NewBuildID returns a UUIDv7 in its binary form.
func (UUIDGenerator) NewBuildID() ([16]byte, error) {
	v, err := uuid.NewV7()
	if err != nil {
		return [16]byte{}, fmt.Errorf("generate uuid7: %w", err)
	}
	return [16]byte(v), nil
}

// String renders a binary build ID in canonical UUID form.
func String(buildID [16]byte) string {
	return uuid.UUID(buildID).String()
}
