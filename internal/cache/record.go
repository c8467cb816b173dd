package cache

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformed marks stored content that cannot be interpreted as a Record.
var ErrMalformed = errors.New("malformed cache record")

// Record holds the totals of one completed build.
type Record struct {
	// TransformCount is the number of transform events, including dependency modules.
	TransformCount int `json:"cacheTransformCount"`
	// ChunkCount is the number of rendered output chunks.
	ChunkCount int `json:"cacheChunkCount"`
}

// IsZero reports whether both totals are zero.
func (r Record) IsZero() bool {
	return r.TransformCount == 0 && r.ChunkCount == 0
}

// Validate rejects negative totals.
func (r Record) Validate() error {
	if r.TransformCount < 0 || r.ChunkCount < 0 {
		return fmt.Errorf("negative totals %d/%d: %w", r.TransformCount, r.ChunkCount, ErrMalformed)
	}
	return nil
}

// Encode serializes r in the persisted wire format.
func Encode(r Record) ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal cache record: %w", err)
	}
	return data, nil
}

// wireRecord distinguishes a missing field from an explicit zero.
type wireRecord struct {
	TransformCount *int `json:"cacheTransformCount"`
	ChunkCount     *int `json:"cacheChunkCount"`
}

// Decode parses data. Both fields must be present and non-negative.
func Decode(data []byte) (Record, error) {
	var w wireRecord
	if err := json.Unmarshal(data, &w); err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if w.TransformCount == nil || w.ChunkCount == nil {
		return Record{}, fmt.Errorf("missing field: %w", ErrMalformed)
	}
	r := Record{TransformCount: *w.TransformCount, ChunkCount: *w.ChunkCount}
	if err := r.Validate(); err != nil {
		return Record{}, err
	}
	return r, nil
}
