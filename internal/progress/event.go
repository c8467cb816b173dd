package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the lifecycle milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageBuildStart Stage = "BUILD_START"
	StageTransform  Stage = "TRANSFORM"
	StageChunk      Stage = "CHUNK"
	StageBuildDone  Stage = "BUILD_DONE"
	StageBuildError Stage = "BUILD_ERROR"
)

// Terminal reports whether the stage ends a build.
func (s Stage) Terminal() bool {
	return s == StageBuildDone || s == StageBuildError
}

// Event captures one update of a build's progress estimate.
type Event struct {
	// BuildID identifies one build invocation in 16-byte UUID form.
	BuildID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// Mode is the estimation strategy ("cold" or "warm").
	Mode string
	// ModuleID is set on transform events.
	ModuleID string
	// Percent is the displayed estimate after the event, in [0,1].
	Percent float64
	// Transforms and Chunks are the running event totals.
	Transforms int
	Chunks     int
	// Dur is the elapsed build time on terminal events.
	Dur time.Duration
	// Note carries low-volume context such as the build error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.BuildID == [16]byte{} {
		return errors.New("build id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageBuildStart, StageChunk, StageBuildDone, StageBuildError:
	case StageTransform:
		if e.ModuleID == "" {
			return errors.New("transform requires module id")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Percent < 0 || e.Percent > 1 {
		return fmt.Errorf("percent %v out of range", e.Percent)
	}
	if e.Transforms < 0 || e.Chunks < 0 {
		return errors.New("counters must be >= 0")
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// BuildUUID converts the binary build ID to uuid.UUID.
func (e Event) BuildUUID() uuid.UUID {
	return uuid.UUID(e.BuildID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}
