// Package adapter maps bundler lifecycle hooks onto the tracker's entry
// points. Hooks arrive one at a time, either as newline-delimited JSON or
// through the HTTP receiver.
package adapter

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/JakeFAU/build-progress/internal/telemetry"
	"github.com/JakeFAU/build-progress/internal/tracker"
)

// Hook names understood by the adapter. Anything else is ignored.
const (
	HookConfig      = "config"
	HookTransform   = "transform"
	HookRenderChunk = "renderChunk"
	HookBuildEnd    = "buildEnd"
	HookCloseBundle = "closeBundle"
)

// Outcome describes what Apply did with a hook.
type Outcome string

// Possible outcomes.
const (
	OutcomeApplied Outcome = "applied"
	OutcomeIgnored Outcome = "ignored"
)

// ErrInvalidHook reports a hook that cannot be applied.
var ErrInvalidHook = errors.New("invalid hook")

// Hook is one lifecycle notification from the host.
type Hook struct {
	// Name is the host hook name, e.g. "transform".
	Name string `json:"hook"`
	// Command accompanies config hooks; only "build" enables tracking.
	Command string `json:"command,omitempty"`
	// ModuleID accompanies transform hooks.
	ModuleID string `json:"id,omitempty"`
	// Error accompanies buildEnd hooks when the build failed.
	Error string `json:"error,omitempty"`
}

// Validate reports whether h can be applied. Unknown hook names are valid;
// Apply ignores them.
func Validate(h Hook) error {
	if h.Name == HookTransform && h.ModuleID == "" {
		return fmt.Errorf("%w: transform without module id", ErrInvalidHook)
	}
	return nil
}

// Lifecycle is the tracker surface the adapter drives.
type Lifecycle interface {
	OnConfigure(ctx context.Context, isBuildCommand bool) error
	OnTransform(moduleID string)
	OnChunkRendered()
	OnBuildClose(ctx context.Context, buildErr error) error
}

// Observer is notified of each hook and its outcome.
type Observer interface {
	ObserveHook(name, outcome string)
}

// Adapter holds the error recorded by buildEnd until closeBundle.
type Adapter struct {
	mu       sync.Mutex
	target   Lifecycle
	observer Observer
	logger   *zap.Logger
	buildErr error
}

// New creates an Adapter for target. observer may be nil.
func New(target Lifecycle, observer Observer, logger *zap.Logger) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{target: target, observer: observer, logger: logger}
}

// Apply forwards one hook. It returns the build error when a closeBundle
// hook closes a failed build, and ErrInvalidHook for malformed hooks.
func (a *Adapter) Apply(ctx context.Context, h Hook) (Outcome, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ctx, span := telemetry.Tracer().Start(ctx, "hook."+hookLabel(h.Name))
	defer span.End()

	outcome, err := a.apply(ctx, h)
	label := string(outcome)
	if errors.Is(err, ErrInvalidHook) {
		label = "invalid"
	}
	span.SetAttributes(attribute.String("hook.outcome", label))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if a.observer != nil {
		a.observer.ObserveHook(hookLabel(h.Name), label)
	}
	return outcome, err
}

func (a *Adapter) apply(ctx context.Context, h Hook) (Outcome, error) {
	switch h.Name {
	case HookConfig:
		a.buildErr = nil
		if err := a.target.OnConfigure(ctx, h.Command == "build"); err != nil {
			a.logger.Warn("configure reported a problem", zap.Error(err))
		}
		return OutcomeApplied, nil
	case HookTransform:
		if err := Validate(h); err != nil {
			return OutcomeIgnored, err
		}
		a.target.OnTransform(h.ModuleID)
		return OutcomeApplied, nil
	case HookRenderChunk:
		a.target.OnChunkRendered()
		return OutcomeApplied, nil
	case HookBuildEnd:
		if msg := strings.TrimSpace(h.Error); msg != "" {
			a.buildErr = fmt.Errorf("%w: %s", tracker.ErrBuildFailed, msg)
		}
		return OutcomeApplied, nil
	case HookCloseBundle:
		buildErr := a.buildErr
		a.buildErr = nil
		return OutcomeApplied, a.target.OnBuildClose(ctx, buildErr)
	default:
		return OutcomeIgnored, nil
	}
}

// Consume reads newline-delimited JSON hooks from r until EOF or ctx is
// done. Blank lines are skipped and malformed lines are logged and skipped.
// The error of a failed build closed during the stream is returned after the
// stream ends.
func (a *Adapter) Consume(ctx context.Context, r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	var buildErr error
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("consume hooks: %w", err)
		}
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var h Hook
		if err := json.Unmarshal([]byte(raw), &h); err != nil {
			a.logger.Warn("skipping malformed hook", zap.Int("line", line), zap.Error(err))
			continue
		}
		_, err := a.Apply(ctx, h)
		switch {
		case err == nil:
		case errors.Is(err, ErrInvalidHook):
			a.logger.Warn("skipping invalid hook", zap.Int("line", line), zap.Error(err))
		default:
			buildErr = err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read hooks: %w", err)
	}
	return buildErr
}

func hookLabel(name string) string {
	switch name {
	case HookConfig, HookTransform, HookRenderChunk, HookBuildEnd, HookCloseBundle:
		return name
	default:
		return "other"
	}
}
