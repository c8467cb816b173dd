package sinks

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/build-progress/internal/progress"
)

// LogSink writes one structured log entry per event. Per-module and per-chunk
// events are logged at debug level; lifecycle events at info, build errors at
// warn.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		level := levelFor(evt.Stage)
		if ce := s.logger.Check(level, "progress event"); ce != nil {
			ce.Write(
				zap.String("build_id", evt.BuildUUID().String()),
				zap.String("stage", string(evt.Stage)),
				zap.String("mode", evt.Mode),
				zap.String("module", evt.ModuleID),
				zap.Float64("percent", evt.Percent),
				zap.Int("transforms", evt.Transforms),
				zap.Int("chunks", evt.Chunks),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)
		}
	}
	return nil
}

// Close implements progress.Sink; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}

func levelFor(stage progress.Stage) zapcore.Level {
	switch stage {
	case progress.StageTransform, progress.StageChunk:
		return zapcore.DebugLevel
	case progress.StageBuildError:
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}
