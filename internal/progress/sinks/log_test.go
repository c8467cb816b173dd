package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/build-progress/internal/progress"
)

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))

	id := progress.UUIDToBytes(uuid.New())
	batch := []progress.Event{
		{BuildID: id, TS: time.Now(), Stage: progress.StageBuildStart, Mode: "cold"},
		{BuildID: id, TS: time.Now(), Stage: progress.StageTransform, ModuleID: "src/a.ts", Percent: 0.05},
		{BuildID: id, TS: time.Now(), Stage: progress.StageBuildError, Note: "boom"},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))
	require.NoError(t, sink.Close(context.Background()))

	entries := logs.All()
	require.Len(t, entries, 3)
	require.Equal(t, zapcore.InfoLevel, entries[0].Level)
	require.Equal(t, zapcore.DebugLevel, entries[1].Level)
	require.Equal(t, zapcore.WarnLevel, entries[2].Level)
	require.Equal(t, "src/a.ts", entries[1].ContextMap()["module"])
	require.Equal(t, uuid.UUID(id).String(), entries[0].ContextMap()["build_id"])
}

func TestLogSinkSkipsDisabledLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewLogSink(zap.New(core))
	id := progress.UUIDToBytes(uuid.New())
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{BuildID: id, TS: time.Now(), Stage: progress.StageChunk},
	}))
	require.Zero(t, logs.Len())
}
