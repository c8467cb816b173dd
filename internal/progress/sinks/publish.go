package sinks

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/build-progress/internal/progress"
	"github.com/JakeFAU/build-progress/internal/publisher"
)

// BuildSummary is the notification published when a build finishes.
type BuildSummary struct {
	BuildID    string    `json:"build_id"`
	Result     string    `json:"result"`
	Mode       string    `json:"mode"`
	Percent    float64   `json:"percent"`
	Transforms int       `json:"transforms"`
	Chunks     int       `json:"chunks"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	FinishedAt time.Time `json:"finished_at"`
}

// SummaryFromEvent converts a terminal event to a BuildSummary.
func SummaryFromEvent(evt progress.Event) BuildSummary {
	sum := BuildSummary{
		BuildID:    evt.BuildUUID().String(),
		Result:     "success",
		Mode:       evt.Mode,
		Percent:    evt.Percent,
		Transforms: evt.Transforms,
		Chunks:     evt.Chunks,
		DurationMS: evt.Dur.Milliseconds(),
		FinishedAt: evt.TS.UTC(),
	}
	if evt.Stage == progress.StageBuildError {
		sum.Result = "error"
		sum.Error = evt.Note
	}
	return sum
}

// PublisherSink publishes a BuildSummary for each finished build. Other
// stages are ignored.
type PublisherSink struct {
	pub    publisher.Publisher
	topic  string
	logger *zap.Logger
}

// NewPublisherSink sends summaries to topic through pub.
func NewPublisherSink(pub publisher.Publisher, topic string, logger *zap.Logger) *PublisherSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PublisherSink{pub: pub, topic: topic, logger: logger}
}

// Consume publishes one summary per terminal event. The first failure is
// returned after every event has been attempted.
func (s *PublisherSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.pub == nil {
		return nil
	}
	var firstErr error
	for _, evt := range batch {
		if !evt.Stage.Terminal() {
			continue
		}
		sum := SummaryFromEvent(evt)
		id, err := s.pub.Publish(ctx, s.topic, sum)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("publish build %s summary: %w", sum.BuildID, err)
			}
			continue
		}
		s.logger.Debug("build summary published",
			zap.String("build_id", sum.BuildID),
			zap.String("topic", s.topic),
			zap.String("message_id", id),
		)
	}
	return firstErr
}

// Close implements progress.Sink; it performs no action.
func (s *PublisherSink) Close(context.Context) error {
	return nil
}
