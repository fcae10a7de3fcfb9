package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/community-finder/internal/progress"
)

// LogSink writes progress events as structured logs. Batch milestones log at
// Info, task events at Debug so they only show with verbose logging.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("batch_id", evt.BatchID.String()),
			zap.String("stage", string(evt.Stage)),
		}
		switch evt.Stage {
		case progress.StageBatchStart:
			s.logger.Info("scan started", append(fields,
				zap.Int("hits", evt.Hits),
				zap.Int("misses", evt.Total),
			)...)
		case progress.StageTaskStart:
			s.logger.Debug("scraping", append(fields, zap.String("identifier", evt.Identifier))...)
		case progress.StageTaskDone:
			s.logger.Debug("scraped", append(fields,
				zap.String("identifier", evt.Identifier),
				zap.String("state", evt.State),
				zap.Int("links", evt.Links),
				zap.Int("done", evt.Done),
				zap.Int("total", evt.Total),
				zap.Duration("dur", evt.Dur),
				zap.String("note", evt.Note),
			)...)
		case progress.StageBatchDone:
			s.logger.Info("scan finished", append(fields,
				zap.Int("scraped", evt.Done),
				zap.Int("cached", evt.Links),
				zap.Duration("dur", evt.Dur),
			)...)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
