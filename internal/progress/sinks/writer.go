package sinks

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/JakeFAU/community-finder/internal/progress"
)

// WriterSink prints one short line per finished task, for terminals.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink returns a sink that writes to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Consume prints task completions as "[done/total] identifier: result".
func (s *WriterSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, evt := range batch {
		var line string
		switch evt.Stage {
		case progress.StageBatchStart:
			line = fmt.Sprintf("checking %d profiles (%d cached)", evt.Total, evt.Hits)
		case progress.StageTaskDone:
			line = fmt.Sprintf("[%d/%d] %s: %s", evt.Done, evt.Total, evt.Identifier, describe(evt))
		default:
			continue
		}
		if _, err := fmt.Fprintln(s.w, line); err != nil {
			return fmt.Errorf("write progress: %w", err)
		}
	}
	return nil
}

func describe(evt progress.Event) string {
	out := fmt.Sprintf("%d links", evt.Links)
	if evt.Links == 1 {
		out = "1 link"
	}
	if evt.Note != "" {
		out += " (" + evt.Note + ")"
	}
	return out
}

// Close implements the Sink interface; it performs no action.
func (s *WriterSink) Close(context.Context) error {
	return nil
}
