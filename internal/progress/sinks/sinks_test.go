package sinks

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/JakeFAU/community-finder/internal/progress"
)

func events() []progress.Event {
	id := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	ts := time.Unix(0, 0)
	return []progress.Event{
		{BatchID: id, TS: ts, Stage: progress.StageBatchStart, Total: 2, Hits: 1},
		{BatchID: id, TS: ts, Stage: progress.StageTaskStart, Identifier: "a"},
		{BatchID: id, TS: ts, Stage: progress.StageTaskDone, Identifier: "a", State: "completed", Links: 1, Done: 1, Total: 2},
		{BatchID: id, TS: ts, Stage: progress.StageTaskDone, Identifier: "b", State: "completed", Done: 2, Total: 2,
			Note: "task timed out"},
		{BatchID: id, TS: ts, Stage: progress.StageBatchDone, Done: 2, Links: 2},
	}
}

func TestWriterSink(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	sink := NewWriterSink(&buf)
	require.NoError(t, sink.Consume(context.Background(), events()))
	require.NoError(t, sink.Close(context.Background()))

	assert.Equal(t,
		"checking 2 profiles (1 cached)\n"+
			"[1/2] a: 1 link\n"+
			"[2/2] b: 0 links (task timed out)\n",
		buf.String())
}

func TestLogSinkLevels(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewLogSink(zap.New(core))
	require.NoError(t, sink.Consume(context.Background(), events()))

	require.Equal(t, 5, logs.Len())
	assert.Equal(t, 2, logs.FilterLevelExact(zapcore.InfoLevel).Len())
	assert.Equal(t, 3, logs.FilterLevelExact(zapcore.DebugLevel).Len())

	done := logs.FilterMessage("scraped").FilterField(zap.String("identifier", "b")).All()
	require.Len(t, done, 1)
	assert.Equal(t, "task timed out", done[0].ContextMap()["note"])
}

func TestNewLogSinkNilLogger(t *testing.T) {
	t.Parallel()

	sink := NewLogSink(nil)
	require.NoError(t, sink.Consume(context.Background(), events()))
	require.NoError(t, sink.Close(context.Background()))
}
