package progress

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls buffering and batching for the Hub.
type Config struct {
	// BufferSize is the capacity of the event queue (default 1024).
	BufferSize int
	// MaxBatchEvents flushes once this many events queue (default 64).
	MaxBatchEvents int
	// MaxBatchWait flushes a partial batch after this long (default 200ms).
	MaxBatchWait time.Duration
	// SinkTimeout bounds each Consume call (default 5s).
	SinkTimeout time.Duration
	Logger      *zap.Logger
}

const (
	defaultBufferSize     = 1024
	defaultMaxBatchEvents = 64
	defaultMaxBatchWait   = 200 * time.Millisecond
	defaultSinkTimeout    = 5 * time.Second
	dropLogInterval       = 5 * time.Second
)

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = defaultBufferSize
	}
	if c.MaxBatchEvents <= 0 {
		c.MaxBatchEvents = defaultMaxBatchEvents
	}
	if c.MaxBatchWait <= 0 {
		c.MaxBatchWait = defaultMaxBatchWait
	}
	if c.SinkTimeout <= 0 {
		c.SinkTimeout = defaultSinkTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	return c
}

// Stats counts what the hub has seen since it started.
type Stats struct {
	Emitted int64
	Dropped int64
}

// Hub batches events and fans them out to sinks from one goroutine. Emit is
// safe for concurrent use and never blocks; a nil *Hub ignores every call.
type Hub struct {
	cfg   Config
	sinks []Sink
	queue chan Event
	// stop carries the Close context to the run loop exactly once.
	stop chan context.Context
	done chan struct{}

	emitted  atomic.Int64
	dropped  atomic.Int64
	pending  atomic.Int64
	dropWarn rate.Sometimes
	closed   atomic.Bool
	once     sync.Once
}

// NewHub starts a Hub that delivers to sinks.
func NewHub(cfg Config, sinks ...Sink) *Hub {
	cfg = cfg.withDefaults()
	h := &Hub{
		cfg:      cfg,
		sinks:    append([]Sink(nil), sinks...),
		queue:    make(chan Event, cfg.BufferSize),
		stop:     make(chan context.Context, 1),
		done:     make(chan struct{}),
		dropWarn: rate.Sometimes{Interval: dropLogInterval},
	}
	go h.run()
	return h
}

// Emit queues evt. Invalid events are discarded; when the queue is full the
// event is dropped and a throttled warning is logged.
func (h *Hub) Emit(evt Event) {
	if h == nil || h.closed.Load() {
		return
	}
	if err := evt.Validate(); err != nil {
		h.cfg.Logger.Debug("discarding invalid progress event", zap.Error(err))
		return
	}
	select {
	case h.queue <- evt:
		h.emitted.Add(1)
	default:
		h.dropped.Add(1)
		h.pending.Add(1)
		h.dropWarn.Do(func() {
			h.cfg.Logger.Warn("progress events dropped, queue full",
				zap.Int64("dropped", h.pending.Swap(0)),
				zap.Int("buffer_size", h.cfg.BufferSize),
			)
		})
	}
}

// Stats reports emitted and dropped counts.
func (h *Hub) Stats() Stats {
	if h == nil {
		return Stats{}
	}
	return Stats{Emitted: h.emitted.Load(), Dropped: h.dropped.Load()}
}

// Close stops intake, flushes whatever is queued, closes the sinks with ctx
// and waits for delivery to finish. Calling it again only waits.
func (h *Hub) Close(ctx context.Context) error {
	if h == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	h.once.Do(func() {
		h.closed.Store(true)
		h.stop <- ctx
	})
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("progress hub close wait: %w", ctx.Err())
	}
}

func (h *Hub) run() {
	defer close(h.done)
	pending := make([]Event, 0, h.cfg.MaxBatchEvents)

	// wait is nil while nothing is pending, which disables that case.
	var timer *time.Timer
	var wait <-chan time.Time
	deliver := func() {
		if timer != nil {
			timer.Stop()
			timer, wait = nil, nil
		}
		h.deliver(pending)
		pending = pending[:0]
	}

	for {
		select {
		case evt := <-h.queue:
			pending = append(pending, evt)
			switch {
			case len(pending) >= h.cfg.MaxBatchEvents:
				deliver()
			case timer == nil:
				timer = time.NewTimer(h.cfg.MaxBatchWait)
				wait = timer.C
			}
		case <-wait:
			timer, wait = nil, nil
			deliver()
		case ctx := <-h.stop:
			for n := len(h.queue); n > 0; n-- {
				pending = append(pending, <-h.queue)
			}
			deliver()
			h.closeSinks(ctx)
			return
		}
	}
}

func (h *Hub) deliver(batch []Event) {
	if len(batch) == 0 {
		return
	}
	snapshot := append([]Event(nil), batch...)
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.cfg.SinkTimeout)
		err := sink.Consume(ctx, snapshot)
		cancel()
		if err != nil {
			h.cfg.Logger.Warn("progress sink failed", zap.Int("events", len(snapshot)), zap.Error(err))
		}
	}
}

func (h *Hub) closeSinks(ctx context.Context) {
	for _, sink := range h.sinks {
		if sink == nil {
			continue
		}
		if err := sink.Close(ctx); err != nil {
			h.cfg.Logger.Warn("progress sink close failed", zap.Error(err))
		}
	}
}
