package progress

import "context"

// Sink consumes batches of progress events. Implementations must honor ctx
// deadlines; the hub calls them from a single goroutine.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it, and a nil *Hub is a
// valid no-op Emitter.
type Emitter interface {
	Emit(evt Event)
}
