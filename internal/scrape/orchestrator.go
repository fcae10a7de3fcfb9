package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/JakeFAU/community-finder/internal/cache"
	"github.com/JakeFAU/community-finder/internal/metrics"
	"github.com/JakeFAU/community-finder/internal/progress"
	"github.com/JakeFAU/community-finder/internal/session"
)

const persistTimeout = 10 * time.Second

// Orchestrator serves batches: cache hits are answered directly, misses go
// through a fixed-width pool of workers and are written back to the cache.
// Scan must not be called concurrently; the orchestrator owns the cache.
type Orchestrator struct {
	cache   *cache.Store
	worker  *Worker
	cfg     Config
	logger  *zap.Logger
	emitter progress.Emitter
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger used by the orchestrator and its workers.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithEmitter publishes batch and task milestones to e.
func WithEmitter(e progress.Emitter) Option {
	return func(o *Orchestrator) { o.emitter = e }
}

// NewOrchestrator validates cfg and wires the worker pool. provider may be
// nil, in which case every miss resolves to an empty result.
func NewOrchestrator(store *cache.Store, provider session.Provider, cfg Config, opts ...Option) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("cache store is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scrape config: %w", err)
	}
	o := &Orchestrator{cache: store, cfg: cfg, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(o)
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	o.worker = NewWorker(provider, cfg, o.logger)
	return o, nil
}

// Batch is the outcome of one Scan.
type Batch struct {
	ID string
	// Links holds every requested identifier, spelled as the caller gave it.
	Links map[string][]string
	// Results holds the fresh task outcomes in completion order.
	Results []Result
	Hits    int
}

// Scan returns candidate links for every identifier in ids. When ctx is
// cancelled mid-batch the map is still complete and the returned error
// wraps the context error.
func (o *Orchestrator) Scan(ctx context.Context, ids []string) (map[string][]string, error) {
	batch, err := o.ScanBatch(ctx, ids)
	return batch.Links, err
}

// ScanBatch is Scan with per-task detail.
func (o *Orchestrator) ScanBatch(ctx context.Context, ids []string) (Batch, error) {
	started := time.Now()
	batchID, err := progress.NewBatchID()
	if err != nil {
		return Batch{}, err
	}
	batch := Batch{ID: batchID.String(), Links: make(map[string][]string, len(ids))}
	log := o.logger.With(zap.String("batch_id", batch.ID))

	// aliases maps a lowercase key to every spelling the caller used.
	aliases := make(map[string][]string)
	var misses []Task
	for _, id := range ids {
		key := strings.ToLower(id)
		if links, ok := o.cache.Get(key); ok {
			metrics.ObserveCacheLookup(true)
			batch.Links[id] = links
			batch.Hits++
			continue
		}
		if _, seen := aliases[key]; !seen {
			metrics.ObserveCacheLookup(false)
			misses = append(misses, Task{Identifier: key, URL: o.cfg.ProfileURL(key)})
		}
		aliases[key] = append(aliases[key], id)
	}

	log.Debug("cache partitioned", zap.Int("hits", batch.Hits), zap.Int("misses", len(misses)))
	if len(misses) == 0 {
		return batch, nil
	}

	o.emit(progress.Event{
		BatchID: batchID,
		Stage:   progress.StageBatchStart,
		Total:   len(misses),
		Hits:    batch.Hits,
	})
	results := o.dispatch(ctx, batchID, misses)
	batch.Results = results

	written := 0
	for _, res := range results {
		for _, id := range aliases[res.Identifier] {
			batch.Links[id] = append([]string{}, res.Links...)
		}
		if res.Cacheable() && o.cache.Set(res.Identifier, res.Links, o.cfg.CacheEmpty) {
			written++
		}
	}

	o.persist(ctx, log)
	o.emit(progress.Event{
		BatchID: batchID,
		Stage:   progress.StageBatchDone,
		Links:   written,
		Done:    len(results),
		Total:   len(misses),
		Hits:    batch.Hits,
		Dur:     time.Since(started),
	})

	log.Info("batch complete",
		zap.Int("requested", len(ids)),
		zap.Int("hits", batch.Hits),
		zap.Int("scraped", len(results)),
		zap.Int("cached", written),
	)
	if err := ctx.Err(); err != nil {
		return batch, fmt.Errorf("scan interrupted: %w", err)
	}
	return batch, nil
}

// dispatch runs one task per miss with at most Workers in flight and returns
// exactly one result per task in completion order.
func (o *Orchestrator) dispatch(ctx context.Context, batchID uuid.UUID, tasks []Task) []Result {
	out := make(chan Result, len(tasks))
	p := pool.New().WithMaxGoroutines(o.cfg.Workers)

	go func() {
		for _, task := range tasks {
			if err := ctx.Err(); err != nil {
				out <- abandoned(task, err)
				continue
			}
			p.Go(func() {
				defer func() {
					if r := recover(); r != nil {
						out <- completedEmpty(task, fmt.Errorf("%w: panic: %v", ErrExtraction, r))
					}
				}()
				if err := ctx.Err(); err != nil {
					out <- abandoned(task, err)
					return
				}
				o.emit(progress.Event{
					BatchID:    batchID,
					Stage:      progress.StageTaskStart,
					Identifier: task.Identifier,
					Total:      len(tasks),
				})
				out <- o.worker.Run(ctx, task)
			})
		}
		p.Wait()
	}()

	results := make([]Result, 0, len(tasks))
	for range tasks {
		res := <-out
		results = append(results, res)
		o.emit(progress.Event{
			BatchID:    batchID,
			Stage:      progress.StageTaskDone,
			Identifier: res.Identifier,
			State:      res.State.String(),
			Links:      len(res.Links),
			Done:       len(results),
			Total:      len(tasks),
			Dur:        res.Duration,
			Note:       res.Reason(),
		})
	}
	return results
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.emitter == nil {
		return
	}
	if evt.TS.IsZero() {
		evt.TS = time.Now()
	}
	o.emitter.Emit(evt)
}

// persist writes the cache once per batch. Failures are logged only; an
// interrupt does not stop completed results from being saved.
func (o *Orchestrator) persist(ctx context.Context, log *zap.Logger) {
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	if err := o.cache.Persist(saveCtx); err != nil {
		metrics.ObservePersistFailure()
		log.Warn("cache persist failed, continuing with in-memory cache", zap.Error(err))
	}
}
