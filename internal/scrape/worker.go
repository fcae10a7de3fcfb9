package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/community-finder/internal/invite"
	"github.com/JakeFAU/community-finder/internal/metrics"
	"github.com/JakeFAU/community-finder/internal/policy/ratelimit"
	"github.com/JakeFAU/community-finder/internal/session"
)

const scrollScript = `window.scrollTo(0, document.body.scrollHeight);`

// Worker runs single tasks. It holds no per-task state and is safe for
// concurrent use.
type Worker struct {
	provider session.Provider
	limiter  *ratelimit.Limiter
	cfg      Config
	logger   *zap.Logger
}

// NewWorker constructs a Worker. A nil provider degrades every task to an
// empty result.
func NewWorker(provider session.Provider, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		provider: provider,
		limiter:  ratelimit.New(ratelimit.Config{QPS: cfg.NavigationQPS}),
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes task under its own deadline and always returns exactly one
// terminal Result. Cancelling ctx abandons the task.
func (w *Worker) Run(ctx context.Context, task Task) Result {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return w.finish(abandoned(task, err), start)
	}

	taskCtx, cancel := context.WithTimeout(ctx, w.cfg.TaskTimeout)
	defer cancel()

	out := make(chan Result, 1)
	go w.guarded(taskCtx, task, out)

	var res Result
	select {
	case res = <-out:
		if !res.clean() {
			switch {
			case ctx.Err() != nil:
				res = abandoned(task, ctx.Err())
			case taskCtx.Err() != nil:
				res = completedEmpty(task, ErrTaskTimeout)
			}
		}
	case <-taskCtx.Done():
		if err := ctx.Err(); err != nil {
			res = abandoned(task, err)
		} else {
			res = completedEmpty(task, ErrTaskTimeout)
		}
		w.awaitRelease(task, out)
	}
	return w.finish(res, start)
}

func (w *Worker) finish(res Result, start time.Time) Result {
	res.Duration = time.Since(start)
	metrics.ObserveTask(res.State.String(), res.Duration)
	w.logger.Debug("task finished",
		zap.String("identifier", res.Identifier),
		zap.Stringer("state", res.State),
		zap.Int("links", len(res.Links)),
		zap.String("reason", res.Reason()),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// guarded runs the task body, turning a panic into an empty result. The
// session is closed by execute's deferred release before out is written.
func (w *Worker) guarded(ctx context.Context, task Task, out chan<- Result) {
	var res Result
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("task panicked", zap.String("identifier", task.Identifier), zap.Any("panic", r))
			res = completedEmpty(task, fmt.Errorf("%w: panic: %v", ErrExtraction, r))
		}
		out <- res
	}()
	res = w.execute(ctx, task)
}

// awaitRelease holds the pool slot until the abandoned task body has closed
// its session, or the grace period runs out.
func (w *Worker) awaitRelease(task Task, out <-chan Result) {
	if w.cfg.ReleaseGrace <= 0 {
		return
	}
	timer := time.NewTimer(w.cfg.ReleaseGrace)
	defer timer.Stop()
	select {
	case <-out:
	case <-timer.C:
		w.logger.Warn("session not released within grace period",
			zap.String("identifier", task.Identifier),
			zap.Duration("grace", w.cfg.ReleaseGrace),
		)
	}
}

func (w *Worker) execute(ctx context.Context, task Task) Result {
	log := w.logger.With(zap.String("identifier", task.Identifier))
	log.Debug("task state", zap.Stringer("state", StateAcquiring))

	if w.provider == nil {
		log.Debug("task state", zap.Stringer("state", StateAcquireFailed))
		return completedEmpty(task, fmt.Errorf("%w: no session provider", ErrSessionCreate))
	}
	sess, err := w.provider.Create(ctx)
	if err != nil {
		log.Debug("task state", zap.Stringer("state", StateAcquireFailed), zap.Error(err))
		return completedEmpty(task, fmt.Errorf("%w: %w", ErrSessionCreate, err))
	}
	metrics.IncActiveSessions()
	defer w.release(sess, log)
	log.Debug("task state", zap.Stringer("state", StateAcquired))

	log.Debug("task state", zap.Stringer("state", StateExtracting))
	links, warn, err := w.extract(ctx, sess, task, log)
	if err != nil {
		return Result{Identifier: task.Identifier, Links: []string{}, State: StateFailed, Err: err}
	}
	log.Debug("found links", zap.Int("count", len(links)))
	return Result{Identifier: task.Identifier, Links: links, State: StateCompleted, Err: warn}
}

func (w *Worker) release(sess session.Session, log *zap.Logger) {
	if err := sess.Close(); err != nil {
		log.Debug("session close failed", zap.Error(err))
	}
	metrics.DecActiveSessions()
}

// extract navigates and collects candidates. warn carries a non-fatal
// degradation such as a page load timeout; err ends the task as failed.
func (w *Worker) extract(
	ctx context.Context,
	sess session.Session,
	task Task,
	log *zap.Logger,
) (links []string, warn error, err error) {
	if err := w.limiter.Wait(ctx, task.URL); err != nil {
		return nil, nil, fmt.Errorf("navigate %s: %w", task.URL, err)
	}

	log.Debug("loading about page", zap.String("url", task.URL))
	navCtx, cancel := context.WithTimeout(ctx, w.cfg.pageLoadTimeout())
	navErr := sess.Navigate(navCtx, task.URL)
	cancel()
	switch {
	case navErr == nil:
	case errors.Is(navErr, context.DeadlineExceeded) && ctx.Err() == nil:
		log.Debug("page load timed out, extracting anyway")
		warn = ErrNavigationTimeout
	default:
		return nil, nil, fmt.Errorf("navigate %s: %w", task.URL, navErr)
	}

	if err := sess.Eval(ctx, scrollScript); err != nil {
		log.Debug("scroll failed", zap.Error(err))
	}

	content, contentOK := w.revealWait(ctx, sess, log)
	hrefs, anchorErr := sess.Anchors(ctx)
	if anchorErr != nil {
		log.Debug("anchor enumeration failed", zap.Error(anchorErr))
	}
	if !contentOK && anchorErr != nil {
		return nil, nil, fmt.Errorf("%w: no content or anchors: %w", ErrExtraction, anchorErr)
	}
	return invite.Extract(content, hrefs), warn, nil
}

// revealWait polls the rendered content until an invite marker shows up or
// the reveal window closes, and returns the last content read. ok is false
// when no read ever succeeded.
func (w *Worker) revealWait(ctx context.Context, sess session.Session, log *zap.Logger) (content string, ok bool) {
	read := func() bool {
		c, err := sess.Content(ctx)
		if err != nil {
			log.Debug("content read failed", zap.Error(err))
			return false
		}
		content, ok = c, true
		return invite.ContainsMarker(c)
	}

	if read() {
		log.Debug("marker detected")
		return content, ok
	}
	if w.cfg.RevealWait <= 0 {
		return content, ok
	}

	window := time.NewTimer(w.cfg.RevealWait)
	defer window.Stop()
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return content, ok
		case <-window.C:
			log.Debug("reveal wait elapsed without marker")
			return content, ok
		case <-ticker.C:
			if read() {
				log.Debug("marker detected")
				return content, ok
			}
		}
	}
}
