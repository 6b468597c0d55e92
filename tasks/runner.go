package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"robofleet/config"
	"robofleet/metrics"
	"robofleet/store"
)

// ErrRetry tells the runner the task fired too early and should run again
// after the configured backoff.
var ErrRetry = errors.New("task not ready")

// Handler executes one claimed task. Returning an error wrapping
// store.ErrNotFound marks the task done; ErrRetry re-queues it; any other
// error fails it.
type Handler interface {
	RunTask(ctx context.Context, t *store.DeferredTask) error
}

// Runner polls the deferred_tasks table and executes due tasks on a bounded
// worker pool. Delivery is at-least-once: a task whose worker dies is
// reclaimed once its lease expires.
type Runner struct {
	db      *store.DB
	handler Handler
	cfg     config.TasksConfig
	log     *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

func New(db *store.DB, handler Handler, cfg config.TasksConfig, logger *zap.Logger, m *metrics.Metrics) *Runner {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.PollSpec == "" {
		cfg.PollSpec = "@every 1s"
	}
	return &Runner{
		db:      db,
		handler: handler,
		cfg:     cfg,
		log:     logger.Named("tasks"),
		metrics: m,
		now:     time.Now,
	}
}

// SetClock replaces the wall clock, for tests that simulate time.
func (r *Runner) SetClock(now func() time.Time) {
	r.now = now
}

// ScheduleAt queues a task outside of any schedule transaction.
func (r *Runner) ScheduleAt(ctx context.Context, eta time.Time, scheduleID, revision int64, kind string) (*store.DeferredTask, error) {
	t := &store.DeferredTask{ScheduleID: scheduleID, Kind: kind, Revision: revision, ETA: eta.Unix()}
	if err := r.db.EnqueueTask(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// Start begins polling on the configured cron spec and purging old tasks hourly.
func (r *Runner) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return nil
	}
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(r.cfg.PollSpec, func() {
		if _, err := r.RunOnce(context.Background()); err != nil {
			r.log.Error("tasks: poll failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("tasks: poll spec %q: %w", r.cfg.PollSpec, err)
	}
	if r.cfg.RetainFor > 0 {
		if _, err := c.AddFunc("@hourly", r.purge); err != nil {
			return fmt.Errorf("tasks: purge spec: %w", err)
		}
	}
	c.Start()
	r.cron = c
	r.log.Info("tasks: runner started", zap.String("poll", r.cfg.PollSpec), zap.Int("workers", r.cfg.Workers))
	return nil
}

// Stop halts polling and waits for running batches to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	r.log.Info("tasks: runner stopped")
}

// RunOnce claims every due task and runs the batch to completion. It returns
// the number of tasks executed.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	now := r.now()
	claimed, err := r.db.ClaimDueTasks(ctx, now, r.cfg.Lease, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(claimed) == 0 {
		return 0, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.Workers)
	for _, t := range claimed {
		t := t
		g.Go(func() error {
			r.execute(gctx, t)
			return nil
		})
	}
	return len(claimed), g.Wait()
}

func (r *Runner) execute(ctx context.Context, t *store.DeferredTask) {
	log := r.log.With(zap.Int64("task_id", t.ID), zap.Int64("schedule_id", t.ScheduleID), zap.String("kind", t.Kind))
	err := r.handler.RunTask(ctx, t)
	now := r.now()

	var outcome string
	switch {
	case err == nil:
		outcome = "done"
		r.record(log, r.db.CompleteTask(ctx, t.ID, now))
	case errors.Is(err, store.ErrNotFound):
		outcome = "missing"
		log.Debug("tasks: schedule gone, nothing to do")
		r.record(log, r.db.CompleteTask(ctx, t.ID, now))
	case errors.Is(err, ErrRetry) && t.Attempts < r.cfg.MaxAttempts:
		outcome = "retry"
		log.Info("tasks: not ready, retrying", zap.Int("attempt", t.Attempts), zap.Error(err))
		r.record(log, r.db.RetryTask(ctx, t.ID, now.Add(r.cfg.RetryBackoff), err.Error()))
	default:
		outcome = "failed"
		log.Error("tasks: task failed", zap.Int("attempt", t.Attempts), zap.Error(err))
		r.record(log, r.db.FailTask(ctx, t.ID, now, err.Error()))
	}
	r.metrics.TaskExecuted(t.Kind, outcome)
}

func (r *Runner) record(log *zap.Logger, err error) {
	if err != nil {
		log.Error("tasks: record outcome", zap.Error(err))
	}
}

func (r *Runner) purge() {
	cutoff := r.now().Add(-r.cfg.RetainFor)
	n, err := r.db.PurgeFinishedTasks(context.Background(), cutoff)
	if err != nil {
		r.log.Error("tasks: purge failed", zap.Error(err))
		return
	}
	if n > 0 {
		r.log.Info("tasks: purged finished tasks", zap.Int64("count", n))
	}
	if n, err := r.db.PurgeSentOutbox(context.Background(), cutoff); err == nil && n > 0 {
		r.log.Info("tasks: purged sent outbox messages", zap.Int64("count", n))
	}
}
