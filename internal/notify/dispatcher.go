// Package notify runs post-commit side effects (bill sharing, reminders)
// outside the request path and delivers outbound messages.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"billdesk/internal/observability"
)

type Job func(ctx context.Context) error

// Dispatcher runs jobs in the background with bounded concurrency. Jobs are
// attempted once; failures are logged and counted, never returned.
type Dispatcher struct {
	logger  *slog.Logger
	metrics *observability.Metrics
	sem     *semaphore.Weighted
	timeout time.Duration
	wg      sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

func NewDispatcher(logger *slog.Logger, metrics *observability.Metrics, workers int, timeout time.Duration) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 2
	}
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Dispatcher{
		logger:  logger,
		metrics: metrics,
		sem:     semaphore.NewWeighted(int64(workers)),
		timeout: timeout,
	}
}

// Submit schedules job and returns immediately. When every worker slot is
// busy the job is dropped.
func (d *Dispatcher) Submit(name string, job Job) {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Warn("side effect dropped after shutdown", slog.String("job", name))
		return
	}
	if !d.sem.TryAcquire(1) {
		d.mu.Unlock()
		d.logger.Warn("side effect dropped, workers busy", slog.String("job", name))
		d.metrics.ObserveSideEffect(name, errDropped)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	id := uuid.NewString()
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		d.run(id, name, job)
	}()
}

func (d *Dispatcher) run(id string, name string, job Job) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	logger := d.logger.With(slog.String("job", name), slog.String("job_id", id))
	defer func() {
		if r := recover(); r != nil {
			logger.Error("side effect panicked", slog.Any("panic", r))
			d.metrics.ObserveSideEffect(name, errPanicked)
		}
	}()

	err := job(ctx)
	d.metrics.ObserveSideEffect(name, err)
	if err != nil {
		logger.Warn("side effect failed", slog.Any("error", err))
		return
	}
	logger.Debug("side effect done")
}

// Close stops accepting jobs and waits for running ones until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type dispatchError string

func (e dispatchError) Error() string { return string(e) }

const (
	errDropped  dispatchError = "dropped"
	errPanicked dispatchError = "panicked"
)
