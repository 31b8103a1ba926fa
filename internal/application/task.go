package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrStopTask is returned by a TaskFunc to stop its task from rescheduling.
var ErrStopTask = errors.New("task stopped")

type TaskFunc func(ctx context.Context) error

// Task runs a function on a fixed interval with at most one run in flight.
// A tick that finds the previous run still outstanding is skipped.
type Task struct {
	name     string
	interval time.Duration
	fn       TaskFunc
	logger   *slog.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
	runs     sync.WaitGroup
}

func NewTask(name string, interval time.Duration, fn TaskFunc, logger *slog.Logger) *Task {
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger.With("task", name),
		done:     make(chan struct{}),
	}
}

// Start begins ticking. A task can be started once.
func (t *Task) Start(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	go t.loop(ctx, cancel)
}

// Done is closed once the task stops ticking, whether stopped or self-cancelled.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Stop cancels the task and waits for the run in flight, if any.
func (t *Task) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-t.done
	t.runs.Wait()
}

func (t *Task) loop(ctx context.Context, cancel context.CancelFunc) {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick(ctx, cancel)
		}
	}
}

func (t *Task) tick(ctx context.Context, cancel context.CancelFunc) {
	if !t.inFlight.CompareAndSwap(false, true) {
		t.logger.Debug("previous run in flight, skipping tick")
		return
	}

	t.runs.Add(1)
	go func() {
		defer t.runs.Done()
		defer t.inFlight.Store(false)

		err := t.fn(ctx)
		switch {
		case errors.Is(err, ErrStopTask):
			t.logger.Info("task stopped rescheduling")
			cancel()
		case err != nil && ctx.Err() == nil:
			t.logger.Warn("task run failed", "error", err)
		}
	}()
}
