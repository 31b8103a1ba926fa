package application_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"audio-blinkshot/internal/application"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestTask_SkipsTicksWhileInFlight(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})

	task := application.NewTask("blocking", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, discardLogger())

	task.Start(context.Background())
	waitFor(t, "first run", func() bool { return runs.Load() == 1 })

	// Many intervals pass while the first run is held.
	time.Sleep(50 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Fatalf("runs while in flight: got %d, want 1", got)
	}

	close(release)
	waitFor(t, "second run", func() bool { return runs.Load() >= 2 })
	task.Stop()
}

func TestTask_StopPreventsFurtherRuns(t *testing.T) {
	var runs atomic.Int32
	task := application.NewTask("counter", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}, discardLogger())

	task.Start(context.Background())
	waitFor(t, "a few runs", func() bool { return runs.Load() >= 3 })

	task.Stop()
	after := runs.Load()
	time.Sleep(30 * time.Millisecond)
	if got := runs.Load(); got != after {
		t.Errorf("runs after stop: got %d, want %d", got, after)
	}

	select {
	case <-task.Done():
	default:
		t.Error("Done not closed after Stop")
	}
}

func TestTask_StopWaitsForRunInFlight(t *testing.T) {
	var finished atomic.Bool
	started := make(chan struct{}, 1)

	task := application.NewTask("slow", 5*time.Millisecond, func(ctx context.Context) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-ctx.Done()
		time.Sleep(10 * time.Millisecond)
		finished.Store(true)
		return ctx.Err()
	}, discardLogger())

	task.Start(context.Background())
	<-started
	task.Stop()

	if !finished.Load() {
		t.Error("Stop returned before the run in flight finished")
	}
}

func TestTask_SelfCancel(t *testing.T) {
	var runs atomic.Int32
	task := application.NewTask("once", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return application.ErrStopTask
	}, discardLogger())

	task.Start(context.Background())

	select {
	case <-task.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("task did not stop itself")
	}
	time.Sleep(20 * time.Millisecond)
	if got := runs.Load(); got != 1 {
		t.Errorf("runs: got %d, want 1", got)
	}
	task.Stop()
}

func TestTask_ErrorsDoNotStopTask(t *testing.T) {
	var runs atomic.Int32
	task := application.NewTask("flaky", 5*time.Millisecond, func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("upstream unavailable")
	}, discardLogger())

	task.Start(context.Background())
	waitFor(t, "runs after failures", func() bool { return runs.Load() >= 3 })
	task.Stop()
}
