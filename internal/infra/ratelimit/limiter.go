// Package ratelimit implements the per-client daily generation budget as a
// sliding log of hits kept in a pluggable store.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	DefaultLimit  = 15
	DefaultWindow = 24 * time.Hour
)

// Store persists hit timestamps per identifier.
type Store interface {
	// Take records a hit at now if fewer than limit hits fall inside
	// (now-window, now]. It must be atomic per identifier.
	Take(ctx context.Context, id string, now time.Time, window time.Duration, limit int) (bool, error)
	// Count reports the hits inside (now-window, now] without recording one.
	Count(ctx context.Context, id string, now time.Time, window time.Duration) (int, error)
	// Prune drops hits at or before cutoff.
	Prune(ctx context.Context, cutoff time.Time) error
}

type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	logger *slog.Logger
	clock  func() time.Time

	decisions metric.Int64Counter
}

func New(store Store, limit int, window time.Duration, logger *slog.Logger) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: logger,
		clock:  time.Now,
	}
}

// Instrument counts consume decisions on the given meter.
func (l *Limiter) Instrument(meter metric.Meter) error {
	counter, err := meter.Int64Counter(
		"blinkshot.ratelimit.decisions",
		metric.WithDescription("Generation budget consume decisions"),
	)
	if err != nil {
		return fmt.Errorf("creating decisions counter: %w", err)
	}
	l.decisions = counter
	return nil
}

func (l *Limiter) Limit() int { return l.limit }

func (l *Limiter) Window() time.Duration { return l.window }

// Consume takes one unit from id's budget and reports whether one was available.
func (l *Limiter) Consume(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, errors.New("empty identifier")
	}
	allowed, err := l.store.Take(ctx, id, l.clock(), l.window, l.limit)
	if err != nil {
		return false, fmt.Errorf("consuming budget: %w", err)
	}
	if l.decisions != nil {
		l.decisions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("allowed", allowed)))
	}
	if !allowed {
		l.logger.Info("generation budget exhausted", "identifier", id, "limit", l.limit)
	}
	return allowed, nil
}

// Remaining reports the units left for id without consuming one.
func (l *Limiter) Remaining(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, errors.New("empty identifier")
	}
	used, err := l.store.Count(ctx, id, l.clock(), l.window)
	if err != nil {
		return 0, fmt.Errorf("counting budget: %w", err)
	}
	return max(0, l.limit-used), nil
}

// StartPruning periodically drops hits that fell out of the window.
func (l *Limiter) StartPruning(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.store.Prune(ctx, l.clock().Add(-l.window)); err != nil {
					l.logger.Error("pruning rate limit store failed", "error", err)
				}
			}
		}
	}()
}
