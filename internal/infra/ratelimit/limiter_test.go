package ratelimit

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestLimiter(t *testing.T, store Store) (*Limiter, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l := New(store, DefaultLimit, DefaultWindow, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.clock = clock.Now
	return l, clock
}

func stores(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"memory": func() Store { return NewMemoryStore() },
		"sqlite": func() Store {
			s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "limiter.db"))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}
}

func TestLimiter_SixteenthConsumeRejected(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l, clock := newTestLimiter(t, newStore())
			ctx := context.Background()

			for i := 0; i < DefaultLimit; i++ {
				allowed, err := l.Consume(ctx, "1.2.3.4")
				require.NoError(t, err)
				require.True(t, allowed, "consume %d should succeed", i+1)
				clock.Advance(time.Minute)
			}

			allowed, err := l.Consume(ctx, "1.2.3.4")
			require.NoError(t, err)
			assert.False(t, allowed)

			remaining, err := l.Remaining(ctx, "1.2.3.4")
			require.NoError(t, err)
			assert.Equal(t, 0, remaining)

			other, err := l.Consume(ctx, "5.6.7.8")
			require.NoError(t, err)
			assert.True(t, other, "budgets are per identifier")
		})
	}
}

func TestLimiter_WindowSlides(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l, clock := newTestLimiter(t, newStore())
			ctx := context.Background()

			// 10 hits at t0, 5 hits at t0+12h
			for i := 0; i < 10; i++ {
				ok, err := l.Consume(ctx, "client")
				require.NoError(t, err)
				require.True(t, ok)
			}
			clock.Advance(12 * time.Hour)
			for i := 0; i < 5; i++ {
				ok, err := l.Consume(ctx, "client")
				require.NoError(t, err)
				require.True(t, ok)
			}

			ok, err := l.Consume(ctx, "client")
			require.NoError(t, err)
			assert.False(t, ok)

			// Just past t0+24h the first ten expire, the later five do not.
			clock.Advance(12*time.Hour + time.Second)
			remaining, err := l.Remaining(ctx, "client")
			require.NoError(t, err)
			assert.Equal(t, 10, remaining)

			for i := 0; i < 10; i++ {
				ok, err := l.Consume(ctx, "client")
				require.NoError(t, err)
				require.True(t, ok)
			}
			ok, err = l.Consume(ctx, "client")
			require.NoError(t, err)
			assert.False(t, ok, "no burst doubling at the window boundary")
		})
	}
}

func TestLimiter_RemainingDoesNotMutate(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l, _ := newTestLimiter(t, newStore())
			ctx := context.Background()

			for i := 0; i < 20; i++ {
				remaining, err := l.Remaining(ctx, "fresh")
				require.NoError(t, err)
				require.Equal(t, DefaultLimit, remaining)
			}

			_, err := l.Consume(ctx, "fresh")
			require.NoError(t, err)

			for i := 0; i < 5; i++ {
				remaining, err := l.Remaining(ctx, "fresh")
				require.NoError(t, err)
				assert.Equal(t, DefaultLimit-1, remaining)
			}
		})
	}
}

func TestLimiter_ConcurrentConsumeAtBoundary(t *testing.T) {
	for name, newStore := range stores(t) {
		t.Run(name, func(t *testing.T) {
			l, _ := newTestLimiter(t, newStore())
			ctx := context.Background()

			for i := 0; i < DefaultLimit-1; i++ {
				ok, err := l.Consume(ctx, "racer")
				require.NoError(t, err)
				require.True(t, ok)
			}

			const callers = 8
			var wg sync.WaitGroup
			results := make(chan bool, callers)
			start := make(chan struct{})
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					<-start
					ok, err := l.Consume(ctx, "racer")
					assert.NoError(t, err)
					results <- ok
				}()
			}
			close(start)
			wg.Wait()
			close(results)

			succeeded := 0
			for ok := range results {
				if ok {
					succeeded++
				}
			}
			assert.Equal(t, 1, succeeded)
		})
	}
}

func TestLimiter_ConcurrentIdentifiers(t *testing.T) {
	l, _ := newTestLimiter(t, NewMemoryStore())
	ctx := context.Background()

	ids := []string{"a", "b", "c", "d"}
	var wg sync.WaitGroup
	var mu sync.Mutex
	granted := map[string]int{}
	for _, id := range ids {
		for i := 0; i < 30; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				ok, err := l.Consume(ctx, id)
				assert.NoError(t, err)
				if ok {
					mu.Lock()
					granted[id]++
					mu.Unlock()
				}
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		assert.Equal(t, DefaultLimit, granted[id], "identifier %s", id)
	}
}

func TestLimiter_EmptyIdentifier(t *testing.T) {
	l, _ := newTestLimiter(t, NewMemoryStore())
	_, err := l.Consume(context.Background(), "")
	assert.Error(t, err)
	_, err = l.Remaining(context.Background(), "")
	assert.Error(t, err)
}

func TestMemoryStore_Prune(t *testing.T) {
	store := NewMemoryStore()
	l, clock := newTestLimiter(t, store)
	ctx := context.Background()

	_, err := l.Consume(ctx, "old")
	require.NoError(t, err)
	clock.Advance(20 * time.Hour)
	_, err = l.Consume(ctx, "recent")
	require.NoError(t, err)
	clock.Advance(5 * time.Hour)

	require.NoError(t, store.Prune(ctx, clock.Now().Add(-DefaultWindow)))
	assert.Equal(t, 1, store.Identifiers())

	remaining, err := l.Remaining(ctx, "recent")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit-1, remaining)
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "limiter.db")
	ctx := context.Background()

	store, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	l, clock := newTestLimiter(t, store)
	for i := 0; i < 3; i++ {
		_, err := l.Consume(ctx, "persisted")
		require.NoError(t, err)
	}
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	l2 := New(reopened, DefaultLimit, DefaultWindow, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l2.clock = clock.Now
	remaining, err := l2.Remaining(ctx, "persisted")
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit-3, remaining)
}

func TestClientIdentifier(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		realIP    string
		want      string
	}{
		{name: "forwarded single", forwarded: "203.0.113.7", want: "203.0.113.7"},
		{name: "forwarded chain", forwarded: "203.0.113.7, 10.0.0.1", want: "203.0.113.7"},
		{name: "forwarded wins over real ip", forwarded: "203.0.113.7", realIP: "198.51.100.2", want: "203.0.113.7"},
		{name: "real ip", realIP: "198.51.100.2", want: "198.51.100.2"},
		{name: "no headers", want: UnknownIdentifier},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/limits", nil)
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.realIP != "" {
				req.Header.Set("X-Real-IP", tt.realIP)
			}
			assert.Equal(t, tt.want, ClientIdentifier(req))
		})
	}
}
