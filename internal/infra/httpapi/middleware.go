package httpapi

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"audio-blinkshot/internal/infra/ratelimit"
)

var tracer = otel.Tracer(instrumentationName)

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		logger.Info("request",
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client", ratelimit.ClientIdentifier(c.Request),
		)
	}
}

func cors(allowed []string) gin.HandlerFunc {
	allowAll := len(allowed) == 0
	origins := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			allowAll = true
		}
		origins[trimOrigin(o)] = true
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Header("Access-Control-Allow-Origin", "*")
		case origin != "" && origins[trimOrigin(origin)]:
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}
		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Forwarded-For")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

type requestMetrics struct {
	requests metric.Int64Counter
	latency  metric.Float64Histogram
}

func newRequestMetrics(meter metric.Meter) (*requestMetrics, error) {
	requests, err := meter.Int64Counter(
		"blinkshot.http.requests",
		metric.WithDescription("HTTP requests served"),
	)
	if err != nil {
		return nil, err
	}
	latency, err := meter.Float64Histogram(
		"blinkshot.http.duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}
	return &requestMetrics{requests: requests, latency: latency}, nil
}

// middleware opens a server span per request and records count and latency
// by route and status.
func (m *requestMetrics) middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}

		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int("http.status_code", status))
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		attrs := metric.WithAttributes(
			attribute.String("route", route),
			attribute.String("method", c.Request.Method),
			attribute.Int("status", status),
		)
		m.requests.Add(ctx, 1, attrs)
		m.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
	}
}

const throttleIdle = 10 * time.Minute

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// throttleCode tags throttle rejections so clients can tell them apart from
// an exhausted generation budget.
const throttleCode = "throttled"

// throttle is a token bucket per connecting address. It guards against
// request floods and is separate from the daily generation budget.
type throttle struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	lastSweep time.Time
	now       func() time.Time
}

func newThrottle(perMinute, burst int) *throttle {
	if burst <= 0 {
		burst = 1
	}
	return &throttle{
		visitors: make(map[string]*visitor),
		limit:    rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    burst,
		now:      time.Now,
	}
}

func (t *throttle) allow(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if now.Sub(t.lastSweep) > throttleIdle {
		for key, v := range t.visitors {
			if now.Sub(v.lastSeen) > throttleIdle {
				delete(t.visitors, key)
			}
		}
		t.lastSweep = now
	}

	v, ok := t.visitors[id]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(t.limit, t.burst)}
		t.visitors[id] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (t *throttle) middleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.ClientIP()
		if !t.allow(id) {
			logger.Warn("request throttled", "client", id, "path", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many requests",
				"code":  throttleCode,
			})
			return
		}
		c.Next()
	}
}

func (t *throttle) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.visitors)
}

func trimOrigin(origin string) string {
	return strings.TrimSuffix(origin, "/")
}
