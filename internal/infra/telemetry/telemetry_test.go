package telemetry_test

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"

	"audio-blinkshot/config"
	"audio-blinkshot/internal/infra/telemetry"
)

func TestSetup_ExposesMetrics(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx := context.Background()

	shutdown, handler, err := telemetry.Setup(ctx, config.TelemetryConfig{
		ServiceName:    "blinkshot-test",
		MetricsEnabled: true,
	}, "test", logger)
	require.NoError(t, err)
	require.NotNil(t, handler)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	counter, err := otel.Meter("telemetry-test").Int64Counter("blinkshot.test.events")
	require.NoError(t, err)
	counter.Add(ctx, 3)

	_, span := otel.Tracer("telemetry-test").Start(ctx, "tick")
	span.End()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "blinkshot_test_events_total")
	assert.Contains(t, body, "go_goroutines")
}

func TestSetup_MetricsDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	shutdown, handler, err := telemetry.Setup(context.Background(), config.TelemetryConfig{
		ServiceName: "blinkshot-test",
	}, "test", logger)
	require.NoError(t, err)
	assert.Nil(t, handler)
	assert.NoError(t, shutdown(context.Background()))
}
