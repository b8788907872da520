package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wekeepgrowing/storybook/internal/config"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func TestInitTracer_Disabled(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), config.TelemetryConfig{}, config.ServiceConfig{Name: "storybook"}, zap.NewNop())
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestInitTracer_Enabled(t *testing.T) {
	cfg := config.TelemetryConfig{Enabled: true, Endpoint: "localhost:4318", Insecure: true, SampleRatio: 1}
	shutdown, err := InitTracer(context.Background(), cfg, config.ServiceConfig{Name: "storybook", Version: "test"}, zap.NewNop())
	require.NoError(t, err)

	_, span := otel.Tracer("test").Start(context.Background(), "check")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// Nothing listens on the endpoint, so only bound the flush.
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_ = shutdown(ctx)
}
