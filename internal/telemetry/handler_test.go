package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func TestTraceHandler(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(NewTraceHandler(slog.NewJSONHandler(&buf, nil))).With("component", "test")

	t.Run("without span", func(t *testing.T) {
		buf.Reset()
		logger.InfoContext(context.Background(), "hello")

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.NotContains(t, rec, "trace_id")
		assert.Equal(t, "test", rec["component"])
	})

	t.Run("with span", func(t *testing.T) {
		buf.Reset()
		tp := sdktrace.NewTracerProvider()
		defer tp.Shutdown(context.Background())

		ctx, span := tp.Tracer("test").Start(context.Background(), "op")
		logger.InfoContext(ctx, "hello")
		span.End()

		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, span.SpanContext().TraceID().String(), rec["trace_id"])
		assert.Equal(t, span.SpanContext().SpanID().String(), rec["span_id"])
	})
}
