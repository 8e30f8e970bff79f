package telemetry_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.trai.ch/knot/internal/adapters/telemetry"
	"go.trai.ch/knot/internal/core/domain"
)

func TestOTelTracer_RecordsSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := telemetry.NewProvider(recorder)
	t.Cleanup(func() { _ = provider.Shutdown(t.Context()) })

	tracer := telemetry.NewOTelTracer(provider)
	ctx, span := tracer.Start(t.Context(), "check")
	span.SetAttribute("revision", uint64(3))
	span.SetAttribute("files", 2)
	span.SetAttribute("package", "ws")
	span.SetAttribute("watch", true)
	span.SetAttribute("other", struct{ A int }{A: 1})

	_, child := tracer.Start(ctx, "resolve")
	child.End()
	span.RecordError(errors.New("boom"))
	span.End()

	ended := recorder.Ended()
	require.Len(t, ended, 2)

	resolve, check := ended[0], ended[1]
	assert.Equal(t, "resolve", resolve.Name())
	assert.Equal(t, check.SpanContext().SpanID(), resolve.Parent().SpanID())

	assert.Equal(t, "check", check.Name())
	assert.Equal(t, codes.Error, check.Status().Code)
	assert.Equal(t, "boom", check.Status().Description)
	assert.ElementsMatch(t, []attribute.KeyValue{
		attribute.Int64("revision", 3),
		attribute.Int("files", 2),
		attribute.String("package", "ws"),
		attribute.Bool("watch", true),
		attribute.String("other", "{1}"),
	}, check.Attributes())
}

func TestSpanCounter(t *testing.T) {
	counter := telemetry.NewSpanCounter()
	provider := telemetry.NewProvider(counter)
	t.Cleanup(func() { _ = provider.Shutdown(t.Context()) })
	tracer := telemetry.NewOTelTracer(provider)

	assert.Empty(t, counter.Counters())

	for range 3 {
		_, span := tracer.Start(t.Context(), "check")
		span.End()
	}
	_, failed := tracer.Start(t.Context(), "check")
	failed.RecordError(errors.New("boom"))
	failed.End()

	_, open := tracer.Start(t.Context(), "parse")
	defer open.End()

	assert.Equal(t, []domain.Counter{
		{Name: "spans.check", Value: 4},
		{Name: "spans.check.failed", Value: 1},
	}, counter.Counters())
}
