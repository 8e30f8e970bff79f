package telemetry

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/knot/internal/core/domain"
	"go.trai.ch/knot/internal/core/ports"
)

var (
	_ sdktrace.SpanProcessor = (*SpanCounter)(nil)
	_ ports.CounterSource    = (*SpanCounter)(nil)
)

type spanStats struct {
	ended  int64
	failed int64
}

// SpanCounter is a span processor that counts finished spans per name.
type SpanCounter struct {
	mu    sync.Mutex
	stats map[string]*spanStats
}

// NewSpanCounter returns an empty SpanCounter.
func NewSpanCounter() *SpanCounter {
	return &SpanCounter{stats: make(map[string]*spanStats)}
}

// OnStart does nothing.
func (c *SpanCounter) OnStart(context.Context, sdktrace.ReadWriteSpan) {}

// OnEnd counts the span and whether it failed.
func (c *SpanCounter) OnEnd(s sdktrace.ReadOnlySpan) {
	if !s.SpanContext().IsValid() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	st, ok := c.stats[s.Name()]
	if !ok {
		st = &spanStats{}
		c.stats[s.Name()] = st
	}
	st.ended++
	if s.Status().Code == codes.Error {
		st.failed++
	}
}

// ForceFlush does nothing.
func (c *SpanCounter) ForceFlush(context.Context) error {
	return nil
}

// Shutdown does nothing.
func (c *SpanCounter) Shutdown(context.Context) error {
	return nil
}

// Counters reports "spans.<name>" and "spans.<name>.failed" sorted by name.
func (c *SpanCounter) Counters() []domain.Counter {
	c.mu.Lock()
	defer c.mu.Unlock()

	counters := make([]domain.Counter, 0, 2*len(c.stats))
	for name, st := range c.stats {
		counters = append(counters,
			domain.Counter{Name: "spans." + name, Value: st.ended},
			domain.Counter{Name: "spans." + name + ".failed", Value: st.failed},
		)
	}
	slices.SortFunc(counters, func(a, b domain.Counter) int {
		return cmp.Compare(a.Name, b.Name)
	})
	return counters
}
