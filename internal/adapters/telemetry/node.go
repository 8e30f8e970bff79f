package telemetry

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/knot/internal/core/ports"
)

const (
	// CounterNodeID is the unique identifier for the span counter Graft node.
	CounterNodeID graft.ID = "adapter.telemetry.counter"
	// TracerNodeID is the unique identifier for the tracer Graft node.
	TracerNodeID graft.ID = "adapter.telemetry.tracer"
)

func init() {
	graft.Register(graft.Node[*SpanCounter]{
		ID:        CounterNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*SpanCounter, error) {
			return NewSpanCounter(), nil
		},
	})

	graft.Register(graft.Node[ports.Tracer]{
		ID:        TracerNodeID,
		Cacheable: true,
		DependsOn: []graft.ID{CounterNodeID},
		Run: func(ctx context.Context) (ports.Tracer, error) {
			counter, err := graft.Dep[*SpanCounter](ctx)
			if err != nil {
				return nil, err
			}
			return NewOTelTracer(NewProvider(counter)), nil
		},
	})
}
