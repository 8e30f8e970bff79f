package logger

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/knot/internal/core/ports"
)

// NodeID is the unique identifier for the logger Graft node.
const NodeID graft.ID = "adapter.logger"

// ControlNodeID exposes the concrete logger so the CLI can set its level and format.
const ControlNodeID graft.ID = "adapter.logger.control"

func init() {
	graft.Register(graft.Node[*Logger]{
		ID:        ControlNodeID,
		Cacheable: true,
		Run: func(_ context.Context) (*Logger, error) {
			return New(), nil
		},
	})

	graft.Register(graft.Node[ports.Logger]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{ControlNodeID},
		Run: func(ctx context.Context) (ports.Logger, error) {
			l, err := graft.Dep[*Logger](ctx)
			if err != nil {
				return nil, err
			}
			return l, nil
		},
	})
}
