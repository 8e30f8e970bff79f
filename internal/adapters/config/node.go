package config

import (
	"context"

	"github.com/grindlemire/graft"
	"go.trai.ch/knot/internal/adapters/logger"
	"go.trai.ch/knot/internal/adapters/system"
	"go.trai.ch/knot/internal/core/ports"
)

// NodeID is the unique identifier for the config loader Graft node.
const NodeID graft.ID = "adapter.config"

func init() {
	graft.Register(graft.Node[*Loader]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{system.NodeID, logger.NodeID},
		Run: func(ctx context.Context) (*Loader, error) {
			sys, err := graft.Dep[ports.System](ctx)
			if err != nil {
				return nil, err
			}
			log, err := graft.Dep[ports.Logger](ctx)
			if err != nil {
				return nil, err
			}
			return NewLoader(sys, log), nil
		},
	})
}
