package reporter

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/knot/internal/adapters/detector"
	"go.trai.ch/knot/internal/core/ports"
)

// NodeID is the unique identifier for the reporter Graft node.
const NodeID graft.ID = "adapter.reporter"

func init() {
	graft.Register(graft.Node[ports.Reporter]{
		ID:        NodeID,
		Cacheable: true,
		DependsOn: []graft.ID{detector.NodeID},
		Run: func(ctx context.Context) (ports.Reporter, error) {
			env, err := graft.Dep[detector.Environment](ctx)
			if err != nil {
				return nil, err
			}
			return New(os.Stderr, env.Profile()), nil
		},
	})
}
