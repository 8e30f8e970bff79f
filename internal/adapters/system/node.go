package system

import (
	"context"
	"os"

	"github.com/grindlemire/graft"
	"go.trai.ch/knot/internal/core/ports"
	"go.trai.ch/zerr"
)

// NodeID is the unique identifier for the host System Graft node.
const NodeID graft.ID = "adapter.system"

func init() {
	graft.Register(graft.Node[ports.System]{
		ID:        NodeID,
		Cacheable: true,
		Run: func(_ context.Context) (ports.System, error) {
			cwd, err := os.Getwd()
			if err != nil {
				return nil, zerr.Wrap(err, "failed to determine the working directory")
			}
			return NewOSSystem(cwd), nil
		},
	})
}
