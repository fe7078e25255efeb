package shadowstate

import (
	"context"

	"github.com/oriongate/execcore/internal/types"
)

// PositionLoader loads persisted positions at startup, implemented by
// internal/persistence.
type PositionLoader interface {
	LoadAllPositions(ctx context.Context) ([]types.Position, error)
}
