package graphingest

import (
	"context"

	"graphmem/internal/stage"
)

// Sink delivers a batch of episodes and returns a reference to where they
// went.
type Sink interface {
	Send(ctx context.Context, batch Batch) (string, error)
	HealthCheck(ctx context.Context) stage.Health
}
