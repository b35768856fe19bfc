package ports

import (
	"context"

	"github.com/layer-3/leaderboard/core"
)

// EventPublisher delivers session manager outcomes to observers
type EventPublisher interface {
	Publish(ctx context.Context, event core.Event) error
}
