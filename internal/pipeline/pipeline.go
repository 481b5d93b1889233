// Package pipeline contains the scheduled jobs that move news items
// through collection, generation, tagging, publication and cleanup.
package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/events"
)

// Limiter paces calls to the generation service.
type Limiter interface {
	Acquire(ctx context.Context) error
}

// emit publishes a pipeline event. Broker failures are logged and
// swallowed; notifications never fail a job run.
func emit(ctx context.Context, pub events.Publisher, logger *zap.Logger, ev events.Event) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, ev); err != nil {
		logger.Warn("event publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}
