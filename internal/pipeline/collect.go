package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/clock"
	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/events"
	"github.com/newsforge/newsforge/internal/store"
)

// NewsSaver is the store surface the collection job needs.
type NewsSaver interface {
	SaveNews(ctx context.Context, items []collect.Candidate) (store.SaveNewsResult, error)
}

// CollectJob runs one collection sweep over all enabled sources and
// stores the surviving candidates.
type CollectJob struct {
	collector    *collect.Collector
	store        NewsSaver
	pub          events.Publisher
	clk          clock.Clock
	channelLimit int
	logger       *zap.Logger
}

// NewCollectJob wires a collection job.
func NewCollectJob(collector *collect.Collector, st NewsSaver, pub events.Publisher, clk clock.Clock, channelLimit int, logger *zap.Logger) *CollectJob {
	return &CollectJob{
		collector:    collector,
		store:        st,
		pub:          pub,
		clk:          clk,
		channelLimit: channelLimit,
		logger:       logger.Named("collect"),
	}
}

// Run collects, stores, and announces the outcome.
func (j *CollectJob) Run(ctx context.Context) error {
	items, err := j.collector.Collect(ctx, j.channelLimit)
	if err != nil {
		return fmt.Errorf("collect: %w", err)
	}
	res, err := j.store.SaveNews(ctx, items)
	if err != nil {
		return fmt.Errorf("store news: %w", err)
	}
	j.logger.Info("collection sweep done",
		zap.Int("candidates", len(items)),
		zap.Int("stored", res.Stored),
		zap.Int("skipped", res.Skipped),
	)
	if res.Stored > 0 {
		emit(ctx, j.pub, j.logger, events.Event{
			Type:    events.TypeNewsCollected,
			At:      j.clk.Now(),
			Payload: map[string]any{"stored": res.Stored, "skipped": res.Skipped},
		})
	}
	return nil
}
