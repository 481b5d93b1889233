package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/clock"
	"github.com/newsforge/newsforge/internal/events"
	"github.com/newsforge/newsforge/internal/model"
	"github.com/newsforge/newsforge/internal/telemetry"
)

// CleanupStore is the store surface the cleanup job needs.
type CleanupStore interface {
	PurgeOldPosts(ctx context.Context, before time.Time, statuses []model.PostStatus, limit int) (int, error)
}

// CleanupConfig bounds one purge sweep.
type CleanupConfig struct {
	Retention time.Duration
	MaxPerRun int
}

// CleanupJob removes dead posts past retention, oldest first, together
// with their news items.
type CleanupJob struct {
	store  CleanupStore
	pub    events.Publisher
	clk    clock.Clock
	cfg    CleanupConfig
	logger *zap.Logger
}

// NewCleanupJob wires a cleanup job.
func NewCleanupJob(st CleanupStore, pub events.Publisher, clk clock.Clock, cfg CleanupConfig, logger *zap.Logger) *CleanupJob {
	return &CleanupJob{
		store:  st,
		pub:    pub,
		clk:    clk,
		cfg:    cfg,
		logger: logger.Named("cleanup"),
	}
}

// Run purges up to the per-run cap of archived and failed posts older
// than the retention window.
func (j *CleanupJob) Run(ctx context.Context) error {
	cutoff := j.clk.Now().Add(-j.cfg.Retention)
	purged, err := j.store.PurgeOldPosts(ctx, cutoff,
		[]model.PostStatus{model.PostStatusArchived, model.PostStatusFailed},
		j.cfg.MaxPerRun,
	)
	if err != nil {
		return fmt.Errorf("purge posts: %w", err)
	}
	telemetry.PostsPurged(purged)
	j.logger.Info("cleanup sweep done",
		zap.Time("cutoff", cutoff),
		zap.Int("purged", purged),
	)
	if purged > 0 {
		emit(ctx, j.pub, j.logger, events.Event{
			Type:    events.TypePostsPurged,
			At:      j.clk.Now(),
			Payload: map[string]any{"purged": purged},
		})
	}
	return nil
}
