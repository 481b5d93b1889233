package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/clock"
	"github.com/newsforge/newsforge/internal/gen"
	"github.com/newsforge/newsforge/internal/model"
	"github.com/newsforge/newsforge/internal/telemetry"
)

// TagStore is the store surface the tagging job needs.
type TagStore interface {
	PostsNeedingKeywords(ctx context.Context) ([]model.Post, error)
	AttachKeywords(ctx context.Context, postID string, words []string) error
}

// TagConfig bounds one tagging run.
type TagConfig struct {
	MaxKeywords int
	MaxAttempts int
	Cooldown    time.Duration
}

// TagJob attaches keywords to posts that have text but no tags yet.
// Attempts per post are bounded within the run; a post whose attempts
// are exhausted is simply left for the next run.
type TagJob struct {
	store     TagStore
	generator gen.Generator
	limiter   Limiter
	sleeper   clock.Sleeper
	cfg       TagConfig
	logger    *zap.Logger
}

// NewTagJob wires a tagging job.
func NewTagJob(st TagStore, generator gen.Generator, limiter Limiter, sleeper clock.Sleeper, cfg TagConfig, logger *zap.Logger) *TagJob {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &TagJob{
		store:     st,
		generator: generator,
		limiter:   limiter,
		sleeper:   sleeper,
		cfg:       cfg,
		logger:    logger.Named("tag"),
	}
}

// Run tags every untagged post it can.
func (j *TagJob) Run(ctx context.Context) error {
	posts, err := j.store.PostsNeedingKeywords(ctx)
	if err != nil {
		return fmt.Errorf("load untagged posts: %w", err)
	}

	tagged := 0
	for _, post := range posts {
		words, err := j.keywords(ctx, post)
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			j.logger.Warn("keyword extraction failed",
				zap.String("post_id", post.ID),
				zap.Error(err),
			)
			continue
		}
		if len(words) == 0 {
			continue
		}
		if err := j.store.AttachKeywords(ctx, post.ID, words); err != nil {
			return fmt.Errorf("attach keywords to %s: %w", post.ID, err)
		}
		tagged++
		telemetry.KeywordsAttached(len(words))
	}
	j.logger.Info("tagging run done", zap.Int("untagged", len(posts)), zap.Int("tagged", tagged))
	return nil
}

// keywords calls the service with bounded retries, pausing for the
// cooldown whenever it signals a rate limit.
func (j *TagJob) keywords(ctx context.Context, post model.Post) ([]string, error) {
	var lastErr error
	for attempt := 0; attempt < j.cfg.MaxAttempts; attempt++ {
		if err := j.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		words, err := j.generator.GenerateKeywords(ctx, post.GeneratedText, j.cfg.MaxKeywords)
		if err == nil {
			return words, nil
		}
		lastErr = err
		if errors.Is(err, gen.ErrRateLimited) {
			if sleepErr := j.sleeper.Sleep(ctx, j.cfg.Cooldown); sleepErr != nil {
				return nil, sleepErr
			}
		}
	}
	return nil, lastErr
}
