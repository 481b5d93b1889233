package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/clock"
	"github.com/newsforge/newsforge/internal/events"
	"github.com/newsforge/newsforge/internal/gen"
	"github.com/newsforge/newsforge/internal/model"
	"github.com/newsforge/newsforge/internal/store"
	"github.com/newsforge/newsforge/internal/telemetry"
)

// GenerationStore is the store surface the generation job needs.
type GenerationStore interface {
	NewsForGeneration(ctx context.Context, limit int) ([]store.GenerationItem, error)
	SavePosts(ctx context.Context, posts []model.Post) error
}

// GenerateConfig bounds one generation run.
type GenerateConfig struct {
	MaxPerRun     int
	RetryCeiling  int
	MinTextLength int
	Cooldown      time.Duration
}

// GenerateJob turns pending news items into post text. All post
// mutations of one run are committed together at the end.
type GenerateJob struct {
	store     GenerationStore
	generator gen.Generator
	limiter   Limiter
	sleeper   clock.Sleeper
	clk       clock.Clock
	pub       events.Publisher
	cfg       GenerateConfig
	logger    *zap.Logger
}

// NewGenerateJob wires a generation job.
func NewGenerateJob(st GenerationStore, generator gen.Generator, limiter Limiter, sleeper clock.Sleeper, clk clock.Clock, pub events.Publisher, cfg GenerateConfig, logger *zap.Logger) *GenerateJob {
	return &GenerateJob{
		store:     st,
		generator: generator,
		limiter:   limiter,
		sleeper:   sleeper,
		clk:       clk,
		pub:       pub,
		cfg:       cfg,
		logger:    logger.Named("generate"),
	}
}

// Run processes pending items up to the per-run cap. A rate-limit
// signal from the service pauses for the cooldown and ends the run;
// pending items stay pending and no retry is charged for them.
func (j *GenerateJob) Run(ctx context.Context) error {
	// Load a slice of the backlog rather than all of it. The headroom
	// over the success cap leaves room for items that charge a retry
	// or get skipped without starving a run of fresh candidates.
	items, err := j.store.NewsForGeneration(ctx, j.cfg.MaxPerRun*5)
	if err != nil {
		return fmt.Errorf("load pending items: %w", err)
	}

	var updates []model.Post
	generated := 0
	rateLimited := false

	for _, item := range items {
		if generated >= j.cfg.MaxPerRun || rateLimited {
			break
		}
		post := j.postFor(item)
		if post.Status.Terminal() || post.Status == model.PostStatusPublished {
			continue
		}

		if post.Status == model.PostStatusFailed && post.RetryCount >= j.cfg.RetryCeiling {
			// Exhausted earlier; park it out of the pending set.
			post.Status = model.PostStatusArchived
			updates = append(updates, post)
			telemetry.GenerationOutcome("archived")
			j.logger.Info("post archived after exhausted retries",
				zap.String("news_url", item.News.URL),
				zap.Int("retries", post.RetryCount),
			)
			continue
		}

		input := sourceText(item.News)
		if input == "" {
			j.logger.Debug("news item has no usable text", zap.String("news_url", item.News.URL))
			continue
		}

		if err := j.limiter.Acquire(ctx); err != nil {
			return fmt.Errorf("limiter: %w", err)
		}

		text, err := j.generator.GenerateText(ctx, input)
		switch {
		case errors.Is(err, gen.ErrRateLimited):
			telemetry.GenerationOutcome("rate_limited")
			j.logger.Warn("generation service rate limited, cooling down",
				zap.Duration("cooldown", j.cfg.Cooldown),
			)
			if sleepErr := j.sleeper.Sleep(ctx, j.cfg.Cooldown); sleepErr != nil {
				return sleepErr
			}
			rateLimited = true
		case err != nil:
			updates = append(updates, j.recordFailure(post, item, err.Error()))
		case utf8.RuneCountInString(text) < j.cfg.MinTextLength:
			updates = append(updates, j.recordFailure(post, item,
				fmt.Sprintf("generated text too short: %d runes", utf8.RuneCountInString(text))))
		default:
			post.GeneratedText = text
			post.Status = model.PostStatusNew
			post.RetryCount = 0
			post.ErrorMessage = ""
			updates = append(updates, post)
			generated++
			telemetry.GenerationOutcome("success")
		}
	}

	if len(updates) > 0 {
		if err := j.store.SavePosts(ctx, updates); err != nil {
			return fmt.Errorf("save posts: %w", err)
		}
	}
	j.logger.Info("generation run done",
		zap.Int("pending", len(items)),
		zap.Int("generated", generated),
		zap.Int("updated", len(updates)),
	)
	if generated > 0 {
		emit(ctx, j.pub, j.logger, events.Event{
			Type:    events.TypePostGenerated,
			At:      j.clk.Now(),
			Payload: map[string]any{"generated": generated},
		})
	}
	return nil
}

func (j *GenerateJob) postFor(item store.GenerationItem) model.Post {
	if item.Post != nil {
		return *item.Post
	}
	return model.Post{
		NewsID: item.News.ID,
		Status: model.PostStatusNew,
	}
}

// recordFailure charges one retry and marks the post failed once the
// ceiling is hit.
func (j *GenerateJob) recordFailure(post model.Post, item store.GenerationItem, msg string) model.Post {
	post.RetryCount++
	post.ErrorMessage = msg
	if post.RetryCount >= j.cfg.RetryCeiling {
		post.Status = model.PostStatusFailed
	} else {
		post.Status = model.PostStatusNew
	}
	telemetry.GenerationOutcome("failure")
	j.logger.Warn("generation attempt failed",
		zap.String("news_url", item.News.URL),
		zap.Int("retry_count", post.RetryCount),
		zap.String("error", msg),
	)
	return post
}

// sourceText picks the richest text a news item carries.
func sourceText(news model.NewsItem) string {
	if news.RawText != "" {
		return news.RawText
	}
	return news.Summary
}
