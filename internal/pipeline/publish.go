package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/clock"
	"github.com/newsforge/newsforge/internal/events"
	"github.com/newsforge/newsforge/internal/model"
	"github.com/newsforge/newsforge/internal/telegram"
	"github.com/newsforge/newsforge/internal/telemetry"
)

// PublishStore is the store surface the publication job needs.
type PublishStore interface {
	PostsByStatus(ctx context.Context, status model.PostStatus) ([]model.Post, error)
	MarkPostsSent(ctx context.Context, ids []string, at time.Time) error
}

// PublishJob delivers approved posts to the destination channel. A
// failing delivery skips that post; it stays approved and is retried
// on the next run. All successful deliveries are marked sent together.
type PublishJob struct {
	store  PublishStore
	sender telegram.Sender
	pub    events.Publisher
	clk    clock.Clock
	chatID string
	logger *zap.Logger
}

// NewPublishJob wires a publication job.
func NewPublishJob(st PublishStore, sender telegram.Sender, pub events.Publisher, clk clock.Clock, chatID string, logger *zap.Logger) *PublishJob {
	return &PublishJob{
		store:  st,
		sender: sender,
		pub:    pub,
		clk:    clk,
		chatID: chatID,
		logger: logger.Named("publish"),
	}
}

// Run sends every approved post it can.
func (j *PublishJob) Run(ctx context.Context) error {
	posts, err := j.store.PostsByStatus(ctx, model.PostStatusPublished)
	if err != nil {
		return fmt.Errorf("load approved posts: %w", err)
	}

	var sentIDs []string
	for _, post := range posts {
		if err := j.sender.SendMessage(ctx, j.chatID, RenderMessage(post)); err != nil {
			if ctx.Err() != nil {
				return err
			}
			j.logger.Warn("delivery failed, post stays approved",
				zap.String("post_id", post.ID),
				zap.Error(err),
			)
			continue
		}
		sentIDs = append(sentIDs, post.ID)
		telemetry.PostPublished()
	}

	if len(sentIDs) > 0 {
		sentAt := j.clk.Now()
		if err := j.store.MarkPostsSent(ctx, sentIDs, sentAt); err != nil {
			return fmt.Errorf("mark posts sent: %w", err)
		}
		emit(ctx, j.pub, j.logger, events.Event{
			Type:    events.TypePostPublished,
			At:      sentAt,
			Payload: map[string]any{"sent": len(sentIDs)},
		})
	}
	j.logger.Info("publication run done", zap.Int("approved", len(posts)), zap.Int("sent", len(sentIDs)))
	return nil
}

// RenderMessage formats a post for delivery: generated text, hashtag
// line, and a source link when the news URL is known.
func RenderMessage(post model.Post) string {
	var b strings.Builder
	b.WriteString(post.GeneratedText)

	if len(post.Keywords) > 0 {
		tags := make([]string, 0, len(post.Keywords))
		for _, kw := range post.Keywords {
			tags = append(tags, "#"+kw.Word)
		}
		b.WriteString("\n\n")
		b.WriteString(strings.Join(tags, " "))
	}
	if post.News.URL != "" {
		b.WriteString(fmt.Sprintf("\n\n[Source](%s)", post.News.URL))
	}
	return b.String()
}
