package pipeline

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/events"
	"github.com/newsforge/newsforge/internal/model"
	"github.com/newsforge/newsforge/internal/store"
	"github.com/newsforge/newsforge/internal/telegram"
)

type fakeSender struct {
	sent    []string
	failURL map[string]bool
}

func (s *fakeSender) SendMessage(_ context.Context, chatID, text string) error {
	if s.failURL[text] {
		return fmt.Errorf("%w: chat not found", telegram.ErrDelivery)
	}
	s.sent = append(s.sent, text)
	return nil
}

func seedApprovedPost(t *testing.T, st *store.Memory, id, text string) {
	t.Helper()
	items := seedNews(t, st, "https://a.example/"+id)
	require.NoError(t, st.SavePosts(context.Background(), []model.Post{{
		ID:            id,
		NewsID:        items[0].News.ID,
		GeneratedText: text,
		Status:        model.PostStatusPublished,
	}}))
}

func TestPublishJobSendsApprovedPosts(t *testing.T) {
	st := newPipelineStore()
	ctx := context.Background()
	seedApprovedPost(t, st, "p1", "first post")
	seedApprovedPost(t, st, "p2", "second post")

	sender := &fakeSender{}
	pub := events.NewMemory()
	clk := &fixedClock{now: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)}
	job := NewPublishJob(st, sender, pub, clk, "@channel", zap.NewNop())

	require.NoError(t, job.Run(ctx))
	require.Len(t, sender.sent, 2)

	sent, err := st.PostsByStatus(ctx, model.PostStatusSent)
	require.NoError(t, err)
	require.Len(t, sent, 2)
	require.Equal(t, clk.now, *sent[0].PublishedAt)

	evs := pub.Events()
	require.Len(t, evs, 1)
	require.Equal(t, events.TypePostPublished, evs[0].Type)
}

func TestPublishJobSkipsFailedDelivery(t *testing.T) {
	st := newPipelineStore()
	ctx := context.Background()
	seedApprovedPost(t, st, "p1", "deliverable post")
	seedApprovedPost(t, st, "p2", "undeliverable post")

	p2, err := st.GetPost(ctx, "p2")
	require.NoError(t, err)
	sender := &fakeSender{failURL: map[string]bool{RenderMessage(p2): true}}

	clk := &fixedClock{now: time.Date(2025, 3, 2, 10, 0, 0, 0, time.UTC)}
	job := NewPublishJob(st, sender, events.NewMemory(), clk, "@channel", zap.NewNop())

	require.NoError(t, job.Run(ctx))

	// The failing post stays approved for the next run.
	approved, err := st.PostsByStatus(ctx, model.PostStatusPublished)
	require.NoError(t, err)
	require.Len(t, approved, 1)
	require.Equal(t, "p2", approved[0].ID)

	sent, err := st.PostsByStatus(ctx, model.PostStatusSent)
	require.NoError(t, err)
	require.Len(t, sent, 1)
	require.Equal(t, "p1", sent[0].ID)
}

func TestRenderMessage(t *testing.T) {
	post := model.Post{
		GeneratedText: "the post body",
		News:          model.NewsItem{URL: "https://a.example/1"},
		Keywords: []*model.Keyword{
			{Word: "go"},
			{Word: "databases"},
		},
	}
	msg := RenderMessage(post)
	require.Equal(t, "the post body\n\n#go #databases\n\n[Source](https://a.example/1)", msg)

	bare := RenderMessage(model.Post{GeneratedText: "just text"})
	require.Equal(t, "just text", bare)
}
