package pipeline

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/events"
	"github.com/newsforge/newsforge/internal/gen"
	"github.com/newsforge/newsforge/internal/model"
	"github.com/newsforge/newsforge/internal/store"
)

func newGenerateJob(st *store.Memory, g *fakeGenerator, pub events.Publisher, cfg GenerateConfig) (*GenerateJob, *fakeSleeper, *nopLimiter) {
	sleeper := &fakeSleeper{}
	limiter := &nopLimiter{}
	clk := &fixedClock{now: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)}
	job := NewGenerateJob(st, g, limiter, sleeper, clk, pub, cfg, zap.NewNop())
	return job, sleeper, limiter
}

func defaultGenerateConfig() GenerateConfig {
	return GenerateConfig{
		MaxPerRun:     3,
		RetryCeiling:  3,
		MinTextLength: 20,
		Cooldown:      time.Minute,
	}
}

func TestGenerateJobSuccess(t *testing.T) {
	st := newPipelineStore()
	ctx := context.Background()
	seedNews(t, st, "https://a.example/1")

	g := &fakeGenerator{textFn: func(input string) (string, error) {
		return "a generated post comfortably over the minimum", nil
	}}
	pub := events.NewMemory()
	job, _, limiter := newGenerateJob(st, g, pub, defaultGenerateConfig())

	require.NoError(t, job.Run(ctx))
	require.Equal(t, 1, limiter.acquired)

	items, err := st.NewsForGeneration(ctx, 0)
	require.NoError(t, err)
	require.Empty(t, items)

	posts, err := st.PostsByStatus(ctx, model.PostStatusNew)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "a generated post comfortably over the minimum", posts[0].GeneratedText)
	require.Zero(t, posts[0].RetryCount)
	require.Empty(t, posts[0].ErrorMessage)

	evs := pub.Events()
	require.Len(t, evs, 1)
	require.Equal(t, events.TypePostGenerated, evs[0].Type)
}

func TestGenerateJobHonorsPerRunCap(t *testing.T) {
	st := newPipelineStore()
	ctx := context.Background()
	seedNews(t, st,
		"https://a.example/1", "https://a.example/2", "https://a.example/3",
		"https://a.example/4", "https://a.example/5",
	)

	g := &fakeGenerator{textFn: func(input string) (string, error) {
		return "a generated post comfortably over the minimum", nil
	}}
	job, _, _ := newGenerateJob(st, g, events.NewMemory(), defaultGenerateConfig())

	require.NoError(t, job.Run(ctx))
	require.Equal(t, 3, g.textCalls)

	remaining, err := st.NewsForGeneration(ctx, 0)
	require.NoError(t, err)
	require.Len(t, remaining, 2)
}

func TestGenerateJobRetriesToFailedThenArchives(t *testing.T) {
	st := newPipelineStore()
	ctx := context.Background()
	seedNews(t, st, "https://a.example/1")

	g := &fakeGenerator{textFn: func(input string) (string, error) {
		return "", fmt.Errorf("%w: boom", gen.ErrService)
	}}
	job, _, _ := newGenerateJob(st, g, events.NewMemory(), defaultGenerateConfig())

	// Two failures stay retryable.
	for run := 1; run <= 2; run++ {
		require.NoError(t, job.Run(ctx))
		items, err := st.NewsForGeneration(ctx, 0)
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, run, items[0].Post.RetryCount)
		require.Equal(t, model.PostStatusNew, items[0].Post.Status)
		require.Contains(t, items[0].Post.ErrorMessage, "boom")
	}

	// The third failure hits the ceiling.
	require.NoError(t, job.Run(ctx))
	failed, err := st.PostsByStatus(ctx, model.PostStatusFailed)
	require.NoError(t, err)
	require.Len(t, failed, 1)
	require.Equal(t, 3, failed[0].RetryCount)

	// The next run parks the exhausted post without calling the service.
	calls := g.textCalls
	require.NoError(t, job.Run(ctx))
	require.Equal(t, calls, g.textCalls)
	archived, err := st.PostsByStatus(ctx, model.PostStatusArchived)
	require.NoError(t, err)
	require.Len(t, archived, 1)
}

func TestGenerateJobTooShortCountsAsFailure(t *testing.T) {
	st := newPipelineStore()
	ctx := context.Background()
	seedNews(t, st, "https://a.example/1")

	g := &fakeGenerator{textFn: func(input string) (string, error) {
		return "tiny", nil
	}}
	job, _, _ := newGenerateJob(st, g, events.NewMemory(), defaultGenerateConfig())

	require.NoError(t, job.Run(ctx))

	items, err := st.NewsForGeneration(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 1, items[0].Post.RetryCount)
	require.Contains(t, items[0].Post.ErrorMessage, "too short")
}

func TestGenerateJobRateLimitEndsRunWithoutCharge(t *testing.T) {
	st := newPipelineStore()
	ctx := context.Background()
	seedNews(t, st, "https://a.example/1", "https://a.example/2")

	g := &fakeGenerator{textFn: func(input string) (string, error) {
		return "", fmt.Errorf("%w: slow down", gen.ErrRateLimited)
	}}
	job, sleeper, _ := newGenerateJob(st, g, events.NewMemory(), defaultGenerateConfig())

	require.NoError(t, job.Run(ctx))

	// One call, one cooldown, nothing persisted.
	require.Equal(t, 1, g.textCalls)
	require.Equal(t, []time.Duration{time.Minute}, sleeper.slept)
	items, err := st.NewsForGeneration(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Nil(t, items[0].Post)
}

func TestGenerateJobLimiterErrorAborts(t *testing.T) {
	st := newPipelineStore()
	seedNews(t, st, "https://a.example/1")

	g := &fakeGenerator{textFn: func(string) (string, error) { return "", nil }}
	sleeper := &fakeSleeper{}
	clk := &fixedClock{now: time.Date(2025, 3, 2, 9, 0, 0, 0, time.UTC)}
	job := NewGenerateJob(st, g, failingLimiter{}, sleeper, clk, events.NewMemory(), defaultGenerateConfig(), zap.NewNop())

	require.Error(t, job.Run(context.Background()))
	require.Zero(t, g.textCalls)
}

func TestGenerateJobBoundsBacklogReads(t *testing.T) {
	st := newPipelineStore()
	ctx := context.Background()
	urls := make([]string, 0, 20)
	for i := 0; i < 20; i++ {
		urls = append(urls, fmt.Sprintf("https://a.example/%d", i))
	}
	seedNews(t, st, urls...)

	g := &fakeGenerator{textFn: func(input string) (string, error) {
		return "", fmt.Errorf("%w: boom", gen.ErrService)
	}}
	job, _, _ := newGenerateJob(st, g, events.NewMemory(), defaultGenerateConfig())

	// A run where every call fails must not sweep the whole backlog.
	require.NoError(t, job.Run(ctx))
	require.Equal(t, 15, g.textCalls)
}

func TestGenerateJobSkipsItemsWithoutText(t *testing.T) {
	st := newPipelineStore()
	ctx := context.Background()
	_, err := st.SaveNews(ctx, []collect.Candidate{{
		Title:      "Headline only",
		URL:        "https://a.example/bare",
		SourceName: "alpha",
		SourceKind: model.SourceKindSite,
		SourceURL:  "https://alpha.example",
	}})
	require.NoError(t, err)

	g := &fakeGenerator{textFn: func(input string) (string, error) {
		return "a generated post comfortably over the minimum", nil
	}}
	job, _, _ := newGenerateJob(st, g, events.NewMemory(), defaultGenerateConfig())

	require.NoError(t, job.Run(ctx))

	// No text to feed the service, so no call and no post.
	require.Zero(t, g.textCalls)
	items, err := st.NewsForGeneration(ctx, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Nil(t, items[0].Post)
}

func TestGenerateJobRecoversAfterShortResults(t *testing.T) {
	st := newPipelineStore()
	ctx := context.Background()
	seedNews(t, st, "https://a.example/1")

	calls := 0
	g := &fakeGenerator{textFn: func(input string) (string, error) {
		calls++
		if calls <= 2 {
			return "tiny", nil
		}
		return "a generated post comfortably over the minimum", nil
	}}
	job, _, _ := newGenerateJob(st, g, events.NewMemory(), defaultGenerateConfig())

	for run := 1; run <= 2; run++ {
		require.NoError(t, job.Run(ctx))
		items, err := st.NewsForGeneration(ctx, 0)
		require.NoError(t, err)
		require.Len(t, items, 1)
		require.Equal(t, run, items[0].Post.RetryCount)
		require.Equal(t, model.PostStatusNew, items[0].Post.Status)
		require.Contains(t, items[0].Post.ErrorMessage, "too short")
	}

	// A good result clears the retry ledger.
	require.NoError(t, job.Run(ctx))
	posts, err := st.PostsByStatus(ctx, model.PostStatusNew)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	require.Equal(t, "a generated post comfortably over the minimum", posts[0].GeneratedText)
	require.Zero(t, posts[0].RetryCount)
	require.Empty(t, posts[0].ErrorMessage)
}

type failingLimiter struct{}

func (failingLimiter) Acquire(context.Context) error {
	return errors.New("limiter closed")
}
