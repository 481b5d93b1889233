// Package store persists sources, news items, posts and keywords.
//
// Two implementations exist: a Postgres-backed one via GORM and an
// in-memory one used by tests and by runs without a configured DSN.
// Every multi-row mutation happens in one transaction so a crashed job
// run leaves no partial state behind.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/model"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: not found")

// GenerationItem pairs a news item with its post. Post is nil when no
// generation attempt has been recorded yet.
type GenerationItem struct {
	News model.NewsItem
	Post *model.Post
}

// SaveNewsResult reports the outcome of one ingest transaction.
type SaveNewsResult struct {
	Stored  int
	Skipped int
}

// Store is the persistence surface consumed by the pipeline jobs and
// the HTTP API.
type Store interface {
	// EnabledSources lists sources eligible for a collection run, in
	// name order.
	EnabledSources(ctx context.Context) ([]model.Source, error)
	// ListSources lists every source in name order.
	ListSources(ctx context.Context) ([]model.Source, error)
	// SeedSources inserts configured sources that do not exist yet,
	// matched by name. Existing rows are left untouched so an operator
	// toggle survives restarts.
	SeedSources(ctx context.Context, sources []model.Source) error
	// SetSourceEnabled flips a source's enabled flag.
	SetSourceEnabled(ctx context.Context, id string, enabled bool) (model.Source, error)

	// SaveNews stores candidates as news items in one transaction.
	// A candidate whose URL is already stored is skipped silently.
	SaveNews(ctx context.Context, items []collect.Candidate) (SaveNewsResult, error)
	// ListNews returns the most recently stored items, newest first.
	ListNews(ctx context.Context, limit int) ([]model.NewsItem, error)

	// NewsForGeneration returns items with no post yet or whose
	// non-terminal post still has no generated text, oldest stored
	// first. limit <= 0 means no limit.
	NewsForGeneration(ctx context.Context, limit int) ([]GenerationItem, error)
	// SavePosts upserts post rows by ID in one transaction.
	SavePosts(ctx context.Context, posts []model.Post) error

	// PostsNeedingKeywords returns posts with generated text in the
	// new or generated state that carry no keywords yet.
	PostsNeedingKeywords(ctx context.Context) ([]model.Post, error)
	// AttachKeywords links normalized words to a post, creating keyword
	// rows as needed. Attaching an already-linked word is a no-op.
	AttachKeywords(ctx context.Context, postID string, words []string) error

	// GetPost loads one post with its news item and keywords.
	GetPost(ctx context.Context, id string) (model.Post, error)
	// PostsByStatus lists posts in the state, oldest first, with their
	// news item and keywords loaded.
	PostsByStatus(ctx context.Context, status model.PostStatus) ([]model.Post, error)
	// UpdatePostStatus moves a post into the given state.
	UpdatePostStatus(ctx context.Context, id string, status model.PostStatus) (model.Post, error)
	// MarkPostsSent moves posts to sent with their delivery timestamp
	// in one transaction.
	MarkPostsSent(ctx context.Context, ids []string, at time.Time) error
	// DeletePost removes a post and its keyword links. The news item
	// stays.
	DeletePost(ctx context.Context, id string) error

	// ListKeywords lists every keyword in word order.
	ListKeywords(ctx context.Context) ([]model.Keyword, error)
	// DeleteKeyword removes a keyword and its post links.
	DeleteKeyword(ctx context.Context, id string) error

	// PurgeOldPosts deletes up to limit posts in the given states whose
	// post row is older than before, together with their news items.
	// Returns the number of posts removed.
	PurgeOldPosts(ctx context.Context, before time.Time, statuses []model.PostStatus, limit int) (int, error)
}
