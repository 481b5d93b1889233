package source

import (
	"bytes"
	"context"
	"fmt"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/config"
	"github.com/newsforge/newsforge/internal/fetch"
	"github.com/newsforge/newsforge/internal/model"
)

// RSS extracts items from any RSS or Atom feed.
type RSS struct {
	name    string
	feedURL string
	fetcher fetch.Fetcher
	logger  *zap.Logger
	parser  *gofeed.Parser
}

// NewRSS builds the extractor for one configured feed.
func NewRSS(cfg config.SourceConfig, fetcher fetch.Fetcher, logger *zap.Logger) *RSS {
	return &RSS{
		name:    cfg.Name,
		feedURL: cfg.URL,
		fetcher: fetcher,
		logger:  logger.With(zap.String("source", cfg.Name)),
		parser:  gofeed.NewParser(),
	}
}

// Extract fetches and parses the feed.
func (r *RSS) Extract(ctx context.Context, _ int) ([]collect.Candidate, error) {
	body, err := r.fetcher.Fetch(ctx, r.feedURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", r.feedURL, err)
	}
	if body == nil {
		r.logger.Warn("feed is gone", zap.String("url", r.feedURL))
		return nil, nil
	}

	feed, err := r.parser.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", r.feedURL, err)
	}

	items := make([]collect.Candidate, 0, len(feed.Items))
	for _, item := range feed.Items {
		cand := collect.Candidate{
			Title:      truncate(item.Title, 300),
			URL:        item.Link,
			Summary:    truncate(item.Description, 500),
			SourceName: r.name,
			SourceKind: model.SourceKindSite,
			SourceURL:  r.feedURL,
		}
		if item.PublishedParsed != nil {
			ts := item.PublishedParsed.UTC()
			cand.PublishedAt = &ts
		} else if item.UpdatedParsed != nil {
			ts := item.UpdatedParsed.UTC()
			cand.PublishedAt = &ts
		}
		if cand.Summary == "" {
			cand.Summary = cand.Title
		}
		items = append(items, cand)
	}
	return items, nil
}
