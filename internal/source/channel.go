package source

import (
	"bytes"
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/config"
	"github.com/newsforge/newsforge/internal/fetch"
	"github.com/newsforge/newsforge/internal/model"
)

const channelTitleLimit = 80

// Channel extracts messages from a public Telegram channel through its
// t.me/s web mirror. The mirror lists messages oldest first; limit
// keeps the newest ones.
type Channel struct {
	name    string
	pageURL string
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

// NewChannel builds the extractor for one configured channel source.
// The configured URL is the mirror page, e.g. https://t.me/s/somechannel.
func NewChannel(cfg config.SourceConfig, fetcher fetch.Fetcher, logger *zap.Logger) *Channel {
	return &Channel{
		name:    cfg.Name,
		pageURL: cfg.URL,
		fetcher: fetcher,
		logger:  logger.With(zap.String("source", cfg.Name)),
	}
}

// Extract fetches the mirror page and parses its message blocks.
func (c *Channel) Extract(ctx context.Context, limit int) ([]collect.Candidate, error) {
	body, err := c.fetcher.Fetch(ctx, c.pageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.pageURL, err)
	}
	if body == nil {
		c.logger.Warn("channel mirror is gone", zap.String("url", c.pageURL))
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", c.pageURL, err)
	}

	var items []collect.Candidate
	doc.Find(".tgme_widget_message_wrap").Each(func(_ int, sel *goquery.Selection) {
		text := sel.Find(".tgme_widget_message_text").Text()
		link, ok := sel.Find("a.tgme_widget_message_date").Attr("href")
		if !ok || text == "" {
			return
		}
		cand := collect.Candidate{
			Title:      truncate(text, channelTitleLimit),
			URL:        link,
			Summary:    truncate(text, 500),
			RawText:    text,
			SourceName: c.name,
			SourceKind: model.SourceKindChannel,
			SourceURL:  c.pageURL,
		}
		if dt, ok := sel.Find("time").Attr("datetime"); ok {
			cand.PublishedAt = parseTime(dt)
		}
		items = append(items, cand)
	})

	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return items, nil
}
