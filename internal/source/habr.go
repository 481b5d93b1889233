package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/config"
	"github.com/newsforge/newsforge/internal/fetch"
	"github.com/newsforge/newsforge/internal/model"
)

const habrSummaryLimit = 500

// Habr extracts articles from a Habr listing page.
type Habr struct {
	name    string
	listURL string
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

// NewHabr builds the extractor for one configured Habr source.
func NewHabr(cfg config.SourceConfig, fetcher fetch.Fetcher, logger *zap.Logger) *Habr {
	return &Habr{
		name:    cfg.Name,
		listURL: cfg.URL,
		fetcher: fetcher,
		logger:  logger.With(zap.String("source", cfg.Name)),
	}
}

// Extract fetches the listing page and parses every article card on it.
// The limit parameter applies to channel sources only and is ignored.
func (h *Habr) Extract(ctx context.Context, _ int) ([]collect.Candidate, error) {
	body, err := h.fetcher.Fetch(ctx, h.listURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", h.listURL, err)
	}
	if body == nil {
		h.logger.Warn("listing page is gone", zap.String("url", h.listURL))
		return nil, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", h.listURL, err)
	}
	base, err := url.Parse(h.listURL)
	if err != nil {
		return nil, fmt.Errorf("bad source url %s: %w", h.listURL, err)
	}

	var items []collect.Candidate
	doc.Find("article.tm-articles-list__item").Each(func(_ int, sel *goquery.Selection) {
		link := sel.Find("a.tm-title__link")
		href, ok := link.Attr("href")
		if !ok {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			h.logger.Debug("article card carries unparseable href", zap.String("href", href))
			return
		}

		cand := collect.Candidate{
			Title:      truncate(link.Text(), 300),
			URL:        base.ResolveReference(ref).String(),
			Summary:    truncate(sel.Find(".article-formatted-body").Text(), habrSummaryLimit),
			SourceName: h.name,
			SourceKind: model.SourceKindSite,
			SourceURL:  h.listURL,
		}
		if dt, ok := sel.Find("time").Attr("datetime"); ok {
			cand.PublishedAt = parseTime(dt)
		}
		if cand.Summary == "" {
			cand.Summary = cand.Title
		}
		items = append(items, cand)
	})
	return items, nil
}
