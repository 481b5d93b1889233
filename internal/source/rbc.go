package source

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/config"
	"github.com/newsforge/newsforge/internal/fetch"
	"github.com/newsforge/newsforge/internal/model"
)

const rbcSummaryLimit = 400

// RBC extracts articles from an RBC news listing. Each article is
// fetched individually for its body text; a failing article fetch
// degrades that item to its title instead of failing the source.
type RBC struct {
	name    string
	listURL string
	fetcher fetch.Fetcher
	logger  *zap.Logger
}

// NewRBC builds the extractor for one configured RBC source.
func NewRBC(cfg config.SourceConfig, fetcher fetch.Fetcher, logger *zap.Logger) *RBC {
	return &RBC{
		name:    cfg.Name,
		listURL: cfg.URL,
		fetcher: fetcher,
		logger:  logger.With(zap.String("source", cfg.Name)),
	}
}

// Extract parses the listing and enriches every entry with article text.
func (r *RBC) Extract(ctx context.Context, _ int) ([]collect.Candidate, error) {
	body, err := r.fetcher.Fetch(ctx, r.listURL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", r.listURL, err)
	}
	if body == nil {
		r.logger.Warn("listing page is gone", zap.String("url", r.listURL))
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", r.listURL, err)
	}

	var items []collect.Candidate
	doc.Find("a.item__link").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		title := sel.Find(".item__title").Text()
		if strings.TrimSpace(title) == "" {
			title = sel.Text()
		}
		cand := collect.Candidate{
			Title:      truncate(title, 300),
			URL:        href,
			SourceName: r.name,
			SourceKind: model.SourceKindSite,
			SourceURL:  r.listURL,
		}
		cand.Summary, cand.PublishedAt = r.article(ctx, href)
		if cand.Summary == "" {
			cand.Summary = cand.Title
		}
		items = append(items, cand)
	})
	return items, nil
}

// article fetches one article page and pulls its lead text and
// publication timestamp. Errors degrade to empty values.
func (r *RBC) article(ctx context.Context, url string) (string, *time.Time) {
	body, err := r.fetcher.Fetch(ctx, url)
	if err != nil || body == nil {
		r.logger.Warn("article fetch failed", zap.String("url", url), zap.Error(err))
		return "", nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		r.logger.Warn("article parse failed", zap.String("url", url), zap.Error(err))
		return "", nil
	}

	var paragraphs []string
	doc.Find(".article__text p").Each(func(_ int, p *goquery.Selection) {
		if text := strings.TrimSpace(p.Text()); text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	summary := truncate(strings.Join(paragraphs, " "), rbcSummaryLimit)

	var published *time.Time
	if dt, ok := doc.Find(".article__header__date").Attr("content"); ok {
		published = parseTime(dt)
	}
	return summary, published
}
