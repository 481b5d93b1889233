package collect

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/model"
	"github.com/newsforge/newsforge/internal/telemetry"
)

// Extractor turns one source endpoint into candidate items. limit bounds
// the number of items for channel sources; site extractors ignore it.
type Extractor interface {
	Extract(ctx context.Context, limit int) ([]Candidate, error)
}

// ExtractorResolver maps a source name to its extractor. Resolution
// happens once at configuration load; lookups here are plain map access.
type ExtractorResolver interface {
	Lookup(name string) (Extractor, bool)
}

// SourceLister provides the enabled sources for a collection run.
type SourceLister interface {
	EnabledSources(ctx context.Context) ([]model.Source, error)
}

// Config controls filtering behavior.
type Config struct {
	// Keywords is the relevance filter; empty disables filtering.
	Keywords []string
}

// Collector runs all enabled source extractors concurrently and merges
// their output into a validated, deduplicated, filtered, ordered list.
type Collector struct {
	sources  SourceLister
	resolver ExtractorResolver
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Collector.
func New(sources SourceLister, resolver ExtractorResolver, cfg Config, logger *zap.Logger) *Collector {
	return &Collector{
		sources:  sources,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	}
}

// Collect fans out over all enabled sources, waits for every extractor
// to finish or fail, and returns the merged candidate list. A failing
// extractor contributes zero items and never aborts the others.
func (c *Collector) Collect(ctx context.Context, channelLimit int) ([]Candidate, error) {
	srcs, err := c.sources.EnabledSources(ctx)
	if err != nil {
		return nil, err
	}

	results := make([][]Candidate, len(srcs))
	var wg sync.WaitGroup
	for i, src := range srcs {
		extractor, ok := c.resolver.Lookup(src.Name)
		if !ok {
			c.logger.Error("no extractor registered for source", zap.String("source", src.Name))
			continue
		}
		limit := 0
		if src.Kind == model.SourceKindChannel {
			limit = channelLimit
		}

		wg.Add(1)
		go func(i int, name string, ex Extractor, limit int) {
			defer wg.Done()
			items, err := ex.Extract(ctx, limit)
			if err != nil {
				c.logger.Error("source extraction failed",
					zap.String("source", name),
					zap.Error(err),
				)
				telemetry.SourceFailed(name)
				return
			}
			results[i] = items
			telemetry.ItemsCollected(name, len(items))
		}(i, src.Name, extractor, limit)
	}
	wg.Wait()

	// Merge in configured source order so repeated runs over identical
	// raw output produce identical results.
	var merged []Candidate
	for _, items := range results {
		merged = append(merged, items...)
	}
	c.logger.Info("collection run merged", zap.Int("raw_items", len(merged)))

	valid := c.validate(merged)
	unique := dedupe(valid)
	filtered := c.filter(unique)
	sortByRecency(filtered)

	c.logger.Info("collection run finished",
		zap.Int("validated", len(valid)),
		zap.Int("deduplicated", len(unique)),
		zap.Int("filtered", len(filtered)),
	)
	return filtered, nil
}

func (c *Collector) validate(items []Candidate) []Candidate {
	out := items[:0:0]
	for _, item := range items {
		if err := Validate(item); err != nil {
			c.logger.Warn("candidate dropped by validation",
				zap.String("url", item.URL),
				zap.String("source", item.SourceName),
				zap.Error(err),
			)
			telemetry.ItemDropped("validation")
			continue
		}
		out = append(out, item)
	}
	return out
}

// dedupe keeps the first occurrence of each URL, preserving insertion
// order. Dedup is by the exact URL string only.
func dedupe(items []Candidate) []Candidate {
	seen := make(map[string]struct{}, len(items))
	out := items[:0:0]
	for _, item := range items {
		if _, dup := seen[item.URL]; dup {
			telemetry.ItemDropped("duplicate")
			continue
		}
		seen[item.URL] = struct{}{}
		out = append(out, item)
	}
	return out
}

// filter keeps items whose title+summary contains at least one filter
// keyword, case-insensitively. An empty keyword list keeps everything.
func (c *Collector) filter(items []Candidate) []Candidate {
	if len(c.cfg.Keywords) == 0 {
		return items
	}
	out := items[:0:0]
	for _, item := range items {
		text := strings.ToLower(item.Title + " " + item.Summary)
		matched := false
		for _, kw := range c.cfg.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(kw)) {
				matched = true
				break
			}
		}
		if !matched {
			c.logger.Debug("candidate dropped by keyword filter", zap.String("url", item.URL))
			telemetry.ItemDropped("filter")
			continue
		}
		out = append(out, item)
	}
	return out
}

// sortByRecency orders newest first; items without a publication
// timestamp sort as oldest. The sort is stable so insertion order
// breaks ties.
func sortByRecency(items []Candidate) {
	sort.SliceStable(items, func(i, j int) bool {
		return publishedAt(items[i]).After(publishedAt(items[j]))
	})
}

func publishedAt(c Candidate) time.Time {
	if c.PublishedAt == nil {
		return time.Time{}
	}
	return *c.PublishedAt
}
