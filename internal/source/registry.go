// Package source contains the per-site extractors that turn fetched
// pages and feeds into collection candidates.
package source

import (
	"fmt"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/newsforge/newsforge/internal/collect"
	"github.com/newsforge/newsforge/internal/config"
	"github.com/newsforge/newsforge/internal/fetch"
	"github.com/newsforge/newsforge/internal/model"
)

// Parser names accepted in source configuration.
const (
	ParserHabr     = "habr"
	ParserRBC      = "rbc"
	ParserRSS      = "rss"
	ParserTelegram = "telegram"
)

// Registry maps source names to their extractors. Built once at boot.
type Registry struct {
	extractors map[string]collect.Extractor
}

var _ collect.ExtractorResolver = (*Registry)(nil)

// Lookup returns the extractor registered for the source name.
func (r *Registry) Lookup(name string) (collect.Extractor, bool) {
	ex, ok := r.extractors[name]
	return ex, ok
}

// BuildRegistry wires one extractor per configured source. An unknown
// parser name is a configuration error.
func BuildRegistry(cfgs []config.SourceConfig, fetcher fetch.Fetcher, logger *zap.Logger) (*Registry, error) {
	reg := &Registry{extractors: make(map[string]collect.Extractor, len(cfgs))}
	for _, cfg := range cfgs {
		var ex collect.Extractor
		switch cfg.Parser {
		case ParserHabr:
			ex = NewHabr(cfg, fetcher, logger)
		case ParserRBC:
			ex = NewRBC(cfg, fetcher, logger)
		case ParserRSS:
			ex = NewRSS(cfg, fetcher, logger)
		case ParserTelegram:
			ex = NewChannel(cfg, fetcher, logger)
		default:
			return nil, fmt.Errorf("source %q: unknown parser %q", cfg.Name, cfg.Parser)
		}
		reg.extractors[cfg.Name] = ex
	}
	return reg, nil
}

// Seeds converts configured sources into rows for boot-time seeding.
func Seeds(cfgs []config.SourceConfig) []model.Source {
	seeds := make([]model.Source, 0, len(cfgs))
	for _, cfg := range cfgs {
		seeds = append(seeds, model.Source{
			Kind:    model.SourceKind(cfg.Kind),
			Name:    cfg.Name,
			URL:     cfg.URL,
			Enabled: cfg.Enabled,
		})
	}
	return seeds
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return strings.TrimSpace(string(runes[:n]))
}

// parseTime accepts the loose timestamp formats sites put in their
// markup. Returns nil when nothing parses.
func parseTime(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	ts, err := dateparse.ParseAny(raw)
	if err != nil {
		return nil
	}
	ts = ts.UTC()
	return &ts
}
