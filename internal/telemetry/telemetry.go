// Package telemetry exposes Prometheus metrics for the pipeline.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	itemsCollectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsforge_items_collected_total",
			Help: "Candidate items produced per source before validation.",
		},
		[]string{"source"},
	)

	itemsDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsforge_items_dropped_total",
			Help: "Candidate items dropped, labeled by reason.",
		},
		[]string{"reason"},
	)

	sourceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsforge_source_failures_total",
			Help: "Extraction runs that failed, labeled by source.",
		},
		[]string{"source"},
	)

	generationOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "newsforge_generation_outcomes_total",
			Help: "Post generation attempts, labeled by outcome.",
		},
		[]string{"outcome"},
	)

	postsPublishedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsforge_posts_published_total",
			Help: "Posts delivered to the destination channel.",
		},
	)

	keywordsAttachedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsforge_keywords_attached_total",
			Help: "Keywords attached to posts by the tagger.",
		},
	)

	postsPurgedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "newsforge_posts_purged_total",
			Help: "Dead posts removed by the cleanup sweep.",
		},
	)

	rateLimitWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "newsforge_rate_limit_wait_seconds",
			Help:    "Delay introduced by the generation-call rate limiter.",
			Buckets: []float64{0.1, 0.5, 1, 5, 20, 60, 120},
		},
	)
)

// ItemsCollected records candidates produced by one source run.
func ItemsCollected(source string, count int) {
	itemsCollectedTotal.WithLabelValues(source).Add(float64(count))
}

// ItemDropped records one candidate dropped for the given reason
// (validation, duplicate, filter).
func ItemDropped(reason string) {
	itemsDroppedTotal.WithLabelValues(reason).Inc()
}

// SourceFailed records one failed extraction run.
func SourceFailed(source string) {
	sourceFailuresTotal.WithLabelValues(source).Inc()
}

// GenerationOutcome records one generation attempt outcome
// (success, too_short, error, rate_limited, skipped).
func GenerationOutcome(outcome string) {
	generationOutcomesTotal.WithLabelValues(outcome).Inc()
}

// PostPublished records one successful channel delivery.
func PostPublished() {
	postsPublishedTotal.Inc()
}

// KeywordsAttached records keywords attached to a post.
func KeywordsAttached(count int) {
	keywordsAttachedTotal.Add(float64(count))
}

// PostsPurged records posts removed by cleanup.
func PostsPurged(count int) {
	postsPurgedTotal.Add(float64(count))
}

// ObserveRateLimitDelay records time spent waiting in the limiter.
func ObserveRateLimitDelay(d time.Duration) {
	rateLimitWaitSeconds.Observe(d.Seconds())
}

// Handler returns the Prometheus scrape handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
