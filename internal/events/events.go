// Package events emits pipeline notifications to downstream consumers.
package events

import (
	"context"
	"time"
)

// Event types emitted by the pipeline jobs.
const (
	TypeNewsCollected  = "news.collected"
	TypePostGenerated  = "post.generated"
	TypePostPublished  = "post.published"
	TypePostsPurged    = "posts.purged"
	TypeSourceDisabled = "source.disabled"
)

// Event is one pipeline notification.
type Event struct {
	Type    string         `json:"type"`
	At      time.Time      `json:"at"`
	Payload map[string]any `json:"payload,omitempty"`
}

// Publisher delivers events. Publication failures are logged by
// callers, never propagated into job results.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop discards everything. Used when no broker is configured.
type Nop struct{}

var _ Publisher = Nop{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
