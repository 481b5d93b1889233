// Package collect gathers, validates, and orders candidate news items
// from all configured sources.
package collect

import (
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/newsforge/newsforge/internal/model"
)

// Title length bounds enforced on every raw candidate.
const (
	MinTitleLen = 3
	MaxTitleLen = 300
)

// Candidate is one raw item produced by a source extractor, not yet
// persisted.
type Candidate struct {
	Title       string
	URL         string
	Summary     string
	RawText     string
	PublishedAt *time.Time
	SourceName  string
	SourceKind  model.SourceKind
	SourceURL   string
}

// ValidationError describes why a candidate was dropped. Dropped
// candidates are never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid candidate: %s %s", e.Field, e.Reason)
}

// Validate checks the candidate against the ingestion schema.
func Validate(c Candidate) error {
	titleLen := utf8.RuneCountInString(c.Title)
	if titleLen < MinTitleLen {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("shorter than %d chars", MinTitleLen)}
	}
	if titleLen > MaxTitleLen {
		return &ValidationError{Field: "title", Reason: fmt.Sprintf("longer than %d chars", MaxTitleLen)}
	}
	if c.URL == "" {
		return &ValidationError{Field: "url", Reason: "is required"}
	}
	if c.Summary == "" {
		return &ValidationError{Field: "summary", Reason: "is required"}
	}
	if c.SourceName == "" {
		return &ValidationError{Field: "source", Reason: "name is required"}
	}
	if c.SourceKind != model.SourceKindSite && c.SourceKind != model.SourceKindChannel {
		return &ValidationError{Field: "source", Reason: fmt.Sprintf("kind %q is unknown", c.SourceKind)}
	}
	return nil
}
