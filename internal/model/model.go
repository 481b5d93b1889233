// Package model defines the persisted entities shared across subsystems.
package model

import (
	"strings"
	"time"
)

// SourceKind distinguishes how a source is scraped.
type SourceKind string

// Source kinds persisted on source rows.
const (
	SourceKindSite    SourceKind = "site"
	SourceKindChannel SourceKind = "channel"
)

// PostStatus represents the lifecycle state of a generated post.
type PostStatus string

// Post status values. Sent and archived are terminal.
const (
	PostStatusNew       PostStatus = "new"
	PostStatusGenerated PostStatus = "generated"
	PostStatusPublished PostStatus = "published"
	PostStatusSent      PostStatus = "sent"
	PostStatusFailed    PostStatus = "failed"
	PostStatusArchived  PostStatus = "archived"
)

// Terminal reports whether no further pipeline work applies to the status.
func (s PostStatus) Terminal() bool {
	return s == PostStatusSent || s == PostStatusArchived
}

// Valid reports whether the status is one of the known values.
func (s PostStatus) Valid() bool {
	switch s {
	case PostStatusNew, PostStatusGenerated, PostStatusPublished,
		PostStatusSent, PostStatusFailed, PostStatusArchived:
		return true
	}
	return false
}

// Source is a configured origin of news items. Disabled sources are
// excluded from every collection run; sources are never auto-deleted.
type Source struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	Kind      SourceKind `gorm:"not null" json:"kind"`
	Name      string     `gorm:"not null;uniqueIndex" json:"name"`
	URL       string     `json:"url"`
	Enabled   bool       `gorm:"not null;default:true" json:"enabled"`
	CreatedAt time.Time  `json:"created_at"`

	NewsItems []NewsItem `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// NewsItem is one ingested article or channel message. Immutable once
// stored; URL uniqueness is enforced by the storage layer.
type NewsItem struct {
	ID          string     `gorm:"primaryKey" json:"id"`
	Title       string     `gorm:"size:300;not null" json:"title"`
	URL         string     `gorm:"not null;uniqueIndex" json:"url"`
	Summary     string     `gorm:"type:text;not null" json:"summary"`
	RawText     string     `gorm:"type:text" json:"raw_text,omitempty"`
	SourceID    string     `gorm:"not null;index" json:"source_id"`
	Source      Source     `json:"-"`
	PublishedAt *time.Time `gorm:"index" json:"published_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`

	Post *Post `gorm:"constraint:OnDelete:CASCADE" json:"-"`
}

// Post is the generated artifact tied 1:1 to a NewsItem.
type Post struct {
	ID            string     `gorm:"primaryKey" json:"id"`
	NewsID        string     `gorm:"not null;uniqueIndex" json:"news_id"`
	News          NewsItem   `json:"-"`
	GeneratedText string     `gorm:"type:text" json:"generated_text,omitempty"`
	Status        PostStatus `gorm:"not null;default:new;index" json:"status"`
	RetryCount    int        `gorm:"not null;default:0" json:"retry_count"`
	ErrorMessage  string     `json:"error_message,omitempty"`
	PublishedAt   *time.Time `json:"published_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`

	Keywords []*Keyword `gorm:"many2many:post_keywords" json:"keywords"`
}

// HasKeyword reports whether the post already carries the word.
func (p *Post) HasKeyword(word string) bool {
	word = NormalizeKeyword(word)
	for _, kw := range p.Keywords {
		if kw.Word == word {
			return true
		}
	}
	return false
}

// Keyword is a normalized tag word, globally unique by its lowercase form.
type Keyword struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Word      string    `gorm:"size:50;not null;uniqueIndex" json:"word"`
	CreatedAt time.Time `json:"created_at"`

	Posts []*Post `gorm:"many2many:post_keywords" json:"-"`
}

// NormalizeKeyword lowercases and trims a tag word, dropping any hashtag
// prefix the generation service left on it.
func NormalizeKeyword(word string) string {
	word = strings.TrimSpace(strings.ToLower(word))
	return strings.TrimPrefix(word, "#")
}
