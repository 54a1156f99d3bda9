// Package models defines core data structures for articles, feeds, summaries, and reports.
package models

import "time"

// SummaryKind is the closed set of summary styles the cache can produce.
type SummaryKind string

const (
	SummaryBrief         SummaryKind = "brief"
	SummaryComprehensive SummaryKind = "comprehensive"
	SummaryAnalytical    SummaryKind = "analytical"
)

// ValidSummaryKind reports whether k is one of the supported summary kinds.
func ValidSummaryKind(k SummaryKind) bool {
	switch k {
	case SummaryBrief, SummaryComprehensive, SummaryAnalytical:
		return true
	}
	return false
}

// Article is a stored news article. Core fields are immutable after creation;
// only Metadata may be amended (e.g. attaching a cached brief summary).
type Article struct {
	ID          string                 `json:"id" db:"id"`
	Title       string                 `json:"title" db:"title"`
	Content     string                 `json:"content" db:"content"`
	Source      string                 `json:"source" db:"source"`
	URL         string                 `json:"url" db:"url"`
	PublishedAt *time.Time             `json:"published_at,omitempty" db:"published_at"`
	Metadata    map[string]interface{} `json:"metadata,omitempty" db:"metadata"`
	Fingerprint string                 `json:"fingerprint" db:"fingerprint"`
	CreatedAt   time.Time              `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at" db:"updated_at"`
}

// ArticleSummary is a cached LLM summary for one (article, kind) pair.
// At most one row per pair is persisted; regeneration overwrites it.
type ArticleSummary struct {
	ID          string      `json:"id" db:"id"`
	ArticleID   string      `json:"article_id" db:"article_id"`
	Kind        SummaryKind `json:"kind" db:"kind"`
	SummaryText string      `json:"summary_text" db:"summary_text"`
	WordCount   int         `json:"word_count" db:"word_count"`
	GeneratedAt time.Time   `json:"generated_at" db:"generated_at"`
	// Cached distinguishes a cache hit from a fresh generation. Not persisted.
	Cached bool `json:"cached" db:"-"`
}

// ArticleRef is the provenance record for one article contributing to a
// multi-perspective analysis.
type ArticleRef struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Source      string     `json:"source"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// MultiArticleAnalysis is an on-demand LLM synthesis over a set of articles
// around a shared focus. Keyed by (sorted article ids, focus).
type MultiArticleAnalysis struct {
	AnalysisText    string       `json:"analysis_text"`
	Focus           string       `json:"focus"`
	Articles        []ArticleRef `json:"articles"`
	SourceDiversity []string     `json:"source_diversity"`
	GeneratedAt     time.Time    `json:"generated_at"`
	Cached          bool         `json:"cached"`
}

// RSSFeed is a configured feed. Owned by the configuration layer and
// consumed read-only by the fetcher.
type RSSFeed struct {
	ID            string     `json:"id" db:"id"`
	Name          string     `json:"name" db:"name"`
	URL           string     `json:"url" db:"url"`
	Enabled       bool       `json:"enabled" db:"enabled"`
	Tags          []string   `json:"tags,omitempty" db:"tags"`
	LastFetchedAt *time.Time `json:"last_fetched_at,omitempty" db:"last_fetched_at"`
}

// ReadingListItem saves an article for later reading. At most one entry per
// article; adds are idempotent.
type ReadingListItem struct {
	ArticleID string    `json:"article_id" db:"article_id"`
	Note      string    `json:"note,omitempty" db:"note"`
	AddedAt   time.Time `json:"added_at" db:"added_at"`
}
