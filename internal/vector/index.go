// Package vector provides the embedding index for semantic retrieval. The
// index is a derived, rebuildable projection of the relational store keyed
// by article id; it is never authoritative and is allowed to lag behind.
package vector

import (
	"context"
	"errors"
	"time"
)

// ErrNotIndexed is returned when a requested article has no vector record.
var ErrNotIndexed = errors.New("article not indexed")

// Metadata holds denormalized snippet fields carried with each vector so
// results can be displayed without a relational join.
type Metadata struct {
	Title       string     `json:"title"`
	Source      string     `json:"source"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// Record is one stored embedding, 1:1 with a non-deleted article.
type Record struct {
	ArticleID string    `json:"article_id"`
	Vector    []float32 `json:"vector"`
	Meta      Metadata  `json:"meta"`
}

// Result is a single similarity hit. Score is a normalized float in [0, 1]
// for unit-length vectors.
type Result struct {
	ArticleID string
	Score     float64
	Meta      Metadata
}

// Index defines vector storage and nearest-neighbor search.
type Index interface {
	Upsert(ctx context.Context, articleID string, vec []float32, meta Metadata) error
	Query(ctx context.Context, vec []float32, k int) ([]*Result, error)
	Get(ctx context.Context, articleID string) (*Record, error)
	Delete(ctx context.Context, articleIDs []string) (int, error)
	// IDs returns every indexed article id; used by the reconciliation query.
	IDs() []string
	Size() int
	Save(path string) error
	Load(path string) error
	Close() error
}
