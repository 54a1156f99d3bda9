// Package keyword provides keyword (BM25) indexing and search over articles.
package keyword

import (
	"context"

	"github.com/aijose/news-summary-agent-sub001/internal/models"
)

// Index defines keyword search operations over articles.
type Index interface {
	Index(ctx context.Context, article *models.Article) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, articleID string) error
	DocCount() (uint64, error)
	Close() error
}

// Result is a single keyword search hit.
type Result struct {
	ArticleID string
	Score     float64
}
