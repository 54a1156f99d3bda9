// Package storage defines the persistence interface for articles, summaries,
// feeds, and reading-list entries. The relational store is the source of
// truth for article existence and identity.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/aijose/news-summary-agent-sub001/internal/models"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateFingerprint is returned when an article insert collides
	// with the fingerprint (or URL) uniqueness constraint. Ingestion treats
	// this as a dedup no-op, not a failure.
	ErrDuplicateFingerprint = errors.New("duplicate fingerprint")
)

// Store defines article, summary, feed, and reading-list persistence.
type Store interface {
	// Article operations
	CreateArticle(ctx context.Context, a *models.Article) error
	GetArticle(ctx context.Context, id string) (*models.Article, error)
	GetArticleByFingerprint(ctx context.Context, fingerprint string) (*models.Article, error)
	UpdateArticleMetadata(ctx context.Context, id string, metadata map[string]interface{}) error
	ListArticles(ctx context.Context, offset, limit int) ([]*models.Article, error)
	CountArticles(ctx context.Context) (int64, error)
	ListSources(ctx context.Context) ([]string, error)

	// Cleanup selection and deletion. SelectArticleIDs and
	// CountArticlesBySource use identical filter logic so a preview and the
	// deletion that follows it cannot diverge.
	SelectArticleIDs(ctx context.Context, filters models.CleanupFilters) ([]string, error)
	CountArticlesBySource(ctx context.Context, filters models.CleanupFilters) (map[string]int, error)
	DeleteArticles(ctx context.Context, ids []string) (int, error)
	ExistingArticleIDs(ctx context.Context, ids []string) (map[string]bool, error)

	// Summary operations
	UpsertSummary(ctx context.Context, s *models.ArticleSummary) error
	GetSummary(ctx context.Context, articleID string, kind models.SummaryKind) (*models.ArticleSummary, error)
	ListSummaries(ctx context.Context, articleID string) ([]*models.ArticleSummary, error)
	DeleteSummaries(ctx context.Context, articleIDs []string) (int, error)

	// Feed operations
	UpsertFeed(ctx context.Context, f *models.RSSFeed) error
	ListFeeds(ctx context.Context, enabledOnly bool) ([]*models.RSSFeed, error)
	TouchFeedFetched(ctx context.Context, feedID string, at time.Time) error

	// Reading list
	AddReadingListItem(ctx context.Context, item *models.ReadingListItem) error
	ListReadingList(ctx context.Context) ([]*models.ReadingListItem, error)
	RemoveReadingListItem(ctx context.Context, articleID string) error

	Close() error
}
