// Package cleanup implements filtered article deletion with a preview step,
// cross-store consistency reporting, and orphan reconciliation.
package cleanup

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/keyword"
	"github.com/aijose/news-summary-agent-sub001/internal/models"
	"github.com/aijose/news-summary-agent-sub001/internal/storage"
	"github.com/aijose/news-summary-agent-sub001/internal/vector"
)

// Coordinator runs cleanup previews and deletions. Preview and Delete share
// the store's filter logic, so a preview always describes exactly what the
// matching delete would remove.
type Coordinator struct {
	store    storage.Store
	vectors  vector.Index
	keywords keyword.Index // optional
	logger   *zap.Logger
}

// NewCoordinator creates a cleanup coordinator.
func NewCoordinator(store storage.Store, vectors vector.Index, keywords keyword.Index, logger *zap.Logger) *Coordinator {
	return &Coordinator{store: store, vectors: vectors, keywords: keywords, logger: logger}
}

// Preview reports what a delete with the same filters would remove, without
// removing anything.
func (c *Coordinator) Preview(ctx context.Context, filters models.CleanupFilters) (*models.CleanupPreview, error) {
	breakdown, err := c.store.CountArticlesBySource(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("preview cleanup: %w", err)
	}
	total := 0
	for _, n := range breakdown {
		total += n
	}
	return &models.CleanupPreview{
		TotalCount:      total,
		SourceBreakdown: breakdown,
		Filters:         filters,
	}, nil
}

// Delete removes the articles matching the filters. The matching id set is
// resolved once up front and every subsequent step operates on that set, so
// articles ingested mid-deletion are never touched. Relational deletion is
// authoritative; vector and keyword removal failures downgrade to a
// ConsistencyWarning on the report rather than failing the call, leaving
// orphans for Orphans to find.
func (c *Coordinator) Delete(ctx context.Context, filters models.CleanupFilters, opts models.CleanupOptions) (*models.DeletionReport, error) {
	ids, err := c.store.SelectArticleIDs(ctx, filters)
	if err != nil {
		return nil, fmt.Errorf("select articles: %w", err)
	}

	report := &models.DeletionReport{Filters: filters}
	if len(ids) == 0 {
		remaining, err := c.store.CountArticles(ctx)
		if err != nil {
			return nil, fmt.Errorf("count remaining: %w", err)
		}
		report.RemainingArticles = remaining
		return report, nil
	}

	if opts.DeleteSummaries {
		n, err := c.store.DeleteSummaries(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("delete summaries: %w", err)
		}
		report.DeletedSummariesCount = n
	}

	deleted, err := c.store.DeleteArticles(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("delete articles: %w", err)
	}
	report.DeletedCount = deleted

	if opts.DeleteFromVectorStore {
		c.deleteDerived(ctx, ids, report)
	}

	remaining, err := c.store.CountArticles(ctx)
	if err != nil {
		return nil, fmt.Errorf("count remaining: %w", err)
	}
	report.RemainingArticles = remaining

	c.logger.Info("cleanup completed",
		zap.Int("deleted", report.DeletedCount),
		zap.Int("summaries", report.DeletedSummariesCount),
		zap.Bool("warning", report.Warning != nil),
	)
	return report, nil
}

// deleteDerived removes the ids from the vector and keyword indices,
// recording partial failure as a warning.
func (c *Coordinator) deleteDerived(ctx context.Context, ids []string, report *models.DeletionReport) {
	removed, err := c.vectors.Delete(ctx, ids)
	report.DeletedFromVector = removed
	if err != nil {
		orphaned := len(ids) - removed
		report.Warning = &models.ConsistencyWarning{
			OrphanedVectorRecords: orphaned,
			Message: fmt.Sprintf("%d vector records could not be removed and are now orphaned; "+
				"run orphan reconciliation to list them", orphaned),
		}
		c.logger.Warn("vector deletion incomplete", zap.Int("orphaned", orphaned), zap.Error(err))
	}

	if c.keywords == nil {
		return
	}
	for _, id := range ids {
		if err := c.keywords.Delete(ctx, id); err != nil {
			c.logger.Warn("keyword deletion failed", zap.String("article_id", id), zap.Error(err))
		}
	}
}

// Orphans returns the ids present in the vector index whose article no
// longer exists in the relational store.
func (c *Coordinator) Orphans(ctx context.Context) ([]string, error) {
	indexed := c.vectors.IDs()
	if len(indexed) == 0 {
		return []string{}, nil
	}
	existing, err := c.store.ExistingArticleIDs(ctx, indexed)
	if err != nil {
		return nil, fmt.Errorf("check existing ids: %w", err)
	}
	orphans := make([]string, 0)
	for _, id := range indexed {
		if !existing[id] {
			orphans = append(orphans, id)
		}
	}
	return orphans, nil
}
