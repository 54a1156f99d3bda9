// Package ingest orchestrates fetch, dedup, persist, and index for
// configured feeds. Feeds are fetched concurrently on a fixed-size worker
// pool; per-feed failures are collected into the run report, never raised.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/config"
	"github.com/aijose/news-summary-agent-sub001/internal/embedding"
	"github.com/aijose/news-summary-agent-sub001/internal/feed"
	"github.com/aijose/news-summary-agent-sub001/internal/keyword"
	"github.com/aijose/news-summary-agent-sub001/internal/models"
	"github.com/aijose/news-summary-agent-sub001/internal/storage"
	"github.com/aijose/news-summary-agent-sub001/internal/vector"
)

// RunOptions tune a single ingestion run.
type RunOptions struct {
	// MaxArticles caps total new articles persisted across all feeds.
	// Zero means the configured default; negative means unlimited.
	MaxArticles int
}

// Coordinator runs the ingestion pipeline. The relational store is the
// authoritative write; vector and keyword indexing are derived writes whose
// failures are logged and reported per-entry, not escalated.
type Coordinator struct {
	store    storage.Store
	fetcher  *feed.Fetcher
	embedder embedding.Embedder
	vectors  vector.Index
	keywords keyword.Index // optional; nil disables keyword indexing
	pool     *ants.Pool
	cfg      *config.IngestConfig
	logger   *zap.Logger
}

// NewCoordinator creates a coordinator with a worker pool of cfg.Workers.
func NewCoordinator(
	store storage.Store,
	fetcher *feed.Fetcher,
	embedder embedding.Embedder,
	vectors vector.Index,
	keywords keyword.Index,
	cfg *config.IngestConfig,
	logger *zap.Logger,
) (*Coordinator, error) {
	pool, err := ants.NewPool(cfg.Workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}
	return &Coordinator{
		store:    store,
		fetcher:  fetcher,
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		pool:     pool,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// Run ingests all enabled feeds and returns the run report. Only failure to
// reach the relational store is returned as an error; every per-feed and
// per-entry failure lands in the report.
func (c *Coordinator) Run(ctx context.Context, opts RunOptions) (*models.IngestReport, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.RunTimeout())
	defer cancel()

	feeds, err := c.store.ListFeeds(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("list feeds: %w", err)
	}

	report := &models.IngestReport{
		RunID:     uuid.New().String(),
		Feeds:     make(map[string]*models.FeedReport, len(feeds)),
		StartedAt: time.Now().UTC(),
	}

	maxArticles := opts.MaxArticles
	if maxArticles == 0 {
		maxArticles = c.cfg.MaxArticlesPerRun
	}
	var remaining int64 = int64(maxArticles)
	budget := &remaining
	if maxArticles <= 0 {
		budget = nil // unlimited
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, fd := range feeds {
		fd := fd
		wg.Add(1)
		submitErr := c.pool.Submit(func() {
			defer wg.Done()
			fr := c.ingestFeed(ctx, fd, budget)
			mu.Lock()
			report.Feeds[fd.URL] = fr
			report.TotalNew += fr.New
			report.TotalDup += fr.Duplicate
			report.TotalFailed += fr.Failed
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			mu.Lock()
			report.Feeds[fd.URL] = &models.FeedReport{
				Errors: []models.FeedError{{Class: feed.ClassNetwork, Message: submitErr.Error()}},
			}
			mu.Unlock()
		}
	}
	wg.Wait()

	report.CompletedAt = time.Now().UTC()
	c.logger.Info("ingestion run complete",
		zap.String("run_id", report.RunID),
		zap.Int("feeds", len(feeds)),
		zap.Int("new", report.TotalNew),
		zap.Int("duplicate", report.TotalDup),
		zap.Int("failed", report.TotalFailed),
	)
	return report, nil
}

// ingestFeed fetches one feed and processes its entries. budget, when
// non-nil, is the shared remaining-new-articles counter for the run.
func (c *Coordinator) ingestFeed(ctx context.Context, fd *models.RSSFeed, budget *int64) *models.FeedReport {
	fr := &models.FeedReport{}

	entries, err := c.fetcher.Fetch(ctx, fd)
	if err != nil {
		var fetchErr *feed.FetchError
		if errors.As(err, &fetchErr) {
			fr.Errors = append(fr.Errors, models.FeedError{Class: fetchErr.Class, Message: fetchErr.Cause})
		} else {
			fr.Errors = append(fr.Errors, models.FeedError{Class: feed.ClassNetwork, Message: err.Error()})
		}
		c.logger.Warn("feed fetch failed", zap.String("url", fd.URL), zap.Error(err))
		return fr
	}

	for i := range entries {
		if budget != nil && !reserveBudget(budget) {
			break
		}
		fr.Fetched++
		switch outcome := c.ingestEntry(ctx, &entries[i]); outcome {
		case outcomeNew:
			fr.New++
		case outcomeDuplicate:
			fr.Duplicate++
			if budget != nil {
				atomic.AddInt64(budget, 1)
			}
		default:
			fr.Failed++
			if budget != nil {
				atomic.AddInt64(budget, 1)
			}
		}
	}

	if err := c.store.TouchFeedFetched(ctx, fd.ID, time.Now().UTC()); err != nil {
		c.logger.Warn("failed to record fetch time", zap.String("url", fd.URL), zap.Error(err))
	}
	return fr
}

// reserveBudget claims one unit of the shared new-article budget before an
// entry is processed, so concurrent workers cannot all pass a check on the
// last unit. The slot is refunded when the entry turns out to be a
// duplicate or fails.
func reserveBudget(budget *int64) bool {
	if atomic.AddInt64(budget, -1) < 0 {
		atomic.AddInt64(budget, 1)
		return false
	}
	return true
}

type entryOutcome int

const (
	outcomeFailed entryOutcome = iota
	outcomeNew
	outcomeDuplicate
)

// ingestEntry persists one entry. Dedup rests on the store-level fingerprint
// uniqueness constraint, so two workers racing the same entry cannot both
// insert. Vector and keyword indexing are best-effort derived writes.
func (c *Coordinator) ingestEntry(ctx context.Context, entry *feed.Entry) entryOutcome {
	if len(entry.Body) < c.cfg.MinContentLength {
		c.logger.Debug("entry body too short", zap.String("title", entry.Title))
		return outcomeFailed
	}

	article := &models.Article{
		ID:          uuid.New().String(),
		Title:       entry.Title,
		Content:     entry.Body,
		Source:      entry.Source,
		URL:         entry.Link,
		PublishedAt: entry.PublishedAt,
		Fingerprint: Fingerprint(entry.Title, entry.Body, entry.Source),
	}

	if err := c.store.CreateArticle(ctx, article); err != nil {
		if errors.Is(err, storage.ErrDuplicateFingerprint) {
			return outcomeDuplicate
		}
		c.logger.Warn("article insert failed", zap.String("url", entry.Link), zap.Error(err))
		return outcomeFailed
	}

	c.indexArticle(ctx, article)
	return outcomeNew
}

// indexArticle writes the derived vector and keyword records. Failures here
// leave the article persisted but unindexed until a later rebuild; the
// vector index is eventually consistent by design.
func (c *Coordinator) indexArticle(ctx context.Context, article *models.Article) {
	vec, err := c.embedder.Embed(ctx, article.Title+"\n\n"+article.Content)
	if err != nil {
		c.logger.Warn("embedding failed", zap.String("article_id", article.ID), zap.Error(err))
	} else if err := c.vectors.Upsert(ctx, article.ID, vec, vector.Metadata{
		Title:       article.Title,
		Source:      article.Source,
		URL:         article.URL,
		PublishedAt: article.PublishedAt,
	}); err != nil {
		c.logger.Warn("vector upsert failed", zap.String("article_id", article.ID), zap.Error(err))
	}

	if c.keywords != nil {
		if err := c.keywords.Index(ctx, article); err != nil {
			c.logger.Warn("keyword index failed", zap.String("article_id", article.ID), zap.Error(err))
		}
	}
}

// Close releases the worker pool.
func (c *Coordinator) Close() {
	c.pool.Release()
}
