// Package retrieval serves semantic search, keyword search, and similarity
// queries against the vector and keyword indices, joined back to the
// relational store for display fields.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/config"
	"github.com/aijose/news-summary-agent-sub001/internal/embedding"
	"github.com/aijose/news-summary-agent-sub001/internal/keyword"
	"github.com/aijose/news-summary-agent-sub001/internal/llm"
	"github.com/aijose/news-summary-agent-sub001/internal/models"
	"github.com/aijose/news-summary-agent-sub001/internal/storage"
	"github.com/aijose/news-summary-agent-sub001/internal/vector"
	"github.com/aijose/news-summary-agent-sub001/pkg/utils"
)

// Engine runs retrieval queries. The vector index may lag behind the
// relational store in both directions; hits whose article no longer exists
// are silently skipped.
type Engine struct {
	store    storage.Store
	embedder embedding.Embedder
	vectors  vector.Index
	keywords keyword.Index // optional; nil disables keyword search
	gen      llm.Generator // optional; nil disables AI highlights
	cfg      *config.SearchConfig
	logger   *zap.Logger
}

// NewEngine creates a retrieval engine with the given dependencies.
func NewEngine(
	store storage.Store,
	embedder embedding.Embedder,
	vectors vector.Index,
	keywords keyword.Index,
	gen llm.Generator,
	cfg *config.SearchConfig,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		store:    store,
		embedder: embedder,
		vectors:  vectors,
		keywords: keywords,
		gen:      gen,
		cfg:      cfg,
		logger:   logger,
	}
}

// Search embeds the query, runs a nearest-neighbor lookup bounded by limit,
// and joins hits back to articles. Results are ordered by descending
// similarity, ties broken by more-recent published date. An empty index
// returns an empty result set, not an error. When useAI is set, snippets
// are replaced by short LLM highlights, degrading to plain excerpts if the
// LLM boundary fails.
func (e *Engine) Search(ctx context.Context, query string, limit int, useAI bool) (*models.SearchResponse, error) {
	start := time.Now()
	limit = e.clampLimit(limit)

	response := &models.SearchResponse{Results: []*models.SearchResult{}, Query: query}
	if e.vectors.Size() == 0 {
		response.QueryTime = time.Since(start).Milliseconds()
		return response, nil
	}

	queryVec, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	hits, err := e.vectors.Query(ctx, queryVec, limit)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	results := e.joinHits(ctx, hits, "")
	e.rank(results)
	e.buildSnippets(ctx, query, results, useAI)

	response.Results = results
	response.Total = len(results)
	response.QueryTime = time.Since(start).Milliseconds()
	return response, nil
}

// SearchKeyword runs a BM25 keyword search instead of a semantic one.
func (e *Engine) SearchKeyword(ctx context.Context, query string, limit int) (*models.SearchResponse, error) {
	start := time.Now()
	limit = e.clampLimit(limit)

	response := &models.SearchResponse{Results: []*models.SearchResult{}, Query: query}
	if e.keywords == nil {
		return response, nil
	}
	hits, err := e.keywords.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}

	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		article, err := e.store.GetArticle(ctx, hit.ArticleID)
		if err != nil {
			continue
		}
		results = append(results, &models.SearchResult{
			Article: article,
			Score:   hit.Score,
			Snippet: utils.Excerpt(article.Content, e.cfg.SnippetLength),
		})
	}
	for i, r := range results {
		r.Rank = i + 1
	}
	response.Results = results
	response.Total = len(results)
	response.QueryTime = time.Since(start).Milliseconds()
	return response, nil
}

// Similar returns the articles nearest to the target article's own stored
// embedding, excluding the target itself.
func (e *Engine) Similar(ctx context.Context, articleID string, limit int) (*models.SearchResponse, error) {
	start := time.Now()
	limit = e.clampLimit(limit)

	rec, err := e.vectors.Get(ctx, articleID)
	if err != nil {
		if errors.Is(err, vector.ErrNotIndexed) {
			return nil, fmt.Errorf("similar: %w", err)
		}
		return nil, fmt.Errorf("load vector: %w", err)
	}

	// Overfetch by one so excluding the target still fills the limit.
	hits, err := e.vectors.Query(ctx, rec.Vector, limit+1)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}

	results := e.joinHits(ctx, hits, articleID)
	if len(results) > limit {
		results = results[:limit]
	}
	e.rank(results)
	for _, r := range results {
		r.Snippet = utils.Excerpt(r.Article.Content, e.cfg.SnippetLength)
	}

	return &models.SearchResponse{
		Results:   results,
		Total:     len(results),
		QueryTime: time.Since(start).Milliseconds(),
		Query:     articleID,
	}, nil
}

func (e *Engine) clampLimit(limit int) int {
	if limit <= 0 {
		return e.cfg.DefaultLimit
	}
	if limit > e.cfg.MaxLimit {
		return e.cfg.MaxLimit
	}
	return limit
}

// joinHits resolves vector hits to articles, skipping the excluded id and
// hits whose article was deleted after indexing.
func (e *Engine) joinHits(ctx context.Context, hits []*vector.Result, exclude string) []*models.SearchResult {
	results := make([]*models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.ArticleID == exclude {
			continue
		}
		article, err := e.store.GetArticle(ctx, hit.ArticleID)
		if err != nil {
			e.logger.Debug("skipping stale vector hit", zap.String("article_id", hit.ArticleID))
			continue
		}
		results = append(results, &models.SearchResult{Article: article, Score: hit.Score})
	}
	return results
}

// rank orders by descending score, breaking ties with the more recently
// published article, and assigns ranks.
func (e *Engine) rank(results []*models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		pi, pj := results[i].Article.PublishedAt, results[j].Article.PublishedAt
		switch {
		case pi == nil:
			return false
		case pj == nil:
			return true
		default:
			return pi.After(*pj)
		}
	})
	for i, r := range results {
		r.Rank = i + 1
	}
}

// buildSnippets fills each result's snippet: a plain excerpt, or when useAI
// is set and a generator is configured, a short LLM highlight. Highlight
// failures fall back to the excerpt and never abort the search.
func (e *Engine) buildSnippets(ctx context.Context, query string, results []*models.SearchResult, useAI bool) {
	for _, r := range results {
		r.Snippet = utils.Excerpt(r.Article.Content, e.cfg.SnippetLength)
		if !useAI || e.gen == nil {
			continue
		}
		highlight, err := e.highlight(ctx, query, r.Article)
		if err != nil {
			e.logger.Debug("highlight failed, using excerpt",
				zap.String("article_id", r.Article.ID), zap.Error(err))
			continue
		}
		r.Snippet = highlight
		r.AIHighlight = true
	}
}

func (e *Engine) highlight(ctx context.Context, query string, article *models.Article) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.HighlightTimeout())
	defer cancel()
	prompt := fmt.Sprintf(
		"In one or two sentences, explain what this article says about %q.\n\nTitle: %s\nContent: %s",
		query, article.Title, utils.Truncate(article.Content, 2000),
	)
	return e.gen.Generate(ctx, prompt)
}
