// Package summarize wraps the LLM boundary with a persistence-backed
// summary cache and on-demand multi-perspective analysis.
package summarize

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/config"
	"github.com/aijose/news-summary-agent-sub001/internal/llm"
	"github.com/aijose/news-summary-agent-sub001/internal/models"
	"github.com/aijose/news-summary-agent-sub001/internal/storage"
	"github.com/aijose/news-summary-agent-sub001/pkg/utils"
)

// maxMultiArticles bounds how many articles one analysis may cover.
const maxMultiArticles = 10

// Summarizer is the summarization cache. Persisted summaries are keyed by
// (article, kind); multi-perspective analyses are cached in-process keyed by
// (sorted article ids, focus).
type Summarizer struct {
	store   storage.Store
	gen     llm.Generator
	timeout time.Duration
	logger  *zap.Logger

	// inflight serializes generation per (article, kind) key so concurrent
	// identical requests cost one LLM call.
	mu       sync.Mutex
	inflight map[string]*sync.Mutex

	analysisMu sync.RWMutex
	analyses   map[string]*models.MultiArticleAnalysis
}

// NewSummarizer creates a summarizer using the LLM config's timeout.
func NewSummarizer(store storage.Store, gen llm.Generator, cfg *config.LLMConfig, logger *zap.Logger) *Summarizer {
	return &Summarizer{
		store:    store,
		gen:      gen,
		timeout:  cfg.Timeout(),
		logger:   logger,
		inflight: make(map[string]*sync.Mutex),
		analyses: make(map[string]*models.MultiArticleAnalysis),
	}
}

// keyLock returns the per-key mutex, creating it on first use.
func (s *Summarizer) keyLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.inflight[key]
	if !ok {
		lock = &sync.Mutex{}
		s.inflight[key] = lock
	}
	return lock
}

// GetOrCreateSummary returns the persisted summary for (articleID, kind),
// generating and persisting it on a miss. Cache hits return Cached=true and
// make no external call. When force is set the cache is bypassed and the
// regenerated summary overwrites the persisted one.
func (s *Summarizer) GetOrCreateSummary(ctx context.Context, articleID string, kind models.SummaryKind, force bool) (*models.ArticleSummary, error) {
	if !models.ValidSummaryKind(kind) {
		return nil, &ValidationError{Msg: fmt.Sprintf("unknown summary kind %q", kind)}
	}
	if s.gen == nil {
		return nil, &ValidationError{Msg: "no LLM configured"}
	}

	lock := s.keyLock(articleID + "/" + string(kind))
	lock.Lock()
	defer lock.Unlock()

	if !force {
		if cached, err := s.store.GetSummary(ctx, articleID, kind); err == nil {
			cached.Cached = true
			return cached, nil
		}
	}

	article, err := s.store.GetArticle(ctx, articleID)
	if err != nil {
		return nil, fmt.Errorf("load article: %w", err)
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.gen.Generate(genCtx, buildSummaryPrompt(article, kind))
	if err != nil {
		return nil, &AnalysisError{Kind: "generation-failed", Err: err}
	}
	text = strings.TrimSpace(text)

	summary := &models.ArticleSummary{
		ArticleID:   articleID,
		Kind:        kind,
		SummaryText: text,
		WordCount:   utils.CountWords(text),
		GeneratedAt: time.Now().UTC(),
	}
	if err := s.store.UpsertSummary(ctx, summary); err != nil {
		return nil, fmt.Errorf("persist summary: %w", err)
	}

	if kind == models.SummaryBrief {
		s.attachBriefToMetadata(ctx, article, text)
	}

	s.logger.Info("summary generated",
		zap.String("article_id", articleID),
		zap.String("kind", string(kind)),
		zap.Int("words", summary.WordCount),
	)
	return summary, nil
}

// attachBriefToMetadata amends the article metadata with the brief summary
// so list views can show it without a join. Best-effort; core fields are
// never touched.
func (s *Summarizer) attachBriefToMetadata(ctx context.Context, article *models.Article, text string) {
	metadata := article.Metadata
	if metadata == nil {
		metadata = make(map[string]interface{}, 1)
	}
	metadata["brief_summary"] = text
	if err := s.store.UpdateArticleMetadata(ctx, article.ID, metadata); err != nil {
		s.logger.Warn("failed to attach brief summary", zap.String("article_id", article.ID), zap.Error(err))
	}
}

// PurgeSummaries deletes all persisted summaries for an article and returns
// how many were removed.
func (s *Summarizer) PurgeSummaries(ctx context.Context, articleID string) (int, error) {
	return s.store.DeleteSummaries(ctx, []string{articleID})
}

// MultiPerspective generates (or returns the cached) analysis over the
// given article set and focus. At least two distinct ids are required; any
// id that does not exist fails the whole call instead of being dropped.
func (s *Summarizer) MultiPerspective(ctx context.Context, articleIDs []string, focus string, force bool) (*models.MultiArticleAnalysis, error) {
	distinct := distinctIDs(articleIDs)
	if len(distinct) < 2 {
		return nil, &ValidationError{Msg: "multi-perspective analysis requires at least 2 distinct articles"}
	}
	if len(distinct) > maxMultiArticles {
		return nil, &ValidationError{Msg: fmt.Sprintf("at most %d articles allowed", maxMultiArticles)}
	}
	if s.gen == nil {
		return nil, &ValidationError{Msg: "no LLM configured"}
	}
	if focus == "" {
		focus = "the main topic"
	}

	key := strings.Join(distinct, ",") + "|" + focus
	if !force {
		s.analysisMu.RLock()
		cached, ok := s.analyses[key]
		s.analysisMu.RUnlock()
		if ok {
			hit := *cached
			hit.Cached = true
			return &hit, nil
		}
	}

	articles := make([]*models.Article, 0, len(distinct))
	for _, id := range distinct {
		article, err := s.store.GetArticle(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("load article %s: %w", id, err)
		}
		articles = append(articles, article)
	}

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	text, err := s.gen.Generate(genCtx, buildMultiPrompt(articles, focus))
	if err != nil {
		return nil, &AnalysisError{Kind: "generation-failed", Err: err}
	}

	analysis := &models.MultiArticleAnalysis{
		AnalysisText:    strings.TrimSpace(text),
		Focus:           focus,
		Articles:        make([]models.ArticleRef, 0, len(articles)),
		SourceDiversity: distinctSources(articles),
		GeneratedAt:     time.Now().UTC(),
	}
	for _, a := range articles {
		analysis.Articles = append(analysis.Articles, models.ArticleRef{
			ID:          a.ID,
			Title:       a.Title,
			Source:      a.Source,
			URL:         a.URL,
			PublishedAt: a.PublishedAt,
		})
	}

	s.analysisMu.Lock()
	s.analyses[key] = analysis
	s.analysisMu.Unlock()

	s.logger.Info("multi-perspective analysis generated",
		zap.Int("articles", len(articles)),
		zap.String("focus", focus),
	)
	return analysis, nil
}

// distinctIDs returns the sorted distinct ids, making the cache key
// independent of caller ordering.
func distinctIDs(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func distinctSources(articles []*models.Article) []string {
	seen := make(map[string]bool, len(articles))
	out := make([]string, 0, len(articles))
	for _, a := range articles {
		if seen[a.Source] {
			continue
		}
		seen[a.Source] = true
		out = append(out, a.Source)
	}
	sort.Strings(out)
	return out
}
