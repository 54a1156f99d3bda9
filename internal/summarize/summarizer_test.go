package summarize

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/config"
	"github.com/aijose/news-summary-agent-sub001/internal/llm"
	"github.com/aijose/news-summary-agent-sub001/internal/models"
	"github.com/aijose/news-summary-agent-sub001/internal/storage"
)

func newTestStore(t *testing.T) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func createArticle(t *testing.T, store *storage.SQLiteStore, title, source string) *models.Article {
	t.Helper()
	id := uuid.New().String()
	a := &models.Article{
		ID:          id,
		Title:       title,
		Content:     "Long enough content for " + title,
		Source:      source,
		URL:         "https://example.com/" + id,
		Fingerprint: "fp-" + id,
	}
	if err := store.CreateArticle(context.Background(), a); err != nil {
		t.Fatal(err)
	}
	return a
}

func newTestSummarizer(store *storage.SQLiteStore, gen llm.Generator) *Summarizer {
	cfg := &config.LLMConfig{TimeoutSeconds: 10}
	return NewSummarizer(store, gen, cfg, zap.NewNop())
}

func TestSummarizer_CacheHit(t *testing.T) {
	store := newTestStore(t)
	gen := &llm.MockGenerator{Reply: "A concise summary."}
	s := newTestSummarizer(store, gen)
	ctx := context.Background()

	a := createArticle(t, store, "Story", "BBC News")

	first, err := s.GetOrCreateSummary(ctx, a.ID, models.SummaryBrief, false)
	if err != nil {
		t.Fatal(err)
	}
	if first.Cached {
		t.Error("first call should not be a cache hit")
	}
	if first.SummaryText != "A concise summary." {
		t.Errorf("unexpected text: %q", first.SummaryText)
	}
	if first.WordCount != 3 {
		t.Errorf("expected word count 3, got %d", first.WordCount)
	}

	second, err := s.GetOrCreateSummary(ctx, a.ID, models.SummaryBrief, false)
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached {
		t.Error("second call should be a cache hit")
	}
	if second.SummaryText != first.SummaryText {
		t.Error("cache hit must return identical text")
	}
	if gen.Calls() != 1 {
		t.Errorf("expected 1 LLM call, got %d", gen.Calls())
	}

	// A different kind is a separate cache entry.
	if _, err := s.GetOrCreateSummary(ctx, a.ID, models.SummaryAnalytical, false); err != nil {
		t.Fatal(err)
	}
	if gen.Calls() != 2 {
		t.Errorf("expected 2 LLM calls after new kind, got %d", gen.Calls())
	}
}

func TestSummarizer_ForceRegenerates(t *testing.T) {
	store := newTestStore(t)
	gen := &llm.MockGenerator{Reply: "v1"}
	s := newTestSummarizer(store, gen)
	ctx := context.Background()

	a := createArticle(t, store, "Story", "BBC News")
	if _, err := s.GetOrCreateSummary(ctx, a.ID, models.SummaryComprehensive, false); err != nil {
		t.Fatal(err)
	}

	gen.Reply = "v2"
	forced, err := s.GetOrCreateSummary(ctx, a.ID, models.SummaryComprehensive, true)
	if err != nil {
		t.Fatal(err)
	}
	if forced.Cached || forced.SummaryText != "v2" {
		t.Errorf("force should regenerate: %+v", forced)
	}

	persisted, err := store.GetSummary(ctx, a.ID, models.SummaryComprehensive)
	if err != nil {
		t.Fatal(err)
	}
	if persisted.SummaryText != "v2" {
		t.Error("forced regeneration should overwrite the persisted summary")
	}
}

func TestSummarizer_GenerationFailurePersistsNothing(t *testing.T) {
	store := newTestStore(t)
	gen := &llm.MockGenerator{Err: errors.New("model unavailable")}
	s := newTestSummarizer(store, gen)
	ctx := context.Background()

	a := createArticle(t, store, "Story", "BBC News")

	_, err := s.GetOrCreateSummary(ctx, a.ID, models.SummaryBrief, false)
	var analysisErr *AnalysisError
	if !errors.As(err, &analysisErr) {
		t.Fatalf("expected *AnalysisError, got %v", err)
	}
	if analysisErr.Kind != "generation-failed" {
		t.Errorf("unexpected kind: %s", analysisErr.Kind)
	}
	if _, err := store.GetSummary(ctx, a.ID, models.SummaryBrief); !errors.Is(err, storage.ErrNotFound) {
		t.Error("failed generation must not persist a summary")
	}

	// A retry after recovery succeeds from scratch.
	gen.Err = nil
	gen.Reply = "recovered"
	got, err := s.GetOrCreateSummary(ctx, a.ID, models.SummaryBrief, false)
	if err != nil {
		t.Fatal(err)
	}
	if got.SummaryText != "recovered" {
		t.Errorf("unexpected text after retry: %q", got.SummaryText)
	}
}

func TestSummarizer_InvalidInputs(t *testing.T) {
	store := newTestStore(t)
	s := newTestSummarizer(store, &llm.MockGenerator{Reply: "x"})
	ctx := context.Background()

	var validationErr *ValidationError
	_, err := s.GetOrCreateSummary(ctx, "some-id", models.SummaryKind("bogus"), false)
	if !errors.As(err, &validationErr) {
		t.Errorf("expected *ValidationError for bad kind, got %v", err)
	}

	_, err = s.GetOrCreateSummary(ctx, "missing", models.SummaryBrief, false)
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing article, got %v", err)
	}
}

func TestSummarizer_BriefAttachesMetadata(t *testing.T) {
	store := newTestStore(t)
	s := newTestSummarizer(store, &llm.MockGenerator{Reply: "short take"})
	ctx := context.Background()

	a := createArticle(t, store, "Story", "BBC News")
	if _, err := s.GetOrCreateSummary(ctx, a.ID, models.SummaryBrief, false); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetArticle(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Metadata["brief_summary"] != "short take" {
		t.Errorf("brief summary not attached to metadata: %v", got.Metadata)
	}
}

func TestSummarizer_SingleFlight(t *testing.T) {
	store := newTestStore(t)
	gen := &llm.MockGenerator{Reply: "one call"}
	s := newTestSummarizer(store, gen)
	ctx := context.Background()

	a := createArticle(t, store, "Story", "BBC News")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetOrCreateSummary(ctx, a.ID, models.SummaryBrief, false); err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	if gen.Calls() != 1 {
		t.Errorf("concurrent identical requests should cost 1 LLM call, got %d", gen.Calls())
	}
}

func TestSummarizer_PurgeSummaries(t *testing.T) {
	store := newTestStore(t)
	s := newTestSummarizer(store, &llm.MockGenerator{Reply: "x"})
	ctx := context.Background()

	a := createArticle(t, store, "Story", "BBC News")
	_, _ = s.GetOrCreateSummary(ctx, a.ID, models.SummaryBrief, false)
	_, _ = s.GetOrCreateSummary(ctx, a.ID, models.SummaryComprehensive, false)

	deleted, err := s.PurgeSummaries(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if deleted != 2 {
		t.Errorf("expected 2 purged, got %d", deleted)
	}
}

func TestMultiPerspective_Validation(t *testing.T) {
	store := newTestStore(t)
	s := newTestSummarizer(store, &llm.MockGenerator{Reply: "analysis"})
	ctx := context.Background()

	a := createArticle(t, store, "Solo", "BBC News")

	var validationErr *ValidationError
	// Fewer than two distinct ids, even with repeats.
	if _, err := s.MultiPerspective(ctx, []string{a.ID, a.ID}, "", false); !errors.As(err, &validationErr) {
		t.Errorf("expected *ValidationError for duplicate ids, got %v", err)
	}
	if _, err := s.MultiPerspective(ctx, []string{a.ID}, "", false); !errors.As(err, &validationErr) {
		t.Errorf("expected *ValidationError for single id, got %v", err)
	}

	// Any missing article fails the whole call.
	b := createArticle(t, store, "Other", "Reuters")
	if _, err := s.MultiPerspective(ctx, []string{a.ID, b.ID, "missing"}, "", false); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for missing article, got %v", err)
	}
}

func TestMultiPerspective_AnalysisAndCache(t *testing.T) {
	store := newTestStore(t)
	gen := &llm.MockGenerator{Reply: "cross-source analysis"}
	s := newTestSummarizer(store, gen)
	ctx := context.Background()

	a := createArticle(t, store, "Take A", "BBC News")
	b := createArticle(t, store, "Take B", "Reuters")
	c := createArticle(t, store, "Take C", "BBC News")

	got, err := s.MultiPerspective(ctx, []string{c.ID, a.ID, b.ID}, "the economy", false)
	if err != nil {
		t.Fatal(err)
	}
	if got.AnalysisText != "cross-source analysis" || got.Focus != "the economy" {
		t.Errorf("unexpected analysis: %+v", got)
	}
	if len(got.Articles) != 3 {
		t.Errorf("expected 3 article refs, got %d", len(got.Articles))
	}
	if len(got.SourceDiversity) != 2 {
		t.Errorf("expected 2 distinct sources, got %v", got.SourceDiversity)
	}
	if got.Cached {
		t.Error("first analysis should not be cached")
	}

	// Same set in a different order is a cache hit.
	again, err := s.MultiPerspective(ctx, []string{a.ID, b.ID, c.ID}, "the economy", false)
	if err != nil {
		t.Fatal(err)
	}
	if !again.Cached {
		t.Error("reordered identical request should hit the cache")
	}
	if gen.Calls() != 1 {
		t.Errorf("expected 1 LLM call, got %d", gen.Calls())
	}

	// A different focus is a different cache key.
	if _, err := s.MultiPerspective(ctx, []string{a.ID, b.ID, c.ID}, "public health", false); err != nil {
		t.Fatal(err)
	}
	if gen.Calls() != 2 {
		t.Errorf("expected 2 LLM calls after focus change, got %d", gen.Calls())
	}
}
