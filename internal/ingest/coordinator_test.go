package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/config"
	"github.com/aijose/news-summary-agent-sub001/internal/embedding"
	"github.com/aijose/news-summary-agent-sub001/internal/feed"
	"github.com/aijose/news-summary-agent-sub001/internal/models"
	"github.com/aijose/news-summary-agent-sub001/internal/storage"
	"github.com/aijose/news-summary-agent-sub001/internal/vector"
)

func rssDocument(title string, items int) string {
	doc := `<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel><title>` + title + `</title>`
	for i := 0; i < items; i++ {
		doc += fmt.Sprintf(
			`<item><title>%s story %d</title><link>https://example.com/%s/%d</link>`+
				`<description>This is the body of %s story number %d with enough length.</description></item>`,
			title, i, title, i, title, i)
	}
	return doc + `</channel></rss>`
}

type testEnv struct {
	store       *storage.SQLiteStore
	vectors     *vector.MemoryIndex
	coordinator *Coordinator
}

func newTestEnv(t *testing.T, cfg *config.IngestConfig) *testEnv {
	t.Helper()
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	embedder := embedding.NewMockEmbedder(8)
	vectors, err := vector.NewMemoryIndex(8)
	if err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()
	fetcher := feed.NewFetcher(5*time.Second, logger)
	coordinator, err := NewCoordinator(store, fetcher, embedder, vectors, nil, cfg, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(coordinator.Close)
	return &testEnv{store: store, vectors: vectors, coordinator: coordinator}
}

func testIngestConfig() *config.IngestConfig {
	return &config.IngestConfig{
		Workers:            3,
		FeedTimeoutSeconds: 5,
		RunTimeoutSeconds:  30,
		MinContentLength:   10,
	}
}

func addFeed(t *testing.T, store *storage.SQLiteStore, name, url string) {
	t.Helper()
	if err := store.UpsertFeed(context.Background(), &models.RSSFeed{Name: name, URL: url, Enabled: true}); err != nil {
		t.Fatal(err)
	}
}

func TestCoordinator_RunIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssDocument("alpha", 3)))
	}))
	defer srv.Close()

	env := newTestEnv(t, testIngestConfig())
	addFeed(t, env.store, "Alpha", srv.URL)
	ctx := context.Background()

	first, err := env.coordinator.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if first.TotalNew != 3 || first.TotalDup != 0 || first.TotalFailed != 0 {
		t.Fatalf("first run: new=%d dup=%d failed=%d", first.TotalNew, first.TotalDup, first.TotalFailed)
	}
	if env.vectors.Size() != 3 {
		t.Errorf("expected 3 vectors, got %d", env.vectors.Size())
	}

	second, err := env.coordinator.Run(ctx, RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if second.TotalNew != 0 {
		t.Errorf("second run should add nothing, got new=%d", second.TotalNew)
	}
	if second.TotalDup != 3 {
		t.Errorf("second run should see 3 duplicates, got %d", second.TotalDup)
	}

	count, _ := env.store.CountArticles(ctx)
	if count != 3 {
		t.Errorf("expected 3 articles, got %d", count)
	}
}

func TestCoordinator_FeedFailureIsolation(t *testing.T) {
	okA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssDocument("alpha", 3)))
	}))
	defer okA.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer failing.Close()
	okB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssDocument("beta", 2)))
	}))
	defer okB.Close()

	env := newTestEnv(t, testIngestConfig())
	addFeed(t, env.store, "Alpha", okA.URL)
	addFeed(t, env.store, "Failing", failing.URL)
	addFeed(t, env.store, "Beta", okB.URL)

	report, err := env.coordinator.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalNew != 5 {
		t.Errorf("healthy feeds should still ingest 5, got %d", report.TotalNew)
	}

	fr, ok := report.Feeds[failing.URL]
	if !ok {
		t.Fatal("failing feed missing from report")
	}
	if len(fr.Errors) != 1 || fr.Errors[0].Class != feed.ClassHTTPStatus {
		t.Errorf("expected one http-status error, got %+v", fr.Errors)
	}
	if fr.New != 0 || fr.Fetched != 0 {
		t.Errorf("failing feed should ingest nothing: %+v", fr)
	}
}

func TestCoordinator_CrossFeedDedup(t *testing.T) {
	// Two feed URLs carrying the same source label and identical items.
	doc := rssDocument("shared", 2)
	srvA := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	defer srvA.Close()
	srvB := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(doc))
	}))
	defer srvB.Close()

	env := newTestEnv(t, testIngestConfig())
	addFeed(t, env.store, "Shared Wire", srvA.URL)
	addFeed(t, env.store, "Shared Wire", srvB.URL)

	report, err := env.coordinator.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalNew != 2 {
		t.Errorf("identical items should collapse to 2 articles, got %d", report.TotalNew)
	}
	if report.TotalDup != 2 {
		t.Errorf("expected 2 duplicates, got %d", report.TotalDup)
	}
}

func TestCoordinator_MaxArticlesBudget(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssDocument("gamma", 10)))
	}))
	defer srv.Close()

	env := newTestEnv(t, testIngestConfig())
	addFeed(t, env.store, "Gamma", srv.URL)

	report, err := env.coordinator.Run(context.Background(), RunOptions{MaxArticles: 4})
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalNew != 4 {
		t.Errorf("expected budget of 4 new articles, got %d", report.TotalNew)
	}
	count, _ := env.store.CountArticles(context.Background())
	if count != 4 {
		t.Errorf("expected 4 persisted articles, got %d", count)
	}
}

func TestCoordinator_BudgetSharedAcrossFeeds(t *testing.T) {
	// Several feeds drain one budget concurrently; the cap must hold even
	// when workers race for the last units.
	var servers []*httptest.Server
	for _, name := range []string{"one", "two", "three", "four"} {
		doc := rssDocument(name, 5)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(doc))
		}))
		defer srv.Close()
		servers = append(servers, srv)
	}

	cfg := testIngestConfig()
	cfg.Workers = 4
	env := newTestEnv(t, cfg)
	for i, srv := range servers {
		addFeed(t, env.store, fmt.Sprintf("Feed %d", i), srv.URL)
	}

	report, err := env.coordinator.Run(context.Background(), RunOptions{MaxArticles: 6})
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalNew != 6 {
		t.Errorf("expected exactly 6 new articles across feeds, got %d", report.TotalNew)
	}
	count, _ := env.store.CountArticles(context.Background())
	if count != 6 {
		t.Errorf("expected 6 persisted articles, got %d", count)
	}
}

func TestCoordinator_ShortContentFails(t *testing.T) {
	short := `<?xml version="1.0"?><rss version="2.0"><channel><title>Tiny</title>` +
		`<item><title>Stub</title><link>https://example.com/stub</link><description>hi</description></item>` +
		`</channel></rss>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(short))
	}))
	defer srv.Close()

	env := newTestEnv(t, testIngestConfig())
	addFeed(t, env.store, "Tiny", srv.URL)

	report, err := env.coordinator.Run(context.Background(), RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if report.TotalNew != 0 || report.TotalFailed != 1 {
		t.Errorf("short entry should fail: new=%d failed=%d", report.TotalNew, report.TotalFailed)
	}
}

func TestCoordinator_TouchesFeedFetchTime(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssDocument("delta", 1)))
	}))
	defer srv.Close()

	env := newTestEnv(t, testIngestConfig())
	addFeed(t, env.store, "Delta", srv.URL)

	if _, err := env.coordinator.Run(context.Background(), RunOptions{}); err != nil {
		t.Fatal(err)
	}
	feeds, err := env.store.ListFeeds(context.Background(), true)
	if err != nil {
		t.Fatal(err)
	}
	if len(feeds) != 1 || feeds[0].LastFetchedAt == nil {
		t.Error("last_fetched_at should be recorded after a run")
	}
}

func TestRuns_BackgroundSubmitAndGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssDocument("epsilon", 2)))
	}))
	defer srv.Close()

	env := newTestEnv(t, testIngestConfig())
	addFeed(t, env.store, "Epsilon", srv.URL)

	runs, err := NewRuns(env.coordinator, 1, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer runs.Close()

	id, err := runs.Submit(RunOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected run id")
	}

	deadline := time.After(10 * time.Second)
	for {
		state, ok := runs.Get(id)
		if !ok {
			t.Fatal("run disappeared from registry")
		}
		if state.Status == StatusCompleted {
			if state.Report == nil || state.Report.TotalNew != 2 {
				t.Fatalf("unexpected report: %+v", state.Report)
			}
			if state.Report.RunID != id {
				t.Errorf("report run id should match registry id")
			}
			break
		}
		if state.Status == StatusFailed {
			t.Fatalf("run failed: %s", state.Error)
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for background run")
		case <-time.After(20 * time.Millisecond):
		}
	}

	if _, ok := runs.Get("no-such-run"); ok {
		t.Error("unknown run id should not resolve")
	}
}

func TestRuns_GetReturnsSnapshot(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(rssDocument("zeta", 2)))
	}))
	defer srv.Close()

	env := newTestEnv(t, testIngestConfig())
	addFeed(t, env.store, "Zeta", srv.URL)

	runs, err := NewRuns(env.coordinator, 1, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	defer runs.Close()

	id, err := runs.Submit(RunOptions{})
	if err != nil {
		t.Fatal(err)
	}

	// Readers hammer Get while the run goroutine updates the entry; each
	// snapshot must be coherent and detached from the registry.
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.After(10 * time.Second)
		for {
			state, ok := runs.Get(id)
			if !ok {
				t.Error("run disappeared from registry")
				return
			}
			if state.Status != StatusRunning {
				if state.Status == StatusCompleted && state.Report == nil {
					t.Error("completed snapshot should carry its report")
				}
				return
			}
			select {
			case <-deadline:
				t.Error("timed out waiting for background run")
				return
			case <-time.After(time.Millisecond):
			}
		}
	}()
	<-done

	state, ok := runs.Get(id)
	if !ok {
		t.Fatal("run disappeared from registry")
	}
	state.Status = "mangled"
	again, ok := runs.Get(id)
	if !ok {
		t.Fatal("run disappeared from registry")
	}
	if again.Status == "mangled" {
		t.Error("mutating a snapshot must not affect the registry")
	}
}

func TestRuns_SubmitFailureLeavesNoTrace(t *testing.T) {
	env := newTestEnv(t, testIngestConfig())

	runs, err := NewRuns(env.coordinator, 1, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	runs.Close()

	if _, err := runs.Submit(RunOptions{}); err == nil {
		t.Fatal("submit on a closed pool should fail")
	}
	runs.mu.RLock()
	defer runs.mu.RUnlock()
	if len(runs.runs) != 0 || len(runs.order) != 0 {
		t.Errorf("failed submit should leave no entries: runs=%d order=%d", len(runs.runs), len(runs.order))
	}
}
