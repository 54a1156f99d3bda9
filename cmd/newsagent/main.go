// Package main is the news agent CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/cleanup"
	"github.com/aijose/news-summary-agent-sub001/internal/config"
	"github.com/aijose/news-summary-agent-sub001/internal/embedding"
	"github.com/aijose/news-summary-agent-sub001/internal/feed"
	"github.com/aijose/news-summary-agent-sub001/internal/ingest"
	"github.com/aijose/news-summary-agent-sub001/internal/keyword"
	"github.com/aijose/news-summary-agent-sub001/internal/llm"
	"github.com/aijose/news-summary-agent-sub001/internal/models"
	"github.com/aijose/news-summary-agent-sub001/internal/retrieval"
	"github.com/aijose/news-summary-agent-sub001/internal/server"
	"github.com/aijose/news-summary-agent-sub001/internal/storage"
	"github.com/aijose/news-summary-agent-sub001/internal/summarize"
	"github.com/aijose/news-summary-agent-sub001/internal/vector"
	"github.com/aijose/news-summary-agent-sub001/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/newsagent/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used, so that "newsagent server" from the project dir uses the
// project's config. Returns the config and the path actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "similar":
		runSimilar()
	case "summarize":
		runSummarize()
	case "analyze":
		runAnalyze()
	case "cleanup":
		runCleanup()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("newsagent version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	runs, err := ingest.NewRuns(components.Coordinator, cfg.Ingest.BackgroundRuns, logger)
	if err != nil {
		logger.Fatal("Failed to create run registry", zap.Error(err))
	}
	defer runs.Close()

	srv := server.NewServer(
		components.Store,
		components.Engine,
		components.Summarizer,
		components.Coordinator,
		runs,
		components.Cleaner,
		components.Vectors,
		&cfg.Server,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.Vectors.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	maxArticles := fs.Int("max-articles", 0, "cap new articles this run (0 = config default, -1 = unlimited)")
	_ = fs.Parse(os.Args[2:])

	components, cfg, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	report, err := components.Coordinator.Run(context.Background(), ingest.RunOptions{MaxArticles: *maxArticles})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingestion failed: %v\n", err)
		os.Exit(1)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if err := components.Vectors.Save(cfg.Storage.VectorIndexPath); err != nil {
			logger.Warn("vector index save failed", zap.Error(err))
		}
	}

	fmt.Printf("Ingested %d new, %d duplicate, %d failed\n", report.TotalNew, report.TotalDup, report.TotalFailed)
	for name, fr := range report.Feeds {
		fmt.Printf("  %-30s fetched=%d new=%d dup=%d failed=%d\n",
			name, fr.Fetched, fr.New, fr.Duplicate, fr.Failed)
		for _, fe := range fr.Errors {
			fmt.Printf("    error [%s]: %s\n", fe.Class, fe.Message)
		}
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 0, "number of results (0 = config default)")
	useAI := fs.Bool("ai", false, "generate AI highlights for results")
	kwMode := fs.Bool("keyword", false, "keyword search instead of semantic")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		fmt.Println("Usage: newsagent search [flags] <query>")
		os.Exit(1)
	}

	components, _, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	var (
		response *models.SearchResponse
		err      error
	)
	if *kwMode {
		response, err = components.Engine.SearchKeyword(context.Background(), query, *limit)
	} else {
		response, err = components.Engine.Search(context.Background(), query, *limit, *useAI)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	printSearchResponse(response, *outputFormat)
}

func runSimilar() {
	fs := flag.NewFlagSet("similar", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	limit := fs.Int("limit", 0, "number of results (0 = config default)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: newsagent similar [flags] <article-id>")
		os.Exit(1)
	}

	components, _, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	response, err := components.Engine.Similar(context.Background(), fs.Arg(0), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Similar search failed: %v\n", err)
		os.Exit(1)
	}
	printSearchResponse(response, *outputFormat)
}

func runSummarize() {
	fs := flag.NewFlagSet("summarize", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	kind := fs.String("kind", "comprehensive", "summary kind: brief, comprehensive, or analytical")
	force := fs.Bool("force", false, "regenerate even if a cached summary exists")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: newsagent summarize [flags] <article-id>")
		os.Exit(1)
	}

	components, _, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	summary, err := components.Summarizer.GetOrCreateSummary(
		context.Background(), fs.Arg(0), models.SummaryKind(*kind), *force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Summarization failed: %v\n", err)
		os.Exit(1)
	}
	if summary.Cached {
		fmt.Printf("(cached, generated %s)\n", summary.GeneratedAt.Format(time.RFC3339))
	}
	fmt.Println(summary.SummaryText)
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	focus := fs.String("focus", "", "analysis focus topic")
	force := fs.Bool("force", false, "regenerate even if a cached analysis exists")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 2 {
		fmt.Println("Usage: newsagent analyze [flags] <article-id> <article-id> [...]")
		os.Exit(1)
	}

	components, _, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	analysis, err := components.Summarizer.MultiPerspective(context.Background(), fs.Args(), *focus, *force)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Focus: %s\nSources: %s\n\n", analysis.Focus, strings.Join(analysis.SourceDiversity, ", "))
	fmt.Println(analysis.AnalysisText)
}

func runCleanup() {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	before := fs.String("before", "", "delete articles published before this RFC3339 time")
	sources := fs.String("sources", "", "comma-separated source names to delete from")
	apply := fs.Bool("apply", false, "actually delete; default is preview only")
	confirmAll := fs.Bool("confirm-all", false, "allow deletion with no filters (deletes everything)")
	keepSummaries := fs.Bool("keep-summaries", false, "keep persisted summaries for deleted articles")
	keepVectors := fs.Bool("keep-vectors", false, "keep vector and keyword index entries")
	_ = fs.Parse(os.Args[2:])

	var filters models.CleanupFilters
	if *before != "" {
		t, err := time.Parse(time.RFC3339, *before)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --before (want RFC3339): %v\n", err)
			os.Exit(1)
		}
		filters.Before = &t
	}
	for _, src := range strings.Split(*sources, ",") {
		if src = strings.TrimSpace(src); src != "" {
			filters.Sources = append(filters.Sources, src)
		}
	}

	components, _, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	preview, err := components.Cleaner.Preview(ctx, filters)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Preview failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Matching articles: %d\n", preview.TotalCount)
	for source, n := range preview.SourceBreakdown {
		fmt.Printf("  %-30s %d\n", source, n)
	}
	if !*apply {
		fmt.Println("\nPreview only; re-run with --apply to delete.")
		return
	}
	if filters.Empty() && !*confirmAll {
		fmt.Fprintln(os.Stderr, "No filters given; pass --confirm-all to delete all articles.")
		os.Exit(1)
	}

	opts := models.CleanupOptions{
		DeleteSummaries:       !*keepSummaries,
		DeleteFromVectorStore: !*keepVectors,
	}
	report, err := components.Cleaner.Delete(ctx, filters, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cleanup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d articles, %d summaries, %d vector records; %d articles remain\n",
		report.DeletedCount, report.DeletedSummariesCount, report.DeletedFromVector, report.RemainingArticles)
	if report.Warning != nil {
		fmt.Printf("Warning: %s\n", report.Warning.Message)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	components, cfg, logger := mustInitialize(*configPath)
	defer components.Close()
	defer logger.Sync()

	ctx := context.Background()
	articleCount, err := components.Store.CountArticles(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Count articles failed: %v\n", err)
		os.Exit(1)
	}
	sources, err := components.Store.ListSources(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List sources failed: %v\n", err)
		os.Exit(1)
	}
	feeds, err := components.Store.ListFeeds(ctx, false)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List feeds failed: %v\n", err)
		os.Exit(1)
	}

	status := map[string]interface{}{
		"articles":          articleCount,
		"sources":           sources,
		"feeds":             len(feeds),
		"vector_index_size": components.Vectors.Size(),
		"database_path":     cfg.Storage.DatabasePath,
	}
	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("articles:           %d\n", articleCount)
		fmt.Printf("sources:            %s\n", strings.Join(sources, ", "))
		fmt.Printf("feeds:              %d\n", len(feeds))
		fmt.Printf("vector_index_size:  %d\n", components.Vectors.Size())
		fmt.Printf("database_path:      %s\n", cfg.Storage.DatabasePath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func printSearchResponse(response *models.SearchResponse, format string) {
	switch format {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(response); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(response.Results) == 0 {
			fmt.Println("No results.")
			return
		}
		for _, r := range response.Results {
			published := ""
			if r.Article.PublishedAt != nil {
				published = r.Article.PublishedAt.Format("2006-01-02")
			}
			fmt.Printf("%2d. [%.3f] %s (%s %s)\n    %s\n    %s\n",
				r.Rank, r.Score, r.Article.Title, r.Article.Source, published, r.Article.URL, r.Snippet)
		}
		fmt.Printf("\n%d result(s) in %dms\n", response.Total, response.QueryTime)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", format)
		os.Exit(1)
	}
}

// mustInitialize loads config, builds the logger and components, and exits on
// any failure. Shared by the one-shot subcommands.
func mustInitialize(configPath string) (*Components, *config.Config, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, cfg, logger
}

// Components holds initialized services.
type Components struct {
	Store       storage.Store
	Embedder    embedding.Embedder
	Vectors     vector.Index
	Keywords    keyword.Index
	Engine      *retrieval.Engine
	Summarizer  *summarize.Summarizer
	Coordinator *ingest.Coordinator
	Cleaner     *cleanup.Coordinator
}

func (c *Components) Close() {
	if c.Coordinator != nil {
		c.Coordinator.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.Keywords != nil {
		_ = c.Keywords.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	var embedder embedding.Embedder
	if cfg.Embedding.APIKey != "" {
		embedder, err = embedding.NewOpenAIEmbedder(&cfg.Embedding)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	} else {
		logger.Warn("no embedding API key configured, using mock embedder")
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	}

	vectors, err := vector.NewMemoryIndex(embedder.Dimensions())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	if cfg.Storage.VectorIndexPath != "" {
		if loadErr := vectors.Load(cfg.Storage.VectorIndexPath); loadErr != nil {
			logger.Warn("vector index load skipped",
				zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(loadErr))
		}
	}

	keywords, err := keyword.NewBleveIndex(cfg.Storage.BleveIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
	}

	var gen llm.Generator
	if cfg.LLM.APIKey != "" {
		gen, err = llm.NewOpenAIGenerator(&cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize llm: %w", err)
		}
	} else {
		logger.Warn("no LLM API key configured, summaries and AI highlights disabled")
	}

	fetcher := feed.NewFetcher(cfg.Ingest.FeedTimeout(), logger)
	coordinator, err := ingest.NewCoordinator(store, fetcher, embedder, vectors, keywords, &cfg.Ingest, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ingestion: %w", err)
	}

	if err := seedFeeds(store, cfg.Feeds); err != nil {
		return nil, fmt.Errorf("failed to seed feeds: %w", err)
	}

	engine := retrieval.NewEngine(store, embedder, vectors, keywords, gen, &cfg.Search, logger)
	summarizer := summarize.NewSummarizer(store, gen, &cfg.LLM, logger)
	cleaner := cleanup.NewCoordinator(store, vectors, keywords, logger)

	return &Components{
		Store:       store,
		Embedder:    embedder,
		Vectors:     vectors,
		Keywords:    keywords,
		Engine:      engine,
		Summarizer:  summarizer,
		Coordinator: coordinator,
		Cleaner:     cleaner,
	}, nil
}

// seedFeeds upserts the configured feeds so ingestion always sees the
// config's feed list. Existing feeds keep their id and last-fetched time.
func seedFeeds(store storage.Store, feeds []config.FeedConfig) error {
	ctx := context.Background()
	for _, f := range feeds {
		rec := &models.RSSFeed{
			ID:      uuid.New().String(),
			Name:    f.Name,
			URL:     f.URL,
			Enabled: f.IsEnabled(),
			Tags:    f.Tags,
		}
		if err := store.UpsertFeed(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func printUsage() {
	fmt.Println(`newsagent - RSS news ingestion, search, and summarization

Usage:
  newsagent server [flags]                 Start the HTTP server
  newsagent ingest [flags]                 Ingest all enabled feeds once
  newsagent search [flags] <query>         Semantic search over articles
  newsagent similar [flags] <article-id>   Find similar articles
  newsagent summarize [flags] <article-id> Summarize an article
  newsagent analyze [flags] <id> <id> ...  Multi-perspective analysis
  newsagent cleanup [flags]                Preview or delete old articles
  newsagent status [flags]                 Show store and index status
  newsagent version                        Show version
  newsagent help                           Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/newsagent/config.yaml;
                     a config.yaml in the current directory takes precedence)

Examples:
  newsagent server
  newsagent ingest --max-articles 50
  newsagent search "climate policy"
  newsagent search --keyword --limit 20 "exact phrase"
  newsagent summarize --kind brief 4f7c...
  newsagent analyze --focus "interest rates" id1 id2 id3
  newsagent cleanup --before 2026-01-01T00:00:00Z --sources "BBC News" --apply
  newsagent status --output json`)
}
