// Package storage provides the SQLite implementation of the Store interface.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/aijose/news-summary-agent-sub001/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens or creates a SQLite database at dbPath and initializes
// the schema. Parent directories are created if they do not exist. WAL mode
// and foreign-key enforcement are set per-connection through the DSN so that
// every pooled connection honors the summary/reading-list cascades.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		source TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		published_at TIMESTAMP,
		metadata TEXT,
		fingerprint TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);
	CREATE INDEX IF NOT EXISTS idx_articles_published_at ON articles(published_at);

	CREATE TABLE IF NOT EXISTS summaries (
		id TEXT PRIMARY KEY,
		article_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		summary_text TEXT NOT NULL,
		word_count INTEGER NOT NULL,
		generated_at TIMESTAMP NOT NULL,
		UNIQUE(article_id, kind),
		FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_summaries_article_id ON summaries(article_id);

	CREATE TABLE IF NOT EXISTS feeds (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		url TEXT NOT NULL UNIQUE,
		enabled INTEGER NOT NULL DEFAULT 1,
		tags TEXT,
		last_fetched_at TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS reading_list (
		article_id TEXT PRIMARY KEY,
		note TEXT,
		added_at TIMESTAMP NOT NULL,
		FOREIGN KEY (article_id) REFERENCES articles(id) ON DELETE CASCADE
	);
	`
	_, err := db.Exec(schema)
	return err
}

// isUniqueViolation reports whether err is a SQLite uniqueness constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// CreateArticle inserts an article. A fingerprint or URL collision returns
// ErrDuplicateFingerprint; the constraint is enforced at the store level so
// concurrent ingestion workers cannot race a check-then-insert.
func (s *SQLiteStore) CreateArticle(ctx context.Context, a *models.Article) error {
	metadataJSON, err := json.Marshal(a.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO articles (id, title, content, source, url, published_at, metadata, fingerprint, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Title, a.Content, a.Source, a.URL, nullableTime(a.PublishedAt),
		string(metadataJSON), a.Fingerprint, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("article %s: %w", a.Fingerprint, ErrDuplicateFingerprint)
		}
		return err
	}
	return nil
}

const articleColumns = `id, title, content, source, url, published_at, metadata, fingerprint, created_at, updated_at`

func scanArticle(row interface{ Scan(...interface{}) error }) (*models.Article, error) {
	var a models.Article
	var metadataJSON sql.NullString
	var published sql.NullTime
	err := row.Scan(&a.ID, &a.Title, &a.Content, &a.Source, &a.URL, &published,
		&metadataJSON, &a.Fingerprint, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if published.Valid {
		t := published.Time
		a.PublishedAt = &t
	}
	if metadataJSON.Valid && metadataJSON.String != "" {
		if err := json.Unmarshal([]byte(metadataJSON.String), &a.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}
	return &a, nil
}

// GetArticle returns an article by ID.
func (s *SQLiteStore) GetArticle(ctx context.Context, id string) (*models.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetArticleByFingerprint returns the article with the given content fingerprint.
func (s *SQLiteStore) GetArticleByFingerprint(ctx context.Context, fingerprint string) (*models.Article, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE fingerprint = ?`, fingerprint)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("fingerprint %s: %w", fingerprint, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// UpdateArticleMetadata replaces an article's metadata map. Core article
// fields stay immutable after creation.
func (s *SQLiteStore) UpdateArticleMetadata(ctx context.Context, id string, metadata map[string]interface{}) error {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	result, err := s.db.ExecContext(ctx,
		`UPDATE articles SET metadata = ?, updated_at = ? WHERE id = ?`,
		string(metadataJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("article %s: %w", id, ErrNotFound)
	}
	return nil
}

// ListArticles returns articles ordered by creation time, newest first.
func (s *SQLiteStore) ListArticles(ctx context.Context, offset, limit int) ([]*models.Article, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// CountArticles returns the total number of articles.
func (s *SQLiteStore) CountArticles(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&count)
	return count, err
}

// ListSources returns the distinct article sources.
func (s *SQLiteStore) ListSources(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT source FROM articles ORDER BY source`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sources []string
	for rows.Next() {
		var src string
		if err := rows.Scan(&src); err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// filterClause builds the WHERE clause shared by SelectArticleIDs and
// CountArticlesBySource. Articles with a NULL published timestamp never
// match a before-filter.
func filterClause(filters models.CleanupFilters) (string, []interface{}) {
	var conds []string
	var args []interface{}
	if filters.Before != nil {
		conds = append(conds, "published_at < ?")
		args = append(args, *filters.Before)
	}
	if len(filters.Sources) > 0 {
		conds = append(conds, "source IN ("+placeholders(len(filters.Sources))+")")
		for _, src := range filters.Sources {
			args = append(args, src)
		}
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// SelectArticleIDs returns the exact set of article ids matched by filters.
func (s *SQLiteStore) SelectArticleIDs(ctx context.Context, filters models.CleanupFilters) ([]string, error) {
	where, args := filterClause(filters)
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM articles`+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountArticlesBySource returns per-source counts for articles matched by filters.
func (s *SQLiteStore) CountArticlesBySource(ctx context.Context, filters models.CleanupFilters) (map[string]int, error) {
	where, args := filterClause(filters)
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, COUNT(*) FROM articles`+where+` GROUP BY source`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	breakdown := make(map[string]int)
	for rows.Next() {
		var src string
		var n int
		if err := rows.Scan(&src, &n); err != nil {
			return nil, err
		}
		breakdown[src] = n
	}
	return breakdown, rows.Err()
}

// DeleteArticles removes the given articles and, via cascade, their
// summaries and reading-list entries. Returns the number of rows deleted.
func (s *SQLiteStore) DeleteArticles(ctx context.Context, ids []string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	deleted := 0
	for _, chunk := range chunkIDs(ids, 500) {
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM articles WHERE id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return deleted, err
		}
		n, _ := result.RowsAffected()
		deleted += int(n)
	}
	return deleted, nil
}

// ExistingArticleIDs returns which of the given ids exist in the store.
// Used by the vector-index reconciliation query.
func (s *SQLiteStore) ExistingArticleIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	existing := make(map[string]bool, len(ids))
	if len(ids) == 0 {
		return existing, nil
	}
	for _, chunk := range chunkIDs(ids, 500) {
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		rows, err := s.db.QueryContext(ctx,
			`SELECT id FROM articles WHERE id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			existing[id] = true
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return existing, nil
}

func chunkIDs(ids []string, size int) [][]string {
	var chunks [][]string
	for len(ids) > size {
		chunks = append(chunks, ids[:size])
		ids = ids[size:]
	}
	return append(chunks, ids)
}

// UpsertSummary inserts or overwrites the summary for (article, kind).
func (s *SQLiteStore) UpsertSummary(ctx context.Context, sum *models.ArticleSummary) error {
	if sum.ID == "" {
		sum.ID = uuid.New().String()
	}
	if sum.GeneratedAt.IsZero() {
		sum.GeneratedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO summaries (id, article_id, kind, summary_text, word_count, generated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(article_id, kind) DO UPDATE SET
			summary_text = excluded.summary_text,
			word_count = excluded.word_count,
			generated_at = excluded.generated_at`,
		sum.ID, sum.ArticleID, string(sum.Kind), sum.SummaryText, sum.WordCount, sum.GeneratedAt,
	)
	return err
}

// GetSummary returns the persisted summary for (article, kind).
func (s *SQLiteStore) GetSummary(ctx context.Context, articleID string, kind models.SummaryKind) (*models.ArticleSummary, error) {
	var sum models.ArticleSummary
	var kindStr string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, article_id, kind, summary_text, word_count, generated_at
		 FROM summaries WHERE article_id = ? AND kind = ?`,
		articleID, string(kind),
	).Scan(&sum.ID, &sum.ArticleID, &kindStr, &sum.SummaryText, &sum.WordCount, &sum.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("summary %s/%s: %w", articleID, kind, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	sum.Kind = models.SummaryKind(kindStr)
	return &sum, nil
}

// ListSummaries returns all persisted summaries for an article, newest first.
func (s *SQLiteStore) ListSummaries(ctx context.Context, articleID string) ([]*models.ArticleSummary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, article_id, kind, summary_text, word_count, generated_at
		 FROM summaries WHERE article_id = ? ORDER BY generated_at DESC`, articleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sums []*models.ArticleSummary
	for rows.Next() {
		var sum models.ArticleSummary
		var kindStr string
		if err := rows.Scan(&sum.ID, &sum.ArticleID, &kindStr, &sum.SummaryText, &sum.WordCount, &sum.GeneratedAt); err != nil {
			return nil, err
		}
		sum.Kind = models.SummaryKind(kindStr)
		sums = append(sums, &sum)
	}
	return sums, rows.Err()
}

// DeleteSummaries removes all summaries for the given articles and returns
// the number of rows deleted.
func (s *SQLiteStore) DeleteSummaries(ctx context.Context, articleIDs []string) (int, error) {
	if len(articleIDs) == 0 {
		return 0, nil
	}
	deleted := 0
	for _, chunk := range chunkIDs(articleIDs, 500) {
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}
		result, err := s.db.ExecContext(ctx,
			`DELETE FROM summaries WHERE article_id IN (`+placeholders(len(chunk))+`)`, args...)
		if err != nil {
			return deleted, err
		}
		n, _ := result.RowsAffected()
		deleted += int(n)
	}
	return deleted, nil
}

// UpsertFeed inserts or updates a feed keyed by its unique URL. The feed id
// is preserved on update so last_fetched_at history survives config reloads.
func (s *SQLiteStore) UpsertFeed(ctx context.Context, f *models.RSSFeed) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	tagsJSON, err := json.Marshal(f.Tags)
	if err != nil {
		return fmt.Errorf("failed to marshal tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO feeds (id, name, url, enabled, tags, last_fetched_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
			name = excluded.name,
			enabled = excluded.enabled,
			tags = excluded.tags`,
		f.ID, f.Name, f.URL, f.Enabled, string(tagsJSON), nullableTime(f.LastFetchedAt),
	)
	return err
}

// ListFeeds returns feeds, optionally only the enabled ones.
func (s *SQLiteStore) ListFeeds(ctx context.Context, enabledOnly bool) ([]*models.RSSFeed, error) {
	query := `SELECT id, name, url, enabled, tags, last_fetched_at FROM feeds`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	rows, err := s.db.QueryContext(ctx, query+` ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var feeds []*models.RSSFeed
	for rows.Next() {
		var f models.RSSFeed
		var tagsJSON sql.NullString
		var fetched sql.NullTime
		if err := rows.Scan(&f.ID, &f.Name, &f.URL, &f.Enabled, &tagsJSON, &fetched); err != nil {
			return nil, err
		}
		if tagsJSON.Valid && tagsJSON.String != "" {
			_ = json.Unmarshal([]byte(tagsJSON.String), &f.Tags)
		}
		if fetched.Valid {
			t := fetched.Time
			f.LastFetchedAt = &t
		}
		feeds = append(feeds, &f)
	}
	return feeds, rows.Err()
}

// TouchFeedFetched records a successful fetch time for a feed.
func (s *SQLiteStore) TouchFeedFetched(ctx context.Context, feedID string, at time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE feeds SET last_fetched_at = ? WHERE id = ?`, at, feedID)
	return err
}

// AddReadingListItem adds an article to the reading list. Adding an article
// that is already on the list is a no-op (the original note is kept).
func (s *SQLiteStore) AddReadingListItem(ctx context.Context, item *models.ReadingListItem) error {
	if item.AddedAt.IsZero() {
		item.AddedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reading_list (article_id, note, added_at) VALUES (?, ?, ?)
		 ON CONFLICT(article_id) DO NOTHING`,
		item.ArticleID, item.Note, item.AddedAt,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		// A missing article surfaces as a foreign-key violation.
		if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintForeignKey {
			return fmt.Errorf("article %s: %w", item.ArticleID, ErrNotFound)
		}
		return err
	}
	return nil
}

// ListReadingList returns reading-list entries, newest first.
func (s *SQLiteStore) ListReadingList(ctx context.Context) ([]*models.ReadingListItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT article_id, note, added_at FROM reading_list ORDER BY added_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*models.ReadingListItem
	for rows.Next() {
		var item models.ReadingListItem
		var note sql.NullString
		if err := rows.Scan(&item.ArticleID, &note, &item.AddedAt); err != nil {
			return nil, err
		}
		item.Note = note.String
		items = append(items, &item)
	}
	return items, rows.Err()
}

// RemoveReadingListItem removes an article from the reading list.
func (s *SQLiteStore) RemoveReadingListItem(ctx context.Context, articleID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM reading_list WHERE article_id = ?`, articleID)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullableTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
