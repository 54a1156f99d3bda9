// Package feed fetches and parses RSS/Atom feeds. Every failure mode is
// captured as a tagged *FetchError so a single feed's failure can be
// reported without aborting sibling fetches.
package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/models"
)

// Error classes for FetchError.
const (
	ClassNetwork    = "network"
	ClassHTTPStatus = "http-status"
	ClassParse      = "parse"
)

// FetchError is a tagged fetch or parse failure for one feed.
type FetchError struct {
	URL   string
	Class string
	Cause string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %s", e.URL, e.Class, e.Cause)
}

// Entry is one raw article candidate extracted from a feed.
type Entry struct {
	Title       string
	Body        string
	Link        string
	Source      string
	PublishedAt *time.Time
}

// Fetcher fetches and parses feeds. It performs no persistence; the only
// side effect is the network call.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewFetcher creates a fetcher with the given per-feed timeout.
func NewFetcher(timeout time.Duration, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		client:  &http.Client{Timeout: timeout},
		timeout: timeout,
		logger:  logger,
	}
}

// Fetch performs an HTTP GET for the feed URL, parses the response as
// RSS/Atom, and returns the finite sequence of entries. The source label of
// every entry is the feed's display name (falling back to the parsed feed
// title). On failure the returned error is always a *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, fd *models.RSSFeed) ([]Entry, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fd.URL, nil)
	if err != nil {
		return nil, &FetchError{URL: fd.URL, Class: ClassNetwork, Cause: err.Error()}
	}
	req.Header.Set("User-Agent", "news-summary-agent/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: fd.URL, Class: ClassNetwork, Cause: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &FetchError{
			URL:   fd.URL,
			Class: ClassHTTPStatus,
			Cause: fmt.Sprintf("HTTP %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &FetchError{URL: fd.URL, Class: ClassNetwork, Cause: err.Error()}
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, &FetchError{URL: fd.URL, Class: ClassParse, Cause: err.Error()}
	}

	source := fd.Name
	if source == "" {
		source = parsed.Title
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		entry, ok := f.extractEntry(item, source)
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	f.logger.Debug("feed fetched",
		zap.String("url", fd.URL),
		zap.Int("items", len(parsed.Items)),
		zap.Int("entries", len(entries)),
	)
	return entries, nil
}

// extractEntry maps a parsed item to an Entry. Items missing a title or
// link are skipped; the body falls back from content to description.
func (f *Fetcher) extractEntry(item *gofeed.Item, source string) (Entry, bool) {
	if item.Title == "" || item.Link == "" {
		return Entry{}, false
	}

	body := item.Content
	if body == "" {
		body = item.Description
	}
	body = CleanHTML(body)

	var published *time.Time
	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		published = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		published = &t
	}

	return Entry{
		Title:       CleanHTML(item.Title),
		Body:        body,
		Link:        item.Link,
		Source:      source,
		PublishedAt: published,
	}, true
}
