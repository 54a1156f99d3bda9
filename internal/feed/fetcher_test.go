package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/models"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>Example Feed</title>
    <item>
      <title>First &lt;b&gt;Story&lt;/b&gt;</title>
      <link>https://example.com/1</link>
      <description>&lt;p&gt;Body   of &lt;em&gt;first&lt;/em&gt; story.&lt;/p&gt;</description>
      <pubDate>Mon, 02 Mar 2026 10:00:00 GMT</pubDate>
    </item>
    <item>
      <title>Second Story</title>
      <link>https://example.com/2</link>
      <description>Plain body.</description>
    </item>
    <item>
      <title></title>
      <link>https://example.com/untitled</link>
      <description>Skipped, no title.</description>
    </item>
  </channel>
</rss>`

func newTestFetcher() *Fetcher {
	return NewFetcher(5*time.Second, zap.NewNop())
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	fetcher := newTestFetcher()
	entries, err := fetcher.Fetch(context.Background(), &models.RSSFeed{Name: "Example", URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries (untitled skipped), got %d", len(entries))
	}

	first := entries[0]
	if first.Title != "First Story" {
		t.Errorf("title markup not cleaned: %q", first.Title)
	}
	if first.Body != "Body of first story." {
		t.Errorf("body not cleaned: %q", first.Body)
	}
	if first.Source != "Example" {
		t.Errorf("expected configured feed name as source, got %q", first.Source)
	}
	if first.PublishedAt == nil {
		t.Error("expected published time")
	}
	if entries[1].PublishedAt != nil {
		t.Error("expected nil published time for undated item")
	}
}

func TestFetcher_SourceFallsBackToFeedTitle(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(sampleRSS))
	}))
	defer srv.Close()

	fetcher := newTestFetcher()
	entries, err := fetcher.Fetch(context.Background(), &models.RSSFeed{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Source != "Example Feed" {
		t.Errorf("expected parsed feed title as source, got %q", entries[0].Source)
	}
}

func TestFetcher_HTTPStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fetcher := newTestFetcher()
	_, err := fetcher.Fetch(context.Background(), &models.RSSFeed{Name: "Gone", URL: srv.URL})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Class != ClassHTTPStatus {
		t.Errorf("expected class %s, got %s", ClassHTTPStatus, fetchErr.Class)
	}
}

func TestFetcher_ParseError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("this is not xml"))
	}))
	defer srv.Close()

	fetcher := newTestFetcher()
	_, err := fetcher.Fetch(context.Background(), &models.RSSFeed{Name: "Bad", URL: srv.URL})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Class != ClassParse {
		t.Errorf("expected class %s, got %s", ClassParse, fetchErr.Class)
	}
}

func TestFetcher_NetworkError(t *testing.T) {
	fetcher := newTestFetcher()
	_, err := fetcher.Fetch(context.Background(), &models.RSSFeed{Name: "Down", URL: "http://127.0.0.1:1/rss"})
	var fetchErr *FetchError
	if !errors.As(err, &fetchErr) {
		t.Fatalf("expected *FetchError, got %v", err)
	}
	if fetchErr.Class != ClassNetwork {
		t.Errorf("expected class %s, got %s", ClassNetwork, fetchErr.Class)
	}
}

func TestCleanHTML(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"plain text", "plain text"},
		{"<p>Hello <b>world</b></p>", "Hello world"},
		{"<div>spaced\n\n  out</div>", "spaced out"},
		{"<p>keep</p><script>alert(1)</script>", "keep"},
		{"<style>p{color:red}</style><p>visible</p>", "visible"},
	}
	for _, c := range cases {
		if got := CleanHTML(c.in); got != c.want {
			t.Errorf("CleanHTML(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}
