package utils

import "testing"

func TestTruncate(t *testing.T) {
	if got := Truncate("hello", 10); got != "hello" {
		t.Errorf("short string should pass through, got %q", got)
	}
	if got := Truncate("hello world", 5); got != "hello..." {
		t.Errorf("got %q", got)
	}
	if got := Truncate("hello", 0); got != "hello" {
		t.Errorf("zero maxLen should pass through, got %q", got)
	}
}

func TestExcerpt(t *testing.T) {
	if got := Excerpt("short text", 100); got != "short text" {
		t.Errorf("got %q", got)
	}
	got := Excerpt("the quick brown fox jumps over the lazy dog", 20)
	if got != "the quick brown fox..." {
		t.Errorf("expected word-boundary cut, got %q", got)
	}
	if got := Excerpt("  collapse\n\nthese   spaces  ", 100); got != "collapse these spaces" {
		t.Errorf("got %q", got)
	}
}

func TestCollapseWhitespace(t *testing.T) {
	if got := CollapseWhitespace(" a\tb\n c "); got != "a b c" {
		t.Errorf("got %q", got)
	}
	if got := CollapseWhitespace(""); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestCountWords(t *testing.T) {
	if got := CountWords("one two three"); got != 3 {
		t.Errorf("got %d", got)
	}
	if got := CountWords("   "); got != 0 {
		t.Errorf("got %d", got)
	}
}
