package models

// SearchResult is a single retrieval hit joined back to its article.
type SearchResult struct {
	Article *Article `json:"article"`
	Score   float64  `json:"score"`
	Snippet string   `json:"snippet"`
	// AIHighlight is true when the snippet is an LLM-generated highlight
	// rather than a plain excerpt.
	AIHighlight bool `json:"ai_highlight,omitempty"`
	Rank        int  `json:"rank"`
}

// SearchResponse is the result of a search or similarity query.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
