package models

import "time"

// FeedError is one captured fetch/parse failure in a run report.
type FeedError struct {
	Class   string `json:"class"`
	Message string `json:"message"`
}

// FeedReport is the per-feed outcome of an ingestion run.
type FeedReport struct {
	Fetched   int         `json:"fetched"`
	New       int         `json:"new"`
	Duplicate int         `json:"duplicate"`
	Failed    int         `json:"failed"`
	Errors    []FeedError `json:"errors,omitempty"`
}

// IngestReport is the observable result of one ingestion run.
type IngestReport struct {
	RunID       string                 `json:"run_id"`
	Feeds       map[string]*FeedReport `json:"feeds"`
	TotalNew    int                    `json:"total_new"`
	TotalDup    int                    `json:"total_duplicate"`
	TotalFailed int                    `json:"total_failed"`
	StartedAt   time.Time              `json:"started_at"`
	CompletedAt time.Time              `json:"completed_at"`
}

// CleanupFilters selects articles for preview and deletion. Both fields
// omitted matches every article; callers must require explicit confirmation
// upstream before deleting with empty filters.
type CleanupFilters struct {
	Before  *time.Time `json:"before,omitempty"`
	Sources []string   `json:"sources,omitempty"`
}

// Empty reports whether the filters match everything.
func (f CleanupFilters) Empty() bool {
	return f.Before == nil && len(f.Sources) == 0
}

// CleanupOptions control what a deletion removes beyond the article rows.
type CleanupOptions struct {
	DeleteSummaries       bool `json:"delete_summaries"`
	DeleteFromVectorStore bool `json:"delete_from_vector_store"`
}

// CleanupPreview reports what a deletion with the same filters would remove.
type CleanupPreview struct {
	TotalCount      int            `json:"total_count"`
	SourceBreakdown map[string]int `json:"source_breakdown"`
	Filters         CleanupFilters `json:"filters_applied"`
}

// ConsistencyWarning records non-fatal drift between the relational store
// and the vector index after a partial deletion failure.
type ConsistencyWarning struct {
	OrphanedVectorRecords int    `json:"orphaned_vector_records"`
	Message               string `json:"message"`
}

// DeletionReport is the observable result of a cleanup deletion.
type DeletionReport struct {
	DeletedCount          int                 `json:"deleted_count"`
	DeletedSummariesCount int                 `json:"deleted_summaries_count"`
	DeletedFromVector     int                 `json:"deleted_from_vector_store"`
	RemainingArticles     int64               `json:"remaining_articles"`
	Filters               CleanupFilters      `json:"filters_applied"`
	Warning               *ConsistencyWarning `json:"consistency_warning,omitempty"`
}
