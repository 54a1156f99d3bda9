package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/aijose/news-summary-agent-sub001/internal/ingest"
	"github.com/aijose/news-summary-agent-sub001/internal/models"
	"github.com/aijose/news-summary-agent-sub001/internal/storage"
	"github.com/aijose/news-summary-agent-sub001/internal/summarize"
	"github.com/aijose/news-summary-agent-sub001/internal/vector"
)

type ingestRequest struct {
	MaxArticles int  `json:"max_articles,omitempty"`
	Background  bool `json:"background,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	opts := ingest.RunOptions{MaxArticles: req.MaxArticles}

	if req.Background {
		id, err := s.runs.Submit(opts)
		if err != nil {
			s.logger.Error("submit ingestion failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondJSON(w, http.StatusAccepted, map[string]string{"run_id": id, "status": ingest.StatusRunning})
		return
	}

	report, err := s.coordinator.Run(r.Context(), opts)
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleIngestRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	state, ok := s.runs.Get(id)
	if !ok {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	s.respondJSON(w, http.StatusOK, state)
}

type searchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	UseAI bool   `json:"use_ai,omitempty"`
	Mode  string `json:"mode,omitempty"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		s.respondError(w, http.StatusBadRequest, "query is required")
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.Int("limit", req.Limit))

	var (
		response *models.SearchResponse
		err      error
	)
	if req.Mode == "keyword" {
		response, err = s.engine.SearchKeyword(r.Context(), req.Query, req.Limit)
	} else {
		response, err = s.engine.Search(r.Context(), req.Query, req.Limit, req.UseAI)
	}
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleListArticles(w http.ResponseWriter, r *http.Request) {
	offset := queryInt(r, "offset", 0)
	limit := queryInt(r, "limit", 20)
	articles, err := s.store.ListArticles(r.Context(), offset, limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.store.CountArticles(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"articles": articles,
		"total":    total,
		"offset":   offset,
		"limit":    limit,
	})
}

func (s *Server) handleGetArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	article, err := s.store.GetArticle(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "article not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, article)
}

func (s *Server) handleSimilar(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	limit := queryInt(r, "limit", 0)
	response, err := s.engine.Similar(r.Context(), id, limit)
	if err != nil {
		if errors.Is(err, vector.ErrNotIndexed) {
			s.respondError(w, http.StatusNotFound, "article not indexed")
			return
		}
		s.logger.Error("similar search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

type summaryRequest struct {
	Kind  string `json:"kind,omitempty"`
	Force bool   `json:"force,omitempty"`
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req summaryRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Kind == "" {
		req.Kind = string(models.SummaryComprehensive)
	}

	summary, err := s.summarizer.GetOrCreateSummary(r.Context(), id, models.SummaryKind(req.Kind), req.Force)
	if err != nil {
		s.respondSummarizeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}

func (s *Server) handleDeleteSummaries(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	deleted, err := s.summarizer.PurgeSummaries(r.Context(), id)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]int{"deleted": deleted})
}

type multiPerspectiveRequest struct {
	ArticleIDs []string `json:"article_ids"`
	Focus      string   `json:"focus,omitempty"`
	Force      bool     `json:"force,omitempty"`
}

func (s *Server) handleMultiPerspective(w http.ResponseWriter, r *http.Request) {
	var req multiPerspectiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	analysis, err := s.summarizer.MultiPerspective(r.Context(), req.ArticleIDs, req.Focus, req.Force)
	if err != nil {
		s.respondSummarizeError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, analysis)
}

// respondSummarizeError maps the summarize error taxonomy to HTTP statuses:
// bad input 400, missing article 404, failed generation 502.
func (s *Server) respondSummarizeError(w http.ResponseWriter, err error) {
	var validationErr *summarize.ValidationError
	var analysisErr *summarize.AnalysisError
	switch {
	case errors.As(err, &validationErr):
		s.respondError(w, http.StatusBadRequest, validationErr.Msg)
	case errors.Is(err, storage.ErrNotFound):
		s.respondError(w, http.StatusNotFound, "article not found")
	case errors.As(err, &analysisErr):
		s.logger.Error("generation failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("summarization failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleCleanupPreview(w http.ResponseWriter, r *http.Request) {
	filters, err := filtersFromQuery(r)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	preview, err := s.cleaner.Preview(r.Context(), filters)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, preview)
}

type cleanupRequest struct {
	Before                string   `json:"before,omitempty"`
	Sources               []string `json:"sources,omitempty"`
	DeleteSummaries       bool     `json:"delete_summaries,omitempty"`
	DeleteFromVectorStore bool     `json:"delete_from_vector_store,omitempty"`
	ConfirmAll            bool     `json:"confirm_all,omitempty"`
}

func (s *Server) handleCleanup(w http.ResponseWriter, r *http.Request) {
	var req cleanupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	filters := models.CleanupFilters{Sources: req.Sources}
	if req.Before != "" {
		before, err := time.Parse(time.RFC3339, req.Before)
		if err != nil {
			s.respondError(w, http.StatusBadRequest, "before must be RFC3339")
			return
		}
		filters.Before = &before
	}
	// An unfiltered delete removes everything; require an explicit opt-in.
	if filters.Empty() && !req.ConfirmAll {
		s.respondError(w, http.StatusBadRequest, "no filters given; set confirm_all to delete all articles")
		return
	}
	opts := models.CleanupOptions{
		DeleteSummaries:       req.DeleteSummaries,
		DeleteFromVectorStore: req.DeleteFromVectorStore,
	}
	report, err := s.cleaner.Delete(r.Context(), filters, opts)
	if err != nil {
		s.logger.Error("cleanup failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, report)
}

func (s *Server) handleOrphans(w http.ResponseWriter, r *http.Request) {
	orphans, err := s.cleaner.Orphans(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"orphans": orphans,
		"count":   len(orphans),
	})
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListSources(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sources": sources})
}

func (s *Server) handleReadingList(w http.ResponseWriter, r *http.Request) {
	items, err := s.store.ListReadingList(r.Context())
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

type readingListAddRequest struct {
	ArticleID string `json:"article_id"`
	Note      string `json:"note,omitempty"`
}

func (s *Server) handleReadingListAdd(w http.ResponseWriter, r *http.Request) {
	var req readingListAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ArticleID == "" {
		s.respondError(w, http.StatusBadRequest, "article_id is required")
		return
	}
	item := &models.ReadingListItem{ArticleID: req.ArticleID, Note: req.Note, AddedAt: time.Now().UTC()}
	if err := s.store.AddReadingListItem(r.Context(), item); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "article not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, item)
}

func (s *Server) handleReadingListRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.RemoveReadingListItem(r.Context(), id); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

func (s *Server) handleFeeds(w http.ResponseWriter, r *http.Request) {
	feeds, err := s.store.ListFeeds(r.Context(), false)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"feeds": feeds})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	articleCount, err := s.store.CountArticles(ctx)
	if err != nil {
		s.logger.Error("status: count articles failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		s.logger.Error("status: list sources failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	feeds, err := s.store.ListFeeds(ctx, false)
	if err != nil {
		s.logger.Error("status: list feeds failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"articles":          articleCount,
		"sources":           sources,
		"feeds":             len(feeds),
		"vector_index_size": s.vectors.Size(),
	})
}

func filtersFromQuery(r *http.Request) (models.CleanupFilters, error) {
	var filters models.CleanupFilters
	if raw := r.URL.Query().Get("before"); raw != "" {
		before, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return filters, errors.New("before must be RFC3339")
		}
		filters.Before = &before
	}
	if raw := r.URL.Query().Get("sources"); raw != "" {
		for _, src := range strings.Split(raw, ",") {
			if src = strings.TrimSpace(src); src != "" {
				filters.Sources = append(filters.Sources, src)
			}
		}
	}
	return filters, nil
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
