package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/docfold/memoria/pkg/errors"
	"github.com/docfold/memoria/pkg/evolution"
	"github.com/docfold/memoria/pkg/ingest"
	"github.com/docfold/memoria/pkg/interaction"
	"github.com/docfold/memoria/pkg/knowledge"
)

func (s *Server) handleRecordInteraction(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		respondError(w, http.StatusServiceUnavailable, apperrors.New(apperrors.ErrCodeInternal, "interaction log not configured"))
		return
	}
	var rec interaction.Record
	if err := decodeJSON(w, r, &rec); err != nil {
		respondAppError(w, err)
		return
	}
	if rec.Type == "" {
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "type must not be empty"))
		return
	}
	respondJSON(w, http.StatusCreated, s.log.Append(rec))
}

func (s *Server) handleListInteractions(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		respondError(w, http.StatusServiceUnavailable, apperrors.New(apperrors.ErrCodeInternal, "interaction log not configured"))
		return
	}
	filter := interaction.Filter{
		Type:      r.URL.Query().Get("type"),
		SessionID: r.URL.Query().Get("sessionId"),
	}
	if raw := r.URL.Query().Get("success"); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "success must be true or false"))
			return
		}
		filter.Success = &val
	}
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "since must be RFC3339"))
			return
		}
		filter.Since = since
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			filter.Limit = n
		}
	}
	records := s.log.Query(filter)
	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

func (s *Server) handleInteractionStats(w http.ResponseWriter, r *http.Request) {
	if s.log == nil {
		respondError(w, http.StatusServiceUnavailable, apperrors.New(apperrors.ErrCodeInternal, "interaction log not configured"))
		return
	}
	respondJSON(w, http.StatusOK, s.log.Stats())
}

func (s *Server) handleCacheStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.cache.Stats())
}

func (s *Server) handleCacheInvalidate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key     string `json:"key,omitempty"`
		Pattern string `json:"pattern,omitempty"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	switch {
	case req.Key != "":
		n := 0
		if s.cache.Invalidate(req.Key) {
			n = 1
		}
		respondJSON(w, http.StatusOK, map[string]int{"invalidated": n})
	case req.Pattern != "":
		n, err := s.cache.InvalidatePattern(req.Pattern)
		if err != nil {
			respondAppError(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]int{"invalidated": n})
	default:
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "key or pattern required"))
	}
}

func (s *Server) handleEvolveNow(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusServiceUnavailable, apperrors.New(apperrors.ErrCodeInternal, "evolution engine not configured"))
		return
	}
	result := s.engine.Evolve(r.Context())
	s.setLastEvolution(result)
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleLastEvolution(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	last := s.lastEvolution
	s.mu.RUnlock()
	if last == nil {
		respondAppError(w, apperrors.New(apperrors.ErrCodeEntryNotFound, "no evolution run recorded"))
		return
	}
	respondJSON(w, http.StatusOK, last)
}

func (s *Server) handleUpdateKnowledge(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		respondError(w, http.StatusServiceUnavailable, apperrors.New(apperrors.ErrCodeInternal, "evolution engine not configured"))
		return
	}
	var req struct {
		Query  string           `json:"query"`
		Update evolution.Update `json:"update"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if req.Query == "" || req.Update.NewContent == "" {
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "query and newContent required"))
		return
	}
	result, err := s.engine.UpdateKnowledge(r.Context(), req.Query, req.Update)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

type ingestRequest struct {
	Format     string   `json:"format"`
	Content    string   `json:"content"`
	Source     string   `json:"source"`
	PageID     string   `json:"pageId,omitempty"`
	FilePath   string   `json:"filePath,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Relevance  float64  `json:"relevance,omitempty"`
	Confidence float64  `json:"confidence,omitempty"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if req.Content == "" {
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "content must not be empty"))
		return
	}

	opts := ingest.SourceOptions{
		Source:     req.Source,
		PageID:     req.PageID,
		FilePath:   req.FilePath,
		Tags:       req.Tags,
		Relevance:  req.Relevance,
		Confidence: req.Confidence,
	}

	var (
		requests []knowledge.StoreRequest
		err      error
	)
	switch strings.ToLower(req.Format) {
	case "markdown", "md":
		requests = ingest.Markdown([]byte(req.Content), opts)
	case "html":
		requests, err = ingest.HTML(strings.NewReader(req.Content), opts)
		if err != nil {
			respondAppError(w, err)
			return
		}
	default:
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "format must be markdown or html").
			WithContext("format", req.Format))
		return
	}

	entries := make([]knowledge.MemoryEntry, 0, len(requests))
	for _, storeReq := range requests {
		entry, err := s.store.Store(r.Context(), storeReq)
		if err != nil {
			respondAppError(w, err)
			return
		}
		entries = append(entries, entry)
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"stored":  len(entries),
		"entries": entries,
	})
}
