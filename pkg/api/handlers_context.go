package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/docfold/memoria/pkg/errors"
	"github.com/docfold/memoria/pkg/knowledge"
)

type contextRequest struct {
	Query     string `json:"query"`
	MaxTokens int    `json:"maxTokens,omitempty"`
}

func (s *Server) handleProvideContext(w http.ResponseWriter, r *http.Request) {
	var req contextRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if req.Query == "" {
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "query must not be empty"))
		return
	}
	respondJSON(w, http.StatusOK, s.assembler.ProvideContext(r.Context(), req.Query, req.MaxTokens))
}

func (s *Server) handleTaskContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Description string `json:"description"`
		TaskType    string `json:"taskType"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if req.Description == "" {
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "description must not be empty"))
		return
	}
	respondJSON(w, http.StatusOK, s.assembler.ContextForTask(r.Context(), req.Description, req.TaskType))
}

func (s *Server) handleEnrichPrompt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if req.Prompt == "" {
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "prompt must not be empty"))
		return
	}
	enriched := s.assembler.EnrichPrompt(r.Context(), req.Prompt, nil)
	respondJSON(w, http.StatusOK, map[string]string{"prompt": enriched})
}

func (s *Server) handleMultiContext(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string                `json:"query"`
		Types []knowledge.EntryType `json:"types"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	if req.Query == "" {
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "query must not be empty"))
		return
	}
	respondJSON(w, http.StatusOK, s.assembler.MultiDimensionalContext(r.Context(), req.Query, req.Types))
}

func (s *Server) handleSymbolLookup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entries := s.assembler.RelevantSymbols(name)
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleFileLookup(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "path query parameter required"))
		return
	}
	entries := s.assembler.RelevantFiles(path)
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleSymbolInvalidate(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	respondJSON(w, http.StatusOK, map[string]int{"invalidated": s.assembler.InvalidateSymbol(name)})
}

func (s *Server) handleFileInvalidate(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		respondAppError(w, apperrors.New(apperrors.ErrCodeInvalidInput, "path query parameter required"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"invalidated": s.assembler.InvalidateFile(path)})
}
