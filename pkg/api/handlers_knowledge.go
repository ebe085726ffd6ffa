package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/docfold/memoria/pkg/errors"
	"github.com/docfold/memoria/pkg/knowledge"
)

func (s *Server) handleStoreEntry(w http.ResponseWriter, r *http.Request) {
	var req knowledge.StoreRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	entry, err := s.store.Store(r.Context(), req)
	if err != nil {
		respondAppError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, ok := s.store.GetByID(id)
	if !ok {
		respondAppError(w, apperrors.New(apperrors.ErrCodeEntryNotFound, "entry not found").WithContext("id", id))
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleUpdateEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req knowledge.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	entry, ok := s.store.Update(id, req)
	if !ok {
		respondAppError(w, apperrors.New(apperrors.ErrCodeEntryNotFound, "entry not found").WithContext("id", id))
		return
	}
	respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.store.Delete(id) {
		respondAppError(w, apperrors.New(apperrors.ErrCodeEntryNotFound, "entry not found").WithContext("id", id))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"deleted": id})
}

func (s *Server) handleQueryEntries(w http.ResponseWriter, r *http.Request) {
	var q knowledge.Query
	if err := decodeJSON(w, r, &q); err != nil {
		respondAppError(w, err)
		return
	}
	results := s.store.Query(q)
	respondJSON(w, http.StatusOK, map[string]any{
		"results": results,
		"count":   len(results),
	})
}

func (s *Server) handleInvalidateEntries(w http.ResponseWriter, r *http.Request) {
	var filter knowledge.InvalidateFilter
	if err := decodeJSON(w, r, &filter); err != nil {
		respondAppError(w, err)
		return
	}
	n := s.store.Invalidate(filter)
	respondJSON(w, http.StatusOK, map[string]int{"invalidated": n})
}

func (s *Server) handleExportEntries(w http.ResponseWriter, r *http.Request) {
	entries := s.store.Export()
	respondJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"count":   len(entries),
	})
}

func (s *Server) handleRestoreEntries(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Entries []knowledge.MemoryEntry `json:"entries"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		respondAppError(w, err)
		return
	}
	s.store.Restore(req.Entries)
	respondJSON(w, http.StatusOK, map[string]int{"restored": len(req.Entries)})
}

func (s *Server) handleKnowledgeStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.store.Stats())
}
