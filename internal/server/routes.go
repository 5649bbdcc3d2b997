package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Ashish-dwi99/FadeMem/internal/engine"
	"github.com/Ashish-dwi99/FadeMem/internal/store"
)

func (s *Server) handleAddMemory(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID  string `json:"owner_id"`
		Content  string `json:"content"`
		Depth    string `json:"depth"`
		Category string `json:"category"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}

	res, err := s.engine.Add(r.Context(), req.OwnerID, req.Content, engine.AddOptions{
		Depth:    req.Depth,
		Category: req.Category,
	})
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, engine.ErrEmptyContent) || errors.Is(err, engine.ErrUnknownDepth) {
			status = http.StatusBadRequest
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID  string           `json:"owner_id"`
		Messages []engine.Message `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}

	results, err := s.engine.AddMessages(r.Context(), req.OwnerID, req.Messages)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"added": len(results), "results": results})
}

func (s *Server) handleGetMemory(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}

	rec, err := s.engine.Get(ownerID, chi.URLParam(r, "memoryID"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "memory not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.engine.History(chi.URLParam(r, "memoryID"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ownerID := q.Get("owner_id")
	query := q.Get("q")
	if ownerID == "" || query == "" {
		writeError(w, http.StatusBadRequest, "owner_id and q required")
		return
	}

	opts := engine.SearchOptions{CategoryID: q.Get("category")}
	if l := q.Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			opts.Limit = n
		}
	}
	if m := q.Get("min_strength"); m != "" {
		if v, err := strconv.ParseFloat(m, 64); err == nil {
			opts.MinStrength = v
		}
	}

	results, err := s.engine.Search(r.Context(), ownerID, query, opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results, "count": len(results)})
}

func (s *Server) handleDecay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID string `json:"owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}

	decay, err := s.engine.ApplyDecay(r.Context(), req.OwnerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	cats, err := s.engine.ApplyCategoryMaintenance(r.Context(), req.OwnerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": decay, "categories": cats})
}

func (s *Server) handleFusion(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID string `json:"owner_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}

	report, err := s.engine.RunFusion(r.Context(), req.OwnerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}

	tree, err := s.engine.CategoryTree(ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"categories": tree})
}

func (s *Server) handleCategorySummary(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}
	regenerate := r.URL.Query().Get("regenerate") == "true"

	summary, err := s.engine.CategorySummary(r.Context(), ownerID, chi.URLParam(r, "categoryID"), regenerate)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"summary": summary})
}

func (s *Server) handleAllSummaries(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}

	summaries, err := s.engine.AllSummaries(r.Context(), ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"summaries": summaries})
}

func (s *Server) handleCategoryMemories(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	recs, err := s.engine.SearchByCategory(chi.URLParam(r, "categoryID"), limit)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "category not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"memories": recs, "count": len(recs)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	ownerID := r.URL.Query().Get("owner_id")
	if ownerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id required")
		return
	}

	stats, err := s.engine.Stats(ownerID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
