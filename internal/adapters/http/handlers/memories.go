package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/recalldev/recall/internal/adapters/http/dto"
	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/ports"
)

type MemoriesHandler struct {
	service   ports.MemoryService
	units     ports.MemoryUnitRepository
	index     ports.VectorIndex
	retriever ports.Retriever
}

func NewMemoriesHandler(service ports.MemoryService, units ports.MemoryUnitRepository, index ports.VectorIndex, retriever ports.Retriever) *MemoriesHandler {
	return &MemoriesHandler{
		service:   service,
		units:     units,
		index:     index,
		retriever: retriever,
	}
}

func (h *MemoriesHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[dto.SearchRequest](r, w)
	if !ok {
		return
	}

	if strings.TrimSpace(req.Query) == "" {
		respondError(w, "validation_error", "Query is required", http.StatusBadRequest)
		return
	}

	start := time.Now()
	outcome, err := h.service.SearchMemories(r.Context(), req.ToQuery())
	if err != nil {
		if errors.Is(err, domain.ErrEmptyQuery) || errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrNegativeLimit) {
			respondError(w, "validation_error", err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Memory search failed: %v", err)
		respondError(w, "search_error", "Memory search failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, &dto.SearchResponse{
		Results:  dto.FromSearchResults(outcome.Results),
		Total:    len(outcome.Results),
		Warnings: outcome.Warnings,
		Timings:  outcome.Timings,
		TookMs:   time.Since(start).Milliseconds(),
	}, http.StatusOK)
}

func (h *MemoriesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := validateURLParam(r, w, "id", "Memory unit ID")
	if !ok {
		return
	}

	unit, err := h.units.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrMemoryUnitNotFound) || errors.Is(err, domain.ErrNotFound) {
			respondError(w, "not_found", "Memory unit not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to get memory unit %s: %v", id, err)
		respondError(w, "internal_error", "Failed to get memory unit", http.StatusInternalServerError)
		return
	}

	respondJSON(w, (&dto.MemoryUnitResponse{}).FromModel(unit), http.StatusOK)
}

// Deactivate retires a memory unit from retrieval. The row is kept for
// audit; only the active flag and the vector go away.
func (h *MemoriesHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	id, ok := validateURLParam(r, w, "id", "Memory unit ID")
	if !ok {
		return
	}

	unit, err := h.units.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrMemoryUnitNotFound) || errors.Is(err, domain.ErrNotFound) {
			respondError(w, "not_found", "Memory unit not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to load memory unit %s: %v", id, err)
		respondError(w, "internal_error", "Failed to deactivate memory unit", http.StatusInternalServerError)
		return
	}

	if err := h.units.SetActive(r.Context(), id, false); err != nil {
		if errors.Is(err, domain.ErrMemoryUnitNotFound) || errors.Is(err, domain.ErrNotFound) {
			respondError(w, "not_found", "Memory unit not found", http.StatusNotFound)
			return
		}
		log.Printf("Failed to deactivate memory unit %s: %v", id, err)
		respondError(w, "internal_error", "Failed to deactivate memory unit", http.StatusInternalServerError)
		return
	}

	if err := h.index.Delete(r.Context(), []string{id}); err != nil {
		// The unit is already inactive; a stale vector is filtered out
		// at query time and cleaned up on the next sweep.
		log.Printf("Failed to delete vector for %s: %v", id, err)
	}

	h.retriever.InvalidateProject(unit.ProjectID)

	respondJSON(w, map[string]any{"id": id, "is_active": false}, http.StatusOK)
}

func (h *MemoriesHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseIntQuery(r, "limit", 50)
	offset := parseIntQuery(r, "offset", 0)
	filter := ports.MemoryUnitFilter{
		ProjectID:  r.URL.Query().Get("project_id"),
		ActiveOnly: r.URL.Query().Get("include_inactive") != "true",
		Limit:      limit,
		Offset:     offset,
	}

	units, err := h.units.List(r.Context(), filter)
	if err != nil {
		log.Printf("Failed to list memory units: %v", err)
		respondError(w, "internal_error", "Failed to list memory units", http.StatusInternalServerError)
		return
	}

	out := make([]*dto.MemoryUnitResponse, len(units))
	for i, u := range units {
		out[i] = (&dto.MemoryUnitResponse{}).FromModel(u)
	}
	respondJSON(w, map[string]any{
		"memories": out,
		"total":    len(out),
		"limit":    limit,
		"offset":   offset,
	}, http.StatusOK)
}
