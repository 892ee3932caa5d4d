package handlers

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/ports"
)

type InjectHandler struct {
	service ports.MemoryService
}

func NewInjectHandler(service ports.MemoryService) *InjectHandler {
	return &InjectHandler{service: service}
}

func (h *InjectHandler) Inject(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[models.ContextInjectionRequest](r, w)
	if !ok {
		return
	}

	if strings.TrimSpace(req.OriginalPrompt) == "" {
		respondError(w, "validation_error", "Original prompt is required", http.StatusBadRequest)
		return
	}

	result, err := h.service.InjectContext(r.Context(), *req)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyContent) || errors.Is(err, domain.ErrInvalidInput) {
			respondError(w, "validation_error", err.Error(), http.StatusBadRequest)
			return
		}
		log.Printf("Context injection failed: %v", err)
		respondError(w, "injection_error", "Context injection failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, result, http.StatusOK)
}
