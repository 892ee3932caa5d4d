package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/recalldev/recall/internal/domain"
	"github.com/recalldev/recall/internal/domain/models"
	"github.com/recalldev/recall/internal/ports"
)

type ConversationsHandler struct {
	service ports.MemoryService
}

func NewConversationsHandler(service ports.MemoryService) *ConversationsHandler {
	return &ConversationsHandler{service: service}
}

// Store ingests a conversation: persists the transcript, compresses it
// into memory units and indexes them for retrieval.
func (h *ConversationsHandler) Store(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeJSON[models.StoreConversationRequest](r, w)
	if !ok {
		return
	}

	if len(req.Messages) == 0 {
		respondError(w, "validation_error", "At least one message is required", http.StatusBadRequest)
		return
	}
	for i, m := range req.Messages {
		if m.Content == "" {
			respondError(w, "validation_error", "Message content cannot be empty", http.StatusBadRequest)
			return
		}
		if m.Role == "" {
			req.Messages[i].Role = "user"
		}
	}

	result, err := h.service.StoreConversation(r.Context(), *req)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyContent) || errors.Is(err, domain.ErrInvalidInput) {
			respondError(w, "validation_error", err.Error(), http.StatusBadRequest)
			return
		}
		if errors.Is(err, domain.ErrShuttingDown) {
			respondError(w, "unavailable", "Service is shutting down", http.StatusServiceUnavailable)
			return
		}
		log.Printf("Failed to store conversation (session %s): %v", req.SessionID, err)
		respondError(w, "internal_error", "Failed to store conversation", http.StatusInternalServerError)
		return
	}

	status := http.StatusCreated
	if result.Replayed {
		status = http.StatusOK
	}
	respondJSON(w, result, status)
}
