package handlers

import (
	"net/http"

	"github.com/recalldev/recall/internal/ports"
)

type HealthHandler struct {
	service ports.MemoryService
}

func NewHealthHandler(service ports.MemoryService) *HealthHandler {
	return &HealthHandler{service: service}
}

func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	report := h.service.Health(r.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	respondJSON(w, report, status)
}

func (h *HealthHandler) Stats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, h.service.Status(r.Context()), http.StatusOK)
}
