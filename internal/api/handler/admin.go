// internal/api/handler/admin.go
package handler

import (
	"log/slog"
	"net/http"

	"slotmine/internal/service"
)

// AdminHandler exposes the expiry processor's operational surface.
type AdminHandler struct {
	processor *service.ExpiryProcessor
	logger    *slog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(processor *service.ExpiryProcessor, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		processor: processor,
		logger:    logger,
	}
}

// RunExpiryNow triggers an immediate expiry sweep.
// POST /admin/expiry/run
func (h *AdminHandler) RunExpiryNow(w http.ResponseWriter, r *http.Request) {
	summary, err := h.processor.RunNow(r.Context())
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, summary)
}

// GetProcessingStatus reports operational counts.
// GET /admin/processing/status
func (h *AdminHandler) GetProcessingStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.processor.Status(r.Context())
	if err != nil {
		respondWithError(h.logger, w, err)
		return
	}
	respondWithJSON(h.logger, w, http.StatusOK, status)
}
