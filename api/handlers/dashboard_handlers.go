package handlers

import (
	"context"
	"net/http"
	"time"

	"mdip/core/store"
	"mdip/core/utils"
)

type DashboardHandler struct {
	records store.RecordsStore
	logger  *utils.Logger
}

func NewDashboardHandler(records store.RecordsStore, logger *utils.Logger) *DashboardHandler {
	return &DashboardHandler{records: records, logger: logger}
}

func (h *DashboardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	stats, err := h.records.Stats(ctx)
	if err != nil {
		h.logger.Errorf("dashboard stats: %v", err)
		writeError(w, http.StatusServiceUnavailable, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
