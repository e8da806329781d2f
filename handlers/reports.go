package handlers

import (
	"net/http"
	"strconv"

	"github.com/jcandido/hidrogest/backend/services"
)

type ReportHandler struct {
	reports *services.ReportService
}

func NewReportHandler(reports *services.ReportService) *ReportHandler {
	return &ReportHandler{reports: reports}
}

// Loss returns the per-hydrometer loss estimate for a period: registered
// consumption on the shared meter minus the sum billed to its associates.
func (h *ReportHandler) Loss(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.Atoi(r.URL.Query().Get("period_id"))
	if err != nil {
		http.Error(w, "Invalid period_id", http.StatusBadRequest)
		return
	}

	rows, err := h.reports.LossReport(periodID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, rows)
}
