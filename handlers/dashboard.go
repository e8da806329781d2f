package handlers

import (
	"database/sql"
	"net/http"
	"strconv"

	"github.com/jcandido/hidrogest/backend/models"
)

type DashboardHandler struct {
	db *sql.DB
}

func NewDashboardHandler(db *sql.DB) *DashboardHandler {
	return &DashboardHandler{db: db}
}

func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	var stats models.DashboardStats

	h.db.QueryRow("SELECT COUNT(*) FROM associates").Scan(&stats.TotalAssociates)
	h.db.QueryRow("SELECT COUNT(*) FROM associates WHERE is_active = 1").Scan(&stats.ActiveAssociates)
	h.db.QueryRow("SELECT COUNT(*) FROM general_hydrometers").Scan(&stats.TotalHydrometers)
	h.db.QueryRow("SELECT COUNT(*) FROM periods").Scan(&stats.TotalPeriods)

	var currentPeriodID int
	err := h.db.QueryRow(`
		SELECT id, code FROM periods ORDER BY reading_date DESC LIMIT 1
	`).Scan(&currentPeriodID, &stats.CurrentPeriodCode)
	if err == nil {
		h.db.QueryRow(`
			SELECT COUNT(*), COALESCE(SUM(amount_due), 0)
			FROM invoices WHERE period_id = ? AND status = 'pending'
		`, currentPeriodID).Scan(&stats.PendingInvoices, &stats.PendingAmount)

		h.db.QueryRow(`
			SELECT COUNT(*), COALESCE(SUM(amount_due), 0)
			FROM invoices WHERE period_id = ? AND status = 'paid'
		`, currentPeriodID).Scan(&stats.PaidInvoices, &stats.PaidAmount)

		h.db.QueryRow(`
			SELECT COALESCE(SUM(consumption), 0)
			FROM readings WHERE period_id = ?
		`, currentPeriodID).Scan(&stats.PeriodConsumption)
	}

	writeJSON(w, http.StatusOK, stats)
}

// GetConsumption returns the billed consumption series for the most recent
// periods, oldest first so the UI can chart it directly.
func (h *DashboardHandler) GetConsumption(w http.ResponseWriter, r *http.Request) {
	limit := 6
	if l, err := strconv.Atoi(r.URL.Query().Get("periods")); err == nil && l > 0 {
		limit = l
	}

	rows, err := h.db.Query(`
		SELECT p.id, p.code,
		       COALESCE((SELECT SUM(consumption) FROM readings WHERE period_id = p.id), 0),
		       COALESCE((SELECT SUM(amount_due) FROM invoices WHERE period_id = p.id), 0)
		FROM periods p
		ORDER BY p.reading_date DESC
		LIMIT ?
	`, limit)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	series := []models.PeriodConsumption{}
	for rows.Next() {
		var pc models.PeriodConsumption
		if err := rows.Scan(&pc.PeriodID, &pc.PeriodCode, &pc.Consumption, &pc.Billed); err != nil {
			continue
		}
		series = append(series, pc)
	}

	// Oldest first.
	for i, j := 0, len(series)-1; i < j; i, j = i+1, j-1 {
		series[i], series[j] = series[j], series[i]
	}

	writeJSON(w, http.StatusOK, series)
}
