package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/jcandido/hidrogest/backend/models"
	"github.com/jcandido/hidrogest/backend/services"
)

type PeriodHandler struct {
	db      *sql.DB
	billing *services.BillingService
}

func NewPeriodHandler(db *sql.DB, billing *services.BillingService) *PeriodHandler {
	return &PeriodHandler{db: db, billing: billing}
}

type CreatePeriodRequest struct {
	ReadingStartDate string `json:"reading_start_date" validate:"required,datetime=2006-01-02"`
}

// List returns all periods, most recent first.
func (h *PeriodHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(`
		SELECT id, code, name, consumption_label, reading_date, due_date,
		       consumption_start, consumption_end, created_at
		FROM periods
		ORDER BY reading_date DESC
	`)
	if err != nil {
		log.Printf("Error listing periods: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	periods := []models.BillingPeriod{}
	for rows.Next() {
		var p models.BillingPeriod
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.ConsumptionLabel, &p.ReadingDate,
			&p.DueDate, &p.ConsumptionStart, &p.ConsumptionEnd, &p.CreatedAt); err != nil {
			continue
		}
		periods = append(periods, p)
	}

	writeJSON(w, http.StatusOK, periods)
}

// Preview runs the period generator without persisting, so the UI can show
// the operator what a start date produces.
func (h *PeriodHandler) Preview(w http.ResponseWriter, r *http.Request) {
	dateStr := r.URL.Query().Get("reading_start_date")
	start, err := time.Parse("2006-01-02", dateStr)
	if err != nil {
		http.Error(w, "Invalid reading_start_date", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, services.GeneratePeriod(start))
}

func (h *PeriodHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreatePeriodRequest
	if err := decodeValid(r, &req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	start, err := time.Parse("2006-01-02", req.ReadingStartDate)
	if err != nil {
		http.Error(w, "Invalid reading_start_date", http.StatusBadRequest)
		return
	}

	period, err := h.billing.CreatePeriod(start)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, period)
}

func (h *PeriodHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var readingCount, invoiceCount, generalCount int
	h.db.QueryRow("SELECT COUNT(*) FROM readings WHERE period_id = ?", id).Scan(&readingCount)
	h.db.QueryRow("SELECT COUNT(*) FROM invoices WHERE period_id = ?", id).Scan(&invoiceCount)
	h.db.QueryRow("SELECT COUNT(*) FROM general_readings WHERE period_id = ?", id).Scan(&generalCount)

	if readingCount > 0 || invoiceCount > 0 || generalCount > 0 {
		writeError(w, services.NewFailure(services.KindReferentialIntegrity,
			"period %d still has %d readings, %d invoices and %d general readings",
			id, readingCount, invoiceCount, generalCount))
		return
	}

	result, err := h.db.Exec("DELETE FROM periods WHERE id = ?", id)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		http.Error(w, "Period not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
