package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/jcandido/hidrogest/backend/middleware"
	"github.com/jcandido/hidrogest/backend/models"
	"github.com/jcandido/hidrogest/backend/services"
)

type ReadingHandler struct {
	db      *sql.DB
	billing *services.BillingService
}

func NewReadingHandler(db *sql.DB, billing *services.BillingService) *ReadingHandler {
	return &ReadingHandler{db: db, billing: billing}
}

type SaveReadingRequest struct {
	EntityType   string  `json:"entity_type" validate:"required,oneof=associate hydrometer"`
	AssociateID  int     `json:"associate_id"`
	HydrometerID string  `json:"hydrometer_id" validate:"omitempty,uuid4"`
	PeriodID     int     `json:"period_id" validate:"required"`
	Value        float64 `json:"value" validate:"gte=0"`
	IsReset      bool    `json:"is_reset"`
	ReadingDate  string  `json:"reading_date" validate:"omitempty,datetime=2006-01-02"`
}

type BulkResetRequest struct {
	EntityType string   `json:"entity_type" validate:"required,oneof=associate hydrometer"`
	EntityIDs  []string `json:"entity_ids" validate:"required,min=1"`
	PeriodID   int      `json:"period_id" validate:"required"`
}

// Save runs the reconcile-and-save pipeline: validation, reading upsert and
// invoice synthesis in one transaction. A rejected reading persists nothing.
func (h *ReadingHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveReadingRequest
	if err := decodeValid(r, &req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	readingDate := time.Now()
	if req.ReadingDate != "" {
		var err error
		readingDate, err = time.Parse("2006-01-02", req.ReadingDate)
		if err != nil {
			http.Error(w, "Invalid reading_date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}

	actor := middleware.Actor(r.Context())

	var result *services.SaveReadingResult
	var err error
	switch req.EntityType {
	case models.EntityAssociate:
		result, err = h.billing.SaveAssociateReading(req.AssociateID, req.PeriodID, req.Value, req.IsReset, readingDate, actor)
	case models.EntityHydrometer:
		result, err = h.billing.SaveGeneralReading(req.HydrometerID, req.PeriodID, req.Value, req.IsReset, readingDate, actor)
	}

	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (h *ReadingHandler) BulkReset(w http.ResponseWriter, r *http.Request) {
	var req BulkResetRequest
	if err := decodeValid(r, &req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	actor := middleware.Actor(r.Context())

	count, err := h.billing.BulkReset(req.EntityType, req.EntityIDs, req.PeriodID, actor)
	if err != nil {
		writeError(w, err)
		return
	}

	log.Printf("Bulk reset of %d entities requested by %s", count, actor)
	writeJSON(w, http.StatusOK, map[string]int{"reset_count": count})
}

// ListGeneral returns the general hydrometer readings for one period.
func (h *ReadingHandler) ListGeneral(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.Atoi(r.URL.Query().Get("period_id"))
	if err != nil {
		http.Error(w, "Invalid period_id", http.StatusBadRequest)
		return
	}

	rows, err := h.db.Query(`
		SELECT id, hydrometer_id, period_id, reading_date, current_reading,
		       previous_reading, consumption, is_reset, created_at, updated_at
		FROM general_readings
		WHERE period_id = ?
		ORDER BY hydrometer_id
	`, periodID)
	if err != nil {
		log.Printf("Error listing general readings: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	readings := []models.GeneralReading{}
	for rows.Next() {
		var g models.GeneralReading
		if err := rows.Scan(&g.ID, &g.HydrometerID, &g.PeriodID, &g.ReadingDate, &g.CurrentReading,
			&g.PreviousReading, &g.Consumption, &g.IsReset, &g.CreatedAt, &g.UpdatedAt); err != nil {
			continue
		}
		readings = append(readings, g)
	}

	writeJSON(w, http.StatusOK, readings)
}

// ResetLogs exposes the append-only audit trail for a period.
func (h *ReadingHandler) ResetLogs(w http.ResponseWriter, r *http.Request) {
	periodID, err := strconv.Atoi(r.URL.Query().Get("period_id"))
	if err != nil {
		http.Error(w, "Invalid period_id", http.StatusBadRequest)
		return
	}

	rows, err := h.db.Query(`
		SELECT id, entity_type, entity_id, period_id, performed_by, created_at
		FROM baseline_reset_logs
		WHERE period_id = ?
		ORDER BY created_at DESC
	`, periodID)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	logs := []models.BaselineResetLog{}
	for rows.Next() {
		var l models.BaselineResetLog
		if err := rows.Scan(&l.ID, &l.EntityType, &l.EntityID, &l.PeriodID, &l.PerformedBy, &l.CreatedAt); err != nil {
			continue
		}
		logs = append(logs, l)
	}

	writeJSON(w, http.StatusOK, logs)
}
