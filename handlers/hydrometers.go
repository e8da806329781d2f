package handlers

import (
	"database/sql"
	"log"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/jcandido/hidrogest/backend/models"
	"github.com/jcandido/hidrogest/backend/services"
)

type HydrometerHandler struct {
	db *sql.DB
}

func NewHydrometerHandler(db *sql.DB) *HydrometerHandler {
	return &HydrometerHandler{db: db}
}

type HydrometerRequest struct {
	Name  string `json:"name" validate:"required"`
	Notes string `json:"notes"`
}

func (h *HydrometerHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query("SELECT id, name, notes, created_at FROM general_hydrometers ORDER BY name")
	if err != nil {
		log.Printf("Error listing hydrometers: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	hydrometers := []models.GeneralHydrometer{}
	for rows.Next() {
		var hm models.GeneralHydrometer
		if err := rows.Scan(&hm.ID, &hm.Name, &hm.Notes, &hm.CreatedAt); err != nil {
			continue
		}
		hydrometers = append(hydrometers, hm)
	}

	writeJSON(w, http.StatusOK, hydrometers)
}

func (h *HydrometerHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var hm models.GeneralHydrometer
	err := h.db.QueryRow("SELECT id, name, notes, created_at FROM general_hydrometers WHERE id = ?", id).
		Scan(&hm.ID, &hm.Name, &hm.Notes, &hm.CreatedAt)
	if err == sql.ErrNoRows {
		http.Error(w, "Hydrometer not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, hm)
}

// Create is idempotent on the display name: legacy data identified
// hydrometers by free-text name, so re-registering a known name returns the
// existing row instead of minting a second identity for the same meter.
func (h *HydrometerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req HydrometerRequest
	if err := decodeValid(r, &req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	var existing models.GeneralHydrometer
	err := h.db.QueryRow("SELECT id, name, notes, created_at FROM general_hydrometers WHERE name = ?", req.Name).
		Scan(&existing.ID, &existing.Name, &existing.Notes, &existing.CreatedAt)
	if err == nil {
		writeJSON(w, http.StatusOK, existing)
		return
	}
	if err != sql.ErrNoRows {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	id := uuid.NewString()
	if _, err := h.db.Exec(`
		INSERT INTO general_hydrometers (id, name, notes) VALUES (?, ?, ?)
	`, id, req.Name, req.Notes); err != nil {
		log.Printf("Error creating hydrometer: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	var hm models.GeneralHydrometer
	h.db.QueryRow("SELECT id, name, notes, created_at FROM general_hydrometers WHERE id = ?", id).
		Scan(&hm.ID, &hm.Name, &hm.Notes, &hm.CreatedAt)

	log.Printf("Created general hydrometer %s (%s)", req.Name, id)
	writeJSON(w, http.StatusCreated, hm)
}

func (h *HydrometerHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req HydrometerRequest
	if err := decodeValid(r, &req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	result, err := h.db.Exec("UPDATE general_hydrometers SET name = ?, notes = ? WHERE id = ?",
		req.Name, req.Notes, id)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		http.Error(w, "Hydrometer not found", http.StatusNotFound)
		return
	}

	var hm models.GeneralHydrometer
	h.db.QueryRow("SELECT id, name, notes, created_at FROM general_hydrometers WHERE id = ?", id).
		Scan(&hm.ID, &hm.Name, &hm.Notes, &hm.CreatedAt)
	writeJSON(w, http.StatusOK, hm)
}

func (h *HydrometerHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var associateCount, readingCount int
	h.db.QueryRow("SELECT COUNT(*) FROM associates WHERE hydrometer_id = ?", id).Scan(&associateCount)
	h.db.QueryRow("SELECT COUNT(*) FROM general_readings WHERE hydrometer_id = ?", id).Scan(&readingCount)

	if associateCount > 0 || readingCount > 0 {
		writeError(w, services.NewFailure(services.KindReferentialIntegrity,
			"hydrometer %s still has %d associates and %d readings", id, associateCount, readingCount))
		return
	}

	result, err := h.db.Exec("DELETE FROM general_hydrometers WHERE id = ?", id)
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		http.Error(w, "Hydrometer not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
