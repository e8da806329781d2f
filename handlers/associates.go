package handlers

import (
	"database/sql"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/jcandido/hidrogest/backend/models"
	"github.com/jcandido/hidrogest/backend/services"
)

type AssociateHandler struct {
	db      *sql.DB
	billing *services.BillingService
}

func NewAssociateHandler(db *sql.DB, billing *services.BillingService) *AssociateHandler {
	return &AssociateHandler{db: db, billing: billing}
}

type AssociateRequest struct {
	Name           string  `json:"name" validate:"required"`
	Address        string  `json:"address"`
	Contact        string  `json:"contact"`
	DocumentNumber string  `json:"document_number"`
	Type           string  `json:"type" validate:"required,oneof=Associado Entidade Outro"`
	Region         string  `json:"region"`
	HydrometerID   *string `json:"hydrometer_id" validate:"omitempty,uuid4"`
	IsActive       *bool   `json:"is_active"`
	Observations   string  `json:"observations"`
}

const associateColumns = `
	id, sequential_id, name, address, contact, document_number, type,
	region, hydrometer_id, is_active, observations, created_at, updated_at`

func scanAssociate(row interface{ Scan(...interface{}) error }) (models.Associate, error) {
	var a models.Associate
	err := row.Scan(&a.ID, &a.SequentialID, &a.Name, &a.Address, &a.Contact, &a.DocumentNumber,
		&a.Type, &a.Region, &a.HydrometerID, &a.IsActive, &a.Observations, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (h *AssociateHandler) List(w http.ResponseWriter, r *http.Request) {
	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	region := r.URL.Query().Get("region")
	hydrometerID := r.URL.Query().Get("hydrometer_id")

	query := "SELECT " + associateColumns + " FROM associates"

	var conditions []string
	var args []interface{}

	if !includeInactive {
		conditions = append(conditions, "is_active = 1")
	}
	if region != "" {
		conditions = append(conditions, "region = ?")
		args = append(args, region)
	}
	if hydrometerID != "" {
		conditions = append(conditions, "hydrometer_id = ?")
		args = append(args, hydrometerID)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY sequential_id"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		log.Printf("Error listing associates: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	associates := []models.Associate{}
	for rows.Next() {
		a, err := scanAssociate(rows)
		if err != nil {
			log.Printf("Error scanning associate: %v", err)
			continue
		}
		associates = append(associates, a)
	}

	writeJSON(w, http.StatusOK, associates)
}

func (h *AssociateHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	a, err := scanAssociate(h.db.QueryRow("SELECT "+associateColumns+" FROM associates WHERE id = ?", id))
	if err == sql.ErrNoRows {
		http.Error(w, "Associate not found", http.StatusNotFound)
		return
	}
	if err != nil {
		log.Printf("Error getting associate: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// Create assigns the sequential id from the settings counter inside the same
// transaction as the insert, so two concurrent creates can never share one.
func (h *AssociateHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req AssociateRequest
	if err := decodeValid(r, &req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	tx, err := h.db.Begin()
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer tx.Rollback()

	var sequentialID int
	if err := tx.QueryRow("SELECT next_sequential_id FROM app_settings WHERE id = 1").Scan(&sequentialID); err != nil {
		log.Printf("Error reading sequential counter: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	if _, err := tx.Exec(`
		UPDATE app_settings
		SET next_sequential_id = next_sequential_id + 1, updated_at = CURRENT_TIMESTAMP
		WHERE id = 1
	`); err != nil {
		log.Printf("Error incrementing sequential counter: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	result, err := tx.Exec(`
		INSERT INTO associates (sequential_id, name, address, contact, document_number,
		                        type, region, hydrometer_id, is_active, observations)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sequentialID, req.Name, req.Address, req.Contact, req.DocumentNumber,
		req.Type, req.Region, req.HydrometerID, isActive, req.Observations)
	if err != nil {
		log.Printf("Error creating associate: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	if err := tx.Commit(); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	id, _ := result.LastInsertId()
	a, err := scanAssociate(h.db.QueryRow("SELECT "+associateColumns+" FROM associates WHERE id = ?", id))
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	log.Printf("Created associate #%d: %s", sequentialID, req.Name)
	writeJSON(w, http.StatusCreated, a)
}

func (h *AssociateHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var req AssociateRequest
	if err := decodeValid(r, &req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	isActive := true
	if req.IsActive != nil {
		isActive = *req.IsActive
	}

	result, err := h.db.Exec(`
		UPDATE associates
		SET name = ?, address = ?, contact = ?, document_number = ?, type = ?,
		    region = ?, hydrometer_id = ?, is_active = ?, observations = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, req.Name, req.Address, req.Contact, req.DocumentNumber, req.Type,
		req.Region, req.HydrometerID, isActive, req.Observations, id)
	if err != nil {
		log.Printf("Error updating associate: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		http.Error(w, "Associate not found", http.StatusNotFound)
		return
	}

	a, err := scanAssociate(h.db.QueryRow("SELECT "+associateColumns+" FROM associates WHERE id = ?", id))
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// Delete refuses to remove an associate that readings or invoices still
// reference; the referential-integrity guard lives here, not in the schema.
func (h *AssociateHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var readingCount, invoiceCount int
	h.db.QueryRow("SELECT COUNT(*) FROM readings WHERE associate_id = ?", id).Scan(&readingCount)
	h.db.QueryRow("SELECT COUNT(*) FROM invoices WHERE associate_id = ?", id).Scan(&invoiceCount)

	if readingCount > 0 || invoiceCount > 0 {
		writeError(w, services.NewFailure(services.KindReferentialIntegrity,
			"associate %d still has %d readings and %d invoices", id, readingCount, invoiceCount))
		return
	}

	result, err := h.db.Exec("DELETE FROM associates WHERE id = ?", id)
	if err != nil {
		log.Printf("Error deleting associate: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	affected, _ := result.RowsAffected()
	if affected == 0 {
		http.Error(w, "Associate not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// History returns the associate's readings, newest period first.
func (h *AssociateHandler) History(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	readings, err := h.billing.AssociateHistory(id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, readings)
}
