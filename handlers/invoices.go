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

type InvoiceHandler struct {
	db      *sql.DB
	billing *services.BillingService
}

func NewInvoiceHandler(db *sql.DB, billing *services.BillingService) *InvoiceHandler {
	return &InvoiceHandler{db: db, billing: billing}
}

type PayInvoiceRequest struct {
	PaymentMethod string `json:"payment_method" validate:"required"`
}

const invoiceColumns = `
	id, associate_id, period_id, reading_id, consumption, amount_due,
	previous_reading, invoice_date, status, payment_method, payment_date,
	created_at, updated_at`

func (h *InvoiceHandler) List(w http.ResponseWriter, r *http.Request) {
	query := "SELECT " + invoiceColumns + " FROM invoices"

	var conditions []string
	var args []interface{}

	if periodID := r.URL.Query().Get("period_id"); periodID != "" {
		conditions = append(conditions, "period_id = ?")
		args = append(args, periodID)
	}
	if associateID := r.URL.Query().Get("associate_id"); associateID != "" {
		conditions = append(conditions, "associate_id = ?")
		args = append(args, associateID)
	}
	if status := r.URL.Query().Get("status"); status != "" {
		conditions = append(conditions, "status = ?")
		args = append(args, status)
	}

	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}

	query += " ORDER BY invoice_date DESC"

	rows, err := h.db.Query(query, args...)
	if err != nil {
		log.Printf("Error listing invoices: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	invoices := []models.Invoice{}
	for rows.Next() {
		var inv models.Invoice
		if err := rows.Scan(&inv.ID, &inv.AssociateID, &inv.PeriodID, &inv.ReadingID,
			&inv.Consumption, &inv.AmountDue, &inv.PreviousReading, &inv.InvoiceDate,
			&inv.Status, &inv.PaymentMethod, &inv.PaymentDate, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			log.Printf("Error scanning invoice: %v", err)
			continue
		}
		invoices = append(invoices, inv)
	}

	writeJSON(w, http.StatusOK, invoices)
}

func (h *InvoiceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var inv models.Invoice
	err = h.db.QueryRow("SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id).
		Scan(&inv.ID, &inv.AssociateID, &inv.PeriodID, &inv.ReadingID,
			&inv.Consumption, &inv.AmountDue, &inv.PreviousReading, &inv.InvoiceDate,
			&inv.Status, &inv.PaymentMethod, &inv.PaymentDate, &inv.CreatedAt, &inv.UpdatedAt)
	if err == sql.ErrNoRows {
		http.Error(w, "Invoice not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, inv)
}

func (h *InvoiceHandler) Pay(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, "Invalid ID", http.StatusBadRequest)
		return
	}

	var req PayInvoiceRequest
	if err := decodeValid(r, &req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	invoice, err := h.billing.MarkInvoicePaid(id, req.PaymentMethod)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, invoice)
}
