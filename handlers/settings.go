package handlers

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"

	"github.com/jcandido/hidrogest/backend/models"
)

type SettingsHandler struct {
	db *sql.DB
}

func NewSettingsHandler(db *sql.DB) *SettingsHandler {
	return &SettingsHandler{db: db}
}

type TariffRequest struct {
	AssociateType   string  `json:"associate_type" validate:"required,oneof=Associado Entidade Outro"`
	FixedFee        float64 `json:"fixed_fee" validate:"gte=0"`
	FreeConsumption float64 `json:"free_consumption" validate:"gte=0"`
	StandardMeters  float64 `json:"standard_meters" validate:"gte=0"`
	BasicTariff     float64 `json:"basic_tariff" validate:"gte=0"`
	ExcessTariff    float64 `json:"excess_tariff" validate:"gte=0"`
}

type RegionsRequest struct {
	Regions []string `json:"regions" validate:"required"`
}

func (h *SettingsHandler) ListTariffs(w http.ResponseWriter, r *http.Request) {
	rows, err := h.db.Query(`
		SELECT id, associate_type, fixed_fee, free_consumption, standard_meters,
		       basic_tariff, excess_tariff, updated_at
		FROM tariffs
		ORDER BY associate_type
	`)
	if err != nil {
		log.Printf("Error listing tariffs: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}
	defer rows.Close()

	tariffs := []models.TariffSchedule{}
	for rows.Next() {
		var t models.TariffSchedule
		if err := rows.Scan(&t.ID, &t.AssociateType, &t.FixedFee, &t.FreeConsumption,
			&t.StandardMeters, &t.BasicTariff, &t.ExcessTariff, &t.UpdatedAt); err != nil {
			continue
		}
		tariffs = append(tariffs, t)
	}

	writeJSON(w, http.StatusOK, tariffs)
}

// UpdateTariff replaces the schedule for one associate type. Running
// computations are unaffected: the engine works on the snapshot read inside
// its own transaction.
func (h *SettingsHandler) UpdateTariff(w http.ResponseWriter, r *http.Request) {
	var req TariffRequest
	if err := decodeValid(r, &req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	_, err := h.db.Exec(`
		INSERT INTO tariffs (associate_type, fixed_fee, free_consumption, standard_meters, basic_tariff, excess_tariff)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(associate_type) DO UPDATE SET
			fixed_fee = excluded.fixed_fee,
			free_consumption = excluded.free_consumption,
			standard_meters = excluded.standard_meters,
			basic_tariff = excluded.basic_tariff,
			excess_tariff = excluded.excess_tariff,
			updated_at = CURRENT_TIMESTAMP
	`, req.AssociateType, req.FixedFee, req.FreeConsumption, req.StandardMeters,
		req.BasicTariff, req.ExcessTariff)
	if err != nil {
		log.Printf("Error updating tariff: %v", err)
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	var t models.TariffSchedule
	h.db.QueryRow(`
		SELECT id, associate_type, fixed_fee, free_consumption, standard_meters,
		       basic_tariff, excess_tariff, updated_at
		FROM tariffs WHERE associate_type = ?
	`, req.AssociateType).Scan(&t.ID, &t.AssociateType, &t.FixedFee, &t.FreeConsumption,
		&t.StandardMeters, &t.BasicTariff, &t.ExcessTariff, &t.UpdatedAt)

	log.Printf("Tariff updated for type %s", req.AssociateType)
	writeJSON(w, http.StatusOK, t)
}

func (h *SettingsHandler) GetRegions(w http.ResponseWriter, r *http.Request) {
	var regionsJSON string
	if err := h.db.QueryRow("SELECT regions FROM app_settings WHERE id = 1").Scan(&regionsJSON); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	regions := []string{}
	if err := json.Unmarshal([]byte(regionsJSON), &regions); err != nil {
		log.Printf("WARNING: Malformed regions setting, returning empty list: %v", err)
	}

	writeJSON(w, http.StatusOK, regions)
}

func (h *SettingsHandler) UpdateRegions(w http.ResponseWriter, r *http.Request) {
	var req RegionsRequest
	if err := decodeValid(r, &req); err != nil {
		http.Error(w, "Invalid request: "+err.Error(), http.StatusBadRequest)
		return
	}

	regionsJSON, err := json.Marshal(req.Regions)
	if err != nil {
		http.Error(w, "Invalid regions", http.StatusBadRequest)
		return
	}

	if _, err := h.db.Exec(`
		UPDATE app_settings SET regions = ?, updated_at = CURRENT_TIMESTAMP WHERE id = 1
	`, string(regionsJSON)); err != nil {
		http.Error(w, "Database error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, req.Regions)
}
