package services

import (
	"database/sql"

	"github.com/jcandido/hidrogest/backend/models"
)

// ComputeLoss pairs each general hydrometer's registered consumption with the
// summed invoice consumption of its assigned associates. Loss can be negative
// (under-registration or metering error) and is reported as-is, never
// clamped. Pure aggregation over the snapshots passed in.
func ComputeLoss(hydrometers []models.GeneralHydrometer, registered map[string]float64,
	associates []models.Associate, invoiceConsumption map[int]float64) []models.LossRow {

	summed := make(map[string]float64)
	for _, a := range associates {
		if a.HydrometerID == nil {
			continue
		}
		if consumption, ok := invoiceConsumption[a.ID]; ok {
			summed[*a.HydrometerID] += consumption
		}
	}

	rows := []models.LossRow{}
	for _, h := range hydrometers {
		row := models.LossRow{
			HydrometerID:          h.ID,
			HydrometerName:        h.Name,
			RegisteredConsumption: registered[h.ID],
			AssociateConsumption:  summed[h.ID],
		}
		row.Loss = row.RegisteredConsumption - row.AssociateConsumption
		rows = append(rows, row)
	}
	return rows
}

// ReportService builds read-only aggregations over persisted invoices and
// general readings. It never writes.
type ReportService struct {
	db *sql.DB
}

func NewReportService(db *sql.DB) *ReportService {
	return &ReportService{db: db}
}

// LossReport loads the snapshot for one period and runs ComputeLoss on it.
func (rs *ReportService) LossReport(periodID int) ([]models.LossRow, error) {
	var exists int
	if err := rs.db.QueryRow("SELECT COUNT(*) FROM periods WHERE id = ?", periodID).Scan(&exists); err != nil {
		return nil, wrapDBError(err)
	}
	if exists == 0 {
		return nil, NewFailure(KindMissingPeriod, "period %d does not exist", periodID)
	}

	hydrometers, err := rs.loadHydrometers()
	if err != nil {
		return nil, wrapDBError(err)
	}

	registered, err := rs.registeredConsumption(periodID)
	if err != nil {
		return nil, wrapDBError(err)
	}

	associates, err := rs.loadAssociates()
	if err != nil {
		return nil, wrapDBError(err)
	}

	invoiceConsumption, err := rs.invoicedConsumption(periodID)
	if err != nil {
		return nil, wrapDBError(err)
	}

	return ComputeLoss(hydrometers, registered, associates, invoiceConsumption), nil
}

func (rs *ReportService) registeredConsumption(periodID int) (map[string]float64, error) {
	rows, err := rs.db.Query(
		"SELECT hydrometer_id, consumption FROM general_readings WHERE period_id = ?", periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	registered := make(map[string]float64)
	for rows.Next() {
		var id string
		var consumption float64
		if err := rows.Scan(&id, &consumption); err != nil {
			return nil, err
		}
		registered[id] = consumption
	}
	return registered, rows.Err()
}

func (rs *ReportService) invoicedConsumption(periodID int) (map[int]float64, error) {
	rows, err := rs.db.Query(
		"SELECT associate_id, consumption FROM invoices WHERE period_id = ?", periodID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	consumption := make(map[int]float64)
	for rows.Next() {
		var associateID int
		var amount float64
		if err := rows.Scan(&associateID, &amount); err != nil {
			return nil, err
		}
		consumption[associateID] = amount
	}
	return consumption, rows.Err()
}

func (rs *ReportService) loadHydrometers() ([]models.GeneralHydrometer, error) {
	rows, err := rs.db.Query("SELECT id, name, notes, created_at FROM general_hydrometers ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	hydrometers := []models.GeneralHydrometer{}
	for rows.Next() {
		var h models.GeneralHydrometer
		if err := rows.Scan(&h.ID, &h.Name, &h.Notes, &h.CreatedAt); err != nil {
			return nil, err
		}
		hydrometers = append(hydrometers, h)
	}
	return hydrometers, rows.Err()
}

func (rs *ReportService) loadAssociates() ([]models.Associate, error) {
	rows, err := rs.db.Query(`
		SELECT id, sequential_id, name, address, contact, document_number, type,
		       region, hydrometer_id, is_active, observations, created_at, updated_at
		FROM associates
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	associates := []models.Associate{}
	for rows.Next() {
		var a models.Associate
		if err := rows.Scan(&a.ID, &a.SequentialID, &a.Name, &a.Address, &a.Contact,
			&a.DocumentNumber, &a.Type, &a.Region, &a.HydrometerID, &a.IsActive,
			&a.Observations, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		associates = append(associates, a)
	}
	return associates, rows.Err()
}
