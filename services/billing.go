package services

import (
	"database/sql"
	"log"
	"strconv"
	"time"

	"github.com/jcandido/hidrogest/backend/models"
)

type BillingService struct {
	db *sql.DB
}

func NewBillingService(db *sql.DB) *BillingService {
	return &BillingService{db: db}
}

type SaveReadingResult struct {
	Reading     *models.Reading        `json:"reading,omitempty"`
	General     *models.GeneralReading `json:"general_reading,omitempty"`
	Invoice     *models.Invoice        `json:"invoice,omitempty"`
	Consumption float64                `json:"consumption"`
	AmountDue   float64                `json:"amount_due"`
}

// SaveAssociateReading validates and persists a meter reading for an
// associate and synthesizes its invoice, all inside one transaction: both
// records land or neither does. Saving the same (associate, period) again
// overwrites the reading and merge-updates the invoice, preserving its
// payment state. The period snapshot is re-read inside the transaction so
// adjacency is always computed against the freshest list.
func (bs *BillingService) SaveAssociateReading(associateID, periodID int, value float64, isReset bool, readingDate time.Time, actor string) (*SaveReadingResult, error) {
	tx, err := bs.db.Begin()
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer tx.Rollback()

	associate, err := loadAssociate(tx, associateID)
	if err != nil {
		return nil, err
	}

	periods, err := loadPeriodsDesc(tx)
	if err != nil {
		return nil, wrapDBError(err)
	}

	history, err := associateSnapshots(tx, associateID)
	if err != nil {
		return nil, wrapDBError(err)
	}

	rec, err := Reconcile(value, isReset, periodID, periods, history)
	if err != nil {
		return nil, err
	}

	tariff, err := loadTariff(tx, associate.Type)
	if err != nil {
		return nil, wrapDBError(err)
	}
	amountDue := RoundCurrency(AmountDueForType(rec.Consumption, associate.Type, tariff))

	reading, err := upsertReading(tx, associateID, periodID, value, rec, isReset, readingDate)
	if err != nil {
		return nil, wrapDBError(err)
	}

	invoice, err := upsertInvoice(tx, associateID, periodID, reading.ID, rec, amountDue)
	if err != nil {
		return nil, wrapDBError(err)
	}

	if isReset {
		if err := appendResetLog(tx, models.EntityAssociate, strconv.Itoa(associateID), periodID, actor); err != nil {
			return nil, wrapDBError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError(err)
	}

	log.Printf("Saved reading for associate %d period %d: consumption %.2f, amount %.2f",
		associateID, periodID, rec.Consumption, amountDue)

	return &SaveReadingResult{
		Reading:     reading,
		Invoice:     invoice,
		Consumption: rec.Consumption,
		AmountDue:   amountDue,
	}, nil
}

// SaveGeneralReading is the hydrometer counterpart of SaveAssociateReading.
// General hydrometers are not billed, so no invoice is produced; the stored
// consumption feeds the loss report.
func (bs *BillingService) SaveGeneralReading(hydrometerID string, periodID int, value float64, isReset bool, readingDate time.Time, actor string) (*SaveReadingResult, error) {
	tx, err := bs.db.Begin()
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer tx.Rollback()

	if err := checkHydrometer(tx, hydrometerID); err != nil {
		return nil, err
	}

	periods, err := loadPeriodsDesc(tx)
	if err != nil {
		return nil, wrapDBError(err)
	}

	history, err := hydrometerSnapshots(tx, hydrometerID)
	if err != nil {
		return nil, wrapDBError(err)
	}

	rec, err := Reconcile(value, isReset, periodID, periods, history)
	if err != nil {
		return nil, err
	}

	general, err := upsertGeneralReading(tx, hydrometerID, periodID, value, rec, isReset, readingDate)
	if err != nil {
		return nil, wrapDBError(err)
	}

	if isReset {
		if err := appendResetLog(tx, models.EntityHydrometer, hydrometerID, periodID, actor); err != nil {
			return nil, wrapDBError(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError(err)
	}

	log.Printf("Saved general reading for hydrometer %s period %d: consumption %.2f",
		hydrometerID, periodID, rec.Consumption)

	return &SaveReadingResult{General: general, Consumption: rec.Consumption}, nil
}

// BulkReset forces the reset baseline on a set of entities for one period in
// a single transaction: every entity gets previous_reading 0, consumption
// equal to its current meter value, the reset flag, and an append-only audit
// row. Partial application is never observable; any error rolls the whole
// batch back. History prior to the reset period is not rewritten.
func (bs *BillingService) BulkReset(entityType string, entityIDs []string, periodID int, actor string) (int, error) {
	tx, err := bs.db.Begin()
	if err != nil {
		return 0, wrapDBError(err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRow("SELECT COUNT(*) FROM periods WHERE id = ?", periodID).Scan(&exists); err != nil {
		return 0, wrapDBError(err)
	}
	if exists == 0 {
		return 0, NewFailure(KindMissingPeriod, "period %d does not exist", periodID)
	}

	count := 0
	for _, entityID := range entityIDs {
		switch entityType {
		case models.EntityAssociate:
			associateID, convErr := strconv.Atoi(entityID)
			if convErr != nil {
				return 0, NewFailure(KindMissingAssociate, "invalid associate id %q", entityID)
			}
			if err := bs.resetAssociate(tx, associateID, periodID, actor); err != nil {
				return 0, err
			}
		case models.EntityHydrometer:
			if err := bs.resetHydrometer(tx, entityID, periodID, actor); err != nil {
				return 0, err
			}
		default:
			return 0, NewFailure(KindInvalidReading, "unknown entity type %q", entityType)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return 0, wrapDBError(err)
	}

	log.Printf("Bulk reset applied to %d %s entities for period %d by %s", count, entityType, periodID, actor)
	return count, nil
}

func (bs *BillingService) resetAssociate(tx *sql.Tx, associateID, periodID int, actor string) error {
	associate, err := loadAssociate(tx, associateID)
	if err != nil {
		return err
	}

	value, err := draftValue(tx, "readings", "associate_id", associateID, periodID)
	if err != nil {
		return wrapDBError(err)
	}

	rec := ReconcileResult{PreviousReading: 0, Consumption: value}
	reading, err := upsertReading(tx, associateID, periodID, value, rec, true, time.Now())
	if err != nil {
		return wrapDBError(err)
	}

	tariff, err := loadTariff(tx, associate.Type)
	if err != nil {
		return wrapDBError(err)
	}
	amountDue := RoundCurrency(AmountDueForType(rec.Consumption, associate.Type, tariff))

	if _, err := upsertInvoice(tx, associateID, periodID, reading.ID, rec, amountDue); err != nil {
		return wrapDBError(err)
	}

	return wrapDBError(appendResetLog(tx, models.EntityAssociate, strconv.Itoa(associateID), periodID, actor))
}

func (bs *BillingService) resetHydrometer(tx *sql.Tx, hydrometerID string, periodID int, actor string) error {
	if err := checkHydrometer(tx, hydrometerID); err != nil {
		return err
	}

	value, err := draftValue(tx, "general_readings", "hydrometer_id", hydrometerID, periodID)
	if err != nil {
		return wrapDBError(err)
	}

	rec := ReconcileResult{PreviousReading: 0, Consumption: value}
	if _, err := upsertGeneralReading(tx, hydrometerID, periodID, value, rec, true, time.Now()); err != nil {
		return wrapDBError(err)
	}

	return wrapDBError(appendResetLog(tx, models.EntityHydrometer, hydrometerID, periodID, actor))
}

// draftValue picks the meter value a reset carries forward: the value already
// entered for the reset period when there is one, otherwise the entity's last
// known meter value, otherwise 0.
func draftValue(tx *sql.Tx, table, entityColumn string, entityID interface{}, periodID int) (float64, error) {
	var value float64
	err := tx.QueryRow(
		"SELECT current_reading FROM "+table+" WHERE "+entityColumn+" = ? AND period_id = ?",
		entityID, periodID,
	).Scan(&value)
	if err == nil {
		return value, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	err = tx.QueryRow(`
		SELECT r.current_reading
		FROM `+table+` r
		JOIN periods p ON r.period_id = p.id
		WHERE r.`+entityColumn+` = ?
		ORDER BY p.reading_date DESC
		LIMIT 1
	`, entityID).Scan(&value)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return value, nil
}

// MarkInvoicePaid is the only path that changes an invoice's status. A paid
// invoice stays paid; trying to pay it again is rejected so double entry is
// visible to the operator.
func (bs *BillingService) MarkInvoicePaid(invoiceID int, method string) (*models.Invoice, error) {
	tx, err := bs.db.Begin()
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRow("SELECT status FROM invoices WHERE id = ?", invoiceID).Scan(&status)
	if err == sql.ErrNoRows {
		return nil, NewFailure(KindMissingInvoice, "invoice %d does not exist", invoiceID)
	}
	if err != nil {
		return nil, wrapDBError(err)
	}
	if status == models.InvoiceStatusPaid {
		return nil, NewFailure(KindInvalidPayment, "invoice %d is already settled", invoiceID)
	}

	paymentDate := time.Now()
	_, err = tx.Exec(`
		UPDATE invoices
		SET status = ?, payment_method = ?, payment_date = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, models.InvoiceStatusPaid, method, paymentDate, invoiceID)
	if err != nil {
		return nil, wrapDBError(err)
	}

	invoice, err := loadInvoice(tx, invoiceID)
	if err != nil {
		return nil, wrapDBError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError(err)
	}

	log.Printf("Invoice %d marked paid (%s)", invoiceID, method)
	return invoice, nil
}

// AssociateHistory returns the associate's readings ordered newest period
// first.
func (bs *BillingService) AssociateHistory(associateID int) ([]models.Reading, error) {
	if _, err := loadAssociate(bs.db, associateID); err != nil {
		return nil, err
	}

	rows, err := bs.db.Query(`
		SELECT r.id, r.associate_id, r.period_id, r.reading_date, r.current_reading,
		       r.previous_reading, r.consumption, r.is_reset, r.created_at, r.updated_at
		FROM readings r
		JOIN periods p ON r.period_id = p.id
		WHERE r.associate_id = ?
		ORDER BY p.reading_date DESC
	`, associateID)
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer rows.Close()

	readings := []models.Reading{}
	for rows.Next() {
		var r models.Reading
		if err := rows.Scan(&r.ID, &r.AssociateID, &r.PeriodID, &r.ReadingDate, &r.CurrentReading,
			&r.PreviousReading, &r.Consumption, &r.IsReset, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, err
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func loadAssociate(q queryer, id int) (*models.Associate, error) {
	var a models.Associate
	err := q.QueryRow(`
		SELECT id, sequential_id, name, address, contact, document_number, type,
		       region, hydrometer_id, is_active, observations, created_at, updated_at
		FROM associates WHERE id = ?
	`, id).Scan(&a.ID, &a.SequentialID, &a.Name, &a.Address, &a.Contact, &a.DocumentNumber,
		&a.Type, &a.Region, &a.HydrometerID, &a.IsActive, &a.Observations, &a.CreatedAt, &a.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, NewFailure(KindMissingAssociate, "associate %d does not exist", id)
	}
	if err != nil {
		return nil, wrapDBError(err)
	}
	return &a, nil
}

func checkHydrometer(q queryer, id string) error {
	var count int
	if err := q.QueryRow("SELECT COUNT(*) FROM general_hydrometers WHERE id = ?", id).Scan(&count); err != nil {
		return wrapDBError(err)
	}
	if count == 0 {
		return NewFailure(KindMissingHydrometer, "general hydrometer %s does not exist", id)
	}
	return nil
}

// loadTariff fetches the schedule for an associate type. A missing row is
// not an error: all fields default to zero and the engine bills accordingly.
func loadTariff(q queryer, associateType string) (models.TariffSchedule, error) {
	var t models.TariffSchedule
	err := q.QueryRow(`
		SELECT id, associate_type, fixed_fee, free_consumption, standard_meters,
		       basic_tariff, excess_tariff, updated_at
		FROM tariffs WHERE associate_type = ?
	`, associateType).Scan(&t.ID, &t.AssociateType, &t.FixedFee, &t.FreeConsumption,
		&t.StandardMeters, &t.BasicTariff, &t.ExcessTariff, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return models.TariffSchedule{AssociateType: associateType}, nil
	}
	if err != nil {
		return models.TariffSchedule{}, err
	}
	return t, nil
}

func associateSnapshots(q queryer, associateID int) ([]ReadingSnapshot, error) {
	rows, err := q.Query("SELECT period_id, current_reading FROM readings WHERE associate_id = ?", associateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func hydrometerSnapshots(q queryer, hydrometerID string) ([]ReadingSnapshot, error) {
	rows, err := q.Query("SELECT period_id, current_reading FROM general_readings WHERE hydrometer_id = ?", hydrometerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSnapshots(rows)
}

func scanSnapshots(rows *sql.Rows) ([]ReadingSnapshot, error) {
	snapshots := []ReadingSnapshot{}
	for rows.Next() {
		var s ReadingSnapshot
		if err := rows.Scan(&s.PeriodID, &s.CurrentReading); err != nil {
			return nil, err
		}
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}

func upsertReading(tx *sql.Tx, associateID, periodID int, value float64, rec ReconcileResult, isReset bool, readingDate time.Time) (*models.Reading, error) {
	var existingID int
	err := tx.QueryRow("SELECT id FROM readings WHERE associate_id = ? AND period_id = ?",
		associateID, periodID).Scan(&existingID)

	if err == sql.ErrNoRows {
		result, err := tx.Exec(`
			INSERT INTO readings (associate_id, period_id, reading_date, current_reading,
			                      previous_reading, consumption, is_reset)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, associateID, periodID, readingDate, value, rec.PreviousReading, rec.Consumption, isReset)
		if err != nil {
			return nil, err
		}
		id, _ := result.LastInsertId()
		existingID = int(id)
	} else if err != nil {
		return nil, err
	} else {
		_, err = tx.Exec(`
			UPDATE readings
			SET reading_date = ?, current_reading = ?, previous_reading = ?,
			    consumption = ?, is_reset = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, readingDate, value, rec.PreviousReading, rec.Consumption, isReset, existingID)
		if err != nil {
			return nil, err
		}
	}

	return &models.Reading{
		ID:              existingID,
		AssociateID:     associateID,
		PeriodID:        periodID,
		ReadingDate:     readingDate,
		CurrentReading:  value,
		PreviousReading: rec.PreviousReading,
		Consumption:     rec.Consumption,
		IsReset:         isReset,
	}, nil
}

func upsertGeneralReading(tx *sql.Tx, hydrometerID string, periodID int, value float64, rec ReconcileResult, isReset bool, readingDate time.Time) (*models.GeneralReading, error) {
	var existingID int
	err := tx.QueryRow("SELECT id FROM general_readings WHERE hydrometer_id = ? AND period_id = ?",
		hydrometerID, periodID).Scan(&existingID)

	if err == sql.ErrNoRows {
		result, err := tx.Exec(`
			INSERT INTO general_readings (hydrometer_id, period_id, reading_date, current_reading,
			                              previous_reading, consumption, is_reset)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, hydrometerID, periodID, readingDate, value, rec.PreviousReading, rec.Consumption, isReset)
		if err != nil {
			return nil, err
		}
		id, _ := result.LastInsertId()
		existingID = int(id)
	} else if err != nil {
		return nil, err
	} else {
		_, err = tx.Exec(`
			UPDATE general_readings
			SET reading_date = ?, current_reading = ?, previous_reading = ?,
			    consumption = ?, is_reset = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, readingDate, value, rec.PreviousReading, rec.Consumption, isReset, existingID)
		if err != nil {
			return nil, err
		}
	}

	return &models.GeneralReading{
		ID:              existingID,
		HydrometerID:    hydrometerID,
		PeriodID:        periodID,
		ReadingDate:     readingDate,
		CurrentReading:  value,
		PreviousReading: rec.PreviousReading,
		Consumption:     rec.Consumption,
		IsReset:         isReset,
	}, nil
}

// upsertInvoice enforces the one-invoice-per-(associate, period) guarantee:
// query-before-write inside the caller's transaction, merge-update preserving
// status, payment method and payment date when the invoice already exists.
func upsertInvoice(tx *sql.Tx, associateID, periodID, readingID int, rec ReconcileResult, amountDue float64) (*models.Invoice, error) {
	invoiceDate := time.Now()

	var existingID int
	err := tx.QueryRow("SELECT id FROM invoices WHERE associate_id = ? AND period_id = ?",
		associateID, periodID).Scan(&existingID)

	if err == sql.ErrNoRows {
		result, err := tx.Exec(`
			INSERT INTO invoices (associate_id, period_id, reading_id, consumption,
			                      amount_due, previous_reading, invoice_date, status)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, associateID, periodID, readingID, rec.Consumption, amountDue,
			rec.PreviousReading, invoiceDate, models.InvoiceStatusPending)
		if err != nil {
			return nil, err
		}
		id, _ := result.LastInsertId()
		existingID = int(id)
	} else if err != nil {
		return nil, err
	} else {
		_, err = tx.Exec(`
			UPDATE invoices
			SET reading_id = ?, consumption = ?, amount_due = ?, previous_reading = ?,
			    invoice_date = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?
		`, readingID, rec.Consumption, amountDue, rec.PreviousReading, invoiceDate, existingID)
		if err != nil {
			return nil, err
		}
	}

	return loadInvoice(tx, existingID)
}

func loadInvoice(q queryer, id int) (*models.Invoice, error) {
	var inv models.Invoice
	err := q.QueryRow(`
		SELECT id, associate_id, period_id, reading_id, consumption, amount_due,
		       previous_reading, invoice_date, status, payment_method, payment_date,
		       created_at, updated_at
		FROM invoices WHERE id = ?
	`, id).Scan(&inv.ID, &inv.AssociateID, &inv.PeriodID, &inv.ReadingID, &inv.Consumption,
		&inv.AmountDue, &inv.PreviousReading, &inv.InvoiceDate, &inv.Status,
		&inv.PaymentMethod, &inv.PaymentDate, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func appendResetLog(tx *sql.Tx, entityType, entityID string, periodID int, actor string) error {
	_, err := tx.Exec(`
		INSERT INTO baseline_reset_logs (entity_type, entity_id, period_id, performed_by)
		VALUES (?, ?, ?, ?)
	`, entityType, entityID, periodID, actor)
	return err
}
