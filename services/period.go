package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/jcandido/hidrogest/backend/models"
)

var monthNames = [...]string{
	"janeiro", "fevereiro", "março", "abril", "maio", "junho",
	"julho", "agosto", "setembro", "outubro", "novembro", "dezembro",
}

func monthName(m time.Month) string {
	return monthNames[int(m)-1]
}

// GeneratePeriod derives the canonical bimonthly billing period from the
// first day of the reading window. Deterministic and pure: two dates in the
// same calendar month produce the same period.
//
// The reading month closes the cycle: consumption happened over the two
// calendar months before it, the bill falls due on day 15 of it, and the
// period name spans the reading month and the next one.
func GeneratePeriod(readingStart time.Time) models.BillingPeriod {
	year, month, _ := readingStart.Date()
	readingDate := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)

	next := readingDate.AddDate(0, 1, 0)
	consumptionStart := readingDate.AddDate(0, -2, 0)
	consumptionEnd := readingDate.AddDate(0, 0, -1)

	return models.BillingPeriod{
		Code: fmt.Sprintf("%02d/%d", int(month), year),
		Name: fmt.Sprintf("Período de %s a %s de %d",
			monthName(month), monthName(next.Month()), next.Year()),
		ConsumptionLabel: fmt.Sprintf("Consumo de %s a %s de %d",
			monthName(consumptionStart.Month()), monthName(consumptionEnd.Month()), consumptionEnd.Year()),
		ReadingDate:      readingDate,
		DueDate:          time.Date(year, month, 15, 0, 0, 0, 0, time.UTC),
		ConsumptionStart: consumptionStart,
		ConsumptionEnd:   consumptionEnd,
	}
}

// CreatePeriod generates and persists the period for a reading-window start
// date. Code uniqueness is checked inside the insert transaction; an existing
// period with the same code is left untouched and the create is rejected.
func (bs *BillingService) CreatePeriod(readingStart time.Time) (*models.BillingPeriod, error) {
	period := GeneratePeriod(readingStart)

	tx, err := bs.db.Begin()
	if err != nil {
		return nil, wrapDBError(err)
	}
	defer tx.Rollback()

	var existing int
	err = tx.QueryRow("SELECT COUNT(*) FROM periods WHERE code = ?", period.Code).Scan(&existing)
	if err != nil {
		return nil, wrapDBError(err)
	}
	if existing > 0 {
		return nil, NewFailure(KindDuplicatePeriodCode, "period %s already exists", period.Code)
	}

	result, err := tx.Exec(`
		INSERT INTO periods (code, name, consumption_label, reading_date, due_date, consumption_start, consumption_end)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, period.Code, period.Name, period.ConsumptionLabel,
		period.ReadingDate, period.DueDate, period.ConsumptionStart, period.ConsumptionEnd)
	if err != nil {
		return nil, wrapDBError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, wrapDBError(err)
	}

	id, _ := result.LastInsertId()
	period.ID = int(id)

	log.Printf("Created billing period %s (%s)", period.Code, period.Name)
	return &period, nil
}

// loadPeriodsDesc fetches the full period list sorted by reading date
// descending. Adjacency for previous-reading lookups is positional in this
// list, so it is re-read inside every write transaction rather than cached.
func loadPeriodsDesc(q queryer) ([]models.BillingPeriod, error) {
	rows, err := q.Query(`
		SELECT id, code, name, consumption_label, reading_date, due_date,
		       consumption_start, consumption_end, created_at
		FROM periods
		ORDER BY reading_date DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	periods := []models.BillingPeriod{}
	for rows.Next() {
		var p models.BillingPeriod
		if err := rows.Scan(&p.ID, &p.Code, &p.Name, &p.ConsumptionLabel,
			&p.ReadingDate, &p.DueDate, &p.ConsumptionStart, &p.ConsumptionEnd, &p.CreatedAt); err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// queryer is satisfied by both *sql.DB and *sql.Tx so the same loaders serve
// reads and write transactions.
type queryer interface {
	Query(query string, args ...interface{}) (*sql.Rows, error)
	QueryRow(query string, args ...interface{}) *sql.Row
}
