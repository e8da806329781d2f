package services

import (
	"database/sql"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/jcandido/hidrogest/backend/database"
	"github.com/jcandido/hidrogest/backend/models"
)

var testDBSeq int64

// newTestDB opens an isolated in-memory database with the real schema.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:billingtest%d?mode=memory&cache=shared", atomic.AddInt64(&testDBSeq, 1))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)

	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func seedAssociate(t *testing.T, db *sql.DB, name, associateType string) int {
	t.Helper()

	var next int
	if err := db.QueryRow("SELECT next_sequential_id FROM app_settings WHERE id = 1").Scan(&next); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	if _, err := db.Exec("UPDATE app_settings SET next_sequential_id = next_sequential_id + 1 WHERE id = 1"); err != nil {
		t.Fatalf("bump counter: %v", err)
	}

	result, err := db.Exec("INSERT INTO associates (sequential_id, name, type) VALUES (?, ?, ?)",
		next, name, associateType)
	if err != nil {
		t.Fatalf("seed associate: %v", err)
	}
	id, _ := result.LastInsertId()
	return int(id)
}

func seedHydrometer(t *testing.T, db *sql.DB, name string) string {
	t.Helper()

	id := uuid.NewString()
	if _, err := db.Exec("INSERT INTO general_hydrometers (id, name) VALUES (?, ?)", id, name); err != nil {
		t.Fatalf("seed hydrometer: %v", err)
	}
	return id
}

func seedTariff(t *testing.T, db *sql.DB, associateType string, fixedFee, freeConsumption, excessTariff float64) {
	t.Helper()

	_, err := db.Exec(`
		UPDATE tariffs SET fixed_fee = ?, free_consumption = ?, excess_tariff = ?
		WHERE associate_type = ?
	`, fixedFee, freeConsumption, excessTariff, associateType)
	if err != nil {
		t.Fatalf("seed tariff: %v", err)
	}
}

func mustCreatePeriod(t *testing.T, bs *BillingService, y int, m time.Month) *models.BillingPeriod {
	t.Helper()

	period, err := bs.CreatePeriod(time.Date(y, m, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create period %d/%d: %v", m, y, err)
	}
	return period
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()

	var n int
	if err := db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}

func TestSaveReadingSynthesizesInvoice(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)

	seedTariff(t, db, models.AssociateTypeStandard, 20, 5, 7)
	associateID := seedAssociate(t, db, "Maria Silva", models.AssociateTypeStandard)
	sep := mustCreatePeriod(t, bs, 2024, time.September)
	nov := mustCreatePeriod(t, bs, 2024, time.November)

	if _, err := bs.SaveAssociateReading(associateID, sep.ID, 100, false, time.Now(), "tester"); err != nil {
		t.Fatalf("first save: %v", err)
	}

	result, err := bs.SaveAssociateReading(associateID, nov.ID, 112, false, time.Now(), "tester")
	if err != nil {
		t.Fatalf("second save: %v", err)
	}

	if result.Consumption != 12 {
		t.Errorf("consumption = %.2f, want 12", result.Consumption)
	}
	if result.AmountDue != 69.00 {
		t.Errorf("amount due = %.2f, want 69.00 (20 + (12-5)*7)", result.AmountDue)
	}
	if result.Invoice == nil {
		t.Fatal("no invoice synthesized")
	}
	if result.Invoice.Status != models.InvoiceStatusPending {
		t.Errorf("invoice status = %q, want pending", result.Invoice.Status)
	}
	if result.Invoice.PreviousReading != 100 {
		t.Errorf("invoice previous reading = %.2f, want 100", result.Invoice.PreviousReading)
	}
}

func TestSaveReadingIdempotent(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)

	seedTariff(t, db, models.AssociateTypeStandard, 20, 5, 7)
	associateID := seedAssociate(t, db, "João Souza", models.AssociateTypeStandard)
	period := mustCreatePeriod(t, bs, 2024, time.September)

	for i := 0; i < 2; i++ {
		if _, err := bs.SaveAssociateReading(associateID, period.ID, 140, false, time.Now(), "tester"); err != nil {
			t.Fatalf("save %d: %v", i+1, err)
		}
	}

	if n := countRows(t, db, "readings"); n != 1 {
		t.Errorf("readings = %d, want exactly 1", n)
	}
	if n := countRows(t, db, "invoices"); n != 1 {
		t.Errorf("invoices = %d, want exactly 1", n)
	}
}

func TestInvalidReadingPersistsNothing(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)

	seedTariff(t, db, models.AssociateTypeStandard, 20, 5, 7)
	associateID := seedAssociate(t, db, "Ana Lima", models.AssociateTypeStandard)
	sep := mustCreatePeriod(t, bs, 2024, time.September)
	nov := mustCreatePeriod(t, bs, 2024, time.November)

	if _, err := bs.SaveAssociateReading(associateID, sep.ID, 100, false, time.Now(), "tester"); err != nil {
		t.Fatalf("baseline save: %v", err)
	}
	readingsBefore := countRows(t, db, "readings")
	invoicesBefore := countRows(t, db, "invoices")

	_, err := bs.SaveAssociateReading(associateID, nov.ID, 90, false, time.Now(), "tester")
	f, ok := AsFailure(err)
	if !ok || f.Kind != KindInvalidReading {
		t.Fatalf("err = %v, want invalid_reading failure", err)
	}

	if n := countRows(t, db, "readings"); n != readingsBefore {
		t.Errorf("readings changed on rejected save: %d -> %d", readingsBefore, n)
	}
	if n := countRows(t, db, "invoices"); n != invoicesBefore {
		t.Errorf("invoices changed on rejected save: %d -> %d", invoicesBefore, n)
	}
}

func TestResetReadingSemantics(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)

	seedTariff(t, db, models.AssociateTypeStandard, 20, 5, 7)
	associateID := seedAssociate(t, db, "Carlos Mota", models.AssociateTypeStandard)
	sep := mustCreatePeriod(t, bs, 2024, time.September)
	nov := mustCreatePeriod(t, bs, 2024, time.November)

	if _, err := bs.SaveAssociateReading(associateID, sep.ID, 999, false, time.Now(), "tester"); err != nil {
		t.Fatalf("baseline save: %v", err)
	}

	// Meter was replaced: value 50 is below 999 but valid under reset.
	result, err := bs.SaveAssociateReading(associateID, nov.ID, 50, true, time.Now(), "operador1")
	if err != nil {
		t.Fatalf("reset save: %v", err)
	}

	if result.Reading.PreviousReading != 0 {
		t.Errorf("previous reading = %.2f, want 0 after reset", result.Reading.PreviousReading)
	}
	if result.Consumption != 50 {
		t.Errorf("consumption = %.2f, want 50 after reset", result.Consumption)
	}

	// Prior history untouched.
	var priorValue float64
	db.QueryRow("SELECT current_reading FROM readings WHERE associate_id = ? AND period_id = ?",
		associateID, sep.ID).Scan(&priorValue)
	if priorValue != 999 {
		t.Errorf("prior reading mutated by reset: %.2f", priorValue)
	}

	// Audit row attributed to the actor.
	var performedBy string
	if err := db.QueryRow("SELECT performed_by FROM baseline_reset_logs WHERE period_id = ?", nov.ID).Scan(&performedBy); err != nil {
		t.Fatalf("no reset log row: %v", err)
	}
	if performedBy != "operador1" {
		t.Errorf("reset log actor = %q, want operador1", performedBy)
	}
}

func TestResaveRecomputesAmountButPreservesPayment(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)

	seedTariff(t, db, models.AssociateTypeStandard, 20, 5, 7)
	associateID := seedAssociate(t, db, "Rita Nunes", models.AssociateTypeStandard)
	period := mustCreatePeriod(t, bs, 2024, time.September)

	first, err := bs.SaveAssociateReading(associateID, period.ID, 10, false, time.Now(), "tester")
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := bs.MarkInvoicePaid(first.Invoice.ID, "pix"); err != nil {
		t.Fatalf("mark paid: %v", err)
	}

	second, err := bs.SaveAssociateReading(associateID, period.ID, 20, false, time.Now(), "tester")
	if err != nil {
		t.Fatalf("resave: %v", err)
	}

	if second.Invoice.ID != first.Invoice.ID {
		t.Errorf("resave created a second invoice: %d vs %d", second.Invoice.ID, first.Invoice.ID)
	}
	if second.Invoice.Status != models.InvoiceStatusPaid {
		t.Errorf("payment status lost on recompute: %q", second.Invoice.Status)
	}
	if second.Invoice.PaymentMethod == nil || *second.Invoice.PaymentMethod != "pix" {
		t.Errorf("payment method lost on recompute")
	}
	if second.Invoice.AmountDue != RoundCurrency(20+(20-5)*7) {
		t.Errorf("amount due not recomputed: %.2f", second.Invoice.AmountDue)
	}
}

func TestMarkInvoicePaidTransitions(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)

	seedTariff(t, db, models.AssociateTypeStandard, 20, 5, 7)
	associateID := seedAssociate(t, db, "Pedro Reis", models.AssociateTypeStandard)
	period := mustCreatePeriod(t, bs, 2024, time.September)

	result, err := bs.SaveAssociateReading(associateID, period.ID, 30, false, time.Now(), "tester")
	if err != nil {
		t.Fatalf("save: %v", err)
	}

	paid, err := bs.MarkInvoicePaid(result.Invoice.ID, "dinheiro")
	if err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	if paid.Status != models.InvoiceStatusPaid || paid.PaymentDate == nil {
		t.Errorf("invoice not settled: status %q, payment date %v", paid.Status, paid.PaymentDate)
	}

	_, err = bs.MarkInvoicePaid(result.Invoice.ID, "dinheiro")
	if f, ok := AsFailure(err); !ok || f.Kind != KindInvalidPayment {
		t.Errorf("double payment: err = %v, want invalid_payment", err)
	}

	_, err = bs.MarkInvoicePaid(9999, "dinheiro")
	if f, ok := AsFailure(err); !ok || f.Kind != KindMissingInvoice {
		t.Errorf("missing invoice: err = %v, want missing_invoice", err)
	}
}

func TestSaveReadingMissingReferences(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)

	period := mustCreatePeriod(t, bs, 2024, time.September)

	_, err := bs.SaveAssociateReading(42, period.ID, 10, false, time.Now(), "tester")
	if f, ok := AsFailure(err); !ok || f.Kind != KindMissingAssociate {
		t.Errorf("err = %v, want missing_associate", err)
	}

	associateID := seedAssociate(t, db, "Sem Período", models.AssociateTypeStandard)
	_, err = bs.SaveAssociateReading(associateID, 777, 10, false, time.Now(), "tester")
	if f, ok := AsFailure(err); !ok || f.Kind != KindMissingPeriod {
		t.Errorf("err = %v, want missing_period", err)
	}

	// The reset flag does not bypass the period check; nothing may land.
	_, err = bs.SaveAssociateReading(associateID, 777, 50, true, time.Now(), "tester")
	if f, ok := AsFailure(err); !ok || f.Kind != KindMissingPeriod {
		t.Errorf("reset err = %v, want missing_period", err)
	}
	if n := countRows(t, db, "readings"); n != 0 {
		t.Errorf("readings persisted for nonexistent period: %d", n)
	}
	if n := countRows(t, db, "invoices"); n != 0 {
		t.Errorf("invoices persisted for nonexistent period: %d", n)
	}
	if n := countRows(t, db, "baseline_reset_logs"); n != 0 {
		t.Errorf("reset logs persisted for nonexistent period: %d", n)
	}
}

func TestCreatePeriodRejectsDuplicateCode(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)

	mustCreatePeriod(t, bs, 2024, time.September)

	// Different day, same month: same code.
	_, err := bs.CreatePeriod(time.Date(2024, time.September, 20, 0, 0, 0, 0, time.UTC))
	if f, ok := AsFailure(err); !ok || f.Kind != KindDuplicatePeriodCode {
		t.Fatalf("err = %v, want duplicate_period_code", err)
	}

	if n := countRows(t, db, "periods"); n != 1 {
		t.Errorf("periods = %d, want the original one only", n)
	}
}

func TestSaveGeneralReading(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)

	hydrometerID := seedHydrometer(t, db, "Hidrômetro Central")
	sep := mustCreatePeriod(t, bs, 2024, time.September)
	nov := mustCreatePeriod(t, bs, 2024, time.November)

	if _, err := bs.SaveGeneralReading(hydrometerID, sep.ID, 1000, false, time.Now(), "tester"); err != nil {
		t.Fatalf("first general save: %v", err)
	}

	result, err := bs.SaveGeneralReading(hydrometerID, nov.ID, 1080, false, time.Now(), "tester")
	if err != nil {
		t.Fatalf("second general save: %v", err)
	}
	if result.General.Consumption != 80 {
		t.Errorf("general consumption = %.2f, want 80", result.General.Consumption)
	}

	// No invoice for general hydrometers.
	if n := countRows(t, db, "invoices"); n != 0 {
		t.Errorf("invoices = %d, want 0", n)
	}

	_, err = bs.SaveGeneralReading("missing-id", nov.ID, 5, false, time.Now(), "tester")
	if f, ok := AsFailure(err); !ok || f.Kind != KindMissingHydrometer {
		t.Errorf("err = %v, want missing_hydrometer", err)
	}
}

func TestBulkResetAllOrNothing(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)

	seedTariff(t, db, models.AssociateTypeStandard, 20, 5, 7)
	a1 := seedAssociate(t, db, "Primeiro", models.AssociateTypeStandard)
	a2 := seedAssociate(t, db, "Segundo", models.AssociateTypeStandard)
	sep := mustCreatePeriod(t, bs, 2024, time.September)
	nov := mustCreatePeriod(t, bs, 2024, time.November)

	if _, err := bs.SaveAssociateReading(a1, sep.ID, 300, false, time.Now(), "tester"); err != nil {
		t.Fatalf("seed reading: %v", err)
	}
	if _, err := bs.SaveAssociateReading(a2, nov.ID, 80, false, time.Now(), "tester"); err != nil {
		t.Fatalf("seed reading: %v", err)
	}

	ids := []string{fmt.Sprint(a1), fmt.Sprint(a2)}
	count, err := bs.BulkReset(models.EntityAssociate, ids, nov.ID, "gerente")
	if err != nil {
		t.Fatalf("bulk reset: %v", err)
	}
	if count != 2 {
		t.Errorf("reset count = %d, want 2", count)
	}

	// a1 had no reading in the reset period: its last known value carries over.
	var consumption, previous float64
	var isReset bool
	db.QueryRow("SELECT consumption, previous_reading, is_reset FROM readings WHERE associate_id = ? AND period_id = ?",
		a1, nov.ID).Scan(&consumption, &previous, &isReset)
	if !isReset || previous != 0 || consumption != 300 {
		t.Errorf("a1 after reset: consumption %.1f previous %.1f reset %v, want 300/0/true", consumption, previous, isReset)
	}

	// a2 keeps the value already entered for the period.
	db.QueryRow("SELECT consumption, previous_reading, is_reset FROM readings WHERE associate_id = ? AND period_id = ?",
		a2, nov.ID).Scan(&consumption, &previous, &isReset)
	if !isReset || previous != 0 || consumption != 80 {
		t.Errorf("a2 after reset: consumption %.1f previous %.1f reset %v, want 80/0/true", consumption, previous, isReset)
	}

	if n := countRows(t, db, "baseline_reset_logs"); n != 2 {
		t.Errorf("reset log rows = %d, want 2", n)
	}

	// A batch containing an unknown entity fails wholesale.
	logsBefore := countRows(t, db, "baseline_reset_logs")
	_, err = bs.BulkReset(models.EntityAssociate, []string{fmt.Sprint(a1), "9999"}, nov.ID, "gerente")
	if f, ok := AsFailure(err); !ok || f.Kind != KindMissingAssociate {
		t.Fatalf("err = %v, want missing_associate", err)
	}
	if n := countRows(t, db, "baseline_reset_logs"); n != logsBefore {
		t.Errorf("partial bulk reset observable: log rows %d -> %d", logsBefore, n)
	}
}
