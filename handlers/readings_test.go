package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jcandido/hidrogest/backend/database"
	"github.com/jcandido/hidrogest/backend/models"
	"github.com/jcandido/hidrogest/backend/services"
)

var handlerDBSeq int64

func newHandlerDB(t *testing.T) *sql.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:handlertest%d?mode=memory&cache=shared", atomic.AddInt64(&handlerDBSeq, 1))
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

func postJSON(t *testing.T, handler http.HandlerFunc, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestSaveReadingEndpoint(t *testing.T) {
	db := newHandlerDB(t)
	billing := services.NewBillingService(db)
	h := NewReadingHandler(db, billing)

	if _, err := db.Exec("INSERT INTO associates (sequential_id, name, type) VALUES (1, 'Teste', ?)",
		models.AssociateTypeStandard); err != nil {
		t.Fatalf("seed associate: %v", err)
	}
	period, err := billing.CreatePeriod(time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create period: %v", err)
	}

	rec := postJSON(t, h.Save, SaveReadingRequest{
		EntityType:  models.EntityAssociate,
		AssociateID: 1,
		PeriodID:    period.ID,
		Value:       42,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}

	var result services.SaveReadingResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if result.Invoice == nil || result.Invoice.Status != models.InvoiceStatusPending {
		t.Errorf("response carries no pending invoice: %+v", result.Invoice)
	}
}

func TestSaveReadingEndpointRejectsRegression(t *testing.T) {
	db := newHandlerDB(t)
	billing := services.NewBillingService(db)
	h := NewReadingHandler(db, billing)

	if _, err := db.Exec("INSERT INTO associates (sequential_id, name, type) VALUES (1, 'Teste', ?)",
		models.AssociateTypeStandard); err != nil {
		t.Fatalf("seed associate: %v", err)
	}
	sep, err := billing.CreatePeriod(time.Date(2024, time.September, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create period: %v", err)
	}
	nov, err := billing.CreatePeriod(time.Date(2024, time.November, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("create period: %v", err)
	}

	if _, err := billing.SaveAssociateReading(1, sep.ID, 100, false, time.Now(), "tester"); err != nil {
		t.Fatalf("baseline save: %v", err)
	}

	rec := postJSON(t, h.Save, SaveReadingRequest{
		EntityType:  models.EntityAssociate,
		AssociateID: 1,
		PeriodID:    nov.ID,
		Value:       90,
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422, body %s", rec.Code, rec.Body.String())
	}

	var failure services.Failure
	if err := json.NewDecoder(rec.Body).Decode(&failure); err != nil {
		t.Fatalf("decode failure body: %v", err)
	}
	if failure.Kind != services.KindInvalidReading {
		t.Errorf("failure kind = %q, want invalid_reading", failure.Kind)
	}
}

func TestSaveReadingEndpointValidation(t *testing.T) {
	db := newHandlerDB(t)
	h := NewReadingHandler(db, services.NewBillingService(db))

	rec := postJSON(t, h.Save, SaveReadingRequest{
		EntityType: "medidor",
		PeriodID:   1,
		Value:      10,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for unknown entity type", rec.Code)
	}

	rec = postJSON(t, h.Save, map[string]interface{}{
		"entity_type":  models.EntityAssociate,
		"associate_id": 1,
		"period_id":    1,
		"value":        -5,
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for negative value", rec.Code)
	}

	rec = postJSON(t, h.Save, SaveReadingRequest{
		EntityType:  models.EntityAssociate,
		AssociateID: 1,
		PeriodID:    1,
		Value:       10,
		ReadingDate: "31/08/2024",
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed reading_date", rec.Code)
	}
}
