package services

import (
	"testing"
	"time"

	"github.com/jcandido/hidrogest/backend/models"
)

func strPtr(s string) *string { return &s }

func TestComputeLoss(t *testing.T) {
	hydrometers := []models.GeneralHydrometer{
		{ID: "h1", Name: "Hidrômetro Norte"},
		{ID: "h2", Name: "Hidrômetro Sul"},
	}
	associates := []models.Associate{
		{ID: 1, HydrometerID: strPtr("h1")},
		{ID: 2, HydrometerID: strPtr("h1")},
		{ID: 3, HydrometerID: strPtr("h1")},
		{ID: 4, HydrometerID: strPtr("h2")},
		{ID: 5, HydrometerID: nil},
	}
	registered := map[string]float64{"h1": 100, "h2": 40}
	consumption := map[int]float64{1: 30, 2: 25, 3: 20, 4: 55, 5: 10}

	rows := ComputeLoss(hydrometers, registered, associates, consumption)
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	byID := map[string]models.LossRow{}
	for _, r := range rows {
		byID[r.HydrometerID] = r
	}

	h1 := byID["h1"]
	if h1.AssociateConsumption != 75 {
		t.Errorf("h1 summed consumption = %.2f, want 75", h1.AssociateConsumption)
	}
	if h1.Loss != 25 {
		t.Errorf("h1 loss = %.2f, want 25", h1.Loss)
	}

	// h2 registered less than its associates consumed: loss goes negative
	// and stays negative.
	h2 := byID["h2"]
	if h2.Loss != -15 {
		t.Errorf("h2 loss = %.2f, want -15", h2.Loss)
	}
}

func TestComputeLossNoData(t *testing.T) {
	hydrometers := []models.GeneralHydrometer{{ID: "h1", Name: "Sem Dados"}}

	rows := ComputeLoss(hydrometers, map[string]float64{}, nil, map[int]float64{})
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	if rows[0].RegisteredConsumption != 0 || rows[0].AssociateConsumption != 0 || rows[0].Loss != 0 {
		t.Errorf("empty snapshot produced nonzero row: %+v", rows[0])
	}
}

func TestLossReport(t *testing.T) {
	db := newTestDB(t)
	bs := NewBillingService(db)
	rs := NewReportService(db)

	seedTariff(t, db, models.AssociateTypeStandard, 20, 5, 7)
	hydrometerID := seedHydrometer(t, db, "Hidrômetro Geral")

	a1 := seedAssociate(t, db, "Ligado Um", models.AssociateTypeStandard)
	a2 := seedAssociate(t, db, "Ligado Dois", models.AssociateTypeStandard)
	for _, id := range []int{a1, a2} {
		if _, err := db.Exec("UPDATE associates SET hydrometer_id = ? WHERE id = ?", hydrometerID, id); err != nil {
			t.Fatalf("assign hydrometer: %v", err)
		}
	}

	period := mustCreatePeriod(t, bs, 2024, time.September)

	if _, err := bs.SaveGeneralReading(hydrometerID, period.ID, 100, false, time.Now(), "tester"); err != nil {
		t.Fatalf("general reading: %v", err)
	}
	if _, err := bs.SaveAssociateReading(a1, period.ID, 30, false, time.Now(), "tester"); err != nil {
		t.Fatalf("reading a1: %v", err)
	}
	if _, err := bs.SaveAssociateReading(a2, period.ID, 45, false, time.Now(), "tester"); err != nil {
		t.Fatalf("reading a2: %v", err)
	}

	rows, err := rs.LossReport(period.ID)
	if err != nil {
		t.Fatalf("loss report: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.RegisteredConsumption != 100 {
		t.Errorf("registered = %.2f, want 100", row.RegisteredConsumption)
	}
	if row.AssociateConsumption != 75 {
		t.Errorf("associate consumption = %.2f, want 75", row.AssociateConsumption)
	}
	if row.Loss != 25 {
		t.Errorf("loss = %.2f, want 25", row.Loss)
	}

	_, err = rs.LossReport(9999)
	if f, ok := AsFailure(err); !ok || f.Kind != KindMissingPeriod {
		t.Errorf("err = %v, want missing_period", err)
	}
}
