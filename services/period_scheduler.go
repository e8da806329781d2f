package services

import (
	"database/sql"
	"log"
	"time"

	"github.com/robfig/cron/v3"
)

// PeriodScheduler opens the next bimonthly billing period automatically once
// two months have elapsed since the newest period's reading date. Operators
// seed the first period by hand; from then on the cadence keeps itself going
// even if nobody remembers to create one.
type PeriodScheduler struct {
	db      *sql.DB
	billing *BillingService
	cron    *cron.Cron
}

func NewPeriodScheduler(db *sql.DB, billing *BillingService) *PeriodScheduler {
	return &PeriodScheduler{
		db:      db,
		billing: billing,
		cron:    cron.New(cron.WithLocation(time.UTC)),
	}
}

func (s *PeriodScheduler) Start() {
	log.Println("Period scheduler started")

	// Catch up immediately on startup in case the service was down when a
	// cycle rolled over.
	s.ensureCurrentPeriod()

	s.cron.AddFunc("0 4 * * *", s.ensureCurrentPeriod)
	s.cron.Start()
}

func (s *PeriodScheduler) Stop() {
	s.cron.Stop()
	log.Println("Period scheduler stopped")
}

func (s *PeriodScheduler) ensureCurrentPeriod() {
	var latest time.Time
	err := s.db.QueryRow("SELECT reading_date FROM periods ORDER BY reading_date DESC LIMIT 1").Scan(&latest)
	if err == sql.ErrNoRows {
		// No periods yet; the first one is an operator decision.
		return
	}
	if err != nil {
		log.Printf("ERROR: Period scheduler could not read latest period: %v", err)
		return
	}

	next := latest.AddDate(0, 2, 0)
	if time.Now().Before(next) {
		return
	}

	period, err := s.billing.CreatePeriod(next)
	if err != nil {
		if f, ok := AsFailure(err); ok && f.Kind == KindDuplicatePeriodCode {
			// Another operator already opened it.
			return
		}
		log.Printf("ERROR: Period scheduler failed to create period: %v", err)
		return
	}

	log.Printf("Period scheduler opened period %s automatically", period.Code)
}
