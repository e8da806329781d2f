package services

import "github.com/jcandido/hidrogest/backend/models"

// ReadingSnapshot is the slice of a stored reading the reconciler needs.
type ReadingSnapshot struct {
	PeriodID       int
	CurrentReading float64
}

// ReconcileResult is the outcome of validating a new reading against the
// entity's history.
type ReconcileResult struct {
	PreviousReading float64
	Consumption     float64
}

// FindPreviousReading resolves the baseline meter value for a target period.
// periods must be sorted by reading date descending; the previous period is
// the next entry in that list, whatever its calendar distance, so irregular
// or missing periods do not shift the math onto the wrong cycle. Returns 0
// when the target is the oldest period or the entity has no reading in the
// previous one.
func FindPreviousReading(periodID int, periods []models.BillingPeriod, history []ReadingSnapshot) (float64, error) {
	idx := -1
	for i, p := range periods {
		if p.ID == periodID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return 0, NewFailure(KindMissingPeriod, "period %d does not exist", periodID)
	}
	if idx+1 >= len(periods) {
		return 0, nil
	}

	previousPeriodID := periods[idx+1].ID
	for _, h := range history {
		if h.PeriodID == previousPeriodID {
			return h.CurrentReading, nil
		}
	}
	return 0, nil
}

// Reconcile validates a new meter value for a period against the entity's
// history and computes its consumption. A reset zeroes the baseline:
// consumption equals the new value and prior history is left alone. Without
// the reset flag, a value below the previous reading is an invalid_reading
// failure and nothing may be persisted. The target period must exist on both
// paths; a reset against an unknown period is rejected, not written.
func Reconcile(newValue float64, isReset bool, periodID int, periods []models.BillingPeriod, history []ReadingSnapshot) (ReconcileResult, error) {
	if isReset {
		for _, p := range periods {
			if p.ID == periodID {
				return ReconcileResult{PreviousReading: 0, Consumption: newValue}, nil
			}
		}
		return ReconcileResult{}, NewFailure(KindMissingPeriod, "period %d does not exist", periodID)
	}

	previous, err := FindPreviousReading(periodID, periods, history)
	if err != nil {
		return ReconcileResult{}, err
	}

	if newValue < previous {
		return ReconcileResult{}, NewFailure(KindInvalidReading,
			"reading %.2f is below previous reading %.2f; flag a meter reset if the meter was replaced",
			newValue, previous)
	}

	return ReconcileResult{
		PreviousReading: previous,
		Consumption:     newValue - previous,
	}, nil
}
