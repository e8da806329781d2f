package services

import (
	"math"

	"github.com/jcandido/hidrogest/backend/models"
)

// includedBand is the consumption covered by the fixed fee. Schedules in the
// wild carry either free_consumption or standard_meters (or both); the larger
// one wins so a schedule configured with either field behaves the same.
func includedBand(tariff models.TariffSchedule) float64 {
	if tariff.StandardMeters > tariff.FreeConsumption {
		return tariff.StandardMeters
	}
	return tariff.FreeConsumption
}

// AmountDue computes the amount billed for a consumption under a tariff
// schedule. Within the included band the fixed fee is flat; beyond it every
// unit is charged at the excess tariff on top of the fixed fee. Pure, no
// rounding: callers round at the point of persistence.
func AmountDue(consumption float64, tariff models.TariffSchedule) float64 {
	band := includedBand(tariff)
	if consumption <= band {
		return tariff.FixedFee
	}
	return tariff.FixedFee + (consumption-band)*tariff.ExcessTariff
}

// AmountDueForType applies the type-specific rule on top of AmountDue:
// entities of type Outro with no consumption owe nothing, fixed fee included.
func AmountDueForType(consumption float64, associateType string, tariff models.TariffSchedule) float64 {
	if associateType == models.AssociateTypeOther && consumption <= 0 {
		return 0
	}
	return AmountDue(consumption, tariff)
}

// RoundCurrency rounds a monetary value to 2 decimal places. Applied once,
// when the value is persisted.
func RoundCurrency(v float64) float64 {
	return math.Round(v*100) / 100
}
