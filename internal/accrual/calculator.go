// internal/accrual/calculator.go
package accrual

import (
	"time"

	"github.com/shopspring/decimal"
)

// SecondsPerWeek is the accrual rate denominator: a weekly rate yields its
// full percentage over exactly this many elapsed seconds.
const SecondsPerWeek = 604800

// PrecisionPlaces is the number of fractional digits earnings are floored
// to. Flooring (never rounding up) guarantees we never credit more than
// mathematically earned, so drift cannot compound across reads.
const PrecisionPlaces = 8

var secondsPerWeek = decimal.NewFromInt(SecondsPerWeek)

// Project computes the earnings of principal at weeklyRate over elapsed
// time: principal * weeklyRate * (elapsedSeconds / 604800), floored to
// PrecisionPlaces. Pure and deterministic; negative elapsed yields zero.
func Project(principal, weeklyRate decimal.Decimal, elapsed time.Duration) decimal.Decimal {
	if elapsed <= 0 {
		return decimal.Zero
	}
	seconds := decimal.NewFromFloat(elapsed.Seconds())
	return principal.Mul(weeklyRate).Mul(seconds).Div(secondsPerWeek).RoundFloor(PrecisionPlaces)
}

// ProjectWindow computes earnings with elapsed clamped to [0, window].
// Earnings never accrue past the slot's defined accrual window.
func ProjectWindow(principal, weeklyRate decimal.Decimal, elapsed, window time.Duration) decimal.Decimal {
	if window < 0 {
		window = 0
	}
	if elapsed > window {
		elapsed = window
	}
	return Project(principal, weeklyRate, elapsed)
}

// PerSecondRate returns the instantaneous earning rate of an active slot,
// used by live displays to animate between polls.
func PerSecondRate(principal, weeklyRate decimal.Decimal) decimal.Decimal {
	return principal.Mul(weeklyRate).Div(secondsPerWeek).RoundFloor(PrecisionPlaces)
}
