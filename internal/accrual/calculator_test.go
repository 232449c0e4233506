// internal/accrual/calculator_test.go
package accrual

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	principal = decimal.NewFromInt(100)
	rate      = decimal.RequireFromString("0.07") // 7% per week
)

func TestProject_HalfWindow(t *testing.T) {
	// 100 principal at 7%/week over 3.5 days earns half the weekly yield.
	earned := Project(principal, rate, 3*24*time.Hour+12*time.Hour)
	assert.True(t, earned.Equal(decimal.RequireFromString("3.5")),
		"expected 3.5, got %s", earned)
}

func TestProject_FullWeek(t *testing.T) {
	earned := Project(principal, rate, 7*24*time.Hour)
	assert.True(t, earned.Equal(decimal.RequireFromString("7")),
		"expected 7, got %s", earned)
}

func TestProject_NegativeElapsedIsZero(t *testing.T) {
	earned := Project(principal, rate, -time.Hour)
	assert.True(t, earned.IsZero())
}

func TestProject_ZeroElapsedIsZero(t *testing.T) {
	assert.True(t, Project(principal, rate, 0).IsZero())
}

func TestProject_FloorsToPrecision(t *testing.T) {
	// 1 second of accrual: 100 * 0.07 / 604800 = 0.0000115740740...
	// Floored at 8 places this is 0.00001157, never rounded up.
	earned := Project(principal, rate, time.Second)
	assert.True(t, earned.Equal(decimal.RequireFromString("0.00001157")),
		"expected 0.00001157, got %s", earned)
}

func TestProject_Additivity(t *testing.T) {
	// project(t1) + project(t2) must equal project(t1+t2) within one unit
	// of flooring tolerance per term.
	tolerance := decimal.New(2, -PrecisionPlaces)
	cases := []struct {
		t1, t2 time.Duration
	}{
		{time.Hour, time.Hour},
		{90 * time.Minute, 30 * time.Minute},
		{24 * time.Hour, 6 * 24 * time.Hour},
		{time.Second, 604799 * time.Second},
		{13 * time.Minute, 47 * time.Second},
	}
	for _, tc := range cases {
		split := Project(principal, rate, tc.t1).Add(Project(principal, rate, tc.t2))
		whole := Project(principal, rate, tc.t1+tc.t2)
		diff := whole.Sub(split).Abs()
		assert.True(t, diff.LessThanOrEqual(tolerance),
			"t1=%s t2=%s: split=%s whole=%s", tc.t1, tc.t2, split, whole)
		// Flooring means the split sum can never exceed the whole.
		assert.True(t, split.LessThanOrEqual(whole))
	}
}

func TestProjectWindow_CapsAtWindow(t *testing.T) {
	window := 7 * 24 * time.Hour
	capped := ProjectWindow(principal, rate, 30*24*time.Hour, window)
	full := ProjectWindow(principal, rate, window, window)
	assert.True(t, capped.Equal(full), "capped=%s full=%s", capped, full)
	assert.True(t, capped.Equal(decimal.RequireFromString("7")))
}

func TestProjectWindow_NegativeWindow(t *testing.T) {
	assert.True(t, ProjectWindow(principal, rate, time.Hour, -time.Hour).IsZero())
}

func TestPerSecondRate(t *testing.T) {
	perSec := PerSecondRate(principal, rate)
	require.False(t, perSec.IsZero())
	// One week of per-second accrual stays at or below the weekly yield
	// because the per-second rate is floored.
	weekly := perSec.Mul(decimal.NewFromInt(SecondsPerWeek))
	assert.True(t, weekly.LessThanOrEqual(principal.Mul(rate)))
}
