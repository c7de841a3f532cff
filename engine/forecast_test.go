package engine_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brisamar/pricing-engine/engine"
	memstore "github.com/brisamar/pricing-engine/engine/store"
)

// =============================================================================
// NORMALIZATION
// =============================================================================

func TestNormalize_CompleteGrid(t *testing.T) {
	// GIVEN: Model output covering only one of two room types over two days
	// WHEN: Normalizing
	// THEN: Every (date, room type) cell exists in the output

	reg := testRegistry()
	bridge := engine.NewBridge(reg, nil)
	horizon := period(t, d(2026, time.June, 8), d(2026, time.June, 9))

	raw := []engine.RawForecast{
		{Date: d(2026, time.June, 8), RoomTypeID: "std", Occupancy: dec("0.7"), ADR: dec("110.00")},
		{Date: d(2026, time.June, 9), RoomTypeID: "std", Occupancy: dec("0.75"), ADR: dec("112.00")},
	}

	points, _ := bridge.Normalize(raw, horizon, nil)
	require.Len(t, points, 4) // 2 days x 2 room types

	seen := make(map[engine.Key]bool)
	for _, p := range points {
		seen[engine.Key{Date: p.Date, RoomTypeID: p.RoomTypeID}] = true
	}
	assert.Len(t, seen, 4)
}

func TestNormalize_ClampsOccupancyWithWarning(t *testing.T) {
	// GIVEN: A model prediction of 120% occupancy and one of -5%
	// WHEN: Normalizing
	// THEN: Clamped to 1 and 0 with a data-quality warning; never rejected

	reg := testRegistry()
	bridge := engine.NewBridge(reg, nil)
	horizon := period(t, d(2026, time.June, 8), d(2026, time.June, 8))

	raw := []engine.RawForecast{
		{Date: d(2026, time.June, 8), RoomTypeID: "std", Occupancy: dec("1.2"), ADR: dec("110.00")},
		{Date: d(2026, time.June, 8), RoomTypeID: "sup", Occupancy: dec("-0.05"), ADR: dec("150.00")},
	}

	points, summary := bridge.Normalize(raw, horizon, nil)
	require.Len(t, points, 2)

	byRT := make(map[engine.RoomTypeID]engine.ForecastPoint)
	for _, p := range points {
		byRT[p.RoomTypeID] = p
	}
	assert.True(t, byRT["std"].Occupancy.Equal(dec("1")), "over-forecast clamps to 1")
	assert.True(t, byRT["sup"].Occupancy.IsZero(), "negative forecast clamps to 0")

	clamps := 0
	for _, w := range summary.Warnings {
		if w.Code == engine.WarnForecastClamp {
			clamps++
		}
	}
	assert.Equal(t, 2, clamps)
}

func TestNormalize_GapFilledFromWeekdayHistory(t *testing.T) {
	// GIVEN: No model output for SUP on a Monday, but history holds a fact
	//        for SUP on an earlier Monday (12 of 25 rooms at ADR 140)
	// WHEN: Normalizing
	// THEN: The gap takes the historical Monday occupancy fraction and ADR

	reg := testRegistry()
	bridge := engine.NewBridge(reg, nil)
	monday := d(2026, time.June, 8)
	require.Equal(t, time.Monday, monday.Weekday())

	history := []engine.DailyFact{{
		Date:           monday.AddDays(-7),
		RoomTypeID:     "sup",
		RoomsAvailable: 25,
		RoomsOccupied:  12,
		Revenue:        dec("1680.00"),
		ADR:            dec("140.00"),
	}}

	raw := []engine.RawForecast{
		{Date: monday, RoomTypeID: "std", Occupancy: dec("0.7"), ADR: dec("110.00")},
	}

	points, summary := bridge.Normalize(raw, period(t, monday, monday), history)
	require.Len(t, points, 2)

	var sup engine.ForecastPoint
	for _, p := range points {
		if p.RoomTypeID == "sup" {
			sup = p
		}
	}
	assert.True(t, sup.Occupancy.Equal(dec("0.48")), "12/25 = 0.48, got %s", sup.Occupancy)
	assert.True(t, sup.ADR.Equal(dec("140.00")))

	for _, w := range summary.Warnings {
		assert.NotEqual(t, engine.WarnMissingHistory, w.Code,
			"history covered the gap; no missing-history warning expected")
	}
}

func TestNormalize_GapWithoutHistoryDefaultsToZero(t *testing.T) {
	// GIVEN: No model output and no history for a cell
	// WHEN: Normalizing
	// THEN: The cell exists at zero occupancy with a missing-history warning

	reg := testRegistry()
	bridge := engine.NewBridge(reg, nil)
	day := d(2026, time.June, 8)

	points, summary := bridge.Normalize(nil, period(t, day, day), nil)
	require.Len(t, points, 2)
	for _, p := range points {
		assert.True(t, p.Occupancy.IsZero())
		assert.True(t, p.RevPAR.IsZero())
	}

	missing := 0
	for _, w := range summary.Warnings {
		if w.Code == engine.WarnMissingHistory {
			missing++
		}
	}
	assert.Equal(t, 2, missing)
}

func TestNormalize_RejectsUnknownRoomTypeAndOutOfHorizonPoints(t *testing.T) {
	// GIVEN: Raw points for an unknown room type and a date outside the horizon
	// WHEN: Normalizing
	// THEN: Both are rejected individually; the grid is still complete

	reg := testRegistry()
	bridge := engine.NewBridge(reg, nil)
	day := d(2026, time.June, 8)

	raw := []engine.RawForecast{
		{Date: day, RoomTypeID: "penthouse", Occupancy: dec("0.5"), ADR: dec("400.00")},
		{Date: day.AddDays(30), RoomTypeID: "std", Occupancy: dec("0.5"), ADR: dec("100.00")},
	}

	points, summary := bridge.Normalize(raw, period(t, day, day), nil)
	assert.Equal(t, 2, summary.Rejected)
	assert.Len(t, points, 2)
}

func TestNormalize_RevPARIsADRTimesOccupancy(t *testing.T) {
	// GIVEN: A normalized point with occupancy 0.8 and ADR 120
	// WHEN: Normalizing
	// THEN: RevPAR = 96.00

	reg := testRegistry()
	bridge := engine.NewBridge(reg, nil)
	day := d(2026, time.June, 8)

	raw := []engine.RawForecast{
		{Date: day, RoomTypeID: "std", Occupancy: dec("0.8"), ADR: dec("120.00")},
	}
	points, _ := bridge.Normalize(raw, period(t, day, day), nil)
	for _, p := range points {
		if p.RoomTypeID == "std" {
			assert.True(t, p.RevPAR.Equal(dec("96.00")), "got %s", p.RevPAR)
		}
	}
}

// =============================================================================
// PERSISTENCE - Manual adjustments survive regeneration
// =============================================================================

func TestApply_SkipsManuallyAdjustedPoints(t *testing.T) {
	// GIVEN: A stored point flagged as manually adjusted
	// WHEN: Applying a fresh forecast run without force
	// THEN: The adjusted point survives; with force it is overwritten

	ctx := context.Background()
	reg := testRegistry()
	bridge := engine.NewBridge(reg, nil)
	st := memstore.NewTxMemory()
	day := d(2026, time.June, 8)

	adjusted, err := bridge.AdjustPoint(ctx, st, day, "std", dec("0.95"), dec("135.00"))
	require.NoError(t, err)
	require.True(t, adjusted.ManuallyAdjusted)

	fresh := []engine.ForecastPoint{{
		Date: day, RoomTypeID: "std", Occupancy: dec("0.5"), ADR: dec("100.00"), RevPAR: dec("50.00"),
	}}

	written, err := bridge.Apply(ctx, st, fresh, false)
	require.NoError(t, err)
	assert.Equal(t, 0, written)

	current, err := st.GetForecast(ctx, day, "std")
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.True(t, current.Occupancy.Equal(dec("0.95")), "adjustment must survive")

	written, err = bridge.Apply(ctx, st, fresh, true)
	require.NoError(t, err)
	assert.Equal(t, 1, written)

	current, err = st.GetForecast(ctx, day, "std")
	require.NoError(t, err)
	assert.True(t, current.Occupancy.Equal(dec("0.5")), "force overwrites the adjustment")
	assert.False(t, current.ManuallyAdjusted)
}

func TestAdjustPoint_ValidatesOccupancy(t *testing.T) {
	// GIVEN: Manual adjustments outside [0, 1] or for an unknown room type
	// WHEN: Adjusting
	// THEN: Rejected with the matching error category

	ctx := context.Background()
	bridge := engine.NewBridge(testRegistry(), nil)
	st := memstore.NewTxMemory()
	day := d(2026, time.June, 8)

	_, err := bridge.AdjustPoint(ctx, st, day, "std", dec("1.4"), dec("100.00"))
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = bridge.AdjustPoint(ctx, st, day, "std", dec("-0.1"), dec("100.00"))
	assert.ErrorIs(t, err, engine.ErrValidation)

	_, err = bridge.AdjustPoint(ctx, st, day, "penthouse", dec("0.5"), dec("100.00"))
	assert.ErrorIs(t, err, engine.ErrNotFound)
}

// =============================================================================
// TRAINING VIEW
// =============================================================================

func TestBuildTrainingSet_ProjectsFacts(t *testing.T) {
	// GIVEN: Facts with 20 of 40 rooms occupied at ADR 105
	// WHEN: Building the training set
	// THEN: One row per fact with occupancy 0.5 and the fact's ADR

	facts := []engine.DailyFact{{
		Date:           d(2026, time.June, 1),
		RoomTypeID:     "std",
		RoomsAvailable: 40,
		RoomsOccupied:  20,
		Revenue:        dec("2100.00"),
		ADR:            dec("105.00"),
		RevPAR:         dec("52.50"),
	}}

	rows := engine.BuildTrainingSet(facts)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Occupancy.Equal(dec("0.5")))
	assert.True(t, rows[0].ADR.Equal(dec("105.00")))
	assert.Equal(t, engine.RoomTypeID("std"), rows[0].RoomTypeID)
}
