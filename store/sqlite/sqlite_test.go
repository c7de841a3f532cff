package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brisamar/pricing-engine/engine"
	"github.com/brisamar/pricing-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func day(dayOfJune int) engine.DateKey {
	return engine.NewDate(2026, time.June, dayOfJune)
}

func mustPeriod(t *testing.T, start, end engine.DateKey) engine.Period {
	t.Helper()
	p, err := engine.NewPeriod(start, end)
	require.NoError(t, err)
	return p
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// =============================================================================
// FACTS
// =============================================================================

func TestSQLite_FactRoundTrip(t *testing.T) {
	// GIVEN: A fact written for June 1
	// WHEN: Reading it back
	// THEN: Every field survives, decimals exact

	store := newTestStore(t)
	ctx := context.Background()
	p := mustPeriod(t, day(1), day(1))

	fact := engine.DailyFact{
		Date:           day(1),
		RoomTypeID:     "std",
		RoomsAvailable: 40,
		RoomsOccupied:  22,
		Revenue:        dec("2310.55"),
		ADR:            dec("105.03"),
		RevPAR:         dec("57.76"),
		Overbooked:     false,
	}
	require.NoError(t, store.ReplaceFacts(ctx, p, []engine.DailyFact{fact}))

	facts, err := store.FactsInRange(ctx, p, nil)
	require.NoError(t, err)
	require.Len(t, facts, 1)

	got := facts[0]
	assert.True(t, got.Date.Equal(day(1)))
	assert.Equal(t, engine.RoomTypeID("std"), got.RoomTypeID)
	assert.Equal(t, 22, got.RoomsOccupied)
	assert.True(t, got.Revenue.Equal(dec("2310.55")))
	assert.True(t, got.ADR.Equal(dec("105.03")))
	assert.True(t, got.RevPAR.Equal(dec("57.76")))
}

func TestSQLite_ReplaceFactsClearsThePeriod(t *testing.T) {
	// GIVEN: Facts for June 1-2
	// WHEN: Re-importing June 1-2 with only a June 1 fact
	// THEN: June 2 is gone - a re-import never double-counts

	store := newTestStore(t)
	ctx := context.Background()
	p := mustPeriod(t, day(1), day(2))

	write := func(dates ...engine.DateKey) []engine.DailyFact {
		var facts []engine.DailyFact
		for _, d := range dates {
			facts = append(facts, engine.DailyFact{
				Date: d, RoomTypeID: "std", RoomsAvailable: 40, RoomsOccupied: 5,
				Revenue: dec("500.00"), ADR: dec("100.00"), RevPAR: dec("12.50"),
			})
		}
		return facts
	}
	require.NoError(t, store.ReplaceFacts(ctx, p, write(day(1), day(2))))
	require.NoError(t, store.ReplaceFacts(ctx, p, write(day(1))))

	facts, err := store.FactsInRange(ctx, p, nil)
	require.NoError(t, err)
	assert.Len(t, facts, 1)
}

// =============================================================================
// FORECASTS
// =============================================================================

func TestSQLite_ForecastUpsertByNaturalKey(t *testing.T) {
	// GIVEN: A forecast point for (June 1, std)
	// WHEN: Saving a newer prediction for the same cell
	// THEN: One row remains, carrying the newer values

	store := newTestStore(t)
	ctx := context.Background()

	first := engine.ForecastPoint{
		Date: day(1), RoomTypeID: "std",
		Occupancy: dec("0.6"), ADR: dec("100.00"), RevPAR: dec("60.00"),
	}
	require.NoError(t, store.SaveForecasts(ctx, []engine.ForecastPoint{first}))

	second := first
	second.Occupancy = dec("0.75")
	second.ManuallyAdjusted = true
	require.NoError(t, store.SaveForecasts(ctx, []engine.ForecastPoint{second}))

	points, err := store.ForecastsInRange(ctx, mustPeriod(t, day(1), day(1)), nil)
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.True(t, points[0].Occupancy.Equal(dec("0.75")))
	assert.True(t, points[0].ManuallyAdjusted)
}

func TestSQLite_GetForecastMissingIsNil(t *testing.T) {
	store := newTestStore(t)
	p, err := store.GetForecast(context.Background(), day(1), "std")
	require.NoError(t, err)
	assert.Nil(t, p)
}

// =============================================================================
// RECOMMENDATIONS
// =============================================================================

func rec(id string, date engine.DateKey, state engine.RecommendationState) engine.Recommendation {
	return engine.Recommendation{
		ID:              engine.RecommendationID(id),
		Date:            date,
		RoomTypeID:      "std",
		ChannelID:       "direct",
		BaseRate:        dec("100.00"),
		RecommendedRate: dec("115.00"),
		State:           state,
		GeneratedAt:     time.Date(2026, time.June, 1, 8, 0, 0, 0, time.UTC),
	}
}

func TestSQLite_RecommendationRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := rec("rec-1", day(10), engine.StateApproved)
	approvedRate := dec("118.00")
	approvedAt := time.Date(2026, time.June, 2, 9, 30, 0, 0, time.UTC)
	r.ApprovedRate = &approvedRate
	r.ApprovedAt = &approvedAt
	require.NoError(t, store.SaveRecommendation(ctx, r))

	got, err := store.GetRecommendation(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, engine.StateApproved, got.State)
	require.NotNil(t, got.ApprovedRate)
	assert.True(t, got.ApprovedRate.Equal(dec("118.00")))
	require.NotNil(t, got.ApprovedAt)
	assert.True(t, got.ApprovedAt.Equal(approvedAt))
	assert.True(t, got.GeneratedAt.Equal(r.GeneratedAt))
}

func TestSQLite_CurrentByKeySkipsSuperseded(t *testing.T) {
	// GIVEN: A superseded approved row and a live pending row on one key
	// WHEN: Resolving the current row
	// THEN: The live pending row is returned

	store := newTestStore(t)
	ctx := context.Background()

	old := rec("old", day(10), engine.StateApproved)
	old.Superseded = true
	require.NoError(t, store.SaveRecommendation(ctx, old))
	require.NoError(t, store.SaveRecommendation(ctx, rec("new", day(10), engine.StatePending)))

	current, err := store.CurrentByKey(ctx, engine.Key{Date: day(10), RoomTypeID: "std", ChannelID: "direct"})
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, engine.RecommendationID("new"), current.ID)
}

func TestSQLite_LiveKeyUniquenessEnforced(t *testing.T) {
	// GIVEN: A live recommendation on a key
	// WHEN: Inserting a second live row for the same key
	// THEN: The partial unique index rejects it

	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecommendation(ctx, rec("first", day(10), engine.StatePending)))
	err := store.SaveRecommendation(ctx, rec("second", day(10), engine.StatePending))
	assert.Error(t, err, "two live rows on one key must be impossible")
}

func TestSQLite_RecommendationFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveRecommendation(ctx, rec("a", day(10), engine.StatePending)))
	require.NoError(t, store.SaveRecommendation(ctx, rec("b", day(11), engine.StateApproved)))
	superseded := rec("c", day(12), engine.StateApproved)
	superseded.Superseded = true
	require.NoError(t, store.SaveRecommendation(ctx, superseded))

	p := mustPeriod(t, day(1), day(30))

	all, err := store.Recommendations(ctx, engine.RecommendationFilter{Period: p})
	require.NoError(t, err)
	assert.Len(t, all, 2, "superseded rows hidden by default")

	withAudit, err := store.Recommendations(ctx, engine.RecommendationFilter{Period: p, IncludeSuperseded: true})
	require.NoError(t, err)
	assert.Len(t, withAudit, 3)

	approved := engine.StateApproved
	onlyApproved, err := store.Recommendations(ctx, engine.RecommendationFilter{Period: p, State: &approved})
	require.NoError(t, err)
	require.Len(t, onlyApproved, 1)
	assert.Equal(t, engine.RecommendationID("b"), onlyApproved[0].ID)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTxRollsBackOnError(t *testing.T) {
	// GIVEN: A transaction writing a recommendation then failing
	// WHEN: The transaction function returns an error
	// THEN: The write never becomes visible

	store := newTestStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(tx engine.Store) error {
		if err := tx.SaveRecommendation(ctx, rec("rec-1", day(10), engine.StatePending)); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := store.GetRecommendation(ctx, "rec-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_WithTxCommits(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(tx engine.Store) error {
		if err := tx.SaveRecommendation(ctx, rec("rec-1", day(10), engine.StatePending)); err != nil {
			return err
		}
		existing, err := tx.CurrentByKey(ctx, engine.Key{Date: day(10), RoomTypeID: "std", ChannelID: "direct"})
		if err != nil {
			return err
		}
		if existing == nil {
			return errors.New("write must be visible inside its own transaction")
		}
		return nil
	})
	require.NoError(t, err)

	got, err := store.GetRecommendation(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, got)
}
