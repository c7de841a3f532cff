package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brisamar/pricing-engine/engine"
	"github.com/brisamar/pricing-engine/engine/store"
)

func day(dayOfJune int) engine.DateKey {
	return engine.NewDate(2026, time.June, dayOfJune)
}

func fact(date engine.DateKey, rt engine.RoomTypeID, occupied int) engine.DailyFact {
	return engine.DailyFact{
		Date:           date,
		RoomTypeID:     rt,
		RoomsAvailable: 40,
		RoomsOccupied:  occupied,
		Revenue:        decimal.NewFromInt(int64(occupied * 100)),
	}
}

func TestMemory_ReplaceFactsIsFullReplacement(t *testing.T) {
	// GIVEN: Facts stored for June 1-2
	// WHEN: Replacing June 1-2 with facts for June 1 only
	// THEN: The June 2 fact is gone - replacement, not merge

	m := store.NewMemory()
	ctx := context.Background()
	p, err := engine.NewPeriod(day(1), day(2))
	require.NoError(t, err)

	require.NoError(t, m.ReplaceFacts(ctx, p, []engine.DailyFact{
		fact(day(1), "std", 10),
		fact(day(2), "std", 12),
	}))
	require.NoError(t, m.ReplaceFacts(ctx, p, []engine.DailyFact{
		fact(day(1), "std", 11),
	}))

	facts, err := m.FactsInRange(ctx, p, nil)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, 11, facts[0].RoomsOccupied)
}

func TestMemory_FactsInRangeFiltersRoomType(t *testing.T) {
	m := store.NewMemory()
	ctx := context.Background()
	p, err := engine.NewPeriod(day(1), day(1))
	require.NoError(t, err)

	require.NoError(t, m.ReplaceFacts(ctx, p, []engine.DailyFact{
		fact(day(1), "std", 10),
		fact(day(1), "sup", 5),
	}))

	std := engine.RoomTypeID("std")
	facts, err := m.FactsInRange(ctx, p, &std)
	require.NoError(t, err)
	require.Len(t, facts, 1)
	assert.Equal(t, std, facts[0].RoomTypeID)
}

func TestTxMemory_RollbackOnError(t *testing.T) {
	// GIVEN: A transaction that writes a recommendation then fails
	// WHEN: The transaction returns an error
	// THEN: The write is rolled back

	tm := store.NewTxMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := tm.WithTx(ctx, func(tx engine.Store) error {
		if err := tx.SaveRecommendation(ctx, engine.Recommendation{
			ID: "rec-1", Date: day(1), RoomTypeID: "std", ChannelID: "direct",
			State: engine.StatePending,
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rec, err := tm.GetRecommendation(ctx, "rec-1")
	require.NoError(t, err)
	assert.Nil(t, rec, "rolled-back write must not be visible")
}

func TestTxMemory_CommitOnSuccess(t *testing.T) {
	tm := store.NewTxMemory()
	ctx := context.Background()

	err := tm.WithTx(ctx, func(tx engine.Store) error {
		return tx.SaveRecommendation(ctx, engine.Recommendation{
			ID: "rec-1", Date: day(1), RoomTypeID: "std", ChannelID: "direct",
			State: engine.StatePending,
		})
	})
	require.NoError(t, err)

	rec, err := tm.GetRecommendation(ctx, "rec-1")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, engine.StatePending, rec.State)
}

func TestMemory_CurrentByKeyExcludesSuperseded(t *testing.T) {
	// GIVEN: A superseded row and a live row on the same key
	// WHEN: Resolving the current row for the key
	// THEN: The live row wins

	m := store.NewMemory()
	ctx := context.Background()
	key := engine.Key{Date: day(1), RoomTypeID: "std", ChannelID: "direct"}

	require.NoError(t, m.SaveRecommendation(ctx, engine.Recommendation{
		ID: "old", Date: day(1), RoomTypeID: "std", ChannelID: "direct",
		State: engine.StateApproved, Superseded: true,
	}))
	require.NoError(t, m.SaveRecommendation(ctx, engine.Recommendation{
		ID: "new", Date: day(1), RoomTypeID: "std", ChannelID: "direct",
		State: engine.StatePending,
	}))

	current, err := m.CurrentByKey(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, engine.RecommendationID("new"), current.ID)
}
