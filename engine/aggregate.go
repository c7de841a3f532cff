/*
aggregate.go - Daily Fact Aggregator

PURPOSE:
  Groups expanded nights by (date, room type) and computes the daily
  occupancy/revenue facts the rest of the pipeline runs on:

    rooms_occupied = count of nights
    revenue        = sum of apportioned rates
    ADR            = revenue / occupied   (0 when occupied = 0)
    RevPAR         = revenue / available  (available = RoomType.Count)

GRID COMPLETENESS:
  A fact row is emitted for EVERY (date, room type) cell in the requested
  period, including zero-occupancy cells. Downstream consumers (forecast
  training, reporting) need the complete grid.

TOLERANT INGESTION:
  occupied > available does not fail: PMS exports are not guaranteed
  consistent. The fact is recorded as-is with Overbooked set, and a
  data-quality warning is attached to the batch summary.

IDEMPOTENCY:
  Re-running aggregation for a period fully replaces the facts for that
  period (see FactStore.ReplaceFacts), never additively merges.
*/
package engine

import (
	"sort"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Aggregator consolidates expanded nights into daily facts.
type Aggregator struct {
	registry *Registry
	log      *zap.Logger
}

func NewAggregator(registry *Registry, log *zap.Logger) *Aggregator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Aggregator{registry: registry, log: log}
}

// Aggregate computes the complete fact grid for the period. Nights outside
// the period or referencing unknown room types are rejected individually.
// Output ordering is deterministic: date ascending, then room-type id.
func (a *Aggregator) Aggregate(nights []ExpandedNight, period Period) ([]DailyFact, BatchSummary) {
	var summary BatchSummary

	type cell struct {
		occupied int
		revenue  decimal.Decimal
	}
	cells := make(map[Key]*cell)

	for _, n := range nights {
		if !period.Contains(n.Date) {
			continue
		}
		rt, ok := a.registry.RoomTypeByCode(n.RoomTypeCode)
		if !ok {
			summary.Reject(&ValidationError{
				StayRef: n.StayRef,
				Field:   "room_type",
				Reason:  "unknown code " + n.RoomTypeCode,
			})
			continue
		}
		k := Key{Date: n.Date, RoomTypeID: rt.ID}
		c := cells[k]
		if c == nil {
			c = &cell{revenue: decimal.Zero}
			cells[k] = c
		}
		c.occupied++
		c.revenue = c.revenue.Add(n.Rate)
		summary.Succeeded++
	}

	var facts []DailyFact
	for _, date := range period.Days() {
		for _, rt := range a.registry.RoomTypes {
			c := cells[Key{Date: date, RoomTypeID: rt.ID}]
			if c == nil {
				c = &cell{revenue: decimal.Zero}
			}

			fact := DailyFact{
				Date:           date,
				RoomTypeID:     rt.ID,
				RoomsAvailable: rt.Count,
				RoomsOccupied:  c.occupied,
				Revenue:        c.revenue,
				ADR:            decimal.Zero,
				RevPAR:         decimal.Zero,
			}
			if c.occupied > 0 {
				fact.ADR = RoundRate(c.revenue.Div(decimal.NewFromInt(int64(c.occupied))))
			}
			if rt.Count > 0 {
				fact.RevPAR = RoundRate(c.revenue.Div(decimal.NewFromInt(int64(rt.Count))))
			}
			if c.occupied > rt.Count {
				fact.Overbooked = true
				w := DataQualityWarning{
					Code:       WarnOverbooked,
					Date:       date,
					RoomTypeID: rt.ID,
					Detail:     "occupied exceeds available",
				}
				summary.Warn(w)
				a.log.Warn("overbooked cell recorded",
					zap.String("date", date.String()),
					zap.String("room_type", string(rt.ID)),
					zap.Int("occupied", c.occupied),
					zap.Int("available", rt.Count))
			}
			facts = append(facts, fact)
		}
	}

	sort.Slice(facts, func(i, j int) bool {
		if !facts[i].Date.Equal(facts[j].Date) {
			return facts[i].Date.Before(facts[j].Date)
		}
		return facts[i].RoomTypeID < facts[j].RoomTypeID
	})
	return facts, summary
}
