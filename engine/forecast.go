/*
forecast.go - Forecast Bridge

PURPOSE:
  Normalizes a forecast model's raw output into ForecastPoint entities on a
  COMPLETE date x room-type grid. The model itself is an external
  collaborator; this bridge only shapes its output for the rule engine.

GAP FILLING:
  A room type missing from the model's output for a date is never dropped:
  its occupancy defaults to the last known occupancy for that room type on
  the same day of week (from historical facts), or zero when no history
  exists. Downstream rules require every grid cell to be present.

CLAMPING:
  Predicted occupancy outside [0, 1] indicates a fitting anomaly. It is
  clamped with a logged warning rather than rejected: forecasting is
  approximate, and a hard failure here would block the whole pipeline.

MANUAL ADJUSTMENT:
  AdjustPoint overwrites a point's occupancy/ADR and sets the adjusted
  flag. Regeneration skips adjusted points unless the caller forces an
  overwrite.

SEE ALSO:
  - rules.go: Consumes the normalized grid
*/
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RawForecast is one prediction as emitted by the external model.
type RawForecast struct {
	Date       DateKey
	RoomTypeID RoomTypeID
	Occupancy  decimal.Decimal // May fall outside [0, 1]; clamped here
	ADR        decimal.Decimal
}

// TrainingRow is one observation of the training dataset view handed to the
// forecasting collaborator.
type TrainingRow struct {
	Date       DateKey
	RoomTypeID RoomTypeID
	Occupancy  decimal.Decimal
	ADR        decimal.Decimal
}

// Bridge maps model output onto the grid the rule engine needs.
type Bridge struct {
	registry *Registry
	log      *zap.Logger
}

func NewBridge(registry *Registry, log *zap.Logger) *Bridge {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bridge{registry: registry, log: log}
}

// =============================================================================
// NORMALIZATION
// =============================================================================

// Normalize builds the complete horizon x room-type grid from raw model
// output, filling gaps from history and clamping anomalies. Raw points for
// unknown room types or dates outside the horizon are rejected individually.
func (b *Bridge) Normalize(raw []RawForecast, horizon Period, history []DailyFact) ([]ForecastPoint, BatchSummary) {
	var summary BatchSummary

	byCell := make(map[Key]RawForecast)
	for _, r := range raw {
		if _, ok := b.registry.RoomTypeByID(r.RoomTypeID); !ok {
			summary.Reject(&ValidationError{
				Field:  "room_type",
				Reason: fmt.Sprintf("unknown id %s", r.RoomTypeID),
			})
			continue
		}
		if !horizon.Contains(r.Date) {
			summary.Reject(&ValidationError{
				Field:  "date",
				Reason: fmt.Sprintf("%s outside horizon %s", r.Date, horizon),
			})
			continue
		}
		byCell[Key{Date: r.Date, RoomTypeID: r.RoomTypeID}] = r
		summary.Succeeded++
	}

	trend := buildWeekdayTrend(history)

	var points []ForecastPoint
	for _, date := range horizon.Days() {
		for _, rt := range b.registry.RoomTypes {
			k := Key{Date: date, RoomTypeID: rt.ID}
			p := ForecastPoint{Date: date, RoomTypeID: rt.ID}

			if r, ok := byCell[k]; ok {
				p.Occupancy = r.Occupancy
				p.ADR = r.ADR
			} else {
				// Gap: fall back to the last known occupancy/ADR for this
				// room type on this day of week, else zero.
				if t, ok := trend[trendKey{rt.ID, date.Weekday()}]; ok {
					p.Occupancy = t.occupancy
					p.ADR = t.adr
				} else {
					summary.Warn(DataQualityWarning{
						Code:       WarnMissingHistory,
						Date:       date,
						RoomTypeID: rt.ID,
						Detail:     "no model output and no history; defaulted to zero",
					})
				}
			}

			p.Occupancy, p.ADR = b.clamp(p, &summary)
			p.RevPAR = RoundRate(p.ADR.Mul(p.Occupancy))
			points = append(points, p)
		}
	}
	return points, summary
}

func (b *Bridge) clamp(p ForecastPoint, summary *BatchSummary) (decimal.Decimal, decimal.Decimal) {
	occ, adr := p.Occupancy, p.ADR
	clamped := false
	switch {
	case occ.IsNegative():
		occ, clamped = decimal.Zero, true
	case occ.GreaterThan(decimal.NewFromInt(1)):
		occ, clamped = decimal.NewFromInt(1), true
	}
	if adr.IsNegative() {
		adr, clamped = decimal.Zero, true
	}
	if clamped {
		summary.Warn(DataQualityWarning{
			Code:       WarnForecastClamp,
			Date:       p.Date,
			RoomTypeID: p.RoomTypeID,
			Detail:     fmt.Sprintf("prediction outside valid range (occupancy %s, adr %s)", p.Occupancy, p.ADR),
		})
		b.log.Warn("forecast prediction clamped",
			zap.String("date", p.Date.String()),
			zap.String("room_type", string(p.RoomTypeID)),
			zap.String("occupancy", p.Occupancy.String()))
	}
	return occ, adr
}

type trendKey struct {
	roomType RoomTypeID
	weekday  time.Weekday
}

type trendCell struct {
	date      DateKey
	occupancy decimal.Decimal
	adr       decimal.Decimal
}

// buildWeekdayTrend keeps, per (room type, weekday), the most recent
// historical occupancy fraction and ADR.
func buildWeekdayTrend(history []DailyFact) map[trendKey]trendCell {
	trend := make(map[trendKey]trendCell)
	for _, f := range history {
		k := trendKey{f.RoomTypeID, f.Date.Weekday()}
		if prev, ok := trend[k]; ok && prev.date.After(f.Date) {
			continue
		}
		trend[k] = trendCell{date: f.Date, occupancy: f.OccupancyFraction(), adr: f.ADR}
	}
	return trend
}

// =============================================================================
// PERSISTENCE - Regeneration honors manual adjustments
// =============================================================================

// Apply saves normalized points, skipping any existing manually-adjusted
// point unless force is set. Returns the number of points written.
func (b *Bridge) Apply(ctx context.Context, store ForecastStore, points []ForecastPoint, force bool) (int, error) {
	var toSave []ForecastPoint
	for _, p := range points {
		if !force {
			existing, err := store.GetForecast(ctx, p.Date, p.RoomTypeID)
			if err != nil {
				return 0, err
			}
			if existing != nil && existing.ManuallyAdjusted {
				b.log.Info("skipping manually adjusted forecast point",
					zap.String("date", p.Date.String()),
					zap.String("room_type", string(p.RoomTypeID)))
				continue
			}
		}
		toSave = append(toSave, p)
	}
	if err := store.SaveForecasts(ctx, toSave); err != nil {
		return 0, err
	}
	return len(toSave), nil
}

// AdjustPoint overwrites one point's prediction and flags it as manually
// adjusted so later forecast runs leave it alone.
func (b *Bridge) AdjustPoint(ctx context.Context, store ForecastStore, date DateKey, roomType RoomTypeID, occupancy, adr decimal.Decimal) (*ForecastPoint, error) {
	if _, ok := b.registry.RoomTypeByID(roomType); !ok {
		return nil, fmt.Errorf("%w: room type %s", ErrNotFound, roomType)
	}
	if occupancy.IsNegative() || occupancy.GreaterThan(decimal.NewFromInt(1)) {
		return nil, &ValidationError{Field: "occupancy", Reason: "must be within [0, 1]"}
	}

	p := ForecastPoint{
		Date:             date,
		RoomTypeID:       roomType,
		Occupancy:        occupancy,
		ADR:              adr,
		RevPAR:           RoundRate(adr.Mul(occupancy)),
		ManuallyAdjusted: true,
	}
	if err := store.SaveForecasts(ctx, []ForecastPoint{p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// =============================================================================
// TRAINING VIEW - What the external forecaster trains on
// =============================================================================

// BuildTrainingSet projects persisted facts into the date x room-type
// occupancy/ADR series the forecasting collaborator consumes.
func BuildTrainingSet(facts []DailyFact) []TrainingRow {
	rows := make([]TrainingRow, 0, len(facts))
	for _, f := range facts {
		rows = append(rows, TrainingRow{
			Date:       f.Date,
			RoomTypeID: f.RoomTypeID,
			Occupancy:  f.OccupancyFraction(),
			ADR:        f.ADR,
		})
	}
	return rows
}
