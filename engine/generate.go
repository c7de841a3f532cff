/*
generate.go - Recommendation generation runs

PURPOSE:
  Builds the (date, room type, active channel) grid for a period, computes
  a recommended rate for every cell via the rule engine, and persists the
  results as Pending recommendations.

REPLACEMENT AND CONFLICTS:
  Regenerating a range replaces prior Pending rows for the same key. A key
  already Approved or Exported is a conflict: the cell is skipped and the
  conflict reported, unless the caller forces regeneration, in which case
  the prior row is marked superseded (audit trail, never deleted) and a
  fresh Pending row is written.

ATOMICITY:
  Each run executes inside the store's transaction boundary, serializing
  writers on the contended recommendation keys.
*/
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// GenerationResult summarizes one generation run.
type GenerationResult struct {
	Created   int
	Replaced  int
	Conflicts []*ConflictError
	Skipped   []RuleSkip
	Warnings  []DataQualityWarning
}

// Generator orchestrates recommendation generation runs.
type Generator struct {
	registry *Registry
	engine   *RuleEngine
	store    TxStore
	clamp    ClampConfig
	log      *zap.Logger
	now      func() time.Time
}

func NewGenerator(registry *Registry, engine *RuleEngine, store TxStore, clamp ClampConfig, log *zap.Logger) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Generator{
		registry: registry,
		engine:   engine,
		store:    store,
		clamp:    clamp,
		log:      log,
		now:      time.Now,
	}
}

// Generate computes recommendations for every (date, room type, active
// channel) cell in the period and persists them as Pending. Cells whose
// current row is Approved/Exported are conflicts unless force is set.
func (g *Generator) Generate(ctx context.Context, period Period, rules []PricingRule, force bool) (*GenerationResult, error) {
	points, err := g.store.ForecastsInRange(ctx, period, nil)
	if err != nil {
		return nil, err
	}
	byCell := make(map[Key]ForecastPoint, len(points))
	for _, p := range points {
		byCell[Key{Date: p.Date, RoomTypeID: p.RoomTypeID}] = p
	}

	channels := g.registry.ActiveChannels()
	result := &GenerationResult{}
	generatedAt := g.now().UTC()

	err = g.store.WithTx(ctx, func(tx Store) error {
		for _, date := range period.Days() {
			for _, rt := range g.registry.RoomTypes {
				forecast, hasForecast := byCell[Key{Date: date, RoomTypeID: rt.ID}]
				if !hasForecast {
					// The bridge guarantees a complete grid; a hole means no
					// forecast run covered this date. Price conservatively
					// off zero demand rather than dropping the cell.
					forecast = ForecastPoint{Date: date, RoomTypeID: rt.ID}
					result.Warnings = append(result.Warnings, DataQualityWarning{
						Code:       WarnMissingHistory,
						Date:       date,
						RoomTypeID: rt.ID,
						Detail:     "no forecast point; assumed zero occupancy",
					})
				}

				base := g.registry.BaseRateFor(rt.ID, date)
				for _, ch := range channels {
					comp := g.engine.Compute(RateInput{
						Date:     date,
						RoomType: rt,
						Channel:  ch,
						BaseRate: base,
						Forecast: forecast,
					}, rules, g.clamp)
					result.Skipped = append(result.Skipped, comp.Skipped...)
					if comp.Clamped {
						result.Warnings = append(result.Warnings, DataQualityWarning{
							Code:       WarnRateClamp,
							Date:       date,
							RoomTypeID: rt.ID,
							Detail:     "recommended rate clamped to guard bounds",
						})
					}

					key := Key{Date: date, RoomTypeID: rt.ID, ChannelID: ch.ID}
					replaced, conflict, err := g.reconcile(ctx, tx, key, force)
					if err != nil {
						return err
					}
					if conflict != nil {
						result.Conflicts = append(result.Conflicts, conflict)
						continue
					}

					rec := Recommendation{
						ID:              RecommendationID(uuid.NewString()),
						Date:            date,
						RoomTypeID:      rt.ID,
						ChannelID:       ch.ID,
						BaseRate:        base,
						RecommendedRate: comp.Rate,
						State:           StatePending,
						GeneratedAt:     generatedAt,
					}
					if err := tx.SaveRecommendation(ctx, rec); err != nil {
						return err
					}
					if replaced {
						result.Replaced++
					} else {
						result.Created++
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	g.log.Info("recommendation generation complete",
		zap.String("period", period.String()),
		zap.Int("created", result.Created),
		zap.Int("replaced", result.Replaced),
		zap.Int("conflicts", len(result.Conflicts)))
	return result, nil
}

// reconcile clears the way for a new Pending row at key. Pending rows are
// deleted (replaced); Approved/Exported rows are a conflict unless force,
// in which case they are kept but marked superseded.
func (g *Generator) reconcile(ctx context.Context, tx Store, key Key, force bool) (replaced bool, conflict *ConflictError, err error) {
	existing, err := tx.CurrentByKey(ctx, key)
	if err != nil || existing == nil {
		return false, nil, err
	}

	switch existing.State {
	case StatePending, StateRejected:
		if err := tx.DeleteRecommendation(ctx, existing.ID); err != nil {
			return false, nil, err
		}
		return true, nil, nil
	default:
		if !force {
			return false, &ConflictError{
				Key:   key,
				ID:    existing.ID,
				State: existing.State,
				Op:    "regenerate",
			}, nil
		}
		existing.Superseded = true
		if err := tx.SaveRecommendation(ctx, *existing); err != nil {
			return false, nil, err
		}
		return true, nil, nil
	}
}
