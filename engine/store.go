/*
store.go - Persistence interfaces for facts, forecasts and recommendations

PURPOSE:
  Defines the contract between the engine and the persistence collaborator.
  Implementations: engine/store (in-memory, tests/dev) and store/sqlite
  (production).

REPLACEMENT SEMANTICS:
  Facts are replaced wholesale per period (ReplaceFacts deletes then writes
  inside one transaction) so re-importing a range can never double-count.
  Forecast points upsert by (date, room type). Recommendations upsert by ID;
  prior Pending rows for a key are deleted on regeneration while Approved/
  Exported rows are only ever superseded, never removed.

CONCURRENCY:
  Concurrent writers to the same recommendation key must serialize through
  WithTx; reads on disjoint keys may proceed concurrently.
*/
package engine

import "context"

// =============================================================================
// STORE INTERFACES
// =============================================================================

// FactStore persists daily occupancy/revenue facts.
type FactStore interface {
	// ReplaceFacts atomically replaces all facts in the period.
	ReplaceFacts(ctx context.Context, period Period, facts []DailyFact) error

	// FactsInRange returns facts ordered by (date, room type), optionally
	// filtered to one room type.
	FactsInRange(ctx context.Context, period Period, roomType *RoomTypeID) ([]DailyFact, error)
}

// ForecastStore persists normalized forecast points.
type ForecastStore interface {
	// SaveForecasts upserts points keyed by (date, room type).
	SaveForecasts(ctx context.Context, points []ForecastPoint) error

	// GetForecast returns the point for one cell, or nil when absent.
	GetForecast(ctx context.Context, date DateKey, roomType RoomTypeID) (*ForecastPoint, error)

	// ForecastsInRange returns points ordered by (date, room type).
	ForecastsInRange(ctx context.Context, period Period, roomType *RoomTypeID) ([]ForecastPoint, error)
}

// RecommendationFilter narrows recommendation queries.
type RecommendationFilter struct {
	Period            Period
	RoomTypeID        *RoomTypeID
	ChannelID         *ChannelID
	State             *RecommendationState
	IncludeSuperseded bool
}

// RecommendationStore persists recommendations and their audit trail.
type RecommendationStore interface {
	// SaveRecommendation upserts one row by ID.
	SaveRecommendation(ctx context.Context, rec Recommendation) error

	// GetRecommendation returns a row by ID, or nil when absent.
	GetRecommendation(ctx context.Context, id RecommendationID) (*Recommendation, error)

	// CurrentByKey returns the non-superseded row for a key, or nil.
	CurrentByKey(ctx context.Context, key Key) (*Recommendation, error)

	// DeleteRecommendation removes a row. Used only to replace Pending rows
	// on regeneration; Approved/Exported rows are superseded, not deleted.
	DeleteRecommendation(ctx context.Context, id RecommendationID) error

	// Recommendations returns rows matching the filter, ordered by
	// (date, room type, channel).
	Recommendations(ctx context.Context, f RecommendationFilter) ([]Recommendation, error)
}

// Store is the full persistence surface the engine needs.
type Store interface {
	FactStore
	ForecastStore
	RecommendationStore
}

// TxStore wraps Store with a mutual-exclusion boundary. fn runs atomically:
// an error rolls every write back.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
