/*
Package engine is the pricing recommendation core.

PURPOSE:
  This package turns raw reservation/stay records into daily occupancy and
  revenue facts, bridges an external demand forecast into a complete
  date x room-type grid, and computes recommended nightly rates by applying
  an ordered, data-driven set of pricing rules to a base rate.

KEY CONCEPTS IN THIS FILE (types.go):
  - RoomType/Channel/Season: Reference data loaded from configuration
  - RawStayRecord: A reservation span as delivered by the ingestion collaborator
  - ExpandedNight: One occupied night derived from a stay (ephemeral)
  - DailyFact: Per-date, per-room-type occupancy and revenue (ADR, RevPAR)
  - ForecastPoint: Predicted occupancy/ADR for one date and room type
  - Recommendation: A computed rate with its approval state

DESIGN PRINCIPLES:
  1. Determinism: Same inputs always produce the same recommended rate
  2. Precision: Uses decimal.Decimal for all money, never float64
  3. Rules are data: Rule behavior is an enumerated type plus parameters,
     tunable from configuration without code changes
  4. Tolerant ingestion: Bad source records are rejected individually and
     counted; a batch never aborts because of one record

SEE ALSO:
  - expand.go: Stay-to-nights expansion
  - aggregate.go: Daily fact aggregation
  - forecast.go: Forecast bridge
  - rules.go: Rule engine
  - lifecycle.go: Recommendation state machine
*/
package engine

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type RoomTypeID string
type ChannelID string
type SeasonID string
type RuleID string
type RecommendationID string

// =============================================================================
// MONEY - All rates and revenue are decimals, rounded half-up to cents
// =============================================================================

// RoundRate rounds a rate to the currency's minimal unit (2 decimal places)
// using round-half-up. decimal.Round rounds half away from zero, which is
// half-up for the non-negative values rates take.
func RoundRate(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// =============================================================================
// REFERENCE DATA - Immutable within a run, mutated only via configuration
// =============================================================================

// RoomType describes one sellable room category.
type RoomType struct {
	ID       RoomTypeID
	Code     string // Unique short code, e.g. "STD", "JSU"
	Name     string
	Capacity int // Guests per room
	Count    int // Physical rooms of this type; rooms available each night

	// DefaultRate is the fallback tariff when no BaseRate entry matches.
	DefaultRate decimal.Decimal
}

// Channel is a distribution channel (direct, OTA, agency...).
type Channel struct {
	ID         ChannelID
	Name       string
	Commission decimal.Decimal // Fraction in [0, 1]
	Priority   int             // Tie-break ordering for deterministic output
	Active     bool
}

// Season groups calendar months under one demand regime.
type Season struct {
	ID          SeasonID
	Name        string
	Months      []time.Month
	PriceFactor decimal.Decimal
}

// BaseRate is the floor tariff that rules adjust from, scoped to a room type
// and either a season, an explicit date range, or both.
type BaseRate struct {
	RoomTypeID RoomTypeID
	SeasonID   SeasonID // Empty = any season
	From, To   DateKey  // Zero = unbounded on that side
	Rate       decimal.Decimal
}

// =============================================================================
// REGISTRY - Lookup tables for reference data
// =============================================================================

// Registry bundles the reference data every pipeline stage needs.
// It is built once from configuration and treated as read-only.
type Registry struct {
	RoomTypes []RoomType
	Channels  []Channel
	Seasons   []Season
	BaseRates []BaseRate
}

// RoomTypeByCode resolves a room-type code from source data.
func (r *Registry) RoomTypeByCode(code string) (RoomType, bool) {
	for _, rt := range r.RoomTypes {
		if rt.Code == code {
			return rt, true
		}
	}
	return RoomType{}, false
}

// RoomTypeByID resolves a room-type id.
func (r *Registry) RoomTypeByID(id RoomTypeID) (RoomType, bool) {
	for _, rt := range r.RoomTypes {
		if rt.ID == id {
			return rt, true
		}
	}
	return RoomType{}, false
}

// ChannelByName resolves a channel by its source-data name.
func (r *Registry) ChannelByName(name string) (Channel, bool) {
	for _, ch := range r.Channels {
		if ch.Name == name {
			return ch, true
		}
	}
	return Channel{}, false
}

// ChannelByID resolves a channel id.
func (r *Registry) ChannelByID(id ChannelID) (Channel, bool) {
	for _, ch := range r.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return Channel{}, false
}

// ActiveChannels returns active channels ordered by (priority asc, id asc)
// so every generation run visits channels in the same order.
func (r *Registry) ActiveChannels() []Channel {
	var out []Channel
	for _, ch := range r.Channels {
		if ch.Active {
			out = append(out, ch)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SeasonFor returns the season containing the date's month, if any.
func (r *Registry) SeasonFor(date DateKey) (Season, bool) {
	m := date.Month()
	for _, s := range r.Seasons {
		for _, sm := range s.Months {
			if sm == m {
				return s, true
			}
		}
	}
	return Season{}, false
}

// SeasonByName resolves a season by name.
func (r *Registry) SeasonByName(name string) (Season, bool) {
	for _, s := range r.Seasons {
		if s.Name == name {
			return s, true
		}
	}
	return Season{}, false
}

// BaseRateFor resolves the base rate for a room type on a date.
// The most specific matching entry wins: season+range over season-only over
// range-only over catch-all. Falls back to the room type's default rate.
func (r *Registry) BaseRateFor(roomType RoomTypeID, date DateKey) decimal.Decimal {
	season, hasSeason := r.SeasonFor(date)

	best := -1
	bestScore := -1
	for i, br := range r.BaseRates {
		if br.RoomTypeID != roomType {
			continue
		}
		score := 0
		if br.SeasonID != "" {
			if !hasSeason || br.SeasonID != season.ID {
				continue
			}
			score += 2
		}
		if !br.From.IsZero() || !br.To.IsZero() {
			if !br.From.IsZero() && date.Before(br.From) {
				continue
			}
			if !br.To.IsZero() && date.After(br.To) {
				continue
			}
			score++
		}
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	if best >= 0 {
		return r.BaseRates[best].Rate
	}
	if rt, ok := r.RoomTypeByID(roomType); ok {
		return rt.DefaultRate
	}
	return decimal.Zero
}

// =============================================================================
// STAY RECORDS - Source of truth for realized revenue
// =============================================================================

type StayStatus string

const (
	StayConfirmed StayStatus = "confirmed"
	StayCancelled StayStatus = "cancelled"
	StayNoShow    StayStatus = "no_show"
)

// RawStayRecord is one reservation/stay as delivered by the ingestion
// collaborator, already type-validated (dates parsed, numbers coerced).
// Read-only to this package.
type RawStayRecord struct {
	RegistryID   string
	CheckIn      DateKey
	CheckOut     DateKey
	RoomTypeCode string
	ChannelName  string
	GrossValue   decimal.Decimal
	Status       StayStatus
}

// Nights returns the number of occupied nights (checkout night excluded).
func (s RawStayRecord) Nights() int {
	return DaysBetween(s.CheckIn, s.CheckOut)
}

// ExpandedNight is one occupied night derived from a stay. Ephemeral:
// recomputed on each ingestion run and only ever persisted in aggregate.
type ExpandedNight struct {
	Date         DateKey
	RoomTypeCode string
	ChannelName  string
	Rate         decimal.Decimal // Apportioned share of the stay's gross value
	StayRef      string          // RegistryID of the originating stay
}

// =============================================================================
// DAILY FACT - Per-date, per-room-type occupancy and revenue
// =============================================================================

// DailyFact is the consolidated occupancy/revenue record for one date and
// room type. Facts are created/overwritten per ingestion batch for the
// affected range, never partially updated.
type DailyFact struct {
	Date           DateKey
	RoomTypeID     RoomTypeID
	RoomsAvailable int
	RoomsOccupied  int
	Revenue        decimal.Decimal
	ADR            decimal.Decimal // Revenue / occupied, 0 when occupied = 0
	RevPAR         decimal.Decimal // Revenue / available

	// Overbooked marks occupied > available in the source data. The fact is
	// recorded as-is; downstream consumers surface the data-quality warning.
	Overbooked bool
}

// OccupancyFraction is occupied/available in [0, n]; 0 when no rooms exist.
func (f DailyFact) OccupancyFraction() decimal.Decimal {
	if f.RoomsAvailable == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(int64(f.RoomsOccupied)).
		Div(decimal.NewFromInt(int64(f.RoomsAvailable)))
}

// =============================================================================
// FORECAST POINT - Predicted demand for one date and room type
// =============================================================================

// ForecastPoint is a normalized prediction on the complete date x room-type
// grid. Mutable only via explicit manual adjustment.
type ForecastPoint struct {
	Date       DateKey
	RoomTypeID RoomTypeID
	Occupancy  decimal.Decimal // Fraction clamped to [0, 1]
	ADR        decimal.Decimal
	RevPAR     decimal.Decimal // ADR x Occupancy

	// ManuallyAdjusted points survive forecast regeneration unless the
	// caller forces an overwrite.
	ManuallyAdjusted bool
}

// =============================================================================
// RECOMMENDATION - A computed rate with its approval state
// =============================================================================

type RecommendationState string

const (
	StatePending  RecommendationState = "pending"
	StateApproved RecommendationState = "approved"
	StateRejected RecommendationState = "rejected"
	StateExported RecommendationState = "exported"
)

// Recommendation is one recommended nightly rate for a (date, room type,
// channel) key. The rule engine owns RecommendedRate; the lifecycle manager
// owns State and ApprovedRate. Nothing else mutates a recommendation.
type Recommendation struct {
	ID         RecommendationID
	Date       DateKey
	RoomTypeID RoomTypeID
	ChannelID  ChannelID

	BaseRate        decimal.Decimal
	RecommendedRate decimal.Decimal
	ApprovedRate    *decimal.Decimal // Set on approval; defaults to recommended

	State      RecommendationState
	ApprovedAt *time.Time
	ExportedAt *time.Time

	// Superseded rows are prior Approved/Exported rows replaced by a forced
	// regeneration. They are kept as an audit trail and excluded from the
	// current view.
	Superseded bool

	GeneratedAt time.Time
	RejectedFor string // Reason supplied on rejection
}

// FinalRate is the rate handed to the export collaborator.
func (r Recommendation) FinalRate() decimal.Decimal {
	if r.ApprovedRate != nil {
		return *r.ApprovedRate
	}
	return r.RecommendedRate
}

// Key identifies the (date, room type, channel) slot a recommendation fills.
type Key struct {
	Date       DateKey
	RoomTypeID RoomTypeID
	ChannelID  ChannelID
}

// Key returns the recommendation's slot key.
func (r Recommendation) Key() Key {
	return Key{Date: r.Date, RoomTypeID: r.RoomTypeID, ChannelID: r.ChannelID}
}
