/*
rules.go - Pricing rule engine

PURPOSE:
  Computes a recommended nightly rate by applying an ordered set of pricing
  rules to a base rate. Rules are DATA, not code: an enumerated rule type
  plus a parameter mapping, evaluated by a dispatcher. Non-engineers tune
  parameters in configuration without touching this package.

ALGORITHM:
  1. rate = base_rate
  2. Sort active rules by (priority asc, rule id asc) - a total order, so
     repeated runs over the same inputs always agree
  3. Each applicable rule transforms the rate in turn
  4. Clamp into [base*min_factor, base*max_factor]
  5. Round half-up to cents

RULE TYPES:
  SeasonAdjustment     Multiply by the season's factor for the date
  OccupancyAdjustment  Multiply by high/low factor against thresholds
  WeekdayAdjustment    Multiply by a per-day-of-week factor
  ChannelAdjustment    Additive or multiplicative delta for one channel
  AbsoluteOverride     Replace the rate or apply a fixed delta

FAILURE SEMANTICS:
  A malformed rule (missing/mistyped parameter) is skipped with a recorded
  warning, never fatal: one bad rule must not block a whole date range.
  A rule referencing an unknown room type, channel or season simply never
  applies - that is not an error.

PURITY:
  Compute takes every input explicitly (clamp factors included). No ambient
  state, so the same call always yields the same rate.
*/
package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// =============================================================================
// RULE DEFINITIONS
// =============================================================================

type RuleType string

const (
	RuleSeasonAdjustment    RuleType = "season_adjustment"
	RuleOccupancyAdjustment RuleType = "occupancy_adjustment"
	RuleWeekdayAdjustment   RuleType = "weekday_adjustment"
	RuleChannelAdjustment   RuleType = "channel_adjustment"
	RuleAbsoluteOverride    RuleType = "absolute_override"
)

// RuleParams is the parameter mapping for one rule. Recognized keys depend
// on the rule type; evaluators pull what they need and reject the rule (as
// a skip, not a failure) when a required key is missing or mistyped.
type RuleParams map[string]any

// PricingRule is one data-defined pricing transform.
type PricingRule struct {
	ID       RuleID
	Name     string
	Priority int // Lower = applied first; ties broken by ID ascending
	Active   bool
	Type     RuleType
	Params   RuleParams
}

// SortRules orders rules by (priority asc, id asc) - the explicit total
// order that makes rule application reproducible and auditable.
func SortRules(rules []PricingRule) []PricingRule {
	out := make([]PricingRule, len(rules))
	copy(out, rules)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// =============================================================================
// CLAMP - Global guard against rule interactions producing extremes
// =============================================================================

// ClampConfig bounds the final rate relative to the base rate.
type ClampConfig struct {
	MinFactor decimal.Decimal
	MaxFactor decimal.Decimal
}

// DefaultClamp mirrors the usual configuration (70%..130% of base).
func DefaultClamp() ClampConfig {
	return ClampConfig{
		MinFactor: decimal.NewFromFloat(0.7),
		MaxFactor: decimal.NewFromFloat(1.3),
	}
}

// =============================================================================
// COMPUTATION
// =============================================================================

// RateInput is everything a single rate computation depends on.
type RateInput struct {
	Date     DateKey
	RoomType RoomType
	Channel  Channel
	BaseRate decimal.Decimal
	Forecast ForecastPoint
}

// RuleApplication records one rule's effect, for the audit trail.
type RuleApplication struct {
	RuleID RuleID
	Name   string
	Before decimal.Decimal
	After  decimal.Decimal
}

// RuleSkip records a rule that could not be evaluated.
type RuleSkip struct {
	RuleID RuleID
	Err    error
}

// Computation is the outcome of one rate computation.
type Computation struct {
	Rate    decimal.Decimal
	Applied []RuleApplication
	Skipped []RuleSkip
	Clamped bool
}

// RuleEngine applies pricing rules to base rates.
type RuleEngine struct {
	registry *Registry
	log      *zap.Logger
}

func NewRuleEngine(registry *Registry, log *zap.Logger) *RuleEngine {
	if log == nil {
		log = zap.NewNop()
	}
	return &RuleEngine{registry: registry, log: log}
}

// Compute applies the active rules to the input's base rate in (priority,
// id) order, clamps, and rounds. Deterministic: identical inputs always
// yield the identical rate.
func (e *RuleEngine) Compute(in RateInput, rules []PricingRule, clamp ClampConfig) Computation {
	comp := Computation{Rate: in.BaseRate}

	for _, rule := range SortRules(rules) {
		if !rule.Active {
			continue
		}
		next, applied, err := e.applyRule(comp.Rate, in, rule)
		if err != nil {
			comp.Skipped = append(comp.Skipped, RuleSkip{RuleID: rule.ID, Err: err})
			e.log.Warn("pricing rule skipped",
				zap.String("rule", string(rule.ID)),
				zap.Error(err))
			continue
		}
		if applied {
			comp.Applied = append(comp.Applied, RuleApplication{
				RuleID: rule.ID,
				Name:   rule.Name,
				Before: comp.Rate,
				After:  next,
			})
			comp.Rate = next
		}
	}

	floor := in.BaseRate.Mul(clamp.MinFactor)
	ceil := in.BaseRate.Mul(clamp.MaxFactor)
	if comp.Rate.LessThan(floor) {
		comp.Rate, comp.Clamped = floor, true
	} else if comp.Rate.GreaterThan(ceil) {
		comp.Rate, comp.Clamped = ceil, true
	}

	comp.Rate = RoundRate(comp.Rate)
	return comp
}

// applyRule dispatches on the rule type. Returns (newRate, applied, err);
// err means the rule is malformed and must be skipped.
func (e *RuleEngine) applyRule(rate decimal.Decimal, in RateInput, rule PricingRule) (decimal.Decimal, bool, error) {
	switch rule.Type {
	case RuleSeasonAdjustment:
		return e.applySeason(rate, in, rule)
	case RuleOccupancyAdjustment:
		return e.applyOccupancy(rate, in, rule)
	case RuleWeekdayAdjustment:
		return e.applyWeekday(rate, in, rule)
	case RuleChannelAdjustment:
		return e.applyChannel(rate, in, rule)
	case RuleAbsoluteOverride:
		return e.applyOverride(rate, in, rule)
	default:
		return rate, false, &ConfigurationError{
			RuleID: rule.ID, RuleName: rule.Name,
			Param: "type", Reason: fmt.Sprintf("unknown rule type %q", rule.Type),
		}
	}
}

// -----------------------------------------------------------------------------
// SeasonAdjustment
//   params: "factors" - map of season name -> factor. A date whose season
//   has no entry (or that falls in no season) is left unchanged.
// -----------------------------------------------------------------------------

func (e *RuleEngine) applySeason(rate decimal.Decimal, in RateInput, rule PricingRule) (decimal.Decimal, bool, error) {
	factors, err := paramFactorMap(rule, "factors")
	if err != nil {
		return rate, false, err
	}
	season, ok := e.registry.SeasonFor(in.Date)
	if !ok {
		return rate, false, nil
	}
	factor, ok := factors[season.Name]
	if !ok {
		return rate, false, nil
	}
	return rate.Mul(factor), true, nil
}

// -----------------------------------------------------------------------------
// OccupancyAdjustment
//   params: "high_threshold", "low_threshold", "high_factor", "low_factor".
//   Above the high threshold the rate is multiplied up; below the low
//   threshold, down; in between the rule does not apply.
// -----------------------------------------------------------------------------

func (e *RuleEngine) applyOccupancy(rate decimal.Decimal, in RateInput, rule PricingRule) (decimal.Decimal, bool, error) {
	high, err := paramDecimal(rule, "high_threshold")
	if err != nil {
		return rate, false, err
	}
	low, err := paramDecimal(rule, "low_threshold")
	if err != nil {
		return rate, false, err
	}
	highFactor, err := paramDecimal(rule, "high_factor")
	if err != nil {
		return rate, false, err
	}
	lowFactor, err := paramDecimal(rule, "low_factor")
	if err != nil {
		return rate, false, err
	}

	occ := in.Forecast.Occupancy
	switch {
	case occ.GreaterThan(high):
		return rate.Mul(highFactor), true, nil
	case occ.LessThan(low):
		return rate.Mul(lowFactor), true, nil
	default:
		return rate, false, nil
	}
}

// -----------------------------------------------------------------------------
// WeekdayAdjustment
//   params: "factors" - map of lowercase weekday name ("monday".."sunday")
//   -> factor. Days without an entry are unchanged.
// -----------------------------------------------------------------------------

func (e *RuleEngine) applyWeekday(rate decimal.Decimal, in RateInput, rule PricingRule) (decimal.Decimal, bool, error) {
	factors, err := paramFactorMap(rule, "factors")
	if err != nil {
		return rate, false, err
	}
	factor, ok := factors[strings.ToLower(in.Date.Weekday().String())]
	if !ok {
		return rate, false, nil
	}
	return rate.Mul(factor), true, nil
}

// -----------------------------------------------------------------------------
// ChannelAdjustment
//   params: "channel" - channel name the rule targets, plus either
//   "factor" (multiplicative) or "delta" (additive). An unknown channel
//   name means the rule never applies.
// -----------------------------------------------------------------------------

func (e *RuleEngine) applyChannel(rate decimal.Decimal, in RateInput, rule PricingRule) (decimal.Decimal, bool, error) {
	name, err := paramString(rule, "channel")
	if err != nil {
		return rate, false, err
	}
	if in.Channel.Name != name {
		return rate, false, nil
	}

	if factor, ferr := paramDecimal(rule, "factor"); ferr == nil {
		return rate.Mul(factor), true, nil
	}
	if delta, derr := paramDecimal(rule, "delta"); derr == nil {
		return rate.Add(delta), true, nil
	}
	return rate, false, &ConfigurationError{
		RuleID: rule.ID, RuleName: rule.Name,
		Param: "factor/delta", Reason: "one of factor or delta is required",
	}
}

// -----------------------------------------------------------------------------
// AbsoluteOverride
//   params: optional match keys "room_type" (code), "channel" (name),
//   "season" (name), plus either "rate" (replacement) or "delta" (fixed
//   absolute adjustment). Intended to run last by priority convention.
// -----------------------------------------------------------------------------

func (e *RuleEngine) applyOverride(rate decimal.Decimal, in RateInput, rule PricingRule) (decimal.Decimal, bool, error) {
	if code, ok := rule.Params["room_type"].(string); ok {
		if in.RoomType.Code != code {
			return rate, false, nil
		}
	}
	if name, ok := rule.Params["channel"].(string); ok {
		if in.Channel.Name != name {
			return rate, false, nil
		}
	}
	if name, ok := rule.Params["season"].(string); ok {
		season, inSeason := e.registry.SeasonFor(in.Date)
		if !inSeason || season.Name != name {
			return rate, false, nil
		}
	}

	if fixed, ferr := paramDecimal(rule, "rate"); ferr == nil {
		return fixed, true, nil
	}
	if delta, derr := paramDecimal(rule, "delta"); derr == nil {
		return rate.Add(delta), true, nil
	}
	return rate, false, &ConfigurationError{
		RuleID: rule.ID, RuleName: rule.Name,
		Param: "rate/delta", Reason: "one of rate or delta is required",
	}
}

// =============================================================================
// PARAMETER EXTRACTION
// =============================================================================

func paramString(rule PricingRule, key string) (string, error) {
	v, ok := rule.Params[key]
	if !ok {
		return "", &ConfigurationError{RuleID: rule.ID, RuleName: rule.Name, Param: key, Reason: "missing"}
	}
	s, ok := v.(string)
	if !ok {
		return "", &ConfigurationError{RuleID: rule.ID, RuleName: rule.Name, Param: key, Reason: "not a string"}
	}
	return s, nil
}

func paramDecimal(rule PricingRule, key string) (decimal.Decimal, error) {
	v, ok := rule.Params[key]
	if !ok {
		return decimal.Zero, &ConfigurationError{RuleID: rule.ID, RuleName: rule.Name, Param: key, Reason: "missing"}
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, &ConfigurationError{RuleID: rule.ID, RuleName: rule.Name, Param: key, Reason: err.Error()}
	}
	return d, nil
}

func paramFactorMap(rule PricingRule, key string) (map[string]decimal.Decimal, error) {
	v, ok := rule.Params[key]
	if !ok {
		return nil, &ConfigurationError{RuleID: rule.ID, RuleName: rule.Name, Param: key, Reason: "missing"}
	}

	out := make(map[string]decimal.Decimal)
	switch m := v.(type) {
	case map[string]decimal.Decimal:
		return m, nil
	case map[string]any:
		for k, raw := range m {
			d, err := toDecimal(raw)
			if err != nil {
				return nil, &ConfigurationError{RuleID: rule.ID, RuleName: rule.Name, Param: key + "." + k, Reason: err.Error()}
			}
			out[k] = d
		}
		return out, nil
	default:
		return nil, &ConfigurationError{RuleID: rule.ID, RuleName: rule.Name, Param: key, Reason: "not a mapping"}
	}
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case float64:
		return decimal.NewFromFloat(n), nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case string:
		d, err := decimal.NewFromString(n)
		if err != nil {
			return decimal.Zero, fmt.Errorf("not a number: %q", n)
		}
		return d, nil
	default:
		return decimal.Zero, fmt.Errorf("not a number: %T", v)
	}
}
