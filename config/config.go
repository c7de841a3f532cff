/*
Package config loads the engine's reference data and pricing rules from YAML.

PURPOSE:
  Converts a YAML configuration file into engine types. This keeps pricing
  policy as DATA - revenue managers tune room types, seasons, channels and
  rule parameters without code changes - and the file is reloadable at
  runtime without a restart.

YAML SCHEMA:
  hotel:
    name: Brisamar Beach Club
    currency: EUR
  pricing:
    min_price_factor: 0.7
    max_price_factor: 1.3
  room_types:
    - id: std
      code: STD
      name: Standard
      capacity: 2
      count: 40
      default_rate: 95.00
  channels:
    - id: direct
      name: Direct
      commission: 0.0
      priority: 1
      active: true
  seasons:
    - id: high
      name: High
      months: [6, 7, 8, 12]
      price_factor: 1.2
  base_rates:
    - room_type: std
      season: high
      rate: 120.00
  rules:
    - id: occupancy
      name: Occupancy Adjustment
      type: occupancy_adjustment
      priority: 20
      active: true
      params:
        low_threshold: 0.4
        high_threshold: 0.8
        low_factor: 0.9
        high_factor: 1.15

VALIDATION:
  Malformed entries produce ConfigurationErrors but do not abort the load:
  the remaining configuration still applies, matching the engine's
  skip-and-warn rule semantics. A configuration with no room types at all
  is the one fatal case - nothing downstream can run without a registry.

SEE ALSO:
  - engine/rules.go: Consumes the rule definitions
  - engine/types.go: Registry built here
*/
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/brisamar/pricing-engine/engine"
)

// =============================================================================
// YAML SCHEMA TYPES
// =============================================================================

type File struct {
	Hotel     HotelYAML      `yaml:"hotel"`
	Pricing   PricingYAML    `yaml:"pricing"`
	RoomTypes []RoomTypeYAML `yaml:"room_types"`
	Channels  []ChannelYAML  `yaml:"channels"`
	Seasons   []SeasonYAML   `yaml:"seasons"`
	BaseRates []BaseRateYAML `yaml:"base_rates"`
	Rules     []RuleYAML     `yaml:"rules"`
}

type HotelYAML struct {
	Name     string `yaml:"name"`
	Currency string `yaml:"currency"`
}

type PricingYAML struct {
	MinPriceFactor float64 `yaml:"min_price_factor"`
	MaxPriceFactor float64 `yaml:"max_price_factor"`
}

type RoomTypeYAML struct {
	ID          string  `yaml:"id"`
	Code        string  `yaml:"code"`
	Name        string  `yaml:"name"`
	Capacity    int     `yaml:"capacity"`
	Count       int     `yaml:"count"`
	DefaultRate float64 `yaml:"default_rate"`
}

type ChannelYAML struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name"`
	Commission float64 `yaml:"commission"`
	Priority   int     `yaml:"priority"`
	Active     bool    `yaml:"active"`
}

type SeasonYAML struct {
	ID          string  `yaml:"id"`
	Name        string  `yaml:"name"`
	Months      []int   `yaml:"months"`
	PriceFactor float64 `yaml:"price_factor"`
}

type BaseRateYAML struct {
	RoomType string  `yaml:"room_type"`
	Season   string  `yaml:"season,omitempty"`
	From     string  `yaml:"from,omitempty"`
	To       string  `yaml:"to,omitempty"`
	Rate     float64 `yaml:"rate"`
}

type RuleYAML struct {
	ID       string         `yaml:"id"`
	Name     string         `yaml:"name"`
	Type     string         `yaml:"type"`
	Priority int            `yaml:"priority"`
	Active   bool           `yaml:"active"`
	Params   map[string]any `yaml:"params"`
}

// =============================================================================
// LOADING
// =============================================================================

// Config is the parsed, validated configuration.
type Config struct {
	HotelName string
	Currency  string
	Registry  *engine.Registry
	Rules     []engine.PricingRule
	Clamp     engine.ClampConfig

	// Problems collects per-entry ConfigurationErrors tolerated during the
	// load, for surfacing in reporting.
	Problems []error
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse converts raw YAML into a Config. Bad entries are collected in
// Problems and skipped; an empty room-type registry is fatal.
func Parse(data []byte) (*Config, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &Config{
		HotelName: f.Hotel.Name,
		Currency:  f.Hotel.Currency,
		Clamp:     engine.DefaultClamp(),
	}
	if f.Pricing.MinPriceFactor > 0 {
		cfg.Clamp.MinFactor = decimal.NewFromFloat(f.Pricing.MinPriceFactor)
	}
	if f.Pricing.MaxPriceFactor > 0 {
		cfg.Clamp.MaxFactor = decimal.NewFromFloat(f.Pricing.MaxPriceFactor)
	}

	reg := &engine.Registry{}
	for _, rt := range f.RoomTypes {
		if rt.ID == "" || rt.Code == "" || rt.Count <= 0 {
			cfg.Problems = append(cfg.Problems, &engine.ConfigurationError{
				RuleName: "room_types", Param: rt.ID,
				Reason: "id, code and a positive count are required",
			})
			continue
		}
		reg.RoomTypes = append(reg.RoomTypes, engine.RoomType{
			ID:          engine.RoomTypeID(rt.ID),
			Code:        rt.Code,
			Name:        rt.Name,
			Capacity:    rt.Capacity,
			Count:       rt.Count,
			DefaultRate: decimal.NewFromFloat(rt.DefaultRate),
		})
	}
	if len(reg.RoomTypes) == 0 {
		return nil, fmt.Errorf("%w: no valid room types configured", engine.ErrConfiguration)
	}

	for _, ch := range f.Channels {
		if ch.ID == "" || ch.Name == "" || ch.Commission < 0 || ch.Commission > 1 {
			cfg.Problems = append(cfg.Problems, &engine.ConfigurationError{
				RuleName: "channels", Param: ch.ID,
				Reason: "id, name and a commission within [0, 1] are required",
			})
			continue
		}
		reg.Channels = append(reg.Channels, engine.Channel{
			ID:         engine.ChannelID(ch.ID),
			Name:       ch.Name,
			Commission: decimal.NewFromFloat(ch.Commission),
			Priority:   ch.Priority,
			Active:     ch.Active,
		})
	}

	for _, s := range f.Seasons {
		season := engine.Season{
			ID:          engine.SeasonID(s.ID),
			Name:        s.Name,
			PriceFactor: decimal.NewFromFloat(s.PriceFactor),
		}
		ok := true
		for _, m := range s.Months {
			if m < 1 || m > 12 {
				cfg.Problems = append(cfg.Problems, &engine.ConfigurationError{
					RuleName: "seasons", Param: s.ID,
					Reason: fmt.Sprintf("month %d out of range", m),
				})
				ok = false
				break
			}
			season.Months = append(season.Months, time.Month(m))
		}
		if ok {
			reg.Seasons = append(reg.Seasons, season)
		}
	}

	for _, br := range f.BaseRates {
		rt, ok := findRoomType(reg, br.RoomType)
		if !ok {
			cfg.Problems = append(cfg.Problems, &engine.ConfigurationError{
				RuleName: "base_rates", Param: br.RoomType,
				Reason: "unknown room type",
			})
			continue
		}
		entry := engine.BaseRate{
			RoomTypeID: rt.ID,
			SeasonID:   engine.SeasonID(br.Season),
			Rate:       decimal.NewFromFloat(br.Rate),
		}
		if br.From != "" {
			d, err := engine.ParseDate(br.From)
			if err != nil {
				cfg.Problems = append(cfg.Problems, &engine.ConfigurationError{
					RuleName: "base_rates", Param: "from", Reason: err.Error(),
				})
				continue
			}
			entry.From = d
		}
		if br.To != "" {
			d, err := engine.ParseDate(br.To)
			if err != nil {
				cfg.Problems = append(cfg.Problems, &engine.ConfigurationError{
					RuleName: "base_rates", Param: "to", Reason: err.Error(),
				})
				continue
			}
			entry.To = d
		}
		reg.BaseRates = append(reg.BaseRates, entry)
	}

	cfg.Registry = reg

	for _, r := range f.Rules {
		rule, err := parseRule(r)
		if err != nil {
			cfg.Problems = append(cfg.Problems, err)
			continue
		}
		cfg.Rules = append(cfg.Rules, rule)
	}

	return cfg, nil
}

func findRoomType(reg *engine.Registry, id string) (engine.RoomType, bool) {
	if rt, ok := reg.RoomTypeByID(engine.RoomTypeID(id)); ok {
		return rt, true
	}
	return reg.RoomTypeByCode(id)
}

var knownRuleTypes = map[engine.RuleType]bool{
	engine.RuleSeasonAdjustment:    true,
	engine.RuleOccupancyAdjustment: true,
	engine.RuleWeekdayAdjustment:   true,
	engine.RuleChannelAdjustment:   true,
	engine.RuleAbsoluteOverride:    true,
}

func parseRule(r RuleYAML) (engine.PricingRule, error) {
	if r.ID == "" {
		return engine.PricingRule{}, &engine.ConfigurationError{
			RuleName: r.Name, Param: "id", Reason: "missing",
		}
	}
	rt := engine.RuleType(r.Type)
	if !knownRuleTypes[rt] {
		return engine.PricingRule{}, &engine.ConfigurationError{
			RuleID: engine.RuleID(r.ID), RuleName: r.Name,
			Param: "type", Reason: fmt.Sprintf("unknown rule type %q", r.Type),
		}
	}
	return engine.PricingRule{
		ID:       engine.RuleID(r.ID),
		Name:     r.Name,
		Priority: r.Priority,
		Active:   r.Active,
		Type:     rt,
		Params:   engine.RuleParams(normalizeParams(r.Params)),
	}, nil
}

// normalizeParams rewrites nested yaml maps (map[any]any on older
// documents) into map[string]any so the rule evaluators see one shape.
func normalizeParams(params map[string]any) map[string]any {
	out := make(map[string]any, len(params))
	for k, v := range params {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch m := v.(type) {
	case map[string]any:
		return normalizeParams(m)
	case map[any]any:
		converted := make(map[string]any, len(m))
		for k, val := range m {
			converted[fmt.Sprint(k)] = normalizeValue(val)
		}
		return converted
	default:
		return v
	}
}
