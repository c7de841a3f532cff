package config_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brisamar/pricing-engine/config"
	"github.com/brisamar/pricing-engine/engine"
)

const validYAML = `
hotel:
  name: Brisamar Beach Club
  currency: EUR
pricing:
  min_price_factor: 0.75
  max_price_factor: 1.25
room_types:
  - id: std
    code: STD
    name: Standard
    capacity: 2
    count: 40
    default_rate: 95.00
  - id: sup
    code: SUP
    name: Superior
    capacity: 3
    count: 25
    default_rate: 130.00
channels:
  - id: direct
    name: Direct
    commission: 0.0
    priority: 1
    active: true
  - id: booking
    name: Booking.com
    commission: 0.18
    priority: 2
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
  - room_type: std
    season: high
    from: 2026-12-28
    to: 2027-01-03
    rate: 150.00
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
  - id: season
    name: Seasonal Adjustment
    type: season_adjustment
    priority: 10
    active: true
    params:
      factors:
        High: 1.2
`

func TestParse_ValidConfiguration(t *testing.T) {
	// GIVEN: A complete configuration document
	// WHEN: Parsing
	// THEN: Registry, rules and clamp are populated; no problems collected

	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)

	assert.Equal(t, "Brisamar Beach Club", cfg.HotelName)
	assert.Equal(t, "EUR", cfg.Currency)
	assert.Empty(t, cfg.Problems)

	require.Len(t, cfg.Registry.RoomTypes, 2)
	std, ok := cfg.Registry.RoomTypeByCode("STD")
	require.True(t, ok)
	assert.Equal(t, 40, std.Count)
	assert.True(t, std.DefaultRate.Equal(decimal.RequireFromString("95")))

	require.Len(t, cfg.Registry.Channels, 2)
	require.Len(t, cfg.Registry.Seasons, 1)
	require.Len(t, cfg.Registry.BaseRates, 2)
	require.Len(t, cfg.Rules, 2)

	assert.True(t, cfg.Clamp.MinFactor.Equal(decimal.RequireFromString("0.75")))
	assert.True(t, cfg.Clamp.MaxFactor.Equal(decimal.RequireFromString("1.25")))
}

func TestParse_SeasonalBaseRateResolution(t *testing.T) {
	// GIVEN: The parsed registry with a seasonal rate and a more specific
	//        season-plus-range rate
	// WHEN: Resolving base rates
	// THEN: June uses the High season rate; the New Year window uses the
	//       narrower entry; other dates fall back to the default

	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)
	reg := cfg.Registry

	june := reg.BaseRateFor("std", engine.NewDate(2026, time.June, 15))
	assert.True(t, june.Equal(decimal.RequireFromString("120")), "june: %s", june)

	newYear := reg.BaseRateFor("std", engine.NewDate(2026, time.December, 30))
	assert.True(t, newYear.Equal(decimal.RequireFromString("150")), "new year: %s", newYear)

	april := reg.BaseRateFor("std", engine.NewDate(2026, time.April, 15))
	assert.True(t, april.Equal(decimal.RequireFromString("95")), "april falls back: %s", april)
}

func TestParse_RuleParamsUsableByEngine(t *testing.T) {
	// GIVEN: A parsed season rule with a nested factors mapping
	// WHEN: Computing a rate through the rule engine
	// THEN: The YAML-sourced parameters evaluate without skips

	cfg, err := config.Parse([]byte(validYAML))
	require.NoError(t, err)

	eng := engine.NewRuleEngine(cfg.Registry, nil)
	rt, _ := cfg.Registry.RoomTypeByID("std")
	ch, _ := cfg.Registry.ChannelByID("direct")

	comp := eng.Compute(engine.RateInput{
		Date:     engine.NewDate(2026, time.June, 10),
		RoomType: rt,
		Channel:  ch,
		BaseRate: decimal.RequireFromString("100"),
		Forecast: engine.ForecastPoint{Occupancy: decimal.RequireFromString("0.9")},
	}, cfg.Rules, cfg.Clamp)

	assert.Empty(t, comp.Skipped, "config-sourced params must evaluate cleanly")
	// season x1.2 then occupancy x1.15 = 138, clamped to 125 (max 1.25)
	assert.True(t, comp.Rate.Equal(decimal.RequireFromString("125")), "got %s", comp.Rate)
	assert.True(t, comp.Clamped)
}

func TestParse_BadEntriesSkippedNotFatal(t *testing.T) {
	// GIVEN: A document with an unknown rule type, a bad month, an unknown
	//        base-rate room type, and one valid room type
	// WHEN: Parsing
	// THEN: The load succeeds; each bad entry lands in Problems

	doc := `
room_types:
  - id: std
    code: STD
    name: Standard
    count: 40
    default_rate: 95.00
seasons:
  - id: weird
    name: Weird
    months: [13]
    price_factor: 1.0
base_rates:
  - room_type: penthouse
    rate: 500.00
rules:
  - id: mystery
    name: Mystery Rule
    type: quantum_adjustment
    priority: 10
    active: true
`
	cfg, err := config.Parse([]byte(doc))
	require.NoError(t, err)

	assert.Len(t, cfg.Registry.RoomTypes, 1)
	assert.Empty(t, cfg.Registry.Seasons)
	assert.Empty(t, cfg.Registry.BaseRates)
	assert.Empty(t, cfg.Rules)

	require.Len(t, cfg.Problems, 3)
	for _, p := range cfg.Problems {
		assert.ErrorIs(t, p, engine.ErrConfiguration)
	}
}

func TestParse_NoRoomTypesIsFatal(t *testing.T) {
	// GIVEN: A document with no valid room types
	// WHEN: Parsing
	// THEN: The load fails - nothing downstream can run without a registry

	_, err := config.Parse([]byte(`hotel: {name: Empty}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrConfiguration)

	_, err = config.Parse([]byte(`
room_types:
  - id: broken
    count: 0
`))
	require.Error(t, err)
	assert.ErrorIs(t, err, engine.ErrConfiguration)
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := config.Parse([]byte("room_types: [unclosed"))
	assert.Error(t, err)
}

func TestParse_MissingPricingSectionUsesDefaultClamp(t *testing.T) {
	// GIVEN: A document without a pricing section
	// WHEN: Parsing
	// THEN: The default 0.7..1.3 clamp applies

	cfg, err := config.Parse([]byte(`
room_types:
  - id: std
    code: STD
    count: 10
    default_rate: 80.00
`))
	require.NoError(t, err)
	assert.True(t, cfg.Clamp.MinFactor.Equal(decimal.NewFromFloat(0.7)))
	assert.True(t, cfg.Clamp.MaxFactor.Equal(decimal.NewFromFloat(1.3)))
}
