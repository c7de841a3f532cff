// Package store provides an in-memory Store implementation for tests/dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/brisamar/pricing-engine/engine"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu              sync.RWMutex
	facts           map[engine.Key]engine.DailyFact
	forecasts       map[engine.Key]engine.ForecastPoint
	recommendations map[engine.RecommendationID]engine.Recommendation
}

func NewMemory() *Memory {
	return &Memory{
		facts:           make(map[engine.Key]engine.DailyFact),
		forecasts:       make(map[engine.Key]engine.ForecastPoint),
		recommendations: make(map[engine.RecommendationID]engine.Recommendation),
	}
}

// =============================================================================
// FACT STORE
// =============================================================================

func (m *Memory) ReplaceFacts(_ context.Context, period engine.Period, facts []engine.DailyFact) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replaceFactsLocked(period, facts)
}

func (m *Memory) replaceFactsLocked(period engine.Period, facts []engine.DailyFact) error {
	for k := range m.facts {
		if period.Contains(k.Date) {
			delete(m.facts, k)
		}
	}
	for _, f := range facts {
		m.facts[engine.Key{Date: f.Date, RoomTypeID: f.RoomTypeID}] = f
	}
	return nil
}

func (m *Memory) FactsInRange(_ context.Context, period engine.Period, roomType *engine.RoomTypeID) ([]engine.DailyFact, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.DailyFact
	for k, f := range m.facts {
		if !period.Contains(k.Date) {
			continue
		}
		if roomType != nil && f.RoomTypeID != *roomType {
			continue
		}
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].RoomTypeID < out[j].RoomTypeID
	})
	return out, nil
}

// =============================================================================
// FORECAST STORE
// =============================================================================

func (m *Memory) SaveForecasts(_ context.Context, points []engine.ForecastPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveForecastsLocked(points)
}

func (m *Memory) saveForecastsLocked(points []engine.ForecastPoint) error {
	for _, p := range points {
		m.forecasts[engine.Key{Date: p.Date, RoomTypeID: p.RoomTypeID}] = p
	}
	return nil
}

func (m *Memory) GetForecast(_ context.Context, date engine.DateKey, roomType engine.RoomTypeID) (*engine.ForecastPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.forecasts[engine.Key{Date: date, RoomTypeID: roomType}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ForecastsInRange(_ context.Context, period engine.Period, roomType *engine.RoomTypeID) ([]engine.ForecastPoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.ForecastPoint
	for k, p := range m.forecasts {
		if !period.Contains(k.Date) {
			continue
		}
		if roomType != nil && p.RoomTypeID != *roomType {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].RoomTypeID < out[j].RoomTypeID
	})
	return out, nil
}

// =============================================================================
// RECOMMENDATION STORE
// =============================================================================

func (m *Memory) SaveRecommendation(_ context.Context, rec engine.Recommendation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recommendations[rec.ID] = rec
	return nil
}

func (m *Memory) GetRecommendation(_ context.Context, id engine.RecommendationID) (*engine.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.recommendations[id]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *Memory) CurrentByKey(_ context.Context, key engine.Key) (*engine.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, rec := range m.recommendations {
		if rec.Key() == key && !rec.Superseded {
			r := rec
			return &r, nil
		}
	}
	return nil, nil
}

func (m *Memory) DeleteRecommendation(_ context.Context, id engine.RecommendationID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.recommendations, id)
	return nil
}

func (m *Memory) Recommendations(_ context.Context, f engine.RecommendationFilter) ([]engine.Recommendation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []engine.Recommendation
	for _, rec := range m.recommendations {
		if !f.Period.Contains(rec.Date) {
			continue
		}
		if f.RoomTypeID != nil && rec.RoomTypeID != *f.RoomTypeID {
			continue
		}
		if f.ChannelID != nil && rec.ChannelID != *f.ChannelID {
			continue
		}
		if f.State != nil && rec.State != *f.State {
			continue
		}
		if rec.Superseded && !f.IncludeSuperseded {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].RoomTypeID != out[j].RoomTypeID {
			return out[i].RoomTypeID < out[j].RoomTypeID
		}
		return out[i].ChannelID < out[j].ChannelID
	})
	return out, nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn with the store lock held for the whole call, simulated
// with a snapshot + rollback on error.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(engine.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	facts           map[engine.Key]engine.DailyFact
	forecasts       map[engine.Key]engine.ForecastPoint
	recommendations map[engine.RecommendationID]engine.Recommendation
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		facts:           make(map[engine.Key]engine.DailyFact, len(tm.facts)),
		forecasts:       make(map[engine.Key]engine.ForecastPoint, len(tm.forecasts)),
		recommendations: make(map[engine.RecommendationID]engine.Recommendation, len(tm.recommendations)),
	}
	for k, v := range tm.facts {
		s.facts[k] = v
	}
	for k, v := range tm.forecasts {
		s.forecasts[k] = v
	}
	for k, v := range tm.recommendations {
		s.recommendations[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.facts = s.facts
	tm.forecasts = s.forecasts
	tm.recommendations = s.recommendations
}
