/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements engine.FactStore, engine.ForecastStore and
  engine.RecommendationStore on SQLite. The same patterns apply to
  PostgreSQL with minor dialect differences.

KEY TABLES:
  daily_facts:     One row per (date, room type); replaced per ingestion batch
  forecast_points: One row per (date, room type); upserted per forecast run
  recommendations: One row per generation per (date, room type, channel);
                   superseded rows kept as an audit trail

REPLACEMENT SEMANTICS:
  ReplaceFacts deletes the period then inserts inside one transaction, so a
  re-import can never double-count. Forecast points upsert on their natural
  key. Recommendations upsert by id; a partial unique index guarantees at
  most one non-superseded row per (date, room type, channel) key, which is
  the state-machine invariant under concurrent writers.

WAL MODE:
  Opened with WAL for better concurrency: readers don't block, single
  writer at a time, better crash recovery.

SEE ALSO:
  - engine/store.go: Interface definitions
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/brisamar/pricing-engine/engine"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS daily_facts (
		date TEXT NOT NULL,
		room_type_id TEXT NOT NULL,
		rooms_available INTEGER NOT NULL,
		rooms_occupied INTEGER NOT NULL,
		revenue TEXT NOT NULL,
		adr TEXT NOT NULL,
		revpar TEXT NOT NULL,
		overbooked INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, room_type_id)
	);

	CREATE INDEX IF NOT EXISTS idx_facts_date ON daily_facts(date);

	CREATE TABLE IF NOT EXISTS forecast_points (
		date TEXT NOT NULL,
		room_type_id TEXT NOT NULL,
		occupancy TEXT NOT NULL,
		adr TEXT NOT NULL,
		revpar TEXT NOT NULL,
		manually_adjusted INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (date, room_type_id)
	);

	CREATE INDEX IF NOT EXISTS idx_forecast_date ON forecast_points(date);

	CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		room_type_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		base_rate TEXT NOT NULL,
		recommended_rate TEXT NOT NULL,
		approved_rate TEXT,
		state TEXT NOT NULL,
		approved_at TEXT,
		exported_at TEXT,
		superseded INTEGER NOT NULL DEFAULT 0,
		generated_at TEXT NOT NULL,
		rejected_for TEXT
	);

	-- State-machine invariant: at most one live row per slot.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_recommendations_current_key
		ON recommendations(date, room_type_id, channel_id)
		WHERE superseded = 0;

	CREATE INDEX IF NOT EXISTS idx_recommendations_date
		ON recommendations(date);
	CREATE INDEX IF NOT EXISTS idx_recommendations_state
		ON recommendations(state);
	`
	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// FACT STORE
// =============================================================================

func (s *Store) ReplaceFacts(ctx context.Context, period engine.Period, facts []engine.DailyFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := replaceFacts(ctx, tx, period, facts); err != nil {
		return err
	}
	return tx.Commit()
}

func replaceFacts(ctx context.Context, db execer, period engine.Period, facts []engine.DailyFact) error {
	_, err := db.ExecContext(ctx,
		"DELETE FROM daily_facts WHERE date >= ? AND date <= ?",
		period.Start.String(), period.End.String())
	if err != nil {
		return fmt.Errorf("failed to clear facts: %w", err)
	}

	for _, f := range facts {
		_, err := db.ExecContext(ctx, `
			INSERT INTO daily_facts
				(date, room_type_id, rooms_available, rooms_occupied, revenue, adr, revpar, overbooked)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			f.Date.String(), string(f.RoomTypeID),
			f.RoomsAvailable, f.RoomsOccupied,
			f.Revenue.String(), f.ADR.String(), f.RevPAR.String(),
			boolToInt(f.Overbooked),
		)
		if err != nil {
			return fmt.Errorf("failed to insert fact: %w", err)
		}
	}
	return nil
}

func (s *Store) FactsInRange(ctx context.Context, period engine.Period, roomType *engine.RoomTypeID) ([]engine.DailyFact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryFacts(ctx, s.db, period, roomType)
}

func queryFacts(ctx context.Context, db execer, period engine.Period, roomType *engine.RoomTypeID) ([]engine.DailyFact, error) {
	query := `
		SELECT date, room_type_id, rooms_available, rooms_occupied, revenue, adr, revpar, overbooked
		FROM daily_facts WHERE date >= ? AND date <= ?`
	args := []any{period.Start.String(), period.End.String()}
	if roomType != nil {
		query += " AND room_type_id = ?"
		args = append(args, string(*roomType))
	}
	query += " ORDER BY date, room_type_id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query facts: %w", err)
	}
	defer rows.Close()

	var facts []engine.DailyFact
	for rows.Next() {
		var (
			f                    engine.DailyFact
			date                 string
			revenue, adr, revpar string
			overbooked           int
		)
		if err := rows.Scan(&date, &f.RoomTypeID, &f.RoomsAvailable, &f.RoomsOccupied,
			&revenue, &adr, &revpar, &overbooked); err != nil {
			return nil, fmt.Errorf("failed to scan fact: %w", err)
		}
		f.Date, _ = engine.ParseDate(date)
		f.Revenue = mustDecimal(revenue)
		f.ADR = mustDecimal(adr)
		f.RevPAR = mustDecimal(revpar)
		f.Overbooked = overbooked != 0
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// =============================================================================
// FORECAST STORE
// =============================================================================

func (s *Store) SaveForecasts(ctx context.Context, points []engine.ForecastPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := saveForecasts(ctx, tx, points); err != nil {
		return err
	}
	return tx.Commit()
}

func saveForecasts(ctx context.Context, db execer, points []engine.ForecastPoint) error {
	for _, p := range points {
		_, err := db.ExecContext(ctx, `
			INSERT INTO forecast_points (date, room_type_id, occupancy, adr, revpar, manually_adjusted)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(date, room_type_id) DO UPDATE SET
				occupancy = excluded.occupancy,
				adr = excluded.adr,
				revpar = excluded.revpar,
				manually_adjusted = excluded.manually_adjusted`,
			p.Date.String(), string(p.RoomTypeID),
			p.Occupancy.String(), p.ADR.String(), p.RevPAR.String(),
			boolToInt(p.ManuallyAdjusted),
		)
		if err != nil {
			return fmt.Errorf("failed to upsert forecast point: %w", err)
		}
	}
	return nil
}

func (s *Store) GetForecast(ctx context.Context, date engine.DateKey, roomType engine.RoomTypeID) (*engine.ForecastPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getForecast(ctx, s.db, date, roomType)
}

func getForecast(ctx context.Context, db execer, date engine.DateKey, roomType engine.RoomTypeID) (*engine.ForecastPoint, error) {
	var (
		p                     engine.ForecastPoint
		d                     string
		occupancy, adr, revpr string
		adjusted              int
	)
	err := db.QueryRowContext(ctx, `
		SELECT date, room_type_id, occupancy, adr, revpar, manually_adjusted
		FROM forecast_points WHERE date = ? AND room_type_id = ?`,
		date.String(), string(roomType),
	).Scan(&d, &p.RoomTypeID, &occupancy, &adr, &revpr, &adjusted)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.Date, _ = engine.ParseDate(d)
	p.Occupancy = mustDecimal(occupancy)
	p.ADR = mustDecimal(adr)
	p.RevPAR = mustDecimal(revpr)
	p.ManuallyAdjusted = adjusted != 0
	return &p, nil
}

func (s *Store) ForecastsInRange(ctx context.Context, period engine.Period, roomType *engine.RoomTypeID) ([]engine.ForecastPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryForecasts(ctx, s.db, period, roomType)
}

func queryForecasts(ctx context.Context, db execer, period engine.Period, roomType *engine.RoomTypeID) ([]engine.ForecastPoint, error) {
	query := `
		SELECT date, room_type_id, occupancy, adr, revpar, manually_adjusted
		FROM forecast_points WHERE date >= ? AND date <= ?`
	args := []any{period.Start.String(), period.End.String()}
	if roomType != nil {
		query += " AND room_type_id = ?"
		args = append(args, string(*roomType))
	}
	query += " ORDER BY date, room_type_id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	var points []engine.ForecastPoint
	for rows.Next() {
		var (
			p                     engine.ForecastPoint
			d                     string
			occupancy, adr, revpr string
			adjusted              int
		)
		if err := rows.Scan(&d, &p.RoomTypeID, &occupancy, &adr, &revpr, &adjusted); err != nil {
			return nil, fmt.Errorf("failed to scan forecast point: %w", err)
		}
		p.Date, _ = engine.ParseDate(d)
		p.Occupancy = mustDecimal(occupancy)
		p.ADR = mustDecimal(adr)
		p.RevPAR = mustDecimal(revpr)
		p.ManuallyAdjusted = adjusted != 0
		points = append(points, p)
	}
	return points, rows.Err()
}

// =============================================================================
// RECOMMENDATION STORE
// =============================================================================

func (s *Store) SaveRecommendation(ctx context.Context, rec engine.Recommendation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRecommendation(ctx, s.db, rec)
}

func saveRecommendation(ctx context.Context, db execer, rec engine.Recommendation) error {
	var approvedRate, approvedAt, exportedAt any
	if rec.ApprovedRate != nil {
		approvedRate = rec.ApprovedRate.String()
	}
	if rec.ApprovedAt != nil {
		approvedAt = rec.ApprovedAt.UTC().Format(time.RFC3339)
	}
	if rec.ExportedAt != nil {
		exportedAt = rec.ExportedAt.UTC().Format(time.RFC3339)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO recommendations
			(id, date, room_type_id, channel_id, base_rate, recommended_rate,
			 approved_rate, state, approved_at, exported_at, superseded, generated_at, rejected_for)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			approved_rate = excluded.approved_rate,
			state = excluded.state,
			approved_at = excluded.approved_at,
			exported_at = excluded.exported_at,
			superseded = excluded.superseded,
			rejected_for = excluded.rejected_for`,
		string(rec.ID), rec.Date.String(), string(rec.RoomTypeID), string(rec.ChannelID),
		rec.BaseRate.String(), rec.RecommendedRate.String(),
		approvedRate, string(rec.State), approvedAt, exportedAt,
		boolToInt(rec.Superseded),
		rec.GeneratedAt.UTC().Format(time.RFC3339),
		rec.RejectedFor,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert recommendation: %w", err)
	}
	return nil
}

func (s *Store) GetRecommendation(ctx context.Context, id engine.RecommendationID) (*engine.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryOneRecommendation(ctx, s.db, "id = ?", string(id))
}

func (s *Store) CurrentByKey(ctx context.Context, key engine.Key) (*engine.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return currentByKey(ctx, s.db, key)
}

func currentByKey(ctx context.Context, db execer, key engine.Key) (*engine.Recommendation, error) {
	return queryOneRecommendation(ctx, db,
		"date = ? AND room_type_id = ? AND channel_id = ? AND superseded = 0",
		key.Date.String(), string(key.RoomTypeID), string(key.ChannelID))
}

func (s *Store) DeleteRecommendation(ctx context.Context, id engine.RecommendationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, "DELETE FROM recommendations WHERE id = ?", string(id))
	return err
}

func (s *Store) Recommendations(ctx context.Context, f engine.RecommendationFilter) ([]engine.Recommendation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryRecommendations(ctx, s.db, f)
}

func queryRecommendations(ctx context.Context, db execer, f engine.RecommendationFilter) ([]engine.Recommendation, error) {
	query := recommendationColumns + " FROM recommendations WHERE date >= ? AND date <= ?"
	args := []any{f.Period.Start.String(), f.Period.End.String()}
	if f.RoomTypeID != nil {
		query += " AND room_type_id = ?"
		args = append(args, string(*f.RoomTypeID))
	}
	if f.ChannelID != nil {
		query += " AND channel_id = ?"
		args = append(args, string(*f.ChannelID))
	}
	if f.State != nil {
		query += " AND state = ?"
		args = append(args, string(*f.State))
	}
	if !f.IncludeSuperseded {
		query += " AND superseded = 0"
	}
	query += " ORDER BY date, room_type_id, channel_id"

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []engine.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

const recommendationColumns = `
	SELECT id, date, room_type_id, channel_id, base_rate, recommended_rate,
	       approved_rate, state, approved_at, exported_at, superseded, generated_at, rejected_for`

func queryOneRecommendation(ctx context.Context, db execer, where string, args ...any) (*engine.Recommendation, error) {
	rows, err := db.QueryContext(ctx, recommendationColumns+" FROM recommendations WHERE "+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendation: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	rec, err := scanRecommendation(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanRecommendation(rows *sql.Rows) (engine.Recommendation, error) {
	var (
		rec                    engine.Recommendation
		date                   string
		baseRate, recommended  string
		approvedRate           sql.NullString
		approvedAt, exportedAt sql.NullString
		superseded             int
		generatedAt            string
		rejectedFor            sql.NullString
	)
	err := rows.Scan(&rec.ID, &date, &rec.RoomTypeID, &rec.ChannelID,
		&baseRate, &recommended, &approvedRate, &rec.State,
		&approvedAt, &exportedAt, &superseded, &generatedAt, &rejectedFor)
	if err != nil {
		return rec, fmt.Errorf("failed to scan recommendation: %w", err)
	}

	rec.Date, _ = engine.ParseDate(date)
	rec.BaseRate = mustDecimal(baseRate)
	rec.RecommendedRate = mustDecimal(recommended)
	if approvedRate.Valid {
		d := mustDecimal(approvedRate.String)
		rec.ApprovedRate = &d
	}
	if approvedAt.Valid {
		t, _ := time.Parse(time.RFC3339, approvedAt.String)
		rec.ApprovedAt = &t
	}
	if exportedAt.Valid {
		t, _ := time.Parse(time.RFC3339, exportedAt.String)
		rec.ExportedAt = &t
	}
	rec.Superseded = superseded != 0
	rec.GeneratedAt, _ = time.Parse(time.RFC3339, generatedAt)
	rec.RejectedFor = rejectedFor.String
	return rec, nil
}

// =============================================================================
// TRANSACTIONAL STORE (engine.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store engine.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{tx: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

type txStore struct {
	tx *sql.Tx
}

func (ts *txStore) ReplaceFacts(ctx context.Context, period engine.Period, facts []engine.DailyFact) error {
	return replaceFacts(ctx, ts.tx, period, facts)
}

func (ts *txStore) FactsInRange(ctx context.Context, period engine.Period, roomType *engine.RoomTypeID) ([]engine.DailyFact, error) {
	return queryFacts(ctx, ts.tx, period, roomType)
}

func (ts *txStore) SaveForecasts(ctx context.Context, points []engine.ForecastPoint) error {
	return saveForecasts(ctx, ts.tx, points)
}

func (ts *txStore) GetForecast(ctx context.Context, date engine.DateKey, roomType engine.RoomTypeID) (*engine.ForecastPoint, error) {
	return getForecast(ctx, ts.tx, date, roomType)
}

func (ts *txStore) ForecastsInRange(ctx context.Context, period engine.Period, roomType *engine.RoomTypeID) ([]engine.ForecastPoint, error) {
	return queryForecasts(ctx, ts.tx, period, roomType)
}

func (ts *txStore) SaveRecommendation(ctx context.Context, rec engine.Recommendation) error {
	return saveRecommendation(ctx, ts.tx, rec)
}

func (ts *txStore) GetRecommendation(ctx context.Context, id engine.RecommendationID) (*engine.Recommendation, error) {
	return queryOneRecommendation(ctx, ts.tx, "id = ?", string(id))
}

func (ts *txStore) CurrentByKey(ctx context.Context, key engine.Key) (*engine.Recommendation, error) {
	return currentByKey(ctx, ts.tx, key)
}

func (ts *txStore) DeleteRecommendation(ctx context.Context, id engine.RecommendationID) error {
	_, err := ts.tx.ExecContext(ctx, "DELETE FROM recommendations WHERE id = ?", string(id))
	return err
}

func (ts *txStore) Recommendations(ctx context.Context, f engine.RecommendationFilter) ([]engine.Recommendation, error) {
	return queryRecommendations(ctx, ts.tx, f)
}

// =============================================================================
// HELPERS
// =============================================================================

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
