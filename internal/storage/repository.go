package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates no record exists for the requested zone.
	ErrNotFound = errors.New("storage: record not found")
	// ErrInvalidRange indicates a negative history window was requested.
	ErrInvalidRange = errors.New("storage: history hours must not be negative")
)

// MaxHistoryHours caps history queries at 14 days. Requests beyond the cap
// are clamped, not rejected.
const MaxHistoryHours = 336

const (
	createObservationsSQL = `CREATE TABLE IF NOT EXISTS observations (
        ts                 TIMESTAMPTZ NOT NULL,
        zone               TEXT NOT NULL,
        price              NUMERIC NOT NULL,
        load_mw            NUMERIC NOT NULL,
        sentiment_score    DOUBLE PRECISION,
        sentiment_category TEXT,
        created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
        PRIMARY KEY (ts, zone)
    );`

	createObservationsIndexSQL = `CREATE INDEX IF NOT EXISTS idx_observations_zone_ts
        ON observations (zone, ts);`

	selectForUpdateSQL = `SELECT price, load_mw, sentiment_score, sentiment_category
    FROM observations
    WHERE ts = $1 AND zone = $2
    FOR UPDATE;`

	insertObservationSQL = `INSERT INTO observations (
        ts, zone, price, load_mw, sentiment_score, sentiment_category
    ) VALUES ($1,$2,$3,$4,$5,$6);`

	replaceObservationSQL = `UPDATE observations
    SET price = $3,
        load_mw = $4,
        sentiment_score = $5,
        sentiment_category = $6
    WHERE ts = $1 AND zone = $2;`

	observationColumns = `ts, zone, price, load_mw, sentiment_score, sentiment_category, created_at`

	latestObservationSQL = `SELECT ` + observationColumns + `
    FROM observations
    WHERE zone = $1
    ORDER BY ts DESC
    LIMIT 1;`

	recentObservationsSQL = `SELECT ` + observationColumns + `
    FROM observations
    WHERE zone = $1
    ORDER BY ts DESC
    LIMIT $2;`

	rangeObservationsSQL = `SELECT ` + observationColumns + `
    FROM observations
    WHERE zone = $1
      AND ts >= $2
      AND ts <= $3
    ORDER BY ts;`

	unscoredObservationsSQL = `SELECT ` + observationColumns + `
    FROM observations
    WHERE zone = $1
      AND sentiment_score IS NULL
    ORDER BY ts;`

	allZonesSQL = `SELECT DISTINCT zone FROM observations ORDER BY zone;`

	countObservationsSQL = `SELECT COUNT(*) FROM observations;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ObservationStore defines the persistence surface the scoring pipeline needs.
type ObservationStore interface {
	Append(ctx context.Context, records []ObservationRecord) (AppendResult, error)
	Range(ctx context.Context, zone string, from, to time.Time) ([]ObservationRecord, error)
	Unscored(ctx context.Context, zone string) ([]ObservationRecord, error)
	Latest(ctx context.Context, zone string) (ObservationRecord, error)
	AllZones(ctx context.Context) ([]string, error)
}

// QueryStore defines the read surface for presentation collaborators.
type QueryStore interface {
	Latest(ctx context.Context, zone string) (ObservationRecord, error)
	History(ctx context.Context, zone string, hours int, now time.Time) ([]ObservationRecord, error)
	AllZones(ctx context.Context) ([]string, error)
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store persists observation records in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// EnsureSchema creates the observations table on first run. An unreachable or
// malformed database surfaces here, before any pipeline work starts.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	for _, stmt := range []string{createObservationsSQL, createObservationsIndexSQL} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := conn.Exec(ctxUnlock, advisoryUnlockSQL, key); err != nil {
			// unlock best effort; log omitted in storage package
		}
		conn.Release()
	}
	return unlock, true, nil
}

// Append merges a batch of records into the observations table. The whole
// batch runs in one transaction, so an append is all-or-nothing. For each
// incoming record ResolveConflict decides insert, replace, or skip against the
// stored row for the same (timestamp, zone) key.
func (s *Store) Append(ctx context.Context, records []ObservationRecord) (AppendResult, error) {
	pool, err := s.getPool()
	if err != nil {
		return AppendResult{}, err
	}
	if len(records) == 0 {
		return AppendResult{}, nil
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return AppendResult{}, fmt.Errorf("begin append: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	var result AppendResult
	for _, record := range records {
		existing, err := lockExisting(ctx, tx, record.Timestamp, record.Zone)
		if err != nil {
			return AppendResult{}, err
		}

		score, category := scoreArgs(record)
		switch ResolveConflict(existing, record) {
		case MergeInsert:
			if _, err := tx.Exec(ctx, insertObservationSQL,
				record.Timestamp, record.Zone,
				record.Price.String(), record.Load.String(),
				score, category,
			); err != nil {
				return AppendResult{}, fmt.Errorf("insert observation: %w", err)
			}
			result.Inserted++
		case MergeReplace:
			if _, err := tx.Exec(ctx, replaceObservationSQL,
				record.Timestamp, record.Zone,
				record.Price.String(), record.Load.String(),
				score, category,
			); err != nil {
				return AppendResult{}, fmt.Errorf("replace observation: %w", err)
			}
			result.Replaced++
		case MergeSkip:
			result.Skipped++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return AppendResult{}, fmt.Errorf("commit append: %w", err)
	}
	return result, nil
}

func lockExisting(ctx context.Context, tx pgx.Tx, ts time.Time, zone string) (*ObservationRecord, error) {
	var (
		priceStr string
		loadStr  string
		score    sql.NullFloat64
		category sql.NullString
	)
	err := tx.QueryRow(ctx, selectForUpdateSQL, ts, zone).Scan(&priceStr, &loadStr, &score, &category)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock existing observation: %w", err)
	}

	record := ObservationRecord{Timestamp: ts, Zone: zone}
	if record.Price, err = decimal.NewFromString(priceStr); err != nil {
		return nil, fmt.Errorf("parse stored price: %w", err)
	}
	if record.Load, err = decimal.NewFromString(loadStr); err != nil {
		return nil, fmt.Errorf("parse stored load: %w", err)
	}
	applyScore(&record, score, category)
	return &record, nil
}

func scoreArgs(record ObservationRecord) (interface{}, interface{}) {
	var score interface{}
	if record.SentimentScore != nil {
		score = *record.SentimentScore
	}
	var category interface{}
	if record.SentimentCategory != nil {
		category = string(*record.SentimentCategory)
	}
	return score, category
}

// Latest returns the most recent record for a canonical zone.
func (s *Store) Latest(ctx context.Context, zone string) (ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return ObservationRecord{}, err
	}

	record, err := scanObservation(pool.QueryRow(ctx, latestObservationSQL, zone))
	if errors.Is(err, pgx.ErrNoRows) {
		return ObservationRecord{}, ErrNotFound
	}
	if err != nil {
		return ObservationRecord{}, fmt.Errorf("latest observation: %w", err)
	}
	return record, nil
}

// History returns records for a zone with timestamps in [now-hours, now],
// ascending. hours is clamped to MaxHistoryHours; negative hours is rejected.
func (s *Store) History(ctx context.Context, zone string, hours int, now time.Time) ([]ObservationRecord, error) {
	if hours < 0 {
		return nil, ErrInvalidRange
	}
	if hours > MaxHistoryHours {
		hours = MaxHistoryHours
	}
	from := now.Add(-time.Duration(hours) * time.Hour)
	return s.Range(ctx, zone, from, now)
}

// Range returns records for a zone with timestamps in [from, to], ascending.
func (s *Store) Range(ctx context.Context, zone string, from, to time.Time) ([]ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, rangeObservationsSQL, zone, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("range observations: %w", queryErr)
	}
	defer rows.Close()
	return collectObservations(rows)
}

// Recent returns the newest records for a zone, most recent first.
func (s *Store) Recent(ctx context.Context, zone string, limit int) ([]ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, recentObservationsSQL, zone, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("recent observations: %w", queryErr)
	}
	defer rows.Close()
	return collectObservations(rows)
}

// Unscored returns the records for a zone that have no sentiment score yet,
// ascending by timestamp.
func (s *Store) Unscored(ctx context.Context, zone string) ([]ObservationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, unscoredObservationsSQL, zone)
	if queryErr != nil {
		return nil, fmt.Errorf("unscored observations: %w", queryErr)
	}
	defer rows.Close()
	return collectObservations(rows)
}

// AllZones returns the distinct canonical zones present in the store.
func (s *Store) AllZones(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, allZonesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list zones: %w", queryErr)
	}
	defer rows.Close()

	zones := make([]string, 0)
	for rows.Next() {
		var zone string
		if err := rows.Scan(&zone); err != nil {
			return nil, err
		}
		zones = append(zones, zone)
	}
	return zones, rows.Err()
}

// Count counts stored observations.
func (s *Store) Count(ctx context.Context) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, countObservationsSQL).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("count observations: %w", scanErr)
	}
	return count, nil
}

func collectObservations(rows pgx.Rows) ([]ObservationRecord, error) {
	records := make([]ObservationRecord, 0)
	for rows.Next() {
		record, err := scanObservation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObservation(row rowScanner) (ObservationRecord, error) {
	var (
		record   ObservationRecord
		priceStr string
		loadStr  string
		score    sql.NullFloat64
		category sql.NullString
	)
	if err := row.Scan(
		&record.Timestamp,
		&record.Zone,
		&priceStr,
		&loadStr,
		&score,
		&category,
		&record.CreatedAt,
	); err != nil {
		return ObservationRecord{}, err
	}

	var err error
	if record.Price, err = decimal.NewFromString(priceStr); err != nil {
		return ObservationRecord{}, fmt.Errorf("parse price: %w", err)
	}
	if record.Load, err = decimal.NewFromString(loadStr); err != nil {
		return ObservationRecord{}, fmt.Errorf("parse load: %w", err)
	}
	applyScore(&record, score, category)
	return record, nil
}

func applyScore(record *ObservationRecord, score sql.NullFloat64, category sql.NullString) {
	if score.Valid {
		value := score.Float64
		record.SentimentScore = &value
	}
	if category.Valid {
		value := Category(category.String)
		record.SentimentCategory = &value
	}
}
