package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
)

var (
	// ErrTableMissing means the readings table has never been created.
	ErrTableMissing = errors.New("weather_readings table does not exist")
	// ErrNoReadings means the table exists but holds no rows.
	ErrNoReadings = errors.New("no weather readings stored")
)

// Store persists observations in the weather_readings table of a SQLite or
// Postgres database.
type Store struct {
	db      *sql.DB
	dialect *dialect
	logger  *slog.Logger
}

// Open connects to the database named by connString and verifies the
// connection. An empty connString is a ConfigError; nothing is opened.
func Open(ctx context.Context, connString string, logger *slog.Logger) (*Store, error) {
	t, err := resolve(connString)
	if err != nil {
		return nil, err
	}
	d := t.dialect

	if t.dir != "" && t.dir != "." {
		if err := os.MkdirAll(t.dir, 0o755); err != nil {
			return nil, &domain.StorageError{Op: "connect", Err: fmt.Errorf("mkdir %s: %w", t.dir, err)}
		}
	}

	db, err := sql.Open(d.driver, t.dsn)
	if err != nil {
		return nil, &domain.StorageError{Op: "connect", Err: fmt.Errorf("db open: %w", err)}
	}

	// One writer per process; SQLite serializes writers anyway.
	if d.name == "sqlite" {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, &domain.StorageError{Op: "connect", Err: fmt.Errorf("db ping: %w", err)}
	}

	logger.Debug("database connected", "dialect", d.name)
	return &Store{db: db, dialect: d, logger: logger}, nil
}

// Dialect returns "sqlite" or "postgres".
func (s *Store) Dialect() string { return s.dialect.name }

// Close releases the connection pool.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// EnsureSchema creates the readings table and its unique timestamp index if
// either is missing. Safe to call on every run.
func (s *Store) EnsureSchema(ctx context.Context) error {
	err := s.ensureSchema(ctx)
	if err != nil && s.dialect.isConcurrentDDL(err) {
		s.logger.Debug("schema creation raced another run, retrying", "error", err)
		err = s.ensureSchema(ctx)
	}
	if err != nil {
		return &domain.StorageError{Op: "ensure schema", Err: err}
	}
	return nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, s.dialect.createTable); err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.createIndex); err != nil {
		return fmt.Errorf("create unique index: %w", err)
	}
	return tx.Commit()
}

// Insert writes observations in a single transaction, skipping any whose
// timestamp is already stored. It returns the observations that were newly
// inserted, in input order. Nothing is committed on error.
func (s *Store) Insert(ctx context.Context, obs []domain.Observation) ([]domain.Observation, error) {
	if len(obs) == 0 {
		return nil, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, &domain.StorageError{Op: "insert", Err: fmt.Errorf("begin: %w", err)}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, s.dialect.insert)
	if err != nil {
		return nil, &domain.StorageError{Op: "insert", Err: fmt.Errorf("prepare: %w", err)}
	}
	defer stmt.Close()

	inserted := make([]domain.Observation, 0, len(obs))
	for _, o := range obs {
		res, err := stmt.ExecContext(ctx,
			s.dialect.encodeTime(o.Timestamp),
			o.Temperature,
			o.Humidity,
			o.Pressure,
			o.WindSpeed,
			o.WeatherCondition,
			o.HeatIndex,
		)
		if err != nil {
			return nil, &domain.StorageError{Op: "insert", Err: fmt.Errorf("insert reading %s: %w", o.Timestamp.UTC().Format(time.RFC3339), err)}
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, &domain.StorageError{Op: "insert", Err: fmt.Errorf("rows affected: %w", err)}
		}
		if n > 0 {
			inserted = append(inserted, o)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, &domain.StorageError{Op: "insert", Err: fmt.Errorf("commit: %w", err)}
	}

	s.logger.Debug("readings written", "attempted", len(obs), "inserted", len(inserted))
	return inserted, nil
}

// Recent returns up to limit stored observations, newest first. A missing
// table yields ErrTableMissing and an empty one ErrNoReadings, so callers can
// report the two states differently.
func (s *Store) Recent(ctx context.Context, limit int) ([]domain.Observation, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("recent readings: limit must be positive, got %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, s.dialect.recent, limit)
	if err != nil {
		if s.dialect.isUndefinedTable(err) {
			return nil, ErrTableMissing
		}
		return nil, &domain.StorageError{Op: "query recent", Err: err}
	}
	defer func() {
		if err := rows.Close(); err != nil {
			s.logger.Error("close recent readings rows", "error", err)
		}
	}()

	out, err := s.scanObservations(rows)
	if err != nil {
		return nil, &domain.StorageError{Op: "query recent", Err: err}
	}
	if len(out) == 0 {
		return nil, ErrNoReadings
	}
	return out, nil
}

// Count returns the number of stored observations.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, s.dialect.count).Scan(&n); err != nil {
		if s.dialect.isUndefinedTable(err) {
			return 0, ErrTableMissing
		}
		return 0, &domain.StorageError{Op: "count", Err: err}
	}
	return n, nil
}

func (s *Store) scanObservations(rows *sql.Rows) ([]domain.Observation, error) {
	var out []domain.Observation
	for rows.Next() {
		var (
			o  domain.Observation
			ts any
		)
		if err := rows.Scan(&ts, &o.Temperature, &o.Humidity, &o.Pressure, &o.WindSpeed, &o.WeatherCondition, &o.HeatIndex); err != nil {
			return nil, err
		}
		t, err := s.dialect.decodeTime(ts)
		if err != nil {
			return nil, err
		}
		o.Timestamp = t
		out = append(out, o)
	}
	return out, rows.Err()
}
