package sqlstore

import (
	"embed"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/jackc/pgx/v5/pgconn"
	sqlite3 "github.com/mattn/go-sqlite3"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

//go:embed sql/sqlite/*.sql sql/postgres/*.sql
var sqlFS embed.FS

// sqliteTimeLayout is fixed width so that text order equals time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// Postgres SQLSTATE codes.
const (
	pgUndefinedTable  = "42P01"
	pgDuplicateTable  = "42P07"
	pgUniqueViolation = "23505"
)

// dialect holds the engine-specific statements and value encodings.
type dialect struct {
	name   string
	driver string

	createTable string
	createIndex string
	insert      string
	recent      string
	count       string
}

func loadDialect(name, driver string) (*dialect, error) {
	read := func(file string) (string, error) {
		b, err := sqlFS.ReadFile("sql/" + name + "/" + file)
		if err != nil {
			return "", fmt.Errorf("read %s/%s: %w", name, file, err)
		}
		return strings.TrimSuffix(strings.TrimSpace(string(b)), ";"), nil
	}

	d := &dialect{name: name, driver: driver}
	for file, dst := range map[string]*string{
		"create-table.sql":        &d.createTable,
		"create-index.sql":        &d.createIndex,
		"insert-reading.sql":      &d.insert,
		"get-recent-readings.sql": &d.recent,
		"get-readings-count.sql":  &d.count,
	} {
		s, err := read(file)
		if err != nil {
			return nil, err
		}
		*dst = s
	}
	return d, nil
}

// encodeTime converts a timestamp into the driver value stored in the
// "timestamp" column.
func (d *dialect) encodeTime(t time.Time) any {
	if d.name == "sqlite" {
		return t.UTC().Format(sqliteTimeLayout)
	}
	return t.UTC()
}

// decodeTime converts a scanned "timestamp" column value back to UTC.
func (d *dialect) decodeTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseStoredTime(t)
	case []byte:
		return parseStoredTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTimeLayout, s)
	if err != nil {
		var err2 error
		t, err2 = time.Parse(time.RFC3339Nano, s)
		if err2 != nil {
			return time.Time{}, fmt.Errorf("parse timestamp %q: %w; RFC3339Nano: %w", s, err, err2)
		}
	}
	return t.UTC(), nil
}

// isUndefinedTable reports whether err means the readings table is absent.
func (d *dialect) isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUndefinedTable
	}
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return strings.Contains(liteErr.Error(), "no such table")
	}
	return strings.Contains(err.Error(), "no such table")
}

// isConcurrentDDL reports whether a schema step lost a race with another
// process creating the same objects. Postgres can raise these for
// concurrent CREATE ... IF NOT EXISTS on a fresh database.
func (d *dialect) isConcurrentDDL(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgDuplicateTable || pgErr.Code == pgUniqueViolation
}

// target is a resolved connection string.
type target struct {
	dialect *dialect
	dsn     string
	dir     string // SQLite only: directory that must exist before opening
}

// resolve picks the dialect and driver DSN for a connection string without
// touching the filesystem or network.
//
//	postgres://..., postgresql://...   Postgres (pgx)
//	sqlite://path, file:path, path     SQLite (mattn/go-sqlite3)
func resolve(connString string) (target, error) {
	connString = strings.TrimSpace(connString)
	if connString == "" {
		return target{}, &domain.ConfigError{Key: "DATABASE_URL"}
	}

	switch {
	case strings.HasPrefix(connString, "postgres://"), strings.HasPrefix(connString, "postgresql://"):
		d, err := loadDialect("postgres", "pgx")
		return target{dialect: d, dsn: connString}, err
	case strings.HasPrefix(connString, "sqlite://"):
		connString = strings.TrimPrefix(connString, "sqlite://")
	case strings.Contains(connString, "://"):
		scheme, _, _ := strings.Cut(connString, "://")
		return target{}, &domain.ConfigError{Key: "DATABASE_URL", Reason: fmt.Sprintf("unsupported scheme %q", scheme)}
	}

	if connString == "" {
		return target{}, &domain.ConfigError{Key: "DATABASE_URL", Reason: "empty sqlite path"}
	}
	d, err := loadDialect("sqlite", "sqlite3")
	if err != nil {
		return target{}, err
	}
	t := target{dialect: d, dsn: buildSQLiteDSN(connString)}
	if !strings.HasPrefix(connString, "file:") {
		t.dir = filepath.Dir(connString)
	}
	return t, nil
}

// buildSQLiteDSN turns a file path into a go-sqlite3 DSN.
//   - _busy_timeout: concurrent runs wait for the write lock instead of failing
//   - _journal_mode=WAL: readers do not block the loader
//   - _txlock=immediate: the write lock is taken at BEGIN
func buildSQLiteDSN(path string) string {
	params := []string{
		"_busy_timeout=5000",
		"_journal_mode=WAL",
		"_txlock=immediate",
	}

	if strings.HasPrefix(path, "file:") {
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		return path + sep + strings.Join(params, "&")
	}
	return fmt.Sprintf("file:%s?%s", path, strings.Join(params, "&"))
}
