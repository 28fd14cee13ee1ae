package sqlstore

import (
	"context"
	"log/slog"
	"sync"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
)

// Loader opens the destination store on first use and writes enriched
// observations to it. It implements pipeline.Loader.
type Loader struct {
	connString string
	logger     *slog.Logger

	mu    sync.Mutex
	store *Store
}

// NewLoader creates a Loader for connString. No connection is made until
// EnsureSchema or Load is called.
func NewLoader(connString string, logger *slog.Logger) *Loader {
	return &Loader{connString: connString, logger: logger}
}

// Validate reports a ConfigError when the destination connection string is
// missing or names an unsupported engine.
func (l *Loader) Validate() error {
	if l.connString == "" {
		return &domain.ConfigError{Key: "DATABASE_URL"}
	}
	_, err := resolve(l.connString)
	return err
}

// EnsureSchema connects if needed and creates the table and unique index.
func (l *Loader) EnsureSchema(ctx context.Context) error {
	s, err := l.open(ctx)
	if err != nil {
		return err
	}
	return s.EnsureSchema(ctx)
}

// Insert writes obs with conflict-skip semantics and returns the rows that
// were newly persisted. EnsureSchema must have succeeded first.
func (l *Loader) Insert(ctx context.Context, obs []domain.Observation) ([]domain.Observation, error) {
	s, err := l.open(ctx)
	if err != nil {
		return nil, err
	}
	return s.Insert(ctx, obs)
}

// Load ensures the schema and inserts obs, returning how many rows were newly
// persisted. Zero with a nil error means every record was a duplicate.
func (l *Loader) Load(ctx context.Context, obs ...domain.Observation) (int, error) {
	if err := l.Validate(); err != nil {
		return 0, err
	}
	if err := l.EnsureSchema(ctx); err != nil {
		return 0, err
	}
	if len(obs) == 0 {
		l.logger.Warn("no records to insert")
		return 0, nil
	}
	inserted, err := l.Insert(ctx, obs)
	if err != nil {
		return 0, err
	}
	return len(inserted), nil
}

// Store returns the underlying store, connecting if needed.
func (l *Loader) Store(ctx context.Context) (*Store, error) {
	return l.open(ctx)
}

// Close releases the connection, if one was opened.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	err := l.store.Close()
	l.store = nil
	return err
}

func (l *Loader) open(ctx context.Context) (*Store, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.store != nil {
		return l.store, nil
	}
	s, err := Open(ctx, l.connString, l.logger)
	if err != nil {
		return nil, err
	}
	l.store = s
	return s, nil
}
