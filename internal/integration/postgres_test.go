//go:build integration

package integration_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/couchcryptid/weather-readings-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(ts time.Time) domain.Observation {
	return domain.Enrich(domain.Observation{
		Timestamp:        ts,
		Temperature:      32,
		Humidity:         50,
		Pressure:         1012,
		WindSpeed:        5.5,
		WeatherCondition: "light rain",
	})
}

func TestPostgresLoader_Idempotent(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)
	loader := sqlstore.NewLoader(dsn, discardLogger())
	t.Cleanup(func() { _ = loader.Close() })

	store, err := loader.Store(ctx)
	require.NoError(t, err)
	assert.Equal(t, "postgres", store.Dialect())

	_, err = store.Recent(ctx, 1)
	require.ErrorIs(t, err, sqlstore.ErrTableMissing)

	ts := time.Date(2025, time.March, 2, 8, 0, 0, 0, time.UTC)
	n, err := loader.Load(ctx, reading(ts))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = loader.Load(ctx, reading(ts.In(time.FixedZone("EAT", 3*60*60))))
	require.NoError(t, err)
	assert.Zero(t, n, "same instant in another zone is a duplicate")

	rows, err := store.Recent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Timestamp.Equal(ts))
	assert.Equal(t, time.UTC, rows[0].Timestamp.Location())
	assert.InDelta(t, 34.36367940844453, rows[0].HeatIndex, 1e-9)
}

func TestPostgresLoader_ConcurrentRuns(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	dsn := startPostgres(ctx, t)
	obs := reading(time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC))

	const racers = 4
	var (
		wg      sync.WaitGroup
		start   = make(chan struct{})
		results = make([]int, racers)
		errs    = make([]error, racers)
	)
	for i := range racers {
		loader := sqlstore.NewLoader(dsn, discardLogger())
		t.Cleanup(func() { _ = loader.Close() })

		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			results[i], errs[i] = loader.Load(ctx, obs)
		}()
	}
	close(start)
	wg.Wait()

	total := 0
	for i := range racers {
		require.NoError(t, errs[i])
		total += results[i]
	}
	assert.Equal(t, 1, total, "exactly one racer inserts")

	store, err := sqlstore.Open(ctx, dsn, discardLogger())
	require.NoError(t, err)
	defer store.Close()

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}
