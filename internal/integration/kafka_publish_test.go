//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	kafkaadapter "github.com/couchcryptid/weather-readings-etl/internal/adapter/kafka"
	"github.com/couchcryptid/weather-readings-etl/internal/adapter/openweather"
	"github.com/couchcryptid/weather-readings-etl/internal/adapter/sqlstore"
	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
	"github.com/couchcryptid/weather-readings-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTopic = "test-weather-readings"

// TestPipelinePublishesInsertedReadings runs the job twice against the same
// upstream response and checks that only the first run publishes.
func TestPipelinePublishesInsertedReadings(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testTopic)

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"main":{"temp":35,"humidity":70,"pressure":1009},"wind":{"speed":2.6},"weather":[{"description":"few clouds"}],"dt":1740902400}`))
	}))
	defer upstream.Close()

	logger := discardLogger()
	ext := openweather.NewClient("key", domain.Location{Lat: -1.2921, Lon: 36.8219}, upstream.URL, 5*time.Second, logger)
	loader := sqlstore.NewLoader(filepath.Join(t.TempDir(), "weather.db"), logger)
	t.Cleanup(func() { _ = loader.Close() })
	writer := kafkaadapter.NewWriter([]string{broker}, testTopic, logger)
	t.Cleanup(func() { _ = writer.Close() })

	p := pipeline.New(ext, pipeline.NewTransformer(), loader, logger, observability.NewMetrics()).
		WithPublisher(writer)

	first, err := p.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, first.Inserted)

	second, err := p.Run(ctx)
	require.NoError(t, err)
	require.Zero(t, second.Inserted)

	reader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:   []string{broker},
		Topic:     testTopic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  1 << 20,
	})
	defer reader.Close()

	readCtx, readCancel := context.WithTimeout(ctx, 30*time.Second)
	defer readCancel()
	msg, err := reader.ReadMessage(readCtx)
	require.NoError(t, err, "read published reading")

	assert.Equal(t, "2025-03-02T08:00:00Z", string(msg.Key))
	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, kafkaadapter.Source, headers["source"])
	assert.NotEmpty(t, headers["processed_at"])

	var got domain.Observation
	require.NoError(t, json.Unmarshal(msg.Value, &got))
	assert.InDelta(t, 50.34057805555565, got.HeatIndex, 1e-9)

	// Nothing else was published by the duplicate run.
	lagCtx, lagCancel := context.WithTimeout(ctx, 3*time.Second)
	defer lagCancel()
	_, err = reader.ReadMessage(lagCtx)
	assert.Error(t, err)
}
