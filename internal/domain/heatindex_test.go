package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeatIndex(t *testing.T) {
	tests := []struct {
		name        string
		temperature float64
		humidity    int
		expected    float64
	}{
		{"hot and humid", 35, 70, 50.34057805555565},
		{"boundary uses regression", 26.7, 40, 26.65029961209552},
		{"humidity at threshold", 30, 40, 29.689165055555495},
		{"moderate", 32, 50, 34.36367940844453},
		{"just below temperature threshold", 26.6, 90, 26.6},
		{"just below humidity threshold", 30, 39, 30},
		{"cold", -5.5, 95, -5.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, HeatIndex(tt.temperature, tt.humidity), 1e-6)
		})
	}
}

func TestHeatIndex_RegressionDiffersFromPassThrough(t *testing.T) {
	hi := HeatIndex(35, 70)
	assert.NotEqual(t, 35.0, hi)
	assert.Greater(t, hi, 35.0)
}

func TestHeatIndex_BelowTemperatureThresholdIgnoresHumidity(t *testing.T) {
	for h := 0; h <= 100; h += 10 {
		assert.Equal(t, 26.6, HeatIndex(26.6, h), "humidity %d", h)
	}
}

func TestEnrich(t *testing.T) {
	ts := time.Date(2025, time.March, 2, 9, 0, 0, 0, time.UTC)
	raw := Observation{
		Timestamp:        ts,
		Temperature:      35,
		Humidity:         70,
		Pressure:         1012,
		WindSpeed:        3.6,
		WeatherCondition: "scattered clouds",
	}

	enriched := Enrich(raw)

	assert.InDelta(t, 50.34057805555565, enriched.HeatIndex, 1e-6)
	assert.Zero(t, raw.HeatIndex, "input must not be modified")
	assert.Equal(t, ts, enriched.Timestamp)
	assert.Equal(t, raw.WeatherCondition, enriched.WeatherCondition)
}
