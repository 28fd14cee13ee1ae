package domain

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessages(t *testing.T) {
	assert.Equal(t, "config: DATABASE_URL is not set", (&ConfigError{Key: "DATABASE_URL"}).Error())
	assert.Equal(t, "config: WEATHER_LAT: out of range", (&ConfigError{Key: "WEATHER_LAT", Reason: "out of range"}).Error())
	assert.Equal(t, "transport: upstream status 401: denied", (&TransportError{StatusCode: 401, Body: "denied"}).Error())
	assert.Equal(t, "transport: dial tcp: refused", (&TransportError{Err: errors.New("dial tcp: refused")}).Error())

	se := &SchemaError{Missing: []string{"wind"}, Payload: []byte(`{"dt":1}`)}
	assert.Contains(t, se.Error(), "missing wind")
	assert.Contains(t, se.Error(), `{"dt":1}`)
}

func TestKind(t *testing.T) {
	inner := errors.New("boom")
	tests := []struct {
		err      error
		expected string
	}{
		{nil, "none"},
		{&ConfigError{Key: "X"}, "config"},
		{fmt.Errorf("extract: %w", &TransportError{StatusCode: 500}), "transport"},
		{fmt.Errorf("extract: %w", &SchemaError{Missing: []string{"main"}}), "schema"},
		{&StorageError{Op: "insert", Err: inner}, "storage"},
		{inner, "other"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, Kind(tt.err))
	}
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&TransportError{StatusCode: 503}))
	assert.True(t, Retryable(fmt.Errorf("wrapped: %w", &SchemaError{})))
	assert.False(t, Retryable(&ConfigError{Key: "OPENWEATHER_API_KEY"}))
	assert.False(t, Retryable(&StorageError{Op: "insert", Err: errors.New("disk full")}))
}

func TestStorageError_Unwrap(t *testing.T) {
	inner := errors.New("constraint failed")
	err := fmt.Errorf("load: %w", &StorageError{Op: "insert", Err: inner})

	require.ErrorIs(t, err, inner)
	var se *StorageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "insert", se.Op)
}
