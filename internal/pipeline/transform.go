package pipeline

import (
	"context"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
)

// HeatIndexTransformer implements Transformer by deriving the heat index.
type HeatIndexTransformer struct{}

// NewTransformer creates a HeatIndexTransformer.
func NewTransformer() *HeatIndexTransformer {
	return &HeatIndexTransformer{}
}

// Transform returns a copy of obs with HeatIndex set. It never fails.
func (HeatIndexTransformer) Transform(_ context.Context, obs domain.Observation) (domain.Observation, error) {
	return domain.Enrich(obs), nil
}
