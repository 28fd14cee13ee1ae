package observability

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

const (
	namespace = "weather_etl"
	// JobName groups the pushed series in the Pushgateway.
	JobName = "weather_readings_etl"
)

// Run outcomes used as the "outcome" label of RunsTotal.
const (
	OutcomeInserted     = "inserted"
	OutcomeAllDuplicate = "all_duplicate"
	OutcomeFailed       = "failed"
)

// Metrics holds the Prometheus series describing ETL runs. The series live on
// their own registry and are pushed once at the end of a run.
type Metrics struct {
	Registry *prometheus.Registry

	RunsTotal          *prometheus.CounterVec   // labels: outcome={inserted,all_duplicate,failed}
	RowsInserted       prometheus.Counter
	RowsDuplicate      prometheus.Counter
	StageDuration      *prometheus.HistogramVec // labels: stage={extract,transform,ensure_schema,insert,publish}
	LastSuccess        prometheus.Gauge
	ObservationCelsius *prometheus.GaugeVec // labels: metric={temperature,heat_index}
}

// NewMetrics creates all run metrics and registers them on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "ETL runs by outcome.",
		}, []string{"outcome"}),
		RowsInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_inserted_total",
			Help:      "Observations newly persisted.",
		}),
		RowsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_duplicate_total",
			Help:      "Observations skipped because their timestamp was already stored.",
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"stage"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last run that completed without error.",
		}),
		ObservationCelsius: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observation_celsius",
			Help:      "Latest extracted temperature and derived heat index.",
		}, []string{"metric"}),
	}

	m.Registry.MustRegister(
		m.RunsTotal,
		m.RowsInserted,
		m.RowsDuplicate,
		m.StageDuration,
		m.LastSuccess,
		m.ObservationCelsius,
	)
	return m
}

// Push sends every registered series to the Pushgateway at url, replacing
// the previous push for this job.
func (m *Metrics) Push(ctx context.Context, url string) error {
	err := push.New(url, JobName).
		Gatherer(m.Registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
