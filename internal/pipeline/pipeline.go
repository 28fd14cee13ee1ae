package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/couchcryptid/weather-readings-etl/internal/domain"
	"github.com/couchcryptid/weather-readings-etl/internal/observability"
)

// Extractor fetches one observation from the upstream provider.
type Extractor interface {
	Extract(ctx context.Context) (domain.Observation, error)
}

// Transformer derives fields on an extracted observation.
type Transformer interface {
	Transform(ctx context.Context, obs domain.Observation) (domain.Observation, error)
}

// Loader persists observations idempotently, keyed on timestamp.
type Loader interface {
	EnsureSchema(ctx context.Context) error
	Insert(ctx context.Context, obs []domain.Observation) ([]domain.Observation, error)
}

// Publisher announces newly persisted observations downstream.
type Publisher interface {
	Publish(ctx context.Context, obs []domain.Observation) error
}

// validator is implemented by stages that can check their configuration
// without performing I/O.
type validator interface {
	Validate() error
}

// State is a step of a single run.
type State string

const (
	StateStart         State = "START"
	StateSchemaEnsured State = "SCHEMA_ENSURED"
	StateInserted      State = "INSERTED"
	StateAllDuplicate  State = "ALL_DUPLICATE"
	StateDone          State = "DONE"
	StateFailed        State = "FAILED"
)

// Stage names used in logs and the stage duration metric.
const (
	stageExtract      = "extract"
	stageTransform    = "transform"
	stageEnsureSchema = "ensure_schema"
	stageInsert       = "insert"
	stagePublish      = "publish"
)

// Result describes a finished run.
type Result struct {
	Observation domain.Observation
	Inserted    int
	// Outcome is StateInserted or StateAllDuplicate once the load succeeded.
	Outcome  State
	State    State
	Duration time.Duration
}

// Pipeline runs extract, transform and load once per call to Run.
type Pipeline struct {
	extractor   Extractor
	transformer Transformer
	loader      Loader
	publisher   Publisher
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// New creates a Pipeline with the given stages and observability.
func New(e Extractor, t Transformer, l Loader, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	return &Pipeline{
		extractor:   e,
		transformer: t,
		loader:      l,
		logger:      logger,
		metrics:     metrics,
	}
}

// WithPublisher sets a publisher that receives the observations inserted by
// each run. A nil publisher disables publishing.
func (p *Pipeline) WithPublisher(pub Publisher) *Pipeline {
	p.publisher = pub
	return p
}

// Validate checks every stage's configuration. It performs no I/O and
// returns all ConfigErrors joined.
func (p *Pipeline) Validate() error {
	var errs []error
	for _, stage := range []any{p.extractor, p.transformer, p.loader, p.publisher} {
		if v, ok := stage.(validator); ok {
			if err := v.Validate(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

// Extract runs only the extract and transform stages. Nothing is written.
func (p *Pipeline) Extract(ctx context.Context) (domain.Observation, error) {
	if v, ok := p.extractor.(validator); ok {
		if err := v.Validate(); err != nil {
			return domain.Observation{}, err
		}
	}
	return p.extractTransform(ctx)
}

// Run executes one extract-transform-load cycle. An extraction or transform
// failure returns before the loader is touched; a schema failure returns
// before any insert. Zero rows inserted is a successful outcome.
func (p *Pipeline) Run(ctx context.Context) (Result, error) {
	start := time.Now()
	res := Result{State: StateStart}

	fail := func(err error) (Result, error) {
		res.Duration = time.Since(start)
		p.transition(&res, StateFailed)
		p.metrics.RunsTotal.WithLabelValues(observability.OutcomeFailed).Inc()
		p.logFailure(err)
		return res, err
	}

	if err := p.Validate(); err != nil {
		return fail(err)
	}

	obs, err := p.extractTransform(ctx)
	if err != nil {
		return fail(err)
	}
	res.Observation = obs

	if err := p.timed(stageEnsureSchema, func() error { return p.loader.EnsureSchema(ctx) }); err != nil {
		return fail(err)
	}
	p.transition(&res, StateSchemaEnsured)

	var inserted []domain.Observation
	err = p.timed(stageInsert, func() error {
		var err error
		inserted, err = p.loader.Insert(ctx, []domain.Observation{obs})
		return err
	})
	if err != nil {
		return fail(err)
	}

	res.Inserted = len(inserted)
	p.metrics.RowsInserted.Add(float64(res.Inserted))
	p.metrics.RowsDuplicate.Add(float64(1 - res.Inserted))
	if res.Inserted > 0 {
		res.Outcome = StateInserted
	} else {
		res.Outcome = StateAllDuplicate
	}
	p.transition(&res, res.Outcome)

	if err := p.publish(ctx, inserted); err != nil {
		return fail(err)
	}

	res.Duration = time.Since(start)
	p.transition(&res, StateDone)
	p.metrics.RunsTotal.WithLabelValues(outcomeLabel(res.Outcome)).Inc()
	p.metrics.LastSuccess.SetToCurrentTime()

	p.logger.Info("etl run complete",
		"inserted", res.Inserted,
		"outcome", string(res.Outcome),
		"timestamp", obs.Timestamp,
		"elapsed_s", res.Duration.Seconds(),
	)
	return res, nil
}

func (p *Pipeline) extractTransform(ctx context.Context) (domain.Observation, error) {
	var obs domain.Observation
	err := p.timed(stageExtract, func() error {
		var err error
		obs, err = p.extractor.Extract(ctx)
		return err
	})
	if err != nil {
		return domain.Observation{}, fmt.Errorf("extract: %w", err)
	}

	err = p.timed(stageTransform, func() error {
		var err error
		obs, err = p.transformer.Transform(ctx, obs)
		return err
	})
	if err != nil {
		return domain.Observation{}, fmt.Errorf("transform: %w", err)
	}

	p.metrics.ObservationCelsius.WithLabelValues("temperature").Set(obs.Temperature)
	p.metrics.ObservationCelsius.WithLabelValues("heat_index").Set(obs.HeatIndex)
	return obs, nil
}

// publish sends the inserted observations, if any, to the publisher. The rows
// are already committed when this runs.
func (p *Pipeline) publish(ctx context.Context, inserted []domain.Observation) error {
	if p.publisher == nil || len(inserted) == 0 {
		return nil
	}
	err := p.timed(stagePublish, func() error { return p.publisher.Publish(ctx, inserted) })
	if err != nil {
		stamps := make([]string, len(inserted))
		for i, o := range inserted {
			stamps[i] = o.Timestamp.Format(time.RFC3339)
		}
		return fmt.Errorf("publish %s (rows committed): %w", strings.Join(stamps, ", "), err)
	}
	return nil
}

func (p *Pipeline) timed(stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	p.metrics.StageDuration.WithLabelValues(stage).Observe(time.Since(start).Seconds())
	return err
}

func (p *Pipeline) transition(res *Result, to State) {
	p.logger.Debug("state transition", "from", string(res.State), "to", string(to))
	res.State = to
}

func (p *Pipeline) logFailure(err error) {
	kind := domain.Kind(err)
	attrs := []any{"error", err, "error_kind", kind, "retryable", domain.Retryable(err)}

	var se *domain.SchemaError
	if errors.As(err, &se) {
		p.logger.Error("upstream response failed schema check", append(attrs, "missing", se.Missing)...)
		return
	}
	p.logger.Error("etl run failed", attrs...)
}

func outcomeLabel(s State) string {
	if s == StateInserted {
		return observability.OutcomeInserted
	}
	return observability.OutcomeAllDuplicate
}
