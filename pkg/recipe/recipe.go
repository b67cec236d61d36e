package recipe

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/openfroyo/mongorecipe/pkg/engine"
	"github.com/openfroyo/mongorecipe/pkg/telemetry"
)

// Result is the outcome of one recipe run.
type Result struct {
	ID        string                 `json:"id" yaml:"id"`
	Strategy  Strategy               `json:"strategy" yaml:"strategy"`
	Options   InstallOptions         `json:"options" yaml:"options"`
	Facts     engine.StaticFacts     `json:"facts" yaml:"facts"`
	Graph     *engine.Graph          `json:"graph" yaml:"graph"`
	Execution *engine.ExecutionGraph `json:"execution" yaml:"execution"`
	CreatedAt time.Time              `json:"created_at" yaml:"created_at"`

	dag *engine.DAGBuilder
}

// DOT renders the leveled graph in Graphviz format.
func (r *Result) DOT() string {
	if r.dag == nil {
		return ""
	}
	return r.dag.ToDOT()
}

// Recipe turns host facts and caller overrides into a validated resource graph.
// It holds no state between runs.
type Recipe struct {
	facts     engine.FactProvider
	builder   *Builder
	validator *validator.Validate
}

// Option configures a Recipe.
type Option func(*Recipe)

// WithBuilder replaces the default builder.
func WithBuilder(b *Builder) Option {
	return func(r *Recipe) {
		r.builder = b
	}
}

// WithValidator replaces the default option validator.
func WithValidator(v *validator.Validate) Option {
	return func(r *Recipe) {
		r.validator = v
	}
}

// New creates a recipe for the host described by facts.
func New(facts engine.FactProvider, opts ...Option) *Recipe {
	r := &Recipe{
		facts:     facts,
		builder:   NewBuilder(),
		validator: NewOptionsValidator(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run selects a strategy, resolves options and emits the resource graph.
func (r *Recipe) Run(ctx context.Context, overrides Overrides) (*Result, error) {
	if r.facts == nil {
		return nil, engine.NewPermanentError("recipe has no facts", nil).WithCode(engine.ErrCodeValidation)
	}

	runID := uuid.New().String()
	snapshot := engine.Snapshot(r.facts)

	op := telemetry.StartOperation(ctx, "recipe.run",
		telemetry.AttrRunID.String(runID),
		telemetry.AttrDistroID.String(snapshot.ID),
		telemetry.AttrDistroRelease.String(snapshot.Release),
	)
	logger := op.Logger.WithRunID(runID)
	metrics := metricsFrom(ctx)
	metrics.RecordRunStarted()

	result, err := r.run(op, logger, metrics, runID, snapshot, overrides)

	strategy := ""
	if result != nil {
		strategy = result.Strategy.String()
	}
	status := "success"
	if err != nil {
		status = "failure"
		logger.WithError(err).Error("recipe run failed")
	}
	metrics.RecordRunCompleted(status, strategy, op.Timer.Duration())
	op.End(err)

	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *Recipe) run(op *telemetry.InstrumentedContext, logger *telemetry.Logger, metrics *telemetry.Metrics,
	runID string, facts engine.StaticFacts, overrides Overrides) (*Result, error) {
	strategy, err := SelectFor(facts, overrides.RequestedVersion())
	if err != nil {
		return nil, err
	}
	metrics.RecordStrategySelection(strategy.String())
	logger = logger.WithStrategy(strategy.String())
	logger.WithFields(map[string]interface{}{
		"distro":  facts.ID,
		"release": facts.Release,
	}).Info("strategy selected")

	opts := MergeOptions(DefaultOptions(strategy), overrides)
	if err := ValidateOptions(r.validator, opts); err != nil {
		return &Result{Strategy: strategy}, err
	}
	logger.WithField("version", opts.Version).Debug("options resolved")
	if op.Span != nil {
		op.Span.SetAttributes(
			telemetry.AttrStrategy.String(strategy.String()),
			telemetry.AttrVersion.String(opts.Version),
		)
	}

	graph, err := r.builder.Build(strategy, opts, facts)
	if err != nil {
		return &Result{Strategy: strategy}, err
	}

	dag := engine.NewDAGBuilder()
	execution, err := dag.Build(graph)
	if err != nil {
		return &Result{Strategy: strategy}, err
	}

	kinds := make(map[string]int)
	for _, d := range graph.Declarations() {
		kinds[string(d.Kind)]++
	}
	edgeTypes := make(map[string]int)
	for _, e := range execution.Edges {
		edgeTypes[string(e.Type)]++
	}
	metrics.RecordGraph(kinds, edgeTypes, execution.Depth)
	if op.Span != nil {
		op.Span.SetAttributes(
			telemetry.AttrDeclarations.Int(graph.Len()),
			telemetry.AttrEdges.Int(len(execution.Edges)),
		)
	}

	logger.WithFields(map[string]interface{}{
		"declarations": graph.Len(),
		"edges":        len(execution.Edges),
		"depth":        execution.Depth,
	}).Info("resource graph built")

	return &Result{
		ID:        runID,
		Strategy:  strategy,
		Options:   opts,
		Facts:     facts,
		Graph:     graph,
		Execution: execution,
		CreatedAt: time.Now().UTC(),
		dag:       dag,
	}, nil
}

func metricsFrom(ctx context.Context) *telemetry.Metrics {
	if tel := telemetry.FromTelemetryContext(ctx); tel != nil {
		return tel.Metrics
	}
	return nil
}

// IsUnsupported reports whether err means the host or version cannot be handled
// by any implemented strategy.
func IsUnsupported(err error) bool {
	return errors.Is(err, engine.ErrUnsupportedPlatform) || errors.Is(err, engine.ErrUnimplementedStrategy)
}
