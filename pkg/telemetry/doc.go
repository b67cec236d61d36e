// Package telemetry provides the observability stack used by mongorecipe:
// structured logging (zerolog), tracing (OpenTelemetry) and metrics
// (Prometheus).
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Operations
//
// StartOperation opens a span, derives an operation logger and starts a
// timer. End records the outcome on the span and counts classified errors
// by class and code:
//
//	op := telemetry.StartOperation(ctx, "recipe.build", telemetry.AttrStrategy.String("apt-3.2"))
//	defer func() { op.End(err) }()
//
// Without a Telemetry in the context, StartOperation still returns a usable
// value; only the span and metrics are skipped.
//
// # Metrics
//
// Exposed under the configured namespace (default "mongorecipe"):
//
//   - runs_started_total, runs_completed_total{status}
//   - graph_build_duration_seconds{strategy}
//   - strategy_selections_total{strategy}
//   - declarations_total{kind}, edges_total{type}, graph_depth
//   - policy_violations_total{policy,severity}
//   - errors_by_class_total{class}, errors_by_code_total{code}
//   - config_reloads_total{result}
//
// A disabled or nil *Metrics accepts all calls.
package telemetry
