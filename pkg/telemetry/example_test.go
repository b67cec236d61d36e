package telemetry_test

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/openfroyo/mongorecipe/pkg/telemetry"
)

// Example_structuredLogging demonstrates component and field helpers.
func Example_structuredLogging() {
	cfg := telemetry.DefaultConfig()
	cfg.Logging.Format = "json"

	logger := telemetry.NewLoggerWithWriter(cfg.Logging, os.Stderr).NewComponentLogger("recipe")
	logger = logger.WithRunID("run-123").WithStrategy("apt-3.2")

	logger.Info("graph built")
	logger.WithError(errors.New("template missing")).Error("render failed")
}

// Example_instrumentedOperation demonstrates StartOperation without exporters.
func Example_instrumentedOperation() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = true

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())
	op := telemetry.StartOperation(ctx, "recipe.build", telemetry.AttrStrategy.String("apt-1.8"))
	tel.Metrics.RecordStrategySelection("apt-1.8")
	op.End(nil)

	fmt.Println("operation recorded")
	// Output: operation recorded
}
