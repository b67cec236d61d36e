package stores

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/mongorecipe/pkg/engine"
	"github.com/openfroyo/mongorecipe/pkg/policy"
	"github.com/openfroyo/mongorecipe/pkg/recipe"
)

// RunFromResult builds a completed run record from a recipe result.
func RunFromResult(recipeName string, res *recipe.Result, startedAt time.Time) (*Run, error) {
	if res == nil || res.Graph == nil || res.Execution == nil {
		return nil, fmt.Errorf("result has no graph")
	}

	options, err := json.Marshal(res.Options)
	if err != nil {
		return nil, fmt.Errorf("failed to encode options: %w", err)
	}
	graph, err := json.Marshal(res.Graph)
	if err != nil {
		return nil, fmt.Errorf("failed to encode graph: %w", err)
	}
	execution, err := json.Marshal(res.Execution)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution graph: %w", err)
	}

	completed := res.CreatedAt
	return &Run{
		ID:            res.ID,
		RecipeName:    recipeName,
		Status:        RunStatusCompleted,
		Strategy:      res.Strategy.String(),
		Version:       res.Options.Version,
		DistroID:      res.Facts.ID,
		DistroRelease: res.Facts.Release,
		Architecture:  res.Facts.Arch,
		Declarations:  res.Graph.Len(),
		Edges:         len(res.Execution.Edges),
		Depth:         res.Execution.Depth,
		Options:       string(options),
		Graph:         string(graph),
		Execution:     string(execution),
		StartedAt:     startedAt,
		CompletedAt:   &completed,
	}, nil
}

// FailedRun builds a run record for a run that returned runErr.
func FailedRun(id, recipeName string, facts engine.StaticFacts, runErr error, startedAt time.Time) *Run {
	now := time.Now()
	msg := runErr.Error()
	run := &Run{
		ID:            id,
		RecipeName:    recipeName,
		Status:        RunStatusFailed,
		DistroID:      facts.ID,
		DistroRelease: facts.Release,
		Architecture:  facts.Arch,
		Error:         &msg,
		StartedAt:     startedAt,
		CompletedAt:   &now,
	}

	var ee *engine.EngineError
	if errors.As(runErr, &ee) {
		code := ee.Code
		run.ErrorCode = &code
		if strategy, ok := ee.Details["strategy"].(string); ok {
			run.Strategy = strategy
		}
	}
	return run
}

// ApplyPolicy marks run as rejected when result blocks and returns the
// violations to store with it.
func ApplyPolicy(run *Run, result *policy.PolicyResult) []Violation {
	if result == nil {
		return nil
	}
	if !result.Allowed && run.Status == RunStatusCompleted {
		run.Status = RunStatusRejected
	}

	out := make([]Violation, 0, len(result.Violations))
	for _, v := range result.Violations {
		out = append(out, Violation{
			Policy:     v.Policy,
			Resource:   v.Resource,
			Severity:   string(v.Severity),
			Message:    v.Message,
			DetectedAt: v.DetectedAt,
		})
	}
	return out
}
