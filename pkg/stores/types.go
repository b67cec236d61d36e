package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunStatus represents the outcome of a recipe run
type RunStatus string

const (
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusRejected  RunStatus = "rejected" // built, but blocked by policy
)

// Run is one recorded recipe run
type Run struct {
	ID         string    `json:"id"`
	RecipeName string    `json:"recipe_name"`
	Status     RunStatus `json:"status"`
	Strategy   string    `json:"strategy,omitempty"`
	Version    string    `json:"version,omitempty"`

	DistroID      string `json:"distro_id"`
	DistroRelease string `json:"distro_release"`
	Architecture  string `json:"architecture,omitempty"`

	Declarations int `json:"declarations"`
	Edges        int `json:"edges"`
	Depth        int `json:"depth"`

	ErrorCode *string `json:"error_code,omitempty"`
	Error     *string `json:"error,omitempty"`

	Options   string `json:"options"`   // JSON blob
	Graph     string `json:"graph"`     // JSON blob
	Execution string `json:"execution"` // JSON blob

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Violation is a policy violation recorded against a run
type Violation struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Policy     string    `json:"policy"`
	Resource   string    `json:"resource,omitempty"`
	Severity   string    `json:"severity"`
	Message    string    `json:"message"`
	DetectedAt time.Time `json:"detected_at"`
}

// RunFilter narrows ListRuns. Empty fields match everything.
type RunFilter struct {
	RecipeName string
	Strategy   string
	Status     RunStatus
}

// Store defines the interface for the run history
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)

	// Run operations
	SaveRun(ctx context.Context, run *Run, violations []Violation) error
	GetRun(ctx context.Context, id string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error
	PruneRuns(ctx context.Context, olderThan time.Time) (int64, error)

	// Violation operations
	ListViolations(ctx context.Context, runID string) ([]*Violation, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
