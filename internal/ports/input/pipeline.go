// Package input defines the primary/driving ports of the application.
package input

import (
	"context"
	"time"

	"github.com/jobrunner/geefetch/internal/domain"
)

// RunRequest holds the user-facing parameters of one pipeline run.
type RunRequest struct {
	AOIPath             string
	SplitAOI            bool
	Start               string
	End                 string
	PeriodSize          string
	PeriodFrequency     string
	Collection          string
	Indices             []string
	Bands               []string
	CountBand           bool
	Aggregation         string
	CloudScoreThreshold float64
	Resolution          float64
	OutputDir           string
}

// PipelineRunner defines the primary port for running the retrieval pipeline.
type PipelineRunner interface {
	// Run executes every export of the request and returns the run report.
	Run(ctx context.Context, req RunRequest) (*domain.RunReport, error)

	// Sweep deletes leftover exports from the staging store.
	Sweep(ctx context.Context) (int, error)
}

// HealthChecker defines the primary port for health checks.
type HealthChecker interface {
	// IsHealthy returns true if the process is healthy.
	IsHealthy(ctx context.Context) bool

	// IsReady returns true once no run has failed.
	IsReady(ctx context.Context) bool

	// GetStatus returns the current run status.
	GetStatus(ctx context.Context) RunStatus
}

// RunStatus is a snapshot of the current or last run.
type RunStatus struct {
	RunID          string          `json:"run_id,omitempty"`
	Phase          domain.RunPhase `json:"phase"`
	Period         string          `json:"period,omitempty"`
	CurrentJob     string          `json:"current_job,omitempty"`
	Attempt        int             `json:"attempt,omitempty"`
	JobsCompleted  int             `json:"jobs_completed"`
	JobsFailed     int             `json:"jobs_failed"`
	FilesFetched   int             `json:"files_fetched"`
	PeriodsSkipped int             `json:"periods_skipped"`
	StartedAt      time.Time       `json:"started_at,omitempty"`
	UpdatedAt      time.Time       `json:"updated_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
}
