package domain

import "time"

// ExportStatus is the outcome of one export job in a run.
type ExportStatus string

// Export outcomes.
const (
	ExportDownloaded ExportStatus = "downloaded"
	ExportPartial    ExportStatus = "partial"
	ExportNoOutput   ExportStatus = "no_output"
	ExportFailed     ExportStatus = "failed"
)

// ExportRecord is the report entry of one export job.
type ExportRecord struct {
	Name      string        `yaml:"name"`
	Product   string        `yaml:"product"`
	Start     string        `yaml:"start"`
	End       string        `yaml:"end"`
	Partition int           `yaml:"partition"`
	Attempts  int           `yaml:"attempts"`
	Status    ExportStatus  `yaml:"status"`
	Files     []string      `yaml:"files,omitempty"`
	Archived  []string      `yaml:"archived,omitempty"`
	Duration  time.Duration `yaml:"duration"`
	Error     string        `yaml:"error,omitempty"`
}

// RunReport summarises a pipeline run.
type RunReport struct {
	RunID          string         `yaml:"run_id"`
	AOI            string         `yaml:"aoi"`
	Collection     string         `yaml:"collection"`
	OutputDir      string         `yaml:"output_dir"`
	StartedAt      time.Time      `yaml:"started_at"`
	FinishedAt     time.Time      `yaml:"finished_at"`
	PeriodsTotal   int            `yaml:"periods_total"`
	PeriodsSkipped int            `yaml:"periods_skipped"`
	Exports        []ExportRecord `yaml:"exports"`
	SweptItems     int            `yaml:"swept_items"`
	Error          string         `yaml:"error,omitempty"`
}

// Succeeded reports whether the run finished without any error.
func (r *RunReport) Succeeded() bool {
	return r.Error == ""
}

// RunPhase is the coarse progress of a run, exposed on the status endpoint.
type RunPhase string

// Run phases.
const (
	PhaseIdle      RunPhase = "idle"
	PhasePreparing RunPhase = "preparing"
	PhaseExporting RunPhase = "exporting"
	PhaseFetching  RunPhase = "fetching"
	PhaseSweeping  RunPhase = "sweeping"
	PhaseDone      RunPhase = "done"
	PhaseFailed    RunPhase = "failed"
)
