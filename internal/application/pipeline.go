package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/input"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// PipelineConfig holds the retry and cleanup settings of the pipeline.
type PipelineConfig struct {
	Runner        RunnerConfig
	Fetcher       FetcherConfig
	StagingFolder string
	SweepTimeout  time.Duration
}

// PipelineDeps holds the collaborators of the pipeline. Archive, Reporter,
// Progress and Status are optional.
type PipelineDeps struct {
	Imagery   output.ImageryBackend
	Staging   output.FileStore
	Archive   output.FileStore
	AOIReader output.AOIReader
	Reporter  output.ReportWriter
	Progress  output.Progress
	Metrics   output.MetricsCollector
	Status    *StatusTracker
}

// Pipeline runs periods, exports and downloads strictly one after another.
type Pipeline struct {
	deps     PipelineDeps
	config   PipelineConfig
	logger   *slog.Logger
	now      func() time.Time
	newRunID func() string
}

// Ensure Pipeline implements the primary port.
var _ input.PipelineRunner = (*Pipeline)(nil)

// NewPipeline creates a new pipeline.
func NewPipeline(deps PipelineDeps, cfg PipelineConfig, logger *slog.Logger) *Pipeline {
	if deps.Metrics == nil {
		deps.Metrics = &output.NoOpMetrics{}
	}
	if deps.Progress == nil {
		deps.Progress = output.NoOpProgress{}
	}
	if deps.Status == nil {
		deps.Status = NewStatusTracker()
	}
	if cfg.StagingFolder == "" {
		cfg.StagingFolder = DefaultFetcherConfig().StagingFolder
	}
	if cfg.SweepTimeout <= 0 {
		cfg.SweepTimeout = 5 * time.Minute
	}
	cfg.Fetcher.StagingFolder = cfg.StagingFolder

	return &Pipeline{
		deps:     deps,
		config:   cfg,
		logger:   logger,
		now:      time.Now,
		newRunID: uuid.NewString,
	}
}

// runPlan is a validated request.
type runPlan struct {
	collection  *domain.Collection
	products    []domain.Product
	aggregation domain.Aggregation
	intervals   *domain.IntervalGenerator
}

// plan validates everything that can be checked without remote calls.
func (p *Pipeline) plan(req input.RunRequest) (*runPlan, error) {
	collection, err := domain.LookupCollection(req.Collection)
	if err != nil {
		return nil, err
	}

	aggregation, err := domain.ParseAggregation(req.Aggregation)
	if err != nil {
		return nil, err
	}

	products, err := collection.ResolveProducts(req.Indices, req.Bands, req.CountBand)
	if err != nil {
		return nil, err
	}

	if req.Resolution <= 0 {
		return nil, &domain.ConfigError{Field: "resolution", Message: "must be positive"}
	}
	if req.OutputDir == "" {
		return nil, &domain.ConfigError{Field: "output", Message: "is required"}
	}

	intervals, err := domain.GenerateIntervals(req.Start, req.End, req.PeriodSize, req.PeriodFrequency, p.now)
	if err != nil {
		return nil, err
	}

	return &runPlan{
		collection:  collection,
		products:    products,
		aggregation: aggregation,
		intervals:   intervals,
	}, nil
}

// Run executes the request. Configuration errors are returned before any
// remote call. A failed export task stops the run; a failed download does
// not, but makes the run fail at the end. The staging store is swept in
// every case once the run has started.
func (p *Pipeline) Run(ctx context.Context, req input.RunRequest) (*domain.RunReport, error) {
	plan, err := p.plan(req)
	if err != nil {
		return nil, err
	}

	aoi, err := p.deps.AOIReader.ReadAOI(ctx, req.AOIPath)
	if err != nil {
		return nil, fmt.Errorf("loading area of interest: %w", err)
	}
	if err := aoi.Validate(); err != nil {
		return nil, fmt.Errorf("loading area of interest: %w", err)
	}

	if err := os.MkdirAll(req.OutputDir, 0750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	runID := p.newRunID()
	logger := p.logger.With("run_id", runID)
	report := &domain.RunReport{
		RunID:      runID,
		AOI:        aoi.Name,
		Collection: plan.collection.Name,
		OutputDir:  req.OutputDir,
		StartedAt:  p.now().UTC(),
	}

	logger.Info("starting run",
		"aoi", aoi.Name,
		"features", len(aoi.Features),
		"collection", plan.collection.Name,
		"products", len(plan.products),
		"aggregation", string(plan.aggregation),
		"output", req.OutputDir,
	)

	p.deps.Status.Begin(runID)

	fetcherCfg := p.config.Fetcher
	fetcherCfg.OutputDir = req.OutputDir
	fetcher := NewFetcher(p.deps.Staging, p.deps.Archive, p.deps.Metrics, logger, fetcherCfg)
	runner := NewTaskRunner(p.deps.Imagery, p.deps.Metrics, p.deps.Status, logger, p.config.Runner)
	builder := NewJobBuilder(p.deps.Imagery, logger, BuilderConfig{
		Collection:          plan.collection,
		Products:            plan.products,
		Aggregation:         plan.aggregation,
		CloudScoreThreshold: req.CloudScoreThreshold,
		Resolution:          req.Resolution,
		SplitAOI:            req.SplitAOI,
		StagingFolder:       p.config.StagingFolder,
	})

	downloadErrs, runErr := p.process(ctx, logger, plan, aoi, builder, runner, fetcher, report)

	// Sweep even when the run was cancelled.
	p.deps.Status.SetPhase(domain.PhaseSweeping)
	sweepCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.config.SweepTimeout)
	swept, sweepErr := fetcher.Sweep(sweepCtx)
	cancel()
	report.SweptItems = swept

	err = errors.Join(runErr, downloadErrs, sweepErr)
	report.FinishedAt = p.now().UTC()
	if err != nil {
		report.Error = err.Error()
	}
	p.deps.Status.Finish(err)
	_ = p.deps.Progress.Close()

	if p.deps.Reporter != nil {
		if werr := p.deps.Reporter.WriteReport(context.WithoutCancel(ctx), report); werr != nil {
			logger.Error("failed to write run report", "error", werr)
		}
	}

	if err != nil {
		logger.Error("run failed", "exports", len(report.Exports), "error", err)
	} else {
		logger.Info("run completed",
			"exports", len(report.Exports),
			"periods", report.PeriodsTotal,
			"skipped", report.PeriodsSkipped,
			"swept", swept,
		)
	}

	return report, err
}

// process walks the periods. It returns the joined download errors and the
// error that stopped the run, if any.
func (p *Pipeline) process(
	ctx context.Context,
	logger *slog.Logger,
	plan *runPlan,
	aoi *domain.AOI,
	builder *JobBuilder,
	runner *TaskRunner,
	fetcher *Fetcher,
	report *domain.RunReport,
) (error, error) {
	var downloadErrs []error

	for interval := range plan.intervals.All() {
		if err := ctx.Err(); err != nil {
			return errors.Join(downloadErrs...), err
		}

		report.PeriodsTotal++
		p.deps.Status.SetPeriod(interval)
		p.deps.Status.SetPhase(domain.PhasePreparing)
		p.deps.Progress.Describe("preparing " + interval.String())
		logger.Info("preparing period", "start", interval.StartDate(), "end", interval.EndDate())

		jobs, err := builder.Build(ctx, aoi, interval)
		if errors.Is(err, domain.ErrNoImages) {
			logger.Info("no images found, skipping period", "start", interval.StartDate(), "end", interval.EndDate())
			report.PeriodsSkipped++
			p.deps.Metrics.IncPeriods("skipped")
			p.deps.Status.PeriodSkipped()
			continue
		}
		if err != nil {
			return errors.Join(downloadErrs...), err
		}
		p.deps.Metrics.IncPeriods("processed")

		for _, job := range jobs {
			record, err := p.processJob(ctx, logger, job, runner, fetcher)
			report.Exports = append(report.Exports, record)
			p.deps.Progress.Advance()

			if record.Status == domain.ExportFailed {
				return errors.Join(downloadErrs...), err
			}
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return errors.Join(downloadErrs...), ctxErr
				}
				downloadErrs = append(downloadErrs, err)
			}
		}
	}

	return errors.Join(downloadErrs...), nil
}

// processJob exports one job and fetches its files.
func (p *Pipeline) processJob(
	ctx context.Context,
	logger *slog.Logger,
	job domain.ExportJob,
	runner *TaskRunner,
	fetcher *Fetcher,
) (domain.ExportRecord, error) {
	started := p.now()
	record := domain.ExportRecord{
		Name:      job.Name,
		Product:   job.Product.Name,
		Start:     job.Interval.StartDate(),
		End:       job.Interval.EndDate(),
		Partition: job.Partition.Index,
	}

	p.deps.Progress.Describe("exporting " + job.Name)
	logger.Info("exporting", "job", job.Name)

	attempts, err := runner.Run(ctx, job)
	record.Attempts = attempts
	if err != nil {
		record.Status = domain.ExportFailed
		record.Error = err.Error()
		record.Duration = p.now().Sub(started)
		p.deps.Metrics.IncExports(job.Product.Name, string(domain.ExportFailed))
		p.deps.Status.JobFinished(0, err)
		return record, err
	}

	p.deps.Status.SetPhase(domain.PhaseFetching)
	p.deps.Progress.Describe("downloading " + job.Name)

	result, err := fetcher.Fetch(ctx, job)
	record.Files = result.Files
	record.Archived = result.Archived
	record.Duration = p.now().Sub(started)

	switch {
	case err != nil && len(result.Files) == 0:
		record.Status = domain.ExportNoOutput
		record.Error = err.Error()
	case err != nil:
		record.Status = domain.ExportPartial
		record.Error = err.Error()
	case len(result.Files) == 0:
		record.Status = domain.ExportNoOutput
	default:
		record.Status = domain.ExportDownloaded
	}

	p.deps.Metrics.IncExports(job.Product.Name, string(record.Status))
	p.deps.Status.JobFinished(len(result.Files), err)
	return record, err
}

// Sweep deletes leftover exports from the staging store without running anything.
func (p *Pipeline) Sweep(ctx context.Context) (int, error) {
	fetcher := NewFetcher(p.deps.Staging, nil, p.deps.Metrics, p.logger, p.config.Fetcher)
	return fetcher.Sweep(ctx)
}
