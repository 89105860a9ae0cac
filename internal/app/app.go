// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/jobrunner/geefetch/internal/adapters/aoifile"
	"github.com/jobrunner/geefetch/internal/adapters/drive"
	"github.com/jobrunner/geefetch/internal/adapters/earthengine"
	"github.com/jobrunner/geefetch/internal/adapters/gauth"
	"github.com/jobrunner/geefetch/internal/adapters/geojson"
	"github.com/jobrunner/geefetch/internal/adapters/geopackage"
	httpAdapter "github.com/jobrunner/geefetch/internal/adapters/http"
	"github.com/jobrunner/geefetch/internal/adapters/metrics"
	"github.com/jobrunner/geefetch/internal/adapters/progress"
	"github.com/jobrunner/geefetch/internal/adapters/report"
	"github.com/jobrunner/geefetch/internal/adapters/storage"
	"github.com/jobrunner/geefetch/internal/adapters/watcher"
	"github.com/jobrunner/geefetch/internal/application"
	"github.com/jobrunner/geefetch/internal/config"
	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/input"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config      *config.Config
	Logger      *slog.Logger
	Credentials *gauth.Credentials
	Imagery     output.ImageryBackend
	Staging     output.FileStore
	Archive     output.FileStore
	AOIReader   output.AOIReader
	Status      *application.StatusTracker
	Pipeline    *application.Pipeline
	dropFolder  atomic.Pointer[application.DropFolderService]
	Watcher     *watcher.Watcher
	Metrics     *metrics.Collector
	HTTPServer  *httpAdapter.Server

	closers []io.Closer
}

// New creates and initializes a new application. It loads the service
// account key and opens the stores, but makes no remote call.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := cfg.ValidateRemote(); err != nil {
		return nil, err
	}

	app := &App{
		Config: cfg,
		Logger: logger,
		Status: application.NewStatusTracker(),
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector(cfg.Metrics.Namespace)
		metricsCollector = app.Metrics
	}

	// Load credentials
	creds, err := gauth.Load(ctx, cfg.EarthEngine.Credentials)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}
	app.Credentials = creds
	httpClient := creds.HTTPClient(ctx)

	project := cfg.EarthEngine.Project
	if project == "" {
		project = creds.ProjectID
	}

	// Initialize imagery backend
	imagery, err := earthengine.NewClient(httpClient, earthengine.Config{
		BaseURL:     cfg.EarthEngine.BaseURL,
		Project:     project,
		Destination: earthengine.DestinationType(cfg.Staging.Type),
		Bucket:      cfg.Staging.Bucket,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing earth engine client: %w", err)
	}
	app.Imagery = imagery

	// Initialize staging store
	staging, err := app.initStaging(ctx, httpClient)
	if err != nil {
		return nil, fmt.Errorf("initializing staging store: %w", err)
	}
	app.Staging = staging

	// Initialize archive store
	if cfg.Archive.Enabled() {
		archive, err := app.initArchive(ctx)
		if err != nil {
			return nil, fmt.Errorf("initializing archive store: %w", err)
		}
		app.Archive = archive
	}

	// Initialize AOI readers
	app.AOIReader = aoifile.NewReader(geojson.NewReader(), geopackage.NewReader(""))

	deps := application.PipelineDeps{
		Imagery:   app.Imagery,
		Staging:   app.Staging,
		Archive:   app.Archive,
		AOIReader: app.AOIReader,
		Metrics:   metricsCollector,
		Status:    app.Status,
	}
	if cfg.Report.Enabled {
		deps.Reporter = report.NewWriter()
	}
	if cfg.Report.Progress {
		deps.Progress = progress.New(os.Stderr)
	}

	app.Pipeline = application.NewPipeline(deps, pipelineConfig(cfg), logger)

	// Initialize status server
	if cfg.Status.Enabled {
		var m httpAdapter.Metrics
		if app.Metrics != nil {
			m = app.Metrics
		}
		app.HTTPServer = httpAdapter.NewServer(cfg.Status, app.Status, app, m, cfg.Metrics.Path, logger)
	}

	return app, nil
}

// pipelineConfig maps the retry and cleanup settings.
func pipelineConfig(cfg *config.Config) application.PipelineConfig {
	return application.PipelineConfig{
		Runner: application.RunnerConfig{
			UpdateInterval: cfg.Task.UpdateInterval,
			RetryDelay:     cfg.Task.RetryDelay,
			MaxRetry:       cfg.Task.MaxRetry,
			MaxRetryDelay:  cfg.Task.MaxRetryDelay,
		},
		Fetcher: application.FetcherConfig{
			MaxRetry:      cfg.Download.MaxRetry,
			RetryDelay:    cfg.Download.RetryDelay,
			MaxRetryDelay: cfg.Download.MaxRetryDelay,
			EmptyTrash:    cfg.Staging.EmptyTrash,
			ArchiveFolder: cfg.Archive.Folder,
		},
		StagingFolder: cfg.Staging.Folder,
		SweepTimeout:  cfg.Staging.SweepTimeout,
	}
}

// RunRequest builds the pipeline request from the run settings.
func RunRequest(cfg config.RunConfig) input.RunRequest {
	return input.RunRequest{
		AOIPath:             cfg.AOI,
		SplitAOI:            cfg.SplitAOI,
		Start:               cfg.Start,
		End:                 cfg.End,
		PeriodSize:          cfg.PeriodSize,
		PeriodFrequency:     cfg.PeriodFrequency,
		Collection:          cfg.Collection,
		Indices:             cfg.Indices,
		Bands:               cfg.Bands,
		CountBand:           cfg.CountBand,
		Aggregation:         cfg.Aggregation,
		CloudScoreThreshold: cfg.CloudScoreThreshold,
		Resolution:          cfg.Resolution,
		OutputDir:           cfg.Output,
	}
}

// Run executes one pipeline run with the configured request.
func (a *App) Run(ctx context.Context) (*domain.RunReport, error) {
	if err := a.Config.ValidateRun(true); err != nil {
		return nil, err
	}
	return a.Pipeline.Run(ctx, RunRequest(a.Config.Run))
}

// Clean deletes every leftover export from the staging store.
func (a *App) Clean(ctx context.Context) (int, error) {
	return a.Pipeline.Sweep(ctx)
}

// Watch runs the pipeline for every AOI file dropped into the watch
// directory until ctx is cancelled.
func (a *App) Watch(ctx context.Context) error {
	if err := a.Config.ValidateRun(false); err != nil {
		return err
	}
	if a.Config.Watch.Dir == "" {
		return &domain.ConfigError{Field: "watch.dir", Message: "is required"}
	}
	if err := os.MkdirAll(a.Config.Watch.Dir, 0750); err != nil {
		return fmt.Errorf("creating watch directory: %w", err)
	}

	drops := application.NewDropFolderService(a.Pipeline, RunRequest(a.Config.Run), a.Logger)
	a.dropFolder.Store(drops)

	w, err := watcher.New(watcher.Config{
		Dir:      a.Config.Watch.Dir,
		Debounce: a.Config.Watch.Debounce,
		Filter:   aoifile.Supported,
	}, a.handleDroppedFile, a.Logger)
	if err != nil {
		return fmt.Errorf("initializing watcher: %w", err)
	}
	a.Watcher = w

	drops.Start(ctx)
	if err := w.Start(ctx); err != nil {
		drops.Stop()
		return fmt.Errorf("starting watcher: %w", err)
	}

	<-ctx.Done()

	_ = w.Stop()
	drops.Stop()
	return nil
}

// Results returns the drop-folder results, empty outside watch mode.
func (a *App) Results() []application.DropResult {
	drops := a.dropFolder.Load()
	if drops == nil {
		return nil
	}
	return drops.Results()
}

// handleDroppedFile queues a run for a settled AOI file.
func (a *App) handleDroppedFile(path string) {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	if _, err := os.Stat(abs); err != nil {
		a.Logger.Debug("dropped file vanished", "path", abs)
		return
	}
	drops := a.dropFolder.Load()
	if drops == nil {
		return
	}
	if !drops.Enqueue(abs) {
		a.Logger.Debug("dropped file already queued", "path", abs)
	}
}

// StartStatusServer starts the status server in the background, if enabled.
func (a *App) StartStatusServer() {
	if a.HTTPServer == nil {
		return
	}
	go func() {
		if err := a.HTTPServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.Logger.Error("status server error", "error", err)
		}
	}()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Debug("shutting down application")

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("status server shutdown error", "error", err)
		}
	}

	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// initStaging initializes the store Earth Engine exports are written to.
func (a *App) initStaging(ctx context.Context, httpClient *http.Client) (output.FileStore, error) {
	cfg := a.Config.Staging

	switch cfg.Type {
	case "drive":
		return drive.NewStore(ctx, httpClient, cfg.DriveBaseURL, a.Logger)

	case "gcs":
		store, err := storage.NewGCSStore(ctx, cfg.Bucket, "", a.Credentials.TokenSource, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown staging type: %s", cfg.Type)
	}
}

// initArchive initializes the store downloads are copied to.
func (a *App) initArchive(ctx context.Context) (output.FileStore, error) {
	cfg := a.Config.Archive

	switch cfg.Type {
	case "local":
		return storage.NewLocalStore(cfg.LocalPath, a.Logger), nil

	case "s3":
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		}, a.Logger)

	case "azure":
		return storage.NewAzureStore(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		}, a.Logger)

	case "gcs":
		store, err := storage.NewGCSStore(ctx, cfg.GCS.Bucket, cfg.GCS.Prefix, a.Credentials.TokenSource, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil

	case "blob":
		store, err := storage.NewBlobStore(ctx, cfg.Blob.URL, cfg.Blob.Prefix, a.Logger)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, store)
		return store, nil

	default:
		return nil, fmt.Errorf("unknown archive type: %s", cfg.Type)
	}
}
