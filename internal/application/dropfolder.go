package application

import (
	"context"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/input"
)

// DropResult is the outcome of the last run for one AOI file.
type DropResult struct {
	Path       string    `json:"path"`
	RunID      string    `json:"run_id,omitempty"`
	OutputDir  string    `json:"output_dir"`
	Exports    int       `json:"exports"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// DropFolderService runs the pipeline for AOI files dropped into a watched
// directory. Runs are executed one at a time in arrival order.
type DropFolderService struct {
	runner input.PipelineRunner
	base   input.RunRequest
	logger *slog.Logger

	// Lifecycle management
	queue  chan string
	stopCh chan struct{}
	wg     sync.WaitGroup

	// Pending paths and last results
	mu      sync.Mutex
	pending map[string]bool
	results map[string]DropResult

	// Prevents concurrent runs
	runMu sync.Mutex
}

// NewDropFolderService creates a new drop folder service. Each run uses base
// with the AOI path replaced and the output directory suffixed by the AOI name.
func NewDropFolderService(runner input.PipelineRunner, base input.RunRequest, logger *slog.Logger) *DropFolderService {
	return &DropFolderService{
		runner:  runner,
		base:    base,
		logger:  logger,
		queue:   make(chan string, 64),
		stopCh:  make(chan struct{}),
		pending: make(map[string]bool),
		results: make(map[string]DropResult),
	}
}

// Start begins processing queued AOI files.
func (s *DropFolderService) Start(ctx context.Context) {
	s.logger.Info("starting drop folder service")

	s.wg.Add(1)
	go s.run(ctx)
}

// run is the main processing loop.
func (s *DropFolderService) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("drop folder service stopped: context canceled")
			return
		case <-s.stopCh:
			s.logger.Info("drop folder service stopped")
			return
		case path := <-s.queue:
			s.mu.Lock()
			delete(s.pending, path)
			s.mu.Unlock()

			if err := s.HandleAOI(ctx, path); err != nil {
				s.logger.Error("drop folder run failed", "path", path, "error", err)
			}
		}
	}
}

// Stop gracefully stops the service after the current run.
func (s *DropFolderService) Stop() {
	s.logger.Info("stopping drop folder service")
	close(s.stopCh)
	s.wg.Wait()
}

// Enqueue schedules a run for the AOI file. A path already waiting is not
// queued twice. It returns false when the path was not queued.
func (s *DropFolderService) Enqueue(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[path] {
		return false
	}

	select {
	case s.queue <- path:
		s.pending[path] = true
		return true
	default:
		s.logger.Warn("drop folder queue full, ignoring file", "path", path)
		return false
	}
}

// HandleAOI runs the pipeline for one AOI file and records the outcome.
func (s *DropFolderService) HandleAOI(ctx context.Context, path string) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	req := s.base
	req.AOIPath = path
	req.OutputDir = filepath.Join(s.base.OutputDir, domain.NameFromPath(path))

	s.logger.Info("running pipeline for dropped AOI", "path", path, "output", req.OutputDir)

	report, err := s.runner.Run(ctx, req)

	result := DropResult{
		Path:       path,
		OutputDir:  req.OutputDir,
		FinishedAt: time.Now(),
	}
	if report != nil {
		result.RunID = report.RunID
		result.Exports = len(report.Exports)
	}
	if err != nil {
		result.Error = err.Error()
	}

	s.mu.Lock()
	s.results[path] = result
	s.mu.Unlock()

	return err
}

// Results returns the last result of every processed AOI file, by path.
func (s *DropFolderService) Results() []DropResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	results := make([]DropResult, 0, len(s.results))
	for _, r := range s.results {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Path < results[j].Path })
	return results
}
