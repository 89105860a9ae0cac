package application

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sort"
	"testing"
	"time"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/input"
)

type pipelineFixture struct {
	imagery  *mockImagery
	staging  *mockFileStore
	reporter *mockReporter
	status   *StatusTracker
	pipeline *Pipeline
	req      input.RunRequest
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "pipeline-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(tmpDir) })

	f := &pipelineFixture{
		imagery:  &mockImagery{size: 3},
		staging:  newMockFileStore(),
		reporter: &mockReporter{},
		status:   NewStatusTracker(),
	}

	// Completed exports appear in the staging store under the job name.
	f.imagery.onSubmit = func(job domain.ExportJob) {
		f.staging.put(job.Name+".tif", job.Name)
	}

	f.pipeline = NewPipeline(PipelineDeps{
		Imagery:   f.imagery,
		Staging:   f.staging,
		AOIReader: &mockAOIReader{aoi: squareAOI()},
		Reporter:  f.reporter,
		Status:    f.status,
	}, PipelineConfig{
		Runner:  RunnerConfig{UpdateInterval: time.Millisecond, MaxRetry: 1},
		Fetcher: FetcherConfig{MaxRetry: 1},
	}, testLogger())
	f.pipeline.newRunID = func() string { return "run-test" }

	f.req = input.RunRequest{
		AOIPath:     "field.geojson",
		Start:       "2023-06-01",
		End:         "2023-08-01",
		PeriodSize:  "1M",
		Collection:  "sentinel2",
		Indices:     []string{"NDVI"},
		Aggregation: "median",
		Resolution:  10,
		OutputDir:   tmpDir,
	}
	return f
}

func TestPipeline_EndToEnd(t *testing.T) {
	f := newPipelineFixture(t)

	report, err := f.pipeline.Run(context.Background(), f.req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{
		"NDVI_2023-06-01_2023-06-30",
		"NDVI_2023-07-01_2023-07-31",
		"NDVI_2023-08-01_2023-08-31",
	}
	if got := f.imagery.submittedNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("submitted = %v, want %v", got, want)
	}

	for _, name := range want {
		if n := f.staging.downloads[name+".tif"]; n != 1 {
			t.Errorf("%s downloaded %d times, want 1", name, n)
		}
		if f.staging.has(name + ".tif") {
			t.Errorf("%s still in staging", name)
		}
	}

	if len(report.Exports) != 3 {
		t.Fatalf("report exports = %d, want 3", len(report.Exports))
	}
	for _, rec := range report.Exports {
		if rec.Status != domain.ExportDownloaded || rec.Attempts != 1 || len(rec.Files) != 1 {
			t.Errorf("record = %+v", rec)
		}
	}
	if report.RunID != "run-test" || report.PeriodsTotal != 3 || !report.Succeeded() {
		t.Errorf("report = %+v", report)
	}

	if len(f.reporter.reports) != 1 {
		t.Errorf("reports written = %d, want 1", len(f.reporter.reports))
	}

	status := f.status.GetStatus(context.Background())
	if status.Phase != domain.PhaseDone || status.JobsCompleted != 3 || status.FilesFetched != 3 {
		t.Errorf("status = %+v", status)
	}
}

func TestPipeline_SkipsEmptyPeriods(t *testing.T) {
	f := newPipelineFixture(t)
	f.imagery.sizeBy = map[string]int{"2023-07-01": 0}

	report, err := f.pipeline.Run(context.Background(), f.req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.PeriodsSkipped != 1 || len(report.Exports) != 2 {
		t.Errorf("report = %+v", report)
	}
}

func TestPipeline_TaskFailureStopsRun(t *testing.T) {
	f := newPipelineFixture(t)
	f.imagery.failAll = true

	report, err := f.pipeline.Run(context.Background(), f.req)
	if !errors.Is(err, domain.ErrTaskFailed) {
		t.Fatalf("Run() error = %v, want ErrTaskFailed", err)
	}

	// One job, two attempts, then the run stops.
	if got := len(f.imagery.submitted); got != 2 {
		t.Errorf("submissions = %d, want 2", got)
	}
	if len(report.Exports) != 1 || report.Exports[0].Status != domain.ExportFailed {
		t.Errorf("exports = %+v", report.Exports)
	}
	if report.Succeeded() {
		t.Error("report should record the failure")
	}
	if f.status.IsReady(context.Background()) {
		t.Error("tracker should not be ready after a failed run")
	}
}

func TestPipeline_DownloadFailureContinues(t *testing.T) {
	f := newPipelineFixture(t)
	f.staging.downloadErr["NDVI_2023-06-01_2023-06-30.tif"] = 10

	report, err := f.pipeline.Run(context.Background(), f.req)
	if !errors.Is(err, domain.ErrDownloadFailed) {
		t.Fatalf("Run() error = %v, want ErrDownloadFailed", err)
	}
	if len(report.Exports) != 3 {
		t.Errorf("exports = %d, want 3", len(report.Exports))
	}
	if report.Exports[0].Status != domain.ExportNoOutput {
		t.Errorf("first export status = %v", report.Exports[0].Status)
	}
	if report.Exports[2].Status != domain.ExportDownloaded {
		t.Errorf("last export status = %v", report.Exports[2].Status)
	}
}

func TestPipeline_SweepsLeftovers(t *testing.T) {
	f := newPipelineFixture(t)
	f.staging.put("GEE_stale.tif", "old")

	report, err := f.pipeline.Run(context.Background(), f.req)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.SweptItems != 1 || f.staging.has("GEE_stale.tif") {
		t.Errorf("SweptItems = %d", report.SweptItems)
	}
}

func TestPipeline_SweepsAfterCancel(t *testing.T) {
	f := newPipelineFixture(t)
	f.staging.put("GEE_stale.tif", "old")

	ctx, cancel := context.WithCancel(context.Background())
	f.imagery.onSubmit = func(domain.ExportJob) { cancel() }
	f.imagery.scripts = [][]domain.TaskState{{domain.TaskRunning}}

	_, err := f.pipeline.Run(ctx, f.req)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if f.staging.has("GEE_stale.tif") {
		t.Error("staging should be swept after cancellation")
	}
}

func TestPipeline_InvalidRequest(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*input.RunRequest)
		wantErr error
	}{
		{"unknown collection", func(r *input.RunRequest) { r.Collection = "modis" }, domain.ErrUnknownCollection},
		{"bad aggregation", func(r *input.RunRequest) { r.Aggregation = "max" }, domain.ErrUnsupportedAggregation},
		{"no products", func(r *input.RunRequest) { r.Indices = nil }, domain.ErrNoProducts},
		{"bad unit", func(r *input.RunRequest) { r.PeriodSize = "2Q" }, domain.ErrInvalidUnit},
		{"bad date", func(r *input.RunRequest) { r.Start = "June" }, domain.ErrInvalidDate},
		{"zero resolution", func(r *input.RunRequest) { r.Resolution = 0 }, domain.ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPipelineFixture(t)
			tt.mutate(&f.req)

			_, err := f.pipeline.Run(context.Background(), f.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if len(f.imagery.filters) != 0 {
				t.Error("no remote call expected for an invalid request")
			}
		})
	}
}

func TestPipeline_AOIErrors(t *testing.T) {
	f := newPipelineFixture(t)
	f.pipeline.deps.AOIReader = &mockAOIReader{aoi: &domain.AOI{Name: "empty"}}

	if _, err := f.pipeline.Run(context.Background(), f.req); !errors.Is(err, domain.ErrEmptyAOI) {
		t.Errorf("Run() error = %v, want ErrEmptyAOI", err)
	}

	f.pipeline.deps.AOIReader = &mockAOIReader{err: domain.ErrMissingFile}
	if _, err := f.pipeline.Run(context.Background(), f.req); !errors.Is(err, domain.ErrMissingFile) {
		t.Errorf("Run() error = %v, want ErrMissingFile", err)
	}
}

func TestPipeline_Sweep(t *testing.T) {
	f := newPipelineFixture(t)
	f.staging.put("GEE_a.tif", "a")
	f.staging.put("GEE_b.tif", "b")

	n, err := f.pipeline.Sweep(context.Background())
	if err != nil || n != 2 {
		t.Errorf("Sweep() = %d, %v", n, err)
	}
	sort.Strings(f.staging.deleted)
	if !reflect.DeepEqual(f.staging.deleted, []string{"GEE_a.tif", "GEE_b.tif"}) {
		t.Errorf("deleted = %v", f.staging.deleted)
	}
}
