package application

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/input"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// noWait records requested delays instead of sleeping.
type noWait struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (w *noWait) wait(ctx context.Context, d time.Duration) error {
	w.mu.Lock()
	w.delays = append(w.delays, d)
	w.mu.Unlock()
	return ctx.Err()
}

// mockImagery implements output.ImageryBackend for testing.
// Every submission pops one script from scripts; when scripts is exhausted
// the task completes at once.
type mockImagery struct {
	mu sync.Mutex

	size      int
	sizeBy    map[string]int // by interval start date
	sizeErr   error
	submitErr error
	scripts   [][]domain.TaskState
	failAll   bool
	onSubmit  func(job domain.ExportJob)

	submitted []domain.ExportJob
	filters   []domain.CollectionFilter
	products  []string
	polls     int
	active    []domain.TaskState
}

func (m *mockImagery) ImageCollection(_ context.Context, filter domain.CollectionFilter) (domain.CollectionRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, filter)
	return domain.CollectionRef{Handle: filter.Interval.StartDate()}, nil
}

func (m *mockImagery) CollectionSize(_ context.Context, collection domain.CollectionRef) (int, error) {
	if m.sizeErr != nil {
		return 0, m.sizeErr
	}
	if m.sizeBy != nil {
		if n, ok := m.sizeBy[collection.Handle.(string)]; ok {
			return n, nil
		}
	}
	return m.size, nil
}

func (m *mockImagery) Composite(_ context.Context, collection domain.CollectionRef, _ domain.Aggregation, _ *domain.AOI) (domain.ImageRef, error) {
	return domain.ImageRef{Handle: collection.Handle}, nil
}

func (m *mockImagery) ProductImage(_ context.Context, _ domain.ImageRef, _ domain.CollectionRef, product domain.Product, _ orb.Bound) (domain.ImageRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products = append(m.products, product.Name)
	return domain.ImageRef{Handle: product.Name}, nil
}

func (m *mockImagery) SubmitExport(_ context.Context, job domain.ExportJob) (domain.TaskHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.submitted = append(m.submitted, job)
	if m.submitErr != nil {
		return domain.TaskHandle{}, m.submitErr
	}

	switch {
	case m.failAll:
		m.active = []domain.TaskState{domain.TaskRunning, domain.TaskFailed}
	case len(m.scripts) > 0:
		m.active = m.scripts[0]
		m.scripts = m.scripts[1:]
	default:
		m.active = []domain.TaskState{domain.TaskCompleted}
	}

	if m.onSubmit != nil {
		m.onSubmit(job)
	}
	return domain.TaskHandle{ID: job.Name}, nil
}

func (m *mockImagery) PollStatus(_ context.Context, _ domain.TaskHandle) (domain.TaskStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.polls++
	if len(m.active) == 0 {
		return domain.TaskStatus{State: domain.TaskCompleted}, nil
	}
	state := m.active[0]
	if len(m.active) > 1 {
		m.active = m.active[1:]
	}
	status := domain.TaskStatus{State: state}
	if state == domain.TaskFailed {
		status.Error = "computation timed out"
	}
	return status, nil
}

func (m *mockImagery) submittedNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.submitted))
	for i, j := range m.submitted {
		names[i] = j.Name
	}
	return names
}

// mockFileStore implements output.FileStore for testing, backed by memory.
type mockFileStore struct {
	mu sync.Mutex

	files       map[string][]byte // by title
	folders     []string
	uploads     []string
	deleted     []string
	downloads   map[string]int
	trashEmpty  int
	downloadErr map[string]int // remaining failures per title
	searchErr   error
	deleteErr   error
}

func newMockFileStore() *mockFileStore {
	return &mockFileStore{
		files:       make(map[string][]byte),
		downloads:   make(map[string]int),
		downloadErr: make(map[string]int),
	}
}

func (m *mockFileStore) put(title, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[title] = []byte(content)
}

func (m *mockFileStore) has(title string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.files[title]
	return ok
}

func (m *mockFileStore) CreateFolder(_ context.Context, title string, _ *domain.StorageItem) (domain.StorageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.folders = append(m.folders, title)
	return domain.StorageItem{ID: "folder-" + title, Title: title, Folder: true}, nil
}

func (m *mockFileStore) ListFolder(ctx context.Context, _ *domain.StorageItem) ([]domain.StorageItem, error) {
	return m.Search(ctx, "")
}

func (m *mockFileStore) Search(_ context.Context, substring string) ([]domain.StorageItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	var items []domain.StorageItem
	for title, data := range m.files {
		if strings.Contains(title, substring) {
			items = append(items, domain.StorageItem{ID: title, Title: title, Size: int64(len(data))})
		}
	}
	return items, nil
}

func (m *mockFileStore) SearchInFolder(ctx context.Context, _ *domain.StorageItem, substring string) ([]domain.StorageItem, error) {
	return m.Search(ctx, substring)
}

func (m *mockFileStore) Download(_ context.Context, item domain.StorageItem, localPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.downloads[item.Title]++
	if m.downloadErr[item.Title] > 0 {
		m.downloadErr[item.Title]--
		return errors.New("connection reset")
	}
	data, ok := m.files[item.Title]
	if !ok {
		return domain.ErrNotFound
	}
	return os.WriteFile(localPath, data, 0600)
}

func (m *mockFileStore) Upload(_ context.Context, localPath, title string, _ *domain.StorageItem) (domain.StorageItem, error) {
	data, err := os.ReadFile(filepath.Clean(localPath))
	if err != nil {
		return domain.StorageItem{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, title)
	return domain.StorageItem{ID: "archived-" + title, Title: title, Size: int64(len(data))}, nil
}

func (m *mockFileStore) Delete(_ context.Context, item domain.StorageItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	delete(m.files, item.Title)
	m.deleted = append(m.deleted, item.Title)
	return nil
}

func (m *mockFileStore) ListTrash(_ context.Context) ([]domain.StorageItem, error) {
	return nil, nil
}

func (m *mockFileStore) EmptyTrash(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trashEmpty++
	return nil
}

// mockAOIReader implements output.AOIReader for testing.
type mockAOIReader struct {
	aoi *domain.AOI
	err error
}

func (m *mockAOIReader) ReadAOI(_ context.Context, path string) (*domain.AOI, error) {
	if m.err != nil {
		return nil, m.err
	}
	aoi := *m.aoi
	aoi.Source = path
	return &aoi, nil
}

// mockReporter implements output.ReportWriter for testing.
type mockReporter struct {
	reports []*domain.RunReport
}

func (m *mockReporter) WriteReport(_ context.Context, report *domain.RunReport) error {
	m.reports = append(m.reports, report)
	return nil
}

// mockPipelineRunner implements input.PipelineRunner for testing.
type mockPipelineRunner struct {
	mu       sync.Mutex
	requests []input.RunRequest
	err      error
	done     chan string
}

func (m *mockPipelineRunner) Run(_ context.Context, req input.RunRequest) (*domain.RunReport, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.done != nil {
		defer func() { m.done <- req.AOIPath }()
	}
	if m.err != nil {
		return &domain.RunReport{RunID: "run-1", Error: m.err.Error()}, m.err
	}
	return &domain.RunReport{
		RunID:   "run-1",
		Exports: []domain.ExportRecord{{Name: "NDVI_2023-06-01_2023-06-30"}},
	}, nil
}

func (m *mockPipelineRunner) Sweep(_ context.Context) (int, error) {
	return 0, nil
}

func squareAOI() *domain.AOI {
	return &domain.AOI{
		Name: "field",
		Features: []domain.AOIFeature{
			{Geometry: orb.Polygon{{{8, 47}, {8.1, 47}, {8.1, 47.1}, {8, 47.1}, {8, 47}}}},
		},
	}
}

func twoFieldAOI() *domain.AOI {
	aoi := squareAOI()
	aoi.Features = append(aoi.Features, domain.AOIFeature{
		Geometry: orb.Polygon{{{9, 46}, {9.1, 46}, {9.1, 46.1}, {9, 46.1}, {9, 46}}},
	})
	return aoi
}
