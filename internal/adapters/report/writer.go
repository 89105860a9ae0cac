// Package report writes the run report and file manifest next to the downloads.
package report

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v3"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// File names written to the run output directory.
const (
	ReportFile   = "report.yaml"
	ManifestFile = "manifest.csv"
)

// ManifestRow is one line of manifest.csv: one downloaded file, or one
// export without output.
type ManifestRow struct {
	Export    string  `csv:"export"`
	Product   string  `csv:"product"`
	Start     string  `csv:"start"`
	End       string  `csv:"end"`
	Partition int     `csv:"partition"`
	Status    string  `csv:"status"`
	Attempts  int     `csv:"attempts"`
	File      string  `csv:"file"`
	Archived  string  `csv:"archived"`
	Seconds   float64 `csv:"duration_seconds"`
}

// Writer implements the ReportWriter port on the local file system.
type Writer struct{}

// Ensure Writer implements the report port.
var _ output.ReportWriter = (*Writer)(nil)

// NewWriter creates a new report writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteReport implements output.ReportWriter.
func (w *Writer) WriteReport(_ context.Context, report *domain.RunReport) error {
	if err := os.MkdirAll(report.OutputDir, 0750); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	if err := writeYAML(filepath.Join(report.OutputDir, ReportFile), report); err != nil {
		return err
	}
	return writeManifest(filepath.Join(report.OutputDir, ManifestFile), ManifestRows(report))
}

func writeYAML(path string, report *domain.RunReport) error {
	f, err := os.Create(path) //#nosec G304 -- path inside the run output directory
	if err != nil {
		return &domain.StorageError{Operation: "write", Key: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	enc := yaml.NewEncoder(f)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

func writeManifest(path string, rows []ManifestRow) error {
	f, err := os.Create(path) //#nosec G304 -- path inside the run output directory
	if err != nil {
		return &domain.StorageError{Operation: "write", Key: path, Err: err}
	}
	defer func() { _ = f.Close() }()

	if err := gocsv.MarshalFile(&rows, f); err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return f.Close()
}

// ManifestRows flattens the exports of a report, one row per file.
func ManifestRows(report *domain.RunReport) []ManifestRow {
	var rows []ManifestRow
	for _, e := range report.Exports {
		row := ManifestRow{
			Export:    e.Name,
			Product:   e.Product,
			Start:     e.Start,
			End:       e.End,
			Partition: e.Partition,
			Status:    string(e.Status),
			Attempts:  e.Attempts,
			Seconds:   e.Duration.Round(time.Millisecond).Seconds(),
		}

		if len(e.Files) == 0 {
			rows = append(rows, row)
			continue
		}
		for i, file := range e.Files {
			r := row
			r.File = filepath.Base(file)
			if i < len(e.Archived) {
				r.Archived = e.Archived[i]
			}
			rows = append(rows, r)
		}
	}
	return rows
}

// ReadReport loads a report written by WriteReport.
func ReadReport(dir string) (*domain.RunReport, error) {
	data, err := os.ReadFile(filepath.Join(dir, ReportFile)) //#nosec G304 -- user-provided output directory
	if err != nil {
		return nil, err
	}
	var report domain.RunReport
	if err := yaml.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", ReportFile, err)
	}
	return &report, nil
}
