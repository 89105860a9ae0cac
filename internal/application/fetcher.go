package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// FetcherConfig holds the settings of the fetch-and-clean orchestrator.
type FetcherConfig struct {
	OutputDir     string
	StagingFolder string        // Namespace searched by the final sweep
	MaxRetry      int           // Download retries per file
	RetryDelay    time.Duration // Wait before the first download retry
	MaxRetryDelay time.Duration // Upper bound of the doubling delay
	EmptyTrash    bool          // Empty the staging trash after the sweep
	ArchiveFolder string        // Folder created in the archive store
}

// partialSuffix marks a download in progress.
const partialSuffix = ".part"

// DefaultFetcherConfig returns the default fetcher settings.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		StagingFolder: "GEE",
		MaxRetry:      5,
		RetryDelay:    2 * time.Second,
		MaxRetryDelay: time.Minute,
		ArchiveFolder: "geefetch",
	}
}

// FetchResult lists the files retrieved for one job.
type FetchResult struct {
	Job      string
	Files    []string // Local paths
	Archived []string // Archive item ids
}

// Fetcher downloads finished exports from the staging store and removes
// the remote copies. It owns the exports fetched during one run.
type Fetcher struct {
	staging output.FileStore
	archive output.FileStore
	metrics output.MetricsCollector
	logger  *slog.Logger
	config  FetcherConfig
	wait    waitFunc

	exports       []FetchResult
	archiveFolder *domain.StorageItem
}

// NewFetcher creates a fetcher for one run. archive may be nil.
func NewFetcher(
	staging output.FileStore,
	archive output.FileStore,
	metrics output.MetricsCollector,
	logger *slog.Logger,
	cfg FetcherConfig,
) *Fetcher {
	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = 0
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}

	return &Fetcher{
		staging: staging,
		archive: archive,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
		wait:    sleepContext,
	}
}

// Fetch downloads every staged file of the job, deleting each remote copy
// right after its download succeeds. A file whose download keeps failing is
// reported as a *domain.DownloadError and left in place; the other files of
// the job are still processed.
func (f *Fetcher) Fetch(ctx context.Context, job domain.ExportJob) (FetchResult, error) {
	result := FetchResult{Job: job.Name}

	items, err := f.staging.Search(ctx, job.Name)
	f.metrics.IncStorageOperations("search", err == nil)
	if err != nil {
		return result, &domain.StorageError{Operation: "search", Key: job.Name, Err: err}
	}

	var errs []error
	for _, item := range items {
		if !item.MatchesJob(job.Name) {
			continue
		}

		localPath := filepath.Join(f.config.OutputDir, filepath.Base(item.Title))
		if err := f.download(ctx, job.Name, item, localPath); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return result, ctxErr
			}
			errs = append(errs, err)
			continue
		}
		result.Files = append(result.Files, localPath)

		err := f.staging.Delete(ctx, item)
		f.metrics.IncStorageOperations("delete", err == nil)
		if err != nil {
			// The sweep gets another chance at it.
			f.logger.Warn("failed to delete staged export", "job", job.Name, "item", item.Title, "error", err)
		}

		if f.archive != nil {
			id, err := f.archiveFile(ctx, localPath)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			result.Archived = append(result.Archived, id)
		}
	}

	if len(result.Files) == 0 && len(errs) == 0 {
		f.logger.Warn("no staged file found for export", "job", job.Name)
	}

	f.exports = append(f.exports, result)
	return result, errors.Join(errs...)
}

// download retrieves one item with its own retry budget. The item is
// written next to localPath and renamed onto it once complete, so a failed
// download never touches a file already at localPath.
func (f *Fetcher) download(ctx context.Context, job string, item domain.StorageItem, localPath string) error {
	backoff := Backoff{Initial: f.config.RetryDelay, Max: f.config.MaxRetryDelay}
	partPath := localPath + partialSuffix
	defer func() { _ = os.Remove(partPath) }()

	var lastErr error
	attempts := 0
	for retry := 0; retry <= f.config.MaxRetry; retry++ {
		if retry > 0 {
			delay := backoff.Delay(retry)
			f.logger.Warn("retrying download",
				"job", job,
				"item", item.Title,
				"retry", retry,
				"delay", delay,
				"error", lastErr,
			)
			if err := f.wait(ctx, delay); err != nil {
				return err
			}
		}

		attempts++
		start := time.Now()
		err := f.staging.Download(ctx, item, partPath)
		if err == nil {
			err = os.Rename(partPath, localPath)
		}
		f.metrics.IncDownloads(err == nil)
		if err == nil {
			f.metrics.ObserveDownloadDuration(time.Since(start))
			f.logger.Info("downloaded export", "job", job, "item", item.Title, "path", localPath)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lastErr = err
	}

	return &domain.DownloadError{
		Job:      job,
		Item:     item.Title,
		Attempts: attempts,
		Err:      lastErr,
	}
}

func (f *Fetcher) archiveFile(ctx context.Context, localPath string) (string, error) {
	if f.archiveFolder == nil && f.config.ArchiveFolder != "" {
		folder, err := f.archive.CreateFolder(ctx, f.config.ArchiveFolder, nil)
		f.metrics.IncStorageOperations("create_folder", err == nil)
		if err != nil {
			return "", &domain.StorageError{Operation: "create_folder", Key: f.config.ArchiveFolder, Err: err}
		}
		f.archiveFolder = &folder
	}

	item, err := f.archive.Upload(ctx, localPath, filepath.Base(localPath), f.archiveFolder)
	f.metrics.IncStorageOperations("upload", err == nil)
	if err != nil {
		return "", &domain.StorageError{Operation: "upload", Key: localPath, Err: err}
	}

	f.logger.Debug("archived export", "path", localPath, "id", item.ID)
	return item.ID, nil
}

// Sweep deletes everything left in the staging namespace and, if
// configured, empties the staging trash. It returns the number of deleted items.
func (f *Fetcher) Sweep(ctx context.Context) (int, error) {
	items, err := f.staging.Search(ctx, f.config.StagingFolder)
	f.metrics.IncStorageOperations("search", err == nil)
	if err != nil {
		return 0, &domain.StorageError{Operation: "search", Key: f.config.StagingFolder, Err: err}
	}

	var errs []error
	deleted := 0
	for _, item := range items {
		err := f.staging.Delete(ctx, item)
		f.metrics.IncStorageOperations("delete", err == nil)
		if err != nil {
			errs = append(errs, &domain.StorageError{Operation: "delete", Key: item.Title, Err: err})
			continue
		}
		deleted++
	}

	if f.config.EmptyTrash {
		err := f.staging.EmptyTrash(ctx)
		f.metrics.IncStorageOperations("empty_trash", err == nil)
		if err != nil {
			errs = append(errs, &domain.StorageError{Operation: "empty_trash", Err: err})
		}
	}

	f.logger.Info("staging store swept", "folder", f.config.StagingFolder, "deleted", deleted)

	if len(errs) > 0 {
		return deleted, fmt.Errorf("sweeping staging store: %w", errors.Join(errs...))
	}
	return deleted, nil
}

// Exports returns the results fetched so far, in fetch order.
func (f *Fetcher) Exports() []FetchResult {
	out := make([]FetchResult, len(f.exports))
	copy(out, f.exports)
	return out
}
