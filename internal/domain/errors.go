package domain

import (
	"errors"
	"fmt"
)

// Base error types (sentinel errors).
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrUnsupported  = errors.New("unsupported operation")
	ErrInternal     = errors.New("internal error")
	ErrUnavailable  = errors.New("service unavailable")
)

// Specific errors.
var (
	ErrInvalidUnit            = fmt.Errorf("period unit: %w", ErrInvalidInput)
	ErrInvalidPeriodFormat    = fmt.Errorf("period format: %w", ErrInvalidInput)
	ErrInvalidDate            = fmt.Errorf("date: %w", ErrInvalidInput)
	ErrUnsupportedAggregation = fmt.Errorf("aggregation function: %w", ErrUnsupported)
	ErrUnknownCollection      = fmt.Errorf("collection: %w", ErrNotFound)
	ErrUnknownProduct         = fmt.Errorf("product: %w", ErrNotFound)
	ErrNoProducts             = fmt.Errorf("no indices, bands or count band requested: %w", ErrInvalidInput)
	ErrMissingFile            = fmt.Errorf("file: %w", ErrNotFound)
	ErrEmptyAOI               = fmt.Errorf("area of interest has no geometry: %w", ErrInvalidInput)
	ErrUnsupportedGeometry    = fmt.Errorf("geometry: %w", ErrUnsupported)
	ErrUnsupportedProjection  = fmt.Errorf("projection: %w", ErrUnsupported)
	ErrNoImages               = fmt.Errorf("image collection is empty: %w", ErrNotFound)
	ErrTaskFailed             = errors.New("export task failed")
	ErrDownloadFailed         = errors.New("download failed")
	ErrRunInProgress          = fmt.Errorf("a run is already in progress: %w", ErrUnavailable)
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string // Configuration field
	Message string // Error message
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration error for %s: %s", e.Field, e.Message)
}

// Unwrap returns the underlying error type.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidInput
}

// StorageError represents an error during storage operations.
type StorageError struct {
	Operation string // Operation that failed (download, search, etc.)
	Key       string // Item identifier or key
	Err       error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error during %s for %s: %v",
			e.Operation, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error during %s: %v", e.Operation, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// TaskFailedError is returned once an export job has used up its retry budget.
type TaskFailedError struct {
	Job      string // Export job name
	Attempts int    // Number of submissions made
	Err      error  // Last failure observed
}

// Error implements the error interface.
func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("export task %s failed after %d attempts: %v", e.Job, e.Attempts, e.Err)
}

// Unwrap returns both the sentinel and the last failure.
func (e *TaskFailedError) Unwrap() []error {
	return []error{ErrTaskFailed, e.Err}
}

// DownloadError is returned once a single file download has used up its retry budget.
type DownloadError struct {
	Job      string // Export job the file belongs to
	Item     string // Remote item title
	Attempts int    // Number of download attempts made
	Err      error  // Last failure observed
}

// Error implements the error interface.
func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s (job %s) failed after %d attempts: %v",
		e.Item, e.Job, e.Attempts, e.Err)
}

// Unwrap returns both the sentinel and the last failure.
func (e *DownloadError) Unwrap() []error {
	return []error{ErrDownloadFailed, e.Err}
}

// RemoteError describes a non-success response from a remote API.
type RemoteError struct {
	Service    string // earthengine, drive
	StatusCode int    // HTTP status code
	Message    string // Message reported by the service
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: status %d: %s", e.Service, e.StatusCode, e.Message)
}

// Unwrap maps the status code onto a sentinel error.
func (e *RemoteError) Unwrap() error {
	switch {
	case e.StatusCode == 404:
		return ErrNotFound
	case e.StatusCode == 400:
		return ErrInvalidInput
	case e.StatusCode >= 500:
		return ErrUnavailable
	default:
		return ErrInternal
	}
}
