package output

import "time"

// MetricsCollector defines the secondary port for metrics collection.
type MetricsCollector interface {
	// IncExports counts finished export jobs by product and status.
	IncExports(product string, status string)

	// IncTaskAttempts counts export task submissions.
	IncTaskAttempts(product string)

	// ObserveTaskDuration records the wall time of an export task including retries.
	ObserveTaskDuration(product string, duration time.Duration)

	// IncDownloads counts file downloads.
	IncDownloads(success bool)

	// ObserveDownloadDuration records download duration.
	ObserveDownloadDuration(duration time.Duration)

	// IncPeriods counts processed and skipped periods.
	IncPeriods(status string)

	// IncStorageOperations increments storage operation counter.
	IncStorageOperations(operation string, success bool)
}

// NoOpMetrics is a no-op implementation of MetricsCollector.
type NoOpMetrics struct{}

// IncExports implements MetricsCollector.
func (n *NoOpMetrics) IncExports(_ string, _ string) {}

// IncTaskAttempts implements MetricsCollector.
func (n *NoOpMetrics) IncTaskAttempts(_ string) {}

// ObserveTaskDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveTaskDuration(_ string, _ time.Duration) {}

// IncDownloads implements MetricsCollector.
func (n *NoOpMetrics) IncDownloads(_ bool) {}

// ObserveDownloadDuration implements MetricsCollector.
func (n *NoOpMetrics) ObserveDownloadDuration(_ time.Duration) {}

// IncPeriods implements MetricsCollector.
func (n *NoOpMetrics) IncPeriods(_ string) {}

// IncStorageOperations implements MetricsCollector.
func (n *NoOpMetrics) IncStorageOperations(_ string, _ bool) {}
