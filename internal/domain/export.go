package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// ImageRef is an opaque handle to a remote image expression.
type ImageRef struct {
	Handle any
}

// CollectionRef is an opaque handle to a remote image collection expression.
type CollectionRef struct {
	Handle any
}

// CollectionFilter selects the images of one period over one area.
type CollectionFilter struct {
	Collection          *Collection
	Interval            Interval
	Bounds              orb.Bound
	CloudScoreThreshold float64
}

// ExportJob is a named export request for one product, period and partition.
type ExportJob struct {
	Name       string
	Product    Product
	Interval   Interval
	Partition  Partition
	Image      ImageRef
	Resolution float64
	Folder     string // Staging folder the backend writes into
}

// JobName returns {product}_{start}_{end}[_{partition}].
func JobName(product string, interval Interval, partition Partition) string {
	return product + "_" + interval.StartDate() + "_" + interval.EndDate() + partition.Suffix()
}

// TaskState is the lifecycle state of a remote export task.
type TaskState int

// Task states.
const (
	TaskCreated TaskState = iota
	TaskRunning
	TaskCompleted
	TaskFailed
	TaskCancelled
)

// String returns the string representation of the state.
func (s TaskState) String() string {
	switch s {
	case TaskCreated:
		return "CREATED"
	case TaskRunning:
		return "RUNNING"
	case TaskCompleted:
		return "COMPLETED"
	case TaskFailed:
		return "FAILED"
	case TaskCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// IsTerminal reports whether no further transition can happen.
func (s TaskState) IsTerminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// IsSuccessful reports whether the task produced its output.
func (s TaskState) IsSuccessful() bool {
	return s == TaskCompleted
}

// TaskHandle identifies a submitted remote task.
type TaskHandle struct {
	ID   string
	Name string
}

// TaskStatus is a polled snapshot of a remote task.
type TaskStatus struct {
	State       TaskState
	Description string
	Error       string
	UpdatedAt   time.Time
}
