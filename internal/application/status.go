package application

import (
	"context"
	"sync"
	"time"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/input"
)

// StatusTracker records the progress of runs for the status endpoint.
type StatusTracker struct {
	mu     sync.RWMutex
	status input.RunStatus
	now    func() time.Time
}

// NewStatusTracker creates an idle status tracker.
func NewStatusTracker() *StatusTracker {
	return &StatusTracker{
		status: input.RunStatus{Phase: domain.PhaseIdle},
		now:    time.Now,
	}
}

// IsHealthy returns true if the service is healthy.
func (s *StatusTracker) IsHealthy(_ context.Context) bool {
	return true // Basic health check
}

// IsReady returns false once the last run has failed.
func (s *StatusTracker) IsReady(_ context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Phase != domain.PhaseFailed
}

// GetStatus returns a snapshot of the current run.
func (s *StatusTracker) GetStatus(_ context.Context) input.RunStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// Begin resets the tracker for a new run.
func (s *StatusTracker) Begin(runID string) {
	s.update(func(st *input.RunStatus) {
		now := s.now()
		*st = input.RunStatus{
			RunID:     runID,
			Phase:     domain.PhasePreparing,
			StartedAt: now,
		}
	})
}

// SetPhase records the current phase.
func (s *StatusTracker) SetPhase(phase domain.RunPhase) {
	s.update(func(st *input.RunStatus) { st.Phase = phase })
}

// SetPeriod records the period being processed.
func (s *StatusTracker) SetPeriod(interval domain.Interval) {
	s.update(func(st *input.RunStatus) { st.Period = interval.String() })
}

// PeriodSkipped counts a period without images.
func (s *StatusTracker) PeriodSkipped() {
	s.update(func(st *input.RunStatus) { st.PeriodsSkipped++ })
}

// JobFinished counts a finished job and its downloaded files.
func (s *StatusTracker) JobFinished(files int, err error) {
	s.update(func(st *input.RunStatus) {
		st.FilesFetched += files
		if err != nil {
			st.JobsFailed++
			st.LastError = err.Error()
			return
		}
		st.JobsCompleted++
	})
}

// Finish records the outcome of the run.
func (s *StatusTracker) Finish(err error) {
	s.update(func(st *input.RunStatus) {
		st.CurrentJob = ""
		st.Attempt = 0
		if err != nil {
			st.Phase = domain.PhaseFailed
			st.LastError = err.Error()
			return
		}
		st.Phase = domain.PhaseDone
	})
}

// TaskAttempt implements TaskObserver.
func (s *StatusTracker) TaskAttempt(job string, attempt int) {
	s.update(func(st *input.RunStatus) {
		st.Phase = domain.PhaseExporting
		st.CurrentJob = job
		st.Attempt = attempt
	})
}

// TaskState implements TaskObserver.
func (s *StatusTracker) TaskState(job string, status domain.TaskStatus) {
	s.update(func(st *input.RunStatus) {
		st.CurrentJob = job
		if status.Error != "" {
			st.LastError = status.Error
		}
	})
}

func (s *StatusTracker) update(fn func(*input.RunStatus)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.status)
	s.status.UpdatedAt = s.now()
}
