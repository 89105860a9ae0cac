package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jobrunner/geefetch/internal/domain"
)

func TestStatusTracker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	tracker := NewStatusTracker()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return fixed }

	if got := tracker.GetStatus(ctx).Phase; got != domain.PhaseIdle {
		t.Errorf("initial phase = %v, want idle", got)
	}
	if !tracker.IsHealthy(ctx) || !tracker.IsReady(ctx) {
		t.Error("idle tracker should be healthy and ready")
	}

	tracker.Begin("run-1")
	tracker.SetPeriod(domain.NewInterval(time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC), domain.Period{Count: 1, Unit: domain.UnitMonth}))
	tracker.TaskAttempt("NDVI_2023-06-01_2023-06-30", 2)
	tracker.JobFinished(2, nil)
	tracker.JobFinished(0, errors.New("download failed"))
	tracker.PeriodSkipped()

	status := tracker.GetStatus(ctx)
	if status.RunID != "run-1" || !status.StartedAt.Equal(fixed) || !status.UpdatedAt.Equal(fixed) {
		t.Errorf("status = %+v", status)
	}
	if status.Phase != domain.PhaseExporting || status.Attempt != 2 {
		t.Errorf("phase = %v attempt = %d", status.Phase, status.Attempt)
	}
	if status.Period != "2023-06-01 -> 2023-06-30" {
		t.Errorf("Period = %q", status.Period)
	}
	if status.JobsCompleted != 1 || status.JobsFailed != 1 || status.FilesFetched != 2 || status.PeriodsSkipped != 1 {
		t.Errorf("counters = %+v", status)
	}

	tracker.Finish(nil)
	status = tracker.GetStatus(ctx)
	if status.Phase != domain.PhaseDone || status.CurrentJob != "" {
		t.Errorf("after Finish(nil) = %+v", status)
	}

	tracker.Finish(errors.New("boom"))
	if tracker.IsReady(ctx) {
		t.Error("tracker should not be ready after a failure")
	}

	tracker.Begin("run-2")
	if !tracker.IsReady(ctx) {
		t.Error("a new run should reset readiness")
	}
	if got := tracker.GetStatus(ctx); got.JobsCompleted != 0 || got.LastError != "" {
		t.Errorf("Begin() should reset counters, got %+v", got)
	}
}
