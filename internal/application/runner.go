package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// RunnerConfig holds the polling and retry settings of the task runner.
type RunnerConfig struct {
	UpdateInterval time.Duration // Status polling interval
	RetryDelay     time.Duration // Wait before the first resubmission
	MaxRetry       int           // Resubmissions allowed after the first attempt
	MaxRetryDelay  time.Duration // Upper bound of the doubling delay
}

// DefaultRunnerConfig returns the default task runner settings.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		UpdateInterval: 10 * time.Second,
		RetryDelay:     30 * time.Second,
		MaxRetry:       10,
		MaxRetryDelay:  10 * time.Minute,
	}
}

// TaskObserver receives task runner progress.
type TaskObserver interface {
	TaskAttempt(job string, attempt int)
	TaskState(job string, status domain.TaskStatus)
}

// TaskRunner submits export jobs and waits for them to finish.
// Failed tasks are resubmitted from scratch, so a job may run more than once.
type TaskRunner struct {
	imagery  output.ImageryBackend
	metrics  output.MetricsCollector
	observer TaskObserver
	logger   *slog.Logger
	config   RunnerConfig
	wait     waitFunc
}

// NewTaskRunner creates a new task runner.
func NewTaskRunner(
	imagery output.ImageryBackend,
	metrics output.MetricsCollector,
	observer TaskObserver,
	logger *slog.Logger,
	cfg RunnerConfig,
) *TaskRunner {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultRunnerConfig().UpdateInterval
	}
	if cfg.MaxRetry < 0 {
		cfg.MaxRetry = 0
	}
	if metrics == nil {
		metrics = &output.NoOpMetrics{}
	}

	return &TaskRunner{
		imagery:  imagery,
		metrics:  metrics,
		observer: observer,
		logger:   logger,
		config:   cfg,
		wait:     sleepContext,
	}
}

// Run executes the job until it completes or the retry budget is spent.
// It returns the number of submissions made. Exhausting the budget yields a
// *domain.TaskFailedError; a cancelled context is returned as is.
func (r *TaskRunner) Run(ctx context.Context, job domain.ExportJob) (int, error) {
	backoff := Backoff{Initial: r.config.RetryDelay, Max: r.config.MaxRetryDelay}
	product := job.Product.Name
	started := time.Now()
	defer func() {
		r.metrics.ObserveTaskDuration(product, time.Since(started))
	}()

	var lastErr error
	attempts := 0

	for retry := 0; retry <= r.config.MaxRetry; retry++ {
		if retry > 0 {
			delay := backoff.Delay(retry)
			r.logger.Warn("retrying export task",
				"job", job.Name,
				"retry", retry,
				"delay", delay,
				"error", lastErr,
			)
			if err := r.wait(ctx, delay); err != nil {
				return attempts, err
			}
		}

		attempts++
		r.metrics.IncTaskAttempts(product)
		if r.observer != nil {
			r.observer.TaskAttempt(job.Name, attempts)
		}

		err := r.attempt(ctx, job)
		if err == nil {
			r.logger.Info("export task completed", "job", job.Name, "attempts", attempts)
			return attempts, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempts, ctxErr
		}
		lastErr = err
	}

	return attempts, &domain.TaskFailedError{
		Job:      job.Name,
		Attempts: attempts,
		Err:      lastErr,
	}
}

// attempt submits the job once and polls until a terminal state.
func (r *TaskRunner) attempt(ctx context.Context, job domain.ExportJob) error {
	handle, err := r.imagery.SubmitExport(ctx, job)
	if err != nil {
		return fmt.Errorf("submitting export: %w", err)
	}

	r.logger.Debug("export task submitted", "job", job.Name, "task", handle.ID)

	last := domain.TaskCreated
	for {
		status, err := r.imagery.PollStatus(ctx, handle)
		if err != nil {
			return fmt.Errorf("polling task %s: %w", handle.ID, err)
		}

		if status.State != last {
			r.logger.Debug("export task state", "job", job.Name, "state", status.State.String())
			if r.observer != nil {
				r.observer.TaskState(job.Name, status)
			}
			last = status.State
		}

		if status.State.IsTerminal() {
			if status.State.IsSuccessful() {
				return nil
			}
			msg := status.Error
			if msg == "" {
				msg = status.Description
			}
			return errors.New(status.State.String() + ": " + msg)
		}

		if err := r.wait(ctx, r.config.UpdateInterval); err != nil {
			return err
		}
	}
}
