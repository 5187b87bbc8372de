// Package worker runs the background execution layer: an Asynq server that
// picks up generation jobs enqueued by the API and drives them through the
// orchestrator, plus a periodic reaper for jobs orphaned by a crashed
// process.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/config"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/generation"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
	"github.com/hibiken/asynq"
	"gorm.io/gorm"
)

// asynqLoggerAdapter wraps slog.Logger to implement asynq.Logger interface
type asynqLoggerAdapter struct {
	logger *slog.Logger
}

func (a *asynqLoggerAdapter) Debug(args ...interface{}) {
	a.logger.Debug(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Info(args ...interface{}) {
	a.logger.Info(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Warn(args ...interface{}) {
	a.logger.Warn(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Error(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
}

func (a *asynqLoggerAdapter) Fatal(args ...interface{}) {
	a.logger.Error(fmt.Sprint(args...))
	panic(fmt.Sprint(args...))
}

// Run starts the Asynq worker server and blocks until shutdown signal.
// Use this for standalone worker mode.
func Run(cfg *config.Config, db *gorm.DB, orchestrator *generation.Orchestrator) error {
	srv, mux, err := newServer(cfg, db, orchestrator)
	if err != nil {
		return err
	}
	return srv.Run(mux)
}

// Start starts the Asynq worker in non-blocking mode and returns a stop function.
// Use this for embedded mode so the caller can coordinate shutdown.
func Start(cfg *config.Config, db *gorm.DB, orchestrator *generation.Orchestrator) (stop func(), err error) {
	srv, mux, err := newServer(cfg, db, orchestrator)
	if err != nil {
		return nil, err
	}
	if err := srv.Start(mux); err != nil {
		return nil, fmt.Errorf("failed to start worker: %w", err)
	}
	return func() { srv.Shutdown() }, nil
}

func newServer(cfg *config.Config, db *gorm.DB, orchestrator *generation.Orchestrator) (*asynq.Server, *asynq.ServeMux, error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// Concurrency bounds how many manuscripts draft at once across
			// the process; within one job sections are strictly sequential.
			Concurrency:     5,
			ShutdownTimeout: 30 * time.Second,
			ErrorHandler:    asynq.ErrorHandlerFunc(makeErrorHandler(logger)),
			Logger:          &asynqLoggerAdapter{logger: logger},
		},
	)

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskGenerateSections, handleGenerateSections(logger, orchestrator))
	mux.HandleFunc(TaskReapStaleJobs, handleReapStaleJobs(logger, db, cfg.StaleJobTimeout))

	logger.Info("Worker starting", "concurrency", 5, "redis", cfg.RedisURL)
	return srv, mux, nil
}

// handleGenerateSections processes one generation job by handing it to the
// orchestrator. The orchestrator converts drafting failures into job state,
// so an error here means the job row itself was unreadable or unwritable;
// either way the task is not retried (the job row is the failure channel).
func handleGenerateSections(logger *slog.Logger, orchestrator *generation.Orchestrator) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		var payload generatePayload
		if err := json.Unmarshal(task.Payload(), &payload); err != nil {
			return fmt.Errorf("invalid payload: %w", asynq.SkipRetry)
		}

		logger.Info("Processing generation:draft-sections task", "job_id", payload.JobID)

		if err := orchestrator.Run(ctx, payload.JobID); err != nil {
			logger.Error("Generation run aborted",
				"job_id", payload.JobID,
				"error", err.Error(),
			)
			return fmt.Errorf("generation run aborted: %w", asynq.SkipRetry)
		}
		return nil
	}
}

// handleReapStaleJobs marks jobs stuck in running longer than the stale
// timeout as failed. Covers process crashes: the orchestrator persists after
// every section, so a healthy job always touches its row well within the
// window.
func handleReapStaleJobs(logger *slog.Logger, db *gorm.DB, staleTimeout time.Duration) func(context.Context, *asynq.Task) error {
	return func(ctx context.Context, task *asynq.Task) error {
		cutoff := time.Now().Add(-staleTimeout)

		result := db.WithContext(ctx).
			Model(&models.GenerationJob{}).
			Where("status = ? AND updated_at < ?", models.JobStatusRunning, cutoff).
			Updates(map[string]interface{}{
				"status":          models.JobStatusFailed,
				"error_detail":    "job abandoned: no progress within the stale-job window",
				"current_section": nil,
				"completed_at":    time.Now(),
			})
		if result.Error != nil {
			return fmt.Errorf("failed to reap stale jobs: %w", result.Error)
		}

		if result.RowsAffected > 0 {
			logger.Warn("Reaped stale generation jobs", "count", result.RowsAffected, "cutoff", cutoff)
		}
		return nil
	}
}

// makeErrorHandler creates an error handler function with logger closure.
func makeErrorHandler(logger *slog.Logger) func(context.Context, *asynq.Task, error) {
	return func(ctx context.Context, task *asynq.Task, err error) {
		logger.Error(
			"Task execution failed",
			"task_type", task.Type(),
			"error", err.Error(),
		)
	}
}
