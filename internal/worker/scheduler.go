package worker

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/config"
	"github.com/hibiken/asynq"
)

// reapSchedule runs the stale-job reaper every ten minutes.
const reapSchedule = "*/10 * * * *"

// StartScheduler creates and starts an Asynq Scheduler for periodic tasks.
// Returns a stop function for graceful shutdown.
func StartScheduler(cfg *config.Config) (stop func(), err error) {
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := NewLogger(cfg.LogLevel, cfg.LogFormat)

	scheduler := asynq.NewScheduler(
		redisOpt,
		&asynq.SchedulerOpts{
			Location: time.UTC,
			LogLevel: asynq.InfoLevel,
			Logger:   &asynqLoggerAdapter{logger: logger},
		},
	)

	task := asynq.NewTask(
		TaskReapStaleJobs,
		nil, // no payload - the handler scans the whole table
		asynq.MaxRetry(1),
		asynq.Timeout(5*time.Minute),
		asynq.Unique(10*time.Minute), // prevent overlap if the scheduler runs twice
	)

	entryID, err := scheduler.Register(reapSchedule, task)
	if err != nil {
		return nil, fmt.Errorf("failed to register reaper schedule: %w", err)
	}

	if err := scheduler.Start(); err != nil {
		return nil, fmt.Errorf("failed to start scheduler: %w", err)
	}

	slog.Info(
		"Scheduler started",
		"schedule", reapSchedule,
		"entry_id", entryID,
	)

	return func() { scheduler.Shutdown() }, nil
}
