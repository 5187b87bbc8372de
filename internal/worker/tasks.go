package worker

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	TaskGenerateSections = "generation:draft-sections"
	TaskReapStaleJobs    = "generation:reap-stale-jobs"
)

// generatePayload is the wire payload for a section-drafting task
type generatePayload struct {
	JobID string `json:"job_id"`
}

// Enqueuer hands generation jobs to the Asynq queue. It implements
// generation.TaskEnqueuer.
type Enqueuer struct {
	client *asynq.Client
}

// NewEnqueuer creates an Enqueuer connected to the given Redis instance.
func NewEnqueuer(redisURL string) (*Enqueuer, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, err
	}
	return &Enqueuer{client: asynq.NewClient(opt)}, nil
}

// Close closes the underlying Asynq client connection.
func (e *Enqueuer) Close() error {
	return e.client.Close()
}

// EnqueueGenerateSections enqueues the drafting task for one generation job.
// MaxRetry is zero on purpose: the orchestrator converts every drafting
// failure into job state, and retries are an explicit user operation that
// creates a new lineage-linked job. A framework retry would re-run a job the
// record store already shows as failed.
func (e *Enqueuer) EnqueueGenerateSections(jobID string) error {
	payload, err := json.Marshal(generatePayload{JobID: jobID})
	if err != nil {
		return err
	}

	task := asynq.NewTask(
		TaskGenerateSections,
		payload,
		asynq.MaxRetry(0),
		asynq.Timeout(2*time.Hour),
		asynq.Retention(24*time.Hour),
	)

	_, err = e.client.Enqueue(task)
	return err
}
