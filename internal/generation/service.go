package generation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/costs"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
)

// TaskEnqueuer hands a created job off to the background execution layer.
// The worker package provides the Asynq-backed implementation.
type TaskEnqueuer interface {
	EnqueueGenerateSections(jobID string) error
}

// Service implements the job lifecycle operations behind the HTTP API:
// enqueue, fetch, list, cancel, retry.
type Service struct {
	store    Store
	gate     *BudgetGate
	enqueuer TaskEnqueuer
	logger   *slog.Logger

	// Defaults applied when a request supplies no caps. Zero disables the
	// corresponding ceiling.
	DefaultPerJobCapUSD   float64
	DefaultDailyBudgetUSD float64
	DefaultModel          string
}

// NewService creates a Service.
func NewService(store Store, gate *BudgetGate, enqueuer TaskEnqueuer, logger *slog.Logger) *Service {
	return &Service{
		store:    store,
		gate:     gate,
		enqueuer: enqueuer,
		logger:   logger,
	}
}

// EnqueueParams are the inputs to Enqueue. Nil cap pointers fall back to the
// service defaults; explicit zero disables the ceiling for this request.
type EnqueueParams struct {
	ProjectID             uint
	ManuscriptID          uint
	Sections              []string
	NotesContext          string
	Model                 string
	PerJobCapUSD          *float64
	ProjectDailyBudgetUSD *float64
}

// Enqueue validates references, runs the budget gate, creates the job row in
// queued state, and hands it to the background worker. The section list is
// fixed here: explicit request sections, else the manuscript's current keys,
// else the canonical default list (resolved by the estimator and again by
// the orchestrator on pickup).
func (s *Service) Enqueue(ctx context.Context, params EnqueueParams, opts ...enqueueOption) (*models.GenerationJob, error) {
	if _, err := s.store.GetProject(ctx, params.ProjectID); err != nil {
		return nil, err
	}
	manuscript, err := s.store.GetManuscript(ctx, params.ManuscriptID)
	if err != nil {
		return nil, err
	}
	if manuscript.ProjectID != params.ProjectID {
		return nil, ErrManuscriptNotFound
	}

	sections := params.Sections
	if len(sections) == 0 {
		names, err := manuscript.SectionNames()
		if err != nil {
			return nil, fmt.Errorf("invalid manuscript sections: %w", err)
		}
		sections = names
	}
	// The list is fixed now, before the gate, so the estimate and the job
	// row always describe the same sections.
	if len(sections) == 0 {
		sections = costs.DefaultSections
	}

	model := params.Model
	if model == "" {
		model = s.DefaultModel
	}

	perJobCap := s.DefaultPerJobCapUSD
	if params.PerJobCapUSD != nil {
		perJobCap = *params.PerJobCapUSD
	}
	dailyCap := s.DefaultDailyBudgetUSD
	if params.ProjectDailyBudgetUSD != nil {
		dailyCap = *params.ProjectDailyBudgetUSD
	}

	estimate, err := s.gate.Check(ctx, params.ProjectID, sections, params.NotesContext, model, perJobCap, dailyCap)
	if err != nil {
		return nil, err
	}

	job := &models.GenerationJob{
		ProjectID:                 params.ProjectID,
		ManuscriptID:              params.ManuscriptID,
		Status:                    models.JobStatusQueued,
		NotesContext:              params.NotesContext,
		ProgressPercent:           0,
		PricingModel:              estimate.PricingModel,
		EstimatedInputTokens:      estimate.EstimatedInputTokens,
		EstimatedOutputTokensLow:  estimate.EstimatedOutputTokensLow,
		EstimatedOutputTokensHigh: estimate.EstimatedOutputTokensHigh,
		EstimatedCostUSDLow:       estimate.EstimatedCostUSDLow,
		EstimatedCostUSDHigh:      estimate.EstimatedCostUSDHigh,
		RunCount:                  1,
	}
	if err := job.SetSectionList(sections); err != nil {
		return nil, fmt.Errorf("failed to encode section list: %w", err)
	}
	for _, opt := range opts {
		opt(job)
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, err
	}

	if err := s.enqueuer.EnqueueGenerateSections(job.ID); err != nil {
		// The row exists but no worker will pick it up; fail it so the
		// caller is not left polling a job that never starts.
		detail := "failed to enqueue generation task"
		job.Status = models.JobStatusFailed
		job.ErrorDetail = &detail
		if updateErr := s.store.UpdateJob(ctx, job); updateErr != nil {
			s.logger.Error("Failed to mark unenqueued job failed", "job_id", job.ID, "error", updateErr.Error())
		}
		return nil, fmt.Errorf("failed to enqueue generation task: %w", err)
	}

	s.logger.Info("Generation job enqueued",
		"job_id", job.ID,
		"manuscript_id", job.ManuscriptID,
		"sections", len(sections),
		"estimated_cost_usd_high", job.EstimatedCostUSDHigh,
	)

	return job, nil
}

// Get fetches a job by id.
func (s *Service) Get(ctx context.Context, id string) (*models.GenerationJob, error) {
	return s.store.GetJob(ctx, id)
}

// ListRecent returns a manuscript's jobs, most recent first.
func (s *Service) ListRecent(ctx context.Context, manuscriptID uint, limit int) ([]models.GenerationJob, error) {
	return s.store.ListRecentJobs(ctx, manuscriptID, limit)
}

// Cancel requests cooperative cancellation. A still-queued job transitions to
// cancelled immediately; a running job stops at its next section boundary.
// Idempotent: cancelling a terminal job returns it unchanged.
func (s *Service) Cancel(ctx context.Context, id string) (*models.GenerationJob, error) {
	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.IsTerminal() {
		return job, nil
	}

	if err := s.store.RequestCancel(ctx, id); err != nil {
		return nil, err
	}

	// Conditional transition: only wins if the job never started running.
	cancelled, err := s.store.CancelIfQueued(ctx, id)
	if err != nil {
		return nil, err
	}
	if cancelled {
		s.logger.Info("Queued generation job cancelled before pickup", "job_id", id)
	} else {
		s.logger.Info("Cancellation requested for running job", "job_id", id)
	}

	return s.store.GetJob(ctx, id)
}

// RetryOverrides optionally replace the parent job's inputs on retry.
type RetryOverrides struct {
	Sections     []string
	NotesContext *string
	Model        string
}

// Retry creates a new job linked to a failed or cancelled parent. The new
// job restarts the full section list from the beginning; it does not resume
// mid-section. Re-drafting sections that already succeeded is an accepted
// cost of the simple model.
func (s *Service) Retry(ctx context.Context, id string, overrides RetryOverrides) (*models.GenerationJob, error) {
	parent, err := s.store.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if parent.Status != models.JobStatusFailed && parent.Status != models.JobStatusCancelled {
		return nil, ErrJobNotRetriable
	}

	sections := overrides.Sections
	if len(sections) == 0 {
		sections, err = parent.SectionList()
		if err != nil {
			return nil, fmt.Errorf("invalid parent section list: %w", err)
		}
	}

	notes := parent.NotesContext
	if overrides.NotesContext != nil {
		notes = *overrides.NotesContext
	}

	model := parent.PricingModel
	if overrides.Model != "" {
		model = overrides.Model
	}

	return s.Enqueue(ctx, EnqueueParams{
		ProjectID:    parent.ProjectID,
		ManuscriptID: parent.ManuscriptID,
		Sections:     sections,
		NotesContext: notes,
		Model:        model,
	}, withLineage(parent))
}

// withLineage threads parent linkage through Enqueue without widening its
// public parameter surface.
type enqueueOption func(*models.GenerationJob)

func withLineage(parent *models.GenerationJob) enqueueOption {
	return func(job *models.GenerationJob) {
		parentID := parent.ID
		job.ParentJobID = &parentID
		job.RunCount = parent.RunCount + 1
	}
}
