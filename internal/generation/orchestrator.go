// Package generation implements the asynchronous section-drafting job
// subsystem: the job store access pattern, the pre-flight budget gate, the
// lifecycle service behind the HTTP API, and the orchestrator that runs each
// job to a terminal state in the background.
package generation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/costs"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/events"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
)

// Producer drafts a single manuscript section from shared notes context.
// The call is synchronous, may take arbitrarily long, and may fail; the
// orchestrator treats all failures uniformly.
type Producer interface {
	DraftSection(ctx context.Context, section, notesContext string) (string, error)
}

// Orchestrator runs one generation job from pickup to a terminal state. It
// drafts the job's sections strictly sequentially, persists progress after
// every step, honors cooperative cancellation at section boundaries, and
// converts every failure into job state: nothing escapes Run in a way that
// would crash the worker or trigger a framework retry.
type Orchestrator struct {
	store    Store
	producer Producer
	events   *events.Publisher
	logger   *slog.Logger
}

// NewOrchestrator creates an Orchestrator. The events publisher may be nil.
func NewOrchestrator(store Store, producer Producer, publisher *events.Publisher, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:    store,
		producer: producer,
		events:   publisher,
		logger:   logger,
	}
}

// Run picks up a queued job by id and drives it to completed, failed, or
// cancelled. Returns an error only when the job row itself cannot be read or
// written; drafting failures are recorded on the job, not returned.
func (o *Orchestrator) Run(ctx context.Context, jobID string) error {
	job, err := o.store.GetJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to load job %s: %w", jobID, err)
	}

	// A job cancelled (or otherwise finalized) before pickup stays terminal.
	if job.IsTerminal() {
		o.logger.Info("Skipping job already in terminal state", "job_id", job.ID, "status", job.Status)
		return nil
	}

	if job.CancelRequested {
		return o.finishCancelled(ctx, job, nil)
	}

	// Referential re-check: a job pointing at a missing or mismatched
	// project/manuscript is a configuration error, fatal and non-retriable.
	if _, err := o.store.GetProject(ctx, job.ProjectID); err != nil {
		return o.finishFailed(ctx, job, nil, fmt.Sprintf("project %d not found", job.ProjectID))
	}
	manuscript, err := o.store.GetManuscript(ctx, job.ManuscriptID)
	if err != nil {
		return o.finishFailed(ctx, job, nil, fmt.Sprintf("manuscript %d not found", job.ManuscriptID))
	}
	if manuscript.ProjectID != job.ProjectID {
		return o.finishFailed(ctx, job, nil,
			fmt.Sprintf("manuscript %d does not belong to project %d", job.ManuscriptID, job.ProjectID))
	}

	sections, err := job.SectionList()
	if err != nil {
		return o.finishFailed(ctx, job, nil, fmt.Sprintf("invalid section list: %v", err))
	}

	// Rows created without sections (manual or legacy data) are repaired
	// here: resolve from the manuscript's current keys, else the canonical
	// list, and persist the resolution onto the job.
	if len(sections) == 0 {
		names, err := manuscript.SectionNames()
		if err != nil {
			return o.finishFailed(ctx, job, nil, fmt.Sprintf("invalid manuscript sections: %v", err))
		}
		sections = names
		if len(sections) == 0 {
			sections = costs.DefaultSections
		}
		if err := job.SetSectionList(sections); err != nil {
			return o.finishFailed(ctx, job, nil, fmt.Sprintf("failed to store section list: %v", err))
		}
	}

	// Transition to running, conditional on the job still being queued. A
	// cancel that landed between pickup and here terminates the row through
	// CancelIfQueued; overwriting that transition would reopen a cancelled
	// job.
	started, err := o.store.StartJob(ctx, job)
	if err != nil {
		return fmt.Errorf("failed to mark job %s running: %w", job.ID, err)
	}
	if !started {
		fresh, err := o.store.GetJob(ctx, job.ID)
		if err != nil {
			return fmt.Errorf("failed to reload job %s: %w", job.ID, err)
		}
		o.logger.Info("Skipping job no longer queued at start", "job_id", fresh.ID, "status", fresh.Status)
		return nil
	}

	manuscript.Status = models.ManuscriptStatusGenerating
	if err := o.store.UpdateManuscript(ctx, manuscript); err != nil {
		return o.finishFailed(ctx, job, nil, fmt.Sprintf("failed to update manuscript status: %v", err))
	}

	o.publish(ctx, job)
	o.logger.Info("Generation job running",
		"job_id", job.ID,
		"manuscript_id", job.ManuscriptID,
		"sections", len(sections),
	)

	total := len(sections)
	for i, section := range sections {
		// Cooperative cancellation checkpoint: the flag may have been
		// flipped by another request since the last persist, so re-read it.
		if o.cancelRequested(ctx, job) {
			return o.finishCancelled(ctx, job, manuscript)
		}

		section := section
		job.CurrentSection = &section
		if err := o.store.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to persist current section for job %s: %w", job.ID, err)
		}

		text, err := o.producer.DraftSection(ctx, section, job.NotesContext)
		if err != nil {
			// Sections drafted before the failure stay on the manuscript.
			o.logger.Error("Section draft failed",
				"job_id", job.ID,
				"section", section,
				"error", err.Error(),
			)
			return o.finishFailed(ctx, job, manuscript, fmt.Sprintf("drafting %q failed: %v", section, err))
		}

		sectionMap, err := manuscript.SectionMap()
		if err != nil {
			return o.finishFailed(ctx, job, manuscript, fmt.Sprintf("invalid manuscript sections: %v", err))
		}
		sectionMap[section] = text
		if err := manuscript.SetSectionMap(sectionMap); err != nil {
			return o.finishFailed(ctx, job, manuscript, fmt.Sprintf("failed to encode manuscript sections: %v", err))
		}
		if err := o.store.UpdateManuscript(ctx, manuscript); err != nil {
			return o.finishFailed(ctx, job, manuscript, fmt.Sprintf("failed to persist section %q: %v", section, err))
		}

		job.ProgressPercent = 100 * (i + 1) / total
		if err := o.store.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to persist progress for job %s: %w", job.ID, err)
		}
		o.publish(ctx, job)

		o.logger.Info("Section drafted",
			"job_id", job.ID,
			"section", section,
			"progress", job.ProgressPercent,
		)
	}

	return o.finishCompleted(ctx, job, manuscript)
}

// cancelRequested re-reads the job row and reports whether cancellation has
// been requested. Read failures are logged, not fatal: the loop continues on
// its local view of the flag.
func (o *Orchestrator) cancelRequested(ctx context.Context, job *models.GenerationJob) bool {
	fresh, err := o.store.GetJob(ctx, job.ID)
	if err != nil {
		o.logger.Warn("Failed to refresh cancel flag", "job_id", job.ID, "error", err.Error())
		return job.CancelRequested
	}
	job.CancelRequested = fresh.CancelRequested
	return job.CancelRequested
}

func (o *Orchestrator) finishCompleted(ctx context.Context, job *models.GenerationJob, manuscript *models.Manuscript) error {
	now := time.Now()
	job.Status = models.JobStatusCompleted
	job.ProgressPercent = 100
	job.CurrentSection = nil
	job.CompletedAt = &now
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to finalize job %s: %w", job.ID, err)
	}

	o.revertManuscript(ctx, job, manuscript)
	o.publish(ctx, job)
	o.logger.Info("Generation job completed", "job_id", job.ID, "manuscript_id", job.ManuscriptID)
	return nil
}

// finishFailed records a terminal failure on the job. Partial progress and
// already-drafted sections are preserved; only the manuscript status flag is
// reverted.
func (o *Orchestrator) finishFailed(ctx context.Context, job *models.GenerationJob, manuscript *models.Manuscript, detail string) error {
	now := time.Now()
	job.Status = models.JobStatusFailed
	job.ErrorDetail = &detail
	job.CurrentSection = nil
	job.CompletedAt = &now
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job %s failed: %w", job.ID, err)
	}

	o.revertManuscript(ctx, job, manuscript)
	o.publish(ctx, job)
	o.logger.Error("Generation job failed", "job_id", job.ID, "detail", detail)
	return nil
}

func (o *Orchestrator) finishCancelled(ctx context.Context, job *models.GenerationJob, manuscript *models.Manuscript) error {
	now := time.Now()
	job.Status = models.JobStatusCancelled
	job.CurrentSection = nil
	job.CompletedAt = &now
	if err := o.store.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to mark job %s cancelled: %w", job.ID, err)
	}

	o.revertManuscript(ctx, job, manuscript)
	o.publish(ctx, job)
	o.logger.Info("Generation job cancelled", "job_id", job.ID, "progress", job.ProgressPercent)
	return nil
}

// revertManuscript flips the manuscript status back to draft once no job is
// writing to it. Best effort: the status field is advisory.
func (o *Orchestrator) revertManuscript(ctx context.Context, job *models.GenerationJob, manuscript *models.Manuscript) {
	if manuscript == nil {
		return
	}
	manuscript.Status = models.ManuscriptStatusDraft
	if err := o.store.UpdateManuscript(ctx, manuscript); err != nil {
		o.logger.Warn("Failed to revert manuscript status",
			"job_id", job.ID,
			"manuscript_id", manuscript.ID,
			"error", err.Error(),
		)
	}
}

func (o *Orchestrator) publish(ctx context.Context, job *models.GenerationJob) {
	event := events.JobEvent{
		JobID:           job.ID,
		ManuscriptID:    job.ManuscriptID,
		ProjectID:       job.ProjectID,
		Status:          job.Status,
		ProgressPercent: job.ProgressPercent,
	}
	if job.CurrentSection != nil {
		event.CurrentSection = *job.CurrentSection
	}
	if job.ErrorDetail != nil {
		event.ErrorDetail = *job.ErrorDetail
	}

	if _, err := o.events.PublishJobEvent(ctx, event); err != nil {
		o.logger.Warn("Failed to publish job event", "job_id", job.ID, "error", err.Error())
	}
}
