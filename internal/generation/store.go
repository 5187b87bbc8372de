package generation

import (
	"context"
	"errors"
	"time"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
	"gorm.io/gorm"
)

// List limits for recent-job queries
const (
	defaultListLimit = 10
	maxListLimit     = 50
)

// Store is the persistence surface the generation subsystem needs. The GORM
// implementation below is the production store; tests substitute in-memory
// fakes.
type Store interface {
	CreateJob(ctx context.Context, job *models.GenerationJob) error
	GetJob(ctx context.Context, id string) (*models.GenerationJob, error)
	ListRecentJobs(ctx context.Context, manuscriptID uint, limit int) ([]models.GenerationJob, error)
	UpdateJob(ctx context.Context, job *models.GenerationJob) error
	StartJob(ctx context.Context, job *models.GenerationJob) (bool, error)
	RequestCancel(ctx context.Context, id string) error
	CancelIfQueued(ctx context.Context, id string) (bool, error)
	SumEstimatesSince(ctx context.Context, projectID uint, since time.Time) (float64, error)

	GetProject(ctx context.Context, id uint) (*models.Project, error)
	GetManuscript(ctx context.Context, id uint) (*models.Manuscript, error)
	UpdateManuscript(ctx context.Context, manuscript *models.Manuscript) error
}

// GormStore implements Store over the Postgres record store.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a Store backed by the given database handle.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// CreateJob inserts a new job row. The partial unique index on
// (manuscript_id) WHERE status IN ('queued','running') makes the insert
// itself the check-and-insert: a concurrent enqueue for the same manuscript
// loses the race inside Postgres and surfaces here as ErrActiveJobExists.
func (s *GormStore) CreateJob(ctx context.Context, job *models.GenerationJob) error {
	if err := s.db.WithContext(ctx).Create(job).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrActiveJobExists
		}
		return err
	}
	return nil
}

// GetJob fetches a job by id.
func (s *GormStore) GetJob(ctx context.Context, id string) (*models.GenerationJob, error) {
	var job models.GenerationJob
	if err := s.db.WithContext(ctx).First(&job, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &job, nil
}

// ListRecentJobs returns jobs for a manuscript, most recent first. The limit
// is clamped to [1, maxListLimit]; zero or negative limits use the default.
func (s *GormStore) ListRecentJobs(ctx context.Context, manuscriptID uint, limit int) ([]models.GenerationJob, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var jobs []models.GenerationJob
	err := s.db.WithContext(ctx).
		Where("manuscript_id = ?", manuscriptID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}
	return jobs, nil
}

// UpdateJob rewrites the job row except for cancel_requested. The flag is
// owned by RequestCancel and may flip between a caller's read and its write;
// writing the caller's stale copy back would silently undo a cancellation.
func (s *GormStore) UpdateJob(ctx context.Context, job *models.GenerationJob) error {
	return s.db.WithContext(ctx).Omit("cancel_requested").Save(job).Error
}

// StartJob transitions a job to running only if it is still queued, resetting
// the progress fields and persisting the (possibly repaired) section list in
// the same conditional update. Returns false when the job left the queued
// state in the meantime, for example through CancelIfQueued.
func (s *GormStore) StartJob(ctx context.Context, job *models.GenerationJob) (bool, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", job.ID, models.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":           models.JobStatusRunning,
			"error_detail":     nil,
			"started_at":       now,
			"completed_at":     nil,
			"current_section":  nil,
			"progress_percent": 0,
			"sections":         job.Sections,
		})
	if result.Error != nil {
		return false, result.Error
	}
	if result.RowsAffected == 0 {
		return false, nil
	}
	job.Status = models.JobStatusRunning
	job.ErrorDetail = nil
	job.StartedAt = &now
	job.CompletedAt = nil
	job.CurrentSection = nil
	job.ProgressPercent = 0
	return true, nil
}

// RequestCancel flips only the cancel_requested flag so it cannot clobber
// progress fields the orchestrator is writing concurrently.
func (s *GormStore) RequestCancel(ctx context.Context, id string) error {
	result := s.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ?", id).
		Update("cancel_requested", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrJobNotFound
	}
	return nil
}

// CancelIfQueued transitions a job to cancelled only if it is still queued,
// in one conditional update. Returns true when the transition happened.
func (s *GormStore) CancelIfQueued(ctx context.Context, id string) (bool, error) {
	now := time.Now()
	result := s.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("id = ? AND status = ?", id, models.JobStatusQueued).
		Updates(map[string]interface{}{
			"status":       models.JobStatusCancelled,
			"completed_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// SumEstimatesSince totals the high-end cost estimates of all jobs created
// for a project since the given time, regardless of their eventual status.
func (s *GormStore) SumEstimatesSince(ctx context.Context, projectID uint, since time.Time) (float64, error) {
	var total float64
	err := s.db.WithContext(ctx).
		Model(&models.GenerationJob{}).
		Where("project_id = ? AND created_at >= ?", projectID, since).
		Select("COALESCE(SUM(estimated_cost_usd_high), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return total, nil
}

// GetProject fetches a project by id.
func (s *GormStore) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	var project models.Project
	if err := s.db.WithContext(ctx).First(&project, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProjectNotFound
		}
		return nil, err
	}
	return &project, nil
}

// GetManuscript fetches a manuscript by id.
func (s *GormStore) GetManuscript(ctx context.Context, id uint) (*models.Manuscript, error) {
	var manuscript models.Manuscript
	if err := s.db.WithContext(ctx).First(&manuscript, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrManuscriptNotFound
		}
		return nil, err
	}
	return &manuscript, nil
}

// UpdateManuscript rewrites the full manuscript row.
func (s *GormStore) UpdateManuscript(ctx context.Context, manuscript *models.Manuscript) error {
	return s.db.WithContext(ctx).Save(manuscript).Error
}
