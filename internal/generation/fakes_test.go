package generation

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
	"github.com/google/uuid"
)

// fakeStore is an in-memory Store. It mirrors the production semantics the
// subsystem depends on: copy-on-read rows, and an atomic active-job check
// inside CreateJob.
type fakeStore struct {
	mu          sync.Mutex
	jobs        map[string]models.GenerationJob
	manuscripts map[uint]models.Manuscript
	projects    map[uint]models.Project
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		jobs:        make(map[string]models.GenerationJob),
		manuscripts: make(map[uint]models.Manuscript),
		projects:    make(map[uint]models.Project),
	}
}

func (s *fakeStore) addProject(id uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := models.Project{Title: fmt.Sprintf("project %d", id)}
	p.ID = id
	s.projects[id] = p
}

func (s *fakeStore) addManuscript(id, projectID uint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := models.Manuscript{ProjectID: projectID, Title: fmt.Sprintf("manuscript %d", id), Status: models.ManuscriptStatusDraft}
	m.ID = id
	s.manuscripts[id] = m
}

func (s *fakeStore) jobCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

func (s *fakeStore) CreateJob(ctx context.Context, job *models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.jobs {
		if existing.ManuscriptID == job.ManuscriptID && !existing.IsTerminal() {
			return ErrActiveJobExists
		}
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	s.jobs[job.ID] = *job
	return nil
}

func (s *fakeStore) GetJob(ctx context.Context, id string) (*models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	copied := job
	return &copied, nil
}

func (s *fakeStore) ListRecentJobs(ctx context.Context, manuscriptID uint, limit int) ([]models.GenerationJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	var jobs []models.GenerationJob
	for _, job := range s.jobs {
		if job.ManuscriptID == manuscriptID {
			jobs = append(jobs, job)
		}
	}
	for i := 0; i < len(jobs); i++ {
		for j := i + 1; j < len(jobs); j++ {
			if jobs[j].CreatedAt.After(jobs[i].CreatedAt) {
				jobs[i], jobs[j] = jobs[j], jobs[i]
			}
		}
	}
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (s *fakeStore) UpdateJob(ctx context.Context, job *models.GenerationJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	job.UpdatedAt = time.Now()
	copied := *job
	// cancel_requested is owned by RequestCancel; a stale caller copy must
	// not overwrite it. Mirrors the production store's column omit.
	copied.CancelRequested = existing.CancelRequested
	s.jobs[job.ID] = copied
	return nil
}

func (s *fakeStore) StartJob(ctx context.Context, job *models.GenerationJob) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.jobs[job.ID]
	if !ok {
		return false, ErrJobNotFound
	}
	if existing.Status != models.JobStatusQueued {
		return false, nil
	}
	now := time.Now()
	job.Status = models.JobStatusRunning
	job.ErrorDetail = nil
	job.StartedAt = &now
	job.CompletedAt = nil
	job.CurrentSection = nil
	job.ProgressPercent = 0
	copied := *job
	copied.CancelRequested = existing.CancelRequested
	copied.UpdatedAt = now
	s.jobs[job.ID] = copied
	return true, nil
}

func (s *fakeStore) RequestCancel(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return ErrJobNotFound
	}
	job.CancelRequested = true
	s.jobs[id] = job
	return nil
}

func (s *fakeStore) CancelIfQueued(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, ErrJobNotFound
	}
	if job.Status != models.JobStatusQueued {
		return false, nil
	}
	now := time.Now()
	job.Status = models.JobStatusCancelled
	job.CompletedAt = &now
	s.jobs[id] = job
	return true, nil
}

func (s *fakeStore) SumEstimatesSince(ctx context.Context, projectID uint, since time.Time) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, job := range s.jobs {
		if job.ProjectID == projectID && !job.CreatedAt.Before(since) {
			total += job.EstimatedCostUSDHigh
		}
	}
	return total, nil
}

func (s *fakeStore) GetProject(ctx context.Context, id uint) (*models.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	project, ok := s.projects[id]
	if !ok {
		return nil, ErrProjectNotFound
	}
	copied := project
	return &copied, nil
}

func (s *fakeStore) GetManuscript(ctx context.Context, id uint) (*models.Manuscript, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	manuscript, ok := s.manuscripts[id]
	if !ok {
		return nil, ErrManuscriptNotFound
	}
	copied := manuscript
	return &copied, nil
}

func (s *fakeStore) UpdateManuscript(ctx context.Context, manuscript *models.Manuscript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.manuscripts[manuscript.ID]; !ok {
		return ErrManuscriptNotFound
	}
	s.manuscripts[manuscript.ID] = *manuscript
	return nil
}

func (s *fakeStore) manuscriptSections(id uint) map[string]string {
	s.mu.Lock()
	manuscript := s.manuscripts[id]
	s.mu.Unlock()
	sections, err := manuscript.SectionMap()
	if err != nil {
		panic(err)
	}
	return sections
}

// fakeProducer drafts "<section> draft content" and can be told to fail on
// specific sections. The afterDraft hook runs once a section succeeds, which
// tests use to flip the cancel flag mid-job.
type fakeProducer struct {
	mu         sync.Mutex
	failOn     map[string]error
	drafted    []string
	afterDraft func(section string)
}

func newFakeProducer() *fakeProducer {
	return &fakeProducer{failOn: make(map[string]error)}
}

func (p *fakeProducer) DraftSection(ctx context.Context, section, notesContext string) (string, error) {
	p.mu.Lock()
	err := p.failOn[section]
	p.mu.Unlock()
	if err != nil {
		return "", err
	}
	p.mu.Lock()
	p.drafted = append(p.drafted, section)
	hook := p.afterDraft
	p.mu.Unlock()
	if hook != nil {
		hook(section)
	}
	return fmt.Sprintf("%s draft content", section), nil
}

func (p *fakeProducer) draftedSections() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.drafted...)
}

// fakeEnqueuer records enqueued job ids without spawning anything.
type fakeEnqueuer struct {
	mu       sync.Mutex
	enqueued []string
	err      error
}

func (e *fakeEnqueuer) EnqueueGenerateSections(jobID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return e.err
	}
	e.enqueued = append(e.enqueued, jobID)
	return nil
}

func (e *fakeEnqueuer) enqueuedIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.enqueued...)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
