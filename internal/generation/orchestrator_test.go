package generation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/costs"
	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
)

func queueJob(t *testing.T, store *fakeStore, projectID, manuscriptID uint, sections []string) *models.GenerationJob {
	t.Helper()
	job := &models.GenerationJob{
		ProjectID:    projectID,
		ManuscriptID: manuscriptID,
		Status:       models.JobStatusQueued,
		NotesContext: "shared notes",
		RunCount:     1,
	}
	if err := job.SetSectionList(sections); err != nil {
		t.Fatal(err)
	}
	if err := store.CreateJob(context.Background(), job); err != nil {
		t.Fatal(err)
	}
	return job
}

func TestRunDraftsAllSectionsInOrder(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addManuscript(10, 1)
	producer := newFakeProducer()
	job := queueJob(t, store, 1, 10, []string{"introduction", "results"})

	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if final.Status != models.JobStatusCompleted {
		t.Errorf("expected status completed, got %s", final.Status)
	}
	if final.ProgressPercent != 100 {
		t.Errorf("expected progress 100, got %d", final.ProgressPercent)
	}
	if final.CurrentSection != nil {
		t.Errorf("expected current_section cleared, got %q", *final.CurrentSection)
	}
	if final.StartedAt == nil || final.CompletedAt == nil {
		t.Error("expected started_at and completed_at to be set")
	}
	if final.ErrorDetail != nil {
		t.Errorf("expected no error detail, got %q", *final.ErrorDetail)
	}

	sections := store.manuscriptSections(10)
	if sections["introduction"] != "introduction draft content" {
		t.Errorf("unexpected introduction text: %q", sections["introduction"])
	}
	if sections["results"] != "results draft content" {
		t.Errorf("unexpected results text: %q", sections["results"])
	}

	drafted := producer.draftedSections()
	if len(drafted) != 2 || drafted[0] != "introduction" || drafted[1] != "results" {
		t.Errorf("sections drafted out of order: %v", drafted)
	}

	manuscript, _ := store.GetManuscript(context.Background(), 10)
	if manuscript.Status != models.ManuscriptStatusDraft {
		t.Errorf("expected manuscript status reverted to draft, got %s", manuscript.Status)
	}
}

func TestRunFailureKeepsEarlierSections(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addManuscript(10, 1)
	producer := newFakeProducer()
	producer.failOn["results"] = errors.New("gateway timeout")
	job := queueJob(t, store, 1, 10, []string{"introduction", "results", "discussion"})

	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != models.JobStatusFailed {
		t.Errorf("expected status failed, got %s", final.Status)
	}
	if final.ErrorDetail == nil || !strings.Contains(*final.ErrorDetail, "gateway timeout") {
		t.Errorf("expected error detail to carry the underlying message, got %v", final.ErrorDetail)
	}
	if final.CurrentSection != nil {
		t.Error("expected current_section cleared on failure")
	}
	if final.CompletedAt == nil {
		t.Error("expected completed_at set on failure")
	}
	// One of three sections finished before the failure
	if final.ProgressPercent != 33 {
		t.Errorf("expected progress 33, got %d", final.ProgressPercent)
	}

	sections := store.manuscriptSections(10)
	if sections["introduction"] != "introduction draft content" {
		t.Error("expected first section to survive the failure")
	}
	if _, ok := sections["results"]; ok {
		t.Error("failed section must not be written")
	}
	if _, ok := sections["discussion"]; ok {
		t.Error("sections after the failure must not be drafted")
	}

	manuscript, _ := store.GetManuscript(context.Background(), 10)
	if manuscript.Status != models.ManuscriptStatusDraft {
		t.Errorf("expected manuscript status reverted to draft, got %s", manuscript.Status)
	}
}

func TestRunMissingManuscriptFailsJob(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	producer := newFakeProducer()
	job := queueJob(t, store, 1, 99, []string{"introduction"})

	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != models.JobStatusFailed {
		t.Errorf("expected status failed, got %s", final.Status)
	}
	if final.ErrorDetail == nil || !strings.Contains(*final.ErrorDetail, "manuscript") {
		t.Errorf("expected referential error detail, got %v", final.ErrorDetail)
	}
	if len(producer.draftedSections()) != 0 {
		t.Error("no sections should be drafted for a misconfigured job")
	}
}

func TestRunMismatchedProjectFailsJob(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addProject(2)
	store.addManuscript(10, 2) // belongs to project 2, job claims project 1
	producer := newFakeProducer()
	job := queueJob(t, store, 1, 10, []string{"introduction"})

	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != models.JobStatusFailed {
		t.Errorf("expected status failed, got %s", final.Status)
	}
	if final.ErrorDetail == nil || !strings.Contains(*final.ErrorDetail, "does not belong") {
		t.Errorf("expected mismatch detail, got %v", final.ErrorDetail)
	}
}

func TestRunResolvesEmptySectionList(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addManuscript(10, 1)
	producer := newFakeProducer()
	job := queueJob(t, store, 1, 10, nil)

	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != models.JobStatusCompleted {
		t.Fatalf("expected status completed, got %s", final.Status)
	}

	resolved, err := final.SectionList()
	if err != nil {
		t.Fatal(err)
	}
	if len(resolved) != len(costs.DefaultSections) {
		t.Fatalf("expected canonical section list persisted on the job, got %v", resolved)
	}
	for i, name := range costs.DefaultSections {
		if resolved[i] != name {
			t.Errorf("position %d: expected %s, got %s", i, name, resolved[i])
		}
	}

	sections := store.manuscriptSections(10)
	if len(sections) != len(costs.DefaultSections) {
		t.Errorf("expected %d drafted sections, got %d", len(costs.DefaultSections), len(sections))
	}
}

func TestRunCancelAtSectionBoundary(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addManuscript(10, 1)
	producer := newFakeProducer()
	job := queueJob(t, store, 1, 10, []string{"introduction", "methods", "results"})

	// Request cancellation after the first section completes; the loop must
	// observe it at the next boundary.
	producer.afterDraft = func(section string) {
		if section == "introduction" {
			if err := store.RequestCancel(context.Background(), job.ID); err != nil {
				t.Errorf("cancel request failed: %v", err)
			}
		}
	}

	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != models.JobStatusCancelled {
		t.Errorf("expected status cancelled, got %s", final.Status)
	}
	if final.ProgressPercent != 33 {
		t.Errorf("expected partial progress retained, got %d", final.ProgressPercent)
	}
	if drafted := producer.draftedSections(); len(drafted) != 1 {
		t.Errorf("expected drafting to stop after one section, drafted %v", drafted)
	}

	sections := store.manuscriptSections(10)
	if _, ok := sections["introduction"]; !ok {
		t.Error("expected partial results preserved on cancellation")
	}

	manuscript, _ := store.GetManuscript(context.Background(), 10)
	if manuscript.Status != models.ManuscriptStatusDraft {
		t.Errorf("expected manuscript left as draft, got %s", manuscript.Status)
	}
}

func TestRunCancelRequestedBeforeStart(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addManuscript(10, 1)
	producer := newFakeProducer()
	job := queueJob(t, store, 1, 10, []string{"introduction"})
	if err := store.RequestCancel(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != models.JobStatusCancelled {
		t.Errorf("expected status cancelled, got %s", final.Status)
	}
	if final.ProgressPercent != 0 {
		t.Errorf("expected progress 0, got %d", final.ProgressPercent)
	}
	if final.StartedAt != nil {
		t.Error("a job cancelled before pickup must never enter running")
	}
	if len(producer.draftedSections()) != 0 {
		t.Error("no sections should be drafted")
	}
}

func TestRunSkipsTerminalJob(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addManuscript(10, 1)
	producer := newFakeProducer()
	job := queueJob(t, store, 1, 10, []string{"introduction"})

	loaded, _ := store.GetJob(context.Background(), job.ID)
	loaded.Status = models.JobStatusCancelled
	if err := store.UpdateJob(context.Background(), loaded); err != nil {
		t.Fatal(err)
	}

	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != models.JobStatusCancelled {
		t.Errorf("terminal status must not change, got %s", final.Status)
	}
	if len(producer.draftedSections()) != 0 {
		t.Error("terminal jobs must not draft")
	}
}

func TestRunUnknownJobReturnsError(t *testing.T) {
	store := newFakeStore()
	orch := NewOrchestrator(store, newFakeProducer(), nil, testLogger())

	if err := orch.Run(context.Background(), "no-such-job"); !errors.Is(err, ErrJobNotFound) {
		t.Errorf("expected ErrJobNotFound, got %v", err)
	}
}

func TestRunProgressReachesHundredOnlyWhenCompleted(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addManuscript(10, 1)

	// Failure on the final section: progress stalls short of 100
	producer := newFakeProducer()
	producer.failOn["conclusion"] = errors.New("boom")
	job := queueJob(t, store, 1, 10, []string{"introduction", "conclusion"})

	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status == models.JobStatusCompleted {
		t.Fatal("job should have failed")
	}
	if final.ProgressPercent == 100 {
		t.Error("progress must reach 100 only on completion")
	}
}

func TestRunCancelDuringDraftSurvivesProgressPersist(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addManuscript(10, 1)
	producer := newFakeProducer()
	job := queueJob(t, store, 1, 10, []string{"introduction", "methods", "results"})

	// The cancel lands while the draft call is still in flight, before the
	// orchestrator writes the drafted section and its progress. Those writes
	// must not erase the flag.
	producer.afterDraft = func(section string) {
		if section == "introduction" {
			if err := store.RequestCancel(context.Background(), job.ID); err != nil {
				t.Errorf("cancel request failed: %v", err)
			}
		}
	}

	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if !final.CancelRequested {
		t.Error("cancel flag must survive the progress writes that follow the draft")
	}
	if final.Status != models.JobStatusCancelled {
		t.Errorf("expected status cancelled, got %s", final.Status)
	}
	if drafted := producer.draftedSections(); len(drafted) != 1 {
		t.Errorf("expected drafting to stop after one section, drafted %v", drafted)
	}
}

func TestUpdateJobPreservesCancelFlag(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addManuscript(10, 1)
	job := queueJob(t, store, 1, 10, []string{"introduction"})

	stale, err := store.GetJob(context.Background(), job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.RequestCancel(context.Background(), job.ID); err != nil {
		t.Fatal(err)
	}

	// A writer holding a pre-cancel copy persists progress; the flag set in
	// between must not be overwritten.
	stale.ProgressPercent = 50
	if err := store.UpdateJob(context.Background(), stale); err != nil {
		t.Fatal(err)
	}

	fresh, _ := store.GetJob(context.Background(), job.ID)
	if !fresh.CancelRequested {
		t.Error("cancel flag lost to a stale full-row write")
	}
	if fresh.ProgressPercent != 50 {
		t.Errorf("expected progress write applied, got %d", fresh.ProgressPercent)
	}
}

// cancelRacedStore flips a queued job to cancelled immediately after its
// first read, modeling a cancel that lands between pickup and the running
// transition.
type cancelRacedStore struct {
	*fakeStore
	mu    sync.Mutex
	raced bool
}

func (s *cancelRacedStore) GetJob(ctx context.Context, id string) (*models.GenerationJob, error) {
	job, err := s.fakeStore.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	first := !s.raced
	s.raced = true
	s.mu.Unlock()
	if first {
		if _, err := s.fakeStore.CancelIfQueued(ctx, id); err != nil {
			return nil, err
		}
	}
	return job, nil
}

func TestRunDoesNotReopenJobCancelledAfterPickup(t *testing.T) {
	inner := newFakeStore()
	inner.addProject(1)
	inner.addManuscript(10, 1)
	producer := newFakeProducer()
	job := queueJob(t, inner, 1, 10, []string{"introduction"})

	store := &cancelRacedStore{fakeStore: inner}
	orch := NewOrchestrator(store, producer, nil, testLogger())
	if err := orch.Run(context.Background(), job.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	final, _ := inner.GetJob(context.Background(), job.ID)
	if final.Status != models.JobStatusCancelled {
		t.Errorf("expected job to stay cancelled, got %s", final.Status)
	}
	if final.StartedAt != nil {
		t.Error("a job cancelled before start must not record a start time")
	}
	if drafted := producer.draftedSections(); len(drafted) != 0 {
		t.Errorf("expected no drafting, drafted %v", drafted)
	}
}

func TestStartJobRefusesNonQueued(t *testing.T) {
	store := newFakeStore()
	store.addProject(1)
	store.addManuscript(10, 1)
	job := queueJob(t, store, 1, 10, []string{"introduction"})

	if cancelled, err := store.CancelIfQueued(context.Background(), job.ID); err != nil || !cancelled {
		t.Fatalf("expected queued job to cancel, got %v %v", cancelled, err)
	}

	started, err := store.StartJob(context.Background(), job)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if started {
		t.Error("a cancelled job must not transition to running")
	}

	final, _ := store.GetJob(context.Background(), job.ID)
	if final.Status != models.JobStatusCancelled {
		t.Errorf("expected status cancelled, got %s", final.Status)
	}
}
