package generation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/models"
)

func TestBudgetGatePerJobCap(t *testing.T) {
	store := newFakeStore()
	gate := NewBudgetGate(store)

	// Tiny cap: any real job exceeds it
	_, err := gate.Check(context.Background(), 1, []string{"introduction"}, "notes", "gpt-4o", 0.0001, 0)
	var budgetErr *BudgetError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("expected BudgetError, got %v", err)
	}
	if budgetErr.Reason != "per-job cap" {
		t.Errorf("expected per-job cap reason, got %q", budgetErr.Reason)
	}

	// Generous cap passes
	estimate, err := gate.Check(context.Background(), 1, []string{"introduction"}, "notes", "gpt-4o", 100, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if estimate.EstimatedCostUSDHigh <= 0 {
		t.Error("expected a positive high-end estimate")
	}
}

func TestBudgetGateDailyCapSumsTrailingWindow(t *testing.T) {
	store := newFakeStore()
	gate := NewBudgetGate(store)

	// Recent job inside the window
	recent := &models.GenerationJob{ProjectID: 1, ManuscriptID: 10, Status: models.JobStatusCompleted, EstimatedCostUSDHigh: 0.5}
	if err := store.CreateJob(context.Background(), recent); err != nil {
		t.Fatal(err)
	}

	// Old job outside the window must not count
	old := &models.GenerationJob{ProjectID: 1, ManuscriptID: 11, Status: models.JobStatusCompleted, EstimatedCostUSDHigh: 100, CreatedAt: time.Now().Add(-48 * time.Hour)}
	if err := store.CreateJob(context.Background(), old); err != nil {
		t.Fatal(err)
	}

	// 0.5 already spent; an estimate near zero-point-something pushes past 0.51
	_, err := gate.Check(context.Background(), 1, []string{"introduction"}, "notes", "gpt-4o", 0, 0.51)
	var budgetErr *BudgetError
	if !errors.As(err, &budgetErr) {
		t.Fatalf("expected BudgetError, got %v", err)
	}
	if budgetErr.Reason != "daily budget" {
		t.Errorf("expected daily budget reason, got %q", budgetErr.Reason)
	}

	// A roomy daily cap passes even with the recent spend
	if _, err := gate.Check(context.Background(), 1, []string{"introduction"}, "notes", "gpt-4o", 0, 1000); err != nil {
		t.Errorf("unexpected error with roomy cap: %v", err)
	}
}

func TestBudgetGateOtherProjectsDoNotCount(t *testing.T) {
	store := newFakeStore()
	gate := NewBudgetGate(store)

	other := &models.GenerationJob{ProjectID: 2, ManuscriptID: 20, Status: models.JobStatusCompleted, EstimatedCostUSDHigh: 999}
	if err := store.CreateJob(context.Background(), other); err != nil {
		t.Fatal(err)
	}

	if _, err := gate.Check(context.Background(), 1, []string{"introduction"}, "notes", "gpt-4o", 0, 1); err != nil {
		t.Errorf("spend on another project must not count against this one: %v", err)
	}
}

func TestBudgetGateZeroCapsDisabled(t *testing.T) {
	store := newFakeStore()
	gate := NewBudgetGate(store)

	if _, err := gate.Check(context.Background(), 1, []string{"introduction", "methods", "results"}, "notes", "gpt-4o", 0, 0); err != nil {
		t.Errorf("zero caps must disable enforcement: %v", err)
	}
}
