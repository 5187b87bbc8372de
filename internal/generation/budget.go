package generation

import (
	"context"
	"time"

	"github.com/ciaranpgc-a11y/research-os-api-sub000/internal/costs"
)

// dailyBudgetWindow is the trailing window summed for the project daily
// budget. A rolling 24 hours, not a calendar day: the ceiling cannot be
// dodged by enqueueing just before midnight.
const dailyBudgetWindow = 24 * time.Hour

// BudgetGate performs the pre-flight spend checks before a job row is
// created. It never runs inside the orchestrator; a job that was admitted
// is never re-budgeted mid-flight.
type BudgetGate struct {
	store Store
}

// NewBudgetGate creates a BudgetGate over the given store.
func NewBudgetGate(store Store) *BudgetGate {
	return &BudgetGate{store: store}
}

// Check computes the job's cost estimate and applies the per-job and rolling
// daily project ceilings. A cap of zero or less means that ceiling is not
// enforced. Comparisons use the high-end estimate, so admission errs on the
// conservative side. The single-active-job conflict is not checked here; the
// job store's atomic insert enforces it.
func (g *BudgetGate) Check(ctx context.Context, projectID uint, sections []string, notesContext, model string, perJobCapUSD, dailyCapUSD float64) (costs.Estimate, error) {
	estimate := costs.EstimateJob(sections, notesContext, model)

	if perJobCapUSD > 0 && estimate.EstimatedCostUSDHigh > perJobCapUSD {
		return costs.Estimate{}, &BudgetError{
			Reason:       "per-job cap",
			LimitUSD:     perJobCapUSD,
			EstimatedUSD: estimate.EstimatedCostUSDHigh,
		}
	}

	if dailyCapUSD > 0 {
		since := time.Now().Add(-dailyBudgetWindow)
		spent, err := g.store.SumEstimatesSince(ctx, projectID, since)
		if err != nil {
			return costs.Estimate{}, err
		}
		if spent+estimate.EstimatedCostUSDHigh > dailyCapUSD {
			return costs.Estimate{}, &BudgetError{
				Reason:       "daily budget",
				LimitUSD:     dailyCapUSD,
				EstimatedUSD: spent + estimate.EstimatedCostUSDHigh,
			}
		}
	}

	return estimate, nil
}
