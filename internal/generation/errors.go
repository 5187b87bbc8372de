package generation

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound is returned when a generation job id resolves to nothing.
	ErrJobNotFound = errors.New("generation job not found")

	// ErrProjectNotFound is returned when the referenced project does not exist.
	ErrProjectNotFound = errors.New("project not found")

	// ErrManuscriptNotFound is returned when the referenced manuscript does not
	// exist or does not belong to the referenced project.
	ErrManuscriptNotFound = errors.New("manuscript not found")

	// ErrActiveJobExists is returned when a queued or running job already
	// exists for the manuscript. Enforced by a partial unique index at insert.
	ErrActiveJobExists = errors.New("an active generation job already exists for this manuscript")

	// ErrJobNotRetriable is returned when retry targets a job that is not in a
	// terminal non-completed state.
	ErrJobNotRetriable = errors.New("only failed or cancelled jobs can be retried")
)

// BudgetError reports a spend ceiling that the job's high-end estimate would
// exceed. No job row is written when it is returned.
type BudgetError struct {
	Reason       string // "per-job cap" or "daily budget"
	LimitUSD     float64
	EstimatedUSD float64
}

func (e *BudgetError) Error() string {
	return fmt.Sprintf("%s exceeded: estimated $%.4f against limit $%.4f", e.Reason, e.EstimatedUSD, e.LimitUSD)
}
