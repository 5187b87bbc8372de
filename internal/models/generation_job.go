package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// GenerationJob status constants
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// GenerationJob is one request to draft a fixed, ordered set of manuscript
// sections from shared notes context. Jobs are append-only history: a retry
// creates a new row linked through ParentJobID rather than reopening the old
// one, and terminal rows are never mutated again.
type GenerationJob struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	ProjectID    uint `gorm:"not null;index" json:"project_id"`
	ManuscriptID uint `gorm:"not null;index" json:"manuscript_id"`

	Status          string         `gorm:"not null;default:'queued';index" json:"status"`
	CancelRequested bool           `gorm:"not null;default:false" json:"cancel_requested"`
	Sections        datatypes.JSON `gorm:"type:jsonb;not null;default:'[]'" json:"sections"`
	NotesContext    string         `gorm:"type:text;not null;default:''" json:"notes_context"`
	ProgressPercent int            `gorm:"not null;default:0" json:"progress_percent"`
	CurrentSection  *string        `json:"current_section"`
	ErrorDetail     *string        `gorm:"type:text" json:"error_detail"`

	// Cost estimate snapshot, computed once at enqueue time for audit and
	// display. Independent of actual spend incurred.
	PricingModel              string  `gorm:"not null;default:''" json:"pricing_model"`
	EstimatedInputTokens      int64   `gorm:"not null;default:0" json:"estimated_input_tokens"`
	EstimatedOutputTokensLow  int64   `gorm:"not null;default:0" json:"estimated_output_tokens_low"`
	EstimatedOutputTokensHigh int64   `gorm:"not null;default:0" json:"estimated_output_tokens_high"`
	EstimatedCostUSDLow       float64 `gorm:"column:estimated_cost_usd_low;not null;default:0" json:"estimated_cost_usd_low"`
	EstimatedCostUSDHigh      float64 `gorm:"column:estimated_cost_usd_high;not null;default:0" json:"estimated_cost_usd_high"`

	// Retry lineage
	ParentJobID *string `gorm:"type:uuid" json:"parent_job_id"`
	RunCount    int     `gorm:"not null;default:1" json:"run_count"`

	StartedAt   *time.Time `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// BeforeCreate assigns a UUID primary key if one has not been set.
func (j *GenerationJob) BeforeCreate(tx *gorm.DB) error {
	if j.ID == "" {
		j.ID = uuid.New().String()
	}
	return nil
}

// IsTerminal reports whether the job has reached a final state.
func (j *GenerationJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// SectionList decodes the ordered section names stored on the job.
func (j *GenerationJob) SectionList() ([]string, error) {
	var sections []string
	if len(j.Sections) == 0 {
		return sections, nil
	}
	if err := json.Unmarshal(j.Sections, &sections); err != nil {
		return nil, err
	}
	return sections, nil
}

// SetSectionList encodes the ordered section names onto the job. The list is
// fixed at creation time; the orchestrator only writes it when repairing rows
// created without one.
func (j *GenerationJob) SetSectionList(sections []string) error {
	data, err := json.Marshal(sections)
	if err != nil {
		return err
	}
	j.Sections = datatypes.JSON(data)
	return nil
}
