package events

// Stream name constants
const (
	StreamJobEvents = "generation:job-events"
)

// Schema version constant
const (
	SchemaVersionV1 = "v1"
)

// JobEvent is an observational record of a generation-job transition.
// Consumers (dashboards, audit sinks) must not treat the stream as the
// source of truth; the job row remains the contract and clients poll it.
type JobEvent struct {
	JobID           string `json:"job_id"`
	ManuscriptID    uint   `json:"manuscript_id"`
	ProjectID       uint   `json:"project_id"`
	Status          string `json:"status"`
	ProgressPercent int    `json:"progress_percent"`
	CurrentSection  string `json:"current_section,omitempty"`
	ErrorDetail     string `json:"error_detail,omitempty"`
}
