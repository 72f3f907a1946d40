package model

import "time"

// InvestigationType selects how many analysis passes an investigation runs.
type InvestigationType string

const (
	TypeQuickScan     InvestigationType = "quick-scan"
	TypeComprehensive InvestigationType = "comprehensive"
	TypeDeepAnalysis  InvestigationType = "deep-analysis"
)

// Valid returns true if the investigation type is a known value.
func (t InvestigationType) Valid() bool {
	switch t {
	case TypeQuickScan, TypeComprehensive, TypeDeepAnalysis:
		return true
	default:
		return false
	}
}

// ThreatLevel is the final verdict classification for an investigation.
type ThreatLevel string

const (
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// InvestigationStatus tracks an investigation through its lifecycle.
type InvestigationStatus string

const (
	StatusQueued    InvestigationStatus = "queued"
	StatusAnalyzing InvestigationStatus = "analyzing"
	StatusComplete  InvestigationStatus = "complete"
	StatusFailed    InvestigationStatus = "failed"
)

// InvestigationRequest is the immutable submission handed to the engine.
type InvestigationRequest struct {
	ID        string            `json:"id"`
	UserID    string            `json:"user_id"`
	Tier      Tier              `json:"tier"`
	Type      InvestigationType `json:"type"`
	Artifacts []Artifact        `json:"artifacts"`
	Context   string            `json:"context,omitempty"`
	Priority  int               `json:"priority,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// ModelAttempt records one failed provider call made on an artifact's behalf.
type ModelAttempt struct {
	Model   string `json:"model"`
	ErrKind string `json:"err_kind"`
	Err     string `json:"err,omitempty"`
}

// ArtifactDiagnostic reports the attempts made on an artifact whose analysis
// exhausted every model.
type ArtifactDiagnostic struct {
	Artifact Artifact       `json:"artifact"`
	Attempts []ModelAttempt `json:"attempts"`
}

// Finding is one per-artifact analysis outcome inside a report.
type Finding struct {
	Artifact   Artifact `json:"artifact"`
	Confidence float64  `json:"confidence"`
	Analysis   string   `json:"analysis"`
	ModelsUsed []string `json:"models_used"`
}

// InvestigationResult is the terminal report for one request.
type InvestigationResult struct {
	ID              string               `json:"id"`
	UserID          string               `json:"user_id"`
	ThreatLevel     ThreatLevel          `json:"threat_level"`
	Confidence      float64              `json:"confidence"`
	Summary         string               `json:"summary"`
	Findings        []Finding            `json:"findings"`
	Diagnostics     []ArtifactDiagnostic `json:"diagnostics,omitempty"`
	Evidence        string               `json:"evidence,omitempty"`
	Recommendations []string             `json:"recommendations"`
	ModelsUsed      []string             `json:"models_used"`
	CostUSD         float64              `json:"cost_usd"`
	Duration        float64              `json:"duration_secs"`
	CompletedAt     time.Time            `json:"completed_at"`
}
