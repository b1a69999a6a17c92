package domain

import "time"

// Pipeline stage names.
const (
	StagePreparation        = "preparation"
	StageApplication        = "application"
	StageValidation         = "validation"
	StageExtendedValidation = "extended_validation"
	StageDeployment         = "deployment"
)

// DefaultStages is the fixed rollout order.
var DefaultStages = []string{StagePreparation, StageApplication, StageValidation, StageDeployment}

// StagesFor returns the stage list for a recommendation. Conditional
// approvals carry an extra validation stage right after validation.
func StagesFor(rec Recommendation) []string {
	if rec != RecommendConditionalApprove {
		return append([]string(nil), DefaultStages...)
	}
	return []string{StagePreparation, StageApplication, StageValidation, StageExtendedValidation, StageDeployment}
}

// StageStatus is the state of one pipeline stage.
type StageStatus string

const (
	StagePending   StageStatus = "pending"
	StageRunning   StageStatus = "running"
	StageCompleted StageStatus = "completed"
	StageFailed    StageStatus = "failed"
	StageSkipped   StageStatus = "skipped"
)

// StageRun records one stage execution.
type StageRun struct {
	Name        string        `json:"name"`
	Status      StageStatus   `json:"status"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	Duration    time.Duration `json:"duration"`
	Error       string        `json:"error,omitempty"`
	Output      string        `json:"output,omitempty"`
}

// PipelineStatus is the overall state of an execution.
type PipelineStatus string

const (
	PipelineRunning   PipelineStatus = "running"
	PipelineCompleted PipelineStatus = "completed"
	PipelineFailed    PipelineStatus = "failed"
)

// PipelineExecution tracks a staged rollout triggered by an accepted decision.
type PipelineExecution struct {
	ID           string         `json:"id"`
	DecisionID   string         `json:"decision_id"`
	EvaluationID string         `json:"evaluation_id"`
	ComponentID  string         `json:"component_id"`
	Version      string         `json:"version"`
	Scenario     string         `json:"scenario,omitempty"`
	Stages       []StageRun     `json:"stages"`
	Status       PipelineStatus `json:"status"`
	DryRun       bool           `json:"dry_run"`
	Attempt      int            `json:"attempt"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   *time.Time     `json:"finished_at,omitempty"`
}

// StageNames returns the stage names in execution order.
func (p PipelineExecution) StageNames() []string {
	names := make([]string, len(p.Stages))
	for i, s := range p.Stages {
		names[i] = s.Name
	}
	return names
}

// StageRequest is what a StageRunner receives for one stage.
type StageRequest struct {
	ExecutionID string
	Stage       string
	ComponentID string
	Upstream    string
	FromVersion string
	ToVersion   string
	Scenario    *Scenario
}
