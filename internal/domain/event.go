package domain

import "time"

// EventType names a notification-worthy transition.
type EventType string

const (
	EventChangeDetected       EventType = "change_detected"
	EventEvaluationCompleted  EventType = "evaluation_completed"
	EventEvaluationFailed     EventType = "evaluation_failed"
	EventDecisionTransitioned EventType = "decision_transitioned"
	EventDecisionOverdue      EventType = "decision_overdue"
	EventReevaluationDue      EventType = "reevaluation_due"
	EventPipelineCompleted    EventType = "pipeline_completed"
	EventPipelineFailed       EventType = "pipeline_failed"
	EventComponentCheckFailed EventType = "component_check_failed"
)

// EventTypes lists every event type.
var EventTypes = []EventType{
	EventChangeDetected, EventEvaluationCompleted, EventEvaluationFailed,
	EventDecisionTransitioned, EventDecisionOverdue, EventReevaluationDue,
	EventPipelineCompleted, EventPipelineFailed, EventComponentCheckFailed,
}

// Event is the payload handed to notification sinks.
type Event struct {
	Type           EventType  `json:"type"`
	Component      string     `json:"component"`
	FromVersion    string     `json:"fromVersion,omitempty"`
	ToVersion      string     `json:"toVersion,omitempty"`
	RiskScore      float64    `json:"riskScore"`
	RiskLevel      string     `json:"riskLevel,omitempty"`
	Recommendation string     `json:"recommendation,omitempty"`
	Deadline       *time.Time `json:"deadline,omitempty"`
	DecisionID     string     `json:"decisionId,omitempty"`
	EvaluationID   string     `json:"evaluationId,omitempty"`
	ExecutionID    string     `json:"executionId,omitempty"`
	Status         string     `json:"status,omitempty"`
	Message        string     `json:"message"`
	OccurredAt     time.Time  `json:"occurredAt"`
}

// DecisionEvent builds an event describing a decision.
func DecisionEvent(t EventType, d Decision, msg string, at time.Time) Event {
	deadline := d.Deadline
	return Event{
		Type:           t,
		Component:      d.ComponentID,
		FromVersion:    d.FromVersion,
		ToVersion:      d.Version,
		RiskScore:      d.RiskScore,
		RiskLevel:      d.RiskTier.Label(),
		Recommendation: string(d.Recommendation),
		Deadline:       &deadline,
		DecisionID:     d.ID,
		EvaluationID:   d.EvaluationID,
		Status:         string(d.Status),
		Message:        msg,
		OccurredAt:     at,
	}
}

// EvaluationEvent builds an event describing an evaluation.
func EvaluationEvent(t EventType, e Evaluation, msg string, at time.Time) Event {
	ev := Event{
		Type:         t,
		Component:    e.ComponentID,
		FromVersion:  e.Change.FromVersion,
		ToVersion:    e.Change.ToVersion,
		DecisionID:   e.DecisionID,
		EvaluationID: e.ID,
		Status:       string(e.Status),
		Message:      msg,
		OccurredAt:   at,
	}
	if e.Assessment != nil {
		ev.RiskScore = e.Assessment.RiskScore
		ev.RiskLevel = e.Assessment.Tier.Label()
	}
	if e.Recommendation != nil {
		ev.Recommendation = string(e.Recommendation.Action)
	}
	return ev
}

// PipelineEvent builds an event describing a pipeline execution.
func PipelineEvent(t EventType, p PipelineExecution, msg string, at time.Time) Event {
	return Event{
		Type:         t,
		Component:    p.ComponentID,
		ToVersion:    p.Version,
		DecisionID:   p.DecisionID,
		EvaluationID: p.EvaluationID,
		ExecutionID:  p.ID,
		Status:       string(p.Status),
		Message:      msg,
		OccurredAt:   at,
	}
}
