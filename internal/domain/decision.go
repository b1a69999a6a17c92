package domain

import (
	"fmt"
	"strings"
	"time"
)

// DecisionStatus is a state of the decision lifecycle.
type DecisionStatus string

const (
	StatusPending       DecisionStatus = "PENDING_DECISION"
	StatusOverdue       DecisionStatus = "OVERDUE"
	StatusDecidedAccept DecisionStatus = "DECIDED_ACCEPT"
	StatusDecidedReject DecisionStatus = "DECIDED_REJECT"
	StatusDecidedDefer  DecisionStatus = "DECIDED_DEFER"
)

// IsTerminal reports whether no further transition is allowed.
func (s DecisionStatus) IsTerminal() bool {
	switch s {
	case StatusDecidedAccept, StatusDecidedReject, StatusDecidedDefer:
		return true
	default:
		return false
	}
}

// ResolveAction is a human or policy resolution.
type ResolveAction string

const (
	ActionAccept ResolveAction = "accept"
	ActionReject ResolveAction = "reject"
	ActionDefer  ResolveAction = "defer"
)

// ParseResolveAction accepts the action names used on the operator interface.
func ParseResolveAction(s string) (ResolveAction, error) {
	switch a := ResolveAction(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAccept, ActionReject, ActionDefer:
		return a, nil
	default:
		return "", fmt.Errorf("unknown action %q (valid: accept, reject, defer)", s)
	}
}

// TerminalStatus maps a resolution to the state it lands in.
func (a ResolveAction) TerminalStatus() DecisionStatus {
	switch a {
	case ActionAccept:
		return StatusDecidedAccept
	case ActionReject:
		return StatusDecidedReject
	default:
		return StatusDecidedDefer
	}
}

// PolicyResolver is the resolver identity recorded for automatic resolutions.
const PolicyResolver = "policy"

// Decision is the governance record tied to one evaluation.
type Decision struct {
	ID             string         `json:"id"`
	EvaluationID   string         `json:"evaluation_id"`
	ComponentID    string         `json:"component_id"`
	FromVersion    string         `json:"from_version"`
	Version        string         `json:"version"`
	Recommendation Recommendation `json:"recommendation"`
	RiskScore      float64        `json:"risk_score"`
	RiskTier       RiskTier       `json:"risk_tier"`
	Status         DecisionStatus `json:"status"`
	CreatedAt      time.Time      `json:"created_at"`
	Deadline       time.Time      `json:"deadline"`
	OverdueAt      *time.Time     `json:"overdue_at,omitempty"`
	ResolvedBy     string         `json:"resolved_by,omitempty"`
	Rationale      string         `json:"rationale,omitempty"`
	ResolvedAt     *time.Time     `json:"resolved_at,omitempty"`
	Supersedes     string         `json:"supersedes,omitempty"`
}

// Resolve moves the decision to the terminal state matching action.
// Resolver and rationale are recorded verbatim.
func (d *Decision) Resolve(action ResolveAction, resolver, rationale string, at time.Time) error {
	if d.Status.IsTerminal() {
		return fmt.Errorf("decision %s is %s: %w", d.ID, d.Status, ErrAlreadyResolved)
	}
	if strings.TrimSpace(rationale) == "" || strings.TrimSpace(resolver) == "" {
		return ErrMissingRationale
	}
	d.Status = action.TerminalStatus()
	d.ResolvedBy = resolver
	d.Rationale = rationale
	d.ResolvedAt = &at
	return nil
}

// MarkOverdue flags a pending decision whose deadline passed. It reports
// whether the status changed.
func (d *Decision) MarkOverdue(now time.Time) bool {
	if d.Status != StatusPending || !now.After(d.Deadline) {
		return false
	}
	d.Status = StatusOverdue
	d.OverdueAt = &now
	return true
}

// DecisionFilter narrows decision listings.
type DecisionFilter struct {
	ComponentID string
	Statuses    []DecisionStatus
}

func (f DecisionFilter) Matches(d Decision) bool {
	if f.ComponentID != "" && f.ComponentID != d.ComponentID {
		return false
	}
	if len(f.Statuses) == 0 {
		return true
	}
	for _, s := range f.Statuses {
		if s == d.Status {
			return true
		}
	}
	return false
}

// OpenDecisions matches decisions still awaiting resolution.
var OpenDecisions = DecisionFilter{Statuses: []DecisionStatus{StatusPending, StatusOverdue}}

// ArchiveEntry is an immutable copy of a decision at a terminal transition.
type ArchiveEntry struct {
	Decision   Decision  `json:"decision"`
	ArchivedAt time.Time `json:"archived_at"`
}

// Reminder schedules re-evaluation of a deferred decision.
type Reminder struct {
	ID           string     `json:"id"`
	DecisionID   string     `json:"decision_id"`
	EvaluationID string     `json:"evaluation_id"`
	ComponentID  string     `json:"component_id"`
	DueAt        time.Time  `json:"due_at"`
	FiredAt      *time.Time `json:"fired_at,omitempty"`
}
