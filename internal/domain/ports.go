package domain

import (
	"context"
	"time"
)

// ComponentStore persists the component registry.
type ComponentStore interface {
	// CreateComponent fails with ErrDuplicateComponent when the ID exists.
	CreateComponent(ctx context.Context, c Component) error
	GetComponent(ctx context.Context, id string) (Component, error)
	ListComponents(ctx context.Context, filter ComponentFilter) ([]Component, error)
	UpdateComponent(ctx context.Context, c Component) error
}

// EvaluationStore persists evaluations.
type EvaluationStore interface {
	// CreateEvaluation fails with ErrDuplicateEvaluation when an open
	// evaluation already exists for the same component and change key.
	CreateEvaluation(ctx context.Context, e Evaluation) error
	GetEvaluation(ctx context.Context, id string) (Evaluation, error)
	UpdateEvaluation(ctx context.Context, e Evaluation) error
	ListEvaluations(ctx context.Context, filter EvaluationFilter) ([]Evaluation, error)
}

// DecisionStore persists decisions and their archive.
type DecisionStore interface {
	CreateDecision(ctx context.Context, d Decision) error
	GetDecision(ctx context.Context, id string) (Decision, error)
	ListDecisions(ctx context.Context, filter DecisionFilter) ([]Decision, error)
	// UpdateDecision writes a non-terminal transition such as OVERDUE.
	UpdateDecision(ctx context.Context, d Decision) error
	// ResolveDecision writes a terminal decision and appends its archive
	// entry atomically. It fails with ErrAlreadyResolved when the stored
	// decision is already terminal.
	ResolveDecision(ctx context.Context, d Decision, archivedAt time.Time) error
	// History returns archive entries, newest first. An empty componentID
	// returns all of them.
	History(ctx context.Context, componentID string) ([]ArchiveEntry, error)
}

// ReminderStore persists deferred re-evaluation reminders.
type ReminderStore interface {
	CreateReminder(ctx context.Context, r Reminder) error
	DueReminders(ctx context.Context, now time.Time) ([]Reminder, error)
	MarkReminderFired(ctx context.Context, id string, at time.Time) error
}

// PipelineFilter narrows pipeline listings.
type PipelineFilter struct {
	ComponentID string
	Status      PipelineStatus
}

func (f PipelineFilter) Matches(p PipelineExecution) bool {
	if f.ComponentID != "" && f.ComponentID != p.ComponentID {
		return false
	}
	return f.Status == "" || f.Status == p.Status
}

// PipelineStore persists pipeline executions.
type PipelineStore interface {
	CreateExecution(ctx context.Context, p PipelineExecution) error
	GetExecution(ctx context.Context, id string) (PipelineExecution, error)
	UpdateExecution(ctx context.Context, p PipelineExecution) error
	ListExecutions(ctx context.Context, filter PipelineFilter) ([]PipelineExecution, error)
}

// Store bundles every repository behind one backend.
type Store interface {
	ComponentStore
	EvaluationStore
	DecisionStore
	ReminderStore
	PipelineStore
	Close() error
}

// UpstreamClient queries an upstream source of truth.
type UpstreamClient interface {
	// LatestRelease returns nil without error when the upstream has no release.
	LatestRelease(ctx context.Context, upstream string) (*Release, error)
	Advisories(ctx context.Context, upstream string) ([]Advisory, error)
}

// DiffSource fetches the raw change payload between two versions.
type DiffSource interface {
	Diff(ctx context.Context, upstream, from, to string) (UpstreamDiff, error)
}

// Sink delivers an event to one notification channel.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, e Event) error
}

// Notifier fans events out to sinks. It never reports delivery failures.
type Notifier interface {
	Notify(ctx context.Context, e Event)
}

// StageRunner executes one pipeline stage and returns its output.
type StageRunner interface {
	RunStage(ctx context.Context, req StageRequest) (string, error)
}

// Metrics records operational counters.
type Metrics interface {
	ComponentChecked(result string)
	ChangeDetected(kind ChangeKind)
	EvaluationCompleted(tier RiskTier, rec Recommendation)
	DecisionTransitioned(status DecisionStatus)
	PipelineFinished(status PipelineStatus)
	StageObserved(stage string, d time.Duration)
	NotificationDelivered(sink string, ok bool)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) ComponentChecked(string)                      {}
func (NopMetrics) ChangeDetected(ChangeKind)                    {}
func (NopMetrics) EvaluationCompleted(RiskTier, Recommendation) {}
func (NopMetrics) DecisionTransitioned(DecisionStatus)          {}
func (NopMetrics) PipelineFinished(PipelineStatus)              {}
func (NopMetrics) StageObserved(string, time.Duration)          {}
func (NopMetrics) NotificationDelivered(string, bool)           {}

// ConfigLoader loads configuration from a project directory.
type ConfigLoader interface {
	Load(projectPath string) (Config, error)
}

// Clock abstracts time for services that schedule deadlines.
type Clock func() time.Time
