package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/tollgate/tollgate/internal/domain"
)

// PipelineStarter starts the rollout of an accepted decision.
type PipelineStarter interface {
	Run(ctx context.Context, d domain.Decision) (domain.PipelineExecution, error)
}

// LifecycleConfig holds the decision timing and policy switches.
type LifecycleConfig struct {
	GraceBusinessDays int
	DeferDays         int
	AutoApprove       bool
}

// LifecycleConfigFrom reads the lifecycle settings from configuration.
func LifecycleConfigFrom(cfg domain.Config) LifecycleConfig {
	return LifecycleConfig{
		GraceBusinessDays: cfg.Decision.GraceBusinessDays,
		DeferDays:         cfg.Decision.DeferDays,
		AutoApprove:       cfg.Policy.AutoApprove,
	}
}

// ResolveRequest is a human or policy resolution.
type ResolveRequest struct {
	DecisionID string `json:"decision_id" validate:"required"`
	Action     string `json:"action"      validate:"required,oneof=accept reject defer"`
	Resolver   string `json:"resolver"`
	Rationale  string `json:"rationale"`
}

// ResolveResult carries the resolved decision and whatever it triggered.
type ResolveResult struct {
	Decision  domain.Decision           `json:"decision"`
	Execution *domain.PipelineExecution `json:"execution,omitempty"`
	Reminder  *domain.Reminder          `json:"reminder,omitempty"`
}

// SweepReport counts what one sweep changed.
type SweepReport struct {
	Overdue       int `json:"overdue"`
	Reevaluations int `json:"reevaluations"`
}

// Inspection is the full picture of one decision.
type Inspection struct {
	Decision   domain.Decision            `json:"decision"`
	Evaluation domain.Evaluation          `json:"evaluation"`
	Executions []domain.PipelineExecution `json:"executions,omitempty"`
}

// LifecycleService drives decisions from PENDING_DECISION to a terminal
// state and archives them.
type LifecycleService struct {
	store    domain.Store
	pipeline PipelineStarter
	notifier domain.Notifier
	cfg      LifecycleConfig
	validate *validator.Validate
	options
}

func NewLifecycleService(store domain.Store, pipeline PipelineStarter, notifier domain.Notifier, cfg LifecycleConfig, opts ...Option) *LifecycleService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if cfg.GraceBusinessDays <= 0 {
		cfg.GraceBusinessDays = 5
	}
	if cfg.DeferDays <= 0 {
		cfg.DeferDays = 14
	}
	return &LifecycleService{
		store:    store,
		pipeline: pipeline,
		notifier: notifier,
		cfg:      cfg,
		validate: validator.New(),
		options:  buildOptions("lifecycle", opts),
	}
}

// Open creates the decision for a completed evaluation. When policy
// auto-approval is on and the recommendation allows it, the decision is
// accepted right away.
func (s *LifecycleService) Open(ctx context.Context, e domain.Evaluation) (domain.Decision, error) {
	if e.Recommendation == nil || e.Assessment == nil {
		return domain.Decision{}, fmt.Errorf("evaluation %s has no recommendation", e.ID)
	}
	now := s.now()
	d := domain.Decision{
		ID:             s.newID(),
		EvaluationID:   e.ID,
		ComponentID:    e.ComponentID,
		FromVersion:    e.Change.FromVersion,
		Version:        e.Change.ToVersion,
		Recommendation: e.Recommendation.Action,
		RiskScore:      e.Assessment.RiskScore,
		RiskTier:       e.Assessment.Tier,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		Deadline:       domain.AddBusinessDays(now, s.cfg.GraceBusinessDays),
	}
	if created, err := s.open(ctx, d, e, "decision opened: "+e.Recommendation.Reason); err != nil {
		if created {
			return d, err
		}
		return domain.Decision{}, err
	}

	if s.cfg.AutoApprove && d.Recommendation == domain.RecommendAutoApprove {
		res, err := s.Resolve(ctx, ResolveRequest{
			DecisionID: d.ID,
			Action:     string(domain.ActionAccept),
			Resolver:   domain.PolicyResolver,
			Rationale:  "auto-approved by policy: " + e.Recommendation.Reason,
		})
		if err != nil {
			return d, fmt.Errorf("auto-approving decision %s: %w", d.ID, err)
		}
		return res.Decision, nil
	}
	return d, nil
}

// open stores d and links it to e. created reports whether the decision
// record exists, even when linking failed.
func (s *LifecycleService) open(ctx context.Context, d domain.Decision, e domain.Evaluation, msg string) (created bool, err error) {
	if err := s.store.CreateDecision(ctx, d); err != nil {
		return false, fmt.Errorf("recording decision: %w", err)
	}
	e.DecisionID = d.ID
	if err := s.store.UpdateEvaluation(ctx, e); err != nil {
		return true, fmt.Errorf("linking decision %s to evaluation %s: %w", d.ID, e.ID, err)
	}
	s.metrics.DecisionTransitioned(d.Status)
	s.logger.Info("decision opened", slog.String("decision", d.ID), slog.String("component", d.ComponentID),
		slog.String("recommendation", string(d.Recommendation)), slog.Time("deadline", d.Deadline))
	s.notifier.Notify(ctx, domain.DecisionEvent(domain.EventDecisionTransitioned, d, msg, s.now()))
	return true, nil
}

// Resolve applies accept, reject or defer. The terminal transition and its
// archive entry are written together.
func (s *LifecycleService) Resolve(ctx context.Context, req ResolveRequest) (ResolveResult, error) {
	req.Action = strings.ToLower(strings.TrimSpace(req.Action))
	if err := s.validate.Struct(req); err != nil {
		return ResolveResult{}, fmt.Errorf("invalid resolve request: %w", err)
	}
	action, err := domain.ParseResolveAction(req.Action)
	if err != nil {
		return ResolveResult{}, err
	}

	d, err := s.store.GetDecision(ctx, req.DecisionID)
	if err != nil {
		return ResolveResult{}, err
	}
	at := s.now()
	if err := d.Resolve(action, req.Resolver, req.Rationale, at); err != nil {
		return ResolveResult{Decision: d}, err
	}
	if err := s.store.ResolveDecision(ctx, d, at); err != nil {
		return ResolveResult{}, fmt.Errorf("resolving decision %s: %w", d.ID, err)
	}

	s.metrics.DecisionTransitioned(d.Status)
	s.logger.Info("decision resolved", slog.String("decision", d.ID), slog.String("status", string(d.Status)),
		slog.String("resolver", d.ResolvedBy))
	s.notifier.Notify(ctx, domain.DecisionEvent(domain.EventDecisionTransitioned, d, d.Rationale, at))

	res := ResolveResult{Decision: d}
	switch action {
	case domain.ActionAccept:
		if s.pipeline == nil {
			break
		}
		exec, err := s.pipeline.Run(ctx, d)
		if err != nil {
			return res, fmt.Errorf("decision %s accepted but the pipeline could not run: %w", d.ID, err)
		}
		res.Execution = &exec
	case domain.ActionReject:
		if err := s.setEvaluationStatus(ctx, d, domain.EvaluationRejected); err != nil {
			return res, err
		}
	case domain.ActionDefer:
		r := domain.Reminder{
			ID:           s.newID(),
			DecisionID:   d.ID,
			EvaluationID: d.EvaluationID,
			ComponentID:  d.ComponentID,
			DueAt:        at.AddDate(0, 0, s.cfg.DeferDays),
		}
		if err := s.store.CreateReminder(ctx, r); err != nil {
			return res, fmt.Errorf("scheduling reminder for decision %s: %w", d.ID, err)
		}
		res.Reminder = &r
	}
	return res, nil
}

func (s *LifecycleService) setEvaluationStatus(ctx context.Context, d domain.Decision, status domain.EvaluationStatus) error {
	e, err := s.store.GetEvaluation(ctx, d.EvaluationID)
	if err != nil {
		return fmt.Errorf("loading evaluation of decision %s: %w", d.ID, err)
	}
	e.Status = status
	if err := s.store.UpdateEvaluation(ctx, e); err != nil {
		return fmt.Errorf("marking evaluation %s %s: %w", e.ID, status, err)
	}
	return nil
}

// Sweep flags pending decisions past their deadline and fires due
// reminders. A fired reminder cancels its evaluation so the next detection
// cycle raises the change again.
func (s *LifecycleService) Sweep(ctx context.Context) (SweepReport, error) {
	now := s.now()
	var report SweepReport

	pending, err := s.store.ListDecisions(ctx, domain.DecisionFilter{Statuses: []domain.DecisionStatus{domain.StatusPending}})
	if err != nil {
		return report, fmt.Errorf("listing pending decisions: %w", err)
	}
	for _, d := range pending {
		if !d.MarkOverdue(now) {
			continue
		}
		if err := s.store.UpdateDecision(ctx, d); err != nil {
			if errors.Is(err, domain.ErrAlreadyResolved) {
				continue
			}
			return report, fmt.Errorf("marking decision %s overdue: %w", d.ID, err)
		}
		report.Overdue++
		s.metrics.DecisionTransitioned(d.Status)
		s.logger.Warn("decision overdue", slog.String("decision", d.ID), slog.String("component", d.ComponentID))
		s.notifier.Notify(ctx, domain.DecisionEvent(domain.EventDecisionOverdue, d, "decision deadline passed", now))
	}

	due, err := s.store.DueReminders(ctx, now)
	if err != nil {
		return report, fmt.Errorf("listing due reminders: %w", err)
	}
	for _, r := range due {
		fired, err := s.fireReminder(ctx, r, now)
		if err != nil {
			return report, err
		}
		if fired {
			report.Reevaluations++
		}
	}
	return report, nil
}

func (s *LifecycleService) fireReminder(ctx context.Context, r domain.Reminder, now time.Time) (bool, error) {
	e, err := s.store.GetEvaluation(ctx, r.EvaluationID)
	if err != nil {
		return false, fmt.Errorf("loading evaluation for reminder %s: %w", r.ID, err)
	}
	// A superseded decision no longer owns the evaluation.
	live := e.DecisionID == r.DecisionID && e.Status == domain.EvaluationOpen
	if live {
		e.Status = domain.EvaluationCancelled
		if err := s.store.UpdateEvaluation(ctx, e); err != nil {
			return false, fmt.Errorf("cancelling evaluation %s: %w", e.ID, err)
		}
	}
	if err := s.store.MarkReminderFired(ctx, r.ID, now); err != nil {
		return false, fmt.Errorf("marking reminder %s fired: %w", r.ID, err)
	}
	if !live {
		return false, nil
	}
	s.logger.Info("re-evaluation due", slog.String("component", r.ComponentID), slog.String("decision", r.DecisionID))
	s.notifier.Notify(ctx, domain.EvaluationEvent(domain.EventReevaluationDue, e, "deferred decision is due for re-evaluation", now))
	return true, nil
}

// Supersede opens a new pending decision for the evaluation behind a
// terminal one. It is the only way to correct a resolved decision.
func (s *LifecycleService) Supersede(ctx context.Context, decisionID, resolver, rationale string) (domain.Decision, error) {
	if strings.TrimSpace(resolver) == "" || strings.TrimSpace(rationale) == "" {
		return domain.Decision{}, domain.ErrMissingRationale
	}
	old, err := s.store.GetDecision(ctx, decisionID)
	if err != nil {
		return domain.Decision{}, err
	}
	if !old.Status.IsTerminal() {
		return domain.Decision{}, fmt.Errorf("decision %s is still %s and can be resolved directly", old.ID, old.Status)
	}
	e, err := s.store.GetEvaluation(ctx, old.EvaluationID)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("loading evaluation of decision %s: %w", old.ID, err)
	}
	if e.DecisionID != old.ID {
		return domain.Decision{}, fmt.Errorf("decision %s was already superseded by %s", old.ID, e.DecisionID)
	}
	if e.Status == domain.EvaluationRejected || e.Status == domain.EvaluationCancelled {
		e.Status = domain.EvaluationOpen
		if err := s.store.UpdateEvaluation(ctx, e); err != nil {
			return domain.Decision{}, fmt.Errorf("reopening evaluation %s: %w", e.ID, err)
		}
	}

	now := s.now()
	d := domain.Decision{
		ID:             s.newID(),
		EvaluationID:   old.EvaluationID,
		ComponentID:    old.ComponentID,
		FromVersion:    old.FromVersion,
		Version:        old.Version,
		Recommendation: old.Recommendation,
		RiskScore:      old.RiskScore,
		RiskTier:       old.RiskTier,
		Status:         domain.StatusPending,
		CreatedAt:      now,
		Deadline:       domain.AddBusinessDays(now, s.cfg.GraceBusinessDays),
		Supersedes:     old.ID,
	}
	msg := fmt.Sprintf("supersedes %s (%s by %s): %s", old.ID, old.Status, resolver, rationale)
	if _, err := s.open(ctx, d, e, msg); err != nil {
		return domain.Decision{}, err
	}
	return d, nil
}

// ListPending returns decisions awaiting resolution, overdue ones included.
func (s *LifecycleService) ListPending(ctx context.Context) ([]domain.Decision, error) {
	return s.store.ListDecisions(ctx, domain.OpenDecisions)
}

// Inspect loads a decision with its evaluation and pipeline runs.
func (s *LifecycleService) Inspect(ctx context.Context, id string) (Inspection, error) {
	d, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return Inspection{}, err
	}
	e, err := s.store.GetEvaluation(ctx, d.EvaluationID)
	if err != nil {
		return Inspection{}, fmt.Errorf("loading evaluation of decision %s: %w", id, err)
	}
	execs, err := s.store.ListExecutions(ctx, domain.PipelineFilter{ComponentID: d.ComponentID})
	if err != nil {
		return Inspection{}, fmt.Errorf("listing executions: %w", err)
	}
	insp := Inspection{Decision: d, Evaluation: e}
	for _, p := range execs {
		if p.DecisionID == d.ID {
			insp.Executions = append(insp.Executions, p)
		}
	}
	return insp, nil
}

// History returns archived decisions, newest first.
func (s *LifecycleService) History(ctx context.Context, componentID string) ([]domain.ArchiveEntry, error) {
	return s.store.History(ctx, componentID)
}
