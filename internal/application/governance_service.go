package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tollgate/tollgate/internal/domain"
	"github.com/tollgate/tollgate/internal/domain/analysis"
	"github.com/tollgate/tollgate/internal/domain/decision"
	"github.com/tollgate/tollgate/internal/domain/scoring"
)

// ChangeAssessment is everything derived from one change and its diff.
type ChangeAssessment struct {
	Analysis       domain.ChangeAnalysis         `json:"analysis"`
	Assessment     domain.RiskAssessment         `json:"assessment"`
	Recommendation domain.DecisionRecommendation `json:"recommendation"`
}

// AssessChange runs analyze → evaluate → recommend. It is pure and needs
// no store.
func AssessChange(change domain.VersionChange, diff domain.UpstreamDiff, profile domain.EvaluationProfile, ev *scoring.Evaluator, policy decision.Policy) (ChangeAssessment, error) {
	a, err := analysis.Analyze(change, diff)
	if err != nil {
		return ChangeAssessment{}, err
	}
	ra, err := ev.Evaluate(scoring.Input{Change: change, Analysis: a}, profile)
	if err != nil {
		return ChangeAssessment{}, err
	}
	rec := decision.Recommend(decision.Input{Change: change, Analysis: a, Assessment: ra}, policy)
	return ChangeAssessment{Analysis: a, Assessment: ra, Recommendation: rec}, nil
}

// GovernanceService turns detected changes into evaluations and opens a
// decision for each.
type GovernanceService struct {
	evaluations domain.EvaluationStore
	diffs       domain.DiffSource
	profiles    domain.ProfileSet
	evaluator   *scoring.Evaluator
	policy      decision.Policy
	lifecycle   *LifecycleService
	notifier    domain.Notifier
	options
}

func NewGovernanceService(
	evaluations domain.EvaluationStore,
	diffs domain.DiffSource,
	profiles domain.ProfileSet,
	evaluator *scoring.Evaluator,
	policy decision.Policy,
	lifecycle *LifecycleService,
	notifier domain.Notifier,
	opts ...Option,
) *GovernanceService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	if evaluator == nil {
		evaluator = scoring.NewEvaluator()
	}
	return &GovernanceService{
		evaluations: evaluations,
		diffs:       diffs,
		profiles:    profiles,
		evaluator:   evaluator,
		policy:      policy,
		lifecycle:   lifecycle,
		notifier:    notifier,
		options:     buildOptions("governance", opts),
	}
}

// HandleChange is the detector's ChangeHandler.
func (g *GovernanceService) HandleChange(ctx context.Context, c domain.Component, change domain.VersionChange) error {
	_, err := g.Process(ctx, c, change)
	return err
}

// Process records an open evaluation for the change, assesses it and opens
// its decision. Any failure before the decision exists leaves the
// evaluation failed.
func (g *GovernanceService) Process(ctx context.Context, c domain.Component, change domain.VersionChange) (domain.Evaluation, error) {
	e := domain.Evaluation{
		ID:          g.newID(),
		ComponentID: c.ID,
		Change:      change,
		Status:      domain.EvaluationOpen,
		CreatedAt:   g.now(),
	}
	if err := g.evaluations.CreateEvaluation(ctx, e); err != nil {
		return e, fmt.Errorf("recording evaluation: %w", err)
	}
	g.logger.Info("change detected", slog.String("component", c.ID),
		slog.String("kind", string(change.Kind)), slog.String("from", change.FromVersion), slog.String("to", change.ToVersion))
	g.notifier.Notify(ctx, domain.EvaluationEvent(domain.EventChangeDetected, e, changeSummary(change), g.now()))

	diff := domain.UpstreamDiff{Advisories: change.Advisories}
	if change.Kind == domain.ChangeRelease && g.diffs != nil {
		fetched, err := g.diffs.Diff(ctx, c.Upstream, change.FromVersion, change.ToVersion)
		if err != nil {
			return g.fail(ctx, e, fmt.Errorf("fetching diff: %w", err))
		}
		diff = fetched
	}

	profile, ok := g.profiles.Resolve(c.Profile)
	if !ok {
		g.logger.Warn("unknown profile, using default", slog.String("component", c.ID), slog.String("profile", c.Profile))
	}

	assessed, err := AssessChange(change, diff, profile, g.evaluator, g.policy)
	if err != nil {
		return g.fail(ctx, e, err)
	}
	e.Analysis = &assessed.Analysis
	e.Assessment = &assessed.Assessment
	e.Recommendation = &assessed.Recommendation
	if err := g.evaluations.UpdateEvaluation(ctx, e); err != nil {
		return g.fail(ctx, e, fmt.Errorf("storing evaluation: %w", err))
	}

	g.metrics.EvaluationCompleted(assessed.Assessment.Tier, assessed.Recommendation.Action)
	g.logger.Info("evaluation completed", slog.String("component", c.ID), slog.String("evaluation", e.ID),
		slog.Float64("risk_score", assessed.Assessment.RiskScore), slog.String("recommendation", string(assessed.Recommendation.Action)))
	g.notifier.Notify(ctx, domain.EvaluationEvent(domain.EventEvaluationCompleted, e, assessed.Recommendation.Reason, g.now()))

	if g.lifecycle == nil {
		return e, nil
	}
	d, err := g.lifecycle.Open(ctx, e)
	if err != nil {
		if d.ID == "" {
			// Without a decision the open evaluation would suppress the
			// change forever; failing it lets the next scan re-raise it.
			return g.fail(ctx, e, fmt.Errorf("opening decision: %w", err))
		}
		e.DecisionID = d.ID
		return e, fmt.Errorf("opening decision: %w", err)
	}
	e.DecisionID = d.ID
	return e, nil
}

func (g *GovernanceService) fail(ctx context.Context, e domain.Evaluation, cause error) (domain.Evaluation, error) {
	e.Status = domain.EvaluationFailed
	e.Failure = cause.Error()
	level := slog.LevelWarn
	if errors.Is(cause, domain.ErrAnalysisInconsistent) {
		level = slog.LevelError
	}
	g.logger.Log(ctx, level, "evaluation failed", slog.String("component", e.ComponentID),
		slog.String("evaluation", e.ID), slog.Any("error", cause))
	if err := g.evaluations.UpdateEvaluation(ctx, e); err != nil {
		cause = errors.Join(cause, fmt.Errorf("marking evaluation failed: %w", err))
	}
	g.notifier.Notify(ctx, domain.EvaluationEvent(domain.EventEvaluationFailed, e, e.Failure, g.now()))
	return e, fmt.Errorf("evaluating %s: %w", e.ComponentID, cause)
}

func changeSummary(c domain.VersionChange) string {
	if c.Kind == domain.ChangeAdvisory {
		return fmt.Sprintf("%d new security advisories for %s", len(c.Advisories), c.ToVersion)
	}
	return fmt.Sprintf("new release %s (current %s)", c.ToVersion, c.FromVersion)
}
