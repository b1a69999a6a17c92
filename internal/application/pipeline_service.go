package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/tollgate/tollgate/internal/domain"
)

// PipelineService runs the staged rollout of accepted decisions.
type PipelineService struct {
	store        domain.Store
	runner       domain.StageRunner
	notifier     domain.Notifier
	dryRun       bool
	stageTimeout time.Duration
	options
}

func NewPipelineService(store domain.Store, runner domain.StageRunner, notifier domain.Notifier, cfg domain.PipelineConfig, opts ...Option) *PipelineService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &PipelineService{
		store:        store,
		runner:       runner,
		notifier:     notifier,
		dryRun:       cfg.DryRun,
		stageTimeout: cfg.StageTimeout,
		options:      buildOptions("pipeline", opts),
	}
}

// Run starts the first attempt for an accepted decision. A failing stage
// is not an error: the returned execution carries the failed status.
func (s *PipelineService) Run(ctx context.Context, d domain.Decision) (domain.PipelineExecution, error) {
	if d.Status != domain.StatusDecidedAccept {
		return domain.PipelineExecution{}, fmt.Errorf("decision %s is %s, not accepted", d.ID, d.Status)
	}
	return s.start(ctx, d, 1)
}

// Retry starts a fresh attempt for a failed execution.
func (s *PipelineService) Retry(ctx context.Context, executionID string) (domain.PipelineExecution, error) {
	prev, err := s.store.GetExecution(ctx, executionID)
	if err != nil {
		return domain.PipelineExecution{}, err
	}
	if prev.Status != domain.PipelineFailed {
		return domain.PipelineExecution{}, fmt.Errorf("execution %s is %s: %w", prev.ID, prev.Status, domain.ErrNotRetryable)
	}
	d, err := s.store.GetDecision(ctx, prev.DecisionID)
	if err != nil {
		return domain.PipelineExecution{}, fmt.Errorf("loading decision of execution %s: %w", prev.ID, err)
	}
	return s.start(ctx, d, prev.Attempt+1)
}

func (s *PipelineService) Get(ctx context.Context, id string) (domain.PipelineExecution, error) {
	return s.store.GetExecution(ctx, id)
}

func (s *PipelineService) List(ctx context.Context, filter domain.PipelineFilter) ([]domain.PipelineExecution, error) {
	return s.store.ListExecutions(ctx, filter)
}

func (s *PipelineService) start(ctx context.Context, d domain.Decision, attempt int) (domain.PipelineExecution, error) {
	e, err := s.store.GetEvaluation(ctx, d.EvaluationID)
	if err != nil {
		return domain.PipelineExecution{}, fmt.Errorf("loading evaluation of decision %s: %w", d.ID, err)
	}
	c, err := s.store.GetComponent(ctx, d.ComponentID)
	if err != nil {
		return domain.PipelineExecution{}, fmt.Errorf("loading component of decision %s: %w", d.ID, err)
	}

	var scenario *domain.Scenario
	if e.Recommendation != nil && len(e.Recommendation.Scenarios) > 0 {
		sc := e.Recommendation.Scenarios[0]
		scenario = &sc
	}

	p := domain.PipelineExecution{
		ID:           s.newID(),
		DecisionID:   d.ID,
		EvaluationID: d.EvaluationID,
		ComponentID:  d.ComponentID,
		Version:      d.Version,
		Status:       domain.PipelineRunning,
		DryRun:       s.dryRun,
		Attempt:      attempt,
		StartedAt:    s.now(),
	}
	if scenario != nil {
		p.Scenario = scenario.ID
	}
	for _, name := range domain.StagesFor(d.Recommendation) {
		p.Stages = append(p.Stages, domain.StageRun{Name: name, Status: domain.StagePending})
	}
	if err := s.store.CreateExecution(ctx, p); err != nil {
		return p, fmt.Errorf("recording execution: %w", err)
	}
	s.logger.Info("pipeline started", slog.String("execution", p.ID), slog.String("component", p.ComponentID),
		slog.String("version", p.Version), slog.Int("attempt", attempt), slog.Bool("dry_run", p.DryRun))

	base := domain.StageRequest{
		ExecutionID: p.ID,
		ComponentID: c.ID,
		Upstream:    c.Upstream,
		FromVersion: d.FromVersion,
		ToVersion:   d.Version,
		Scenario:    scenario,
	}
	failed := false
	for i := range p.Stages {
		st := &p.Stages[i]
		if failed {
			st.Status = domain.StageSkipped
			continue
		}
		s.runStage(ctx, st, base)
		if st.Status == domain.StageFailed {
			failed = true
		}
		if err := s.store.UpdateExecution(ctx, p); err != nil {
			return p, fmt.Errorf("recording stage %s: %w", st.Name, err)
		}
	}

	finished := s.now()
	p.FinishedAt = &finished
	p.Status = domain.PipelineCompleted
	if failed {
		p.Status = domain.PipelineFailed
	}
	if err := s.store.UpdateExecution(ctx, p); err != nil {
		return p, fmt.Errorf("recording execution result: %w", err)
	}
	s.metrics.PipelineFinished(p.Status)

	if failed {
		s.logger.Warn("pipeline failed", slog.String("execution", p.ID), slog.String("component", p.ComponentID))
		s.notifier.Notify(ctx, domain.PipelineEvent(domain.EventPipelineFailed, p, failureMessage(p), finished))
		return p, nil
	}
	if !p.DryRun {
		if err := s.markImplemented(ctx, e.ID, finished); err != nil {
			return p, err
		}
	}
	s.logger.Info("pipeline completed", slog.String("execution", p.ID), slog.String("component", p.ComponentID))
	msg := fmt.Sprintf("%s %s rolled out", p.ComponentID, p.Version)
	if p.DryRun {
		msg += " (dry run)"
	}
	s.notifier.Notify(ctx, domain.PipelineEvent(domain.EventPipelineCompleted, p, msg, finished))
	return p, nil
}

func (s *PipelineService) runStage(ctx context.Context, st *domain.StageRun, req domain.StageRequest) {
	started := s.now()
	st.StartedAt = &started
	st.Status = domain.StageRunning

	req.Stage = st.Name
	sctx := ctx
	if s.stageTimeout > 0 {
		var cancel context.CancelFunc
		sctx, cancel = context.WithTimeout(ctx, s.stageTimeout)
		defer cancel()
	}
	out, err := s.runner.RunStage(sctx, req)

	done := s.now()
	st.CompletedAt = &done
	st.Duration = done.Sub(started)
	st.Output = out
	switch {
	case err == nil:
		st.Status = domain.StageCompleted
	case errors.Is(err, domain.ErrStageSkipped):
		st.Status = domain.StageSkipped
	default:
		st.Status = domain.StageFailed
		st.Error = err.Error()
	}
	s.metrics.StageObserved(st.Name, st.Duration)
	s.logger.Debug("stage finished", slog.String("execution", req.ExecutionID), slog.String("stage", st.Name),
		slog.String("status", string(st.Status)), slog.Duration("duration", st.Duration))
}

// markImplemented is idempotent.
func (s *PipelineService) markImplemented(ctx context.Context, evaluationID string, at time.Time) error {
	e, err := s.store.GetEvaluation(ctx, evaluationID)
	if err != nil {
		return fmt.Errorf("loading evaluation %s: %w", evaluationID, err)
	}
	if e.Implemented {
		return nil
	}
	e.Implemented = true
	e.ImplementedAt = &at
	e.Status = domain.EvaluationImplemented
	if err := s.store.UpdateEvaluation(ctx, e); err != nil {
		return fmt.Errorf("marking evaluation %s implemented: %w", e.ID, err)
	}
	return nil
}

func failureMessage(p domain.PipelineExecution) string {
	for _, st := range p.Stages {
		if st.Status == domain.StageFailed {
			return fmt.Sprintf("stage %s failed: %s", st.Name, st.Error)
		}
	}
	return "pipeline failed"
}
