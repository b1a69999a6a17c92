// Package memory is an in-process domain.Store. Records are copied on the
// way in and out so callers never share state with the store.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tollgate/tollgate/internal/domain"
)

type Store struct {
	mu          sync.RWMutex
	components  map[string]domain.Component
	evaluations map[string]domain.Evaluation
	decisions   map[string]domain.Decision
	archive     []domain.ArchiveEntry
	reminders   map[string]domain.Reminder
	executions  map[string]domain.PipelineExecution
}

// New returns an empty store.
func New() *Store {
	return &Store{
		components:  make(map[string]domain.Component),
		evaluations: make(map[string]domain.Evaluation),
		decisions:   make(map[string]domain.Decision),
		reminders:   make(map[string]domain.Reminder),
		executions:  make(map[string]domain.PipelineExecution),
	}
}

func (s *Store) Close() error { return nil }

// --- components ---

func (s *Store) CreateComponent(_ context.Context, c domain.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.components[c.ID]; ok {
		return fmt.Errorf("component %q: %w", c.ID, domain.ErrDuplicateComponent)
	}
	s.components[c.ID] = cloneComponent(c)
	return nil
}

func (s *Store) GetComponent(_ context.Context, id string) (domain.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.components[id]
	if !ok {
		return domain.Component{}, domain.NotFoundError("component", id)
	}
	return cloneComponent(c), nil
}

func (s *Store) ListComponents(_ context.Context, filter domain.ComponentFilter) ([]domain.Component, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Component, 0, len(s.components))
	for _, c := range s.components {
		if filter.Matches(c) {
			out = append(out, cloneComponent(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateComponent(_ context.Context, c domain.Component) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.components[c.ID]; !ok {
		return domain.NotFoundError("component", c.ID)
	}
	s.components[c.ID] = cloneComponent(c)
	return nil
}

// --- evaluations ---

func (s *Store) CreateEvaluation(_ context.Context, e domain.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evaluations[e.ID]; ok {
		return fmt.Errorf("evaluation id %q already used", e.ID)
	}
	if err := s.checkOpenLocked(e); err != nil {
		return err
	}
	s.evaluations[e.ID] = cloneEvaluation(e)
	return nil
}

// checkOpenLocked rejects e when another open evaluation holds its change key.
func (s *Store) checkOpenLocked(e domain.Evaluation) error {
	if e.Status != domain.EvaluationOpen {
		return nil
	}
	for id, existing := range s.evaluations {
		if id != e.ID && existing.Status == domain.EvaluationOpen && existing.ComponentID == e.ComponentID && existing.Key() == e.Key() {
			return fmt.Errorf("component %s change %s: %w", e.ComponentID, e.Key(), domain.ErrDuplicateEvaluation)
		}
	}
	return nil
}

func (s *Store) GetEvaluation(_ context.Context, id string) (domain.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.evaluations[id]
	if !ok {
		return domain.Evaluation{}, domain.NotFoundError("evaluation", id)
	}
	return cloneEvaluation(e), nil
}

func (s *Store) UpdateEvaluation(_ context.Context, e domain.Evaluation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.evaluations[e.ID]; !ok {
		return domain.NotFoundError("evaluation", e.ID)
	}
	if err := s.checkOpenLocked(e); err != nil {
		return err
	}
	s.evaluations[e.ID] = cloneEvaluation(e)
	return nil
}

func (s *Store) ListEvaluations(_ context.Context, filter domain.EvaluationFilter) ([]domain.Evaluation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Evaluation
	for _, e := range s.evaluations {
		if filter.Matches(e) {
			out = append(out, cloneEvaluation(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// --- decisions ---

func (s *Store) CreateDecision(_ context.Context, d domain.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.decisions[d.ID]; ok {
		return fmt.Errorf("decision id %q already used", d.ID)
	}
	s.decisions[d.ID] = cloneDecision(d)
	return nil
}

func (s *Store) GetDecision(_ context.Context, id string) (domain.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.decisions[id]
	if !ok {
		return domain.Decision{}, domain.NotFoundError("decision", id)
	}
	return cloneDecision(d), nil
}

func (s *Store) ListDecisions(_ context.Context, filter domain.DecisionFilter) ([]domain.Decision, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Decision
	for _, d := range s.decisions {
		if filter.Matches(d) {
			out = append(out, cloneDecision(d))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *Store) UpdateDecision(_ context.Context, d domain.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.decisions[d.ID]
	if !ok {
		return domain.NotFoundError("decision", d.ID)
	}
	if cur.Status.IsTerminal() {
		return fmt.Errorf("decision %s is %s: %w", d.ID, cur.Status, domain.ErrAlreadyResolved)
	}
	s.decisions[d.ID] = cloneDecision(d)
	return nil
}

func (s *Store) ResolveDecision(_ context.Context, d domain.Decision, archivedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.decisions[d.ID]
	if !ok {
		return domain.NotFoundError("decision", d.ID)
	}
	if cur.Status.IsTerminal() {
		return fmt.Errorf("decision %s is %s: %w", d.ID, cur.Status, domain.ErrAlreadyResolved)
	}
	s.decisions[d.ID] = cloneDecision(d)
	s.archive = append(s.archive, domain.ArchiveEntry{Decision: cloneDecision(d), ArchivedAt: archivedAt})
	return nil
}

func (s *Store) History(_ context.Context, componentID string) ([]domain.ArchiveEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.ArchiveEntry
	for i := len(s.archive) - 1; i >= 0; i-- {
		e := s.archive[i]
		if componentID == "" || e.Decision.ComponentID == componentID {
			out = append(out, domain.ArchiveEntry{Decision: cloneDecision(e.Decision), ArchivedAt: e.ArchivedAt})
		}
	}
	return out, nil
}

// --- reminders ---

func (s *Store) CreateReminder(_ context.Context, r domain.Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reminders[r.ID] = r
	return nil
}

func (s *Store) DueReminders(_ context.Context, now time.Time) ([]domain.Reminder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Reminder
	for _, r := range s.reminders {
		if r.FiredAt == nil && !r.DueAt.After(now) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

func (s *Store) MarkReminderFired(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reminders[id]
	if !ok {
		return domain.NotFoundError("reminder", id)
	}
	r.FiredAt = &at
	s.reminders[id] = r
	return nil
}

// --- pipeline executions ---

func (s *Store) CreateExecution(_ context.Context, p domain.PipelineExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[p.ID]; ok {
		return fmt.Errorf("execution id %q already used", p.ID)
	}
	s.executions[p.ID] = cloneExecution(p)
	return nil
}

func (s *Store) GetExecution(_ context.Context, id string) (domain.PipelineExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.executions[id]
	if !ok {
		return domain.PipelineExecution{}, domain.NotFoundError("pipeline execution", id)
	}
	return cloneExecution(p), nil
}

func (s *Store) UpdateExecution(_ context.Context, p domain.PipelineExecution) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.executions[p.ID]; !ok {
		return domain.NotFoundError("pipeline execution", p.ID)
	}
	s.executions[p.ID] = cloneExecution(p)
	return nil
}

func (s *Store) ListExecutions(_ context.Context, filter domain.PipelineFilter) ([]domain.PipelineExecution, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.PipelineExecution
	for _, p := range s.executions {
		if filter.Matches(p) {
			out = append(out, cloneExecution(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneComponent(c domain.Component) domain.Component {
	c.Monitor = append([]domain.MonitorFlag(nil), c.Monitor...)
	c.SeenAdvisories = append([]string(nil), c.SeenAdvisories...)
	return c
}

func cloneEvaluation(e domain.Evaluation) domain.Evaluation {
	e.Change.Advisories = append([]domain.Advisory(nil), e.Change.Advisories...)
	if e.Analysis != nil {
		a := *e.Analysis
		e.Analysis = &a
	}
	if e.Assessment != nil {
		a := *e.Assessment
		a.Dimensions = append([]domain.DimensionScore(nil), a.Dimensions...)
		e.Assessment = &a
	}
	if e.Recommendation != nil {
		r := *e.Recommendation
		r.Scenarios = append([]domain.Scenario(nil), r.Scenarios...)
		e.Recommendation = &r
	}
	if e.ImplementedAt != nil {
		t := *e.ImplementedAt
		e.ImplementedAt = &t
	}
	return e
}

func cloneDecision(d domain.Decision) domain.Decision {
	if d.ResolvedAt != nil {
		t := *d.ResolvedAt
		d.ResolvedAt = &t
	}
	if d.OverdueAt != nil {
		t := *d.OverdueAt
		d.OverdueAt = &t
	}
	return d
}

func cloneExecution(p domain.PipelineExecution) domain.PipelineExecution {
	p.Stages = append([]domain.StageRun(nil), p.Stages...)
	if p.FinishedAt != nil {
		t := *p.FinishedAt
		p.FinishedAt = &t
	}
	return p
}
