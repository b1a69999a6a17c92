// Package storetest holds the behaviour every domain.Store must share.
package storetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/domain"
)

var base = time.Date(2026, 10, 12, 9, 0, 0, 0, time.UTC)

// Run exercises a store built fresh by open for each subtest.
func Run(t *testing.T, open func(t *testing.T) domain.Store) {
	t.Run("components", func(t *testing.T) { testComponents(t, open(t)) })
	t.Run("open evaluation is unique", func(t *testing.T) { testOpenEvaluationUnique(t, open(t)) })
	t.Run("concurrent evaluation creation", func(t *testing.T) { testConcurrentEvaluations(t, open(t)) })
	t.Run("decision resolution archives", func(t *testing.T) { testResolveArchives(t, open(t)) })
	t.Run("concurrent resolution", func(t *testing.T) { testConcurrentResolve(t, open(t)) })
	t.Run("overdue races resolution", func(t *testing.T) { testOverdueRacesResolve(t, open(t)) })
	t.Run("reminders", func(t *testing.T) { testReminders(t, open(t)) })
	t.Run("executions", func(t *testing.T) { testExecutions(t, open(t)) })
}

func testComponents(t *testing.T, s domain.Store) {
	ctx := context.Background()
	c := domain.Component{
		ID: "libfoo", Upstream: "https://github.com/acme/libfoo", Version: "v1.0.0",
		Monitor: []domain.MonitorFlag{domain.MonitorReleases}, Profile: "default",
		Status: domain.ComponentActive, CreatedAt: base,
	}
	require.NoError(t, s.CreateComponent(ctx, c))
	assert.ErrorIs(t, s.CreateComponent(ctx, c), domain.ErrDuplicateComponent)

	got, err := s.GetComponent(ctx, "libfoo")
	require.NoError(t, err)
	assert.Equal(t, c, got)

	_, err = s.GetComponent(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	paused := c
	paused.ID = "libbar"
	paused.Status = domain.ComponentPaused
	require.NoError(t, s.CreateComponent(ctx, paused))

	active, err := s.ListComponents(ctx, domain.ComponentFilter{Status: domain.ComponentActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "libfoo", active[0].ID)

	all, err := s.ListComponents(ctx, domain.ComponentFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	got.Version = "v1.1.0"
	require.NoError(t, s.UpdateComponent(ctx, got))
	again, err := s.GetComponent(ctx, "libfoo")
	require.NoError(t, err)
	assert.Equal(t, "v1.1.0", again.Version)

	assert.ErrorIs(t, s.UpdateComponent(ctx, domain.Component{ID: "ghost"}), domain.ErrNotFound)
}

func evaluation(id, version string, status domain.EvaluationStatus) domain.Evaluation {
	return domain.Evaluation{
		ID:          id,
		ComponentID: "libfoo",
		Change:      domain.VersionChange{ComponentID: "libfoo", Kind: domain.ChangeRelease, FromVersion: "v1.0.0", ToVersion: version},
		Status:      status,
		CreatedAt:   base,
	}
}

func testOpenEvaluationUnique(t *testing.T, s domain.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateEvaluation(ctx, evaluation("e1", "v1.1.0", domain.EvaluationOpen)))
	assert.ErrorIs(t, s.CreateEvaluation(ctx, evaluation("e2", "v1.1.0", domain.EvaluationOpen)), domain.ErrDuplicateEvaluation)

	require.NoError(t, s.CreateEvaluation(ctx, evaluation("e3", "v1.2.0", domain.EvaluationOpen)), "different change key")
	require.NoError(t, s.CreateEvaluation(ctx, evaluation("e4", "v1.1.0", domain.EvaluationFailed)), "non-open records do not claim the key")

	e1, err := s.GetEvaluation(ctx, "e1")
	require.NoError(t, err)
	e1.Status = domain.EvaluationCancelled
	require.NoError(t, s.UpdateEvaluation(ctx, e1))

	require.NoError(t, s.CreateEvaluation(ctx, evaluation("e5", "v1.1.0", domain.EvaluationOpen)), "key is free once the first leaves open")

	open, err := s.ListEvaluations(ctx, domain.EvaluationFilter{ComponentID: "libfoo", Key: "v1.1.0", Status: domain.EvaluationOpen})
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "e5", open[0].ID)

	e1.Status = domain.EvaluationOpen
	assert.ErrorIs(t, s.UpdateEvaluation(ctx, e1), domain.ErrDuplicateEvaluation, "re-opening collides with e5")

	_, err = s.GetEvaluation(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testConcurrentEvaluations(t *testing.T, s domain.Store) {
	ctx := context.Background()
	const n = 8
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := evaluation(string(rune('a'+i)), "v2.0.0", domain.EvaluationOpen)
			errs[i] = s.CreateEvaluation(ctx, e)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
		}
	}
	assert.Equal(t, 1, created)

	open, err := s.ListEvaluations(ctx, domain.EvaluationFilter{Key: "v2.0.0", Status: domain.EvaluationOpen})
	require.NoError(t, err)
	assert.Len(t, open, 1)
}

func testResolveArchives(t *testing.T, s domain.Store) {
	ctx := context.Background()
	d := domain.Decision{
		ID: "d1", EvaluationID: "e1", ComponentID: "libfoo", Version: "v1.1.0",
		Recommendation: domain.RecommendManualReview, Status: domain.StatusPending,
		CreatedAt: base, Deadline: domain.AddBusinessDays(base, 5),
	}
	require.NoError(t, s.CreateDecision(ctx, d))

	overdueAt := d.Deadline.Add(time.Hour)
	require.True(t, d.MarkOverdue(overdueAt))
	require.NoError(t, s.UpdateDecision(ctx, d))

	pending, err := s.ListDecisions(ctx, domain.OpenDecisions)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, domain.StatusOverdue, pending[0].Status)

	resolvedAt := overdueAt.Add(time.Hour)
	require.NoError(t, d.Resolve(domain.ActionAccept, "alice", "reviewed changelog", resolvedAt))
	require.NoError(t, s.ResolveDecision(ctx, d, resolvedAt))

	second := d
	second.Rationale = "again"
	assert.ErrorIs(t, s.ResolveDecision(ctx, second, resolvedAt), domain.ErrAlreadyResolved)
	assert.ErrorIs(t, s.UpdateDecision(ctx, second), domain.ErrAlreadyResolved)

	stored, err := s.GetDecision(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "reviewed changelog", stored.Rationale)

	other := domain.Decision{ID: "d2", ComponentID: "libbar", Status: domain.StatusPending, CreatedAt: base}
	require.NoError(t, s.CreateDecision(ctx, other))
	require.NoError(t, other.Resolve(domain.ActionReject, "bob", "no", resolvedAt.Add(time.Minute)))
	require.NoError(t, s.ResolveDecision(ctx, other, resolvedAt.Add(time.Minute)))

	history, err := s.History(ctx, "")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "d2", history[0].Decision.ID, "newest first")
	assert.Equal(t, domain.StatusDecidedAccept, history[1].Decision.Status)

	only, err := s.History(ctx, "libfoo")
	require.NoError(t, err)
	require.Len(t, only, 1)
	assert.Equal(t, "d1", only[0].Decision.ID)

	_, err = s.GetDecision(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.ErrorIs(t, s.ResolveDecision(ctx, domain.Decision{ID: "nope"}, base), domain.ErrNotFound)
}

func pendingDecision(id string) domain.Decision {
	return domain.Decision{
		ID: id, EvaluationID: "e-" + id, ComponentID: "libfoo", Version: "v1.1.0",
		Recommendation: domain.RecommendManualReview, Status: domain.StatusPending,
		CreatedAt: base, Deadline: domain.AddBusinessDays(base, 5),
	}
}

func testConcurrentResolve(t *testing.T, s domain.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateDecision(ctx, pendingDecision("d1")))

	const n = 8
	at := base.Add(time.Hour)
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := pendingDecision("d1")
			if err := d.Resolve(domain.ActionReject, "resolver", string(rune('a'+i)), at); err != nil {
				errs[i] = err
				return
			}
			errs[i] = s.ResolveDecision(ctx, d, at)
		}(i)
	}
	wg.Wait()

	winner := -1
	for i, err := range errs {
		if err == nil {
			assert.Equal(t, -1, winner, "only one resolution may succeed")
			winner = i
			continue
		}
		assert.ErrorIs(t, err, domain.ErrAlreadyResolved)
	}
	require.NotEqual(t, -1, winner)

	stored, err := s.GetDecision(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, string(rune('a'+winner)), stored.Rationale)

	history, err := s.History(ctx, "libfoo")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func testOverdueRacesResolve(t *testing.T, s domain.Store) {
	ctx := context.Background()
	const n = 10
	overdueAt := domain.AddBusinessDays(base, 6)
	for i := 0; i < n; i++ {
		id := string(rune('a' + i))
		require.NoError(t, s.CreateDecision(ctx, pendingDecision(id)))

		var wg sync.WaitGroup
		var resolveErr, overdueErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			d := pendingDecision(id)
			d.MarkOverdue(overdueAt)
			overdueErr = s.UpdateDecision(ctx, d)
		}()
		go func() {
			defer wg.Done()
			d := pendingDecision(id)
			if resolveErr = d.Resolve(domain.ActionAccept, "alice", "ship it", overdueAt); resolveErr == nil {
				resolveErr = s.ResolveDecision(ctx, d, overdueAt)
			}
		}()
		wg.Wait()

		require.NoError(t, resolveErr, "an overdue decision stays resolvable")
		if overdueErr != nil {
			assert.ErrorIs(t, overdueErr, domain.ErrAlreadyResolved)
		}
		stored, err := s.GetDecision(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusDecidedAccept, stored.Status, "a resolution is never overwritten")
	}
}

func testReminders(t *testing.T, s domain.Store) {
	ctx := context.Background()
	require.NoError(t, s.CreateReminder(ctx, domain.Reminder{ID: "r1", DecisionID: "d1", DueAt: base.Add(48 * time.Hour)}))
	require.NoError(t, s.CreateReminder(ctx, domain.Reminder{ID: "r2", DecisionID: "d2", DueAt: base.Add(24 * time.Hour)}))

	due, err := s.DueReminders(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = s.DueReminders(ctx, base.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "r2", due[0].ID)

	require.NoError(t, s.MarkReminderFired(ctx, "r2", base.Add(72*time.Hour)))
	due, err = s.DueReminders(ctx, base.Add(72*time.Hour))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "r1", due[0].ID)

	assert.ErrorIs(t, s.MarkReminderFired(ctx, "ghost", base), domain.ErrNotFound)
}

func testExecutions(t *testing.T, s domain.Store) {
	ctx := context.Background()
	p := domain.PipelineExecution{
		ID: "p1", DecisionID: "d1", ComponentID: "libfoo", Version: "v1.1.0",
		Stages: []domain.StageRun{{Name: domain.StagePreparation, Status: domain.StagePending}},
		Status: domain.PipelineRunning, Attempt: 1, StartedAt: base,
	}
	require.NoError(t, s.CreateExecution(ctx, p))

	p.Status = domain.PipelineFailed
	p.Stages[0].Status = domain.StageFailed
	require.NoError(t, s.UpdateExecution(ctx, p))

	got, err := s.GetExecution(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PipelineFailed, got.Status)
	assert.Equal(t, domain.StageFailed, got.Stages[0].Status)

	failed, err := s.ListExecutions(ctx, domain.PipelineFilter{Status: domain.PipelineFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 1)

	_, err = s.GetExecution(ctx, "nope")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
