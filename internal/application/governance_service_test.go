package application_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/application"
	"github.com/tollgate/tollgate/internal/domain"
	"github.com/tollgate/tollgate/internal/domain/decision"
	"github.com/tollgate/tollgate/internal/domain/scoring"
)

func releaseChange(to string) domain.VersionChange {
	return domain.VersionChange{ComponentID: "libfoo", Kind: domain.ChangeRelease, FromVersion: "v1.0.0", ToVersion: to, DiscoveredAt: monday}
}

func TestGovernance_ProcessOpensDecision(t *testing.T) {
	h := newHarness(t)
	c := h.register(t, "libfoo", "v1.0.0")

	e, err := h.governance.Process(context.Background(), c, releaseChange("v1.1.0"))
	require.NoError(t, err)
	require.NotNil(t, e.Assessment)
	require.NotNil(t, e.Recommendation)
	assert.Equal(t, domain.RecommendAutoApprove, e.Recommendation.Action)
	assert.NotEmpty(t, e.DecisionID)

	d, err := h.store.GetDecision(context.Background(), e.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, d.Status)
	assert.Equal(t, "v1.1.0", d.Version)
	// Monday + 5 business days is the following Monday.
	assert.Equal(t, monday.AddDate(0, 0, 7), d.Deadline)

	assert.Equal(t, []domain.EventType{
		domain.EventChangeDetected, domain.EventEvaluationCompleted, domain.EventDecisionTransitioned,
	}, h.notifier.types())
}

func TestGovernance_DuplicateChangeIsRejected(t *testing.T) {
	h := newHarness(t)
	c := h.register(t, "libfoo", "v1.0.0")
	ctx := context.Background()

	_, err := h.governance.Process(ctx, c, releaseChange("v1.1.0"))
	require.NoError(t, err)
	_, err = h.governance.Process(ctx, c, releaseChange("v1.1.0"))
	assert.ErrorIs(t, err, domain.ErrDuplicateEvaluation)
}

func TestGovernance_MalformedDiffFailsEvaluation(t *testing.T) {
	h := newHarness(t)
	c := h.register(t, "libfoo", "v1.0.0")
	h.diffs.diff = domain.UpstreamDiff{Files: []domain.FileChange{{Path: "", Additions: 1}}}

	e, err := h.governance.Process(context.Background(), c, releaseChange("v1.1.0"))
	assert.ErrorIs(t, err, domain.ErrAnalysisInconsistent)
	assert.Equal(t, domain.EvaluationFailed, e.Status)

	stored, err := h.store.GetEvaluation(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EvaluationFailed, stored.Status)
	assert.NotEmpty(t, stored.Failure)
	assert.Nil(t, stored.Assessment, "no default score for a malformed diff")

	assert.Len(t, h.notifier.ofType(domain.EventEvaluationFailed), 1)
	pending, err := h.lifecycle.ListPending(context.Background())
	require.NoError(t, err)
	assert.Empty(t, pending)

	h.diffs.diff = smallDiff()
	_, err = h.governance.Process(context.Background(), c, releaseChange("v1.1.0"))
	assert.NoError(t, err, "failed evaluations do not block a retry")
}

func TestGovernance_DiffFetchFailure(t *testing.T) {
	h := newHarness(t)
	c := h.register(t, "libfoo", "v1.0.0")
	h.diffs.err = errors.New("compare failed")

	e, err := h.governance.Process(context.Background(), c, releaseChange("v1.1.0"))
	assert.Error(t, err)
	assert.Equal(t, domain.EvaluationFailed, e.Status)
	assert.Contains(t, e.Failure, "compare failed")
}

func TestGovernance_DecisionStoreFailureIsRetriedNextScan(t *testing.T) {
	h := newHarness(t)
	h.register(t, "libfoo", "v1.0.0")
	h.upstream.setRelease("https://github.com/acme/libfoo", "v1.1.0")
	h.faults.failDecisionCreates(1)
	ctx := context.Background()

	first := h.scan(t)
	assert.Zero(t, first.Changes)
	require.Len(t, first.Failed, 1)
	assert.Equal(t, "libfoo", first.Failed[0].ComponentID)
	assert.Contains(t, first.Failed[0].Error, "disk full")

	evals, err := h.store.ListEvaluations(ctx, domain.EvaluationFilter{ComponentID: "libfoo"})
	require.NoError(t, err)
	require.Len(t, evals, 1)
	assert.Equal(t, domain.EvaluationFailed, evals[0].Status)
	assert.Len(t, h.notifier.ofType(domain.EventEvaluationFailed), 1)

	second := h.scan(t)
	assert.Equal(t, 1, second.Changes)
	assert.Empty(t, second.Failed)
	pending, err := h.lifecycle.ListPending(ctx)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	third := h.scan(t)
	assert.Zero(t, third.Changes)
	assert.Equal(t, 1, third.Suppressed)
}

func TestGovernance_EvaluationUpdateFailureFailsEvaluation(t *testing.T) {
	h := newHarness(t)
	c := h.register(t, "libfoo", "v1.0.0")
	h.faults.failEvaluationUpdates(1)

	e, err := h.governance.Process(context.Background(), c, releaseChange("v1.1.0"))
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, domain.EvaluationFailed, e.Status)

	stored, err := h.store.GetEvaluation(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.EvaluationFailed, stored.Status)

	_, err = h.governance.Process(context.Background(), c, releaseChange("v1.1.0"))
	assert.NoError(t, err)
}

func TestGovernance_AutoApprovePolicyRunsPipeline(t *testing.T) {
	h := newHarness(t, withAutoApprove())
	c := h.register(t, "libfoo", "v1.0.0")

	e, err := h.governance.Process(context.Background(), c, releaseChange("v1.1.0"))
	require.NoError(t, err)

	d, err := h.store.GetDecision(context.Background(), e.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDecidedAccept, d.Status)
	assert.Equal(t, domain.PolicyResolver, d.ResolvedBy)

	stored, err := h.store.GetEvaluation(context.Background(), e.ID)
	require.NoError(t, err)
	assert.True(t, stored.Implemented)
	assert.Equal(t, domain.EvaluationImplemented, stored.Status)
	assert.Equal(t, domain.DefaultStages, h.runner.ran())

	history, err := h.lifecycle.History(context.Background(), "libfoo")
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestGovernance_AutoApproveLeavesRiskyChangesPending(t *testing.T) {
	h := newHarness(t, withAutoApprove())
	c := h.register(t, "libfoo", "v1.0.0")
	h.diffs.diff = domain.UpstreamDiff{
		Commits: []domain.Commit{{SHA: "def456", Message: "BREAKING CHANGE: drop v1 endpoints"}},
		Files: []domain.FileChange{
			{Path: "api/v1/handlers.go", Status: domain.FileRemoved, Deletions: 400},
			{Path: "internal/auth/token.go", Status: domain.FileModified, Additions: 50, Deletions: 10},
		},
	}

	e, err := h.governance.Process(context.Background(), c, releaseChange("v2.0.0"))
	require.NoError(t, err)
	assert.Equal(t, domain.RecommendManualReview, e.Recommendation.Action)

	d, err := h.store.GetDecision(context.Background(), e.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, d.Status)
	assert.Empty(t, h.runner.ran())
}

func breakingSourceDiff() domain.UpstreamDiff {
	return domain.UpstreamDiff{
		Commits: []domain.Commit{{SHA: "abc789", Message: "feat!: remove Client.Do\n\nBREAKING CHANGE: callers must use Client.Send"}},
		Files:   []domain.FileChange{{Path: "client.go", Status: domain.FileModified, Additions: 12, Deletions: 30}},
	}
}

func TestAssessChange_BreakingCommitNeedsReview(t *testing.T) {
	change := releaseChange("v1.3.0")
	change.FromVersion = "v1.2.0"
	out, err := application.AssessChange(change, breakingSourceDiff(),
		domain.BuiltinProfiles()[domain.ProfileDefault], scoring.NewEvaluator(), decision.DefaultPolicy())
	require.NoError(t, err)
	assert.True(t, out.Analysis.Impact.BreakingAPI)
	assert.Equal(t, domain.RecommendManualReview, out.Recommendation.Action)
}

func TestGovernance_AutoApproveSkipsBreakingCommits(t *testing.T) {
	h := newHarness(t, withAutoApprove())
	c := h.register(t, "libfoo", "v1.0.0")
	h.diffs.diff = breakingSourceDiff()

	e, err := h.governance.Process(context.Background(), c, releaseChange("v1.1.0"))
	require.NoError(t, err)

	d, err := h.store.GetDecision(context.Background(), e.DecisionID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, d.Status)
	assert.Empty(t, h.runner.ran())
}

func TestAssessChange_IsDeterministic(t *testing.T) {
	profile := domain.BuiltinProfiles()[domain.ProfileDefault]
	ev := scoring.NewEvaluator()
	first, err := application.AssessChange(releaseChange("v1.1.0"), smallDiff(), profile, ev, decision.DefaultPolicy())
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := application.AssessChange(releaseChange("v1.1.0"), smallDiff(), profile, ev, decision.DefaultPolicy())
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
