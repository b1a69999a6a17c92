package tui_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/tollgate/tollgate/internal/adapters/outbound/tui"
	"github.com/tollgate/tollgate/internal/application"
	"github.com/tollgate/tollgate/internal/domain"
)

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func sampleDecision() domain.Decision {
	return domain.Decision{
		ID:             "dec-1",
		EvaluationID:   "eval-1",
		ComponentID:    "libfoo",
		FromVersion:    "v1.0.0",
		Version:        "v2.0.0",
		Recommendation: domain.RecommendManualReview,
		RiskScore:      6.9,
		RiskTier:       domain.TierHigh,
		Status:         domain.StatusPending,
		CreatedAt:      now.Add(-48 * time.Hour),
		Deadline:       now.Add(72 * time.Hour),
	}
}

func sampleInspection() application.Inspection {
	started := now.Add(-time.Hour)
	return application.Inspection{
		Decision: sampleDecision(),
		Evaluation: domain.Evaluation{
			ID:     "eval-1",
			Change: domain.VersionChange{Kind: domain.ChangeRelease, FromVersion: "v1.0.0", ToVersion: "v2.0.0"},
			Analysis: &domain.ChangeAnalysis{
				Stats:     domain.ChangeStats{FilesChanged: 3, Additions: 40, Deletions: 90, Commits: 2},
				Impact:    domain.ImpactFlags{APISurface: true, BreakingAPI: true},
				RiskFiles: []domain.RiskFile{{Path: "internal/auth/session.go", Pattern: "auth", Severity: domain.SeverityHigh}},
			},
			Assessment: &domain.RiskAssessment{
				Profile:    "default",
				Dimensions: []domain.DimensionScore{{Dimension: domain.DimensionRisk, Score: 3, Weight: 0.35, Reasons: []string{"-3 breaking API change"}}},
				RiskScore:  6.9, Tier: domain.TierHigh, WeightedTotal: 3.1, Confidence: 0.85,
			},
			Recommendation: &domain.DecisionRecommendation{
				Action:    domain.RecommendManualReview,
				Reason:    "breaking API change requires human review",
				Scenarios: []domain.Scenario{{ID: "phased_rollout", Name: "Phased rollout", Effort: "medium", Timeline: "1-2 weeks"}},
			},
		},
		Executions: []domain.PipelineExecution{{
			ID: "exec-1", Status: domain.PipelineFailed, Attempt: 1, StartedAt: started,
			Stages: []domain.StageRun{
				{Name: domain.StagePreparation, Status: domain.StageCompleted, Duration: 2 * time.Second},
				{Name: domain.StageApplication, Status: domain.StageFailed, Error: "exited with code 2"},
				{Name: domain.StageValidation, Status: domain.StageSkipped},
			},
		}},
	}
}

func TestRenderPending(t *testing.T) {
	overdue := sampleDecision()
	overdue.ID, overdue.ComponentID, overdue.Status = "dec-2", "libbar", domain.StatusOverdue
	overdue.Deadline = now.Add(-5 * time.Hour)

	out := tui.RenderPending([]domain.Decision{sampleDecision(), overdue}, now)
	assert.Contains(t, out, "Pending decisions")
	assert.Contains(t, out, "libfoo")
	assert.Contains(t, out, "v1.0.0 → v2.0.0")
	assert.Contains(t, out, "risk 6.9 HIGH")
	assert.Contains(t, out, "due in 3d")
	assert.Contains(t, out, "OVERDUE")
	assert.Contains(t, out, "5h overdue")
	assert.Contains(t, out, "dec-2")
}

func TestRenderPending_Empty(t *testing.T) {
	assert.Contains(t, tui.RenderPending(nil, now), "No pending decisions.")
}

func TestRenderInspection(t *testing.T) {
	out := tui.RenderInspection(sampleInspection(), now)
	assert.Contains(t, out, "PENDING_DECISION")
	assert.Contains(t, out, "eval-1")
	assert.Contains(t, out, "breaking api")
	assert.Contains(t, out, "internal/auth/session.go")
	assert.Contains(t, out, "-3 breaking API change")
	assert.Contains(t, out, "MANUAL_REVIEW")
	assert.Contains(t, out, "Phased rollout")
	assert.Contains(t, out, "exec-1")
	assert.Contains(t, out, "exited with code 2")
}

func TestRenderInspection_ResolvedShowsRationale(t *testing.T) {
	in := sampleInspection()
	in.Decision.Status = domain.StatusDecidedReject
	in.Decision.ResolvedBy = "alice"
	in.Decision.Rationale = "wait for v2.0.1"
	out := tui.RenderInspection(in, now)
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "wait for v2.0.1")
}

func TestRenderAssessment(t *testing.T) {
	in := sampleInspection()
	out := tui.RenderAssessment(in.Evaluation.Change, application.ChangeAssessment{
		Analysis: *in.Evaluation.Analysis, Assessment: *in.Evaluation.Assessment, Recommendation: *in.Evaluation.Recommendation,
	})
	assert.Contains(t, out, "3 files")
	assert.Contains(t, out, "profile default")
	assert.Contains(t, out, "Recommendation")
}

func TestRenderScan(t *testing.T) {
	out := tui.RenderScan(application.ScanReport{
		Checked: 4, Changes: 2, Suppressed: 1,
		Failed: []application.CheckFailure{{ComponentID: "libbaz", Error: "rate limited"}},
	})
	assert.Contains(t, out, "4 checked")
	assert.Contains(t, out, "2 changes")
	assert.Contains(t, out, "Failed checks")
	assert.Contains(t, out, "libbaz")

	assert.Contains(t, tui.RenderScan(application.ScanReport{Checked: 1}), "no changes")
}

func TestRenderComponents(t *testing.T) {
	out := tui.RenderComponents([]domain.Component{
		{ID: "libfoo", Upstream: "https://github.com/acme/libfoo", Version: "v1.0.0", LatestSeen: "v1.1.0", Status: domain.ComponentActive, LastCheckedAt: now},
		{ID: "libbar", Upstream: "https://gitlab.com/acme/libbar.git", Status: domain.ComponentPaused},
	})
	assert.Contains(t, out, "latest v1.1.0")
	assert.Contains(t, out, "never checked")
	assert.Contains(t, out, "gitlab.com/acme/libbar.git")
	assert.Contains(t, tui.RenderComponents(nil), "No components registered.")
}

func TestRenderHistory(t *testing.T) {
	d := sampleDecision()
	d.Status, d.ResolvedBy, d.Rationale = domain.StatusDecidedAccept, "bob", "tests green"
	out := tui.RenderHistory([]domain.ArchiveEntry{{Decision: d, ArchivedAt: now}})
	assert.Contains(t, out, "2026-10-14")
	assert.Contains(t, out, "DECIDED_ACCEPT")
	assert.Contains(t, out, "tests green")
	assert.Contains(t, tui.RenderHistory(nil), "No archived decisions.")
}

func TestRenderSweepSyncEvents(t *testing.T) {
	assert.Contains(t, tui.RenderSweep(application.SweepReport{Overdue: 2, Reevaluations: 1}), "2 overdue")
	assert.Contains(t, tui.RenderSync(application.SyncReport{Added: []string{"libfoo"}, Existing: []string{"libbar"}}), "1 added")
	assert.Contains(t, tui.RenderEvents([]domain.Event{{Type: domain.EventDecisionOverdue, Component: "libfoo", OccurredAt: now}}), "decision_overdue")
	assert.Contains(t, tui.RenderExecutions(nil), "No pipeline executions.")
}
