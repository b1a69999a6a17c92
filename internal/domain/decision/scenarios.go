package decision

import "github.com/tollgate/tollgate/internal/domain"

// Scenario IDs.
const (
	ScenarioSecurityHotfix  = "security_hotfix"
	ScenarioImmediateUpdate = "immediate_update"
	ScenarioPhasedRollout   = "phased_rollout"
	ScenarioDeferredUpdate  = "deferred_update"
	ScenarioCustomPatch     = "custom_patch"
)

const maxScenarios = 4

var catalog = map[string]domain.Scenario{
	ScenarioSecurityHotfix: {
		ID: ScenarioSecurityHotfix, Name: "Security hotfix", Effort: "low", Risk: domain.TierMedium, Timeline: "24-48 hours",
		Steps: []string{
			"Confirm the advisory applies to the deployed version",
			"Apply the patched release on a hotfix branch",
			"Run security and regression suites",
			"Deploy with expedited sign-off",
			"Watch for exploitation indicators after rollout",
		},
	},
	ScenarioImmediateUpdate: {
		ID: ScenarioImmediateUpdate, Name: "Immediate update", Effort: "low", Risk: domain.TierLow, Timeline: "1-3 days",
		Steps: []string{
			"Bump the pinned version",
			"Run the full test suite",
			"Deploy through the standard release train",
		},
	},
	ScenarioPhasedRollout: {
		ID: ScenarioPhasedRollout, Name: "Phased rollout", Effort: "medium", Risk: domain.TierLow, Timeline: "1-2 weeks",
		Steps: []string{
			"Bump the version behind a feature flag or canary",
			"Roll out to a small slice of traffic",
			"Compare error rates and latency against baseline",
			"Expand to full traffic once metrics hold",
		},
	},
	ScenarioDeferredUpdate: {
		ID: ScenarioDeferredUpdate, Name: "Deferred update", Effort: "low", Risk: domain.TierMedium, Timeline: "next planning cycle",
		Steps: []string{
			"Record the reason for deferral",
			"Schedule re-evaluation",
			"Track upstream for follow-up releases",
		},
	},
	ScenarioCustomPatch: {
		ID: ScenarioCustomPatch, Name: "Custom patch", Effort: "high", Risk: domain.TierMedium, Timeline: "2-4 weeks",
		Steps: []string{
			"Stay on the current version",
			"Backport only the required fixes",
			"Maintain the patch until an acceptable upstream release exists",
			"Review the fork on every upstream release",
		},
	},
}

// Scenario returns a copy of a catalog entry.
func Scenario(id string) (domain.Scenario, bool) {
	s, ok := catalog[id]
	if !ok {
		return domain.Scenario{}, false
	}
	s.Steps = append([]string(nil), s.Steps...)
	return s, true
}

// scenariosFor orders candidate plans for an action. Security changes lead
// with the hotfix plan.
func scenariosFor(action domain.Recommendation, in Input) []domain.Scenario {
	var ids []string
	if in.Change.IsSecurity() || (in.Analysis.Impact.Security && in.Analysis.Signals.SecurityFix > 0) {
		ids = append(ids, ScenarioSecurityHotfix)
	}
	switch action {
	case domain.RecommendAutoApprove:
		ids = append(ids, ScenarioImmediateUpdate)
		if in.Analysis.Impact.Dependencies {
			ids = append(ids, ScenarioPhasedRollout)
		}
	case domain.RecommendConditionalApprove:
		ids = append(ids, ScenarioPhasedRollout, ScenarioImmediateUpdate)
	case domain.RecommendManualReview:
		ids = append(ids, ScenarioPhasedRollout, ScenarioCustomPatch, ScenarioDeferredUpdate)
	case domain.RecommendReject:
		ids = append(ids, ScenarioDeferredUpdate, ScenarioCustomPatch)
	}

	seen := make(map[string]bool, len(ids))
	out := make([]domain.Scenario, 0, maxScenarios)
	for _, id := range ids {
		if seen[id] || len(out) == maxScenarios {
			continue
		}
		seen[id] = true
		s, _ := Scenario(id)
		out = append(out, s)
	}
	return out
}
