// Package decision maps a risk assessment to a recommendation and a set of
// remediation scenarios.
package decision

import (
	"fmt"
	"math"

	"github.com/tollgate/tollgate/internal/domain"
)

// Policy holds the thresholds applied to the 0-10 risk score.
// ConditionalAt is the highest risk that is still auto-approved.
type Policy struct {
	RejectAt       float64
	ManualReviewAt float64
	ConditionalAt  float64
}

// DefaultPolicy returns the stock thresholds.
func DefaultPolicy() Policy {
	return Policy{RejectAt: 8, ManualReviewAt: 6, ConditionalAt: 4}
}

// PolicyFromConfig reads thresholds from configuration.
func PolicyFromConfig(c domain.PolicyConfig) Policy {
	return Policy{RejectAt: c.RejectAt, ManualReviewAt: c.ManualReviewAt, ConditionalAt: c.ConditionalAt}
}

// Input is everything the engine decides on.
type Input struct {
	Change     domain.VersionChange
	Analysis   domain.ChangeAnalysis
	Assessment domain.RiskAssessment
}

// Recommend applies the ordered rule table; the first matching rule wins.
func Recommend(in Input, p Policy) domain.DecisionRecommendation {
	risk := in.Assessment.RiskScore
	var rec domain.DecisionRecommendation

	switch {
	case risk >= p.RejectAt:
		rec.Action = domain.RecommendReject
		rec.Reason = fmt.Sprintf("risk score %.1f is at or above the rejection threshold %.1f", risk, p.RejectAt)
	case in.Analysis.Impact.BreakingAPI:
		rec.Action = domain.RecommendManualReview
		rec.Reason = "breaking API change requires human review"
	case risk >= p.ManualReviewAt:
		rec.Action = domain.RecommendManualReview
		rec.Reason = fmt.Sprintf("risk score %.1f is at or above the review threshold %.1f", risk, p.ManualReviewAt)
	case risk >= p.ConditionalAt:
		rec.Action = domain.RecommendConditionalApprove
		rec.Reason = fmt.Sprintf("risk score %.1f allows approval with extended validation", risk)
		rec.RequiresValidation = true
	case in.Change.IsSecurity():
		rec.Action = domain.RecommendAutoApprove
		rec.Reason = fmt.Sprintf("security update with acceptable risk score %.1f", risk)
	default:
		rec.Action = domain.RecommendAutoApprove
		rec.Reason = fmt.Sprintf("risk score %.1f is below every threshold", risk)
	}

	rec.Confidence = confidence(in.Assessment, p)
	rec.Scenarios = scenariosFor(rec.Action, in)
	return rec
}

// confidence scales the assessment confidence by how far the risk score
// sits from the nearest threshold; within 2 points it drops up to 20%.
func confidence(a domain.RiskAssessment, p Policy) float64 {
	base := a.Confidence
	if base == 0 {
		base = domain.DefaultConfidence
	}
	dist := math.Inf(1)
	for _, t := range []float64{p.RejectAt, p.ManualReviewAt, p.ConditionalAt} {
		dist = math.Min(dist, math.Abs(a.RiskScore-t))
	}
	factor := 0.8 + 0.2*math.Min(1, dist/2)
	return math.Round(base*factor*100) / 100
}
