// Package scoring rates an analyzed change across weighted dimensions.
package scoring

import (
	"fmt"
	"math"

	"github.com/tollgate/tollgate/internal/domain"
)

// Evaluator combines per-dimension scorers under an evaluation profile.
type Evaluator struct {
	scorers map[domain.Dimension]DimensionScorer
}

// NewEvaluator returns an evaluator using the default scorers, with any
// given scorer replacing the default for its dimension.
func NewEvaluator(overrides ...DimensionScorer) *Evaluator {
	e := &Evaluator{scorers: make(map[domain.Dimension]DimensionScorer, len(domain.Dimensions))}
	for _, s := range DefaultScorers() {
		e.scorers[s.Dimension()] = s
	}
	for _, s := range overrides {
		e.scorers[s.Dimension()] = s
	}
	return e
}

// Evaluate scores the change. The profile must be valid; weights of
// dimensions the profile omits are zero.
func (e *Evaluator) Evaluate(in Input, profile domain.EvaluationProfile) (domain.RiskAssessment, error) {
	if err := profile.Validate(); err != nil {
		return domain.RiskAssessment{}, err
	}

	ra := domain.RiskAssessment{Profile: profile.Name, Confidence: profile.Confidence}
	if ra.Confidence == 0 {
		ra.Confidence = domain.DefaultConfidence
	}

	total := 0.0
	for _, d := range domain.Dimensions {
		s, ok := e.scorers[d]
		if !ok {
			return domain.RiskAssessment{}, fmt.Errorf("no scorer for dimension %s", d)
		}
		score, reasons := s.Score(in)
		ds := domain.DimensionScore{
			Dimension: d,
			Score:     clamp(score),
			Weight:    profile.Weight(d),
			Reasons:   reasons,
		}
		total += float64(ds.Score) * ds.Weight
		ra.Dimensions = append(ra.Dimensions, ds)
	}

	ra.WeightedTotal = round1(total)
	ra.RiskScore = round1(math.Max(0, math.Min(10, 10-ra.WeightedTotal)))
	ra.Tier = profile.Thresholds.Tier(ra.WeightedTotal, ra.Score(domain.DimensionRisk))
	return ra, nil
}

func clamp(score int) int {
	return max(1, min(10, score))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
