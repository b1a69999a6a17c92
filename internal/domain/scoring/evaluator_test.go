package scoring_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/domain"
	"github.com/tollgate/tollgate/internal/domain/scoring"
)

func equalWeights() domain.EvaluationProfile {
	return domain.EvaluationProfile{
		Name: "flat",
		Weights: map[domain.Dimension]float64{
			domain.DimensionRisk: 0.2, domain.DimensionTechnical: 0.2, domain.DimensionOperational: 0.2,
			domain.DimensionStrategic: 0.2, domain.DimensionFinancial: 0.2,
		},
		Confidence: 0.85,
		Thresholds: domain.DefaultTierThresholds(),
	}
}

func cleanMinor() scoring.Input {
	return scoring.Input{
		Change: domain.VersionChange{Kind: domain.ChangeRelease, FromVersion: "v1.2.0", ToVersion: "v1.3.0"},
		Analysis: domain.ChangeAnalysis{
			Stats:   domain.ChangeStats{FilesChanged: 2, Additions: 100, Deletions: 20},
			Buckets: domain.FileBuckets{Source: []string{"lib/a.go"}, Tests: []string{"lib/a_test.go"}},
			Impact:  domain.ImpactFlags{Tests: true},
			Signals: domain.Signals{Feature: 1},
		},
	}
}

func breakingMajor() scoring.Input {
	return scoring.Input{
		Change: domain.VersionChange{Kind: domain.ChangeRelease, FromVersion: "v1.9.0", ToVersion: "v2.0.0"},
		Analysis: domain.ChangeAnalysis{
			Stats:   domain.ChangeStats{FilesChanged: 3, Additions: 120, Deletions: 80},
			Buckets: domain.FileBuckets{Source: []string{"api/v1/types.go", "lib/a.go", "lib/b.go"}},
			Impact:  domain.ImpactFlags{APISurface: true, BreakingAPI: true, MajorBump: true},
			Signals: domain.Signals{Breaking: 1, Feature: 1},
		},
	}
}

func TestEvaluate_CleanMinor(t *testing.T) {
	ra, err := scoring.NewEvaluator().Evaluate(cleanMinor(), equalWeights())
	require.NoError(t, err)

	assert.Equal(t, 8, ra.Score(domain.DimensionRisk))
	assert.Equal(t, 8, ra.Score(domain.DimensionTechnical))
	assert.Equal(t, 8, ra.Score(domain.DimensionOperational))
	assert.Equal(t, 7, ra.Score(domain.DimensionStrategic))
	assert.Equal(t, 7, ra.Score(domain.DimensionFinancial))
	assert.InDelta(t, 7.6, ra.WeightedTotal, 1e-9)
	assert.InDelta(t, 2.4, ra.RiskScore, 1e-9)
	assert.Equal(t, domain.TierLow, ra.Tier)
	assert.InDelta(t, 0.85, ra.Confidence, 1e-9)
	assert.Equal(t, "flat", ra.Profile)
}

func TestEvaluate_BreakingMajorIsHighRisk(t *testing.T) {
	profile := domain.BuiltinProfiles()[domain.ProfileDefault]
	ra, err := scoring.NewEvaluator().Evaluate(breakingMajor(), profile)
	require.NoError(t, err)

	assert.Equal(t, 3, ra.Score(domain.DimensionRisk))
	assert.Equal(t, 3, ra.Score(domain.DimensionTechnical))
	assert.Equal(t, 3, ra.Score(domain.DimensionOperational))
	assert.Equal(t, 7, ra.Score(domain.DimensionStrategic))
	assert.Equal(t, 5, ra.Score(domain.DimensionFinancial))
	assert.InDelta(t, 3.5, ra.WeightedTotal, 1e-9)
	assert.InDelta(t, 6.5, ra.RiskScore, 1e-9)
	assert.Equal(t, domain.TierHigh, ra.Tier)
}

func TestEvaluate_AdvisoryUnderSecurityProfile(t *testing.T) {
	in := scoring.Input{
		Change: domain.VersionChange{
			Kind: domain.ChangeAdvisory, FromVersion: "v1.2.0", ToVersion: "v1.2.0",
			Advisories: []domain.Advisory{{ID: "GHSA-1", Severity: "high"}},
		},
		Analysis: domain.ChangeAnalysis{Impact: domain.ImpactFlags{Security: true}},
	}
	ra, err := scoring.NewEvaluator().Evaluate(in, domain.BuiltinProfiles()[domain.ProfileSecurityCritical])
	require.NoError(t, err)

	assert.Equal(t, 5, ra.Score(domain.DimensionRisk))
	assert.Equal(t, 8, ra.Score(domain.DimensionStrategic))
	assert.InDelta(t, 6.4, ra.WeightedTotal, 1e-9)
	assert.InDelta(t, 3.6, ra.RiskScore, 1e-9)
	assert.Equal(t, domain.TierLow, ra.Tier)

	var reasons []string
	for _, ds := range ra.Dimensions {
		if ds.Dimension == domain.DimensionRisk {
			reasons = ds.Reasons
		}
	}
	assert.Equal(t, []string{"-3 security advisory published"}, reasons)
}

func TestEvaluate_ClampsScores(t *testing.T) {
	ev := scoring.NewEvaluator(
		scoring.ScorerFunc{Dim: domain.DimensionFinancial, Fn: func(scoring.Input) (int, []string) { return 15, nil }},
		scoring.ScorerFunc{Dim: domain.DimensionStrategic, Fn: func(scoring.Input) (int, []string) { return -4, nil }},
	)
	ra, err := ev.Evaluate(cleanMinor(), equalWeights())
	require.NoError(t, err)
	assert.Equal(t, 10, ra.Score(domain.DimensionFinancial))
	assert.Equal(t, 1, ra.Score(domain.DimensionStrategic))
	for _, ds := range ra.Dimensions {
		assert.GreaterOrEqual(t, ds.Score, 1)
		assert.LessOrEqual(t, ds.Score, 10)
	}
}

func TestEvaluate_RejectsInvalidProfile(t *testing.T) {
	bad := equalWeights()
	bad.Weights[domain.DimensionRisk] = 0.5
	_, err := scoring.NewEvaluator().Evaluate(cleanMinor(), bad)
	assert.ErrorIs(t, err, domain.ErrInvalidProfile)
}

func TestEvaluate_Deterministic(t *testing.T) {
	ev := scoring.NewEvaluator()
	for name, p := range domain.BuiltinProfiles() {
		first, err := ev.Evaluate(breakingMajor(), p)
		require.NoError(t, err)
		for i := 0; i < 5; i++ {
			again, err := ev.Evaluate(breakingMajor(), p)
			require.NoError(t, err)
			assert.Equal(t, first, again, name)
		}
	}
}

func TestEvaluate_DimensionsInCanonicalOrder(t *testing.T) {
	ra, err := scoring.NewEvaluator().Evaluate(cleanMinor(), domain.BuiltinProfiles()[domain.ProfileDefault])
	require.NoError(t, err)
	require.Len(t, ra.Dimensions, len(domain.Dimensions))
	for i, d := range domain.Dimensions {
		assert.Equal(t, d, ra.Dimensions[i].Dimension)
	}
}

func TestEvaluate_LargeChangeCostsMore(t *testing.T) {
	small := cleanMinor()
	large := cleanMinor()
	large.Analysis.Stats.Additions = 6000

	ev := scoring.NewEvaluator()
	p := domain.BuiltinProfiles()[domain.ProfileDefault]
	rs, err := ev.Evaluate(small, p)
	require.NoError(t, err)
	rl, err := ev.Evaluate(large, p)
	require.NoError(t, err)

	assert.Equal(t, 7, rs.Score(domain.DimensionFinancial))
	assert.Equal(t, 4, rl.Score(domain.DimensionFinancial))
	assert.Greater(t, rl.RiskScore, rs.RiskScore)
}
