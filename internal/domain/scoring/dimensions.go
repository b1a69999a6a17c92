package scoring

import (
	"fmt"

	"github.com/tollgate/tollgate/internal/domain"
)

// Input is what a DimensionScorer sees.
type Input struct {
	Change   domain.VersionChange
	Analysis domain.ChangeAnalysis
}

func (in Input) hasAdvisory() bool {
	return in.Change.IsSecurity()
}

func (in Input) changedLines() int {
	return in.Analysis.Stats.Additions + in.Analysis.Stats.Deletions
}

// DimensionScorer computes one dimension. Scores outside [1,10] are clamped
// by the evaluator.
type DimensionScorer interface {
	Dimension() domain.Dimension
	Score(in Input) (score int, reasons []string)
}

// ScorerFunc adapts a function to a DimensionScorer.
type ScorerFunc struct {
	Dim domain.Dimension
	Fn  func(in Input) (int, []string)
}

func (s ScorerFunc) Dimension() domain.Dimension    { return s.Dim }
func (s ScorerFunc) Score(in Input) (int, []string) { return s.Fn(in) }

// tally accumulates a score and the reasons for each adjustment.
type tally struct {
	score   int
	reasons []string
}

func (t *tally) adjust(cond bool, delta int, reason string) {
	if !cond {
		return
	}
	t.score += delta
	t.reasons = append(t.reasons, fmt.Sprintf("%+d %s", delta, reason))
}

func (t *tally) result() (int, []string) { return t.score, t.reasons }

// DefaultScorers returns the built-in deterministic scorers. Higher is safer.
func DefaultScorers() []DimensionScorer {
	return []DimensionScorer{
		ScorerFunc{domain.DimensionRisk, scoreRisk},
		ScorerFunc{domain.DimensionTechnical, scoreTechnical},
		ScorerFunc{domain.DimensionOperational, scoreOperational},
		ScorerFunc{domain.DimensionStrategic, scoreStrategic},
		ScorerFunc{domain.DimensionFinancial, scoreFinancial},
	}
}

// scoreRisk is the security dimension: base 8, minus advisories, major
// bumps, breaking API and high-severity risk files (capped at 2).
func scoreRisk(in Input) (int, []string) {
	a := in.Analysis
	t := tally{score: 8}
	t.adjust(in.hasAdvisory(), -3, "security advisory published")
	t.adjust(a.Impact.MajorBump, -2, "major version bump")
	t.adjust(a.Impact.BreakingAPI, -3, "breaking API change")

	high := 0
	for _, rf := range a.RiskFiles {
		if rf.Severity == domain.SeverityHigh {
			high++
		}
	}
	t.adjust(high > 0, -min(high, 2), fmt.Sprintf("%d security-sensitive file(s) changed", high))
	return t.result()
}

// scoreTechnical rates code quality signals: base 7.
func scoreTechnical(in Input) (int, []string) {
	a := in.Analysis
	t := tally{score: 7}
	t.adjust(a.Signals.Breaking > 0 || a.Impact.BreakingAPI, -3, "breaking changes announced")
	t.adjust(a.Signals.Deprecation > 0, -1, "deprecations")
	t.adjust(a.Signals.Performance > 0, 1, "performance improvements")
	t.adjust(a.Signals.SecurityFix > 0, 1, "security fixes")
	t.adjust(a.Impact.Tests, 1, "tests updated")
	t.adjust(len(a.Buckets.Source) > 0 && !a.Impact.Tests, -1, "source changed without tests")
	return t.result()
}

// scoreOperational is the compatibility dimension: base 8.
func scoreOperational(in Input) (int, []string) {
	a := in.Analysis
	t := tally{score: 8}
	t.adjust(a.Impact.BreakingAPI, -3, "breaking API change")
	t.adjust(a.Impact.MajorBump, -2, "major version bump")
	t.adjust(a.Impact.Dependencies, -1, "dependency changes")
	t.adjust(a.Impact.Config, -1, "configuration changes")
	t.adjust(a.Stats.FilesChanged > 200, -1, "large change set")
	return t.result()
}

// scoreStrategic rates how much the update is worth having: base 6.
func scoreStrategic(in Input) (int, []string) {
	a := in.Analysis
	t := tally{score: 6}
	t.adjust(a.Signals.SecurityFix > 0 || in.hasAdvisory(), 2, "closes security exposure")
	t.adjust(a.Signals.Feature > 0, 1, "new features")
	t.adjust(a.Signals.Performance > 0, 1, "performance gains")
	t.adjust(a.Signals.Deprecation > 0, -1, "deprecations to migrate off")
	return t.result()
}

// scoreFinancial estimates adoption cost from change size: base 7.
func scoreFinancial(in Input) (int, []string) {
	lines := in.changedLines()
	t := tally{score: 7}
	t.adjust(lines > 5000, -3, fmt.Sprintf("%d changed lines", lines))
	t.adjust(lines > 1000 && lines <= 5000, -2, fmt.Sprintf("%d changed lines", lines))
	t.adjust(in.Analysis.Impact.BreakingAPI, -2, "migration work for breaking API")
	return t.result()
}
