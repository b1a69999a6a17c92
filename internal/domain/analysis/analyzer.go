// Package analysis turns a raw upstream diff into a structured ChangeAnalysis.
// Everything here is pure: the same inputs always give the same output.
package analysis

import (
	"fmt"
	"sort"

	"github.com/tollgate/tollgate/internal/domain"
)

// Classification actions.
const (
	ActionAutoUpdate   = "auto_update"
	ActionReview       = "review"
	ActionManualReview = "manual_review"
)

// Analyze builds the analysis of change from its upstream diff. A malformed
// diff returns ErrAnalysisInconsistent.
func Analyze(change domain.VersionChange, diff domain.UpstreamDiff) (domain.ChangeAnalysis, error) {
	if err := validate(diff); err != nil {
		return domain.ChangeAnalysis{}, err
	}

	var a domain.ChangeAnalysis
	a.Stats.FilesChanged = len(diff.Files)
	a.Stats.Commits = len(diff.Commits)

	apiRemoved := false
	for _, f := range diff.Files {
		a.Stats.Additions += f.Additions
		a.Stats.Deletions += f.Deletions

		bucket := bucketOf(f.Path)
		switch bucket {
		case "source":
			a.Buckets.Source = append(a.Buckets.Source, f.Path)
		case "tests":
			a.Buckets.Tests = append(a.Buckets.Tests, f.Path)
		case "config":
			a.Buckets.Config = append(a.Buckets.Config, f.Path)
		case "docs":
			a.Buckets.Docs = append(a.Buckets.Docs, f.Path)
		case "dependencies":
			a.Buckets.Dependencies = append(a.Buckets.Dependencies, f.Path)
		default:
			a.Buckets.Other = append(a.Buckets.Other, f.Path)
		}

		if bucket != "docs" && bucket != "tests" {
			if rf, ok := riskFileFor(f.Path); ok {
				a.RiskFiles = append(a.RiskFiles, rf)
			}
		}
		if isAPIPath(f.Path) {
			a.Impact.APISurface = true
			if f.Status == domain.FileRemoved || f.Status == domain.FileRenamed {
				apiRemoved = true
			}
		}
	}
	sortBuckets(&a.Buckets)
	sort.Slice(a.RiskFiles, func(i, j int) bool { return a.RiskFiles[i].Path < a.RiskFiles[j].Path })

	texts := make([]string, 0, len(diff.Commits)+1)
	for _, c := range diff.Commits {
		texts = append(texts, c.Message)
	}
	notes := diff.Notes
	if notes == "" {
		notes = change.Notes
	}
	texts = append(texts, notes)
	a.Signals = scanSignals(texts)

	hasAdvisory := change.IsSecurity() || len(diff.Advisories) > 0
	a.Impact.Security = hasAdvisory || len(a.RiskFiles) > 0
	// An announced breaking change that touches source is treated as an
	// estimated API break even outside the recognised API paths.
	a.Impact.BreakingAPI = (a.Impact.APISurface && (a.Signals.Breaking > 0 || apiRemoved)) ||
		(a.Signals.Breaking > 0 && len(a.Buckets.Source) > 0)
	a.Impact.Tests = len(a.Buckets.Tests) > 0
	a.Impact.Docs = len(a.Buckets.Docs) > 0
	a.Impact.Dependencies = len(a.Buckets.Dependencies) > 0
	a.Impact.Config = len(a.Buckets.Config) > 0
	a.Impact.MajorBump = domain.IsMajorBump(change.FromVersion, change.ToVersion)

	a.Classification = classify(a, hasAdvisory)
	return a, nil
}

func validate(diff domain.UpstreamDiff) error {
	seen := make(map[string]bool, len(diff.Files))
	for i, f := range diff.Files {
		if f.Path == "" {
			return fmt.Errorf("file %d has an empty path: %w", i, domain.ErrAnalysisInconsistent)
		}
		if f.Additions < 0 || f.Deletions < 0 {
			return fmt.Errorf("file %s has negative line counts: %w", f.Path, domain.ErrAnalysisInconsistent)
		}
		if seen[f.Path] {
			return fmt.Errorf("file %s listed twice: %w", f.Path, domain.ErrAnalysisInconsistent)
		}
		seen[f.Path] = true
	}
	for i, c := range diff.Commits {
		if c.SHA == "" {
			return fmt.Errorf("commit %d has no SHA: %w", i, domain.ErrAnalysisInconsistent)
		}
	}
	return nil
}

// classify applies the fixed classification table.
func classify(a domain.ChangeAnalysis, hasAdvisory bool) domain.ChangeClassification {
	c := domain.ChangeClassification{Tier: domain.TierLow, Action: ActionAutoUpdate, Tags: tags(a, hasAdvisory)}

	b := a.Buckets
	docsOrTestsOnly := b.Total() > 0 && len(b.Source)+len(b.Config)+len(b.Dependencies)+len(b.Other) == 0
	if docsOrTestsOnly && !hasAdvisory {
		c.Tier = domain.TierVeryLow
	}

	if len(a.RiskFiles) > 0 || hasAdvisory || a.Impact.Dependencies {
		c.Tier = c.Tier.AtLeast(domain.TierMedium)
		c.Action = ActionReview
	}

	if a.Impact.BreakingAPI || a.Impact.MajorBump {
		c.Tier = domain.TierHigh
		c.Action = ActionManualReview
	}
	return c
}

func tags(a domain.ChangeAnalysis, hasAdvisory bool) []string {
	var t []string
	add := func(cond bool, tag string) {
		if cond {
			t = append(t, tag)
		}
	}
	b := a.Buckets
	add(a.Impact.BreakingAPI, "breaking_api")
	add(a.Impact.MajorBump, "major_bump")
	add(hasAdvisory, "security_advisory")
	add(len(a.RiskFiles) > 0, "risk_files")
	add(a.Impact.APISurface, "api_surface")
	add(a.Impact.Dependencies, "dependencies")
	add(a.Impact.Config, "config")
	add(b.Total() > 0 && len(b.Docs) == b.Total(), "docs_only")
	add(b.Total() > 0 && len(b.Tests) == b.Total(), "tests_only")
	add(a.Signals.Deprecation > 0, "deprecation")
	add(a.Signals.Performance > 0, "performance")
	add(a.Signals.SecurityFix > 0, "security_fix")
	add(a.Signals.Feature > 0, "feature")
	add(a.Signals.Bugfix > 0, "bugfix")
	return t
}

func sortBuckets(b *domain.FileBuckets) {
	for _, s := range [][]string{b.Source, b.Tests, b.Config, b.Docs, b.Dependencies, b.Other} {
		sort.Strings(s)
	}
}
