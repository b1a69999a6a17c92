package analysis_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/domain"
	"github.com/tollgate/tollgate/internal/domain/analysis"
)

func release(from, to string) domain.VersionChange {
	return domain.VersionChange{ComponentID: "libfoo", Kind: domain.ChangeRelease, FromVersion: from, ToVersion: to}
}

func files(paths ...string) []domain.FileChange {
	out := make([]domain.FileChange, len(paths))
	for i, p := range paths {
		out[i] = domain.FileChange{Path: p, Status: domain.FileModified, Additions: 10, Deletions: 2}
	}
	return out
}

func TestAnalyze_Buckets(t *testing.T) {
	diff := domain.UpstreamDiff{Files: files(
		"pkg/server/server.go",
		"pkg/server/server_test.go",
		"config/default.yaml",
		"CHANGELOG.md",
		"go.sum",
		"assets/logo.png",
	)}
	a, err := analysis.Analyze(release("v1.0.0", "v1.1.0"), diff)
	require.NoError(t, err)

	assert.Equal(t, []string{"pkg/server/server.go"}, a.Buckets.Source)
	assert.Equal(t, []string{"pkg/server/server_test.go"}, a.Buckets.Tests)
	assert.Equal(t, []string{"config/default.yaml"}, a.Buckets.Config)
	assert.Equal(t, []string{"CHANGELOG.md"}, a.Buckets.Docs)
	assert.Equal(t, []string{"go.sum"}, a.Buckets.Dependencies)
	assert.Equal(t, []string{"assets/logo.png"}, a.Buckets.Other)
	assert.Equal(t, len(diff.Files), a.Buckets.Total(), "every file lands in exactly one bucket")

	assert.Equal(t, 6, a.Stats.FilesChanged)
	assert.Equal(t, 60, a.Stats.Additions)
	assert.Equal(t, 12, a.Stats.Deletions)
	assert.True(t, a.Impact.Dependencies)
	assert.True(t, a.Impact.Config)
	assert.Equal(t, domain.TierMedium, a.Classification.Tier)
}

func TestAnalyze_DocsOnlyIsVeryLow(t *testing.T) {
	diff := domain.UpstreamDiff{
		Files:   files("README.md", "docs/guide.md"),
		Commits: []domain.Commit{{SHA: "a1", Message: "docs: fix typo in guide"}},
	}
	a, err := analysis.Analyze(release("v1.0.0", "v1.0.1"), diff)
	require.NoError(t, err)

	assert.Equal(t, domain.TierVeryLow, a.Classification.Tier)
	assert.Equal(t, analysis.ActionAutoUpdate, a.Classification.Action)
	assert.Contains(t, a.Classification.Tags, "docs_only")
	assert.Equal(t, 1, a.Signals.Bugfix)
	assert.False(t, a.Impact.Security)
}

func TestAnalyze_RiskFiles(t *testing.T) {
	diff := domain.UpstreamDiff{Files: files(
		"internal/auth/session.go",
		"pkg/TLSConfig/loader.go",
		"web/csrf_middleware.go",
		"internal/auth/session_test.go",
		"pkg/util/strings.go",
	)}
	a, err := analysis.Analyze(release("v1.2.0", "v1.2.1"), diff)
	require.NoError(t, err)

	require.Len(t, a.RiskFiles, 3)
	assert.Equal(t, domain.RiskFile{Path: "internal/auth/session.go", Pattern: "auth", Severity: domain.SeverityHigh}, a.RiskFiles[0])
	assert.Equal(t, domain.RiskFile{Path: "pkg/TLSConfig/loader.go", Pattern: "tls", Severity: domain.SeverityHigh}, a.RiskFiles[1])
	assert.Equal(t, domain.RiskFile{Path: "web/csrf_middleware.go", Pattern: "csrf", Severity: domain.SeverityMedium}, a.RiskFiles[2])

	assert.True(t, a.Impact.Security)
	assert.Equal(t, domain.TierMedium, a.Classification.Tier)
	assert.Equal(t, analysis.ActionReview, a.Classification.Action)
	assert.Contains(t, a.Classification.Tags, "risk_files")
}

func TestAnalyze_BreakingAPI(t *testing.T) {
	diff := domain.UpstreamDiff{
		Files:   files("api/v1/types.go", "internal/store/store.go"),
		Commits: []domain.Commit{{SHA: "b2", Message: "feat!: drop legacy Status field"}},
	}
	a, err := analysis.Analyze(release("v1.4.0", "v1.5.0"), diff)
	require.NoError(t, err)

	assert.True(t, a.Impact.APISurface)
	assert.True(t, a.Impact.BreakingAPI)
	assert.Equal(t, 1, a.Signals.Breaking)
	assert.Equal(t, 1, a.Signals.Feature)
	assert.Equal(t, domain.TierHigh, a.Classification.Tier)
	assert.Equal(t, analysis.ActionManualReview, a.Classification.Action)
}

func TestAnalyze_RemovedAPIFileIsBreaking(t *testing.T) {
	diff := domain.UpstreamDiff{Files: []domain.FileChange{
		{Path: "proto/service.proto", Status: domain.FileRemoved, Deletions: 40},
	}}
	a, err := analysis.Analyze(release("v1.4.0", "v1.4.1"), diff)
	require.NoError(t, err)
	assert.True(t, a.Impact.BreakingAPI)
	assert.Equal(t, domain.TierHigh, a.Classification.Tier)
}

func TestAnalyze_BreakingSignalOnSourceOutsideAPIPaths(t *testing.T) {
	diff := domain.UpstreamDiff{
		Files: files("client.go"),
		Commits: []domain.Commit{{SHA: "d4", Message: "feat!: remove Client.Do\n\nBREAKING CHANGE: callers must use Client.Send"}},
	}
	a, err := analysis.Analyze(release("v1.2.0", "v1.3.0"), diff)
	require.NoError(t, err)
	assert.False(t, a.Impact.APISurface)
	assert.True(t, a.Impact.BreakingAPI)
	assert.Equal(t, domain.TierHigh, a.Classification.Tier)
	assert.Equal(t, analysis.ActionManualReview, a.Classification.Action)
}

func TestAnalyze_BreakingSignalOnDocsOnly(t *testing.T) {
	diff := domain.UpstreamDiff{
		Files:   files("docs/migration.md"),
		Commits: []domain.Commit{{SHA: "d5", Message: "docs: describe the breaking changes coming in v2"}},
	}
	a, err := analysis.Analyze(release("v1.2.0", "v1.2.1"), diff)
	require.NoError(t, err)
	assert.Equal(t, 1, a.Signals.Breaking)
	assert.False(t, a.Impact.BreakingAPI)
}

func TestAnalyze_APIChangeWithoutBreakingSignal(t *testing.T) {
	diff := domain.UpstreamDiff{
		Files:   files("api/v1/types.go"),
		Commits: []domain.Commit{{SHA: "c3", Message: "add optional Labels field"}},
	}
	a, err := analysis.Analyze(release("v1.4.0", "v1.5.0"), diff)
	require.NoError(t, err)
	assert.True(t, a.Impact.APISurface)
	assert.False(t, a.Impact.BreakingAPI)
	assert.Equal(t, domain.TierLow, a.Classification.Tier)
}

func TestAnalyze_MajorBump(t *testing.T) {
	a, err := analysis.Analyze(release("v1.9.0", "v2.0.0"), domain.UpstreamDiff{Files: files("lib/core.go")})
	require.NoError(t, err)
	assert.True(t, a.Impact.MajorBump)
	assert.Equal(t, domain.TierHigh, a.Classification.Tier)
	assert.Contains(t, a.Classification.Tags, "major_bump")
}

func TestAnalyze_AdvisoryOnly(t *testing.T) {
	change := domain.VersionChange{
		ComponentID: "libfoo", Kind: domain.ChangeAdvisory, FromVersion: "v1.2.0", ToVersion: "v1.2.0",
		Advisories: []domain.Advisory{{ID: "GHSA-xxxx-yyyy-zzzz", CVE: "CVE-2026-1234", Severity: "high"}},
	}
	a, err := analysis.Analyze(change, domain.UpstreamDiff{})
	require.NoError(t, err)

	assert.True(t, a.Impact.Security)
	assert.Equal(t, domain.TierMedium, a.Classification.Tier)
	assert.Contains(t, a.Classification.Tags, "security_advisory")
	assert.Zero(t, a.Stats.FilesChanged)
}

func TestAnalyze_SignalsFromNotes(t *testing.T) {
	change := release("v3.1.0", "v3.2.0")
	change.Notes = "Fixes CVE-2026-0001. Deprecates the v1 client. 30% faster parsing."
	a, err := analysis.Analyze(change, domain.UpstreamDiff{Files: files("parser/parse.go")})
	require.NoError(t, err)

	assert.Equal(t, 1, a.Signals.SecurityFix)
	assert.Equal(t, 1, a.Signals.Deprecation)
	assert.Equal(t, 1, a.Signals.Performance)
	assert.Equal(t, 1, a.Signals.Bugfix)
	assert.Zero(t, a.Signals.Breaking)
}

func TestAnalyze_Inconsistent(t *testing.T) {
	tests := map[string]domain.UpstreamDiff{
		"empty path":     {Files: []domain.FileChange{{Path: ""}}},
		"negative count": {Files: []domain.FileChange{{Path: "a.go", Additions: -1}}},
		"duplicate path": {Files: []domain.FileChange{{Path: "a.go"}, {Path: "a.go"}}},
		"empty sha":      {Commits: []domain.Commit{{Message: "wip"}}},
	}
	for name, diff := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := analysis.Analyze(release("v1.0.0", "v1.0.1"), diff)
			assert.ErrorIs(t, err, domain.ErrAnalysisInconsistent)
		})
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	change := release("v1.0.0", "v1.1.0")
	forward := domain.UpstreamDiff{
		Files:   files("internal/auth/token.go", "go.mod", "docs/api.md", "cmd/main.go"),
		Commits: []domain.Commit{{SHA: "1", Message: "fix: token refresh"}, {SHA: "2", Message: "perf: faster startup"}},
	}
	reversed := forward
	reversed.Files = []domain.FileChange{forward.Files[3], forward.Files[2], forward.Files[1], forward.Files[0]}

	a1, err := analysis.Analyze(change, forward)
	require.NoError(t, err)
	a2, err := analysis.Analyze(change, forward)
	require.NoError(t, err)
	a3, err := analysis.Analyze(change, reversed)
	require.NoError(t, err)

	assert.Equal(t, a1, a2)
	assert.Equal(t, a1, a3, "file order does not change the result")
}
