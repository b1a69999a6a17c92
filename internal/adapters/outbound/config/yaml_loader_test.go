package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/tollgate/tollgate/internal/adapters/outbound/config"
	"github.com/tollgate/tollgate/internal/domain"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tollgate.yaml"), []byte(content), 0644))
}

func TestYAMLLoader_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := appconfig.New().Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultConfig(), cfg)
}

func TestYAMLLoader_EmptyFileReturnsDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "")
	cfg, err := appconfig.New().Load(dir)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultConfig(), cfg)
}

func TestYAMLLoader_MergesOverDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
store:
  driver: memory
scan:
  workers: 8
  timeout: 45s
policy:
  auto_approve: true
  reject_at: 9
notifications:
  sinks:
    - name: ops
      type: webhook
      url: https://hooks.example.com/tollgate
      events: [decision_overdue, pipeline_failed]
      timeout: 5s
components:
  - id: libfoo
    upstream: https://github.com/acme/libfoo
    version: v1.2.0
    monitor: [releases, security_advisories]
    profile: security-critical
`)
	cfg, err := appconfig.New().Load(dir)
	require.NoError(t, err)

	assert.Equal(t, domain.StoreMemory, cfg.Store.Driver)
	assert.Equal(t, 8, cfg.Scan.Workers)
	assert.Equal(t, 45*time.Second, cfg.Scan.Timeout)
	assert.Equal(t, 4, cfg.Scan.MaxRetries, "unset keys keep defaults")
	assert.True(t, cfg.Policy.AutoApprove)
	assert.InDelta(t, 9.0, cfg.Policy.RejectAt, 1e-9)
	assert.InDelta(t, 6.0, cfg.Policy.ManualReviewAt, 1e-9)
	assert.Equal(t, 5, cfg.Decision.GraceBusinessDays)

	require.Len(t, cfg.Notifications.Sinks, 1)
	sink := cfg.Notifications.Sinks[0]
	assert.Equal(t, 5*time.Second, sink.Timeout)
	assert.True(t, sink.Accepts(domain.EventPipelineFailed))
	assert.False(t, sink.Accepts(domain.EventChangeDetected))

	require.Len(t, cfg.Components, 1)
	c := cfg.Components[0].Component()
	assert.Equal(t, "security-critical", c.Profile)
	assert.True(t, c.Monitors(domain.MonitorAdvisories))
}

func TestYAMLLoader_CustomProfile(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
profiles:
  payments:
    weights: {risk: 0.6, technical: 0.1, operational: 0.1, strategic: 0.1, financial: 0.1}
    confidence: 0.9
`)
	cfg, err := appconfig.New().Load(dir)
	require.NoError(t, err)

	set, err := domain.NewProfileSet(cfg.Profiles)
	require.NoError(t, err)
	p, ok := set.Resolve("payments")
	require.True(t, ok)
	assert.InDelta(t, 0.6, p.Weight(domain.DimensionRisk), 1e-9)
	assert.InDelta(t, 0.9, p.Confidence, 1e-9)
}

func TestYAMLLoader_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `{{{invalid yaml`)

	_, err := appconfig.New().Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing .tollgate.yaml")
}

func TestYAMLLoader_UnknownKeyIsRejected(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "scan:\n  wrokers: 3\n")

	_, err := appconfig.New().Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wrokers")
}

func TestYAMLLoader_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"bad driver", "store:\n  driver: postgres\n", "unknown store.driver"},
		{"zero workers", "scan:\n  workers: 0\n", "scan.workers"},
		{"bad profile weights", "profiles:\n  broken:\n    weights: {risk: 0.9}\n", "invalid .tollgate.yaml"},
		{"unknown stage", "pipeline:\n  commands:\n    smoke: make smoke\n", "unknown stage"},
		{"duplicate component", "components:\n  - {id: a, upstream: u}\n  - {id: a, upstream: u}\n", "duplicate id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.content)
			_, err := appconfig.New().Load(dir)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestYAMLLoader_LoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("decision:\n  defer_days: 30\n"), 0644))

	cfg, err := appconfig.New().LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Decision.DeferDays)
}

func TestGitHubToken(t *testing.T) {
	t.Setenv("TOLLGATE_TEST_TOKEN", "s3cret")
	assert.Equal(t, "s3cret", appconfig.GitHubToken(domain.GitHubConfig{TokenEnv: "TOLLGATE_TEST_TOKEN"}))
	assert.Empty(t, appconfig.GitHubToken(domain.GitHubConfig{}))
}
