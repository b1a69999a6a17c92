package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/adapters/outbound/store/memory"
	"github.com/tollgate/tollgate/internal/application"
	"github.com/tollgate/tollgate/internal/domain"
	"github.com/tollgate/tollgate/internal/domain/decision"
	"github.com/tollgate/tollgate/internal/domain/scoring"
)

type harness struct {
	store      *memory.Store
	faults     *faultyStore
	clock      *clock
	upstream   *fakeUpstream
	diffs      *fakeDiffs
	notifier   *recordingNotifier
	runner     *fakeRunner
	registry   *application.RegistryService
	detector   *application.DetectService
	governance *application.GovernanceService
	lifecycle  *application.LifecycleService
	pipeline   *application.PipelineService
}

type harnessOption func(*harnessConfig)

type harnessConfig struct {
	scan        domain.ScanConfig
	autoApprove bool
	dryRun      bool
}

func withAutoApprove() harnessOption { return func(c *harnessConfig) { c.autoApprove = true } }
func withDryRun() harnessOption      { return func(c *harnessConfig) { c.dryRun = true } }
func withRetries(n int) harnessOption {
	return func(c *harnessConfig) { c.scan.MaxRetries = n }
}

func withMaxBackoff(d time.Duration) harnessOption {
	return func(c *harnessConfig) { c.scan.MaxBackoff = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()
	cfg := harnessConfig{scan: domain.ScanConfig{
		Workers:        2,
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
	}}
	for _, o := range opts {
		o(&cfg)
	}

	h := &harness{
		store:    memory.New(),
		clock:    newClock(),
		upstream: newFakeUpstream(),
		diffs:    &fakeDiffs{diff: smallDiff()},
		notifier: &recordingNotifier{},
		runner:   &fakeRunner{fail: map[string]error{}},
	}
	h.faults = &faultyStore{Store: h.store}
	common := []application.Option{application.WithClock(h.clock.Now), application.WithIDs(sequentialIDs("id"))}

	profiles, err := domain.NewProfileSet(nil)
	require.NoError(t, err)

	h.registry = application.NewRegistryService(h.faults, common...)
	h.pipeline = application.NewPipelineService(h.faults, h.runner, h.notifier,
		domain.PipelineConfig{DryRun: cfg.dryRun, StageTimeout: time.Second}, common...)
	h.lifecycle = application.NewLifecycleService(h.faults, h.pipeline, h.notifier,
		application.LifecycleConfig{GraceBusinessDays: 5, DeferDays: 14, AutoApprove: cfg.autoApprove}, common...)
	h.governance = application.NewGovernanceService(h.faults, h.diffs, profiles, scoring.NewEvaluator(),
		decision.DefaultPolicy(), h.lifecycle, h.notifier, common...)
	h.detector = application.NewDetectService(h.registry, h.faults, h.upstream, h.notifier, nil, cfg.scan, common...)
	return h
}

func (h *harness) register(t *testing.T, id, version string, monitor ...domain.MonitorFlag) domain.Component {
	t.Helper()
	c, err := h.registry.Register(context.Background(), domain.Component{
		ID: id, Upstream: "https://github.com/acme/" + id, Version: version, Monitor: monitor,
	})
	require.NoError(t, err)
	return c
}

func (h *harness) scan(t *testing.T) application.ScanReport {
	t.Helper()
	report, err := h.detector.Scan(context.Background(), h.governance.HandleChange)
	require.NoError(t, err)
	return report
}

// openDecision seeds an evaluation with the given recommendation and opens
// its decision.
func (h *harness) openDecision(t *testing.T, componentID, to string, action domain.Recommendation) domain.Decision {
	t.Helper()
	ctx := context.Background()
	if _, err := h.registry.Get(ctx, componentID); err != nil {
		h.register(t, componentID, "v1.0.0")
	}
	scenario, _ := decision.Scenario(decision.ScenarioImmediateUpdate)
	e := domain.Evaluation{
		ID:          "eval-" + componentID + "-" + to,
		ComponentID: componentID,
		Change:      domain.VersionChange{ComponentID: componentID, Kind: domain.ChangeRelease, FromVersion: "v1.0.0", ToVersion: to},
		Analysis:    &domain.ChangeAnalysis{},
		Assessment:  &domain.RiskAssessment{RiskScore: 5, Tier: domain.TierMedium},
		Recommendation: &domain.DecisionRecommendation{
			Action: action, Reason: "seeded", Scenarios: []domain.Scenario{scenario},
		},
		Status:    domain.EvaluationOpen,
		CreatedAt: h.clock.Now(),
	}
	require.NoError(t, h.store.CreateEvaluation(ctx, e))
	d, err := h.lifecycle.Open(ctx, e)
	require.NoError(t, err)
	return d
}
