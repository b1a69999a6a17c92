package runner_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tollgate/tollgate/internal/adapters/outbound/runner"
	"github.com/tollgate/tollgate/internal/domain"
)

func request(stage string) domain.StageRequest {
	return domain.StageRequest{
		ExecutionID: "exec-1",
		Stage:       stage,
		ComponentID: "libfoo",
		Upstream:    "https://github.com/acme/libfoo",
		FromVersion: "v1.0.0",
		ToVersion:   "v1.1.0",
		Scenario:    &domain.Scenario{ID: "immediate_update"},
	}
}

func TestShellRunner_ExportsStageContext(t *testing.T) {
	r := runner.NewShellRunner(domain.PipelineConfig{
		WorkDir: t.TempDir(),
		Commands: map[string]string{
			domain.StageApplication: `echo "$TOLLGATE_COMPONENT $TOLLGATE_FROM_VERSION->$TOLLGATE_TO_VERSION $TOLLGATE_SCENARIO"`,
		},
	}, nil)

	out, err := r.RunStage(context.Background(), request(domain.StageApplication))
	require.NoError(t, err)
	assert.Equal(t, "libfoo v1.0.0->v1.1.0 immediate_update", strings.TrimSpace(out))
}

func TestShellRunner_MissingCommandSkips(t *testing.T) {
	r := runner.NewShellRunner(domain.PipelineConfig{}, nil)
	_, err := r.RunStage(context.Background(), request(domain.StageDeployment))
	assert.ErrorIs(t, err, domain.ErrStageSkipped)
}

func TestShellRunner_NonZeroExitFails(t *testing.T) {
	r := runner.NewShellRunner(domain.PipelineConfig{
		Commands: map[string]string{domain.StageValidation: "echo tests failed >&2; exit 3"},
	}, nil)
	out, err := r.RunStage(context.Background(), request(domain.StageValidation))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exited with code 3")
	assert.Contains(t, out, "tests failed")
}

func TestShellRunner_Timeout(t *testing.T) {
	r := runner.NewShellRunner(domain.PipelineConfig{
		Commands: map[string]string{domain.StageDeployment: "sleep 5"},
	}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := r.RunStage(ctx, request(domain.StageDeployment))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDryRunner(t *testing.T) {
	r := runner.NewDryRunner(domain.PipelineConfig{
		Commands: map[string]string{domain.StageDeployment: "make deploy"},
	})
	out, err := r.RunStage(context.Background(), request(domain.StageDeployment))
	require.NoError(t, err)
	assert.Contains(t, out, `would execute "make deploy"`)

	_, err = r.RunStage(context.Background(), request(domain.StagePreparation))
	assert.ErrorIs(t, err, domain.ErrStageSkipped)
}

func TestEnv(t *testing.T) {
	req := request(domain.StagePreparation)
	req.Scenario = nil
	env := runner.Env(req)
	assert.Contains(t, env, "TOLLGATE_STAGE=preparation")
	assert.Contains(t, env, "TOLLGATE_UPSTREAM=https://github.com/acme/libfoo")
	for _, kv := range env {
		assert.False(t, strings.HasPrefix(kv, "TOLLGATE_SCENARIO="))
	}
}
