// Package runner executes pipeline stages.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/tollgate/tollgate/internal/domain"
)

const (
	maxOutput = 64 << 10
	waitDelay = 2 * time.Second
)

// ShellRunner runs the command configured for each stage through a shell.
// The stage context is exported as TOLLGATE_* environment variables.
type ShellRunner struct {
	shell    string
	workDir  string
	commands map[string]string
	logger   *slog.Logger
}

func NewShellRunner(cfg domain.PipelineConfig, logger *slog.Logger) *ShellRunner {
	shell := cfg.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ShellRunner{shell: shell, workDir: cfg.WorkDir, commands: cfg.Commands, logger: logger}
}

// RunStage returns domain.ErrStageSkipped when no command is configured.
func (r *ShellRunner) RunStage(ctx context.Context, req domain.StageRequest) (string, error) {
	command := strings.TrimSpace(r.commands[req.Stage])
	if command == "" {
		return "", domain.ErrStageSkipped
	}

	cmd := exec.CommandContext(ctx, r.shell, "-c", command)
	cmd.Dir = r.workDir
	cmd.Env = append(os.Environ(), Env(req)...)
	cmd.WaitDelay = waitDelay

	var out bytes.Buffer
	w := &limitedWriter{w: &out, limit: maxOutput}
	cmd.Stdout = w
	cmd.Stderr = w

	r.logger.Debug("running stage", slog.String("stage", req.Stage), slog.String("component", req.ComponentID))
	err := cmd.Run()
	output := out.String()
	if w.truncated {
		output += "\n[output truncated]"
	}

	if ctx.Err() != nil {
		return output, fmt.Errorf("stage %s: %w", req.Stage, ctx.Err())
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return output, fmt.Errorf("stage %s exited with code %d", req.Stage, exitErr.ExitCode())
	}
	if err != nil {
		return output, fmt.Errorf("stage %s: %w", req.Stage, err)
	}
	return output, nil
}

// Env lists the variables a stage command sees.
func Env(req domain.StageRequest) []string {
	env := []string{
		"TOLLGATE_EXECUTION=" + req.ExecutionID,
		"TOLLGATE_STAGE=" + req.Stage,
		"TOLLGATE_COMPONENT=" + req.ComponentID,
		"TOLLGATE_UPSTREAM=" + req.Upstream,
		"TOLLGATE_FROM_VERSION=" + req.FromVersion,
		"TOLLGATE_TO_VERSION=" + req.ToVersion,
	}
	if req.Scenario != nil {
		env = append(env, "TOLLGATE_SCENARIO="+req.Scenario.ID)
	}
	return env
}

// DryRunner reports what would run without running anything.
type DryRunner struct {
	commands map[string]string
}

func NewDryRunner(cfg domain.PipelineConfig) *DryRunner {
	return &DryRunner{commands: cfg.Commands}
}

func (r *DryRunner) RunStage(_ context.Context, req domain.StageRequest) (string, error) {
	command := strings.TrimSpace(r.commands[req.Stage])
	if command == "" {
		return "", domain.ErrStageSkipped
	}
	return fmt.Sprintf("dry run: would execute %q for %s %s", command, req.ComponentID, req.ToVersion), nil
}

type limitedWriter struct {
	w         *bytes.Buffer
	limit     int
	truncated bool
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	remaining := l.limit - l.w.Len()
	if remaining <= 0 {
		l.truncated = true
		return len(p), nil
	}
	if len(p) > remaining {
		l.truncated = true
		l.w.Write(p[:remaining])
		return len(p), nil
	}
	return l.w.Write(p)
}
