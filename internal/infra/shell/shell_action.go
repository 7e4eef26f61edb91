// internal/infra/shell/shell_action.go
package shell

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"periodic-engine/internal/domain"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultCommandTimeout bounds a single command run.
const DefaultCommandTimeout = 30 * time.Second

// shellAction implements domain.Action for shell commands.
type shellAction struct {
	command string
	timeout time.Duration
	logger  *slog.Logger
	tracer  trace.Tracer
}

// NewShellAction creates an action that runs spec.Command through bash once
// per batch, with the batch as a JSON array on stdin.
func NewShellAction(spec domain.ActionSpec, logger *slog.Logger) (domain.Action, error) {
	if strings.TrimSpace(spec.Command) == "" {
		return nil, fmt.Errorf("%w: shell action needs a command", domain.ErrInvalidConfig)
	}
	return &shellAction{
		command: spec.Command,
		timeout: DefaultCommandTimeout,
		logger:  logger.With("executor_type", "shell"),
		tracer:  otel.Tracer("periodic-engine-shell-action"),
	}, nil
}

// Execute runs the command for one batch. A non-zero exit fails the batch.
func (a *shellAction) Execute(ctx context.Context, batch domain.Batch) error {
	ctx, span := a.tracer.Start(ctx, "action.shell.Execute",
		trace.WithAttributes(
			attribute.String("shell.command", a.command),
			attribute.Int("batch.size", len(batch)),
		))
	defer span.End()

	input, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	_, errOutput, err := run(ctx, a.command, a.timeout, input, nil)
	if errOutput != "" {
		span.SetAttributes(attribute.String("shell.stderr", errOutput))
	}
	if err != nil {
		span.SetStatus(codes.Error, "shell command failed")
		span.RecordError(err)
		a.logger.Debug("shell command failed", "command", a.command, "stderr", errOutput, "error", err)
		return err
	}
	return nil
}

// run executes command with bash -c and returns its stdout and stderr. The
// error message carries the first stderr line so it can be tallied.
func run(ctx context.Context, command string, timeout time.Duration, stdin []byte, env []string) (string, string, error) {
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, "bash", "-c", command)
	if env != nil {
		cmd.Env = env
	}
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	output := stdout.String()
	errOutput := stderr.String()
	if err != nil {
		if line, _, _ := strings.Cut(strings.TrimSpace(errOutput), "\n"); line != "" {
			return output, errOutput, fmt.Errorf("shell command failed: %s", line)
		}
		return output, errOutput, fmt.Errorf("shell command failed: %w", err)
	}
	return output, errOutput, nil
}
