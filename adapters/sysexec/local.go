package sysexec

import (
	"context"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/repositories"
)

const defaultTimeout = 30 * time.Second

// LocalExecutor runs assistant-requested commands through the local
// shell. It enforces a per-command timeout but does no sandboxing; the
// engine treats the output as untrusted either way.
type LocalExecutor struct {
	shell   string
	timeout time.Duration
	logger  *zap.Logger
}

var _ repositories.CommandExecutor = (*LocalExecutor)(nil)

func NewLocalExecutor(logger *zap.Logger) *LocalExecutor {
	return &LocalExecutor{shell: "/bin/sh", timeout: defaultTimeout, logger: logger}
}

func (e *LocalExecutor) Execute(ctx context.Context, command string) repositories.CommandResult {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	e.logger.Info("Executing command", zap.String("command", command))

	cmd := exec.CommandContext(ctx, e.shell, "-c", command)
	output, err := cmd.CombinedOutput()
	if err != nil {
		e.logger.Warn("Command failed", zap.String("command", command), zap.Error(err))
		return repositories.CommandResult{Success: false, Output: string(output), Error: err.Error()}
	}

	return repositories.CommandResult{Success: true, Output: string(output)}
}
