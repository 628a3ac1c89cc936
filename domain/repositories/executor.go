package repositories

import "context"

// CommandResult is the outcome of one command execution.
type CommandResult struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// CommandExecutor runs a shell command requested by the assistant. The
// executor is untrusted and side-effecting; the engine only invokes it
// and relays the result.
type CommandExecutor interface {
	Execute(ctx context.Context, command string) CommandResult
}
