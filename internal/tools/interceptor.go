package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/orbvoice/orb/domain/entities"
	"github.com/orbvoice/orb/domain/repositories"
)

// toolCallPattern finds a single bash tool request, optionally wrapped
// in a fenced code block. The grammar is deliberately narrow: one JSON
// object, "tool" then "command", first match only.
var toolCallPattern = regexp.MustCompile("(?s)(?:```(?:json)?\\s*)?(\\{\"tool\":\\s*\"bash\",\\s*\"command\":\\s*\".*?\"\\})(?:\\s*```)?")

type toolCall struct {
	Tool    string `json:"tool"`
	Command string `json:"command"`
}

// Interceptor detects a command request embedded in a model reply and
// runs it through the external executor. A parse failure is ordinary,
// not exceptional: the reply passes through unchanged.
type Interceptor struct {
	executor repositories.CommandExecutor
	logger   *zap.Logger
}

func NewInterceptor(executor repositories.CommandExecutor, logger *zap.Logger) *Interceptor {
	return &Interceptor{executor: executor, logger: logger}
}

// Intercept scans replyText for a tool call. At most one invocation is
// executed per reply, even if the text matches more than once. The
// returned text is what speech synthesis should read.
func (i *Interceptor) Intercept(ctx context.Context, replyText string) (string, *entities.ToolInvocation) {
	match := toolCallPattern.FindStringSubmatch(replyText)
	if match == nil {
		return replyText, nil
	}

	var call toolCall
	if err := json.Unmarshal([]byte(match[1]), &call); err != nil {
		i.logger.Debug("Ignoring malformed tool call", zap.Error(err))
		return replyText, nil
	}
	if call.Tool != "bash" || call.Command == "" {
		return replyText, nil
	}

	i.logger.Info("Executing assistant tool call", zap.String("command", call.Command))
	result := i.executor.Execute(ctx, call.Command)

	invocation := &entities.ToolInvocation{
		Command: call.Command,
		Output:  result.Output,
		Err:     result.Error,
		Success: result.Success,
	}
	if !result.Success {
		i.logger.Warn("Tool execution failed",
			zap.String("command", call.Command),
			zap.String("error", result.Error))
	}

	// Strip only the honored match so synthesis never reads the raw
	// JSON aloud; any later lookalike text stays untouched.
	loc := toolCallPattern.FindStringIndex(replyText)
	stripped := replyText[:loc[0]] + replyText[loc[1]:]
	return stripped, invocation
}

// SystemMessageContent renders the supplementary context message that
// downstream prompts see as already-known tool output.
func SystemMessageContent(inv *entities.ToolInvocation) string {
	body := inv.Output
	if !inv.Success {
		body = inv.Err
	}
	return fmt.Sprintf("Tool Output (%s): %s", inv.Command, body)
}
