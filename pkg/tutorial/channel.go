package tutorial

import (
	"context"
	"strings"
	"time"
)

// CommandChannel sends commands into a session. Calls are independent: no
// history or shell state is kept here, and failures are never retried.
type CommandChannel struct {
	exec    Executor
	timeout time.Duration
}

// NewCommandChannel wraps exec. A positive timeout bounds every call.
func NewCommandChannel(exec Executor, timeout time.Duration) *CommandChannel {
	return &CommandChannel{exec: exec, timeout: timeout}
}

// Execute runs text in the given session. sessionID may be empty for an
// unscoped command. The backend's result is returned as received; any
// transport failure or error status becomes an *ExecutionError.
func (c *CommandChannel) Execute(ctx context.Context, sessionID, namespace, text string) (*CommandResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyCommand
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	res, err := c.exec.Execute(ctx, CommandRequest{
		Command:   text,
		SessionID: sessionID,
		Namespace: namespace,
	})
	if err != nil {
		return nil, &ExecutionError{Command: text, Err: err}
	}
	return res, nil
}

// Lines splits output for display, dropping empty lines. The result
// payload itself is never altered.
func Lines(output string) []string {
	raw := strings.Split(strings.ReplaceAll(output, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(raw))
	for _, l := range raw {
		if strings.TrimSpace(l) == "" {
			continue
		}
		out = append(out, l)
	}
	return out
}
