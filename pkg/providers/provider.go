// Package providers runs learner and check commands in a session workspace.
package providers

import (
	"context"
	"strings"
	"time"
)

// CommandResult holds the output of a single command execution.
type CommandResult struct {
	Stdout   []byte        `json:"stdout"`
	Stderr   []byte        `json:"stderr"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

// Combined joins stdout and stderr the way the terminal endpoint reports
// them: stderr follows stdout after a newline when both are present.
func (r *CommandResult) Combined() string {
	switch {
	case len(r.Stderr) == 0:
		return string(r.Stdout)
	case len(r.Stdout) == 0:
		return string(r.Stderr)
	}
	return string(r.Stdout) + "\n" + string(r.Stderr)
}

// Trimmed returns stdout with surrounding whitespace removed.
func (r *CommandResult) Trimmed() string {
	return strings.TrimSpace(string(r.Stdout))
}

// CommandExecutor runs a shell command line in dir with extra environment
// variables appended to the server's own environment.
// Implementations: ShellExecutor, ScriptedExecutor.
type CommandExecutor interface {
	Execute(ctx context.Context, command, dir string, env []string) (*CommandResult, error)
}
