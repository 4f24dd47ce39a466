package providers

import (
	"context"
	"fmt"
	"sync"
)

// ScriptedExecutor returns canned results keyed by command line. It backs
// offline demos and tests where no cluster or shell is available.
type ScriptedExecutor struct {
	mu        sync.Mutex
	responses map[string]*CommandResult
	calls     []ScriptedCall
	// Fallback is returned for unknown commands. Nil makes them an error.
	Fallback *CommandResult
}

// ScriptedCall records one Execute invocation.
type ScriptedCall struct {
	Command string
	Dir     string
	Env     []string
}

// NewScriptedExecutor returns an executor with no canned responses.
func NewScriptedExecutor() *ScriptedExecutor {
	return &ScriptedExecutor{responses: make(map[string]*CommandResult)}
}

// On registers the result for an exact command line.
func (s *ScriptedExecutor) On(command string, result *CommandResult) *ScriptedExecutor {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses[command] = result
	return s
}

// Calls returns a copy of the recorded invocations.
func (s *ScriptedExecutor) Calls() []ScriptedCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScriptedCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// Execute looks up command and returns its canned result.
func (s *ScriptedExecutor) Execute(ctx context.Context, command, dir string, env []string) (*CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ScriptedCall{Command: command, Dir: dir, Env: env})

	r, ok := s.responses[command]
	if !ok {
		r = s.Fallback
	}
	if r == nil {
		return nil, fmt.Errorf("scripted executor: no response for %q", command)
	}
	cp := *r
	if cp.TimedOut {
		return &cp, ErrTimeout
	}
	return &cp, nil
}
