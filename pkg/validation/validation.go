// Package validation runs a question step's check command in a learner's
// workspace and reduces it to a pass/fail verdict with a message.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ormasoftchile/steplab/pkg/assertions"
	"github.com/ormasoftchile/steplab/pkg/providers"
	"github.com/ormasoftchile/steplab/pkg/schema"
)

// ErrCheckNotFound is returned when the step has no configured check.
var ErrCheckNotFound = errors.New("validation check not found")

// Messages reported in Result.Output.
const (
	MsgSucceeded = "Command executed successfully"
	MsgTimedOut  = "Command timed out after %d seconds"
)

// CheckSource looks up the check for a 1-based step.
type CheckSource interface {
	Check(questionID string, step int) (*schema.Check, error)
}

// Request identifies a check to run.
type Request struct {
	QuestionID string
	Step       int // 1-based
	Namespace  string
	Dir        string
}

// Result is the verdict returned to the learner.
type Result struct {
	Passed   bool   `json:"passed"`
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
	Command  string `json:"-"`
}

// Validator runs checks. Timeout applies when a check sets none.
type Validator struct {
	Checks   CheckSource
	Executor providers.CommandExecutor
	Timeout  time.Duration
}

// Validate loads the check, substitutes the namespace, runs it, and
// judges the outcome. Lookup failures wrap ErrCheckNotFound.
func (v *Validator) Validate(ctx context.Context, req Request) (*Result, error) {
	check, err := v.Checks.Check(req.QuestionID, req.Step)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCheckNotFound, err)
	}

	timeout := v.Timeout
	if check.Timeout != "" {
		if d, err := time.ParseDuration(check.Timeout); err == nil && d > 0 {
			timeout = d
		}
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	command := check.Render(req.Namespace)
	var env []string
	if req.Namespace != "" {
		env = []string{"NAMESPACE=" + req.Namespace}
	}

	res, err := v.Executor.Execute(runCtx, command, req.Dir, env)
	if errors.Is(err, providers.ErrTimeout) || (err != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil) {
		return &Result{
			Passed:   false,
			Output:   fmt.Sprintf(MsgTimedOut, int(timeout.Round(time.Second)/time.Second)),
			ExitCode: -1,
			Command:  command,
		}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run check for step %d: %w", req.Step, err)
	}

	verdict, err := assertions.Evaluate(check.Expect, assertions.Input{
		ExitCode:  res.ExitCode,
		Stdout:    string(res.Stdout),
		Stderr:    string(res.Stderr),
		Namespace: req.Namespace,
	})
	if err != nil {
		return &Result{Passed: false, Output: err.Error(), ExitCode: res.ExitCode, Command: command}, nil
	}

	out := &Result{Passed: verdict.Passed, ExitCode: res.ExitCode, Command: command}
	switch {
	case verdict.Passed:
		out.Output = res.Trimmed()
	case check.Expect != "" && res.ExitCode == 0:
		out.Output = verdict.Message
	default:
		out.Output = strings.TrimSpace(string(res.Stderr))
	}
	if out.Output == "" {
		if verdict.Passed {
			out.Output = MsgSucceeded
		} else {
			out.Output = fmt.Sprintf("Command exited with code %d", res.ExitCode)
		}
	}
	return out, nil
}
