package providers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// ShellExecutor runs command lines through the platform shell with a
// per-call timeout. A zero Timeout means only ctx bounds the call.
type ShellExecutor struct {
	Timeout time.Duration
	// Environ is the base environment extra variables are appended to.
	// Nil uses os.Environ().
	Environ []string
}

// shellCommand builds sh -c on Unix and cmd.exe /C on Windows. The whole
// line is passed as one argument so pipes and builtins behave as typed.
func shellCommand(ctx context.Context, line string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd.exe", "/C", line)
	}
	return exec.CommandContext(ctx, "sh", "-c", line)
}

// Execute runs command. A non-zero exit is reported in the result, not as
// an error. Timeouts set TimedOut and return ErrTimeout.
func (s *ShellExecutor) Execute(ctx context.Context, command, dir string, env []string) (*CommandResult, error) {
	runCtx := ctx
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	cmd := shellCommand(runCtx, command)
	cmd.Dir = dir
	base := s.Environ
	if base == nil {
		base = os.Environ()
	}
	cmd.Env = append(append([]string(nil), base...), env...)
	// Background children keep the pipes open; don't wait on them forever.
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &CommandResult{
		Stdout:   stdout.Bytes(),
		Stderr:   stderr.Bytes(),
		Duration: time.Since(start),
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		result.TimedOut = true
		result.ExitCode = -1
		return result, fmt.Errorf("%w after %s", ErrTimeout, s.Timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("execute command %q: %w", command, err)
	}
	return result, nil
}

// ErrTimeout is returned when a command exceeds the executor's timeout.
var ErrTimeout = errors.New("command timed out")
