package governance

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrDenied is wrapped by every command rejection.
var ErrDenied = errors.New("denied by governance policy")

// Engine evaluates a Policy against command lines and environments.
type Engine struct {
	AllowedCommands []string
	DeniedCommands  []string
	DenyEnvVars     []string
	redactions      []*CompiledRedaction
}

// NewEngine builds an engine from policy. A nil policy permits everything.
func NewEngine(policy *Policy) (*Engine, error) {
	if policy == nil {
		return &Engine{}, nil
	}
	redactions, err := CompileRedactionRules(policy.Redact)
	if err != nil {
		return nil, err
	}
	return &Engine{
		AllowedCommands: policy.AllowedCommands,
		DeniedCommands:  policy.DeniedCommands,
		DenyEnvVars:     policy.DenyEnvVars,
		redactions:      redactions,
	}, nil
}

// CheckLine checks the program of every segment in a shell line.
func (g *Engine) CheckLine(line string) error {
	for _, prog := range Programs(line) {
		if err := g.CheckCommand(prog); err != nil {
			return err
		}
	}
	return nil
}

// CheckCommand validates one program name against the lists.
// Deny takes precedence over allow.
func (g *Engine) CheckCommand(command string) error {
	base := filepath.Base(command)
	for _, denied := range g.DeniedCommands {
		if base == denied {
			return fmt.Errorf("command %q: %w", base, ErrDenied)
		}
	}
	if len(g.AllowedCommands) == 0 {
		return nil
	}
	for _, allowed := range g.AllowedCommands {
		if base == allowed {
			return nil
		}
	}
	return fmt.Errorf("command %q is not in the allowlist: %w", base, ErrDenied)
}

// CheckEnvVar validates a variable name against deny_env_vars patterns.
func (g *Engine) CheckEnvVar(name string) error {
	for _, pattern := range g.DenyEnvVars {
		matched, err := filepath.Match(pattern, name)
		if err != nil {
			// Invalid pattern blocks.
			return fmt.Errorf("invalid env var deny pattern %q: %w", pattern, err)
		}
		if matched {
			return fmt.Errorf("environment variable %q matches denied pattern %q", name, pattern)
		}
	}
	return nil
}

// FilterEnvVars drops denied variables, returning the kept entries and the
// names that were blocked.
func (g *Engine) FilterEnvVars(env []string) ([]string, []string) {
	if len(g.DenyEnvVars) == 0 {
		return env, nil
	}
	var filtered, blocked []string
	for _, e := range env {
		name, _, _ := strings.Cut(e, "=")
		if err := g.CheckEnvVar(name); err != nil {
			blocked = append(blocked, name)
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered, blocked
}

// Redact applies the policy's redaction rules.
func (g *Engine) Redact(output string) string {
	return RedactOutput(output, g.redactions)
}

// Programs returns the program name of each segment of a shell line split
// on pipes, semicolons, && and ||. Leading VAR=value assignments are
// skipped. Quoting is not interpreted.
func Programs(line string) []string {
	repl := strings.NewReplacer("&&", "\n", "||", "\n", "|", "\n", ";", "\n")
	var out []string
	for _, seg := range strings.Split(repl.Replace(line), "\n") {
		for _, f := range strings.Fields(seg) {
			if strings.Contains(f, "=") && !strings.HasPrefix(f, "=") {
				continue
			}
			out = append(out, strings.Trim(f, `"'()`))
			break
		}
	}
	return out
}
