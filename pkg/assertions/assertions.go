// Package assertions evaluates the optional expect expression of a check
// against a command's output.
package assertions

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// Input is what an expectation can see about the finished command.
type Input struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Namespace string
}

// Result is the outcome of one expectation.
type Result struct {
	Expression string `json:"expression"`
	Passed     bool   `json:"passed"`
	Message    string `json:"message"`
}

// env builds the expression environment. Field names are snake_case to
// read naturally in question files.
func env(in Input) map[string]any {
	return map[string]any{
		"exit_code": in.ExitCode,
		"stdout":    in.Stdout,
		"stderr":    in.Stderr,
		"output":    in.Stdout + "\n" + in.Stderr,
		"trimmed":   strings.TrimSpace(in.Stdout),
		"namespace": in.Namespace,
		"lines":     splitLines(in.Stdout),
		"jsonpath":  JSONPath,
	}
}

// Compile type-checks an expectation without running it.
func Compile(expression string) (*vm.Program, error) {
	program, err := expr.Compile(expression, expr.Env(env(Input{})), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expectation %q: %w", expression, err)
	}
	return program, nil
}

// Evaluate runs expression against in. An empty expression passes when the
// command exited zero.
func Evaluate(expression string, in Input) (*Result, error) {
	expression = strings.TrimSpace(expression)
	if expression == "" {
		r := &Result{Passed: in.ExitCode == 0}
		r.Message = fmt.Sprintf("exit code %d", in.ExitCode)
		return r, nil
	}

	program, err := Compile(expression)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, env(in))
	if err != nil {
		return nil, fmt.Errorf("eval expectation %q: %w", expression, err)
	}
	passed, ok := out.(bool)
	if !ok {
		return nil, fmt.Errorf("expectation %q did not return bool (got %T)", expression, out)
	}
	r := &Result{Expression: expression, Passed: passed}
	if passed {
		r.Message = fmt.Sprintf("expectation met: %s", expression)
	} else {
		r.Message = fmt.Sprintf("expectation not met: %s (stdout %q)", expression, truncate(strings.TrimSpace(in.Stdout), 200))
	}
	return r, nil
}

// JSONPath extracts a value at a dot path like $.status.phase from a JSON
// document, rendered as a string. Missing keys and invalid JSON yield "".
func JSONPath(doc, path string) string {
	var data any
	if err := json.Unmarshal([]byte(doc), &data); err != nil {
		return ""
	}
	v, err := navigateJSONPath(data, path)
	if err != nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}

func navigateJSONPath(data any, path string) (any, error) {
	path = strings.TrimPrefix(path, "$.")
	path = strings.TrimPrefix(path, "$")
	if path == "" {
		return data, nil
	}
	current := data
	for _, part := range strings.Split(path, ".") {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("expected object at %q, got %T", part, current)
		}
		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("key %q not found", part)
		}
		current = val
	}
	return current, nil
}

func splitLines(s string) []string {
	s = strings.TrimRight(s, "\n")
	if s == "" {
		return []string{}
	}
	return strings.Split(s, "\n")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
