package schema

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/steplab/pkg/assertions"
)

// ValidationError represents a single validation error with location context.
type ValidationError struct {
	Phase    string `json:"phase"` // structural, semantic, domain
	Path     string `json:"path"`  // JSON-path-like location (e.g., "validations.2.command")
	Message  string `json:"message"`
	Severity string `json:"severity"` // error, warning
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Phase, e.Path, e.Message)
}

// HasErrors reports whether errs contains at least one error-severity entry.
func HasErrors(errs []*ValidationError) bool {
	for _, e := range errs {
		if e.Severity != "warning" {
			return true
		}
	}
	return false
}

// ValidateQuestion runs the semantic and domain phases on a loaded question.
// The structural phase happens while loading (see catalog).
func ValidateQuestion(q *Question) []*ValidationError {
	errs := validateSemantic(q)
	if HasErrors(errs) {
		return errs
	}
	return append(errs, ValidateDomain(q)...)
}

var (
	compiledOnce   sync.Once
	compiledSchema *sjsonschema.Schema
	compileErr     error
)

func questionSchema() (*sjsonschema.Schema, error) {
	compiledOnce.Do(func() {
		schemaJSON, err := GenerateJSONSchema()
		if err != nil {
			compileErr = fmt.Errorf("generate schema: %w", err)
			return
		}
		var schemaDoc any
		if err := json.Unmarshal(schemaJSON, &schemaDoc); err != nil {
			compileErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := sjsonschema.NewCompiler()
		if err := c.AddResource("question-v1.json", schemaDoc); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = c.Compile("question-v1.json")
	})
	return compiledSchema, compileErr
}

// validateSemantic validates the question against the JSON Schema.
func validateSemantic(q *Question) []*ValidationError {
	sch, err := questionSchema()
	if err != nil {
		return []*ValidationError{semanticError("", err.Error())}
	}

	data, err := json.Marshal(q)
	if err != nil {
		return []*ValidationError{semanticError("", fmt.Sprintf("marshal for schema validation: %v", err))}
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{semanticError("", fmt.Sprintf("unmarshal document: %v", err))}
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return []*ValidationError{semanticError("", err.Error())}
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, semanticError(strings.Join(cause.InstanceLocation, "."), fmt.Sprintf("%v", cause.ErrorKind)))
		}
		return errs
	}
	return nil
}

func semanticError(path, msg string) *ValidationError {
	return &ValidationError{Phase: "semantic", Path: path, Message: msg, Severity: "error"}
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}

// ValidateDomain checks the rules JSON Schema cannot express: contiguous step
// numbering and checks that point at existing steps.
func ValidateDomain(q *Question) []*ValidationError {
	var errs []*ValidationError
	add := func(severity, path, format string, args ...any) {
		errs = append(errs, &ValidationError{
			Phase:    "domain",
			Path:     path,
			Message:  fmt.Sprintf(format, args...),
			Severity: severity,
		})
	}

	if !ValidID(q.ID) {
		add("error", "id", "question id %q must contain only letters, numbers, and hyphens", q.ID)
	}
	if len(q.Steps) == 0 {
		add("warning", "steps", "question has no steps")
	}

	for i, s := range q.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if want := strconv.Itoa(i + 1); s.ID != want {
			add("error", path+".id", "step file %q is out of sequence, expected %q", s.ID, want)
		}
		if strings.TrimSpace(s.Content) == "" {
			add("warning", path+".content", "step %s has no content", s.ID)
		}
		if _, ok := q.Validations[strconv.Itoa(i+1)]; !ok {
			add("warning", path, "step %d has no validation check", i+1)
		}
	}

	keys := make([]string, 0, len(q.Validations))
	for k := range q.Validations {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		path := "validations." + k
		n, err := strconv.Atoi(k)
		if err != nil {
			add("error", path, "validation key %q is not a step number", k)
			continue
		}
		if n < 1 || n > len(q.Steps) {
			add("error", path, "validation for step %d but question has %d steps", n, len(q.Steps))
		}
		c := q.Validations[k]
		if c == nil || strings.TrimSpace(c.Command) == "" {
			add("error", path+".command", "check command is empty")
			continue
		}
		if c.Timeout != "" {
			if _, err := time.ParseDuration(c.Timeout); err != nil {
				add("error", path+".timeout", "invalid timeout %q: %v", c.Timeout, err)
			}
		}
		if strings.TrimSpace(c.Expect) != "" {
			if _, err := assertions.Compile(c.Expect); err != nil {
				add("error", path+".expect", "%v", err)
			}
		}
	}
	return errs
}
