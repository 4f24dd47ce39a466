// Package schema defines the Go struct types for question directories
// (metadata, steps, validation checks) and provides strict YAML/JSON parsing.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// APIVersion is the version tag written into generated schemas.
const APIVersion = "question/v1"

// NamespacePlaceholder is substituted with the learner's namespace in checks
// and remediation hints.
const NamespacePlaceholder = "${NAMESPACE}"

// idPattern restricts question IDs to letters, digits and hyphens.
var idPattern = regexp.MustCompile(`^[A-Za-z0-9-]+$`)

// ValidID reports whether id may name a question directory.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Question is a guided hands-on exercise: metadata plus an ordered list of
// steps and the checks that gate them.
type Question struct {
	ID          string      `yaml:"id"                    json:"id"                    jsonschema:"required,pattern=^[A-Za-z0-9-]+$"`
	Title       string      `yaml:"title,omitempty"       json:"title,omitempty"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []Step      `yaml:"steps"                 json:"steps"`
	Validations Validations `yaml:"validations,omitempty" json:"validations,omitempty"`
}

// Step is one stage of a question. Its position in Question.Steps is its
// ordinal; ID is the file stem it was loaded from ("1", "2", ...).
type Step struct {
	ID      string `yaml:"id"             json:"id"             jsonschema:"required,pattern=^[0-9]+$"`
	Content string `yaml:"content"        json:"content"`
	HTML    string `yaml:"html,omitempty" json:"html,omitempty"`
}

// Metadata is the content of metadata.{json,yaml}.
type Metadata struct {
	Title       string `yaml:"title,omitempty"       json:"title,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Validations maps a 1-based step number ("1", "2", ...) to its check.
type Validations map[string]*Check

// Check is the externally judged condition for one step.
// In YAML/JSON it is either a bare command string or a mapping.
type Check struct {
	Command string `yaml:"command"           json:"command"           jsonschema:"required,minLength=1"`
	Expect  string `yaml:"expect,omitempty"  json:"expect,omitempty"`
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty" jsonschema:"pattern=^[0-9]+(ms|s|m)$"`
}

// UnmarshalYAML accepts both the shorthand `"1": "kubectl get ns foo"` and
// the full mapping form.
func (c *Check) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Command = node.Value
		return nil
	}
	type plain Check
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*c = Check(p)
	return nil
}

// UnmarshalJSON accepts the same two forms as UnmarshalYAML.
func (c *Check) UnmarshalJSON(data []byte) error {
	var cmd string
	if err := json.Unmarshal(data, &cmd); err == nil {
		*c = Check{Command: cmd}
		return nil
	}
	type plain Check
	var p plain
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return fmt.Errorf("check must be a command string or an object: %w", err)
	}
	*c = Check(p)
	return nil
}

// Render substitutes the namespace placeholder. An empty namespace leaves
// the command untouched.
func (c *Check) Render(namespace string) string {
	if namespace == "" {
		return c.Command
	}
	return strings.ReplaceAll(c.Command, NamespacePlaceholder, namespace)
}

// LoadMetadataFile reads metadata.json or metadata.yaml.
func LoadMetadataFile(path string) (*Metadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()
	return LoadMetadata(f)
}

// LoadMetadata decodes metadata strictly: unknown fields are rejected.
// JSON documents decode through the same path since JSON is valid YAML.
func LoadMetadata(r io.Reader) (*Metadata, error) {
	var m Metadata
	if err := decodeStrict(r, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadValidationsFile reads validation.json or validation.yaml.
func LoadValidationsFile(path string) (Validations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open validations: %w", err)
	}
	defer f.Close()
	return LoadValidations(f)
}

// LoadValidations decodes a step-number → check map.
func LoadValidations(r io.Reader) (Validations, error) {
	v := Validations{}
	if err := decodeStrict(r, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeStrict(r io.Reader, out any) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return nil // empty file
		}
		return fmt.Errorf("structural decode: %w", err)
	}
	return nil
}
