// Package governance guards the terminal endpoint: command allow/deny lists,
// environment variable blocking, and output redaction.
package governance

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the on-disk governance configuration.
type Policy struct {
	AllowedCommands []string        `yaml:"allowed_commands,omitempty" json:"allowed_commands,omitempty"`
	DeniedCommands  []string        `yaml:"denied_commands,omitempty"  json:"denied_commands,omitempty"`
	DenyEnvVars     []string        `yaml:"deny_env_vars,omitempty"    json:"deny_env_vars,omitempty"`
	Redact          []RedactionRule `yaml:"redact,omitempty"           json:"redact,omitempty"`
}

// RedactionRule replaces every match of Pattern with Replace.
type RedactionRule struct {
	Pattern string `yaml:"pattern" json:"pattern"`
	Replace string `yaml:"replace" json:"replace"`
}

// LoadPolicyFile reads a YAML policy. An empty path yields a nil policy,
// which NewEngine treats as permissive.
func LoadPolicyFile(path string) (*Policy, error) {
	if path == "" {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open policy: %w", err)
	}
	defer f.Close()
	return LoadPolicy(f)
}

// LoadPolicy decodes a policy strictly.
func LoadPolicy(r io.Reader) (*Policy, error) {
	var p Policy
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode policy: %w", err)
	}
	return &p, nil
}
