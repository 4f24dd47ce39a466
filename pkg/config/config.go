// Package config holds env-backed settings for the server and the learner
// front ends. Flags override values parsed here.
package config

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/ormasoftchile/steplab/pkg/governance"
)

// Server configures `steplab serve`.
type Server struct {
	Addr              string        `env:"STEPLAB_ADDR"               envDefault:":8080"`
	QuestionsDir      string        `env:"STEPLAB_QUESTIONS_DIR"      envDefault:"questions"`
	WorkspaceDir      string        `env:"STEPLAB_WORKSPACE_DIR"      envDefault:"workspaces"`
	CommandTimeout    time.Duration `env:"STEPLAB_COMMAND_TIMEOUT"    envDefault:"30s"`
	ValidationTimeout time.Duration `env:"STEPLAB_VALIDATION_TIMEOUT" envDefault:"10s"`
	SessionTTL        time.Duration `env:"STEPLAB_SESSION_TTL"        envDefault:"1h"`
	ReapInterval      time.Duration `env:"STEPLAB_REAP_INTERVAL"      envDefault:"1m"`
	PolicyFile        string        `env:"STEPLAB_POLICY_FILE"`
	AllowedCommands   []string      `env:"STEPLAB_ALLOWED_COMMANDS"   envSeparator:","`
	DeniedCommands    []string      `env:"STEPLAB_DENIED_COMMANDS"    envSeparator:","`
	DenyEnvVars       []string      `env:"STEPLAB_DENY_ENV_VARS"      envSeparator:","`
	CommandRate       float64       `env:"STEPLAB_COMMAND_RATE"       envDefault:"5"`
	CommandBurst      int           `env:"STEPLAB_COMMAND_BURST"      envDefault:"10"`
	EnableAdmin       bool          `env:"STEPLAB_ENABLE_ADMIN"       envDefault:"true"`
	LogLevel          string        `env:"STEPLAB_LOG_LEVEL"          envDefault:"info"`
	LogFile           string        `env:"STEPLAB_LOG_FILE"`
}

// Client configures the terminal and MCP front ends.
type Client struct {
	ServerURL              string        `env:"STEPLAB_SERVER_URL"               envDefault:"http://localhost:8080"`
	RequestTimeout         time.Duration `env:"STEPLAB_REQUEST_TIMEOUT"          envDefault:"45s"`
	AutoAdvanceDelay       time.Duration `env:"STEPLAB_AUTO_ADVANCE_DELAY"       envDefault:"1500ms"`
	BootstrapCommand       string        `env:"STEPLAB_BOOTSTRAP_COMMAND"        envDefault:"true"`
	IntrospectCommand      string        `env:"STEPLAB_INTROSPECT_COMMAND"       envDefault:"oc project -q"`
	CreateNamespaceCommand string        `env:"STEPLAB_CREATE_NAMESPACE_COMMAND" envDefault:"oc new-project"`
	LogLevel               string        `env:"STEPLAB_LOG_LEVEL"                envDefault:"warn"`
	LogFile                string        `env:"STEPLAB_LOG_FILE"`
}

// ParseEnv loads configuration from environment variables into target.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// LoadServer parses Server from the environment.
func LoadServer() (*Server, error) {
	var cfg Server
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient parses Client from the environment.
func LoadClient() (*Client, error) {
	var cfg Client
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Policy merges the policy file with the list settings. Lists from the
// environment are appended to those in the file.
func (s *Server) Policy() (*governance.Policy, error) {
	p, err := governance.LoadPolicyFile(s.PolicyFile)
	if err != nil {
		return nil, err
	}
	if p == nil {
		p = &governance.Policy{}
	}
	p.AllowedCommands = append(p.AllowedCommands, s.AllowedCommands...)
	p.DeniedCommands = append(p.DeniedCommands, s.DeniedCommands...)
	p.DenyEnvVars = append(p.DenyEnvVars, s.DenyEnvVars...)
	return p, nil
}

// LoadDotEnv reads KEY=value lines from path into the process environment
// without overwriting variables that are already set. A missing file is
// not an error.
func LoadDotEnv(path string) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimPrefix(line, "export ")
		key, val, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		val = strings.Trim(strings.TrimSpace(val), `"'`)
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, val)
		}
	}
	return scanner.Err()
}
