package governance

import (
	"errors"
	"strings"
	"testing"
)

func TestCheckLineAllowlist(t *testing.T) {
	g := &Engine{AllowedCommands: []string{"oc", "kubectl", "echo", "grep"}}
	if err := g.CheckLine("oc get pods | grep web"); err != nil {
		t.Errorf("expected allowed, got: %v", err)
	}
	if err := g.CheckLine("oc get pods && rm -rf /"); !errors.Is(err, ErrDenied) {
		t.Errorf("err = %v, want ErrDenied for rm", err)
	}
}

func TestDenyTakesPrecedence(t *testing.T) {
	g := &Engine{
		AllowedCommands: []string{"oc", "curl"},
		DeniedCommands:  []string{"curl"},
	}
	if err := g.CheckCommand("oc"); err != nil {
		t.Errorf("oc should pass: %v", err)
	}
	if err := g.CheckCommand("/usr/bin/curl"); !errors.Is(err, ErrDenied) {
		t.Errorf("curl should be denied, got %v", err)
	}
}

func TestNoPolicyAllowsAll(t *testing.T) {
	g, err := NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.CheckLine("anything --at all; rm x"); err != nil {
		t.Errorf("empty governance should allow all: %v", err)
	}
}

func TestPrograms(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"oc get pods", []string{"oc"}},
		{"FOO=1 BAR=2 env | sort", []string{"env", "sort"}},
		{"a; b && c || d", []string{"a", "b", "c", "d"}},
		{"  ", nil},
	}
	for _, tt := range tests {
		got := Programs(tt.line)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Programs(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestEnvVarPatternMatching(t *testing.T) {
	g := &Engine{DenyEnvVars: []string{"SECRET_*", "TOKEN", "AWS_*"}}
	tests := []struct {
		name    string
		blocked bool
	}{
		{"SECRET_KEY", true},
		{"TOKEN", true},
		{"AWS_ACCESS_KEY", true},
		{"HOME", false},
		{"NAMESPACE", false},
	}
	for _, tt := range tests {
		err := g.CheckEnvVar(tt.name)
		if tt.blocked != (err != nil) {
			t.Errorf("CheckEnvVar(%q) err = %v, blocked want %v", tt.name, err, tt.blocked)
		}
	}

	kept, blocked := g.FilterEnvVars([]string{"HOME=/root", "TOKEN=abc", "NAMESPACE=a=b"})
	if len(kept) != 2 || kept[1] != "NAMESPACE=a=b" {
		t.Errorf("kept = %v", kept)
	}
	if len(blocked) != 1 || blocked[0] != "TOKEN" {
		t.Errorf("blocked = %v", blocked)
	}
}

func TestLoadPolicyAndRedact(t *testing.T) {
	p, err := LoadPolicy(strings.NewReader(`
denied_commands: [rm]
redact:
  - pattern: 'sha256~[A-Za-z0-9_-]+'
    replace: '[REDACTED]'
`))
	if err != nil {
		t.Fatalf("LoadPolicy: %v", err)
	}
	g, err := NewEngine(p)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	got := g.Redact("token: sha256~abcDEF_12\n")
	if got != "token: [REDACTED]\n" {
		t.Errorf("Redact = %q", got)
	}
}

func TestLoadPolicyUnknownField(t *testing.T) {
	if _, err := LoadPolicy(strings.NewReader("allow: [oc]\n")); err == nil {
		t.Error("expected error for unknown field")
	}
}

func TestBadRedactionPattern(t *testing.T) {
	if _, err := NewEngine(&Policy{Redact: []RedactionRule{{Pattern: "("}}}); err == nil {
		t.Error("expected compile error")
	}
}
