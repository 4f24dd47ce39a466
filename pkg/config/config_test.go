package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadServerDefaults(t *testing.T) {
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.CommandTimeout != 30*time.Second {
		t.Errorf("CommandTimeout = %v, want 30s", cfg.CommandTimeout)
	}
	if cfg.ValidationTimeout != 10*time.Second {
		t.Errorf("ValidationTimeout = %v, want 10s", cfg.ValidationTimeout)
	}
	if cfg.CommandRate != 5 || cfg.CommandBurst != 10 {
		t.Errorf("rate = %v/%d, want 5/10", cfg.CommandRate, cfg.CommandBurst)
	}
}

func TestLoadServerFromEnv(t *testing.T) {
	t.Setenv("STEPLAB_ADDR", ":9999")
	t.Setenv("STEPLAB_DENIED_COMMANDS", "rm,dd")
	t.Setenv("STEPLAB_SESSION_TTL", "5m")
	cfg, err := LoadServer()
	if err != nil {
		t.Fatalf("LoadServer: %v", err)
	}
	if cfg.Addr != ":9999" {
		t.Errorf("Addr = %q", cfg.Addr)
	}
	if len(cfg.DeniedCommands) != 2 || cfg.DeniedCommands[1] != "dd" {
		t.Errorf("DeniedCommands = %v", cfg.DeniedCommands)
	}
	if cfg.SessionTTL != 5*time.Minute {
		t.Errorf("SessionTTL = %v", cfg.SessionTTL)
	}
}

func TestLoadClientBadDuration(t *testing.T) {
	t.Setenv("STEPLAB_REQUEST_TIMEOUT", "forever")
	if _, err := LoadClient(); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoadClientDefaults(t *testing.T) {
	cfg, err := LoadClient()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.AutoAdvanceDelay != 1500*time.Millisecond {
		t.Errorf("AutoAdvanceDelay = %v", cfg.AutoAdvanceDelay)
	}
	if cfg.IntrospectCommand != "oc project -q" {
		t.Errorf("IntrospectCommand = %q", cfg.IntrospectCommand)
	}
	if cfg.CreateNamespaceCommand != "oc new-project" {
		t.Errorf("CreateNamespaceCommand = %q", cfg.CreateNamespaceCommand)
	}
}

func TestPolicyMerge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("denied_commands: [rm]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	s := &Server{PolicyFile: path, DeniedCommands: []string{"dd"}}
	p, err := s.Policy()
	if err != nil {
		t.Fatalf("Policy: %v", err)
	}
	if len(p.DeniedCommands) != 2 || p.DeniedCommands[0] != "rm" || p.DeniedCommands[1] != "dd" {
		t.Errorf("DeniedCommands = %v", p.DeniedCommands)
	}
}

func TestLoadDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	content := "# comment\nSTEPLAB_TEST_A=\"one\"\nexport STEPLAB_TEST_B=two\nSTEPLAB_TEST_KEEP=file\nbroken\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("STEPLAB_TEST_KEEP", "env")
	t.Setenv("STEPLAB_TEST_A", "")
	os.Unsetenv("STEPLAB_TEST_A")
	t.Cleanup(func() {
		os.Unsetenv("STEPLAB_TEST_A")
		os.Unsetenv("STEPLAB_TEST_B")
	})

	if err := LoadDotEnv(path); err != nil {
		t.Fatalf("LoadDotEnv: %v", err)
	}
	if got := os.Getenv("STEPLAB_TEST_A"); got != "one" {
		t.Errorf("A = %q, want one", got)
	}
	if got := os.Getenv("STEPLAB_TEST_B"); got != "two" {
		t.Errorf("B = %q, want two", got)
	}
	if got := os.Getenv("STEPLAB_TEST_KEEP"); got != "env" {
		t.Errorf("KEEP = %q, want env (not overwritten)", got)
	}
	if err := LoadDotEnv(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Errorf("missing file err = %v", err)
	}
}
