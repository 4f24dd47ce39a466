package schema

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestLoadValidationsShorthandAndMapping(t *testing.T) {
	doc := `{
  "1": "oc project -q | grep -x ${NAMESPACE}",
  "2": {"command": "oc get pods -n ${NAMESPACE}", "expect": "stdout contains \"Running\"", "timeout": "5s"}
}`
	v, err := LoadValidations(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadValidations: %v", err)
	}
	if len(v) != 2 {
		t.Fatalf("got %d checks, want 2", len(v))
	}
	if v["1"].Command != "oc project -q | grep -x ${NAMESPACE}" {
		t.Errorf("check 1 command = %q", v["1"].Command)
	}
	if v["2"].Expect != `stdout contains "Running"` {
		t.Errorf("check 2 expect = %q", v["2"].Expect)
	}
	if v["2"].Timeout != "5s" {
		t.Errorf("check 2 timeout = %q, want 5s", v["2"].Timeout)
	}
}

func TestLoadValidationsYAML(t *testing.T) {
	doc := "\"1\": test -d /tmp\n\"2\":\n  command: echo ok\n"
	v, err := LoadValidations(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("LoadValidations: %v", err)
	}
	if v["1"].Command != "test -d /tmp" || v["2"].Command != "echo ok" {
		t.Errorf("unexpected checks: %+v %+v", v["1"], v["2"])
	}
}

func TestLoadValidationsEmptyFile(t *testing.T) {
	v, err := LoadValidations(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadValidations: %v", err)
	}
	if len(v) != 0 {
		t.Errorf("got %d checks, want 0", len(v))
	}
}

func TestLoadMetadataRejectsUnknownFields(t *testing.T) {
	_, err := LoadMetadata(strings.NewReader(`{"title": "x", "author": "y"}`))
	if err == nil {
		t.Fatal("expected structural error for unknown field")
	}
}

func TestValidationsUnmarshalJSON(t *testing.T) {
	var v Validations
	doc := `{"1": "true", "2": {"command": "cat x", "expect": "trimmed == \"x\""}}`
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if v["1"].Command != "true" || v["2"].Expect != `trimmed == "x"` {
		t.Errorf("validations = %+v %+v", v["1"], v["2"])
	}
	if err := json.Unmarshal([]byte(`{"1": {"cmd": "true"}}`), &v); err == nil {
		t.Error("expected error for unknown check field")
	}
}

func TestCheckRender(t *testing.T) {
	c := &Check{Command: "oc get project ${NAMESPACE} && echo ${NAMESPACE}"}
	if got := c.Render("team-a"); got != "oc get project team-a && echo team-a" {
		t.Errorf("Render = %q", got)
	}
	if got := c.Render(""); got != c.Command {
		t.Errorf("Render with empty namespace = %q, want unchanged", got)
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"deploy-app", true},
		{"q1", true},
		{"", false},
		{"../etc", false},
		{"with space", false},
		{"under_score", false},
	}
	for _, tt := range tests {
		if got := ValidID(tt.id); got != tt.want {
			t.Errorf("ValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
}
