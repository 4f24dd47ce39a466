package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ormasoftchile/steplab/pkg/config"
	"github.com/ormasoftchile/steplab/pkg/tutorial"
	"github.com/ormasoftchile/steplab/pkg/workspace"
)

const fixtures = "../../testdata/questions"

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T, questions string) *config.Server {
	t.Helper()
	return &config.Server{
		Addr:              "127.0.0.1:0",
		QuestionsDir:      questions,
		WorkspaceDir:      t.TempDir(),
		CommandTimeout:    5 * time.Second,
		ValidationTimeout: 5 * time.Second,
		SessionTTL:        time.Hour,
		ReapInterval:      time.Minute,
		CommandRate:       0,
		EnableAdmin:       true,
	}
}

func newTestServer(t *testing.T, questions string) *Server {
	t.Helper()
	s, err := New(testConfig(t, questions), slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// copyFixtures copies the question fixtures so tests may modify them.
func copyFixtures(t *testing.T) string {
	t.Helper()
	dst := t.TempDir()
	err := filepath.WalkDir(fixtures, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(fixtures, path)
		target := filepath.Join(dst, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, 0o644)
	})
	if err != nil {
		t.Fatalf("copy fixtures: %v", err)
	}
	return dst
}

func do(t *testing.T, s *Server, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var out map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
			t.Fatalf("decode %s %s: %v\n%s", method, path, err, w.Body.String())
		}
	}
	return w, out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, fixtures)
	w, out := do(t, s, http.MethodGet, "/healthz", nil)
	if w.Code != http.StatusOK || out["status"] != "ok" {
		t.Fatalf("healthz = %d %v", w.Code, out)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, fixtures)
	do(t, s, http.MethodGet, "/healthz", nil)
	w, _ := do(t, s, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("metrics = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "steplab_http_request_duration_seconds") {
		t.Error("request histogram missing from /metrics")
	}
}

func TestListQuestions(t *testing.T) {
	s := newTestServer(t, fixtures)
	req := httptest.NewRequest(http.MethodGet, "/api/questions", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	var list []map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 || list[1]["id"] != "q1" || list[1]["title"] != "Deploy your first app" {
		t.Errorf("list = %v", list)
	}
}

func TestListQuestionsMissingDir(t *testing.T) {
	s := newTestServer(t, filepath.Join(t.TempDir(), "none"))
	w, out := do(t, s, http.MethodGet, "/api/questions", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 (%v)", w.Code, out)
	}
}

func TestGetQuestion(t *testing.T) {
	s := newTestServer(t, fixtures)
	w, out := do(t, s, http.MethodGet, "/api/questions/q1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	steps, _ := out["steps"].([]any)
	if len(steps) != 3 {
		t.Fatalf("steps = %v", out["steps"])
	}
	first := steps[0].(map[string]any)
	if first["id"] != "1" {
		t.Errorf("first id = %v", first["id"])
	}
	if html, _ := first["html"].(string); !strings.Contains(html, "<h1") {
		t.Errorf("html = %q, want rendered heading", html)
	}
	if _, ok := out["validations"]; ok {
		t.Error("public question must not expose validations")
	}

	w, _ = do(t, s, http.MethodGet, "/api/questions/nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown question = %d, want 404", w.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, fixtures)

	w, out := do(t, s, http.MethodPost, "/api/session/create", map[string]string{"questionId": "q1"})
	if w.Code != http.StatusOK || out["success"] != true {
		t.Fatalf("create = %d %v", w.Code, out)
	}
	id, _ := out["sessionId"].(string)
	if len(id) != 8 {
		t.Errorf("sessionId = %q, want 8 chars", id)
	}
	path, _ := out["workspacePath"].(string)
	if fi, err := os.Stat(path); err != nil || !fi.IsDir() {
		t.Fatalf("workspace %q not created: %v", path, err)
	}

	w, out = do(t, s, http.MethodPost, "/api/session/end", map[string]string{"sessionId": id})
	if w.Code != http.StatusOK || out["success"] != true {
		t.Fatalf("end = %d %v", w.Code, out)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("workspace still present after end")
	}

	w, out = do(t, s, http.MethodPost, "/api/session/end", map[string]string{"sessionId": id})
	if w.Code != http.StatusNotFound || out["error"] != "Invalid session ID" {
		t.Errorf("second end = %d %v", w.Code, out)
	}
}

func TestSessionCreateErrors(t *testing.T) {
	s := newTestServer(t, fixtures)
	w, _ := do(t, s, http.MethodPost, "/api/session/create", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing id = %d, want 400", w.Code)
	}
	w, _ = do(t, s, http.MethodPost, "/api/session/create", map[string]string{"questionId": "nope"})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown question = %d, want 404", w.Code)
	}
}

func TestRequireJSON(t *testing.T) {
	s := newTestServer(t, fixtures)
	req := httptest.NewRequest(http.MethodPost, "/api/terminal/execute", strings.NewReader("command=ls"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Errorf("status = %d, want 415", w.Code)
	}
}

func TestExecuteValidation(t *testing.T) {
	s := newTestServer(t, fixtures)
	w, _ := do(t, s, http.MethodPost, "/api/terminal/execute", map[string]string{"command": "  "})
	if w.Code != http.StatusBadRequest {
		t.Errorf("blank command = %d, want 400", w.Code)
	}
}

func TestExecuteDenied(t *testing.T) {
	cfg := testConfig(t, fixtures)
	cfg.DeniedCommands = []string{"rm"}
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	w, _ := do(t, s, http.MethodPost, "/api/terminal/execute", map[string]string{"command": "ls && rm -rf notes"})
	if w.Code != http.StatusForbidden {
		t.Errorf("denied = %d, want 403", w.Code)
	}
}

func TestExecuteRateLimited(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	cfg := testConfig(t, fixtures)
	cfg.CommandRate = 0.001
	cfg.CommandBurst = 1
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	body := map[string]string{"command": "true"}
	if w, _ := do(t, s, http.MethodPost, "/api/terminal/execute", body); w.Code != http.StatusOK {
		t.Fatalf("first = %d", w.Code)
	}
	if w, _ := do(t, s, http.MethodPost, "/api/terminal/execute", body); w.Code != http.StatusTooManyRequests {
		t.Errorf("second = %d, want 429", w.Code)
	}
}

func TestUnknownSessionIsNotUnscoped(t *testing.T) {
	s := newTestServer(t, fixtures)

	w, out := do(t, s, http.MethodPost, "/api/terminal/execute",
		map[string]string{"command": "pwd", "sessionId": "deadbeef"})
	if w.Code != http.StatusNotFound || out["error"] != "Invalid session ID" {
		t.Errorf("execute with unknown session = %d %v, want 404", w.Code, out)
	}
	if _, ok := out["output"]; ok {
		t.Errorf("command ran: %v", out)
	}

	w, out = do(t, s, http.MethodPost, "/api/validate",
		map[string]any{"question_id": "q1", "step": 1, "sessionId": "deadbeef"})
	if w.Code != http.StatusNotFound || out["error"] != "Invalid session ID" {
		t.Errorf("validate with unknown session = %d %v, want 404", w.Code, out)
	}
}

func TestLimitersOnlyForKnownSessions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	cfg := testConfig(t, fixtures)
	cfg.CommandRate = 1000
	cfg.CommandBurst = 1000
	b, err := NewBackend(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		b.limiter(fmt.Sprintf("bogus-%d", i))
		_, err := b.Execute(ctx, tutorial.CommandRequest{Command: "true", SessionID: fmt.Sprintf("gone-%d", i)})
		if !errors.Is(err, workspace.ErrUnknownSession) {
			t.Fatalf("Execute with unknown session err = %v", err)
		}
	}
	h, err := b.CreateSession(ctx, "q1")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Execute(ctx, tutorial.CommandRequest{Command: "true", SessionID: h.ID}); err != nil {
		t.Fatal(err)
	}

	b.mu.Lock()
	n := len(b.limiters)
	_, known := b.limiters[h.ID]
	b.mu.Unlock()
	if n != 2 || !known {
		t.Errorf("limiters = %d (session bucket %v), want unscoped plus one session", n, known)
	}

	if err := b.EndSession(ctx, h.ID); err != nil {
		t.Fatal(err)
	}
	b.mu.Lock()
	_, known = b.limiters[h.ID]
	b.mu.Unlock()
	if known {
		t.Error("limiter kept after session end")
	}
}

func TestValidateErrors(t *testing.T) {
	s := newTestServer(t, fixtures)
	w, _ := do(t, s, http.MethodPost, "/api/validate", map[string]any{"question_id": "q1"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing step = %d, want 400", w.Code)
	}
	w, _ = do(t, s, http.MethodPost, "/api/validate", map[string]any{"question_id": "q1", "step": "x"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad step = %d, want 400", w.Code)
	}
	w, _ = do(t, s, http.MethodPost, "/api/validate", map[string]any{"question_id": "q1", "step": 9})
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown step = %d, want 404", w.Code)
	}
	w, _ = do(t, s, http.MethodPost, "/api/validate", map[string]any{"question_id": "bare", "step": "1"})
	if w.Code != http.StatusNotFound {
		t.Errorf("no checks = %d, want 404", w.Code)
	}
}

// TestWorkspaceFlow drives a learner through yaml-lab over HTTP: commands
// and checks share the session workspace.
func TestWorkspaceFlow(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	s := newTestServer(t, fixtures)

	_, out := do(t, s, http.MethodPost, "/api/session/create", map[string]string{"questionId": "yaml-lab"})
	id := out["sessionId"].(string)

	check := func(step any) map[string]any {
		w, out := do(t, s, http.MethodPost, "/api/validate", map[string]any{
			"question_id": "yaml-lab", "step": step, "sessionId": id,
		})
		if w.Code != http.StatusOK {
			t.Fatalf("validate %v = %d %v", step, w.Code, out)
		}
		return out
	}
	exec := func(cmd string) map[string]any {
		w, out := do(t, s, http.MethodPost, "/api/terminal/execute", map[string]string{
			"command": cmd, "sessionId": id, "namespace": "lab",
		})
		if w.Code != http.StatusOK {
			t.Fatalf("execute %q = %d %v", cmd, w.Code, out)
		}
		return out
	}

	if v := check(1); v["passed"] != false {
		t.Errorf("step 1 before mkdir = %v", v)
	}
	if r := exec("mkdir notes"); r["success"] != true || r["returnCode"] != float64(0) {
		t.Fatalf("mkdir = %v", r)
	}
	if v := check("1"); v["passed"] != true {
		t.Errorf("step 1 after mkdir = %v", v)
	}

	exec("echo hello > notes/hello.txt")
	if v := check(2); v["passed"] != true {
		t.Errorf("step 2 = %v", v)
	}

	r := exec("echo $NAMESPACE; echo oops >&2; exit 3")
	if r["success"] != false || r["returnCode"] != float64(3) {
		t.Errorf("failing command = %v", r)
	}
	if r["output"] != "lab\n\noops\n" {
		t.Errorf("combined output = %q", r["output"])
	}
}

func TestAdminCRUD(t *testing.T) {
	s := newTestServer(t, copyFixtures(t))

	w, out := do(t, s, http.MethodPost, "/api/admin/questions", map[string]any{"id": "new-lab"})
	if w.Code != http.StatusCreated || out["id"] != "new-lab" {
		t.Fatalf("create = %d %v", w.Code, out)
	}
	w, _ = do(t, s, http.MethodPost, "/api/admin/questions", map[string]any{"id": "new-lab"})
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate = %d, want 409", w.Code)
	}
	w, _ = do(t, s, http.MethodPost, "/api/admin/questions", map[string]any{"id": "bad id!"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid id = %d, want 400", w.Code)
	}

	w, out = do(t, s, http.MethodGet, "/api/admin/questions/new-lab", nil)
	if w.Code != http.StatusOK || out["title"] != "New Question" {
		t.Fatalf("admin get = %d %v", w.Code, out)
	}

	w, out = do(t, s, http.MethodPut, "/api/admin/questions/new-lab", map[string]any{
		"title": "Renamed",
		"steps": []map[string]string{
			{"id": "2", "content": "# Two"},
			{"id": "1", "content": "# One"},
		},
		"validations": map[string]any{
			"1": "true",
			"2": map[string]string{"command": "echo ok", "expect": `trimmed == "ok"`},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("update = %d %v", w.Code, out)
	}

	w, out = do(t, s, http.MethodGet, "/api/questions/new-lab", nil)
	if w.Code != http.StatusOK || out["title"] != "Renamed" {
		t.Fatalf("get after update = %d %v", w.Code, out)
	}
	steps := out["steps"].([]any)
	if len(steps) != 2 || steps[0].(map[string]any)["content"] != "# One" {
		t.Errorf("steps = %v", steps)
	}

	w, _ = do(t, s, http.MethodPut, "/api/admin/questions/new-lab", map[string]any{
		"steps":       []map[string]string{{"id": "1", "content": "# One"}},
		"validations": map[string]any{"3": "true"},
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("check for missing step = %d, want 400", w.Code)
	}

	w, _ = do(t, s, http.MethodDelete, "/api/admin/questions/new-lab", nil)
	if w.Code != http.StatusOK {
		t.Errorf("delete = %d", w.Code)
	}
	w, _ = do(t, s, http.MethodDelete, "/api/admin/questions/new-lab", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete = %d, want 404", w.Code)
	}
	w, _ = do(t, s, http.MethodPut, "/api/admin/questions/new-lab", map[string]any{"title": "x"})
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing = %d, want 404", w.Code)
	}
}

func TestAdminDisabled(t *testing.T) {
	cfg := testConfig(t, fixtures)
	cfg.EnableAdmin = false
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	w, _ := do(t, s, http.MethodGet, "/api/admin/questions", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("admin route = %d, want 404", w.Code)
	}
}
