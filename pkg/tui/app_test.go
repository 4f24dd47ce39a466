package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

// stubBackend serves three-step questions and answers checks with passed.
type stubBackend struct {
	mu       sync.Mutex
	sessions int
	commands []tutorial.CommandRequest
	checks   []tutorial.CheckRequest
	passed   bool
	// holdQ1 blocks q1 checks until their context ends; entered is
	// signalled when one starts.
	holdQ1  bool
	entered chan struct{}
}

func (b *stubBackend) ListQuestions(context.Context) ([]tutorial.QuestionSummary, error) {
	return []tutorial.QuestionSummary{{ID: "q1", Title: "Deploy"}, {ID: "q2", Title: "Scale"}}, nil
}

func (b *stubBackend) GetQuestion(_ context.Context, id string) (*tutorial.Question, error) {
	return &tutorial.Question{ID: id, Title: "Deploy", Description: "Roll out the web tier.", Steps: []tutorial.Step{
		{Content: "# Create the namespace\n\nrun it"},
		{Content: "# Deploy\n"},
		{Content: "no heading"},
	}}, nil
}

func (b *stubBackend) CreateSession(context.Context, string) (*tutorial.SessionHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sessions++
	return &tutorial.SessionHandle{ID: fmt.Sprintf("s%d", b.sessions)}, nil
}

func (b *stubBackend) EndSession(context.Context, string) error { return nil }

func (b *stubBackend) Execute(_ context.Context, req tutorial.CommandRequest) (*tutorial.CommandResult, error) {
	b.commands = append(b.commands, req)
	if strings.HasPrefix(req.Command, "oc project") {
		return &tutorial.CommandResult{Success: true, Output: "lab\n"}, nil
	}
	return &tutorial.CommandResult{Success: true, Output: "hello\n"}, nil
}

func (b *stubBackend) Validate(ctx context.Context, req tutorial.CheckRequest) (*tutorial.Verdict, error) {
	b.mu.Lock()
	b.checks = append(b.checks, req)
	b.mu.Unlock()
	if b.holdQ1 && req.QuestionID == "q1" {
		b.entered <- struct{}{}
		<-ctx.Done()
	}
	return &tutorial.Verdict{Passed: b.passed, Output: "checked"}, nil
}

func newTestModel(t *testing.T, b *stubBackend) Model {
	t.Helper()
	tutor := tutorial.New(b, tutorial.Options{
		RequestTimeout:    time.Second,
		AdvanceDelay:      time.Hour,
		IntrospectCommand: "oc project -q",
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	t.Cleanup(func() {
		tutor.Close()
		tutor.Wait()
	})
	m := NewModel(context.Background(), Config{Tutor: tutor})
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next.(Model)
}

func press(t *testing.T, m Model, keys ...string) (Model, tea.Cmd) {
	t.Helper()
	var cmd tea.Cmd
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "enter":
			msg = tea.KeyMsg{Type: tea.KeyEnter}
		case "esc":
			msg = tea.KeyMsg{Type: tea.KeyEsc}
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "right":
			msg = tea.KeyMsg{Type: tea.KeyRight}
		case "left":
			msg = tea.KeyMsg{Type: tea.KeyLeft}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		var next tea.Model
		next, cmd = m.Update(msg)
		m = next.(Model)
	}
	return m, cmd
}

// run executes cmd and feeds its message back into the model.
func run(t *testing.T, m Model, cmd tea.Cmd) Model {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a command")
	}
	next, _ := m.Update(cmd())
	return next.(Model)
}

func openQ1(t *testing.T, m Model) Model {
	t.Helper()
	m = run(t, m, m.loadQuestions())
	m, cmd := press(t, m, "enter")
	m = run(t, m, cmd)
	if m.view != viewQuestion || m.session == nil {
		t.Fatalf("view = %v, session = %v; status %q", m.view, m.session, m.status)
	}
	return m
}

func TestOpenQuestionFromList(t *testing.T) {
	m := newTestModel(t, &stubBackend{})
	m = run(t, m, m.loadQuestions())
	if len(m.questions) != 2 {
		t.Fatalf("questions = %v", m.questions)
	}
	m, _ = press(t, m, "j")
	if m.cursor != 1 {
		t.Errorf("cursor = %d, want 1", m.cursor)
	}
	m, _ = press(t, m, "k")
	m = openQ1(t, m)

	if got := m.steps.titles; len(got) != 3 || got[0] != "Create the namespace" || got[2] != "Step 3" {
		t.Errorf("titles = %v", got)
	}
	view := m.View()
	if !strings.Contains(view, "step 1 of 3") {
		t.Error("view missing step counter")
	}
	if !strings.Contains(view, "Roll out the web tier.") {
		t.Error("view missing the question description")
	}
}

func TestNavigationKeys(t *testing.T) {
	m := openQ1(t, newTestModel(t, &stubBackend{}))
	m, _ = press(t, m, "right")
	if got := m.session.Progress.Current(); got != 1 {
		t.Fatalf("after right = %d", got)
	}
	m, _ = press(t, m, "3")
	if got := m.session.Progress.Current(); got != 2 {
		t.Fatalf("after 3 = %d", got)
	}
	m, _ = press(t, m, "right")
	if !strings.Contains(m.status, "last step") {
		t.Errorf("status = %q", m.status)
	}
	m, _ = press(t, m, "9")
	if got := m.session.Progress.Current(); got != 2 {
		t.Errorf("out of range jump moved to %d", got)
	}
	m, _ = press(t, m, "left")
	if got := m.session.Progress.Current(); got != 1 {
		t.Errorf("after left = %d", got)
	}
}

func TestRunCommand(t *testing.T) {
	b := &stubBackend{}
	m := openQ1(t, newTestModel(t, b))
	m, _ = press(t, m, "tab")
	if m.focus != focusCommand {
		t.Fatalf("focus = %v", m.focus)
	}
	m, _ = press(t, m, "l", "s")
	m, cmd := press(t, m, "enter")
	m = run(t, m, cmd)

	if len(b.commands) != 1 || b.commands[0].Command != "ls" || b.commands[0].SessionID != "s1" {
		t.Fatalf("commands = %+v", b.commands)
	}
	var text []string
	for _, l := range m.transcript.lines {
		text = append(text, l.text)
	}
	if strings.Join(text, "|") != "$ ls|hello" {
		t.Errorf("transcript = %v", text)
	}
	// Letters typed into the terminal are not navigation keys.
	if m.session.Progress.Current() != 0 {
		t.Error("typing moved the step")
	}
}

func TestCheckPass(t *testing.T) {
	b := &stubBackend{passed: true}
	m := openQ1(t, newTestModel(t, b))
	m, cmd := press(t, m, "c")
	if !m.checking {
		t.Error("checking flag not set")
	}
	m = run(t, m, cmd)
	if len(b.checks) != 1 || b.checks[0].Step != 1 {
		t.Fatalf("checks = %+v", b.checks)
	}
	if !strings.Contains(m.status, "Step 1 passed") {
		t.Errorf("status = %q", m.status)
	}
	if !m.session.Progress.IsCompleted(0) {
		t.Error("step 1 not marked completed")
	}
	if !strings.Contains(m.steps.Dots(), GlyphActiveCompleted) {
		t.Errorf("dots = %q", m.steps.Dots())
	}
}

func TestCheckFail(t *testing.T) {
	m := openQ1(t, newTestModel(t, &stubBackend{}))
	m, cmd := press(t, m, "c")
	m = run(t, m, cmd)
	if !m.statusErr || !strings.Contains(m.status, "not complete") {
		t.Errorf("status = %q", m.status)
	}
}

func TestNamespaceInput(t *testing.T) {
	m := openQ1(t, newTestModel(t, &stubBackend{}))
	m, _ = press(t, m, "n")
	if m.focus != focusNamespace {
		t.Fatalf("focus = %v", m.focus)
	}
	m, _ = press(t, m, "l", "a", "b")
	m, cmd := press(t, m, "enter")
	m = run(t, m, cmd)
	if m.statusErr || !strings.Contains(m.status, "verified") {
		t.Errorf("status = %q", m.status)
	}
	if m.session.Namespace() != "lab" {
		t.Errorf("namespace = %q", m.session.Namespace())
	}
}

func TestNamespaceOnlyOnFirstStep(t *testing.T) {
	m := openQ1(t, newTestModel(t, &stubBackend{}))
	m, _ = press(t, m, "right", "n")
	if m.focus == focusNamespace {
		t.Error("namespace input opened on step 2")
	}
}

func TestBackToList(t *testing.T) {
	m := openQ1(t, newTestModel(t, &stubBackend{}))
	m, _ = press(t, m, "b")
	if m.view != viewList || m.session != nil {
		t.Errorf("view = %v", m.view)
	}
	if m.tutor.Session() != nil {
		t.Error("tutor session still open")
	}
}

func TestStaleEventIgnored(t *testing.T) {
	m := openQ1(t, newTestModel(t, &stubBackend{}))
	next, _ := m.Update(tutorEventMsg{ev: tutorial.Event{Kind: tutorial.EventAdvanced, SessionID: "other", Index: 2}})
	m = next.(Model)
	if m.status != "" {
		t.Errorf("status = %q, want untouched", m.status)
	}
}

func TestTranscriptTruncatesToWidth(t *testing.T) {
	var p transcriptPanel
	p.SetSize(14, 10)
	p.AppendCommand("echo", &tutorial.CommandResult{Success: false, Output: strings.Repeat("界", 20), ReturnCode: 2})
	view := p.viewport.View()
	if strings.Contains(view, strings.Repeat("界", 6)) {
		t.Errorf("line not truncated: %q", view)
	}
	if !strings.Contains(view, "[exit 2]") {
		t.Errorf("exit code missing: %q", view)
	}
}

func TestKeyBarText(t *testing.T) {
	if got := keyBarText(viewQuestion, focusNone, true); !strings.Contains(got, "namespace") {
		t.Errorf("first step hints = %q", got)
	}
	if got := keyBarText(viewQuestion, focusNone, false); strings.Contains(got, "namespace") {
		t.Errorf("later step hints = %q", got)
	}
	if got := keyBarText(viewQuestion, focusCommand, false); !strings.Contains(got, "leave terminal") {
		t.Errorf("terminal hints = %q", got)
	}
}

func TestSwitchQuestionMidCheck(t *testing.T) {
	b := &stubBackend{passed: true, holdQ1: true, entered: make(chan struct{}, 1)}
	m := openQ1(t, newTestModel(t, b))
	first := m.session.ID

	m, cmd := press(t, m, "c")
	settled := make(chan tea.Msg, 1)
	go func() { settled <- cmd() }()
	<-b.entered

	m, _ = press(t, m, "b", "j")
	m, cmd = press(t, m, "enter")
	m = run(t, m, cmd)
	if m.session.Question.ID != "q2" || m.session.ID == first {
		t.Fatalf("session = %s/%s, want a new q2 session", m.session.Question.ID, m.session.ID)
	}

	next, _ := m.Update(<-settled)
	m = next.(Model)
	if m.status != "" || len(m.transcript.lines) != 0 {
		t.Errorf("stale check reached q2: status %q, transcript %v", m.status, m.transcript.lines)
	}
	if m.session.Progress.IsCompleted(0) {
		t.Error("stale check completed a q2 step")
	}

	m, cmd = press(t, m, "c")
	if !m.checking {
		t.Fatal("check on q2 was not started")
	}
	m = run(t, m, cmd)
	if !strings.Contains(m.status, "Step 1 passed") || !m.session.Progress.IsCompleted(0) {
		t.Errorf("q2 check: status %q", m.status)
	}
}
