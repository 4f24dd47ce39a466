package tutorial

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// fakeBackend is an in-memory Backend with hooks for each call.
type fakeBackend struct {
	mu        sync.Mutex
	questions map[string]*Question
	nextID    int

	createErr error
	endErr    error
	endGate   chan struct{} // when set, EndSession waits on it
	ended     []string

	execFn    func(CommandRequest) (*CommandResult, error)
	execCalls []CommandRequest

	validateFn func(context.Context, CheckRequest) (*Verdict, error)
	checks     []CheckRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		questions: map[string]*Question{
			"q1": {ID: "q1", Title: "Deploy", Steps: []Step{{Content: "one"}, {Content: "two"}, {Content: "three"}}},
			"q2": {ID: "q2", Title: "Scale", Steps: []Step{{Content: "a"}, {Content: "b"}}},
			"empty": {ID: "empty", Steps: []Step{}},
		},
		execFn: func(CommandRequest) (*CommandResult, error) {
			return &CommandResult{Success: true}, nil
		},
		validateFn: func(context.Context, CheckRequest) (*Verdict, error) {
			return &Verdict{Passed: true, Output: "ok"}, nil
		},
	}
}

func (f *fakeBackend) ListQuestions(ctx context.Context) ([]QuestionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []QuestionSummary
	for _, q := range f.questions {
		out = append(out, QuestionSummary{ID: q.ID, Title: q.Title})
	}
	return out, nil
}

func (f *fakeBackend) GetQuestion(ctx context.Context, id string) (*Question, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	q, ok := f.questions[id]
	if !ok {
		return nil, errors.New("question not found")
	}
	return q, nil
}

func (f *fakeBackend) CreateSession(ctx context.Context, questionID string) (*SessionHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.nextID++
	return &SessionHandle{ID: fmt.Sprintf("s%d", f.nextID)}, nil
}

func (f *fakeBackend) EndSession(ctx context.Context, sessionID string) error {
	if f.endGate != nil {
		<-f.endGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ended = append(f.ended, sessionID)
	return f.endErr
}

func (f *fakeBackend) Execute(ctx context.Context, req CommandRequest) (*CommandResult, error) {
	f.mu.Lock()
	f.execCalls = append(f.execCalls, req)
	fn := f.execFn
	f.mu.Unlock()
	return fn(req)
}

func (f *fakeBackend) Validate(ctx context.Context, req CheckRequest) (*Verdict, error) {
	f.mu.Lock()
	f.checks = append(f.checks, req)
	fn := f.validateFn
	f.mu.Unlock()
	return fn(ctx, req)
}

func (f *fakeBackend) endedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ended...)
}

func (f *fakeBackend) checkSteps() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []int
	for _, c := range f.checks {
		out = append(out, c.Step)
	}
	return out
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestTutor(t *testing.T, b *fakeBackend, delay time.Duration) *Tutor {
	t.Helper()
	tu := New(b, Options{
		RequestTimeout:    time.Second,
		AdvanceDelay:      delay,
		IntrospectCommand: "oc project -q",
		Logger:            quietLogger(),
	})
	t.Cleanup(func() {
		tu.Close()
		tu.Wait()
	})
	return tu
}

// waitEvent returns the next event of kind, failing after a timeout.
func waitEvent(t *testing.T, tu *Tutor, kind EventKind) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-tu.Events():
			if e.Kind == kind {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}
