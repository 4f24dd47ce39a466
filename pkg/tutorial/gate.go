package tutorial

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultAdvanceDelay is how long a passed check stays on screen before
// the view moves to the next step.
const DefaultAdvanceDelay = 1500 * time.Millisecond

// StepNumber converts a 0-based step index to the 1-based number external
// validators key on. Every validator request goes through it.
func StepNumber(index int) int {
	return index + 1
}

// CheckOutcome is the result of Gate.Check.
type CheckOutcome struct {
	Verdict
	SessionID string
	Index     int // 0-based index that was checked
	// AdvanceScheduled is true when a pass scheduled a move to Index+1.
	AdvanceScheduled bool
}

// Gate asks the validator about the active step and drives progress from
// the answer. At most one check per session and one namespace
// verification can be in flight at a time.
type Gate struct {
	validator Validator
	channel   *CommandChannel

	// Delay before auto-advance. Zero uses DefaultAdvanceDelay.
	Delay time.Duration
	// Timeout bounds each validator call.
	Timeout time.Duration
	// IntrospectCommand prints the session's current namespace.
	IntrospectCommand string
	// CreateNamespaceCommand, followed by the label, is suggested when
	// verification fails. Empty suggests only IntrospectCommand.
	CreateNamespaceCommand string
	// OnAdvance is called after an auto-advance moves p from one index to
	// the next. It runs on the timer goroutine.
	OnAdvance func(p *Progress, from, to int)

	verifying atomic.Bool

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// NewGate wires a gate to the validator and the command channel used for
// namespace introspection.
func NewGate(validator Validator, channel *CommandChannel) *Gate {
	return &Gate{
		validator:              validator,
		channel:                channel,
		Delay:                  DefaultAdvanceDelay,
		IntrospectCommand:      "oc project -q",
		CreateNamespaceCommand: "oc new-project",
	}
}

// Check validates the active step of s. A passed verdict marks the step
// completed and, unless it is the last step, schedules one auto-advance.
// A failed verdict or error leaves progress untouched. Transport failures
// are returned as *ValidationError, distinct from Passed=false. Closing s
// cancels the call; a check that settles after that returns
// ErrSessionClosed and changes nothing.
func (g *Gate) Check(ctx context.Context, s *Session) (*CheckOutcome, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	if !s.checking.CompareAndSwap(false, true) {
		return nil, ErrCheckInProgress
	}
	defer s.checking.Store(false)

	g.CancelAdvance()

	index := s.Progress.Current()
	step := StepNumber(index)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(s.done, cancel)
	defer stop()
	if g.Timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}
	v, err := g.validator.Validate(ctx, CheckRequest{
		QuestionID: s.Question.ID,
		Step:       step,
		Namespace:  s.Namespace(),
		SessionID:  s.ID,
	})
	if s.Closed() {
		return nil, ErrSessionClosed
	}
	if err != nil {
		return nil, &ValidationError{Step: step, Err: err}
	}

	out := &CheckOutcome{Verdict: *v, SessionID: s.ID, Index: index}
	if !v.Passed {
		return out, nil
	}
	if err := s.Progress.MarkCompleted(index); err != nil {
		return nil, err
	}
	if !s.Progress.IsLast(index) {
		out.AdvanceScheduled = g.scheduleAdvance(s, index)
	}
	return out, nil
}

// scheduleAdvance replaces any pending advance with one from k to k+1 on
// s. It schedules nothing once s is closed.
func (g *Gate) scheduleAdvance(s *Session, k int) bool {
	delay := g.Delay
	if delay <= 0 {
		delay = DefaultAdvanceDelay
	}
	p := s.Progress

	g.mu.Lock()
	defer g.mu.Unlock()
	if s.Closed() {
		return false
	}
	if g.timer != nil {
		g.timer.Stop()
	}
	g.gen++
	gen := g.gen
	g.timer = time.AfterFunc(delay, func() {
		g.mu.Lock()
		if g.gen != gen {
			g.mu.Unlock()
			return
		}
		g.timer = nil
		moved := p.advanceFrom(k)
		g.mu.Unlock()
		if moved && g.OnAdvance != nil {
			g.OnAdvance(p, k, k+1)
		}
	})
	return true
}

// CancelAdvance drops a pending auto-advance. It reports whether one was
// pending.
func (g *Gate) CancelAdvance() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gen++
	if g.timer == nil {
		return false
	}
	g.timer.Stop()
	g.timer = nil
	return true
}

// AdvancePending reports whether an auto-advance is scheduled.
func (g *Gate) AdvancePending() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.timer != nil
}

// NamespaceStatus is the outcome of a namespace verification.
type NamespaceStatus struct {
	Asserted string
	Actual   string
	Verified bool
	// Remediation lists commands to show when not verified.
	Remediation []string
	// Err is set when introspection itself failed.
	Err error
}

// VerifyNamespace compares the session's actual namespace, read through
// the command channel, with label. Only available on the first step. It
// never marks a step completed. Introspection failures yield an
// unverified status with Err set, not an error.
func (g *Gate) VerifyNamespace(ctx context.Context, s *Session, label string) (*NamespaceStatus, error) {
	if s == nil {
		return nil, ErrNoSession
	}
	if s.Progress.Current() != 0 {
		return nil, ErrNotFirstStep
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return nil, ErrEmptyNamespace
	}
	if !g.verifying.CompareAndSwap(false, true) {
		return nil, ErrCheckInProgress
	}
	defer g.verifying.Store(false)

	s.SetNamespace(label)
	st := &NamespaceStatus{Asserted: label}

	res, err := g.channel.Execute(ctx, s.ID, "", g.IntrospectCommand)
	switch {
	case err != nil:
		st.Err = err
	case !res.Success:
		st.Actual = strings.TrimSpace(res.Output)
	default:
		st.Actual = strings.TrimSpace(res.Output)
		st.Verified = st.Actual != "" && st.Actual == label
	}
	if !st.Verified {
		if g.CreateNamespaceCommand != "" {
			st.Remediation = append(st.Remediation, g.CreateNamespaceCommand+" "+label)
		}
		st.Remediation = append(st.Remediation, g.IntrospectCommand)
	}
	return st, nil
}
