// Package tutorial is the learner-side state machine for guided exercises:
// opening a question binds a session, commands flow through the command
// channel, and checks on the active step gate progress.
//
// A Tutor owns exactly one open Session at a time. Front ends (TUI, shell,
// MCP) drive it and render from Session.Progress and the Events channel.
package tutorial

import (
	"context"
	"log/slog"
	"time"
)

// EventKind classifies a Tutor event.
type EventKind string

const (
	EventOpened   EventKind = "opened"
	EventClosed   EventKind = "closed"
	EventAdvanced EventKind = "advanced"
)

// Event notifies front ends of state changes they did not initiate
// directly, chiefly auto-advance.
type Event struct {
	Kind      EventKind
	SessionID string
	Index     int
}

// Options configures a Tutor.
type Options struct {
	// RequestTimeout bounds every backend call.
	RequestTimeout time.Duration
	// AdvanceDelay is the pause before auto-advance.
	AdvanceDelay time.Duration
	// BootstrapCommand provisions new sessions. Empty skips it.
	BootstrapCommand string
	// IntrospectCommand prints the session's current namespace.
	IntrospectCommand string
	// CreateNamespaceCommand is suggested, with the label appended, when
	// namespace verification fails. Empty keeps the gate default.
	CreateNamespaceCommand string
	// AllowUnscoped permits commands when no question is open.
	AllowUnscoped bool
	Logger        *slog.Logger
}

// Tutor ties the session manager, command channel, progress engine and
// validation gate together for one learner.
type Tutor struct {
	manager *SessionManager
	channel *CommandChannel
	gate    *Gate
	opts    Options
	logger  *slog.Logger
	events  chan Event
}

// New builds a Tutor over backend.
func New(backend Backend, opts Options) *Tutor {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	channel := NewCommandChannel(backend, opts.RequestTimeout)
	manager := NewSessionManager(backend, backend, channel, logger)
	manager.BootstrapCommand = opts.BootstrapCommand
	manager.Timeout = opts.RequestTimeout

	gate := NewGate(backend, channel)
	gate.Timeout = opts.RequestTimeout
	if opts.AdvanceDelay > 0 {
		gate.Delay = opts.AdvanceDelay
	}
	if opts.IntrospectCommand != "" {
		gate.IntrospectCommand = opts.IntrospectCommand
	}
	if opts.CreateNamespaceCommand != "" {
		gate.CreateNamespaceCommand = opts.CreateNamespaceCommand
	}

	t := &Tutor{
		manager: manager,
		channel: channel,
		gate:    gate,
		opts:    opts,
		logger:  logger,
		events:  make(chan Event, 16),
	}
	gate.OnAdvance = t.advanced
	return t
}

// Events delivers notifications. Events are dropped when the buffer is
// full; the state remains authoritative.
func (t *Tutor) Events() <-chan Event {
	return t.events
}

func (t *Tutor) emit(e Event) {
	select {
	case t.events <- e:
	default:
		t.logger.Debug("event dropped", "kind", e.Kind)
	}
}

func (t *Tutor) advanced(p *Progress, from, to int) {
	s := t.manager.Current()
	if s == nil || s.Progress != p {
		return
	}
	t.logger.Debug("auto-advanced", "session", s.ID, "from", from, "to", to)
	t.emit(Event{Kind: EventAdvanced, SessionID: s.ID, Index: to})
}

// Questions lists the catalog.
func (t *Tutor) Questions(ctx context.Context) ([]QuestionSummary, error) {
	return t.manager.Questions(ctx)
}

// Open switches to questionID. Progress starts at step 0 with nothing
// completed. The returned error is a *CatalogError or *SessionError when
// no session could be opened. Bootstrap failures are reported on the
// session, not here.
func (t *Tutor) Open(ctx context.Context, questionID string) (*Session, error) {
	t.gate.CancelAdvance()
	s, err := t.manager.Open(ctx, questionID)
	if err != nil {
		return nil, err
	}
	t.emit(Event{Kind: EventOpened, SessionID: s.ID})
	return s, nil
}

// Close leaves the open question. It never blocks on the provisioner.
func (t *Tutor) Close() {
	t.gate.CancelAdvance()
	s := t.manager.Current()
	t.manager.Close()
	if s != nil {
		t.emit(Event{Kind: EventClosed, SessionID: s.ID})
	}
}

// Wait blocks until background session teardown has finished.
func (t *Tutor) Wait() {
	t.manager.Wait()
}

// Session returns the open session or nil.
func (t *Tutor) Session() *Session {
	return t.manager.Current()
}

// Execute sends text through the command channel scoped to the open
// session. Without a session the command runs unscoped only when allowed.
func (t *Tutor) Execute(ctx context.Context, text string) (*CommandResult, error) {
	s := t.manager.Current()
	if s == nil {
		if !t.opts.AllowUnscoped {
			return nil, ErrUnscoped
		}
		return t.channel.Execute(ctx, "", "", text)
	}
	t.logger.Debug("execute", "session", s.ID, "command", text)
	return t.channel.Execute(ctx, s.ID, s.Namespace(), text)
}

// Check validates the active step.
func (t *Tutor) Check(ctx context.Context) (*CheckOutcome, error) {
	s := t.manager.Current()
	if s == nil {
		return nil, ErrNoSession
	}
	return t.gate.Check(ctx, s)
}

// Checking reports whether a check on the open session is in flight.
func (t *Tutor) Checking() bool {
	s := t.manager.Current()
	return s != nil && s.Checking()
}

// VerifyNamespace checks label against the session's actual namespace.
func (t *Tutor) VerifyNamespace(ctx context.Context, label string) (*NamespaceStatus, error) {
	return t.gate.VerifyNamespace(ctx, t.manager.Current(), label)
}

// GoTo moves to index, cancelling any pending auto-advance.
func (t *Tutor) GoTo(index int) error {
	s, err := t.navigable()
	if err != nil {
		return err
	}
	return s.Progress.GoTo(index)
}

// Next moves forward one step, cancelling any pending auto-advance.
func (t *Tutor) Next() error {
	s, err := t.navigable()
	if err != nil {
		return err
	}
	return s.Progress.Next()
}

// Previous moves back one step, cancelling any pending auto-advance.
func (t *Tutor) Previous() error {
	s, err := t.navigable()
	if err != nil {
		return err
	}
	return s.Progress.Previous()
}

// navigable cancels any pending advance before a manual move so the
// learner's choice is never overwritten.
func (t *Tutor) navigable() (*Session, error) {
	t.gate.CancelAdvance()
	s := t.manager.Current()
	if s == nil {
		return nil, ErrNoSession
	}
	return s, nil
}

// AdvancePending reports whether an auto-advance is scheduled.
func (t *Tutor) AdvancePending() bool {
	return t.gate.AdvancePending()
}
