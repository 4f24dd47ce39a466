package tutorial

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Session is the explicit state of one opened question: the provisioned
// session identity, the question, the asserted namespace and progress.
// It is created by SessionManager.Open and discarded on close or switch.
type Session struct {
	ID            string
	WorkspacePath string
	Question      *Question
	Progress      *Progress

	mu        sync.Mutex
	namespace string
	bootstrap error

	checking atomic.Bool
	done     context.Context
	end      context.CancelFunc
}

func newSession(handle *SessionHandle, q *Question, progress *Progress) *Session {
	s := &Session{
		ID:            handle.ID,
		WorkspacePath: handle.WorkspacePath,
		Question:      q,
		Progress:      progress,
	}
	s.done, s.end = context.WithCancel(context.Background())
	return s
}

// Checking reports whether a check on this session is in flight.
func (s *Session) Checking() bool {
	return s.checking.Load()
}

// Closed reports whether the session was closed or replaced.
func (s *Session) Closed() bool {
	return s.done.Err() != nil
}

// Namespace returns the learner-asserted namespace label.
func (s *Session) Namespace() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.namespace
}

// SetNamespace records the asserted label. It is advisory only.
func (s *Session) SetNamespace(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.namespace = label
}

// BootstrapErr returns the provisioning failure, if any.
func (s *Session) BootstrapErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bootstrap
}

// Ready reports whether provisioning succeeded.
func (s *Session) Ready() bool {
	return s.BootstrapErr() == nil
}

// SessionManager keeps at most one session open. Opening a question closes
// the previous session first without waiting for the provisioner.
type SessionManager struct {
	catalog     Catalog
	provisioner Provisioner
	channel     *CommandChannel

	// BootstrapCommand runs through the command channel right after a
	// session is created. Empty skips provisioning.
	BootstrapCommand string
	// Timeout bounds each catalog and provisioner call.
	Timeout time.Duration
	Logger  *slog.Logger

	openMu  sync.Mutex
	mu      sync.Mutex
	current *Session
	closing sync.WaitGroup
}

// NewSessionManager wires the collaborators.
func NewSessionManager(catalog Catalog, provisioner Provisioner, channel *CommandChannel, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		catalog:     catalog,
		provisioner: provisioner,
		channel:     channel,
		Logger:      logger,
	}
}

// Current returns the open session or nil.
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Open loads the question, creates a session for it, and provisions it.
// Any previously open session is closed first. On *CatalogError or
// *SessionError no session is open afterwards. A provisioning failure
// leaves the session open with BootstrapErr set.
func (m *SessionManager) Open(ctx context.Context, questionID string) (*Session, error) {
	m.openMu.Lock()
	defer m.openMu.Unlock()

	m.Close()

	q, err := m.fetch(ctx, questionID)
	if err != nil {
		return nil, err
	}
	progress, err := NewProgress(len(q.Steps))
	if err != nil {
		return nil, &CatalogError{QuestionID: questionID, Err: err}
	}

	cctx, cancel := m.bound(ctx)
	handle, err := m.provisioner.CreateSession(cctx, questionID)
	cancel()
	if err != nil {
		return nil, &SessionError{QuestionID: questionID, Err: err}
	}
	if handle == nil || handle.ID == "" {
		return nil, &SessionError{QuestionID: questionID, Err: errors.New("provisioner returned no session id")}
	}

	s := newSession(handle, q, progress)
	s.bootstrap = m.Provision(ctx, s)

	m.mu.Lock()
	m.current = s
	m.mu.Unlock()
	m.Logger.Info("question opened", "question", questionID, "session", s.ID, "steps", progress.Total(), "ready", s.Ready())
	return s, nil
}

// Provision runs the bootstrap command for s and reports failure as a
// *BootstrapError. It is the only place bootstrap happens.
func (m *SessionManager) Provision(ctx context.Context, s *Session) error {
	if m.BootstrapCommand == "" || m.channel == nil {
		return nil
	}
	res, err := m.channel.Execute(ctx, s.ID, s.Namespace(), m.BootstrapCommand)
	if err != nil {
		m.Logger.Warn("bootstrap failed", "session", s.ID, "error", err)
		return &BootstrapError{SessionID: s.ID, Err: err}
	}
	if !res.Success {
		m.Logger.Warn("bootstrap failed", "session", s.ID, "exit_code", res.ReturnCode)
		return &BootstrapError{SessionID: s.ID, Output: res.Output, ExitCode: res.ReturnCode}
	}
	return nil
}

// Close discards the open session and asks the provisioner to reclaim it
// in the background. Failures are logged, never returned.
func (m *SessionManager) Close() {
	m.mu.Lock()
	s := m.current
	m.current = nil
	m.mu.Unlock()
	if s == nil {
		return
	}
	s.end()

	m.closing.Add(1)
	go func(id string) {
		defer m.closing.Done()
		ctx, cancel := m.bound(context.Background())
		defer cancel()
		if err := m.provisioner.EndSession(ctx, id); err != nil {
			m.Logger.Warn("end session failed", "session", id, "error", err)
			return
		}
		m.Logger.Debug("session ended", "session", id)
	}(s.ID)
}

// Wait blocks until background closes have finished.
func (m *SessionManager) Wait() {
	m.closing.Wait()
}

// Questions lists the catalog.
func (m *SessionManager) Questions(ctx context.Context) ([]QuestionSummary, error) {
	ctx, cancel := m.bound(ctx)
	defer cancel()
	list, err := m.catalog.ListQuestions(ctx)
	if err != nil {
		return nil, &CatalogError{Err: err}
	}
	return list, nil
}

func (m *SessionManager) fetch(ctx context.Context, id string) (*Question, error) {
	ctx, cancel := m.bound(ctx)
	defer cancel()
	q, err := m.catalog.GetQuestion(ctx, id)
	if err != nil {
		return nil, &CatalogError{QuestionID: id, Err: err}
	}
	return q, nil
}

func (m *SessionManager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.Timeout > 0 {
		return context.WithTimeout(ctx, m.Timeout)
	}
	return context.WithCancel(ctx)
}
