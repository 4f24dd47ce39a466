// Package workspace tracks server-side learner sessions and the scratch
// directory each one runs commands in.
package workspace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownSession is returned for session IDs the registry doesn't hold.
var ErrUnknownSession = errors.New("session not found")

// DefaultNamespace names the directory for sessions created without one.
const DefaultNamespace = "default"

// metaDir holds session records under Root, outside every workspace.
const metaDir = ".sessions"

// Session is one learner's server-side state.
type Session struct {
	ID         string    `json:"session_id"`
	QuestionID string    `json:"question_id"`
	Namespace  string    `json:"namespace,omitempty"`
	Dir        string    `json:"workspace_path"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeen   time.Time `json:"last_seen"`
}

// Registry owns the session map. Every session dir lives under Root.
type Registry struct {
	Root   string
	TTL    time.Duration
	Logger *slog.Logger
	// OnReap, when set, receives the IDs removed by each non-empty Reap.
	OnReap func(ids []string)

	mu       sync.Mutex
	sessions map[string]*Session
	now      func() time.Time
}

// NewRegistry creates a registry rooted at root. A zero ttl disables reaping.
func NewRegistry(root string, ttl time.Duration, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		Root:     root,
		TTL:      ttl,
		Logger:   logger,
		sessions: make(map[string]*Session),
		now:      time.Now,
	}
}

// newID returns an 8-character session ID.
func newID() string {
	return uuid.NewString()[:8]
}

// Create allocates a session and its workspace directory.
func (r *Registry) Create(questionID, namespace string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := newID()
	for r.sessions[id] != nil {
		id = newID()
	}
	nsDir := filepath.Base(namespace)
	switch nsDir {
	case ".", "..", string(filepath.Separator), metaDir:
		nsDir = DefaultNamespace
	}
	dir := filepath.Join(r.Root, nsDir, id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Session{}, fmt.Errorf("create workspace: %w", err)
	}

	now := r.now()
	s := &Session{
		ID:         id,
		QuestionID: questionID,
		Namespace:  namespace,
		Dir:        dir,
		CreatedAt:  now,
		LastSeen:   now,
	}
	r.sessions[id] = s
	r.save(s)
	r.Logger.Info("session created", "session", id, "question", questionID, "namespace", namespace, "dir", dir)
	return *s, nil
}

// Get returns a copy of the session.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%q: %w", id, ErrUnknownSession)
	}
	return *s, nil
}

// Touch records activity, postponing expiry.
func (r *Registry) Touch(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%q: %w", id, ErrUnknownSession)
	}
	s.LastSeen = r.now()
	return nil
}

// BindNamespace sets the session namespace the first time one is supplied
// and returns the namespace in effect. Later values don't rebind.
func (r *Registry) BindNamespace(id, namespace string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return "", fmt.Errorf("%q: %w", id, ErrUnknownSession)
	}
	s.LastSeen = r.now()
	if s.Namespace == "" && namespace != "" {
		s.Namespace = namespace
		r.save(s)
	}
	return s.Namespace, nil
}

// End removes the session and its workspace directory.
func (r *Registry) End(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%q: %w", id, ErrUnknownSession)
	}
	if err := os.Remove(r.metaPath(id)); err != nil && !os.IsNotExist(err) {
		r.Logger.Warn("remove session file", "session", id, "error", err)
	}
	if err := os.RemoveAll(s.Dir); err != nil {
		return fmt.Errorf("remove workspace %s: %w", s.Dir, err)
	}
	r.Logger.Info("session ended", "session", id)
	return nil
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// List returns live sessions ordered by creation time.
func (r *Registry) List() []Session {
	r.mu.Lock()
	out := make([]Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, *s)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Reap ends every session idle longer than TTL and returns their IDs.
func (r *Registry) Reap() []string {
	if r.TTL <= 0 {
		return nil
	}
	cutoff := r.now().Add(-r.TTL)

	r.mu.Lock()
	var expired []string
	for id, s := range r.sessions {
		if s.LastSeen.Before(cutoff) {
			expired = append(expired, id)
		}
	}
	r.mu.Unlock()

	sort.Strings(expired)
	for _, id := range expired {
		if err := r.End(id); err != nil && !errors.Is(err, ErrUnknownSession) {
			r.Logger.Warn("reap session", "session", id, "error", err)
		}
	}
	if len(expired) > 0 {
		r.Logger.Info("reaped idle sessions", "count", len(expired))
		if r.OnReap != nil {
			r.OnReap(expired)
		}
	}
	return expired
}

// RunReaper calls Reap every interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) error {
	if r.TTL <= 0 || interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Reap()
		}
	}
}

// Shutdown ends every live session.
func (r *Registry) Shutdown() {
	for _, s := range r.List() {
		if err := r.End(s.ID); err != nil && !errors.Is(err, ErrUnknownSession) {
			r.Logger.Warn("end session on shutdown", "session", s.ID, "error", err)
		}
	}
}

// metaPath is where the record for session id is kept.
func (r *Registry) metaPath(id string) string {
	return filepath.Join(r.Root, metaDir, id+".json")
}

// save writes the session record under Root/.sessions, out of reach of
// the learner's working directory. Failures are logged; the in-memory
// entry stays authoritative.
func (r *Registry) save(s *Session) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		r.Logger.Warn("marshal session", "session", s.ID, "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Join(r.Root, metaDir), 0o755); err != nil {
		r.Logger.Warn("create session dir", "session", s.ID, "error", err)
		return
	}
	if err := os.WriteFile(r.metaPath(s.ID), data, 0o644); err != nil {
		r.Logger.Warn("write session file", "session", s.ID, "error", err)
	}
}
