package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/ormasoftchile/steplab/pkg/catalog"
	"github.com/ormasoftchile/steplab/pkg/config"
	"github.com/ormasoftchile/steplab/pkg/governance"
	"github.com/ormasoftchile/steplab/pkg/markup"
	"github.com/ormasoftchile/steplab/pkg/providers"
	"github.com/ormasoftchile/steplab/pkg/schema"
	"github.com/ormasoftchile/steplab/pkg/tutorial"
	"github.com/ormasoftchile/steplab/pkg/validation"
	"github.com/ormasoftchile/steplab/pkg/workspace"
)

// ErrRateLimited is returned when a session sends commands too quickly.
var ErrRateLimited = errors.New("too many commands, slow down")

// Backend implements every collaborator the tutorial core needs, in
// process. The HTTP handlers are a thin layer over it, and front ends can
// use it directly without a server.
type Backend struct {
	Catalog    *catalog.Catalog
	Sessions   *workspace.Registry
	Executor   providers.CommandExecutor
	Validator  *validation.Validator
	Governance *governance.Engine
	Logger     *slog.Logger

	commandTimeout time.Duration
	rateLimit      rate.Limit
	rateBurst      int

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ tutorial.Backend = (*Backend)(nil)

// NewBackend wires the catalog, session registry, executor and validator
// from cfg.
func NewBackend(cfg *config.Server, logger *slog.Logger) (*Backend, error) {
	if logger == nil {
		logger = slog.Default()
	}
	policy, err := cfg.Policy()
	if err != nil {
		return nil, err
	}
	gov, err := governance.NewEngine(policy)
	if err != nil {
		return nil, err
	}
	environ, blocked := gov.FilterEnvVars(os.Environ())
	if len(blocked) > 0 {
		logger.Info("environment variables withheld from commands", "names", blocked)
	}

	cat := catalog.New(cfg.QuestionsDir)
	b := &Backend{
		Catalog:  cat,
		Sessions: workspace.NewRegistry(cfg.WorkspaceDir, cfg.SessionTTL, logger),
		Executor: &providers.ShellExecutor{Timeout: cfg.CommandTimeout, Environ: environ},
		Validator: &validation.Validator{
			Checks:   cat,
			Executor: &providers.ShellExecutor{Timeout: cfg.ValidationTimeout, Environ: environ},
			Timeout:  cfg.ValidationTimeout,
		},
		Governance:     gov,
		Logger:         logger,
		commandTimeout: cfg.CommandTimeout,
		rateLimit:      rate.Limit(cfg.CommandRate),
		rateBurst:      cfg.CommandBurst,
		limiters:       make(map[string]*rate.Limiter),
	}
	b.Sessions.OnReap = func(ids []string) {
		b.forget(ids...)
		sessionsActive.Set(float64(b.Sessions.Len()))
	}
	return b, nil
}

// ─── Catalog ────────────────────────────────────────────────────────

// ListQuestions returns the catalog summaries.
func (b *Backend) ListQuestions(ctx context.Context) ([]tutorial.QuestionSummary, error) {
	list, err := b.Catalog.List()
	if err != nil {
		return nil, err
	}
	out := make([]tutorial.QuestionSummary, len(list))
	for i, s := range list {
		out[i] = tutorial.QuestionSummary{ID: s.ID, Title: s.Title, Description: s.Description}
	}
	return out, nil
}

// GetQuestion loads a question with rendered step HTML.
func (b *Backend) GetQuestion(ctx context.Context, id string) (*tutorial.Question, error) {
	q, err := b.Catalog.Get(id)
	if err != nil {
		return nil, err
	}
	return toTutorialQuestion(renderSteps(q)), nil
}

// renderSteps fills Step.HTML on a copy of q.
func renderSteps(q *schema.Question) *schema.Question {
	cp := *q
	cp.Steps = make([]schema.Step, len(q.Steps))
	for i, s := range q.Steps {
		s.HTML = markup.HTML(s.Content)
		cp.Steps[i] = s
	}
	return &cp
}

func toTutorialQuestion(q *schema.Question) *tutorial.Question {
	out := &tutorial.Question{
		ID:          q.ID,
		Title:       q.Title,
		Description: q.Description,
		Steps:       make([]tutorial.Step, len(q.Steps)),
	}
	for i, s := range q.Steps {
		out.Steps[i] = tutorial.Step{Content: s.Content, HTML: s.HTML}
	}
	return out
}

// ─── Sessions ───────────────────────────────────────────────────────

// CreateSession allocates a workspace for questionID.
func (b *Backend) CreateSession(ctx context.Context, questionID string) (*tutorial.SessionHandle, error) {
	if _, err := b.Catalog.Get(questionID); err != nil {
		return nil, err
	}
	s, err := b.Sessions.Create(questionID, "")
	if err != nil {
		return nil, err
	}
	sessionsActive.Set(float64(b.Sessions.Len()))
	return &tutorial.SessionHandle{ID: s.ID, WorkspacePath: s.Dir}, nil
}

// EndSession releases the session's workspace.
func (b *Backend) EndSession(ctx context.Context, sessionID string) error {
	if err := b.Sessions.End(sessionID); err != nil {
		return err
	}
	b.forget(sessionID)
	sessionsActive.Set(float64(b.Sessions.Len()))
	return nil
}

// ─── Commands ───────────────────────────────────────────────────────

// Execute runs a learner command. With a session it runs in the session
// workspace with NAMESPACE exported; the first non-empty namespace sent
// binds it. Only requests without a session ID run unscoped; an ID the
// registry doesn't hold is an error. Timeouts are a failed result, not an
// error.
func (b *Backend) Execute(ctx context.Context, req tutorial.CommandRequest) (*tutorial.CommandResult, error) {
	if err := b.Governance.CheckLine(req.Command); err != nil {
		commandsTotal.WithLabelValues("denied").Inc()
		return nil, err
	}

	var dir, namespace string
	if req.SessionID != "" {
		ns, err := b.Sessions.BindNamespace(req.SessionID, req.Namespace)
		if err != nil {
			commandsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		s, err := b.Sessions.Get(req.SessionID)
		if err != nil {
			commandsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		namespace, dir = ns, s.Dir
	}
	if !b.limiter(req.SessionID).Allow() {
		commandsTotal.WithLabelValues("limited").Inc()
		return nil, ErrRateLimited
	}

	var env []string
	if namespace != "" {
		env = append(env, "NAMESPACE="+namespace)
	}

	res, err := b.Executor.Execute(ctx, req.Command, dir, env)
	if errors.Is(err, providers.ErrTimeout) {
		commandsTotal.WithLabelValues("timeout").Inc()
		return &tutorial.CommandResult{
			Success:    false,
			Output:     fmt.Sprintf("Command timed out after %d seconds", int(b.commandTimeout/time.Second)),
			ReturnCode: -1,
		}, nil
	}
	if err != nil {
		commandsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result := "ok"
	if res.ExitCode != 0 {
		result = "failed"
	}
	commandsTotal.WithLabelValues(result).Inc()
	b.Logger.Debug("command executed", "session", req.SessionID, "exit_code", res.ExitCode, "duration", res.Duration)
	return &tutorial.CommandResult{
		Success:    res.ExitCode == 0,
		Output:     b.Governance.Redact(res.Combined()),
		ReturnCode: res.ExitCode,
	}, nil
}

// limiter returns the bucket for sessionID. Only IDs the registry holds
// get their own bucket; everything else shares the unscoped one.
func (b *Backend) limiter(sessionID string) *rate.Limiter {
	if b.rateLimit <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	key := "unscoped"
	if sessionID != "" {
		if _, err := b.Sessions.Get(sessionID); err == nil {
			key = sessionID
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.limiters[key]
	if !ok {
		l = rate.NewLimiter(b.rateLimit, b.rateBurst)
		b.limiters[key] = l
	}
	return l
}

func (b *Backend) forget(ids ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.limiters, id)
	}
}

// ─── Validation ─────────────────────────────────────────────────────

// Validate runs the check for the 1-based step. The session supplies the
// working directory and, when the request has none, the namespace. An
// unknown session ID is an error.
func (b *Backend) Validate(ctx context.Context, req tutorial.CheckRequest) (*tutorial.Verdict, error) {
	vreq := validation.Request{
		QuestionID: req.QuestionID,
		Step:       req.Step,
		Namespace:  req.Namespace,
	}
	if req.SessionID != "" {
		s, err := b.Sessions.Get(req.SessionID)
		if err != nil {
			validationsTotal.WithLabelValues("error").Inc()
			return nil, err
		}
		vreq.Dir = s.Dir
		if vreq.Namespace == "" {
			vreq.Namespace = s.Namespace
		}
		_ = b.Sessions.Touch(req.SessionID)
	}

	res, err := b.Validator.Validate(ctx, vreq)
	if err != nil {
		validationsTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	verdict := "failed"
	if res.Passed {
		verdict = "passed"
	}
	validationsTotal.WithLabelValues(verdict).Inc()
	b.Logger.Info("step checked",
		"question", req.QuestionID,
		"step", strconv.Itoa(req.Step),
		"session", req.SessionID,
		"passed", res.Passed)
	return &tutorial.Verdict{Passed: res.Passed, Output: res.Output}, nil
}
