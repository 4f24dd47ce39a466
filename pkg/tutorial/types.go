package tutorial

import "context"

// QuestionSummary is one entry of the question list.
type QuestionSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Question is an exercise as served by the catalog. It is not modified
// after loading.
type Question struct {
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Steps       []Step `json:"steps"`
}

// Step is one stage of a question. It has no identity beyond its index.
type Step struct {
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

// SessionHandle is what the provisioner returns for a new session.
type SessionHandle struct {
	ID            string `json:"sessionId"`
	WorkspacePath string `json:"workspacePath,omitempty"`
}

// CommandRequest is one command for the command channel. An empty
// SessionID runs the command unscoped.
type CommandRequest struct {
	Command   string `json:"command"`
	SessionID string `json:"sessionId,omitempty"`
	Namespace string `json:"namespace,omitempty"`
}

// CommandResult is passed through from the backend unchanged.
type CommandResult struct {
	Success    bool   `json:"success"`
	Output     string `json:"output"`
	ReturnCode int    `json:"returnCode"`
}

// CheckRequest asks the validator to judge one step. Step is 1-based.
type CheckRequest struct {
	QuestionID string `json:"question_id"`
	Step       int    `json:"step"`
	Namespace  string `json:"namespace"`
	SessionID  string `json:"sessionId"`
}

// Verdict is the validator's answer.
type Verdict struct {
	Passed bool   `json:"passed"`
	Output string `json:"output"`
}

// Catalog serves questions.
type Catalog interface {
	ListQuestions(ctx context.Context) ([]QuestionSummary, error)
	GetQuestion(ctx context.Context, id string) (*Question, error)
}

// Provisioner creates and reclaims isolated sessions.
type Provisioner interface {
	CreateSession(ctx context.Context, questionID string) (*SessionHandle, error)
	EndSession(ctx context.Context, sessionID string) error
}

// Executor runs commands in a session.
type Executor interface {
	Execute(ctx context.Context, req CommandRequest) (*CommandResult, error)
}

// Validator judges whether a step's condition holds.
type Validator interface {
	Validate(ctx context.Context, req CheckRequest) (*Verdict, error)
}

// Backend bundles every collaborator. The HTTP client and the in-process
// server backend both satisfy it.
type Backend interface {
	Catalog
	Provisioner
	Executor
	Validator
}
