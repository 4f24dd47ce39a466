package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ormasoftchile/steplab/pkg/catalog"
	"github.com/ormasoftchile/steplab/pkg/governance"
	"github.com/ormasoftchile/steplab/pkg/schema"
	"github.com/ormasoftchile/steplab/pkg/tutorial"
	"github.com/ormasoftchile/steplab/pkg/validation"
	"github.com/ormasoftchile/steplab/pkg/workspace"
)

// stepJSON is a step on the wire. ID is the 1-based step number.
type stepJSON struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	HTML    string `json:"html,omitempty"`
}

type questionJSON struct {
	ID          string             `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description"`
	Steps       []stepJSON         `json:"steps"`
	Validations schema.Validations `json:"validations,omitempty"`
}

func toQuestionJSON(q *schema.Question, withValidations bool) questionJSON {
	out := questionJSON{ID: q.ID, Title: q.Title, Description: q.Description, Steps: make([]stepJSON, len(q.Steps))}
	for i, s := range q.Steps {
		out.Steps[i] = stepJSON{ID: s.ID, Content: s.Content, HTML: s.HTML}
	}
	if withValidations {
		out.Validations = q.Validations
		if out.Validations == nil {
			out.Validations = schema.Validations{}
		}
	}
	return out
}

// stepNumber accepts the step as a JSON number or a numeric string.
type stepNumber int

func (s *stepNumber) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = stepNumber(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("step must be a number or numeric string")
	}
	n, err := strconv.Atoi(strings.TrimSpace(str))
	if err != nil {
		return fmt.Errorf("step %q is not a number", str)
	}
	*s = stepNumber(n)
	return nil
}

func abort(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"error": msg})
}

// statusFor maps backend errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, catalog.ErrNotFound),
		errors.Is(err, workspace.ErrUnknownSession),
		errors.Is(err, validation.ErrCheckNotFound):
		return http.StatusNotFound
	case errors.Is(err, catalog.ErrExists):
		return http.StatusConflict
	case errors.Is(err, catalog.ErrInvalidID):
		return http.StatusBadRequest
	case errors.Is(err, governance.ErrDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	}
	return http.StatusInternalServerError
}

// ─── Health ─────────────────────────────────────────────────────────

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "sessions": s.backend.Sessions.Len()})
}

// ─── Questions ──────────────────────────────────────────────────────

func (s *Server) handleListQuestions(c *gin.Context) {
	list, err := s.backend.ListQuestions(c.Request.Context())
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			abort(c, http.StatusNotFound, "Questions directory not found")
			return
		}
		abort(c, http.StatusInternalServerError, "Failed to load questions: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, list)
}

func (s *Server) handleGetQuestion(c *gin.Context) {
	q, err := s.backend.Catalog.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			abort(c, http.StatusNotFound, "Question not found")
			return
		}
		abort(c, http.StatusInternalServerError, "Error loading question: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, toQuestionJSON(renderSteps(q), false))
}

// ─── Sessions ───────────────────────────────────────────────────────

type sessionCreateRequest struct {
	QuestionID string `json:"questionId"`
}

func (s *Server) handleSessionCreate(c *gin.Context) {
	var req sessionCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "No data provided")
		return
	}
	if req.QuestionID == "" {
		abort(c, http.StatusBadRequest, "No question ID provided")
		return
	}
	h, err := s.backend.CreateSession(c.Request.Context(), req.QuestionID)
	if err != nil {
		abort(c, statusFor(err), "Failed to create session: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "sessionId": h.ID, "workspacePath": h.WorkspacePath})
}

type sessionEndRequest struct {
	SessionID string `json:"sessionId"`
}

func (s *Server) handleSessionEnd(c *gin.Context) {
	var req sessionEndRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "No data provided")
		return
	}
	if err := s.backend.EndSession(c.Request.Context(), req.SessionID); err != nil {
		if errors.Is(err, workspace.ErrUnknownSession) {
			abort(c, http.StatusNotFound, "Invalid session ID")
			return
		}
		abort(c, http.StatusInternalServerError, "Failed to end session: "+err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "message": fmt.Sprintf("Session %s ended", req.SessionID)})
}

// ─── Terminal ───────────────────────────────────────────────────────

func (s *Server) handleExecute(c *gin.Context) {
	var req tutorial.CommandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "No data provided")
		return
	}
	if strings.TrimSpace(req.Command) == "" {
		abort(c, http.StatusBadRequest, "No command provided")
		return
	}
	res, err := s.backend.Execute(c.Request.Context(), req)
	if errors.Is(err, workspace.ErrUnknownSession) {
		abort(c, http.StatusNotFound, "Invalid session ID")
		return
	}
	if err != nil {
		abort(c, statusFor(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

// ─── Validation ─────────────────────────────────────────────────────

type validateRequest struct {
	QuestionID string      `json:"question_id"`
	Step       *stepNumber `json:"step"`
	Namespace  string      `json:"namespace"`
	SessionID  string      `json:"sessionId"`
}

func (s *Server) handleValidate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "Invalid request: "+err.Error())
		return
	}
	if req.QuestionID == "" || req.Step == nil {
		abort(c, http.StatusBadRequest, "Missing question_id or step parameter")
		return
	}
	v, err := s.backend.Validate(c.Request.Context(), tutorial.CheckRequest{
		QuestionID: req.QuestionID,
		Step:       int(*req.Step),
		Namespace:  req.Namespace,
		SessionID:  req.SessionID,
	})
	if err != nil {
		if errors.Is(err, workspace.ErrUnknownSession) {
			abort(c, http.StatusNotFound, "Invalid session ID")
			return
		}
		if errors.Is(err, validation.ErrCheckNotFound) {
			abort(c, http.StatusNotFound, fmt.Sprintf("Step %d not found for question '%s'", *req.Step, req.QuestionID))
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":  "Error executing command: " + err.Error(),
			"passed": false,
			"output": "Error executing command: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, v)
}

// ─── Admin ──────────────────────────────────────────────────────────

type adminQuestionRequest struct {
	ID          string             `json:"id"`
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	Steps       []stepJSON         `json:"steps"`
	Validations schema.Validations `json:"validations"`
}

func (s *Server) handleAdminGet(c *gin.Context) {
	q, err := s.backend.Catalog.Get(c.Param("id"))
	if err != nil {
		abort(c, statusFor(err), "Question not found")
		return
	}
	c.JSON(http.StatusOK, toQuestionJSON(q, true))
}

func (s *Server) handleAdminCreate(c *gin.Context) {
	var req adminQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "No data provided")
		return
	}
	if req.ID == "" {
		abort(c, http.StatusBadRequest, "No question ID provided")
		return
	}
	draft, err := toDraft(req)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.backend.Catalog.Create(draft); err != nil {
		abort(c, statusFor(err), adminMessage(req.ID, err))
		return
	}
	s.logger.Info("question created", "question", req.ID)
	c.JSON(http.StatusCreated, gin.H{"success": true, "id": req.ID})
}

func (s *Server) handleAdminUpdate(c *gin.Context) {
	var req adminQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, http.StatusBadRequest, "No data provided")
		return
	}
	req.ID = c.Param("id")
	draft, err := toDraft(req)
	if err != nil {
		abort(c, http.StatusBadRequest, err.Error())
		return
	}
	if _, err := s.backend.Catalog.Update(draft); err != nil {
		abort(c, statusFor(err), adminMessage(req.ID, err))
		return
	}
	s.logger.Info("question updated", "question", req.ID)
	c.JSON(http.StatusOK, gin.H{"success": true, "id": req.ID})
}

func (s *Server) handleAdminDelete(c *gin.Context) {
	id := c.Param("id")
	if err := s.backend.Catalog.Delete(id); err != nil {
		abort(c, statusFor(err), adminMessage(id, err))
		return
	}
	s.logger.Info("question deleted", "question", id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func adminMessage(id string, err error) string {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		return fmt.Sprintf("Question '%s' not found", id)
	case errors.Is(err, catalog.ErrExists):
		return fmt.Sprintf("Question '%s' already exists", id)
	case errors.Is(err, catalog.ErrInvalidID):
		return catalog.ErrInvalidID.Error()
	}
	return "Failed to save question: " + err.Error()
}

// toDraft orders steps by their numeric ID and checks the result with the
// same rules `steplab validate` applies.
func toDraft(req adminQuestionRequest) (catalog.Draft, error) {
	d := catalog.Draft{
		ID:          req.ID,
		Title:       req.Title,
		Description: req.Description,
		Validations: req.Validations,
	}
	if req.Steps != nil {
		steps := append([]stepJSON(nil), req.Steps...)
		sort.SliceStable(steps, func(i, j int) bool {
			a, _ := strconv.Atoi(steps[i].ID)
			b, _ := strconv.Atoi(steps[j].ID)
			return a < b
		})
		d.Steps = make([]string, len(steps))
		for i, s := range steps {
			d.Steps[i] = s.Content
		}
	}

	if req.Validations != nil && req.Steps != nil {
		q := &schema.Question{ID: req.ID, Steps: make([]schema.Step, len(d.Steps)), Validations: req.Validations}
		for i, content := range d.Steps {
			q.Steps[i] = schema.Step{ID: strconv.Itoa(i + 1), Content: content}
		}
		for _, e := range schema.ValidateQuestion(q) {
			if e.Severity == "error" {
				return d, fmt.Errorf("%s: %s", e.Path, e.Message)
			}
		}
	}
	return d, nil
}
