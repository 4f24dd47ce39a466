package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ormasoftchile/steplab/pkg/catalog"
	"github.com/ormasoftchile/steplab/pkg/schema"
	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

// Handlers implements the session tools over one Tutor.
type Handlers struct {
	Tutor *tutorial.Tutor
}

// HandleList implements steplab/list.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := h.Tutor.Questions(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(list, false), nil
}

// HandleOpen implements steplab/open.
func (h *Handlers) HandleOpen(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, _ := req.GetArguments()["id"].(string)
	if id == "" {
		return errorResult("id argument is required"), nil
	}
	if _, err := h.Tutor.Open(ctx, id); err != nil {
		return errorResult(err.Error()), nil
	}
	return h.status(), nil
}

// HandleExec implements steplab/exec.
func (h *Handlers) HandleExec(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	command, _ := req.GetArguments()["command"].(string)
	if strings.TrimSpace(command) == "" {
		return errorResult("command argument is required"), nil
	}
	res, err := h.Tutor.Execute(ctx, command)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(res, !res.Success), nil
}

// HandleCheck implements steplab/check.
func (h *Handlers) HandleCheck(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	out, err := h.Tutor.Check(ctx)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return jsonResult(map[string]any{
		"session":          out.SessionID,
		"step":             tutorial.StepNumber(out.Index),
		"passed":           out.Passed,
		"output":           out.Output,
		"advanceScheduled": out.AdvanceScheduled,
	}, false), nil
}

// HandleGoto implements steplab/goto.
func (h *Handlers) HandleGoto(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	n, ok := req.GetArguments()["step"].(float64)
	if !ok {
		return errorResult("step argument is required"), nil
	}
	if err := h.Tutor.GoTo(int(n) - 1); err != nil {
		return errorResult(err.Error()), nil
	}
	return h.status(), nil
}

// HandleNext implements steplab/next.
func (h *Handlers) HandleNext(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.Tutor.Next(); err != nil {
		return errorResult(err.Error()), nil
	}
	return h.status(), nil
}

// HandlePrev implements steplab/prev.
func (h *Handlers) HandlePrev(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := h.Tutor.Previous(); err != nil {
		return errorResult(err.Error()), nil
	}
	return h.status(), nil
}

// HandleNamespace implements steplab/namespace.
func (h *Handlers) HandleNamespace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, _ := req.GetArguments()["name"].(string)
	st, err := h.Tutor.VerifyNamespace(ctx, name)
	if err != nil {
		return errorResult(err.Error()), nil
	}
	resp := map[string]any{
		"namespace": st.Asserted,
		"actual":    st.Actual,
		"verified":  st.Verified,
	}
	if len(st.Remediation) > 0 {
		resp["remediation"] = st.Remediation
	}
	if st.Err != nil {
		resp["error"] = st.Err.Error()
	}
	return jsonResult(resp, !st.Verified), nil
}

// HandleStatus implements steplab/status.
func (h *Handlers) HandleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return h.status(), nil
}

// HandleClose implements steplab/close.
func (h *Handlers) HandleClose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if h.Tutor.Session() == nil {
		return textResult("no question open"), nil
	}
	h.Tutor.Close()
	return textResult("question closed"), nil
}

// status describes the open session and its active step.
func (h *Handlers) status() *mcp.CallToolResult {
	s := h.Tutor.Session()
	if s == nil {
		return textResult("no question open")
	}
	p := s.Progress
	steps := make([]string, 0, p.Total())
	for _, ind := range p.Indicators() {
		steps = append(steps, ind.String())
	}
	resp := map[string]any{
		"question":  s.Question.ID,
		"title":     s.Question.Title,
		"session":   s.ID,
		"step":      tutorial.StepNumber(p.Current()),
		"total":     p.Total(),
		"steps":     steps,
		"content":   s.Question.Steps[p.Current()].Content,
		"namespace": s.Namespace(),
	}
	if err := s.BootstrapErr(); err != nil {
		resp["setupError"] = err.Error()
	}
	return jsonResult(resp, false)
}

// HandleValidate implements steplab/validate.
func HandleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, _ := req.GetArguments()["path"].(string)
	if path == "" {
		return errorResult("path argument is required"), nil
	}
	q, errs := catalog.Lint(path)
	if schema.HasErrors(errs) {
		return errorResult(formatErrors(errs)), nil
	}
	return textResult(fmt.Sprintf("✓ %s is valid (%d steps, %d checks)", q.ID, len(q.Steps), len(q.Validations))), nil
}

// HandleSchema implements steplab/schema.
func HandleSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := schema.GenerateJSONSchema()
	if err != nil {
		return errorResult(err.Error()), nil
	}
	return textResult(string(data)), nil
}

func formatErrors(errs []*schema.ValidationError) string {
	var msgs []string
	for _, e := range errs {
		if e.Severity == "error" {
			msgs = append(msgs, fmt.Sprintf("[%s] %s", e.Phase, e.Message))
		}
	}
	return strings.Join(msgs, "; ")
}

func jsonResult(v any, isErr bool) *mcp.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(string(data))},
		IsError: isErr,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(text),
		},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(msg),
		},
		IsError: true,
	}
}
