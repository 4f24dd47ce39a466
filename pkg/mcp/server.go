// Package mcp exposes a learner session to AI agents as MCP tools. One
// server drives one Tutor, so an agent works through a question the same
// way a learner does in the TUI.
package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

// NewServer creates an MCP server with the steplab tools registered.
func NewServer(version string, tutor *tutorial.Tutor) *server.MCPServer {
	s := server.NewMCPServer(
		"steplab",
		version,
		server.WithToolCapabilities(true),
	)
	h := &Handlers{Tutor: tutor}

	s.AddTool(
		mcp.NewTool("steplab/list",
			mcp.WithDescription("List the available questions"),
		),
		h.HandleList,
	)

	s.AddTool(
		mcp.NewTool("steplab/open",
			mcp.WithDescription("Open a question, starting a fresh session at step 1"),
			mcp.WithString("id", mcp.Required(), mcp.Description("Question ID")),
		),
		h.HandleOpen,
	)

	s.AddTool(
		mcp.NewTool("steplab/exec",
			mcp.WithDescription("Run a shell command in the open session's workspace"),
			mcp.WithString("command", mcp.Required(), mcp.Description("Command line to run")),
		),
		h.HandleExec,
	)

	s.AddTool(
		mcp.NewTool("steplab/check",
			mcp.WithDescription("Check whether the active step is complete; a pass moves on to the next step"),
		),
		h.HandleCheck,
	)

	s.AddTool(
		mcp.NewTool("steplab/goto",
			mcp.WithDescription("Jump to a step"),
			mcp.WithNumber("step", mcp.Required(), mcp.Description("1-based step number")),
		),
		h.HandleGoto,
	)

	s.AddTool(
		mcp.NewTool("steplab/next",
			mcp.WithDescription("Move to the next step"),
		),
		h.HandleNext,
	)

	s.AddTool(
		mcp.NewTool("steplab/prev",
			mcp.WithDescription("Move to the previous step"),
		),
		h.HandlePrev,
	)

	s.AddTool(
		mcp.NewTool("steplab/namespace",
			mcp.WithDescription("Set the session namespace and verify it is the current project (first step only)"),
			mcp.WithString("name", mcp.Required(), mcp.Description("Namespace label")),
		),
		h.HandleNamespace,
	)

	s.AddTool(
		mcp.NewTool("steplab/status",
			mcp.WithDescription("Show the open question, active step content and progress"),
		),
		h.HandleStatus,
	)

	s.AddTool(
		mcp.NewTool("steplab/close",
			mcp.WithDescription("Close the open question and release its session"),
		),
		h.HandleClose,
	)

	s.AddTool(
		mcp.NewTool("steplab/validate",
			mcp.WithDescription("Validate a question directory (metadata, steps and checks)"),
			mcp.WithString("path", mcp.Required(), mcp.Description("Path to the question directory")),
		),
		HandleValidate,
	)

	s.AddTool(
		mcp.NewTool("steplab/schema",
			mcp.WithDescription("Export the question JSON Schema"),
		),
		HandleSchema,
	)

	return s
}
