package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/steplab/pkg/client"
	"github.com/ormasoftchile/steplab/pkg/config"
	"github.com/ormasoftchile/steplab/pkg/logging"
	smcp "github.com/ormasoftchile/steplab/pkg/mcp"
	lserver "github.com/ormasoftchile/steplab/pkg/server"
	"github.com/ormasoftchile/steplab/pkg/shell"
	"github.com/ormasoftchile/steplab/pkg/tui"
	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

// learnerFlags are shared by the tui, shell and mcp front ends.
var learnerFlags struct {
	server    string
	local     string
	compact   bool
}

var tuiCmd = &cobra.Command{
	Use:   "tui [question-id]",
	Short: "Work through questions in a terminal UI",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		// Logs on stderr would corrupt the alt screen; only the file sink is kept.
		tutor, closeLog, err := newTutor(cmd, io.Discard)
		if err != nil {
			return err
		}
		defer closeLog()
		return tui.Run(ctx, tui.Config{Tutor: tutor, QuestionID: firstArg(args), Compact: learnerFlags.compact})
	},
}

var shellCmd = &cobra.Command{
	Use:   "shell [question-id]",
	Short: "Work through questions in an interactive shell",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tutor, closeLog, err := newTutor(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer closeLog()
		return shell.New(tutor).Run(cmd.Context(), firstArg(args))
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the learner tools to AI agents over MCP (stdio)",
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol.
		tutor, closeLog, err := newTutor(cmd, os.Stderr)
		if err != nil {
			return err
		}
		defer closeLog()
		defer func() {
			tutor.Close()
			tutor.Wait()
		}()
		return server.ServeStdio(smcp.NewServer(version, tutor))
	},
}

func firstArg(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return ""
}

// newTutor builds a Tutor over the remote server, or over an in-process
// backend when --local names a question directory.
func newTutor(cmd *cobra.Command, logOut io.Writer) (*tutorial.Tutor, func() error, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Changed("server") {
		cfg.ServerURL = learnerFlags.server
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}
	logger, closeLog, err := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile, Writer: logOut})
	if err != nil {
		return nil, nil, err
	}

	backend, err := learnerBackend(cfg, logger)
	if err != nil {
		closeLog()
		return nil, nil, err
	}
	tutor := tutorial.New(backend, tutorial.Options{
		RequestTimeout:         cfg.RequestTimeout,
		AdvanceDelay:           cfg.AutoAdvanceDelay,
		BootstrapCommand:       cfg.BootstrapCommand,
		IntrospectCommand:      cfg.IntrospectCommand,
		CreateNamespaceCommand: cfg.CreateNamespaceCommand,
		Logger:                 logger,
	})
	return tutor, closeLog, nil
}

func learnerBackend(cfg *config.Client, logger *slog.Logger) (tutorial.Backend, error) {
	if learnerFlags.local == "" {
		c, err := client.New(cfg.ServerURL)
		if err != nil {
			return nil, err
		}
		logger.Debug("using remote backend", "server", cfg.ServerURL)
		return c, nil
	}

	scfg, err := config.LoadServer()
	if err != nil {
		return nil, err
	}
	scfg.QuestionsDir = learnerFlags.local
	b, err := lserver.NewBackend(scfg, logger)
	if err != nil {
		return nil, fmt.Errorf("local backend: %w", err)
	}
	logger.Debug("using local backend", "questions", scfg.QuestionsDir, "workspaces", scfg.WorkspaceDir)
	return b, nil
}

func init() {
	for _, c := range []*cobra.Command{tuiCmd, shellCmd, mcpCmd} {
		c.Flags().StringVar(&learnerFlags.server, "server", "http://localhost:8080", "steplab server URL")
		c.Flags().StringVar(&learnerFlags.local, "local", "", "Run against this question directory in-process instead of a server")
	}
	tuiCmd.Flags().BoolVar(&learnerFlags.compact, "compact", false, "Hide the step list")
}
