package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ormasoftchile/steplab/pkg/config"
	"github.com/ormasoftchile/steplab/pkg/logging"
	"github.com/ormasoftchile/steplab/pkg/server"
)

var (
	logLevel string
	logFile  string
)

var serveFlags struct {
	addr       string
	questions  string
	workspaces string
	noAdmin    bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serve the question catalog, learner sessions, the command terminal and
step validation over HTTP. Settings come from STEPLAB_* environment
variables (and .env); flags override them.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadServer()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.Addr = serveFlags.addr
	}
	if cmd.Flags().Changed("questions") {
		cfg.QuestionsDir = serveFlags.questions
	}
	if cmd.Flags().Changed("workspaces") {
		cfg.WorkspaceDir = serveFlags.workspaces
	}
	if serveFlags.noAdmin {
		cfg.EnableAdmin = false
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFile != "" {
		cfg.LogFile = logFile
	}

	logger, closeLog, err := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile})
	if err != nil {
		return err
	}
	defer closeLog()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	srv, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Run(ctx)
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.addr, "addr", ":8080", "Listen address")
	serveCmd.Flags().StringVar(&serveFlags.questions, "questions", "questions", "Question catalog directory")
	serveCmd.Flags().StringVar(&serveFlags.workspaces, "workspaces", "workspaces", "Root directory for session workspaces")
	serveCmd.Flags().BoolVar(&serveFlags.noAdmin, "no-admin", false, "Disable the question authoring endpoints")
}
