// Package main provides the steplab-mcp binary, the learner tools served
// over MCP stdio against a steplab server.
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ormasoftchile/steplab/pkg/client"
	"github.com/ormasoftchile/steplab/pkg/config"
	"github.com/ormasoftchile/steplab/pkg/logging"
	smcp "github.com/ormasoftchile/steplab/pkg/mcp"
	"github.com/ormasoftchile/steplab/pkg/tutorial"
)

var version = "dev"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return err
	}
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}
	logger, closeLog, err := logging.New(logging.Config{Level: cfg.LogLevel, File: cfg.LogFile, Writer: os.Stderr})
	if err != nil {
		return err
	}
	defer closeLog()

	c, err := client.New(cfg.ServerURL)
	if err != nil {
		return err
	}
	tutor := tutorial.New(c, tutorial.Options{
		RequestTimeout:         cfg.RequestTimeout,
		AdvanceDelay:           cfg.AutoAdvanceDelay,
		BootstrapCommand:       cfg.BootstrapCommand,
		IntrospectCommand:      cfg.IntrospectCommand,
		CreateNamespaceCommand: cfg.CreateNamespaceCommand,
		Logger:                 logger,
	})
	defer func() {
		tutor.Close()
		tutor.Wait()
	}()
	return server.ServeStdio(smcp.NewServer(version, tutor))
}
