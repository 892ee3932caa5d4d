package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/recalldev/recall/internal/adapters/mcp"
)

// stdioCmd runs the MCP server over stdin/stdout
func stdioCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stdio",
		Short: "Run the MCP server over stdio",
		Long: `Run Recall as a Model Context Protocol server on stdin/stdout,
for use as an assistant tool backend. All logging goes to stderr.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStdio(cmd.Context())
		},
	}
}

func runStdio(ctx context.Context) error {
	// stdout carries protocol frames only
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)
	log.SetOutput(os.Stderr)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	application, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.close()

	if err := application.orchestrator.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := application.orchestrator.Stop(); err != nil {
			logger.Error("error stopping orchestrator", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutting down")
		cancel()
	}()

	server := mcp.NewServer(application.orchestrator, version, logger, os.Stdin, os.Stdout)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
