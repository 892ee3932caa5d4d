package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	recallhttp "github.com/recalldev/recall/internal/adapters/http"
)

// serveCmd starts the HTTP API server
func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API server",
		Long: `Start the Recall HTTP API server.

Required configuration:
  - PostgreSQL database (RECALL_DATABASE_URL)
  - Qdrant vector store (RECALL_VECTOR_URL)
  - At least one model provider (RECALL_PROVIDER_URL)`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}
}

func runServer(ctx context.Context) error {
	log.Println("Starting Recall API server...")
	log.Printf("  HTTP:   http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("  Vector: %s", cfg.Vector.URL)

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
			log.Printf("Error stopping orchestrator: %v", err)
		}
	}()

	server := recallhttp.NewServer(cfg, application.orchestrator, application.units, application.index, application.retriever)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Printf("Received %v, shutting down...", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	return server.Stop(shutdownCtx)
}
