package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/recalldev/recall/internal/config"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

var (
	cfg     *config.Config
	cfgPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "recall",
		Short: "Recall - long-term memory service for coding assistants",
		Long: `Recall stores finished assistant conversations, compresses them into
searchable memory units and serves them back through search and
prompt-injection APIs, over HTTP and over MCP stdio.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file")

	rootCmd.AddCommand(
		serveCmd(),
		stdioCmd(),
		configCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// configCmd shows current configuration
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("Current configuration:")
			fmt.Println()

			fmt.Println("Server:")
			fmt.Printf("  Host: %s\n", cfg.Server.Host)
			fmt.Printf("  Port: %d\n", cfg.Server.Port)
			fmt.Println()

			fmt.Println("Store:")
			fmt.Printf("  PostgreSQL: %s\n", maskSecret(cfg.Store.URL))
			fmt.Printf("  Pool size:  %d\n", cfg.Store.PoolSize)
			fmt.Println()

			fmt.Println("Vector index:")
			fmt.Printf("  URL:        %s\n", cfg.Vector.URL)
			fmt.Printf("  Collection: %s\n", cfg.Vector.Collection)
			fmt.Printf("  Dimension:  %d\n", cfg.Vector.Dimension)
			fmt.Println()

			fmt.Println("Models:")
			fmt.Printf("  Embed:  %s\n", cfg.Models.Embed)
			fmt.Printf("  Rerank: %s\n", cfg.Models.Rerank)
			fmt.Printf("  Light:  %s\n", cfg.Models.Light)
			fmt.Printf("  Heavy:  %s\n", cfg.Models.Heavy)
			for _, p := range cfg.Models.Providers {
				fmt.Printf("  Provider %s: %s (key %s)\n", p.Name, p.BaseURL, maskSecret(p.APIKey))
			}
			fmt.Println()

			fmt.Println("Memory:")
			fmt.Printf("  Token budget: %d\n", cfg.Memory.TokenBudget)
			fmt.Printf("  Fuser budget: %d\n", cfg.Memory.FuserBudget)
			fmt.Println()

			fmt.Println("Retrieval:")
			fmt.Printf("  Cache TTL:     %ds\n", cfg.Retrieval.CacheTTLSeconds)
			fmt.Printf("  Cache enabled: %t\n", cfg.Retrieval.CacheEnabled)
			fmt.Println()

			fmt.Println("Environment variables:")
			fmt.Println("  RECALL_HOST, RECALL_PORT, RECALL_DATABASE_URL, RECALL_DB_POOL_SIZE")
			fmt.Println("  RECALL_VECTOR_URL, RECALL_VECTOR_COLLECTION, RECALL_VECTOR_DIMENSION")
			fmt.Println("  RECALL_MODEL_EMBED, RECALL_MODEL_RERANK, RECALL_MODEL_LIGHT, RECALL_MODEL_HEAVY")
			fmt.Println("  RECALL_PROVIDER_URL, RECALL_PROVIDER_NAME, RECALL_PROVIDER_API_KEY")
			fmt.Println("  RECALL_TOKEN_BUDGET, RECALL_FUSER_BUDGET, RECALL_CACHE_TTL_S, RECALL_CACHE_ENABLED")

			return nil
		},
	}
}

// versionCmd shows version information
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("Recall %s\n", version)
			fmt.Printf("  Commit:     %s\n", commit)
			fmt.Printf("  Build Date: %s\n", buildDate)
		},
	}
}

func maskSecret(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****"
}
