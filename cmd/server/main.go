package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/atmx/urgency-engine/internal/config"
)

var configPath string

func main() {
	_ = godotenv.Load()

	serve := serveCmd()
	rootCmd := &cobra.Command{
		Use:          "urgency-engine",
		Short:        "Dynamic urgency pricing engine",
		SilenceUsage: true,
		RunE:         serve.RunE,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("URGENCY_CONFIG"), "path to a YAML config file")

	rootCmd.AddCommand(
		serve,
		quoteCmd(),
		migrateCmd(),
		hashTokenCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config and installs the process logger.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	level, _ := cfg.Logging.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler = slog.NewJSONHandler(os.Stdout, opts)
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
	return cfg, nil
}
