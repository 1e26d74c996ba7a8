package main

import (
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/sjawhar/live-scribe/internal/config"
)

var configPath string

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "live-scribe",
		Short:         "Streaming meeting transcription server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}
	root.PersistentFlags().StringVar(&configPath, "config", envOrDefault(config.EnvPrefix+"CONFIG", "live-scribe.yaml"), "path to YAML config file")

	root.AddCommand(newServeCommand(), newModelsCommand(), newCaptureCommand())
	return root
}

// loadConfig reads the config and installs the slog default at its level.
func loadConfig() (config.Config, []string, error) {
	cfg, warnings, err := config.Load(configPath)
	if err != nil {
		return cfg, nil, err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	return cfg, warnings, nil
}

func envOrDefault(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Fatalf("live-scribe: %v", err)
	}
}
