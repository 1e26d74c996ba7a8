package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/sjawhar/live-scribe/internal/config"
	"github.com/sjawhar/live-scribe/internal/llm"
)

func newModelsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List Gemini models that support generateContent",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.GeminiAPIKey == "" {
				return errors.New("gemini API key not configured: set " + config.EnvPrefix + "GEMINI_API_KEY")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			models, err := llm.ListGeminiModels(ctx, cfg.GeminiAPIKey)
			if err != nil {
				return err
			}
			for _, name := range models {
				fmt.Fprintln(cmd.OutOrStdout(), name)
			}
			return nil
		},
	}
}
