package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sjawhar/live-scribe/internal/audio"
	"github.com/sjawhar/live-scribe/internal/config"
	"github.com/sjawhar/live-scribe/internal/gdrive"
	"github.com/sjawhar/live-scribe/internal/llm"
	"github.com/sjawhar/live-scribe/internal/server"
	"github.com/sjawhar/live-scribe/internal/session"
	"github.com/sjawhar/live-scribe/internal/storage"
	"github.com/sjawhar/live-scribe/internal/summary"
	"github.com/sjawhar/live-scribe/internal/transcribe"
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the WebSocket transcription server (default)",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	log.Println("live-scribe: starting")

	cfg, warnings, err := loadConfig()
	if err != nil {
		return err
	}
	for _, w := range warnings {
		log.Printf("warning: %s", w)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("storage init failed: %w", err)
	}
	defer func() { _ = store.Close() }()

	transcriber, err := newTranscriber(cfg)
	if err != nil {
		return fmt.Errorf("transcriber init failed: %w", err)
	}

	summarizer, err := summary.NewFromModel(cfg.SummaryModel, llmFactory(cfg))
	if err != nil {
		log.Printf("warning: summaries disabled: %v", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := server.NewHub()
	archive := audio.NewArchive(cfg.AudioDir)

	opts := []session.Option{
		session.WithDrainTimeout(cfg.ParsedDrainTimeout()),
		session.WithIdleTimeout(cfg.ParsedIdleTimeout()),
	}
	if archive.Enabled() {
		opts = append(opts, session.WithArchive(archive))
	}
	if cfg.NotesDir != "" {
		opts = append(opts, session.WithNotes(storage.NewNotes(cfg.NotesDir)))
	}
	if cfg.GDriveFolderID != "" {
		syncer, syncErr := gdrive.NewSyncer(ctx, cfg.GoogleCredentialsFile, cfg.GDriveFolderID)
		if syncErr != nil {
			log.Printf("warning: gdrive sync disabled: %v", syncErr)
		} else {
			opts = append(opts, session.WithExporter(syncer))
		}
	}

	manager := session.NewManager(transcriber, summarizer, store, hub, opts...)

	handler := server.Handler(hub, manager, store, server.Options{
		HistoryLimit:   cfg.HistoryLimit,
		Warnings:       func() []string { return warnings },
		ActiveSessions: manager.Count,
		OpenAudio: func(path string) (server.AudioFile, error) {
			f, err := archive.Open(path)
			if err != nil {
				return nil, err
			}
			return f, nil
		},
	})

	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	serveErr := make(chan error, 1)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	log.Printf("live-scribe: listening on %s (transcriber %s, summaries %s)", cfg.ListenAddr, cfg.Transcriber, cfg.SummaryModel)

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	}

	log.Println("live-scribe: shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ParsedDrainTimeout()+5*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: http shutdown failed: %v", err)
	}
	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Printf("warning: session shutdown failed: %v", err)
	}
	return nil
}

func newTranscriber(cfg config.Config) (*transcribe.Client, error) {
	var backend transcribe.Backend
	switch cfg.Transcriber {
	case config.TranscriberOpenAI:
		backend = transcribe.NewWhisperBackend(cfg.OpenAIAPIKey, cfg.TranscribeModel, "")
	case config.TranscriberDeepgram:
		backend = transcribe.NewDeepgramBackend(cfg.DeepgramAPIKey, cfg.TranscribeModel)
	default:
		client, err := llm.NewClient(config.TranscriberGemini, cfg.GeminiAPIKey, cfg.TranscribeModel)
		if err != nil {
			return nil, err
		}
		backend = transcribe.NewPromptBackend(client)
	}
	return transcribe.New(backend, cfg.Denylist, cfg.ParsedTranscribeTimeout()), nil
}

func llmFactory(cfg config.Config) summary.ClientFactory {
	return func(provider, model string) (llm.Client, error) {
		key := cfg.APIKeyFor(provider)
		if key == "" {
			return nil, fmt.Errorf("%s API key not configured", provider)
		}
		return llm.NewClient(provider, key, model)
	}
}
