package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sjawhar/live-scribe/internal/audio"
	"github.com/sjawhar/live-scribe/internal/audio/mic"
	"github.com/sjawhar/live-scribe/internal/capture"
)

type captureFlags struct {
	serverURL  string
	userID     string
	chunk      time.Duration
	sampleRate string
}

func newCaptureCommand() *cobra.Command {
	var f captureFlags
	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Stream the default microphone to a live-scribe server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCapture(cmd, f)
		},
	}
	cmd.Flags().StringVar(&f.serverURL, "server", "ws://127.0.0.1:3000/ws", "server WebSocket URL")
	cmd.Flags().StringVar(&f.userID, "user", envOrDefault("USER", "local"), "user id recorded with the session")
	cmd.Flags().DurationVar(&f.chunk, "chunk", capture.DefaultChunk, "audio per chunk")
	cmd.Flags().StringVar(&f.sampleRate, "rate", "", "preferred sample rates, comma separated")
	return cmd
}

func runCapture(cmd *cobra.Command, f captureFlags) error {
	if _, _, err := loadConfig(); err != nil {
		return err
	}

	if err := mic.Init(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	defer mic.Terminate()

	var device *mic.Mic
	var err error
	for _, rate := range sampleRateCandidates(f.sampleRate) {
		device, err = mic.New(rate, rate/10)
		if err != nil {
			log.Printf("warning: microphone open failed at %d Hz: %v", rate, err)
			continue
		}
		break
	}
	if device == nil {
		return errors.New("microphone unavailable")
	}
	defer func() { _ = device.Close() }()

	if err := device.Start(); err != nil {
		return fmt.Errorf("microphone start failed at %d Hz: %w", device.SampleRate(), err)
	}
	log.Printf("microphone started at %d Hz", device.SampleRate())

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := capture.Dial(ctx, f.serverURL)
	if err != nil {
		return err
	}
	defer func() { _ = client.Close() }()

	rec, err := capture.Run(ctx, client, &retryingMic{device: device, ctx: ctx}, capture.Options{
		UserID:        f.userID,
		SampleRate:    device.SampleRate(),
		ChunkDuration: f.chunk,
		Out:           cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "\nSaved %q (%s, %ds)\n\n%s\n", rec.Title, rec.ID, rec.Duration, rec.Summary)
	return nil
}

// retryingMic restarts the mic stream after input overflows.
type retryingMic struct {
	device *mic.Mic
	ctx    context.Context
}

func (r *retryingMic) Stream(w io.Writer) error {
	return streamMicWithRetry(r.ctx, r.device, w, time.Sleep, log.Printf)
}

func (r *retryingMic) Stop() error { return r.device.Stop() }

type micStreamer interface {
	Stream(writer io.Writer) error
}

func streamMicWithRetry(
	ctx context.Context,
	streamer micStreamer,
	writer io.Writer,
	wait func(time.Duration),
	logf func(string, ...any),
) error {
	for {
		err := streamer.Stream(writer)
		if err == nil || ctx.Err() != nil {
			return err
		}

		if strings.Contains(strings.ToLower(err.Error()), "overflow") {
			logf("warning: mic input overflow, restarting stream")
			wait(250 * time.Millisecond)
			continue
		}
		return err
	}
}

func parseSampleRates(raw string) []int {
	parts := strings.Split(raw, ",")
	result := make([]int, 0, len(parts))
	for _, part := range parts {
		rate, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || rate <= 0 {
			continue
		}
		result = append(result, rate)
	}
	return result
}

// sampleRateCandidates puts preferred rates first, then the usual device
// rates, without duplicates.
func sampleRateCandidates(preferred string) []int {
	combined := append(parseSampleRates(preferred), audio.DefaultSampleRate, 48000, 44100, 32000, 24000)

	seen := make(map[int]struct{}, len(combined))
	result := make([]int, 0, len(combined))
	for _, rate := range combined {
		if _, ok := seen[rate]; ok {
			continue
		}
		seen[rate] = struct{}{}
		result = append(result, rate)
	}
	return result
}
