package main

import (
	"context"
	"errors"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/sjawhar/live-scribe/internal/config"
)

type scriptedStreamer struct {
	errs  []error
	calls int
}

func (s *scriptedStreamer) Stream(io.Writer) error {
	err := s.errs[s.calls]
	s.calls++
	return err
}

func TestStreamMicWithRetryRestartsOnOverflow(t *testing.T) {
	s := &scriptedStreamer{errs: []error{errors.New("Input overflowed"), errors.New("device lost")}}
	var waits int

	err := streamMicWithRetry(context.Background(), s, io.Discard, func(time.Duration) { waits++ }, func(string, ...any) {})
	if err == nil || err.Error() != "device lost" {
		t.Fatalf("expected device lost, got %v", err)
	}
	if s.calls != 2 || waits != 1 {
		t.Fatalf("expected 2 calls and 1 wait, got %d and %d", s.calls, waits)
	}
}

func TestStreamMicWithRetryStopsWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s := &scriptedStreamer{errs: []error{errors.New("overflow")}}

	_ = streamMicWithRetry(ctx, s, io.Discard, func(time.Duration) {}, func(string, ...any) {})
	if s.calls != 1 {
		t.Fatalf("expected no retry after cancel, got %d calls", s.calls)
	}
}

func TestSampleRateCandidates(t *testing.T) {
	got := sampleRateCandidates("44100, 8000,bad,16000")
	want := []int{44100, 8000, 16000, 48000, 32000, 24000}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestLLMFactoryRequiresKey(t *testing.T) {
	factory := llmFactory(config.Config{GeminiAPIKey: "g"})
	if _, err := factory("anthropic", "claude"); err == nil {
		t.Fatal("expected error without anthropic key")
	}
	if _, err := factory("openai", "gpt-4o-mini"); err == nil {
		t.Fatal("expected error without openai key")
	}
}

func TestNewTranscriberPicksBackend(t *testing.T) {
	for _, name := range []string{config.TranscriberOpenAI, config.TranscriberDeepgram} {
		c, err := newTranscriber(config.Config{Transcriber: name, OpenAIAPIKey: "k", DeepgramAPIKey: "k"})
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if c == nil {
			t.Fatalf("%s: expected a transcriber", name)
		}
	}
}
