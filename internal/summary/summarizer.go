package summary

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sjawhar/live-scribe/internal/llm"
)

const (
	// ShortMeetingPlaceholder is summarized instead of transcripts too short
	// to carry meaning, so the model never sees an empty input.
	ShortMeetingPlaceholder = "The meeting was short and no clear speech was recorded."
	// FailurePlaceholder replaces the summary when the model call fails.
	FailurePlaceholder = "Summary generation failed."

	// MinTranscriptLength is the length a transcript must exceed to be
	// summarized as-is.
	MinTranscriptLength = 10
)

var errNotConfigured = errors.New("summarizer not configured")

type Status int

const (
	StatusGenerated Status = iota
	StatusPlaceholder
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusGenerated:
		return "generated"
	case StatusPlaceholder:
		return "placeholder"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result always carries text suitable for persisting. For StatusFailed that
// text is FailurePlaceholder and Err holds the cause.
type Result struct {
	Status Status
	Text   string
	Err    error
}

type ClientFactory func(provider, model string) (llm.Client, error)

type Summarizer struct {
	client llm.Client
}

func New(client llm.Client) *Summarizer {
	return &Summarizer{client: client}
}

// NewFromModel resolves a "provider/model" string through factory. An
// unusable model string still yields a Summarizer whose results are
// FailurePlaceholder, so a bad summary config never stops recording.
func NewFromModel(model string, factory ClientFactory) (*Summarizer, error) {
	provider, name, err := llm.ParseModel(model)
	if err != nil {
		return New(nil), err
	}
	client, err := factory(provider, name)
	if err != nil {
		return New(nil), fmt.Errorf("create llm client: %w", err)
	}
	return New(client), nil
}

// InputFor picks what to summarize for a finished transcript.
func InputFor(transcript string) string {
	if len(transcript) > MinTranscriptLength {
		return transcript
	}
	return ShortMeetingPlaceholder
}

func (s *Summarizer) Summarize(ctx context.Context, input string) Result {
	if s.client == nil {
		return failed(errNotConfigured)
	}

	text, err := s.client.Complete(ctx, []llm.Message{{Role: "user", Content: prompt(input)}})
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty summary")
	}
	if err != nil {
		return failed(err)
	}

	status := StatusGenerated
	if input == ShortMeetingPlaceholder {
		status = StatusPlaceholder
	}
	return Result{Status: status, Text: strings.TrimSpace(text)}
}

func failed(err error) Result {
	slog.Warn("summary: using failure placeholder", "error", err)
	return Result{Status: StatusFailed, Text: FailurePlaceholder, Err: err}
}

func prompt(transcript string) string {
	return `Analyze the following meeting transcript.
Provide:
1. A concise summary (3-4 sentences).
2. Key Action Items (bullet points).
3. Important decisions made.

Transcript:
` + transcript
}
