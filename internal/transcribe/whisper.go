package transcribe

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/sjawhar/live-scribe/internal/audio"
)

// WhisperBackend uses the OpenAI audio transcription endpoint. The prior
// transcript goes in the prompt field, which the API documents as a
// continuation hint.
type WhisperBackend struct {
	client *openai.Client
	model  string
}

func NewWhisperBackend(apiKey, model, baseURL string) *WhisperBackend {
	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &WhisperBackend{client: openai.NewClientWithConfig(config), model: model}
}

func (b *WhisperBackend) Recognize(ctx context.Context, chunk Chunk, prior string) (string, error) {
	resp, err := b.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    b.model,
		FilePath: "chunk" + audio.Extension(chunk.MIMEType),
		Reader:   bytes.NewReader(chunk.Audio),
		Prompt:   TrimContext(prior, ContextLimit),
	})
	if err != nil {
		return "", fmt.Errorf("whisper transcription: %w", err)
	}
	return resp.Text, nil
}
