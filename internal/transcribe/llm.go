package transcribe

import (
	"context"
	"errors"
	"fmt"

	"github.com/sjawhar/live-scribe/internal/llm"
)

const startOfConversation = "[Start of conversation]"

// PromptBackend transcribes by sending the chunk inline to a multimodal
// model with an instruction prompt. Only providers that accept audio
// attachments (gemini) work here.
type PromptBackend struct {
	client llm.Client
}

func NewPromptBackend(client llm.Client) *PromptBackend {
	return &PromptBackend{client: client}
}

func (b *PromptBackend) Recognize(ctx context.Context, chunk Chunk, prior string) (string, error) {
	mimeType := chunk.MIMEType
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	text, err := b.client.Complete(ctx, []llm.Message{{
		Role:        "user",
		Content:     transcriptionPrompt(prior),
		Attachments: []llm.Attachment{{MIMEType: mimeType, Data: chunk.Audio}},
	}}, llm.WithTemperature(0.2), llm.WithTopK(1))
	if errors.Is(err, llm.ErrEmptyResponse) {
		// silence: the prompt asks for an empty string
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("prompt transcription: %w", err)
	}
	return text, nil
}

func transcriptionPrompt(prior string) string {
	snippet := TrimContext(prior, ContextLimit)
	if snippet == "" {
		snippet = startOfConversation
	}
	return fmt.Sprintf(`You are a professional transcriber.
CONTEXT: The user previously said: "%s"

INSTRUCTION: Transcribe the speech in the provided AUDIO chunk exactly.
- Continue the flow of speech from the CONTEXT naturally.
- If the audio contains the end of the previous sentence, finish it.
- If the audio is silence or background noise, return an empty string.
- Do NOT repeat the text from the CONTEXT. Only output the NEW speech found in the audio.
- Do NOT output "I'm getting into it" or timestamps.`, snippet)
}
