package transcribe

import (
	"bytes"
	"context"
	"fmt"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
)

// DeepgramBackend sends each chunk to Deepgram's prerecorded endpoint.
// Deepgram has no free-text context input; prior is ignored.
type DeepgramBackend struct {
	client  *api.Client
	options *interfaces.PreRecordedTranscriptionOptions
}

func NewDeepgramBackend(apiKey, model string) *DeepgramBackend {
	client.Init(client.InitLib{LogLevel: client.LogLevelDefault})

	if model == "" {
		model = "nova-2"
	}
	rest := client.NewREST(apiKey, &interfaces.ClientOptions{})
	return &DeepgramBackend{
		client: api.New(rest),
		options: &interfaces.PreRecordedTranscriptionOptions{
			Model:       model,
			Language:    "en-US",
			Punctuate:   true,
			SmartFormat: true,
		},
	}
}

func (b *DeepgramBackend) Recognize(ctx context.Context, chunk Chunk, _ string) (string, error) {
	res, err := b.client.FromStream(ctx, bytes.NewReader(chunk.Audio), b.options)
	if err != nil {
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}
	if res == nil || res.Results == nil || len(res.Results.Channels) == 0 {
		return "", nil
	}

	alternatives := res.Results.Channels[0].Alternatives
	if len(alternatives) == 0 {
		return "", nil
	}
	return alternatives[0].Transcript, nil
}
