package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedAttachment is returned by providers that cannot take binary
// (audio) input alongside a chat message.
var ErrUnsupportedAttachment = errors.New("provider does not accept attachments")

// ErrEmptyResponse means the model answered with no text at all.
var ErrEmptyResponse = errors.New("empty response")

// Attachment is inline binary content sent with a message, e.g. an audio chunk.
type Attachment struct {
	MIMEType string
	Data     []byte
}

type Message struct {
	Role        string
	Content     string
	Attachments []Attachment
}

// Options tune a single completion. Nil fields keep provider defaults.
type Options struct {
	Temperature *float32
	TopK        *float32
}

type Client interface {
	Complete(ctx context.Context, messages []Message, opts ...CompleteOption) (string, error)
}

type CompleteOption func(*Options)

// WithTemperature lowers or raises sampling temperature for one call.
func WithTemperature(t float32) CompleteOption {
	return func(o *Options) { o.Temperature = &t }
}

// WithTopK restricts sampling to the K most likely tokens where supported.
func WithTopK(k float32) CompleteOption {
	return func(o *Options) { o.TopK = &k }
}

func completeOptions(opts []CompleteOption) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

type Option func(*clientOptions)

type clientOptions struct {
	baseURL string
}

func WithBaseURL(url string) Option {
	return func(o *clientOptions) {
		o.baseURL = url
	}
}

func ParseModel(model string) (provider, modelName string, err error) {
	parts := strings.SplitN(model, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid model format %q: expected provider/model_name", model)
	}
	return parts[0], parts[1], nil
}

func NewClient(provider, apiKey, model string, opts ...Option) (Client, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	switch provider {
	case "openai":
		return newOpenAIClient(apiKey, model, o)
	case "anthropic":
		return newAnthropicClient(apiKey, model, o)
	case "gemini":
		return newGeminiClient(apiKey, model, o)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q: supported providers are openai, anthropic, gemini", provider)
	}
}

func hasAttachments(messages []Message) bool {
	for _, m := range messages {
		if len(m.Attachments) > 0 {
			return true
		}
	}
	return false
}
