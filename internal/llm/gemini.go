package llm

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"google.golang.org/genai"
)

type geminiClient struct {
	client *genai.Client
	model  string
}

func newGeminiClient(apiKey, model string, opts *clientOptions) (*geminiClient, error) {
	client, err := newGenAI(context.Background(), apiKey, opts)
	if err != nil {
		return nil, err
	}
	return &geminiClient{client: client, model: model}, nil
}

func newGenAI(ctx context.Context, apiKey string, opts *clientOptions) (*genai.Client, error) {
	config := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if opts.baseURL != "" {
		config.HTTPOptions.BaseURL = opts.baseURL
	}

	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return client, nil
}

func convertGeminiMessages(messages []Message) (*genai.Content, []*genai.Content) {
	var systemInstruction *genai.Content
	var contents []*genai.Content

	for _, m := range messages {
		switch m.Role {
		case "system":
			systemInstruction = &genai.Content{Parts: []*genai.Part{{Text: m.Content}}}
		case "user":
			contents = append(contents, &genai.Content{Role: "user", Parts: geminiParts(m)})
		case "assistant":
			contents = append(contents, &genai.Content{Role: "model", Parts: geminiParts(m)})
		}
	}

	return systemInstruction, contents
}

// geminiParts puts the text first and any inline blobs after it, the order
// the API expects for "instruction, then media" prompts.
func geminiParts(m Message) []*genai.Part {
	parts := make([]*genai.Part, 0, 1+len(m.Attachments))
	if m.Content != "" {
		parts = append(parts, &genai.Part{Text: m.Content})
	}
	for _, a := range m.Attachments {
		parts = append(parts, &genai.Part{InlineData: &genai.Blob{MIMEType: a.MIMEType, Data: a.Data}})
	}
	return parts
}

func (c *geminiClient) Complete(ctx context.Context, messages []Message, opts ...CompleteOption) (string, error) {
	systemInstruction, contents := convertGeminiMessages(messages)

	hasUserMessage := false
	for _, m := range messages {
		if m.Role == "user" {
			hasUserMessage = true
			break
		}
	}
	if !hasUserMessage {
		return "", fmt.Errorf("gemini: no user message provided")
	}

	o := completeOptions(opts)
	config := &genai.GenerateContentConfig{
		SystemInstruction: systemInstruction,
		Temperature:       o.Temperature,
		TopK:              o.TopK,
	}
	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini completion: %w", err)
	}

	text := strings.TrimSpace(result.Text())
	if text == "" {
		return "", fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	return text, nil
}

// ListGeminiModels returns the names (without the "models/" prefix) of the
// Gemini models the key can call generateContent on.
func ListGeminiModels(ctx context.Context, apiKey string, opts ...Option) ([]string, error) {
	o := &clientOptions{}
	for _, opt := range opts {
		opt(o)
	}

	client, err := newGenAI(ctx, apiKey, o)
	if err != nil {
		return nil, err
	}

	var models []*genai.Model
	for model, err := range client.Models.All(ctx) {
		if err != nil {
			return nil, fmt.Errorf("list gemini models: %w", err)
		}
		models = append(models, model)
	}
	return generateContentModels(models), nil
}

func generateContentModels(models []*genai.Model) []string {
	names := make([]string, 0, len(models))
	for _, m := range models {
		if m == nil || !slices.Contains(m.SupportedActions, "generateContent") {
			continue
		}
		names = append(names, strings.TrimPrefix(m.Name, "models/"))
	}
	return names
}
