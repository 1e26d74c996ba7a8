package transcribe

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ContextLimit is the number of trailing characters of prior transcript a
// backend puts in its prompt.
const ContextLimit = 100

type Status int

const (
	StatusSuccess Status = iota
	StatusEmpty
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusEmpty:
		return "empty"
	case StatusFailed:
		return "failed"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Result is the outcome of transcribing one chunk. Text is set only for
// StatusSuccess, Err only for StatusFailed.
type Result struct {
	Status Status
	Text   string
	Err    error
}

// Chunk is one piece of encoded audio as received from the client.
type Chunk struct {
	Audio    []byte
	MIMEType string
}

// Backend performs the actual speech-to-text call.
type Backend interface {
	Recognize(ctx context.Context, chunk Chunk, prior string) (string, error)
}

// Client wraps a Backend with the hallucination denylist and a per-call
// timeout, and reports every outcome as a Result.
type Client struct {
	backend  Backend
	denylist []string
	timeout  time.Duration
}

func New(backend Backend, denylist []string, timeout time.Duration) *Client {
	phrases := make([]string, 0, len(denylist))
	for _, p := range denylist {
		if p = strings.TrimSpace(p); p != "" {
			phrases = append(phrases, p)
		}
	}
	return &Client{backend: backend, denylist: phrases, timeout: timeout}
}

func (c *Client) Transcribe(ctx context.Context, chunk Chunk, prior string) Result {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	text, err := c.backend.Recognize(ctx, chunk, prior)
	if err != nil {
		return Result{Status: StatusFailed, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" || c.Denied(text) {
		return Result{Status: StatusEmpty}
	}
	return Result{Status: StatusSuccess, Text: text}
}

// Denied reports whether text contains any denylisted phrase.
func (c *Client) Denied(text string) bool {
	for _, phrase := range c.denylist {
		if strings.Contains(text, phrase) {
			return true
		}
	}
	return false
}

// TrimContext keeps the last limit characters of s.
func TrimContext(s string, limit int) string {
	r := []rune(s)
	if limit < 0 || len(r) <= limit {
		return s
	}
	return string(r[len(r)-limit:])
}
