package session

import "strings"

const separator = " "

// Transcript accumulates recognized segments in completion order.
type Transcript struct {
	segments []string
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

func (t *Transcript) Append(segment string) {
	t.segments = append(t.segments, segment)
}

// Context joins the last n segments.
func (t *Transcript) Context(n int) string {
	if n <= 0 || len(t.segments) == 0 {
		return ""
	}
	start := len(t.segments) - n
	if start < 0 {
		start = 0
	}
	return strings.Join(t.segments[start:], separator)
}

func (t *Transcript) Text() string {
	return strings.Join(t.segments, separator)
}

func (t *Transcript) Len() int {
	return len(t.segments)
}
