package server

import (
	"encoding/json"
	"time"
)

const EventVersion = 1

const (
	EventStartSession     = "start-session"
	EventAudioData        = "audio-data"
	EventStopSession      = "stop-session"
	EventStatus           = "status"
	EventTranscriptUpdate = "transcript-update"
	EventSessionCompleted = "session-completed"
	EventError            = "error"
)

// Event is the envelope of every text frame.
type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
}

// InboundEvent is a client frame; only type and data are read.
type InboundEvent struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type StartSessionData struct {
	UserID   string `json:"userId"`
	MIMEType string `json:"mimeType,omitempty"`
}

func newEvent(eventType string, now time.Time, data any) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
		Data:      data,
	}
}
