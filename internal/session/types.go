package session

import (
	"context"

	"github.com/sjawhar/live-scribe/internal/storage"
	"github.com/sjawhar/live-scribe/internal/summary"
	"github.com/sjawhar/live-scribe/internal/transcribe"
)

type Transcriber interface {
	Transcribe(ctx context.Context, chunk transcribe.Chunk, prior string) transcribe.Result
}

type Summarizer interface {
	Summarize(ctx context.Context, input string) summary.Result
}

type Store interface {
	Create(userID, transcript, summary string, duration int, title string) (storage.Record, error)
	SetAudioPath(id, audioPath string) error
}

// Archive spools raw chunks per session; see audio.Archive.
type Archive interface {
	Start(key, mimeType string) error
	Write(key string, chunk []byte) error
	Promote(key, id string) (string, error)
	Discard(key string) error
}

type Notes interface {
	Append(rec storage.Record) (string, error)
}

type Exporter interface {
	Sync(localPath, date string) error
}

// TranscriptUpdate is the payload of a transcript-update event. Text is
// empty for terminal updates.
type TranscriptUpdate struct {
	Text           string `json:"text,omitempty"`
	FullTranscript string `json:"fullTranscript"`
}

// Emitter delivers events to one connection. Calls are made while a
// session lock is held and must not block.
type Emitter interface {
	SendStatus(conn, status string)
	SendTranscript(conn string, update TranscriptUpdate)
	SendCompleted(conn string, rec storage.Record)
	SendError(conn, message string)
}
