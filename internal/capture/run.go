package capture

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sjawhar/live-scribe/internal/audio"
	"github.com/sjawhar/live-scribe/internal/server"
	"github.com/sjawhar/live-scribe/internal/session"
	"github.com/sjawhar/live-scribe/internal/storage"
)

const (
	MIMEType           = "audio/wav"
	DefaultChunk       = 6 * time.Second
	DefaultStopTimeout = 2 * time.Minute
)

var ErrConnectionClosed = errors.New("connection closed before session completed")

// Source produces PCM16 mono audio until Stop is called.
type Source interface {
	Stream(w io.Writer) error
	Stop() error
}

type Options struct {
	UserID        string
	SampleRate    int
	ChunkDuration time.Duration
	// StopTimeout bounds the wait for session-completed after ctx ends.
	StopTimeout time.Duration
	Out         io.Writer
}

func (o *Options) defaults() {
	if o.SampleRate <= 0 {
		o.SampleRate = audio.DefaultSampleRate
	}
	if o.ChunkDuration <= 0 {
		o.ChunkDuration = DefaultChunk
	}
	if o.StopTimeout <= 0 {
		o.StopTimeout = DefaultStopTimeout
	}
	if o.Out == nil {
		o.Out = io.Discard
	}
}

// chunkBytes is the PCM16 mono size of one chunk.
func (o Options) chunkBytes() int {
	return int(o.ChunkDuration.Seconds()*float64(o.SampleRate)) * 2
}

// Run streams src to the server until ctx is done, then stops the session
// and waits for the saved record.
func Run(ctx context.Context, c *Client, src Source, opts Options) (storage.Record, error) {
	opts.defaults()

	if err := c.Begin(opts.UserID, MIMEType); err != nil {
		return storage.Record{}, fmt.Errorf("start session: %w", err)
	}

	chunker := audio.NewChunker(opts.SampleRate, opts.chunkBytes(), c.Send)
	streamDone := make(chan error, 1)
	go func() { streamDone <- src.Stream(chunker) }()

	for {
		select {
		case <-ctx.Done():
			return stop(c, src, chunker, streamDone, opts)
		case err := <-streamDone:
			if err != nil {
				_ = src.Stop()
				return storage.Record{}, fmt.Errorf("audio stream: %w", err)
			}
			streamDone = nil
		case msg, ok := <-c.Events():
			if !ok {
				_ = src.Stop()
				return storage.Record{}, closedErr(c)
			}
			if rec, done, err := handle(opts.Out, msg, false); done {
				_ = src.Stop()
				return rec, err
			}
		}
	}
}

func stop(c *Client, src Source, chunker *audio.Chunker, streamDone <-chan error, opts Options) (storage.Record, error) {
	if err := src.Stop(); err != nil {
		slog.Warn("capture: stop source", "error", err)
	}
	if streamDone != nil {
		<-streamDone
	}
	if err := chunker.Flush(); err != nil {
		slog.Warn("capture: flush final chunk", "error", err)
	}
	if err := c.Stop(); err != nil {
		return storage.Record{}, fmt.Errorf("stop session: %w", err)
	}
	fmt.Fprintln(opts.Out, "Stopping, waiting for summary...")

	timeout := time.NewTimer(opts.StopTimeout)
	defer timeout.Stop()
	for {
		select {
		case <-timeout.C:
			return storage.Record{}, fmt.Errorf("no session-completed within %s", opts.StopTimeout)
		case msg, ok := <-c.Events():
			if !ok {
				return storage.Record{}, closedErr(c)
			}
			if rec, done, err := handle(opts.Out, msg, true); done {
				return rec, err
			}
		}
	}
}

// handle prints msg and reports whether it ends the session. Errors only
// end it once stop-session has been sent.
func handle(out io.Writer, msg Message, stopping bool) (storage.Record, bool, error) {
	switch msg.Type {
	case server.EventStatus:
		var status string
		_ = json.Unmarshal(msg.Data, &status)
		fmt.Fprintf(out, "[%s]\n", status)
	case server.EventTranscriptUpdate:
		var update session.TranscriptUpdate
		if err := json.Unmarshal(msg.Data, &update); err != nil {
			slog.Warn("capture: malformed transcript update", "error", err)
			return storage.Record{}, false, nil
		}
		if update.Text != "" {
			fmt.Fprintln(out, update.Text)
		} else {
			fmt.Fprintln(out, update.FullTranscript)
		}
	case server.EventSessionCompleted:
		var rec storage.Record
		if err := json.Unmarshal(msg.Data, &rec); err != nil {
			return storage.Record{}, true, fmt.Errorf("decode record: %w", err)
		}
		return rec, true, nil
	case server.EventError:
		var text string
		_ = json.Unmarshal(msg.Data, &text)
		if !stopping {
			fmt.Fprintf(out, "error: %s\n", text)
			return storage.Record{}, false, nil
		}
		return storage.Record{}, true, fmt.Errorf("server error: %s", text)
	}
	return storage.Record{}, false, nil
}

func closedErr(c *Client) error {
	if err := c.Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionClosed, err)
	}
	return ErrConnectionClosed
}
