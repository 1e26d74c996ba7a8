package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sjawhar/live-scribe/internal/storage"
	"github.com/sjawhar/live-scribe/internal/summary"
	"github.com/sjawhar/live-scribe/internal/transcribe"
)

const (
	StatusRecording  = "recording"
	StatusProcessing = "processing"

	NoSpeechMessage   = "Error: No speech detected."
	SaveFailedMessage = "Failed to save session"

	DefaultMIMEType     = "audio/webm"
	DefaultDrainTimeout = 10 * time.Second

	// Transcripts shorter than this are reported as containing no speech.
	minSpeechLength = 5
	contextSegments = 2
	titleLayout     = "1/2/2006, 3:04:05 PM"
)

type state int

const (
	stateRecording state = iota
	// Finalizing: no new chunks accepted, in-flight results still land.
	stateFinalizing
	// Sealed: the transcript has been read for persistence.
	stateSealed
	// Closed: the connection ended the session.
	stateClosed
)

// Session is the in-progress recording state of one connection.
type Session struct {
	id        string
	conn      string
	userID    string
	mimeType  string
	startedAt time.Time
	pending   *inflight

	mu         sync.Mutex
	state      state
	transcript *Transcript
	idle       *Detector
}

func (s *Session) logAttrs() []any {
	return []any{"conn", s.conn, "user", s.userID, "session", s.id}
}

type Option func(*Manager)

func WithArchive(a Archive) Option { return func(m *Manager) { m.archive = a } }
func WithNotes(n Notes) Option     { return func(m *Manager) { m.notes = n } }

func WithExporter(e Exporter) Option { return func(m *Manager) { m.exporter = e } }

func WithDrainTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.drainTimeout = d
		}
	}
}

// WithIdleTimeout finalizes sessions that receive no chunk for d. Zero
// disables the watchdog.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Manager) { m.idleTimeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager owns the registry of active sessions keyed by connection id.
type Manager struct {
	transcriber Transcriber
	summarizer  Summarizer
	store       Store
	emitter     Emitter
	archive     Archive
	notes       Notes
	exporter    Exporter

	drainTimeout time.Duration
	idleTimeout  time.Duration
	now          func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
	closing  bool

	// wg counts transcriptions, finalizes and publishes. Add is only called
	// under a lock that Shutdown takes before Wait.
	wg sync.WaitGroup
}

func NewManager(transcriber Transcriber, summarizer Summarizer, store Store, emitter Emitter, opts ...Option) *Manager {
	m := &Manager{
		transcriber:  transcriber,
		summarizer:   summarizer,
		store:        store,
		emitter:      emitter,
		drainTimeout: DefaultDrainTimeout,
		now:          time.Now,
		sessions:     make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Begin starts a fresh session for conn, replacing any previous one.
func (m *Manager) Begin(conn, userID, mimeType string) {
	if mimeType == "" {
		mimeType = DefaultMIMEType
	}

	s := &Session{
		id:         uuid.NewString(),
		conn:       conn,
		userID:     userID,
		mimeType:   mimeType,
		startedAt:  m.now(),
		pending:    newInflight(),
		transcript: NewTranscript(),
	}
	if m.idleTimeout > 0 {
		s.idle = NewDetector(m.idleTimeout, func() { m.finalizeIdle(s) })
	}

	if m.archive != nil {
		if err := m.archive.Start(s.id, mimeType); err != nil {
			slog.Warn("session: audio archive unavailable", append(s.logAttrs(), "error", err)...)
		}
	}

	m.mu.Lock()
	if m.closing {
		m.mu.Unlock()
		slog.Warn("session: shutting down, refusing new session", s.logAttrs()...)
		if m.archive != nil {
			_ = m.archive.Discard(s.id)
		}
		return
	}
	prev := m.sessions[conn]
	m.sessions[conn] = s
	m.mu.Unlock()

	if prev != nil {
		m.close(prev)
	}

	slog.Info("session: started", append(s.logAttrs(), "mime", mimeType)...)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.idle != nil {
		s.idle.Touch()
	}
	m.emitter.SendStatus(conn, StatusRecording)
}

// Ingest schedules transcription of one chunk. It never waits for the
// transcription itself.
func (m *Manager) Ingest(conn string, chunk []byte) {
	s := m.lookup(conn)
	if s == nil {
		return
	}

	s.mu.Lock()
	if s.state != stateRecording {
		s.mu.Unlock()
		slog.Debug("session: dropping chunk after stop", s.logAttrs()...)
		return
	}
	prior := s.transcript.Context(contextSegments)
	s.pending.Add()
	m.wg.Add(1)
	if s.idle != nil {
		s.idle.Touch()
	}
	if m.archive != nil {
		if err := m.archive.Write(s.id, chunk); err != nil {
			slog.Warn("session: archive write failed", append(s.logAttrs(), "error", err)...)
		}
	}
	s.mu.Unlock()

	slog.Debug("session: chunk received", append(s.logAttrs(), "bytes", len(chunk))...)

	go func() {
		defer m.wg.Done()
		defer s.pending.Done()

		res := m.transcriber.Transcribe(context.Background(), transcribe.Chunk{Audio: chunk, MIMEType: s.mimeType}, prior)
		m.complete(s, res)
	}()
}

func (m *Manager) complete(s *Session, res transcribe.Result) {
	switch res.Status {
	case transcribe.StatusFailed:
		slog.Warn("session: chunk transcription failed, dropping chunk", append(s.logAttrs(), "error", res.Err)...)
		return
	case transcribe.StatusEmpty:
		slog.Debug("session: empty transcription", s.logAttrs()...)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateSealed || s.state == stateClosed {
		slog.Warn("session: discarding late transcription", append(s.logAttrs(), "text", res.Text)...)
		return
	}

	s.transcript.Append(res.Text)
	slog.Info("session: transcribed", append(s.logAttrs(), "text", res.Text)...)
	m.emitter.SendTranscript(s.conn, TranscriptUpdate{Text: res.Text, FullTranscript: s.transcript.Text()})
}

// Finalize drains, summarizes and persists the session for conn. On a
// store failure the session stays registered and can be finalized again.
func (m *Manager) Finalize(ctx context.Context, conn string) error {
	s := m.lookup(conn)
	if s == nil {
		return ErrNoActiveSession
	}
	if !m.track() {
		return ErrShuttingDown
	}
	defer m.wg.Done()
	return m.finalize(ctx, s)
}

// FinalizeAsync runs Finalize in the background. Shutdown waits for it.
func (m *Manager) FinalizeAsync(conn string) {
	s := m.lookup(conn)
	if s == nil {
		slog.Debug("session: stop without active session", "conn", conn)
		return
	}
	if !m.track() {
		return
	}
	go func() {
		defer m.wg.Done()
		if err := m.finalize(context.Background(), s); err != nil {
			slog.Debug("session: finalize ended early", append(s.logAttrs(), "result", err)...)
		}
	}()
}

func (m *Manager) finalizeIdle(s *Session) {
	if !m.track() {
		return
	}
	defer m.wg.Done()

	slog.Info("session: idle timeout, finalizing", s.logAttrs()...)
	if err := m.finalize(context.Background(), s); err != nil {
		slog.Warn("session: idle finalize failed", append(s.logAttrs(), "error", err)...)
	}
}

// track registers background work unless Shutdown has started.
func (m *Manager) track() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closing {
		return false
	}
	m.wg.Add(1)
	return true
}

func (m *Manager) finalize(ctx context.Context, s *Session) error {
	s.mu.Lock()
	if s.state != stateRecording {
		s.mu.Unlock()
		return ErrFinalizing
	}
	s.state = stateFinalizing
	if s.idle != nil {
		s.idle.Pause()
	}
	m.emitter.SendStatus(s.conn, StatusProcessing)
	s.mu.Unlock()

	drainCtx, cancel := context.WithTimeout(ctx, m.drainTimeout)
	err := s.pending.Wait(drainCtx)
	cancel()
	if err != nil {
		slog.Warn("session: drain timed out, late results will be discarded",
			append(s.logAttrs(), "pending", s.pending.Count())...)
	}

	s.mu.Lock()
	if s.state == stateClosed {
		s.mu.Unlock()
		return m.abandon(s)
	}
	s.state = stateSealed
	transcript := s.transcript.Text()
	if len(transcript) < minSpeechLength {
		slog.Warn("session: transcript empty or too short", append(s.logAttrs(), "length", len(transcript))...)
		m.emitter.SendTranscript(s.conn, TranscriptUpdate{FullTranscript: NoSpeechMessage})
	}
	s.mu.Unlock()

	now := m.now()
	duration := int(now.Sub(s.startedAt) / time.Second)
	if duration < 0 {
		duration = 0
	}

	sum := m.summarizer.Summarize(ctx, summary.InputFor(transcript))
	if sum.Status == summary.StatusFailed {
		slog.Warn("session: summary failed", append(s.logAttrs(), "error", sum.Err)...)
	}

	if m.closed(s) {
		return m.abandon(s)
	}

	rec, err := m.store.Create(s.userID, transcript, sum.Text, duration, "Meeting on "+now.Format(titleLayout))
	if err != nil {
		slog.Error("session: save failed", append(s.logAttrs(), "error", err)...)
		m.restore(s)
		return fmt.Errorf("save session: %w", err)
	}

	rec.AudioPath = m.promoteAudio(s, rec.ID)

	s.mu.Lock()
	m.emitter.SendCompleted(s.conn, rec)
	if s.idle != nil {
		s.idle.Stop()
	}
	s.mu.Unlock()

	m.mu.Lock()
	if m.sessions[s.conn] == s {
		delete(m.sessions, s.conn)
	}
	m.mu.Unlock()

	slog.Info("session: completed", append(s.logAttrs(), "record", rec.ID, "duration", duration, "summary", sum.Status.String())...)

	m.publish(rec)
	return nil
}

func (m *Manager) closed(s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == stateClosed
}

// abandon drops the spool of a session that was closed mid-finalize. Nothing
// is persisted once the connection has gone.
func (m *Manager) abandon(s *Session) error {
	slog.Info("session: closed during finalize, discarding", s.logAttrs()...)
	if m.archive != nil {
		if err := m.archive.Discard(s.id); err != nil {
			slog.Warn("session: archive discard failed", append(s.logAttrs(), "error", err)...)
		}
	}
	return ErrSessionClosed
}

// restore returns a session whose save failed to the recording state.
func (m *Manager) restore(s *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == stateClosed {
		if m.archive != nil {
			_ = m.archive.Discard(s.id)
		}
		return
	}
	s.state = stateRecording
	if s.idle != nil {
		s.idle.Touch()
	}
	m.emitter.SendError(s.conn, SaveFailedMessage)
}

func (m *Manager) promoteAudio(s *Session, recordID string) string {
	if m.archive == nil {
		return ""
	}
	path, err := m.archive.Promote(s.id, recordID)
	if err != nil {
		slog.Warn("session: archive promote failed", append(s.logAttrs(), "error", err)...)
		return ""
	}
	if path == "" {
		return ""
	}
	if err := m.store.SetAudioPath(recordID, path); err != nil {
		slog.Warn("session: recording audio path failed", append(s.logAttrs(), "error", err)...)
		return ""
	}
	return path
}

// publish runs inside a tracked finalize, so wg is already non-zero.
func (m *Manager) publish(rec storage.Record) {
	if m.notes == nil {
		return
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()

		path, err := m.notes.Append(rec)
		if err != nil {
			slog.Warn("session: notes append failed", "record", rec.ID, "error", err)
			return
		}
		if m.exporter == nil {
			return
		}
		if err := m.exporter.Sync(path, rec.CreatedAt.Local().Format("2006-01-02")); err != nil {
			slog.Warn("session: notes export failed", "record", rec.ID, "error", err)
		}
	}()
}

// End drops the session for conn without persisting anything.
func (m *Manager) End(conn string) {
	m.mu.Lock()
	s := m.sessions[conn]
	delete(m.sessions, conn)
	m.mu.Unlock()

	if s != nil {
		slog.Info("session: abandoned", s.logAttrs()...)
		m.close(s)
	}
}

func (m *Manager) close(s *Session) {
	s.mu.Lock()
	prev := s.state
	s.state = stateClosed
	if s.idle != nil {
		s.idle.Stop()
	}
	s.mu.Unlock()

	// A running finalize owns the spool and decides its fate.
	if prev == stateRecording && m.archive != nil {
		if err := m.archive.Discard(s.id); err != nil {
			slog.Warn("session: archive discard failed", append(s.logAttrs(), "error", err)...)
		}
	}
}

func (m *Manager) lookup(conn string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[conn]
}

// Active reports whether conn has a registered session.
func (m *Manager) Active(conn string) bool {
	return m.lookup(conn) != nil
}

// Inflight returns the number of outstanding transcription calls for conn.
func (m *Manager) Inflight(conn string) int {
	s := m.lookup(conn)
	if s == nil {
		return 0
	}
	return s.pending.Count()
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown abandons all sessions, including finalizes that have not saved
// yet, refuses new work and waits for what is already running.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.closing = true
	sessions := make([]*Session, 0, len(m.sessions))
	for conn, s := range m.sessions {
		sessions = append(sessions, s)
		delete(m.sessions, conn)
	}
	m.mu.Unlock()

	for _, s := range sessions {
		m.close(s)
	}

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
