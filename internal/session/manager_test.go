package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/sjawhar/live-scribe/internal/audio"
	"github.com/sjawhar/live-scribe/internal/storage"
	"github.com/sjawhar/live-scribe/internal/summary"
	"github.com/sjawhar/live-scribe/internal/transcribe"
)

const waitTimeout = 2 * time.Second

type event struct {
	conn    string
	kind    string
	status  string
	update  TranscriptUpdate
	record  storage.Record
	message string
}

type emitterMock struct {
	mu     sync.Mutex
	events []event
	notify chan event
}

func newEmitterMock() *emitterMock {
	return &emitterMock{notify: make(chan event, 256)}
}

func (e *emitterMock) add(ev event) {
	e.mu.Lock()
	e.events = append(e.events, ev)
	e.mu.Unlock()
	e.notify <- ev
}

func (e *emitterMock) SendStatus(conn, status string) {
	e.add(event{conn: conn, kind: "status", status: status})
}

func (e *emitterMock) SendTranscript(conn string, update TranscriptUpdate) {
	e.add(event{conn: conn, kind: "transcript-update", update: update})
}

func (e *emitterMock) SendCompleted(conn string, rec storage.Record) {
	e.add(event{conn: conn, kind: "session-completed", record: rec})
}

func (e *emitterMock) SendError(conn, message string) {
	e.add(event{conn: conn, kind: "error", message: message})
}

func (e *emitterMock) snapshot() []event {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]event(nil), e.events...)
}

func (e *emitterMock) count(kind string) int {
	n := 0
	for _, ev := range e.snapshot() {
		if ev.kind == kind {
			n++
		}
	}
	return n
}

func (e *emitterMock) waitFor(t *testing.T, kind string) event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-e.notify:
			if ev.kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event, got %+v", kind, e.snapshot())
			return event{}
		}
	}
}

type pendingCall struct {
	audio string
	prior string
	reply chan transcribe.Result
}

func (c pendingCall) succeed(text string) {
	c.reply <- transcribe.Result{Status: transcribe.StatusSuccess, Text: text}
}

// transcriberMock hands every call to the test, which decides when and how
// it completes.
type transcriberMock struct {
	calls chan pendingCall
}

func newTranscriberMock() *transcriberMock {
	return &transcriberMock{calls: make(chan pendingCall, 32)}
}

func (m *transcriberMock) Transcribe(_ context.Context, chunk transcribe.Chunk, prior string) transcribe.Result {
	c := pendingCall{audio: string(chunk.Audio), prior: prior, reply: make(chan transcribe.Result, 1)}
	m.calls <- c
	return <-c.reply
}

func (m *transcriberMock) next(t *testing.T) pendingCall {
	t.Helper()
	select {
	case c := <-m.calls:
		return c
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for transcription call")
		return pendingCall{}
	}
}

func (m *transcriberMock) expectNoCall(t *testing.T) {
	t.Helper()
	select {
	case c := <-m.calls:
		t.Fatalf("unexpected transcription call for %q", c.audio)
	case <-time.After(30 * time.Millisecond):
	}
}

// scriptedBackend resolves chunks by content.
type scriptedBackend map[string]string

func (b scriptedBackend) Recognize(_ context.Context, chunk transcribe.Chunk, _ string) (string, error) {
	text, ok := b[string(chunk.Audio)]
	if !ok {
		return "", fmt.Errorf("unexpected chunk %q", chunk.Audio)
	}
	return text, nil
}

type summarizerMock struct {
	mu     sync.Mutex
	inputs []string
	fail   bool
	// during runs inside Summarize, outside the mock's lock.
	during func()
}

func (s *summarizerMock) Summarize(_ context.Context, input string) summary.Result {
	if s.during != nil {
		s.during()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.inputs = append(s.inputs, input)
	if s.fail {
		return summary.Result{Status: summary.StatusFailed, Text: summary.FailurePlaceholder, Err: errors.New("boom")}
	}
	status := summary.StatusGenerated
	if input == summary.ShortMeetingPlaceholder {
		status = summary.StatusPlaceholder
	}
	return summary.Result{Status: status, Text: "## Summary\n- " + input}
}

func (s *summarizerMock) calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.inputs...)
}

type storeMock struct {
	mu      sync.Mutex
	records []storage.Record
	audio   map[string]string
	err     error
}

func newStoreMock() *storeMock {
	return &storeMock{audio: map[string]string{}}
}

func (s *storeMock) Create(userID, transcript, summary string, duration int, title string) (storage.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return storage.Record{}, s.err
	}
	rec := storage.Record{
		ID:         fmt.Sprintf("rec-%d", len(s.records)+1),
		UserID:     userID,
		Transcript: transcript,
		Summary:    summary,
		Duration:   duration,
		Title:      title,
		CreatedAt:  time.Now().UTC(),
	}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *storeMock) SetAudioPath(id, audioPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audio[id] = audioPath
	return nil
}

func (s *storeMock) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *storeMock) saved() []storage.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]storage.Record(nil), s.records...)
}

type clockMock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clockMock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clockMock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	manager     *Manager
	transcriber *transcriberMock
	summarizer  *summarizerMock
	store       *storeMock
	emitter     *emitterMock
	clock       *clockMock
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		transcriber: newTranscriberMock(),
		summarizer:  &summarizerMock{},
		store:       newStoreMock(),
		emitter:     newEmitterMock(),
		clock:       &clockMock{now: time.Date(2026, 2, 26, 10, 0, 0, 0, time.Local)},
	}
	opts = append([]Option{WithClock(f.clock.Now)}, opts...)
	f.manager = NewManager(f.transcriber, f.summarizer, f.store, f.emitter, opts...)
	return f
}

func waitIdle(t *testing.T, m *Manager, conn string) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for m.Inflight(conn) != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for in-flight transcriptions on %s", conn)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestEndToEndTranscribeAndFinalize(t *testing.T) {
	emitter := newEmitterMock()
	store := newStoreMock()
	summarizer := &summarizerMock{}
	backend := scriptedBackend{"A": "hello", "B": "Thank you", "C": "world"}
	transcriber := transcribe.New(backend, []string{"I'm getting into it", "Thank you", "Amara.org", "subtitle"}, 0)
	m := NewManager(transcriber, summarizer, store, emitter)

	m.Begin("c1", "u1", "")
	if ev := emitter.waitFor(t, "status"); ev.status != StatusRecording {
		t.Fatalf("expected recording status, got %q", ev.status)
	}

	for _, chunk := range []string{"A", "B", "C"} {
		m.Ingest("c1", []byte(chunk))
		waitIdle(t, m, "c1")
	}

	if err := m.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	var updates []TranscriptUpdate
	for _, ev := range emitter.snapshot() {
		if ev.kind == "transcript-update" {
			updates = append(updates, ev.update)
		}
	}
	if len(updates) != 2 {
		t.Fatalf("expected 2 transcript updates (filtered chunk silent), got %+v", updates)
	}
	if updates[0].Text != "hello" || updates[0].FullTranscript != "hello" {
		t.Fatalf("unexpected first update %+v", updates[0])
	}
	if updates[1].Text != "world" || updates[1].FullTranscript != "hello world" {
		t.Fatalf("unexpected second update %+v", updates[1])
	}

	if got := summarizer.calls(); len(got) != 1 || got[0] != "hello world" {
		t.Fatalf("expected summarizer called with transcript, got %v", got)
	}
	if emitter.count("session-completed") != 1 {
		t.Fatalf("expected one session-completed event, got %d", emitter.count("session-completed"))
	}
	records := store.saved()
	if len(records) != 1 || records[0].Transcript != "hello world" || records[0].UserID != "u1" {
		t.Fatalf("unexpected persisted records %+v", records)
	}
	if m.Active("c1") || m.Count() != 0 {
		t.Fatal("expected registry empty after finalize")
	}
}

func TestFinalizeWithoutSpeech(t *testing.T) {
	f := newFixture(t)

	f.manager.Begin("c1", "u1", "")
	if err := f.manager.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	var kinds []string
	for _, ev := range f.emitter.snapshot() {
		kinds = append(kinds, ev.kind+":"+ev.status+ev.update.FullTranscript)
	}
	want := []string{"status:recording", "status:processing", "transcript-update:" + NoSpeechMessage, "session-completed:"}
	if strings.Join(kinds, "|") != strings.Join(want, "|") {
		t.Fatalf("expected events %v, got %v", want, kinds)
	}

	if got := f.summarizer.calls(); len(got) != 1 || got[0] != summary.ShortMeetingPlaceholder {
		t.Fatalf("expected short meeting placeholder summarized, got %v", got)
	}
	records := f.store.saved()
	if len(records) != 1 || records[0].Transcript != "" {
		t.Fatalf("expected record with empty transcript, got %+v", records)
	}
	if !strings.HasPrefix(records[0].Title, "Meeting on 2/26/2026, 10:00:00 AM") {
		t.Fatalf("unexpected default title %q", records[0].Title)
	}
}

func TestShortTranscriptUsesPlaceholderSummary(t *testing.T) {
	f := newFixture(t)

	f.manager.Begin("c1", "u1", "")
	f.manager.Ingest("c1", []byte("a"))
	f.transcriber.next(t).succeed("okay yes")
	waitIdle(t, f.manager, "c1")

	if err := f.manager.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if got := f.summarizer.calls(); len(got) != 1 || got[0] != summary.ShortMeetingPlaceholder {
		t.Fatalf("expected placeholder for transcript of length <= 10, got %v", got)
	}
	if f.emitter.count("transcript-update") != 1 {
		t.Fatal("expected no no-speech update for transcript of length >= 5")
	}
	if rec := f.store.saved()[0]; rec.Transcript != "okay yes" {
		t.Fatalf("expected real transcript persisted, got %q", rec.Transcript)
	}
}

func TestSummaryFailureUsesPlaceholder(t *testing.T) {
	f := newFixture(t)
	f.summarizer.fail = true

	f.manager.Begin("c1", "u1", "")
	if err := f.manager.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	if rec := f.store.saved()[0]; rec.Summary != summary.FailurePlaceholder {
		t.Fatalf("expected failure placeholder summary, got %q", rec.Summary)
	}
}

func TestContextIsLastTwoCompletedSegments(t *testing.T) {
	f := newFixture(t)
	f.manager.Begin("c1", "u1", "")

	for i, text := range []string{"one", "two", "three"} {
		f.manager.Ingest("c1", []byte(fmt.Sprintf("chunk-%d", i)))
		call := f.transcriber.next(t)
		switch i {
		case 0:
			if call.prior != "" {
				t.Fatalf("expected empty context for first chunk, got %q", call.prior)
			}
		case 1:
			if call.prior != "one" {
				t.Fatalf("expected context %q, got %q", "one", call.prior)
			}
		case 2:
			if call.prior != "one two" {
				t.Fatalf("expected context %q, got %q", "one two", call.prior)
			}
		}
		call.succeed(text)
		waitIdle(t, f.manager, "c1")
	}

	f.manager.Ingest("c1", []byte("chunk-3"))
	call := f.transcriber.next(t)
	if call.prior != "two three" {
		t.Fatalf("expected context of last two segments, got %q", call.prior)
	}
	call.succeed("four")
}

func TestCompletionOrderAppend(t *testing.T) {
	f := newFixture(t)
	f.manager.Begin("c1", "u1", "")

	f.manager.Ingest("c1", []byte("A"))
	callA := f.transcriber.next(t)
	f.manager.Ingest("c1", []byte("B"))
	callB := f.transcriber.next(t)
	if callB.prior != "" {
		t.Fatalf("expected B context empty while A pending, got %q", callB.prior)
	}

	callB.succeed("second")
	if ev := f.emitter.waitFor(t, "transcript-update"); ev.update.FullTranscript != "second" {
		t.Fatalf("expected B appended first, got %+v", ev.update)
	}

	f.manager.Ingest("c1", []byte("C"))
	callC := f.transcriber.next(t)
	if callC.prior != "second" {
		t.Fatalf("expected C context from completed segments only, got %q", callC.prior)
	}

	callA.succeed("first")
	if ev := f.emitter.waitFor(t, "transcript-update"); ev.update.FullTranscript != "second first" {
		t.Fatalf("expected completion order transcript, got %+v", ev.update)
	}
	callC.succeed("third")
	waitIdle(t, f.manager, "c1")

	if err := f.manager.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if rec := f.store.saved()[0]; rec.Transcript != "second first third" {
		t.Fatalf("expected completion-order transcript, got %q", rec.Transcript)
	}
}

func TestEmptyAndFailedResultsAreNotAppended(t *testing.T) {
	f := newFixture(t)
	f.manager.Begin("c1", "u1", "")

	f.manager.Ingest("c1", []byte("silence"))
	f.transcriber.next(t).reply <- transcribe.Result{Status: transcribe.StatusEmpty}
	f.manager.Ingest("c1", []byte("broken"))
	f.transcriber.next(t).reply <- transcribe.Result{Status: transcribe.StatusFailed, Err: errors.New("503")}
	waitIdle(t, f.manager, "c1")

	if f.emitter.count("transcript-update") != 0 || f.emitter.count("error") != 0 {
		t.Fatalf("expected no user-visible events, got %+v", f.emitter.snapshot())
	}

	f.manager.Ingest("c1", []byte("speech"))
	call := f.transcriber.next(t)
	if call.prior != "" {
		t.Fatalf("expected no context from dropped chunks, got %q", call.prior)
	}
	call.succeed("finally")
	waitIdle(t, f.manager, "c1")

	if !f.manager.Active("c1") {
		t.Fatal("expected session to keep accepting chunks after a failure")
	}
}

func TestFinalizeDrainsInflightTranscriptions(t *testing.T) {
	f := newFixture(t)
	f.manager.Begin("c1", "u1", "")

	f.manager.Ingest("c1", []byte("A"))
	call := f.transcriber.next(t)

	done := make(chan error, 1)
	go func() { done <- f.manager.Finalize(context.Background(), "c1") }()

	f.emitter.waitFor(t, "status")
	if ev := f.emitter.waitFor(t, "status"); ev.status != StatusProcessing {
		t.Fatalf("expected processing status, got %q", ev.status)
	}
	select {
	case err := <-done:
		t.Fatalf("finalize returned before in-flight call completed: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
	if len(f.store.saved()) != 0 {
		t.Fatal("expected nothing persisted before drain")
	}

	call.succeed("last words spoken")
	if err := <-done; err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if rec := f.store.saved()[0]; rec.Transcript != "last words spoken" {
		t.Fatalf("expected drained segment in transcript, got %q", rec.Transcript)
	}
}

func TestDrainTimeoutDiscardsLateResults(t *testing.T) {
	f := newFixture(t, WithDrainTimeout(20*time.Millisecond))
	f.manager.Begin("c1", "u1", "")

	f.manager.Ingest("c1", []byte("A"))
	call := f.transcriber.next(t)

	if err := f.manager.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if rec := f.store.saved()[0]; rec.Transcript != "" {
		t.Fatalf("expected empty transcript after drain timeout, got %q", rec.Transcript)
	}

	before := f.emitter.count("transcript-update")
	call.succeed("too late")
	if err := f.manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if f.emitter.count("transcript-update") != before {
		t.Fatal("expected late result to be discarded after the transcript was sealed")
	}
}

func TestChunksDuringFinalizeAreDropped(t *testing.T) {
	f := newFixture(t)
	f.manager.Begin("c1", "u1", "")

	f.manager.Ingest("c1", []byte("A"))
	call := f.transcriber.next(t)

	done := make(chan error, 1)
	go func() { done <- f.manager.Finalize(context.Background(), "c1") }()
	f.emitter.waitFor(t, "status")
	f.emitter.waitFor(t, "status")

	f.manager.Ingest("c1", []byte("B"))
	f.transcriber.expectNoCall(t)
	if got := f.manager.Inflight("c1"); got != 1 {
		t.Fatalf("expected only the original call in flight, got %d", got)
	}

	if err := f.manager.Finalize(context.Background(), "c1"); !errors.Is(err, ErrFinalizing) {
		t.Fatalf("expected second stop to be a no-op, got %v", err)
	}
	if got := f.emitter.count("status"); got != 2 {
		t.Fatalf("expected a single processing status, got %d status events", got)
	}

	call.succeed("hello there")
	if err := <-done; err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
}

func TestPersistenceFailureKeepsSessionRetryable(t *testing.T) {
	f := newFixture(t)
	f.store.setErr(errors.New("disk full"))

	f.manager.Begin("c1", "u1", "")
	f.manager.Ingest("c1", []byte("A"))
	f.transcriber.next(t).succeed("hello world again")
	waitIdle(t, f.manager, "c1")

	if err := f.manager.Finalize(context.Background(), "c1"); err == nil {
		t.Fatal("expected save error")
	}
	if ev := f.emitter.waitFor(t, "error"); ev.message != SaveFailedMessage {
		t.Fatalf("expected %q, got %q", SaveFailedMessage, ev.message)
	}
	if !f.manager.Active("c1") {
		t.Fatal("expected session kept after persistence failure")
	}
	if f.emitter.count("session-completed") != 0 {
		t.Fatal("expected no completion on failure")
	}

	f.manager.Ingest("c1", []byte("B"))
	call := f.transcriber.next(t)
	if call.prior != "hello world again" {
		t.Fatalf("expected transcript intact after failure, got context %q", call.prior)
	}
	call.succeed("and more")
	waitIdle(t, f.manager, "c1")

	f.store.setErr(nil)
	if err := f.manager.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("retry Finalize failed: %v", err)
	}
	if f.manager.Active("c1") {
		t.Fatal("expected session removed after successful retry")
	}
	records := f.store.saved()
	if len(records) != 1 || records[0].Transcript != "hello world again and more" {
		t.Fatalf("unexpected records after retry %+v", records)
	}
}

func TestDurationIsFlooredSeconds(t *testing.T) {
	f := newFixture(t)

	f.manager.Begin("c1", "u1", "")
	f.clock.Advance(2999 * time.Millisecond)
	if err := f.manager.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if d := f.store.saved()[0].Duration; d != 2 {
		t.Fatalf("expected duration 2, got %d", d)
	}

	f.manager.Begin("c2", "u1", "")
	f.clock.Advance(-5 * time.Second)
	if err := f.manager.Finalize(context.Background(), "c2"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if d := f.store.saved()[1].Duration; d != 0 {
		t.Fatalf("expected negative duration clamped to 0, got %d", d)
	}
}

func TestEndDiscardsSessionSilently(t *testing.T) {
	f := newFixture(t)
	f.manager.Begin("c1", "u1", "")
	f.manager.Ingest("c1", []byte("A"))
	call := f.transcriber.next(t)

	before := len(f.emitter.snapshot())
	f.manager.End("c1")
	if f.manager.Active("c1") {
		t.Fatal("expected session removed on disconnect")
	}

	call.succeed("orphaned words")
	if err := f.manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := len(f.emitter.snapshot()); got != before {
		t.Fatalf("expected no events after disconnect, got %d new", got-before)
	}
	if len(f.store.saved()) != 0 {
		t.Fatal("expected nothing persisted for abandoned session")
	}
	if err := f.manager.Finalize(context.Background(), "c1"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected stop after disconnect to be a no-op, got %v", err)
	}
}

func TestUnknownConnectionIsNoop(t *testing.T) {
	f := newFixture(t)

	f.manager.Ingest("ghost", []byte("A"))
	f.manager.End("ghost")
	if err := f.manager.Finalize(context.Background(), "ghost"); !errors.Is(err, ErrNoActiveSession) {
		t.Fatalf("expected ErrNoActiveSession, got %v", err)
	}

	f.transcriber.expectNoCall(t)
	if len(f.emitter.snapshot()) != 0 {
		t.Fatalf("expected no events, got %+v", f.emitter.snapshot())
	}
}

func TestBeginReplacesPreviousSession(t *testing.T) {
	f := newFixture(t)

	f.manager.Begin("c1", "u1", "")
	f.manager.Ingest("c1", []byte("A"))
	f.transcriber.next(t).succeed("from the old session")
	waitIdle(t, f.manager, "c1")

	f.manager.Begin("c1", "u2", "")
	if err := f.manager.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	rec := f.store.saved()[0]
	if rec.Transcript != "" || rec.UserID != "u2" {
		t.Fatalf("expected fresh session without carry-over, got %+v", rec)
	}
}

func TestSessionsProgressIndependently(t *testing.T) {
	f := newFixture(t)
	f.manager.Begin("slow", "u1", "")
	f.manager.Begin("fast", "u2", "")

	f.manager.Ingest("slow", []byte("S"))
	slow := f.transcriber.next(t)

	f.manager.Ingest("fast", []byte("F"))
	fast := f.transcriber.next(t)
	fast.succeed("quick reply here")
	waitIdle(t, f.manager, "fast")

	if err := f.manager.Finalize(context.Background(), "fast"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if !f.manager.Active("slow") || f.manager.Inflight("slow") != 1 {
		t.Fatal("expected slow session untouched")
	}

	slow.succeed("eventually")
	waitIdle(t, f.manager, "slow")
}

func TestAudioArchivedOnCompletion(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, WithArchive(audio.NewArchive(dir)))

	f.manager.Begin("c1", "u1", "audio/webm;codecs=opus")
	f.manager.Ingest("c1", []byte("abc"))
	f.transcriber.next(t).succeed("hello there friends")
	waitIdle(t, f.manager, "c1")

	if err := f.manager.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}

	ev := f.emitter.waitFor(t, "session-completed")
	want := filepath.Join(dir, ev.record.ID+".webm")
	if ev.record.AudioPath != want {
		t.Fatalf("expected audio path %q, got %q", want, ev.record.AudioPath)
	}
	if f.store.audio[ev.record.ID] != want {
		t.Fatalf("expected audio path stored, got %q", f.store.audio[ev.record.ID])
	}
	data, err := os.ReadFile(want)
	if err != nil || string(data) != "abc" {
		t.Fatalf("expected archived chunk, got %q %v", data, err)
	}
}

func TestAudioDiscardedOnDisconnect(t *testing.T) {
	dir := t.TempDir()
	f := newFixture(t, WithArchive(audio.NewArchive(dir)))

	f.manager.Begin("c1", "u1", "")
	f.manager.Ingest("c1", []byte("abc"))
	f.manager.End("c1")
	f.transcriber.next(t).succeed("ignored")
	_ = f.manager.Shutdown(context.Background())

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected spool removed on disconnect, got %d files", len(entries))
	}
}

type notesMock struct {
	mu      sync.Mutex
	records []storage.Record
}

func (n *notesMock) Append(rec storage.Record) (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.records = append(n.records, rec)
	return "/notes/" + rec.ID + ".md", nil
}

type exporterMock struct {
	mu    sync.Mutex
	paths []string
}

func (e *exporterMock) Sync(localPath, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.paths = append(e.paths, localPath)
	return nil
}

func TestCompletedRecordsArePublished(t *testing.T) {
	notes := &notesMock{}
	exporter := &exporterMock{}
	f := newFixture(t, WithNotes(notes), WithExporter(exporter))

	f.manager.Begin("c1", "u1", "")
	if err := f.manager.Finalize(context.Background(), "c1"); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if err := f.manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if len(notes.records) != 1 || notes.records[0].ID != "rec-1" {
		t.Fatalf("expected record appended to notes, got %+v", notes.records)
	}
	if len(exporter.paths) != 1 || exporter.paths[0] != "/notes/rec-1.md" {
		t.Fatalf("expected notes file exported, got %v", exporter.paths)
	}
}

func TestIdleTimeoutFinalizesSession(t *testing.T) {
	f := newFixture(t, WithIdleTimeout(30*time.Millisecond))

	f.manager.Begin("c1", "u1", "")
	f.manager.Ingest("c1", []byte("A"))
	f.transcriber.next(t).succeed("talking for a while")

	ev := f.emitter.waitFor(t, "session-completed")
	if ev.record.Transcript != "talking for a while" {
		t.Fatalf("unexpected auto-finalized record %+v", ev.record)
	}
	if f.manager.Active("c1") {
		t.Fatal("expected idle session removed")
	}
}

func TestDisconnectDuringDrainPersistsNothing(t *testing.T) {
	dir := t.TempDir()
	notes := &notesMock{}
	f := newFixture(t, WithArchive(audio.NewArchive(dir)), WithNotes(notes))

	f.manager.Begin("c1", "u1", "")
	f.manager.Ingest("c1", []byte("A"))
	f.transcriber.next(t).succeed("hello there everyone")
	waitIdle(t, f.manager, "c1")

	f.manager.Ingest("c1", []byte("B"))
	call := f.transcriber.next(t)

	done := make(chan error, 1)
	go func() { done <- f.manager.Finalize(context.Background(), "c1") }()
	f.emitter.waitFor(t, "status")
	if ev := f.emitter.waitFor(t, "status"); ev.status != StatusProcessing {
		t.Fatalf("expected processing status, got %q", ev.status)
	}

	f.manager.End("c1")
	call.succeed("drained words")

	if err := <-done; !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if err := f.manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if got := len(f.store.saved()); got != 0 {
		t.Fatalf("expected no record after disconnect, got %d", got)
	}
	if f.emitter.count("session-completed") != 0 {
		t.Fatal("expected no completion after disconnect")
	}
	if len(f.summarizer.calls()) != 0 {
		t.Fatal("expected no summary for a closed session")
	}
	if len(notes.records) != 0 {
		t.Fatalf("expected nothing published, got %+v", notes.records)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected spool removed, got %d files", len(entries))
	}
}

func TestDisconnectDuringSummaryPersistsNothing(t *testing.T) {
	f := newFixture(t)
	f.summarizer.during = func() { f.manager.End("c1") }

	f.manager.Begin("c1", "u1", "")
	f.manager.Ingest("c1", []byte("A"))
	f.transcriber.next(t).succeed("a long enough meeting")
	waitIdle(t, f.manager, "c1")

	if err := f.manager.Finalize(context.Background(), "c1"); !errors.Is(err, ErrSessionClosed) {
		t.Fatalf("expected ErrSessionClosed, got %v", err)
	}
	if got := len(f.store.saved()); got != 0 {
		t.Fatalf("expected no record, got %d", got)
	}
}

func TestShutdownWaitsForAsyncFinalize(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})
	f := newFixture(t)
	f.summarizer.during = func() {
		close(entered)
		<-release
	}

	f.manager.Begin("c1", "u1", "")
	f.manager.FinalizeAsync("c1")
	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("timed out waiting for finalize to reach the summary")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- f.manager.Shutdown(context.Background()) }()
	select {
	case err := <-stopped:
		t.Fatalf("Shutdown returned while finalize was running: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	close(release)
	if err := <-stopped; err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := len(f.store.saved()); got != 0 {
		t.Fatalf("expected shutdown to abandon the unsaved session, got %d records", got)
	}
}

func TestNoNewWorkAfterShutdown(t *testing.T) {
	f := newFixture(t)
	if err := f.manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	f.manager.Begin("c1", "u1", "")
	if f.manager.Active("c1") {
		t.Fatal("expected Begin to be refused after shutdown")
	}
	f.manager.Ingest("c1", []byte("A"))
	f.transcriber.expectNoCall(t)
	if len(f.emitter.snapshot()) != 0 {
		t.Fatalf("expected no events, got %+v", f.emitter.snapshot())
	}
}

func TestFinalizeAsyncCompletesSession(t *testing.T) {
	f := newFixture(t)
	f.manager.Begin("c1", "u1", "")
	f.manager.Ingest("c1", []byte("A"))
	f.transcriber.next(t).succeed("said something useful")
	waitIdle(t, f.manager, "c1")

	f.manager.FinalizeAsync("c1")
	ev := f.emitter.waitFor(t, "session-completed")
	if ev.record.Transcript != "said something useful" {
		t.Fatalf("unexpected record %+v", ev.record)
	}
	f.manager.FinalizeAsync("c1")
	if err := f.manager.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}
	if got := len(f.store.saved()); got != 1 {
		t.Fatalf("expected one record, got %d", got)
	}
}
