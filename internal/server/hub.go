package server

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/sjawhar/live-scribe/internal/session"
	"github.com/sjawhar/live-scribe/internal/storage"
)

// Hub routes outbound events to individual connections.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan []byte
}

func NewHub() *Hub {
	return &Hub{clients: make(map[string]chan []byte)}
}

func (h *Hub) Register(conn string) chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[conn] = ch
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unregister(conn string) {
	h.mu.Lock()
	ch, ok := h.clients[conn]
	delete(h.clients, conn)
	h.mu.Unlock()
	if ok {
		close(ch)
	}
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Send queues msg for conn. Messages for unknown connections or full
// queues are dropped.
func (h *Hub) Send(conn string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ch, ok := h.clients[conn]
	if !ok {
		return
	}
	select {
	case ch <- msg:
	default:
		slog.Warn("hub: outbound queue full, dropping event", "conn", conn)
	}
}

func (h *Hub) SendStatus(conn, status string) {
	h.sendEvent(conn, EventStatus, status)
}

func (h *Hub) SendTranscript(conn string, update session.TranscriptUpdate) {
	h.sendEvent(conn, EventTranscriptUpdate, update)
}

func (h *Hub) SendCompleted(conn string, rec storage.Record) {
	h.sendEvent(conn, EventSessionCompleted, rec)
}

func (h *Hub) SendError(conn, message string) {
	h.sendEvent(conn, EventError, message)
}

func (h *Hub) sendEvent(conn, eventType string, data any) {
	payload, err := json.Marshal(newEvent(eventType, time.Now().UTC(), data))
	if err != nil {
		slog.Error("hub: event marshal failed", "type", eventType, "error", err)
		return
	}
	h.Send(conn, payload)
}
