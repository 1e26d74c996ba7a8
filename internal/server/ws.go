package server

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// maxFrameSize bounds a single inbound frame (one audio chunk).
const maxFrameSize = 100 << 20

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type SessionManager interface {
	Begin(conn, userID, mimeType string)
	Ingest(conn string, chunk []byte)
	FinalizeAsync(conn string)
	End(conn string)
}

func registerWSRoute(mux *http.ServeMux, hub *Hub, sessions SessionManager) {
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			slog.Warn("ws: upgrade failed", "error", err)
			return
		}
		conn.SetReadLimit(maxFrameSize)

		connID := uuid.NewString()
		out := hub.Register(connID)
		slog.Info("ws: client connected", "conn", connID, "remote", r.RemoteAddr)

		writerDone := make(chan struct{})
		go func() {
			defer close(writerDone)
			for msg := range out {
				if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
					slog.Debug("ws: write failed", "conn", connID, "error", err)
					_ = conn.Close()
					for range out {
					}
					return
				}
			}
		}()

		defer func() {
			sessions.End(connID)
			hub.Unregister(connID)
			<-writerDone
			_ = conn.Close()
			slog.Info("ws: client disconnected", "conn", connID)
		}()

		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			switch msgType {
			case websocket.BinaryMessage:
				sessions.Ingest(connID, data)
			case websocket.TextMessage:
				handleTextFrame(hub, sessions, connID, data)
			}
		}
	})
}

func handleTextFrame(hub *Hub, sessions SessionManager, connID string, data []byte) {
	var in InboundEvent
	if err := json.Unmarshal(data, &in); err != nil {
		hub.SendError(connID, "malformed event")
		return
	}

	switch in.Type {
	case EventStartSession:
		var start StartSessionData
		if len(in.Data) > 0 {
			if err := json.Unmarshal(in.Data, &start); err != nil {
				hub.SendError(connID, "malformed start-session payload")
				return
			}
		}
		sessions.Begin(connID, start.UserID, start.MIMEType)

	case EventAudioData:
		var encoded string
		if err := json.Unmarshal(in.Data, &encoded); err != nil {
			hub.SendError(connID, "audio-data text frames must carry base64")
			return
		}
		chunk, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			hub.SendError(connID, "audio-data text frames must carry base64")
			return
		}
		sessions.Ingest(connID, chunk)

	case EventStopSession:
		sessions.FinalizeAsync(connID)

	default:
		slog.Warn("ws: unknown event", "conn", connID, "type", in.Type)
	}
}
