package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/sjawhar/live-scribe/internal/storage"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const defaultHistoryLimit = 10

type RecordStore interface {
	ListRecent(userID string, limit int) ([]storage.Record, error)
	Get(id string) (storage.Record, error)
	UpdateTitle(id, title string) (storage.Record, error)
}

// AudioFile is what an AudioOpener hands back for range serving.
type AudioFile interface {
	io.ReadSeekCloser
	Stat() (os.FileInfo, error)
}

type Options struct {
	HistoryLimit   int
	Warnings       func() []string
	ActiveSessions func() int
	OpenAudio      func(path string) (AudioFile, error)
}

type titleRequest struct {
	Title string `json:"title"`
}

func registerAPIRoutes(mux *http.ServeMux, store RecordStore, opts Options) {
	historyLimit := opts.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		userID := r.URL.Query().Get("userId")
		if userID == "" {
			writeJSONError(w, http.StatusBadRequest, "userId is required")
			return
		}

		limit := historyLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
				return
			}
			limit = n
		}

		records, err := store.ListRecent(userID, limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}
		if records == nil {
			records = []storage.Record{}
		}
		writeJSON(w, http.StatusOK, records)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validSessionID(id) {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		rec, err := store.Get(id)
		if err != nil {
			writeStoreError(w, "get session", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	mux.HandleFunc("PATCH /api/sessions/{id}/title", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validSessionID(id) {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}

		var req titleRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		title := strings.TrimSpace(req.Title)
		if title == "" {
			writeJSONError(w, http.StatusBadRequest, "title must not be empty")
			return
		}

		rec, err := store.UpdateTitle(id, title)
		if err != nil {
			writeStoreError(w, "update title", err)
			return
		}
		writeJSON(w, http.StatusOK, rec)
	})

	mux.HandleFunc("GET /api/sessions/{id}/audio", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !validSessionID(id) {
			writeJSONError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		if opts.OpenAudio == nil {
			writeJSONError(w, http.StatusNotFound, "audio not available")
			return
		}

		rec, err := store.Get(id)
		if err != nil {
			writeStoreError(w, "get session", err)
			return
		}
		if rec.AudioPath == "" {
			writeJSONError(w, http.StatusNotFound, "audio not available")
			return
		}

		f, err := opts.OpenAudio(rec.AudioPath)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "audio file not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat audio: %v", err))
			return
		}

		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.Header().Set("Content-Type", contentTypeForAudio(rec.AudioPath))
		http.ServeContent(w, r, filepath.Base(rec.AudioPath), info.ModTime(), f)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		active := 0
		if opts.ActiveSessions != nil {
			active = opts.ActiveSessions()
		}
		var warnings []string
		if opts.Warnings != nil {
			warnings = opts.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"activeSessions": active, "warnings": warnings})
	})
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func contentTypeForAudio(path string) string {
	switch filepath.Ext(path) {
	case ".wav":
		return "audio/wav"
	case ".webm":
		return "audio/webm"
	case ".ogg":
		return "audio/ogg"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a", ".mp4":
		return "audio/mp4"
	default:
		return "application/octet-stream"
	}
}

func writeStoreError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		writeJSONError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("%s: %v", op, err))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
