package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var extensions = map[string]string{
	"audio/webm":  ".webm",
	"audio/ogg":   ".ogg",
	"audio/wav":   ".wav",
	"audio/x-wav": ".wav",
	"audio/wave":  ".wav",
	"audio/mp4":   ".m4a",
	"audio/mpeg":  ".mp3",
	"audio/flac":  ".flac",
}

// Extension maps a recorder MIME type (parameters such as ";codecs=opus"
// are ignored) to a file extension, defaulting to .webm.
func Extension(mimeType string) string {
	base, _, _ := strings.Cut(mimeType, ";")
	if ext, ok := extensions[strings.ToLower(strings.TrimSpace(base))]; ok {
		return ext
	}
	return ".webm"
}

type archiveFile struct {
	file *os.File
	path string
	ext  string

	// Set when the stream is a sequence of WAV chunks; those are stored as
	// one WAV with a single header patched on promote.
	wav      *wavFormat
	pcmBytes int
}

// Archive spools the raw chunks of in-progress sessions to disk, one file
// per key. A zero-value dir disables archival and every method is a no-op.
type Archive struct {
	dir string

	mu    sync.Mutex
	files map[string]*archiveFile
}

func NewArchive(dir string) *Archive {
	return &Archive{dir: dir, files: make(map[string]*archiveFile)}
}

func (a *Archive) Enabled() bool {
	return a != nil && a.dir != ""
}

func (a *Archive) Dir() string {
	if a == nil {
		return ""
	}
	return a.dir
}

// Start opens a fresh spool file for key, discarding any previous one.
func (a *Archive) Start(key, mimeType string) error {
	if !a.Enabled() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	if prev, ok := a.files[key]; ok {
		_ = prev.file.Close()
		_ = os.Remove(prev.path)
		delete(a.files, key)
	}

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return fmt.Errorf("create audio directory: %w", err)
	}

	ext := Extension(mimeType)
	path := filepath.Join(a.dir, key+ext+".part")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open audio spool: %w", err)
	}

	a.files[key] = &archiveFile{file: f, path: path, ext: ext}
	return nil
}

func (a *Archive) Write(key string, chunk []byte) error {
	if !a.Enabled() {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	af, ok := a.files[key]
	if !ok {
		return nil
	}

	data := chunk
	if af.ext == ".wav" {
		if format, ok := parseWAVHeader(chunk); ok {
			if af.wav == nil {
				af.wav = &format
			} else {
				data = chunk[wavHeaderSize:]
			}
			af.pcmBytes += len(chunk) - wavHeaderSize
		} else if af.wav != nil {
			af.pcmBytes += len(chunk)
		}
	}

	if _, err := af.file.Write(data); err != nil {
		return fmt.Errorf("write audio chunk: %w", err)
	}
	return nil
}

// Promote closes the spool for key and renames it to <id><ext>. It returns
// an empty path when nothing was spooled.
func (a *Archive) Promote(key, id string) (string, error) {
	if !a.Enabled() {
		return "", nil
	}
	a.mu.Lock()
	af, ok := a.files[key]
	delete(a.files, key)
	a.mu.Unlock()
	if !ok {
		return "", nil
	}

	if af.wav != nil {
		if err := patchWAVHeader(af.file, af.pcmBytes, *af.wav); err != nil {
			_ = af.file.Close()
			return "", err
		}
	}

	info, statErr := af.file.Stat()
	if err := af.file.Close(); err != nil {
		return "", fmt.Errorf("close audio spool: %w", err)
	}
	if statErr == nil && info.Size() == 0 {
		_ = os.Remove(af.path)
		return "", nil
	}

	final := filepath.Join(a.dir, id+af.ext)
	if err := os.Rename(af.path, final); err != nil {
		return "", fmt.Errorf("promote audio spool: %w", err)
	}
	return final, nil
}

// Discard drops the spool for key.
func (a *Archive) Discard(key string) error {
	if !a.Enabled() {
		return nil
	}
	a.mu.Lock()
	af, ok := a.files[key]
	delete(a.files, key)
	a.mu.Unlock()
	if !ok {
		return nil
	}

	closeErr := af.file.Close()
	if err := os.Remove(af.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove audio spool: %w", err)
	}
	return closeErr
}

// Open returns a reader for an archived file, refusing paths outside dir.
func (a *Archive) Open(path string) (*os.File, error) {
	if !a.Enabled() || path == "" {
		return nil, os.ErrNotExist
	}
	rel, err := filepath.Rel(a.dir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, os.ErrNotExist
	}
	return os.Open(path)
}

func patchWAVHeader(f io.WriterAt, pcmBytes int, format wavFormat) error {
	header, err := wavHeader(pcmBytes, format.sampleRate, format.channels, format.bitDepth)
	if err != nil {
		return fmt.Errorf("build wav header: %w", err)
	}
	if _, err := f.WriteAt(header, 0); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	return nil
}
