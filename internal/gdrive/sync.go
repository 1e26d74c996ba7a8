package gdrive

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	docMIMEType = "application/vnd.google-apps.document"
	namePrefix  = "live-scribe-"
)

// Syncer mirrors the daily notes files into a Drive folder as Google Docs,
// one document per day.
type Syncer struct {
	service  *drive.Service
	folderID string

	mu      sync.Mutex
	fileIDs map[string]string
}

func NewSyncer(ctx context.Context, credPath, folderID string) (*Syncer, error) {
	creds, err := os.ReadFile(credPath)
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	config, err := google.CredentialsFromJSONWithTypeAndParams(ctx, creds, google.ServiceAccount, google.CredentialsParams{Scopes: []string{drive.DriveFileScope}})
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	return NewSyncerWithOptions(ctx, folderID, option.WithCredentials(config))
}

// NewSyncerWithOptions builds a Syncer from raw client options, e.g. a
// custom endpoint.
func NewSyncerWithOptions(ctx context.Context, folderID string, opts ...option.ClientOption) (*Syncer, error) {
	svc, err := drive.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create drive service: %w", err)
	}
	return &Syncer{service: svc, folderID: folderID, fileIDs: make(map[string]string)}, nil
}

// DocName is the Drive document name for a day's notes.
func DocName(date string) string {
	return namePrefix + date
}

// Sync uploads localPath as the document for date, replacing its content
// when the document already exists.
func (s *Syncer) Sync(localPath, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", localPath, err)
	}
	defer func() { _ = f.Close() }()

	fileID, err := s.lookup(date)
	if err != nil {
		return err
	}

	if fileID != "" {
		if _, err := s.service.Files.Update(fileID, &drive.File{}).Media(f).Do(); err != nil {
			return fmt.Errorf("drive update: %w", err)
		}
		slog.Debug("gdrive: updated notes", "date", date, "file", fileID)
		return nil
	}

	doc, err := s.service.Files.Create(&drive.File{
		Name:     DocName(date),
		MimeType: docMIMEType,
		Parents:  []string{s.folderID},
	}).Media(f).Fields("id").Do()
	if err != nil {
		return fmt.Errorf("drive create: %w", err)
	}

	s.fileIDs[date] = doc.Id
	slog.Info("gdrive: created notes document", "date", date, "file", doc.Id)
	return nil
}

// lookup finds the document for date, first in the cache and then in the
// folder, so restarts reuse existing documents.
func (s *Syncer) lookup(date string) (string, error) {
	if id, ok := s.fileIDs[date]; ok {
		return id, nil
	}

	q := fmt.Sprintf("name = '%s' and '%s' in parents and trashed = false",
		escapeQuery(DocName(date)), escapeQuery(s.folderID))
	list, err := s.service.Files.List().Q(q).Fields("files(id)").PageSize(1).Do()
	if err != nil {
		return "", fmt.Errorf("drive list: %w", err)
	}
	if len(list.Files) == 0 {
		return "", nil
	}

	s.fileIDs[date] = list.Files[0].Id
	return list.Files[0].Id, nil
}

func escapeQuery(s string) string {
	return strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(s)
}
