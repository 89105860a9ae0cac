// Package drive implements the file store on the Google Drive v3 API.
package drive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	drive "google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// DefaultBaseURL is the Google APIs endpoint.
const DefaultBaseURL = "https://www.googleapis.com"

const (
	folderMimeType = "application/vnd.google-apps.folder"
	fileFields     = googleapi.Field("id,name,mimeType,size")
	listFields     = googleapi.Field("nextPageToken,files(id,name,mimeType,size)")
	pageSize       = 1000
)

// Store is a Google Drive file store.
type Store struct {
	files  *drive.FilesService
	logger *slog.Logger
}

// Ensure Store implements the file store port.
var _ output.FileStore = (*Store)(nil)

// NewStore creates a new Drive store. httpClient must carry the OAuth2
// credentials; baseURL overrides the Google APIs host.
func NewStore(ctx context.Context, httpClient *http.Client, baseURL string, logger *slog.Logger) (*Store, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	svc, err := drive.NewService(ctx,
		option.WithHTTPClient(httpClient),
		option.WithEndpoint(strings.TrimRight(baseURL, "/")+"/drive/v3/"),
	)
	if err != nil {
		return nil, fmt.Errorf("creating drive client: %w", err)
	}

	return &Store{
		files:  svc.Files,
		logger: logger,
	}, nil
}

func item(f *drive.File) domain.StorageItem {
	return domain.StorageItem{
		ID:     f.Id,
		Title:  f.Name,
		Folder: f.MimeType == folderMimeType,
		Size:   f.Size,
	}
}

// quote escapes a literal for the Drive query language.
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, "'", `\'`) + "'"
}

func parentID(parent *domain.StorageItem) string {
	if parent == nil {
		return "root"
	}
	return parent.ID
}

// CreateFolder implements output.FileStore.
func (s *Store) CreateFolder(ctx context.Context, title string, parent *domain.StorageItem) (domain.StorageItem, error) {
	created, err := s.files.Create(&drive.File{
		Name:     title,
		MimeType: folderMimeType,
		Parents:  []string{parentID(parent)},
	}).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return domain.StorageItem{}, &domain.StorageError{Operation: "create_folder", Key: title, Err: remoteError(err)}
	}

	s.logger.Debug("created drive folder", "title", title, "id", created.Id)
	return item(created), nil
}

// ListFolder implements output.FileStore.
func (s *Store) ListFolder(ctx context.Context, folder *domain.StorageItem) ([]domain.StorageItem, error) {
	return s.list(ctx, "list", quote(parentID(folder))+" in parents and trashed=false")
}

// Search implements output.FileStore.
func (s *Store) Search(ctx context.Context, substring string) ([]domain.StorageItem, error) {
	return s.list(ctx, "search", "name contains "+quote(substring)+" and trashed=false")
}

// SearchInFolder implements output.FileStore.
func (s *Store) SearchInFolder(ctx context.Context, folder *domain.StorageItem, substring string) ([]domain.StorageItem, error) {
	q := "name contains " + quote(substring) + " and " + quote(parentID(folder)) + " in parents and trashed=false"
	return s.list(ctx, "search", q)
}

// ListTrash implements output.FileStore.
func (s *Store) ListTrash(ctx context.Context) ([]domain.StorageItem, error) {
	return s.list(ctx, "list_trash", "trashed=true")
}

func (s *Store) list(ctx context.Context, op, query string) ([]domain.StorageItem, error) {
	var items []domain.StorageItem

	err := s.files.List().Q(query).PageSize(pageSize).Fields(listFields).
		Pages(ctx, func(page *drive.FileList) error {
			for _, f := range page.Files {
				items = append(items, item(f))
			}
			return nil
		})
	if err != nil {
		return nil, &domain.StorageError{Operation: op, Key: query, Err: remoteError(err)}
	}
	return items, nil
}

// Download implements output.FileStore.
func (s *Store) Download(ctx context.Context, it domain.StorageItem, localPath string) error {
	if it.Folder {
		return &domain.StorageError{Operation: "download", Key: it.Title, Err: domain.ErrUnsupported}
	}

	resp, err := s.files.Get(it.ID).Context(ctx).Download()
	if err != nil {
		return &domain.StorageError{Operation: "download", Key: it.Title, Err: remoteError(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if err := os.MkdirAll(filepath.Dir(localPath), 0750); err != nil {
		return &domain.StorageError{Operation: "download", Key: it.Title, Err: err}
	}

	f, err := os.Create(localPath) //#nosec G304 -- localPath is the configured output directory
	if err != nil {
		return &domain.StorageError{Operation: "download", Key: it.Title, Err: err}
	}

	if _, err := io.Copy(f, resp.Body); err != nil {
		_ = f.Close()
		return &domain.StorageError{Operation: "download", Key: it.Title, Err: err}
	}
	if err := f.Close(); err != nil {
		return &domain.StorageError{Operation: "download", Key: it.Title, Err: err}
	}

	s.logger.Debug("downloaded drive file", "title", it.Title, "path", localPath)
	return nil
}

// Upload implements output.FileStore.
func (s *Store) Upload(ctx context.Context, localPath, title string, parent *domain.StorageItem) (domain.StorageItem, error) {
	f, err := os.Open(filepath.Clean(localPath))
	if err != nil {
		return domain.StorageItem{}, &domain.StorageError{Operation: "upload", Key: localPath, Err: err}
	}
	defer func() { _ = f.Close() }()

	created, err := s.files.Create(&drive.File{
		Name:    title,
		Parents: []string{parentID(parent)},
	}).Media(f, googleapi.ContentType("application/octet-stream")).Fields(fileFields).Context(ctx).Do()
	if err != nil {
		return domain.StorageItem{}, &domain.StorageError{Operation: "upload", Key: title, Err: remoteError(err)}
	}

	s.logger.Debug("uploaded drive file", "title", title, "id", created.Id)
	return item(created), nil
}

// Delete implements output.FileStore. The file is removed permanently,
// bypassing the trash.
func (s *Store) Delete(ctx context.Context, it domain.StorageItem) error {
	if err := s.files.Delete(it.ID).Context(ctx).Do(); err != nil {
		return &domain.StorageError{Operation: "delete", Key: it.Title, Err: remoteError(err)}
	}
	s.logger.Debug("deleted drive file", "title", it.Title, "id", it.ID)
	return nil
}

// EmptyTrash implements output.FileStore.
func (s *Store) EmptyTrash(ctx context.Context) error {
	if err := s.files.EmptyTrash().Context(ctx).Do(); err != nil {
		return &domain.StorageError{Operation: "empty_trash", Err: remoteError(err)}
	}
	return nil
}

// remoteError converts an API error into a *domain.RemoteError.
func remoteError(err error) error {
	var apiErr *googleapi.Error
	if !errors.As(err, &apiErr) {
		return err
	}
	msg := apiErr.Message
	if msg == "" {
		msg = strings.TrimSpace(apiErr.Body)
	}
	return &domain.RemoteError{Service: "drive", StatusCode: apiErr.Code, Message: msg}
}
