// Package storage provides file store adapters over object storage.
package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// trashPrefix holds items moved out of the way; object stores have no real trash.
const trashPrefix = ".trash/"

// object is one entry of a flat object listing.
type object struct {
	Key  string
	Size int64
}

// objectAPI is the flat key/value surface every backend provides.
type objectAPI interface {
	list(ctx context.Context, prefix string) ([]object, error)
	download(ctx context.Context, key string, w io.Writer) error
	upload(ctx context.Context, key string, r io.Reader, size int64) error
	remove(ctx context.Context, key string) error
}

// ObjectStore implements output.FileStore over a flat object namespace.
// Folders are key prefixes; item ids are keys relative to the store prefix.
type ObjectStore struct {
	api    objectAPI
	kind   output.StorageType
	prefix string
	logger *slog.Logger
}

// Ensure ObjectStore implements the file store port.
var _ output.FileStore = (*ObjectStore)(nil)

func newObjectStore(api objectAPI, kind output.StorageType, prefix string, logger *slog.Logger) *ObjectStore {
	return &ObjectStore{
		api:    api,
		kind:   kind,
		prefix: strings.Trim(prefix, "/"),
		logger: logger,
	}
}

// Type returns the backend type.
func (s *ObjectStore) Type() output.StorageType {
	return s.kind
}

func (s *ObjectStore) fullKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return s.prefix + "/" + key
}

func (s *ObjectStore) relKey(key string) string {
	if s.prefix == "" {
		return key
	}
	return strings.TrimPrefix(strings.TrimPrefix(key, s.prefix), "/")
}

func folderKey(folder *domain.StorageItem) string {
	if folder == nil || folder.ID == "" {
		return ""
	}
	return strings.TrimSuffix(folder.ID, "/") + "/"
}

// listRel returns the objects under a relative prefix, keys made relative.
func (s *ObjectStore) listRel(ctx context.Context, op, prefix string) ([]object, error) {
	objects, err := s.api.list(ctx, s.fullKey(prefix))
	if err != nil {
		return nil, &domain.StorageError{Operation: op, Key: prefix, Err: err}
	}
	for i := range objects {
		objects[i].Key = s.relKey(objects[i].Key)
	}
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, nil
}

func fileItem(o object) domain.StorageItem {
	return domain.StorageItem{ID: o.Key, Title: path.Base(o.Key), Size: o.Size}
}

func inTrash(key string) bool {
	return strings.HasPrefix(key, trashPrefix)
}

// CreateFolder implements output.FileStore. No object is written; the
// folder exists once something is uploaded into it.
func (s *ObjectStore) CreateFolder(_ context.Context, title string, parent *domain.StorageItem) (domain.StorageItem, error) {
	title = strings.Trim(title, "/")
	if title == "" {
		return domain.StorageItem{}, &domain.StorageError{Operation: "create_folder", Err: domain.ErrInvalidInput}
	}
	return domain.StorageItem{ID: folderKey(parent) + title, Title: title, Folder: true}, nil
}

// ListFolder implements output.FileStore.
func (s *ObjectStore) ListFolder(ctx context.Context, folder *domain.StorageItem) ([]domain.StorageItem, error) {
	prefix := folderKey(folder)
	objects, err := s.listRel(ctx, "list", prefix)
	if err != nil {
		return nil, err
	}

	var items []domain.StorageItem
	seen := make(map[string]bool)
	for _, o := range objects {
		if inTrash(o.Key) {
			continue
		}
		rest := strings.TrimPrefix(o.Key, prefix)
		if dir, _, nested := strings.Cut(rest, "/"); nested {
			if !seen[dir] {
				seen[dir] = true
				items = append(items, domain.StorageItem{ID: prefix + dir, Title: dir, Folder: true})
			}
			continue
		}
		items = append(items, fileItem(o))
	}
	return items, nil
}

// Search implements output.FileStore. The substring is matched against the
// whole relative key, so folder names match too.
func (s *ObjectStore) Search(ctx context.Context, substring string) ([]domain.StorageItem, error) {
	objects, err := s.listRel(ctx, "search", "")
	if err != nil {
		return nil, err
	}

	var items []domain.StorageItem
	for _, o := range objects {
		if !inTrash(o.Key) && strings.Contains(o.Key, substring) {
			items = append(items, fileItem(o))
		}
	}
	return items, nil
}

// SearchInFolder implements output.FileStore.
func (s *ObjectStore) SearchInFolder(ctx context.Context, folder *domain.StorageItem, substring string) ([]domain.StorageItem, error) {
	objects, err := s.listRel(ctx, "search", folderKey(folder))
	if err != nil {
		return nil, err
	}

	var items []domain.StorageItem
	for _, o := range objects {
		if !inTrash(o.Key) && strings.Contains(path.Base(o.Key), substring) {
			items = append(items, fileItem(o))
		}
	}
	return items, nil
}

// Download implements output.FileStore.
func (s *ObjectStore) Download(ctx context.Context, item domain.StorageItem, localPath string) error {
	if item.Folder {
		return &domain.StorageError{Operation: "download", Key: item.ID, Err: domain.ErrUnsupported}
	}

	// Create destination directory
	if err := os.MkdirAll(filepath.Dir(localPath), 0750); err != nil {
		return &domain.StorageError{Operation: "download", Key: item.ID, Err: err}
	}

	f, err := os.Create(localPath) //#nosec G304 -- localPath is a controlled local path
	if err != nil {
		return &domain.StorageError{Operation: "download", Key: item.ID, Err: err}
	}

	err = s.api.download(ctx, s.fullKey(item.ID), f)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return &domain.StorageError{Operation: "download", Key: item.ID, Err: err}
	}

	s.logger.Debug("downloaded object", "store", s.kind, "key", item.ID, "path", localPath)
	return nil
}

// Upload implements output.FileStore.
func (s *ObjectStore) Upload(ctx context.Context, localPath, title string, parent *domain.StorageItem) (domain.StorageItem, error) {
	key := folderKey(parent) + strings.Trim(title, "/")

	f, err := os.Open(filepath.Clean(localPath))
	if err != nil {
		return domain.StorageItem{}, &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return domain.StorageItem{}, &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}

	if err := s.api.upload(ctx, s.fullKey(key), f, info.Size()); err != nil {
		return domain.StorageItem{}, &domain.StorageError{Operation: "upload", Key: key, Err: err}
	}

	s.logger.Debug("uploaded object", "store", s.kind, "key", key, "size", info.Size())
	return fileItem(object{Key: key, Size: info.Size()}), nil
}

// Delete implements output.FileStore. Objects are removed permanently; a
// folder is removed with everything under it.
func (s *ObjectStore) Delete(ctx context.Context, item domain.StorageItem) error {
	if item.ID == "" {
		return &domain.StorageError{Operation: "delete", Key: item.Title, Err: domain.ErrInvalidInput}
	}
	if !item.Folder {
		if err := s.api.remove(ctx, s.fullKey(item.ID)); err != nil {
			return &domain.StorageError{Operation: "delete", Key: item.ID, Err: err}
		}
		return nil
	}
	return s.removeAll(ctx, "delete", folderKey(&item))
}

// ListTrash implements output.FileStore.
func (s *ObjectStore) ListTrash(ctx context.Context) ([]domain.StorageItem, error) {
	objects, err := s.listRel(ctx, "list_trash", trashPrefix)
	if err != nil {
		return nil, err
	}
	items := make([]domain.StorageItem, 0, len(objects))
	for _, o := range objects {
		items = append(items, fileItem(o))
	}
	return items, nil
}

// EmptyTrash implements output.FileStore.
func (s *ObjectStore) EmptyTrash(ctx context.Context) error {
	return s.removeAll(ctx, "empty_trash", trashPrefix)
}

func (s *ObjectStore) removeAll(ctx context.Context, op, prefix string) error {
	objects, err := s.listRel(ctx, op, prefix)
	if err != nil {
		return err
	}

	var errs []error
	for _, o := range objects {
		if err := s.api.remove(ctx, s.fullKey(o.Key)); err != nil {
			errs = append(errs, &domain.StorageError{Operation: op, Key: o.Key, Err: err})
		}
	}
	return errors.Join(errs...)
}
