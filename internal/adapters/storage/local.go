package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// localAPI implements objectAPI on a local directory. Keys use forward slashes.
type localAPI struct {
	basePath string
}

// NewLocalStore creates a file store rooted at a local directory.
func NewLocalStore(basePath string, logger *slog.Logger) *ObjectStore {
	return newObjectStore(&localAPI{basePath: basePath}, output.StorageTypeLocal, "", logger)
}

func (a *localAPI) path(key string) string {
	return filepath.Join(a.basePath, filepath.FromSlash(key))
}

func (a *localAPI) list(_ context.Context, prefix string) ([]object, error) {
	var objects []object

	err := filepath.WalkDir(a.basePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && path == a.basePath {
				return fs.SkipAll
			}
			return err
		}

		if d.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(a.basePath, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(relPath)
		if len(key) < len(prefix) || key[:len(prefix)] != prefix {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		objects = append(objects, object{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return objects, nil
}

func (a *localAPI) download(_ context.Context, key string, w io.Writer) error {
	src, err := os.Open(a.path(key)) //#nosec G304 -- key comes from a listing of basePath
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%s: %w", key, domain.ErrNotFound)
		}
		return err
	}
	defer func() { _ = src.Close() }()

	_, err = io.Copy(w, src)
	return err
}

func (a *localAPI) upload(_ context.Context, key string, r io.Reader, _ int64) error {
	dest := a.path(key)
	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return err
	}

	dst, err := os.Create(dest) //#nosec G304 -- dest is a controlled local path
	if err != nil {
		return err
	}

	if _, err := io.Copy(dst, r); err != nil {
		_ = dst.Close()
		return err
	}
	return dst.Close()
}

func (a *localAPI) remove(_ context.Context, key string) error {
	err := os.Remove(a.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%s: %w", key, domain.ErrNotFound)
	}
	return err
}
