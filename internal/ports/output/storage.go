// Package output defines the secondary/driven ports of the application.
package output

import (
	"context"

	"github.com/jobrunner/geefetch/internal/domain"
)

// FileStore defines the secondary port for hierarchical file storage.
// A nil parent or folder means the store root.
type FileStore interface {
	// CreateFolder creates a folder and returns it.
	CreateFolder(ctx context.Context, title string, parent *domain.StorageItem) (domain.StorageItem, error)

	// ListFolder returns the direct children of a folder.
	ListFolder(ctx context.Context, folder *domain.StorageItem) ([]domain.StorageItem, error)

	// Search returns every item whose name contains the substring.
	Search(ctx context.Context, substring string) ([]domain.StorageItem, error)

	// SearchInFolder returns the children of a folder whose name contains the substring.
	SearchInFolder(ctx context.Context, folder *domain.StorageItem, substring string) ([]domain.StorageItem, error)

	// Download writes the content of an item to a local path.
	Download(ctx context.Context, item domain.StorageItem, localPath string) error

	// Upload stores a local file under the given title.
	Upload(ctx context.Context, localPath, title string, parent *domain.StorageItem) (domain.StorageItem, error)

	// Delete removes an item.
	Delete(ctx context.Context, item domain.StorageItem) error

	// ListTrash returns the items in the trash.
	ListTrash(ctx context.Context) ([]domain.StorageItem, error)

	// EmptyTrash permanently removes the items in the trash.
	EmptyTrash(ctx context.Context) error
}

// StorageType represents the type of storage backend.
type StorageType string

const (
	StorageTypeDrive StorageType = "drive"
	StorageTypeGCS   StorageType = "gcs"
	StorageTypeS3    StorageType = "s3"
	StorageTypeAzure StorageType = "azure"
	StorageTypeBlob  StorageType = "blob"
	StorageTypeLocal StorageType = "local"
)
