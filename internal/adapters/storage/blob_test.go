package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"gocloud.dev/blob/memblob"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

func newMemStore(t *testing.T, prefix string, files map[string]string) *ObjectStore {
	t.Helper()

	bucket := memblob.OpenBucket(nil)
	ctx := context.Background()
	for key, content := range files {
		if err := bucket.WriteAll(ctx, key, []byte(content), nil); err != nil {
			t.Fatalf("WriteAll(%s) error = %v", key, err)
		}
	}

	store := newBucketStore(bucket, output.StorageTypeBlob, prefix, testLogger())
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestObjectStore_Prefix(t *testing.T) {
	store := newMemStore(t, "exports/", map[string]string{
		"exports/GEE/NDVI_2023-06-01_2023-06-30.tif":   "a",
		"exports/GEE/NDVI_2023-06-01_2023-06-30_1.tif": "b",
		"other/GEE/NDVI_2023-06-01_2023-06-30.tif":     "c",
	})
	ctx := context.Background()

	items, err := store.Search(ctx, "NDVI_2023-06-01_2023-06-30")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("Search() = %+v, want 2", items)
	}
	if items[0].ID != "GEE/NDVI_2023-06-01_2023-06-30.tif" {
		t.Errorf("ID = %q, want key relative to the prefix", items[0].ID)
	}

	matching := 0
	for _, item := range items {
		if item.MatchesJob("NDVI_2023-06-01_2023-06-30") {
			matching++
		}
	}
	if matching != 1 {
		t.Errorf("items matching the job = %d, want 1", matching)
	}
}

func TestObjectStore_TrashAndFolders(t *testing.T) {
	store := newMemStore(t, "", map[string]string{
		"GEE/a.tif":      "a",
		"GEE/b.tif":      "b",
		".trash/old.tif": "old",
		"readme.txt":     "hi",
	})
	ctx := context.Background()

	trash, err := store.ListTrash(ctx)
	if err != nil || len(trash) != 1 || trash[0].Title != "old.tif" {
		t.Fatalf("ListTrash() = %+v, %v", trash, err)
	}

	all, err := store.Search(ctx, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("Search(\"\") = %+v, trash should be hidden", all)
	}

	if err := store.EmptyTrash(ctx); err != nil {
		t.Fatalf("EmptyTrash() error = %v", err)
	}
	if trash, _ := store.ListTrash(ctx); len(trash) != 0 {
		t.Errorf("ListTrash() after empty = %+v", trash)
	}

	root, err := store.ListFolder(ctx, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(root) != 2 {
		t.Fatalf("ListFolder(root) = %+v", root)
	}

	folder := domain.StorageItem{ID: "GEE", Title: "GEE", Folder: true}
	if err := store.Delete(ctx, folder); err != nil {
		t.Fatalf("Delete(folder) error = %v", err)
	}
	if left, _ := store.Search(ctx, "GEE"); len(left) != 0 {
		t.Errorf("folder contents left: %+v", left)
	}
}

func TestObjectStore_RoundTrip(t *testing.T) {
	store := newMemStore(t, "archive", nil)
	ctx := context.Background()

	src := filepath.Join(t.TempDir(), "NBR.tif")
	if err := os.WriteFile(src, []byte("raster"), 0600); err != nil {
		t.Fatal(err)
	}

	folder, _ := store.CreateFolder(ctx, "geefetch", nil)
	item, err := store.Upload(ctx, src, "NBR.tif", &folder)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}

	dest := filepath.Join(t.TempDir(), "copy.tif")
	if err := store.Download(ctx, item, dest); err != nil {
		t.Fatalf("Download() error = %v", err)
	}
	if data, _ := os.ReadFile(dest); string(data) != "raster" {
		t.Errorf("content = %q", data)
	}

	if err := store.Download(ctx, domain.StorageItem{ID: "geefetch/none.tif"}, dest); err == nil {
		t.Error("Download() of a missing key should fail")
	}
}

func TestNewBlobStore(t *testing.T) {
	store, err := NewBlobStore(context.Background(), "mem://", "", testLogger())
	if err != nil {
		t.Fatalf("NewBlobStore() error = %v", err)
	}
	defer func() { _ = store.Close() }()

	if store.Type() != output.StorageTypeBlob {
		t.Errorf("Type() = %v", store.Type())
	}

	if _, err := NewBlobStore(context.Background(), "unknown://bucket", "", testLogger()); err == nil {
		t.Error("NewBlobStore() with an unknown scheme should fail")
	}
}
