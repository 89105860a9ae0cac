package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gocloud.dev/blob"
	"gocloud.dev/blob/gcsblob"
	"gocloud.dev/gcerrors"
	"gocloud.dev/gcp"
	"golang.org/x/oauth2"

	// Drivers opened by URL.
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// blobAPI implements objectAPI on a Go CDK bucket.
type blobAPI struct {
	bucket *blob.Bucket
}

// NewBlobStore opens a file store from a bucket URL such as mem://,
// file:///var/data or gs://bucket.
func NewBlobStore(ctx context.Context, bucketURL, prefix string, logger *slog.Logger) (*ObjectStore, error) {
	bucket, err := blob.OpenBucket(ctx, bucketURL)
	if err != nil {
		return nil, fmt.Errorf("opening bucket %s: %w", bucketURL, err)
	}
	return newObjectStore(&blobAPI{bucket: bucket}, output.StorageTypeBlob, prefix, logger), nil
}

// NewGCSStore opens a Google Cloud Storage bucket with the given OAuth2
// token source, usually the service account of the Earth Engine client.
func NewGCSStore(ctx context.Context, bucketName, prefix string, ts oauth2.TokenSource, logger *slog.Logger) (*ObjectStore, error) {
	client, err := gcp.NewHTTPClient(gcp.DefaultTransport(), ts)
	if err != nil {
		return nil, fmt.Errorf("creating gcs client: %w", err)
	}

	bucket, err := gcsblob.OpenBucket(ctx, client, bucketName, nil)
	if err != nil {
		return nil, fmt.Errorf("opening gcs bucket %s: %w", bucketName, err)
	}
	return newObjectStore(&blobAPI{bucket: bucket}, output.StorageTypeGCS, prefix, logger), nil
}

// newBucketStore wraps an already opened bucket.
func newBucketStore(bucket *blob.Bucket, kind output.StorageType, prefix string, logger *slog.Logger) *ObjectStore {
	return newObjectStore(&blobAPI{bucket: bucket}, kind, prefix, logger)
}

// Close releases the bucket of a Go CDK backed store.
func (s *ObjectStore) Close() error {
	if b, ok := s.api.(*blobAPI); ok {
		return b.bucket.Close()
	}
	return nil
}

func (a *blobAPI) list(ctx context.Context, prefix string) ([]object, error) {
	var objects []object

	iter := a.bucket.List(&blob.ListOptions{Prefix: prefix})
	for {
		obj, err := iter.Next(ctx)
		if errors.Is(err, io.EOF) {
			return objects, nil
		}
		if err != nil {
			return nil, err
		}
		if obj.IsDir {
			continue
		}
		objects = append(objects, object{Key: obj.Key, Size: obj.Size})
	}
}

func (a *blobAPI) download(ctx context.Context, key string, w io.Writer) error {
	r, err := a.bucket.NewReader(ctx, key, nil)
	if err != nil {
		return notFound(key, err)
	}
	defer func() { _ = r.Close() }()

	_, err = io.Copy(w, r)
	return err
}

func (a *blobAPI) upload(ctx context.Context, key string, r io.Reader, _ int64) error {
	w, err := a.bucket.NewWriter(ctx, key, nil)
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (a *blobAPI) remove(ctx context.Context, key string) error {
	return notFound(key, a.bucket.Delete(ctx, key))
}

func notFound(key string, err error) error {
	if err != nil && gcerrors.Code(err) == gcerrors.NotFound {
		return fmt.Errorf("%s: %w: %w", key, domain.ErrNotFound, err)
	}
	return err
}
