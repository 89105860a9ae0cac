package storage

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"

	"github.com/jobrunner/geefetch/internal/domain"
	"github.com/jobrunner/geefetch/internal/ports/output"
)

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
}

// azureAPI implements objectAPI for Azure Blob Storage.
type azureAPI struct {
	client    *azblob.Client
	container string
}

// NewAzureStore creates a file store on an Azure Blob Storage container.
func NewAzureStore(cfg AzureConfig, logger *slog.Logger) (*ObjectStore, error) {
	var client *azblob.Client

	if cfg.ConnectionString != "" {
		c, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, fmt.Errorf("creating azure client: %w", err)
		}
		client = c
	} else {
		url := "https://" + cfg.AccountName + ".blob.core.windows.net/"
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, fmt.Errorf("creating azure credential: %w", err)
		}
		client, err = azblob.NewClientWithSharedKeyCredential(url, cred, nil)
		if err != nil {
			return nil, fmt.Errorf("creating azure client: %w", err)
		}
	}

	api := &azureAPI{client: client, container: cfg.Container}
	return newObjectStore(api, output.StorageTypeAzure, cfg.Prefix, logger), nil
}

func (a *azureAPI) list(ctx context.Context, prefix string) ([]object, error) {
	var objects []object

	pager := a.client.NewListBlobsFlatPager(a.container, &azblob.ListBlobsFlatOptions{
		Prefix: &prefix,
	})

	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}

		for _, blob := range page.Segment.BlobItems {
			if blob.Name == nil {
				continue
			}
			obj := object{Key: *blob.Name}
			if blob.Properties != nil && blob.Properties.ContentLength != nil {
				obj.Size = *blob.Properties.ContentLength
			}
			objects = append(objects, obj)
		}
	}

	return objects, nil
}

func (a *azureAPI) download(ctx context.Context, key string, w io.Writer) error {
	resp, err := a.client.DownloadStream(ctx, a.container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return fmt.Errorf("%s: %w", key, domain.ErrNotFound)
		}
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	_, err = io.Copy(w, resp.Body)
	return err
}

func (a *azureAPI) upload(ctx context.Context, key string, r io.Reader, _ int64) error {
	_, err := a.client.UploadStream(ctx, a.container, key, r, nil)
	return err
}

func (a *azureAPI) remove(ctx context.Context, key string) error {
	_, err := a.client.DeleteBlob(ctx, a.container, key, nil)
	if bloberror.HasCode(err, bloberror.BlobNotFound) {
		return fmt.Errorf("%s: %w", key, domain.ErrNotFound)
	}
	return err
}
