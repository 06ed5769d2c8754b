// Package azureuploader implements the BlobUploader abstraction and its
// Azure Blob Storage-backed implementation, as specified in section 6 of
// the design specification. It also implements the auth bootstrap ladder:
// DefaultAzureCredential first, falling back to a connection string or
// account key, with container creation if missing.
package azureuploader

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azidentity"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/rs/zerolog"

	"github.com/gurre/nfs-ingestd/config"
)

// BlobUploader uploads local files to a durable object store. Implementations
// must be safe for concurrent use by multiple Workers.
type BlobUploader interface {
	Upload(ctx context.Context, localPath, blobName string) error
	Close() error
}

// Client is the Azure Blob Storage-backed BlobUploader.
type Client struct {
	containerClient *container.Client
	credential      azcore.TokenCredential
	maxConcurrency  int
	maxBlockSize    int64
	log             zerolog.Logger
}

// Compile-time interface check to ensure Client satisfies BlobUploader.
var _ BlobUploader = (*Client)(nil)

// New runs the auth bootstrap ladder described in section 6: it tries
// DefaultAzureCredential first, validates (or creates) the target container,
// and falls back to a connection string or account key if that fails. It
// returns an error wrapping the innermost cause on total failure; callers
// (cmd/ingestd) treat this as fatal at startup.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Client, error) {
	cred, err := azidentity.NewDefaultAzureCredential(nil)
	if err == nil {
		svcClient, err := azblob.NewClient(cfg.AzureAccountURL, cred, nil)
		if err == nil {
			cc := svcClient.ServiceClient().NewContainerClient(cfg.AzureContainer)
			if err := ensureContainer(ctx, cc, log); err == nil {
				log.Info().Str("container", cfg.AzureContainer).Msg("azure container validated")
				return &Client{containerClient: cc, credential: cred, maxConcurrency: cfg.AzureMaxConcurrency, maxBlockSize: cfg.AzureMaxBlockSize, log: log}, nil
			}
			log.Warn().Msg("default azure credential failed container validation, attempting fallback auth")
		}
	} else {
		log.Warn().Err(err).Msg("default azure credential unavailable, attempting fallback auth")
	}

	return newFallback(ctx, cfg, log)
}

func newFallback(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Client, error) {
	var svcClient *azblob.Client
	var err error

	switch {
	case cfg.AzureConnectionString != "":
		svcClient, err = azblob.NewClientFromConnectionString(cfg.AzureConnectionString, nil)
	case cfg.AzureAccountName != "" && cfg.AzureAccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AzureAccountName, cfg.AzureAccountKey)
		if err == nil {
			svcClient, err = azblob.NewClientWithSharedKeyCredential(cfg.AzureAccountURL, cred, nil)
		}
	default:
		return nil, errors.New("no viable azure credentials configured")
	}
	if err != nil {
		return nil, fmt.Errorf("fallback auth failed: %w", err)
	}

	cc := svcClient.ServiceClient().NewContainerClient(cfg.AzureContainer)
	if err := ensureContainer(ctx, cc, log); err != nil {
		return nil, fmt.Errorf("cannot validate or create container %q with fallback auth: %w", cfg.AzureContainer, err)
	}

	log.Info().Msg("azure client initialized with fallback credentials")
	return &Client{containerClient: cc, maxConcurrency: cfg.AzureMaxConcurrency, maxBlockSize: cfg.AzureMaxBlockSize, log: log}, nil
}

func ensureContainer(ctx context.Context, cc *container.Client, log zerolog.Logger) error {
	if _, err := cc.GetProperties(ctx, nil); err == nil {
		return nil
	}
	if _, err := cc.Create(ctx, nil); err != nil {
		return fmt.Errorf("creating container: %w", err)
	}
	log.Info().Msg("created azure container")
	return nil
}

// Upload uploads the file at localPath as a block blob named blobName,
// overwriting any existing blob of the same name.
func (c *Client) Upload(ctx context.Context, localPath, blobName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("opening %s for upload: %w", localPath, err)
	}
	defer f.Close()

	opts := &blockblob.UploadFileOptions{
		Concurrency: uint16(c.maxConcurrency),
	}
	if c.maxBlockSize > 0 {
		opts.BlockSize = c.maxBlockSize
	}

	blobClient := c.containerClient.NewBlockBlobClient(blobName)
	_, err = blobClient.UploadFile(ctx, f, opts)
	if err != nil {
		return fmt.Errorf("uploading blob %s: %w", blobName, err)
	}
	return nil
}

// Close satisfies BlobUploader. It holds nothing to release: it does not
// touch the credential or the container client and always returns nil.
func (c *Client) Close() error {
	return nil
}
