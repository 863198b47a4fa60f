package storage

import (
	"context"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/jobrunner/osmclip/internal/ports/output"
)

// AzureSink implements output.FileSink for Azure Blob Storage.
type AzureSink struct {
	client    *azblob.Client
	container string
	prefix    string
}

// AzureConfig holds Azure Blob Storage configuration.
type AzureConfig struct {
	Container        string
	AccountName      string
	AccountKey       string
	ConnectionString string
	Prefix           string
}

// NewAzureSink creates a new Azure Blob Storage sink.
func NewAzureSink(cfg AzureConfig) (*AzureSink, error) {
	var client *azblob.Client

	if cfg.ConnectionString != "" {
		c, err := azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
		if err != nil {
			return nil, err
		}
		client = c
	} else {
		url := "https://" + cfg.AccountName + ".blob.core.windows.net/"
		cred, err := azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err != nil {
			return nil, err
		}
		client, err = azblob.NewClientWithSharedKeyCredential(url, cred, nil)
		if err != nil {
			return nil, err
		}
	}

	return &AzureSink{
		client:    client,
		container: cfg.Container,
		prefix:    cfg.Prefix,
	}, nil
}

// Save uploads the file as a block blob and returns its URL.
func (s *AzureSink) Save(ctx context.Context, file output.ExportFile) (string, error) {
	name := joinKey(s.prefix, file.Name)
	contentType := file.ContentType

	_, err := s.client.UploadBuffer(ctx, s.container, name, file.Data, &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSuffix(s.client.URL(), "/") + "/" + s.container + "/" + name, nil
}
