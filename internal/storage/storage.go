package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"crmgate/internal/config"
	"crmgate/internal/ingest"
)

// Client is the S3-compatible ingest.Uploader used in production.
type Client struct {
	mc     *minio.Client
	bucket string
}

// NewClient connects to the configured S3-compatible endpoint.
func NewClient(cfg *config.Config) (*Client, error) {
	mc, err := minio.New(cfg.StorageEndpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.StorageAccessKey, cfg.StorageSecretKey, ""),
		Secure: cfg.StorageUseSSL,
	})
	if err != nil {
		return nil, err
	}
	return &Client{mc: mc, bucket: cfg.StorageBucket}, nil
}

// Upload streams the content to blob storage under a timestamp-prefixed,
// sanitized key. The millisecond timestamp prefix keeps concurrent
// uploads of identically named files from colliding; existing objects
// are never overwritten in practice.
func (c *Client) Upload(ctx context.Context, filename, contentType string, r io.Reader) (ingest.UploadedObject, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	path := fmt.Sprintf("incoming/%d_%s", time.Now().UnixMilli(), ingest.SanitizeFilename(filename))

	info, err := c.mc.PutObject(ctx, c.bucket, path, r, -1, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return ingest.UploadedObject{}, err
	}

	return ingest.UploadedObject{Path: path, Size: info.Size}, nil
}

// Disabled stands in for Client when no storage endpoint is
// configured. Payloads with file parts are rejected; text and JSON
// ingestion is unaffected.
type Disabled struct{}

func (Disabled) Upload(context.Context, string, string, io.Reader) (ingest.UploadedObject, error) {
	return ingest.UploadedObject{}, errors.New("storage not configured")
}
