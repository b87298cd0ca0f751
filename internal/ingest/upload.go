package ingest

import (
	"context"
	"io"
)

// UploadedObject describes one committed blob.
type UploadedObject struct {
	// Path is the globally addressable storage key, e.g.
	// "incoming/1700000000000_report.pdf".
	Path string
	Size int64
}

// Uploader persists an uploaded file part to blob storage and returns a
// stable reference. The parser streams each multipart file part through
// a single Upload call; file bytes are never retained in the decoded
// payload. Production uses the S3-compatible client in
// internal/storage; tests substitute a fake.
type Uploader interface {
	Upload(ctx context.Context, filename, contentType string, r io.Reader) (UploadedObject, error)
}
