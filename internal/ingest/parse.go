package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"strings"
)

// FileRef is the storage reference substituted for a multipart file
// part after upload. Normalization and persistence operate only on
// references, never on raw bytes, which bounds memory use independent
// of file size.
type FileRef struct {
	FieldName   string
	StoragePath string
	Filename    string
	Size        int64
	MimeType    string
}

// Body is the decoded request payload: a mapping from field name to
// value, where file parts have been replaced with FileRef entries.
// Files preserves the receipt order of file parts, which the
// normalizer's storage_refs output must follow.
type Body struct {
	Fields map[string]any
	Files  []FileRef

	// RawText holds the body verbatim when the content type is not one
	// of the supported structured formats.
	RawText string
}

// ErrMalformedBody marks payloads the parser cannot decode; handlers
// translate it into a 400.
var ErrMalformedBody = errors.New("malformed request body")

// ParseBody decodes the HTTP body according to the declared content
// type. Multipart file parts are handed to the Uploader immediately and
// replaced in the decoded map with a storage reference; a part without
// a declared type defaults to application/octet-stream. A storage-layer
// failure aborts the whole parse.
func ParseBody(ctx context.Context, contentType string, body []byte, formArgs map[string]string, up Uploader) (Body, error) {
	switch {
	case strings.Contains(contentType, "application/json"):
		fields := map[string]any{}
		if err := json.Unmarshal(body, &fields); err != nil {
			return Body{}, fmt.Errorf("%w: invalid JSON", ErrMalformedBody)
		}
		return Body{Fields: fields}, nil

	case strings.Contains(contentType, "application/x-www-form-urlencoded"):
		fields := make(map[string]any, len(formArgs))
		for k, v := range formArgs {
			fields[k] = v
		}
		return Body{Fields: fields}, nil

	case strings.Contains(contentType, "multipart/form-data"):
		return parseMultipart(ctx, contentType, body, up)

	default:
		return Body{RawText: string(body)}, nil
	}
}

// parseMultipart walks the parts in receipt order. multipart.Reader is
// used directly instead of a parsed form because the form representation
// loses cross-field part ordering.
func parseMultipart(ctx context.Context, contentType string, body []byte, up Uploader) (Body, error) {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil || params["boundary"] == "" {
		return Body{}, fmt.Errorf("%w: missing multipart boundary", ErrMalformedBody)
	}

	decoded := Body{Fields: map[string]any{}}
	mr := multipart.NewReader(bytes.NewReader(body), params["boundary"])
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Body{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
		}

		if part.FileName() == "" {
			value, err := io.ReadAll(part)
			if err != nil {
				return Body{}, fmt.Errorf("%w: %v", ErrMalformedBody, err)
			}
			decoded.Fields[part.FormName()] = string(value)
			continue
		}

		mimeType := part.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}

		obj, err := up.Upload(ctx, part.FileName(), mimeType, part)
		if err != nil {
			return Body{}, fmt.Errorf("file upload failed: %w", err)
		}

		ref := FileRef{
			FieldName:   part.FormName(),
			StoragePath: obj.Path,
			Filename:    part.FileName(),
			Size:        obj.Size,
			MimeType:    mimeType,
		}
		decoded.Fields[part.FormName()] = ref
		decoded.Files = append(decoded.Files, ref)
	}

	return decoded, nil
}
