package ingest

import "encoding/json"

// Normalized is the provider-independent activity shape produced by
// Normalize and persisted by the pipeline.
type Normalized struct {
	Type     string
	RawData  map[string]any
	Metadata map[string]any
}

// Activity types produced by normalization.
const (
	TypeEmail = "email"
	TypeSMS   = "sms"
	TypeCall  = "call"
	TypeNote  = "note"
)

// Normalize maps a provider-specific payload into the canonical
// activity shape. Pure function: no I/O, no side effects, identical
// input yields identical output.
func Normalize(providerCode string, body Body) Normalized {
	switch providerCode {
	case "postmark":
		return normalizePostmark(body)
	case "twilio":
		return normalizeTwilio(body)
	default:
		return normalizeGeneric(body)
	}
}

func normalizePostmark(body Body) Normalized {
	content := str(body.Fields, "TextBody")
	if content == "" {
		content = str(body.Fields, "HtmlBody")
	}
	return Normalized{
		Type: TypeEmail,
		RawData: map[string]any{
			"source_type": "text",
			"content":     content,
			"subject":     str(body.Fields, "Subject"),
			"sender":      str(body.Fields, "From"),
		},
		Metadata: map[string]any{
			"message_id": str(body.Fields, "MessageID"),
			"to":         str(body.Fields, "To"),
		},
	}
}

func normalizeTwilio(body Body) Normalized {
	// A recording URL means a completed voice call; otherwise SMS.
	if recordingURL := str(body.Fields, "RecordingUrl"); recordingURL != "" {
		return Normalized{
			Type: TypeCall,
			RawData: map[string]any{
				"source_type": "url",
				"content":     recordingURL, // downloaded later by the processing worker
				"format":      "audio/wav",
			},
			Metadata: map[string]any{
				"call_sid": str(body.Fields, "CallSid"),
				"from":     str(body.Fields, "From"),
				"duration": str(body.Fields, "CallDuration"),
			},
		}
	}
	return Normalized{
		Type: TypeSMS,
		RawData: map[string]any{
			"source_type": "text",
			"content":     str(body.Fields, "Body"),
		},
		Metadata: map[string]any{
			"message_sid": str(body.Fields, "MessageSid"),
			"from":        str(body.Fields, "From"),
		},
	}
}

// normalizeGeneric covers manual and API callers. File references
// always take priority over the JSON fallback, regardless of other
// fields present.
func normalizeGeneric(body Body) Normalized {
	n := Normalized{Type: TypeNote}
	if t := str(body.Fields, "type"); t != "" {
		n.Type = t
	}

	if len(body.Files) == 1 {
		ref := body.Files[0]
		n.RawData = map[string]any{
			"source_type":  "storage_ref",
			"storage_path": ref.StoragePath,
			"filename":     ref.Filename,
			"format":       ref.MimeType,
			"size":         ref.Size,
		}
		n.Metadata = genericFileMetadata(body)
		return n
	}
	if len(body.Files) > 1 {
		files := make([]any, 0, len(body.Files))
		for _, ref := range body.Files {
			files = append(files, map[string]any{
				"storage_path": ref.StoragePath,
				"filename":     ref.Filename,
				"format":       ref.MimeType,
				"size":         ref.Size,
				"field_name":   ref.FieldName,
			})
		}
		n.RawData = map[string]any{
			"source_type": "storage_refs",
			"files":       files,
		}
		n.Metadata = genericFileMetadata(body)
		return n
	}

	// Regular payload: pass an explicit raw_data/metadata pair through
	// unchanged, otherwise serialize the payload as inline text.
	if rd, ok := body.Fields["raw_data"].(map[string]any); ok {
		n.RawData = rd
	} else {
		n.RawData = map[string]any{
			"source_type": "text",
			"content":     serializePayload(body),
		}
	}
	if md, ok := body.Fields["metadata"].(map[string]any); ok {
		n.Metadata = md
	} else {
		n.Metadata = map[string]any{}
	}
	return n
}

// genericFileMetadata folds the remaining scalar form fields into
// metadata.form_data, preserving any caller-supplied metadata map.
func genericFileMetadata(body Body) map[string]any {
	metadata := map[string]any{}
	if md, ok := body.Fields["metadata"].(map[string]any); ok {
		for k, v := range md {
			metadata[k] = v
		}
	}

	formData := map[string]any{}
	for k, v := range body.Fields {
		if len(k) > 0 && k[0] == '_' {
			continue
		}
		switch v.(type) {
		case FileRef, map[string]any, []any:
			continue
		}
		formData[k] = v
	}
	metadata["form_data"] = formData
	return metadata
}

// serializePayload JSON-encodes the whole payload, including a bare
// text body, which comes out as a quoted JSON string.
func serializePayload(body Body) string {
	var payload any = body.Fields
	if body.Fields == nil {
		payload = body.RawText
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return ""
	}
	return string(raw)
}

func str(fields map[string]any, key string) string {
	if fields == nil {
		return ""
	}
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}
