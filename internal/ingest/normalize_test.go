package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizePostmark(t *testing.T) {
	body := Body{Fields: map[string]any{
		"TextBody":  "hi there",
		"HtmlBody":  "<p>hi there</p>",
		"Subject":   "Quarterly numbers",
		"From":      "alice@example.com",
		"To":        "crm@example.com",
		"MessageID": "msg-1",
	}}

	n := Normalize("postmark", body)

	assert.Equal(t, TypeEmail, n.Type)
	assert.Equal(t, "text", n.RawData["source_type"])
	assert.Equal(t, "hi there", n.RawData["content"])
	assert.Equal(t, "Quarterly numbers", n.RawData["subject"])
	assert.Equal(t, "alice@example.com", n.RawData["sender"])
	assert.Equal(t, "msg-1", n.Metadata["message_id"])
	assert.Equal(t, "crm@example.com", n.Metadata["to"])
}

func TestNormalizePostmarkFallsBackToHTML(t *testing.T) {
	n := Normalize("postmark", Body{Fields: map[string]any{"HtmlBody": "<b>only html</b>"}})
	assert.Equal(t, "<b>only html</b>", n.RawData["content"])
}

func TestNormalizeTwilioSMS(t *testing.T) {
	body := Body{Fields: map[string]any{
		"Body":       "running late",
		"MessageSid": "SM42",
		"From":       "+15550001111",
	}}

	n := Normalize("twilio", body)

	assert.Equal(t, TypeSMS, n.Type)
	assert.Equal(t, "text", n.RawData["source_type"])
	assert.Equal(t, "running late", n.RawData["content"])
	assert.Equal(t, "SM42", n.Metadata["message_sid"])
	assert.Equal(t, "+15550001111", n.Metadata["from"])
}

func TestNormalizeTwilioRecordingBecomesCall(t *testing.T) {
	body := Body{Fields: map[string]any{
		"RecordingUrl": "https://api.twilio.com/rec/RE1",
		"CallSid":      "CA7",
		"From":         "+15550002222",
		"CallDuration": "93",
		"Body":         "ignored when a recording is present",
	}}

	n := Normalize("twilio", body)

	assert.Equal(t, TypeCall, n.Type)
	assert.Equal(t, "url", n.RawData["source_type"])
	assert.Equal(t, "https://api.twilio.com/rec/RE1", n.RawData["content"])
	assert.Equal(t, "audio/wav", n.RawData["format"])
	assert.Equal(t, "CA7", n.Metadata["call_sid"])
	assert.Equal(t, "93", n.Metadata["duration"])
}

func TestNormalizeGenericSingleFile(t *testing.T) {
	ref := FileRef{
		FieldName:   "attachment",
		StoragePath: "incoming/1_scan.pdf",
		Filename:    "scan.pdf",
		Size:        2048,
		MimeType:    "application/pdf",
	}
	body := Body{
		Fields: map[string]any{
			"type":       "contact_note",
			"contact_id": "15",
			"attachment": ref,
		},
		Files: []FileRef{ref},
	}

	n := Normalize("generic", body)

	assert.Equal(t, "contact_note", n.Type)
	assert.Equal(t, "storage_ref", n.RawData["source_type"])
	assert.Equal(t, "incoming/1_scan.pdf", n.RawData["storage_path"])
	assert.Equal(t, "scan.pdf", n.RawData["filename"])
	assert.Equal(t, "application/pdf", n.RawData["format"])
	assert.Equal(t, int64(2048), n.RawData["size"])

	formData, ok := n.Metadata["form_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "15", formData["contact_id"])
	assert.NotContains(t, formData, "attachment")
}

func TestNormalizeGenericMultipleFilesKeepOrder(t *testing.T) {
	refs := []FileRef{
		{FieldName: "first", StoragePath: "incoming/1_a.png", Filename: "a.png", MimeType: "image/png", Size: 10},
		{FieldName: "second", StoragePath: "incoming/2_b.png", Filename: "b.png", MimeType: "image/png", Size: 20},
	}
	body := Body{
		Fields: map[string]any{"first": refs[0], "second": refs[1]},
		Files:  refs,
	}

	n := Normalize("generic", body)

	assert.Equal(t, "storage_refs", n.RawData["source_type"])
	files, ok := n.RawData["files"].([]any)
	require.True(t, ok)
	require.Len(t, files, 2)

	first := files[0].(map[string]any)
	second := files[1].(map[string]any)
	assert.Equal(t, "incoming/1_a.png", first["storage_path"])
	assert.Equal(t, "first", first["field_name"])
	assert.Equal(t, "incoming/2_b.png", second["storage_path"])
	assert.Equal(t, "second", second["field_name"])
}

func TestNormalizeGenericFileBeatsExplicitRawData(t *testing.T) {
	ref := FileRef{FieldName: "f", StoragePath: "incoming/3_x.bin", Filename: "x.bin", MimeType: "application/octet-stream"}
	body := Body{
		Fields: map[string]any{
			"raw_data": map[string]any{"source_type": "text", "content": "should lose"},
			"f":        ref,
		},
		Files: []FileRef{ref},
	}

	n := Normalize("generic", body)
	assert.Equal(t, "storage_ref", n.RawData["source_type"])
}

func TestNormalizeGenericPassthrough(t *testing.T) {
	body := Body{Fields: map[string]any{
		"type":     "deal_note",
		"raw_data": map[string]any{"source_type": "text", "content": "verbatim"},
		"metadata": map[string]any{"origin": "import"},
	}}

	n := Normalize("generic", body)

	assert.Equal(t, "deal_note", n.Type)
	assert.Equal(t, map[string]any{"source_type": "text", "content": "verbatim"}, n.RawData)
	assert.Equal(t, map[string]any{"origin": "import"}, n.Metadata)
}

func TestNormalizeGenericSerializesLoosePayload(t *testing.T) {
	n := Normalize("generic", Body{Fields: map[string]any{"anything": "goes"}})

	assert.Equal(t, TypeNote, n.Type)
	assert.Equal(t, "text", n.RawData["source_type"])
	assert.JSONEq(t, `{"anything":"goes"}`, n.RawData["content"].(string))
	assert.Equal(t, map[string]any{}, n.Metadata)
}

func TestNormalizeGenericRawTextBody(t *testing.T) {
	// A bare text body is serialized like any other payload, so the
	// content comes out as a quoted JSON string.
	n := Normalize("generic", Body{RawText: "plain text payload"})
	assert.Equal(t, `"plain text payload"`, n.RawData["content"])
}

func TestNormalizeIsPure(t *testing.T) {
	body := Body{Fields: map[string]any{"Body": "x", "MessageSid": "SM1"}}
	a := Normalize("twilio", body)
	b := Normalize("twilio", body)
	assert.Equal(t, a, b)
}
