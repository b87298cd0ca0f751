package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/valyala/fasthttp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "crmgate/internal/db"
	httpctx "crmgate/internal/http/ctx"
	"crmgate/internal/ingest"
)

// noteAttachment is the {src, title, type} element attached to a note
// created through the multipart variant of POST /v1/activities.
type noteAttachment struct {
	Src   string `json:"src"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// CreateActivity handles POST /v1/activities: inserts a note into the
// table matched by the body's type field, owned by the API key's sale.
// The multipart variant uploads each file part to blob storage and
// attaches the resulting references to the note.
func CreateActivity(db *gorm.DB, up ingest.Uploader) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		key, ok := httpctx.APIKeyFromCtx(ctx)
		if !ok {
			WriteError(ctx, fasthttp.StatusUnauthorized, "Invalid API Key")
			return
		}
		if !key.HasScope("activities:write") {
			WriteError(ctx, fasthttp.StatusForbidden, "Insufficient permissions")
			return
		}

		contentType := string(ctx.Request.Header.ContentType())

		var fields map[string]any
		var attachments []noteAttachment

		if strings.Contains(contentType, "multipart/form-data") {
			body, err := ingest.ParseBody(ctx, contentType, ctx.PostBody(), nil, up)
			if err != nil {
				if errors.Is(err, ingest.ErrMalformedBody) {
					WriteError(ctx, fasthttp.StatusBadRequest, err.Error())
					return
				}
				log.Printf("activities upload error: %v", err)
				WriteError(ctx, fasthttp.StatusInternalServerError, err.Error())
				return
			}
			fields = body.Fields
			for _, f := range body.Files {
				attachments = append(attachments, noteAttachment{
					Src:   f.StoragePath,
					Title: f.Filename,
					Type:  f.MimeType,
				})
			}
		} else {
			if err := json.Unmarshal(ctx.PostBody(), &fields); err != nil {
				WriteError(ctx, fasthttp.StatusBadRequest, "Invalid JSON body")
				return
			}
		}

		noteType, _ := fields["type"].(string)
		record, responseType, err := buildNote(fields, attachments, key.SalesID, noteType)
		if err != nil {
			WriteError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		if err := db.Create(record).Error; err != nil {
			WriteError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		WriteJSON(ctx, fasthttp.StatusCreated, map[string]any{
			"data": record,
			"type": responseType,
		})
	}
}

// buildNote maps the note type to its table. "note" is a legacy alias
// for "contact_note"; tasks have their own endpoint.
func buildNote(fields map[string]any, attachments []noteAttachment, salesID uint, noteType string) (any, string, error) {
	text, _ := fields["text"].(string)

	var attach datatypes.JSON
	if len(attachments) > 0 {
		raw, err := json.Marshal(attachments)
		if err != nil {
			return nil, "", err
		}
		attach = datatypes.JSON(raw)
	}

	switch noteType {
	case "note", "contact_note":
		return &dbpkg.ContactNote{
			ContactID:   uintField(fields, "contact_id"),
			Text:        text,
			Status:      strField(fields, "status"),
			Attachments: attach,
			SalesID:     salesID,
		}, "contact_note", nil
	case "company_note":
		return &dbpkg.CompanyNote{
			CompanyID:   uintField(fields, "company_id"),
			Text:        text,
			Attachments: attach,
			SalesID:     salesID,
		}, "company_note", nil
	case "deal_note":
		return &dbpkg.DealNote{
			DealID:      uintField(fields, "deal_id"),
			Text:        text,
			Attachments: attach,
			SalesID:     salesID,
		}, "deal_note", nil
	case "task_note":
		return &dbpkg.TaskNote{
			TaskID:      uintField(fields, "task_id"),
			Text:        text,
			Attachments: attach,
			SalesID:     salesID,
		}, "task_note", nil
	default:
		return nil, "", errors.New("Invalid note type. Must be 'contact_note', 'company_note', 'deal_note', or 'task_note'. For tasks, use /v1/tasks endpoint.")
	}
}

func strField(fields map[string]any, key string) string {
	v, _ := fields[key].(string)
	return v
}

// uintField reads a numeric id that may arrive as a JSON number or a
// form-field string.
func uintField(fields map[string]any, key string) *uint {
	switch v := fields[key].(type) {
	case float64:
		id := uint(v)
		return &id
	case string:
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			id := uint(n)
			return &id
		}
	}
	return nil
}
