package handlers

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "crmgate/internal/db"
	httpctx "crmgate/internal/http/ctx"
)

// unfilteredTaskLimit caps list results when no filter is supplied.
const unfilteredTaskLimit = 50

// ListTasks handles GET /v1/tasks with optional contact_id, company_id,
// deal_id and status filters.
func ListTasks(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := requireScope(ctx, "tasks:read"); !ok {
			return
		}

		query := db.Model(&dbpkg.Task{})
		filtered := false

		for _, col := range []string{"contact_id", "company_id", "deal_id"} {
			if v := string(ctx.QueryArgs().Peek(col)); v != "" {
				id, err := strconv.ParseUint(v, 10, 32)
				if err != nil {
					WriteError(ctx, fasthttp.StatusBadRequest, "invalid "+col)
					return
				}
				query = query.Where(col+" = ?", uint(id))
				filtered = true
			}
		}
		if status := string(ctx.QueryArgs().Peek("status")); status != "" {
			query = query.Where("status = ?", status)
			filtered = true
		}

		if !filtered {
			query = query.Limit(unfilteredTaskLimit)
		}

		var tasks []dbpkg.Task
		if err := query.Find(&tasks).Error; err != nil {
			WriteError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}

		WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"data": tasks})
	}
}

// GetTask handles GET /v1/tasks/{id}.
func GetTask(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := requireScope(ctx, "tasks:read"); !ok {
			return
		}

		id, ok := taskID(ctx)
		if !ok {
			return
		}

		var task dbpkg.Task
		if err := db.First(&task, id).Error; err != nil {
			WriteError(ctx, fasthttp.StatusNotFound, "Task not found")
			return
		}

		WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"data": task})
	}
}

// CreateTask handles POST /v1/tasks. The task's sales_id is always the
// key owner, regardless of what the body claims.
func CreateTask(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		key, ok := requireScope(ctx, "tasks:write")
		if !ok {
			return
		}

		var fields map[string]any
		if err := json.Unmarshal(ctx.PostBody(), &fields); err != nil {
			WriteError(ctx, fasthttp.StatusBadRequest, "Invalid JSON body")
			return
		}

		task := dbpkg.Task{SalesID: key.SalesID}
		applyTaskFields(&task, fields)

		if err := db.Create(&task).Error; err != nil {
			WriteError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		WriteJSON(ctx, fasthttp.StatusCreated, map[string]any{"data": task})
	}
}

// UpdateTask handles PATCH /v1/tasks/{id}.
func UpdateTask(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := requireScope(ctx, "tasks:write"); !ok {
			return
		}

		id, ok := taskID(ctx)
		if !ok {
			return
		}

		var fields map[string]any
		if err := json.Unmarshal(ctx.PostBody(), &fields); err != nil {
			WriteError(ctx, fasthttp.StatusBadRequest, "Invalid JSON body")
			return
		}

		var task dbpkg.Task
		if err := db.First(&task, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				WriteError(ctx, fasthttp.StatusNotFound, "Task not found")
				return
			}
			WriteError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}

		applyTaskFields(&task, fields)
		if err := db.Save(&task).Error; err != nil {
			WriteError(ctx, fasthttp.StatusBadRequest, err.Error())
			return
		}

		WriteJSON(ctx, fasthttp.StatusOK, map[string]any{"data": task})
	}
}

// DeleteTask handles DELETE /v1/tasks/{id}. Hard delete.
func DeleteTask(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if _, ok := requireScope(ctx, "tasks:write"); !ok {
			return
		}

		id, ok := taskID(ctx)
		if !ok {
			return
		}

		res := db.Delete(&dbpkg.Task{}, id)
		if res.Error != nil {
			WriteError(ctx, fasthttp.StatusInternalServerError, res.Error.Error())
			return
		}
		if res.RowsAffected == 0 {
			WriteError(ctx, fasthttp.StatusNotFound, "Task not found")
			return
		}

		SetCORSHeaders(ctx)
		ctx.SetStatusCode(fasthttp.StatusNoContent)
	}
}

// requireScope loads the key set by the gateway and enforces the
// operation's scope. Membership test only, no hierarchy.
func requireScope(ctx *fasthttp.RequestCtx, scope string) (*dbpkg.APIKey, bool) {
	key, ok := httpctx.APIKeyFromCtx(ctx)
	if !ok {
		WriteError(ctx, fasthttp.StatusUnauthorized, "Invalid API Key")
		return nil, false
	}
	if !key.HasScope(scope) {
		WriteError(ctx, fasthttp.StatusForbidden, "Insufficient permissions")
		return nil, false
	}
	return key, true
}

func taskID(ctx *fasthttp.RequestCtx) (uint, bool) {
	raw, _ := ctx.UserValue("id").(string)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		WriteError(ctx, fasthttp.StatusNotFound, "Task not found")
		return 0, false
	}
	return uint(id), true
}

func applyTaskFields(task *dbpkg.Task, fields map[string]any) {
	if v, ok := fields["text"].(string); ok {
		task.Text = v
	}
	if v, ok := fields["type"].(string); ok {
		task.Type = v
	}
	if v, ok := fields["status"].(string); ok {
		task.Status = v
	}
	if id := uintField(fields, "contact_id"); id != nil {
		task.ContactID = id
	}
	if id := uintField(fields, "company_id"); id != nil {
		task.CompanyID = id
	}
	if id := uintField(fields, "deal_id"); id != nil {
		task.DealID = id
	}
	if v, ok := fields["due_date"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			task.DueDate = &t
		}
	}
	if v, ok := fields["done_date"].(string); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			task.DoneDate = &t
		}
	}
}
