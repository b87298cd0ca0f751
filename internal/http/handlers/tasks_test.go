package handlers

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "crmgate/internal/db"
	httpctx "crmgate/internal/http/ctx"
)

func authedCtx(method, uri string, body []byte, key *dbpkg.APIKey) *fasthttp.RequestCtx {
	ctx := newRequestCtx(method, uri, body, map[string]string{"Content-Type": "application/json"})
	httpctx.SetAPIKey(ctx, key)
	return ctx
}

func taskKey(scopes ...string) *dbpkg.APIKey {
	return &dbpkg.APIKey{SalesID: 4, Scopes: scopes, IsActive: true}
}

func decodeData(t *testing.T, ctx *fasthttp.RequestCtx) map[string]any {
	t.Helper()
	var resp map[string]any
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), &resp))
	return resp
}

func TestCreateTaskForcesOwner(t *testing.T) {
	db := newTestDB(t)

	body := []byte(`{"text":"call Alice","type":"Call","contact_id":12,"sales_id":999,"due_date":"2026-09-02T09:00:00Z"}`)
	ctx := authedCtx("POST", "http://example.com/v1/tasks", body, taskKey("tasks:write"))

	CreateTask(db)(ctx)

	require.Equal(t, fasthttp.StatusCreated, ctx.Response.StatusCode())

	var task dbpkg.Task
	require.NoError(t, db.First(&task).Error)
	assert.Equal(t, "call Alice", task.Text)
	assert.Equal(t, uint(4), task.SalesID, "sales_id in the body must be ignored")
	require.NotNil(t, task.ContactID)
	assert.Equal(t, uint(12), *task.ContactID)
	require.NotNil(t, task.DueDate)
}

func TestCreateTaskRequiresWriteScope(t *testing.T) {
	db := newTestDB(t)

	ctx := authedCtx("POST", "http://example.com/v1/tasks", []byte(`{"text":"x"}`), taskKey("tasks:read"))
	CreateTask(db)(ctx)

	assert.Equal(t, fasthttp.StatusForbidden, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "Insufficient permissions")
}

func TestTasksWithoutKeyAre401(t *testing.T) {
	db := newTestDB(t)

	ctx := newRequestCtx("GET", "http://example.com/v1/tasks", nil, nil)
	ListTasks(db)(ctx)

	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "Invalid API Key")
}

func TestListTasksFilters(t *testing.T) {
	db := newTestDB(t)
	contact := uint(1)
	other := uint(2)
	seed := []dbpkg.Task{
		{Text: "a", ContactID: &contact, Status: "todo", SalesID: 4},
		{Text: "b", ContactID: &other, Status: "todo", SalesID: 4},
		{Text: "c", ContactID: &contact, Status: "done", SalesID: 4},
	}
	for i := range seed {
		require.NoError(t, db.Create(&seed[i]).Error)
	}

	ctx := authedCtx("GET", "http://example.com/v1/tasks?contact_id=1&status=todo", nil, taskKey("tasks:read"))
	ListTasks(db)(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())
	data := decodeData(t, ctx)["data"].([]any)
	require.Len(t, data, 1)
	assert.Equal(t, "a", data[0].(map[string]any)["text"])
}

func TestListTasksRejectsBadFilter(t *testing.T) {
	db := newTestDB(t)

	ctx := authedCtx("GET", "http://example.com/v1/tasks?contact_id=abc", nil, taskKey("tasks:read"))
	ListTasks(db)(ctx)

	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
}

func TestGetTaskNotFound(t *testing.T) {
	db := newTestDB(t)

	ctx := authedCtx("GET", "http://example.com/v1/tasks/42", nil, taskKey("tasks:read"))
	ctx.SetUserValue("id", "42")
	GetTask(db)(ctx)

	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "Task not found")
}

func TestUpdateTask(t *testing.T) {
	db := newTestDB(t)
	task := dbpkg.Task{Text: "initial", Status: "todo", SalesID: 4}
	require.NoError(t, db.Create(&task).Error)

	body := []byte(`{"status":"done","done_date":"2026-09-01T12:00:00Z"}`)
	ctx := authedCtx("PATCH", "http://example.com/v1/tasks/1", body, taskKey("tasks:write"))
	ctx.SetUserValue("id", "1")
	UpdateTask(db)(ctx)

	require.Equal(t, fasthttp.StatusOK, ctx.Response.StatusCode())

	var updated dbpkg.Task
	require.NoError(t, db.First(&updated, task.ID).Error)
	assert.Equal(t, "done", updated.Status)
	assert.Equal(t, "initial", updated.Text, "unmentioned fields keep their value")
	require.NotNil(t, updated.DoneDate)
}

func TestDeleteTask(t *testing.T) {
	db := newTestDB(t)
	task := dbpkg.Task{Text: "to delete", SalesID: 4}
	require.NoError(t, db.Create(&task).Error)

	ctx := authedCtx("DELETE", "http://example.com/v1/tasks/1", nil, taskKey("tasks:write"))
	ctx.SetUserValue("id", "1")
	DeleteTask(db)(ctx)

	assert.Equal(t, fasthttp.StatusNoContent, ctx.Response.StatusCode())

	err := db.First(&dbpkg.Task{}, task.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Deleting again is a 404.
	ctx = authedCtx("DELETE", "http://example.com/v1/tasks/1", nil, taskKey("tasks:write"))
	ctx.SetUserValue("id", "1")
	DeleteTask(db)(ctx)
	assert.Equal(t, fasthttp.StatusNotFound, ctx.Response.StatusCode())
}
