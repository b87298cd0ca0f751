package handlers

import (
	"encoding/json"
	"strconv"

	"github.com/valyala/fasthttp"

	httpctx "crmgate/internal/http/ctx"
)

// SetCORSHeaders applies the permissive CORS policy shared by every
// endpoint, matching what the browser UI and webhook providers expect.
func SetCORSHeaders(ctx *fasthttp.RequestCtx) {
	ctx.Response.Header.Set("Access-Control-Allow-Origin", "*")
	ctx.Response.Header.Set("Access-Control-Allow-Headers",
		"authorization, x-client-info, apikey, content-type, x-ingestion-key")
	ctx.Response.Header.Set("Access-Control-Allow-Methods", "POST, PATCH, PUT, DELETE")
}

// WriteError sends the uniform {status, message} envelope. All failures
// cross the boundary through here; message text is short and leaks no
// credential state.
func WriteError(ctx *fasthttp.RequestCtx, status int, message string) {
	httpctx.SetErrorText(ctx, message)
	SetCORSHeaders(ctx)
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"status":` + strconv.Itoa(status) + `,"message":` + quoteJSON(message) + `}`)
}

// WriteJSON sends a JSON response with CORS headers.
func WriteJSON(ctx *fasthttp.RequestCtx, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		WriteError(ctx, fasthttp.StatusInternalServerError, "failed to encode response")
		return
	}
	SetCORSHeaders(ctx)
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

// CORSPreflight answers OPTIONS with 204 and the permissive headers.
func CORSPreflight(ctx *fasthttp.RequestCtx) {
	SetCORSHeaders(ctx)
	ctx.SetStatusCode(fasthttp.StatusNoContent)
}

func quoteJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
