package middleware

import (
	"bytes"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"crmgate/internal/config"
	dbpkg "crmgate/internal/db"
	httpctx "crmgate/internal/http/ctx"
	"crmgate/internal/http/handlers"
)

// APIKeyGateway authenticates /v1 requests by API key, enforces the
// per-key rate limit, and records exactly one APIRequestLog row per
// authenticated call whatever the outcome. Scope checks stay in the
// handlers since the required scope depends on the operation.
//
// The key travels as "Authorization: Bearer ak_live_…" or in the
// X-Api-Key header. Unknown, inactive and expired keys all produce the
// same 401 so callers cannot probe key state.
func APIKeyGateway(db *gorm.DB, cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			start := time.Now()

			rawKey := extractAPIKey(ctx)
			if rawKey == "" {
				handlers.WriteError(ctx, fasthttp.StatusUnauthorized, "Invalid API Key")
				return
			}

			key, err := dbpkg.LookupAPIKey(db, rawKey)
			if err != nil {
				if errors.Is(err, dbpkg.ErrInvalidAPIKey) {
					handlers.WriteError(ctx, fasthttp.StatusUnauthorized, "Invalid API Key")
					return
				}
				log.Printf("api key lookup error: %v", err)
				handlers.WriteError(ctx, fasthttp.StatusInternalServerError, "Internal server error")
				return
			}

			httpctx.SetAPIKey(ctx, key)
			dbpkg.TouchAPIKey(db, key.ID)

			// Rate limit before any business logic. Denied attempts are
			// still logged for observability.
			limit := dbpkg.EffectiveRateLimit(key, cfg.RateLimitPerMinute)
			allowed, err := dbpkg.AllowRequest(db, key.ID, limit, start)
			if err != nil {
				log.Printf("rate limit error for key %d: %v", key.ID, err)
				handlers.WriteError(ctx, fasthttp.StatusInternalServerError, "Internal server error")
				logRequest(db, key.ID, ctx, start, "rate limit store error")
				return
			}
			if !allowed {
				handlers.WriteError(ctx, fasthttp.StatusTooManyRequests, "Rate limit exceeded")
				logRequest(db, key.ID, ctx, start, "")
				return
			}

			func() {
				defer func() {
					if r := recover(); r != nil {
						log.Printf("panic in %s %s: %v", ctx.Method(), ctx.Path(), r)
						httpctx.SetErrorText(ctx, "panic recovered")
						handlers.WriteError(ctx, fasthttp.StatusInternalServerError, "Internal server error")
					}
				}()
				next(ctx)
			}()

			logRequest(db, key.ID, ctx, start, httpctx.ErrorTextFromCtx(ctx))
		}
	}
}

// logRequest appends the APIRequestLog row after the response status is
// known, with latency measured from request entry.
func logRequest(db *gorm.DB, keyID uint, ctx *fasthttp.RequestCtx, start time.Time, errorText string) {
	row := dbpkg.APIRequestLog{
		APIKeyID:   keyID,
		Endpoint:   string(ctx.Path()),
		Method:     string(ctx.Method()),
		StatusCode: ctx.Response.StatusCode(),
		DurationMs: time.Since(start).Milliseconds(),
		RemoteIP:   ctx.RemoteAddr().String(),
		ErrorText:  errorText,
	}
	if err := db.Create(&row).Error; err != nil {
		log.Printf("failed to write api request log: %v", err)
	}
	handlers.ObserveAPIRequest(row.Endpoint, row.Method, row.StatusCode)
}

func extractAPIKey(ctx *fasthttp.RequestCtx) string {
	auth := ctx.Request.Header.Peek("Authorization")
	const prefix = "Bearer "
	if bytes.HasPrefix(auth, []byte(prefix)) {
		return strings.TrimSpace(string(auth[len(prefix):]))
	}
	return string(ctx.Request.Header.Peek("X-Api-Key"))
}
