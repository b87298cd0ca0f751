package middleware

import (
	"bytes"
	"errors"
	"log"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "crmgate/internal/db"
	httpctx "crmgate/internal/http/ctx"
	"crmgate/internal/http/handlers"
)

// ResolveChannel determines the calling principal for the ingestion
// endpoint. Resolution order is a deliberate security policy, first
// match wins:
//
//  1. Internal bearer token (ak_live_ prefix) — trusted internal caller
//     with generic provider rights, no further lookup.
//  2. Ingestion key from the x-ingestion-key header or the legacy ?key=
//     query parameter, looked up against active channels.
//  3. Legacy ?provider=twilio with no key — rejected with an actionable
//     error instead of silently failing signature validation.
//  4. No credentials at all — 400.
func ResolveChannel(db *gorm.DB) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	internalPrefix := []byte("Bearer " + dbpkg.APIKeyPrefix)

	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			auth := ctx.Request.Header.Peek("Authorization")
			if bytes.HasPrefix(auth, internalPrefix) {
				// Internal trust tier: the full API-key validation
				// pipeline is deliberately not consulted here. See
				// httpctx.TrustTierInternal.
				httpctx.SetTrustTier(ctx, httpctx.TrustTierInternal)
				next(ctx)
				return
			}

			ingestionKey := string(ctx.Request.Header.Peek("x-ingestion-key"))
			if ingestionKey == "" {
				ingestionKey = string(ctx.QueryArgs().Peek("key"))
			}

			if ingestionKey != "" {
				provider, err := dbpkg.FindProviderByIngestionKey(db, ingestionKey)
				if err != nil {
					if errors.Is(err, dbpkg.ErrUnknownIngestionKey) {
						handlers.WriteError(ctx, fasthttp.StatusUnauthorized, "Invalid Ingestion Key")
						return
					}
					log.Printf("channel lookup error: %v", err)
					handlers.WriteError(ctx, fasthttp.StatusInternalServerError, "Internal Server Error")
					return
				}

				httpctx.SetTrustTier(ctx, httpctx.TrustTierChannel)
				httpctx.SetProvider(ctx, provider)
				dbpkg.TouchProvider(db, provider.ID)
				next(ctx)
				return
			}

			if string(ctx.QueryArgs().Peek("provider")) == "twilio" {
				// Matching a Twilio config by the To number would require
				// parsing the body first; requests without a key are
				// rejected outright.
				handlers.WriteError(ctx, fasthttp.StatusUnauthorized, "Missing 'key' parameter in webhook URL")
				return
			}

			handlers.WriteError(ctx, fasthttp.StatusBadRequest, "Unknown Provider or Missing Authentication")
		}
	}
}
