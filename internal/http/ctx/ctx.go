package ctx

import (
	"github.com/valyala/fasthttp"

	dbpkg "crmgate/internal/db"
)

const (
	ProviderKey  = "ingestionProvider"
	TrustTierKey = "trustTier"
	APIKeyKey    = "apiKey"
	SaleKey      = "sale"
	ErrorTextKey = "errorText"
)

// Trust tiers assigned by the channel resolver.
const (
	// TrustTierInternal marks requests bearing an internal ak_live_
	// token. These are trusted as a "generic" provider without the
	// hash/scope/rate-limit machinery of the /v1 gateway — a distinct
	// tier preserved for security review, not an oversight.
	TrustTierInternal = "internal"
	// TrustTierChannel marks requests resolved via an ingestion key.
	TrustTierChannel = "channel"
)

func SetProvider(ctx *fasthttp.RequestCtx, p *dbpkg.IngestionProvider) {
	ctx.SetUserValue(ProviderKey, p)
}

func ProviderFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.IngestionProvider, bool) {
	v := ctx.UserValue(ProviderKey)
	if v == nil {
		return nil, false
	}
	p, ok := v.(*dbpkg.IngestionProvider)
	return p, ok
}

func SetTrustTier(ctx *fasthttp.RequestCtx, tier string) {
	ctx.SetUserValue(TrustTierKey, tier)
}

func TrustTierFromCtx(ctx *fasthttp.RequestCtx) string {
	if v, ok := ctx.UserValue(TrustTierKey).(string); ok {
		return v
	}
	return ""
}

func SetAPIKey(ctx *fasthttp.RequestCtx, key *dbpkg.APIKey) {
	ctx.SetUserValue(APIKeyKey, key)
}

func APIKeyFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.APIKey, bool) {
	v := ctx.UserValue(APIKeyKey)
	if v == nil {
		return nil, false
	}
	k, ok := v.(*dbpkg.APIKey)
	return k, ok
}

func SetSale(ctx *fasthttp.RequestCtx, sale *dbpkg.Sale) {
	ctx.SetUserValue(SaleKey, sale)
}

func SaleFromCtx(ctx *fasthttp.RequestCtx) (*dbpkg.Sale, bool) {
	v := ctx.UserValue(SaleKey)
	if v == nil {
		return nil, false
	}
	s, ok := v.(*dbpkg.Sale)
	return s, ok
}

// SetErrorText records server-side failure detail for the request log.
// Never echoed to clients beyond the uniform envelope.
func SetErrorText(ctx *fasthttp.RequestCtx, text string) {
	ctx.SetUserValue(ErrorTextKey, text)
}

func ErrorTextFromCtx(ctx *fasthttp.RequestCtx) string {
	if v, ok := ctx.UserValue(ErrorTextKey).(string); ok {
		return v
	}
	return ""
}
