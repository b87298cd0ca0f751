package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	dbpkg "crmgate/internal/db"
	httpctx "crmgate/internal/http/ctx"
)

func TestResolveChannelBearerTokenWinsOverKey(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&dbpkg.IngestionProvider{
		Name: "pm", ProviderCode: dbpkg.ProviderPostmark, IsActive: true, IngestionKey: "ik_pm",
	}).Error)

	called := false
	ctx := newRequestCtx("POST", "http://example.com/ingest?key=ik_pm", map[string]string{
		"Authorization": "Bearer ak_live_anything",
	})
	ResolveChannel(db)(okHandler(&called))(ctx)

	assert.True(t, called)
	assert.Equal(t, httpctx.TrustTierInternal, httpctx.TrustTierFromCtx(ctx))
	_, hasProvider := httpctx.ProviderFromCtx(ctx)
	assert.False(t, hasProvider, "bearer callers carry no channel")
}

func TestResolveChannelHeaderKey(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&dbpkg.IngestionProvider{
		Name: "pm", ProviderCode: dbpkg.ProviderPostmark, IsActive: true, IngestionKey: "ik_header",
	}).Error)

	called := false
	ctx := newRequestCtx("POST", "http://example.com/ingest", map[string]string{
		"x-ingestion-key": "ik_header",
	})
	ResolveChannel(db)(okHandler(&called))(ctx)

	require.True(t, called)
	assert.Equal(t, httpctx.TrustTierChannel, httpctx.TrustTierFromCtx(ctx))
	provider, ok := httpctx.ProviderFromCtx(ctx)
	require.True(t, ok)
	assert.Equal(t, dbpkg.ProviderPostmark, provider.ProviderCode)

	var touched dbpkg.IngestionProvider
	require.NoError(t, db.First(&touched, provider.ID).Error)
	assert.NotNil(t, touched.LastUsedAt)
}

func TestResolveChannelQueryKeyFallback(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&dbpkg.IngestionProvider{
		Name: "tw", ProviderCode: dbpkg.ProviderTwilio, IsActive: true, IngestionKey: "ik_query",
	}).Error)

	called := false
	ctx := newRequestCtx("POST", "http://example.com/ingest?key=ik_query", nil)
	ResolveChannel(db)(okHandler(&called))(ctx)

	assert.True(t, called)
}

func TestResolveChannelInactiveKey(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&dbpkg.IngestionProvider{
		Name: "off", ProviderCode: dbpkg.ProviderGeneric, IsActive: false, IngestionKey: "ik_off",
	}).Error)

	called := false
	ctx := newRequestCtx("POST", "http://example.com/ingest", map[string]string{
		"x-ingestion-key": "ik_off",
	})
	ResolveChannel(db)(okHandler(&called))(ctx)

	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "Invalid Ingestion Key")
}

func TestResolveChannelTwilioWithoutKey(t *testing.T) {
	db := newTestDB(t)

	called := false
	ctx := newRequestCtx("POST", "http://example.com/ingest?provider=twilio", nil)
	ResolveChannel(db)(okHandler(&called))(ctx)

	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusUnauthorized, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "Missing 'key' parameter")
}

func TestResolveChannelNoCredentials(t *testing.T) {
	db := newTestDB(t)

	called := false
	ctx := newRequestCtx("POST", "http://example.com/ingest", nil)
	ResolveChannel(db)(okHandler(&called))(ctx)

	assert.False(t, called)
	assert.Equal(t, fasthttp.StatusBadRequest, ctx.Response.StatusCode())
	assert.Contains(t, string(ctx.Response.Body()), "Unknown Provider or Missing Authentication")
}
