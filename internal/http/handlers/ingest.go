package handlers

import (
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/valyala/fasthttp"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	dbpkg "crmgate/internal/db"
	httpctx "crmgate/internal/http/ctx"
	"crmgate/internal/ingest"
)

var (
	activitiesIngested *prometheus.CounterVec
	ingestDuration     *prometheus.HistogramVec
	apiRequestsTotal   *prometheus.CounterVec
)

func InitPrometheusMetrics() {
	activitiesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmgate",
			Name:      "activities_ingested_total",
			Help:      "Total number of activities created by the ingestion pipeline.",
		},
		[]string{"provider", "type"},
	)
	ingestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "crmgate",
			Name:      "ingest_duration_seconds",
			Help:      "Histogram of ingestion request durations in seconds.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"provider"},
	)
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "crmgate",
			Name:      "api_requests_total",
			Help:      "Total number of API-key-authenticated requests.",
		},
		[]string{"endpoint", "method", "status"},
	)
	prometheus.MustRegister(activitiesIngested, ingestDuration, apiRequestsTotal)
}

// ObserveAPIRequest feeds the /v1 request counter. Called by the
// API-key gateway after the response status is known.
func ObserveAPIRequest(endpoint, method string, status int) {
	if apiRequestsTotal == nil {
		return
	}
	apiRequestsTotal.WithLabelValues(endpoint, method, strconv.Itoa(status)).Inc()
}

// IngestHandler runs the activity-ingestion pipeline: the channel
// resolver middleware has already attached the principal; this handler
// parses the body, verifies the Twilio signature where the channel
// requires it, uploads file parts, normalizes the payload and persists
// exactly one activity row. The insert is the final fallible step so a
// partial activity can never reference an upload that was never
// recorded.
func IngestHandler(db *gorm.DB, up ingest.Uploader) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		start := time.Now()

		provider, _ := httpctx.ProviderFromCtx(ctx)
		providerCode := dbpkg.ProviderGeneric
		if provider != nil {
			providerCode = provider.ProviderCode
		}

		defer func() {
			if r := recover(); r != nil {
				log.Printf("ingestion panic: %v", r)
				WriteError(ctx, fasthttp.StatusInternalServerError, "Internal Server Error")
			}
			if ingestDuration != nil {
				ingestDuration.WithLabelValues(providerCode).Observe(time.Since(start).Seconds())
			}
		}()

		contentType := string(ctx.Request.Header.ContentType())
		formArgs := map[string]string{}
		ctx.PostArgs().VisitAll(func(key, value []byte) {
			formArgs[string(key)] = string(value)
		})

		body, err := ingest.ParseBody(ctx, contentType, ctx.PostBody(), formArgs, up)
		if err != nil {
			if errors.Is(err, ingest.ErrMalformedBody) {
				WriteError(ctx, fasthttp.StatusBadRequest, err.Error())
				return
			}
			// Storage-layer failure on an already authenticated path:
			// surface the upstream detail to aid operator debugging.
			log.Printf("ingestion upload error: %v", err)
			WriteError(ctx, fasthttp.StatusInternalServerError, err.Error())
			return
		}

		// Signature verification runs after body parsing on purpose:
		// the Twilio signature covers the parsed form fields, not the
		// raw byte stream.
		if provider != nil && provider.ProviderCode == dbpkg.ProviderTwilio {
			if authToken := provider.AuthToken(); authToken != "" {
				signature := string(ctx.Request.Header.Peek("X-Twilio-Signature"))
				if !ingest.ValidateTwilioSignature(signature, authToken, ctx.URI().String(), body.Fields) {
					log.Printf("invalid twilio signature for channel %d", provider.ID)
					WriteError(ctx, fasthttp.StatusUnauthorized, "Invalid Twilio Signature")
					return
				}
			} else {
				// Per-channel policy: no auth token configured means no
				// signature verification for this channel.
				log.Printf("channel %d accepts unsigned twilio webhooks", provider.ID)
			}
		}

		normalized := ingest.Normalize(providerCode, body)

		metadata := datatypes.JSONMap{}
		for k, v := range normalized.Metadata {
			metadata[k] = v
		}
		metadata["provider_code"] = providerCode

		if len(body.Files) > 0 {
			uploaded := make([]any, 0, len(body.Files))
			for _, f := range body.Files {
				uploaded = append(uploaded, map[string]any{
					"fieldName":   f.FieldName,
					"storagePath": f.StoragePath,
					"size":        f.Size,
					"type":        f.MimeType,
				})
			}
			metadata["uploaded_files"] = uploaded
			metadata["has_attachments"] = true
		}

		activity := dbpkg.Activity{
			Type:             normalized.Type,
			Direction:        "inbound",
			ProcessingStatus: "raw", // advanced only by the processing worker
			RawData:          datatypes.JSONMap(normalized.RawData),
			Metadata:         metadata,
		}
		if provider != nil {
			activity.ProviderID = &provider.ID
			activity.SalesID = provider.SalesID
		}
		if len(body.Files) > 0 {
			activity.PayloadStorageStatus = "in_storage"
		}

		if err := db.Create(&activity).Error; err != nil {
			log.Printf("activity insert error: %v", err)
			WriteError(ctx, fasthttp.StatusInternalServerError, "Failed to persist activity: "+err.Error())
			return
		}

		if activitiesIngested != nil {
			activitiesIngested.WithLabelValues(providerCode, normalized.Type).Inc()
		}

		SetCORSHeaders(ctx)
		ctx.SetStatusCode(fasthttp.StatusAccepted)
		ctx.SetContentType("application/json")
		ctx.SetBodyString(`{"success":true,"id":` + strconv.Itoa(int(activity.ID)) + `}`)
	}
}
