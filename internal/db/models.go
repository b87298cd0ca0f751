package db

import (
	"time"

	"gorm.io/datatypes"
)

// Activity source types carried in raw_data.source_type. They tell the
// downstream processing worker how to retrieve the payload content.
const (
	SourceText        = "text"
	SourceURL         = "url"
	SourceStorageRef  = "storage_ref"
	SourceStorageRefs = "storage_refs"
)

// Provider codes for ingestion channels.
const (
	ProviderPostmark = "postmark"
	ProviderTwilio   = "twilio"
	ProviderGeneric  = "generic"
)

// Activity is the canonical representation of one inbound event,
// independent of which provider produced it. Rows are created exactly
// once by the ingestion pipeline with processing_status "raw"; the
// asynchronous processing worker owns every later status transition.
type Activity struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`

	// Type is one of email|sms|call|note|other.
	Type string `gorm:"size:32;index;not null" json:"type"`

	Direction string `gorm:"size:16;default:inbound" json:"direction"`

	// ProcessingStatus starts at "raw". The pipeline never writes any
	// other value.
	ProcessingStatus string `gorm:"size:32;index;default:raw" json:"processing_status"`

	// RawData is a tagged union discriminated by source_type: inline
	// text, a URL to fetch, or one or more blob storage references.
	RawData datatypes.JSONMap `gorm:"type:json" json:"raw_data"`

	// Metadata carries the provider-specific envelope (message ids,
	// phone numbers, subjects). Opaque to downstream consumers beyond
	// the keys they know.
	Metadata datatypes.JSONMap `gorm:"type:json" json:"metadata"`

	// ProviderID references the ingestion channel that produced this
	// activity. Nil for internal bearer-token callers.
	ProviderID *uint `gorm:"index" json:"provider_id"`

	// SalesID is the owning user, auto-assigned from the channel owner.
	SalesID *uint `gorm:"index" json:"sales_id"`

	// PayloadStorageStatus is "in_storage" when file parts were
	// uploaded to blob storage during ingestion.
	PayloadStorageStatus string `gorm:"size:32" json:"payload_storage_status,omitempty"`
}

// IngestionProvider is one configured external source (a "channel").
// Created by an administrator through the channel-management UI; the
// pipeline reads it and only ever touches LastUsedAt.
type IngestionProvider struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name string `gorm:"size:128;not null" json:"name"`

	// ProviderCode selects the normalization rules: postmark, twilio
	// or generic.
	ProviderCode string `gorm:"size:32;index;not null" json:"provider_code"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	// Config holds opaque provider-specific settings. For twilio it may
	// carry "auth_token", which enables webhook signature verification.
	// Channels without a token skip verification — a per-channel policy,
	// not a hidden default.
	Config datatypes.JSONMap `gorm:"type:json" json:"config"`

	// IngestionKey is the secret bearer credential carried in the
	// webhook URL or the x-ingestion-key header. Never echoed back on
	// client-visible error paths.
	IngestionKey string `gorm:"uniqueIndex;size:255;not null" json:"-"`

	// SalesID is the owning user. Activities from this channel are
	// auto-assigned to them. Nil routes to no default owner.
	SalesID *uint `gorm:"index" json:"sales_id"`

	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// APIKey is one external application's credential for the /v1 API.
// The raw key is never stored; only a SHA-256 hash and a short prefix
// for identification are persisted. An AES-GCM-encrypted copy is kept
// solely so the owner can redisplay the key, gated behind the owner's
// own authorization.
type APIKey struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// SalesID links this key to the user who owns it. Records created
	// through the key inherit this owner.
	SalesID uint `gorm:"index;not null" json:"sales_id"`

	Name string `gorm:"size:128;not null" json:"name"`

	// KeyPrefix is the first 8 characters of the key, human-visible.
	KeyPrefix string `gorm:"size:16;not null" json:"key_prefix"`

	// KeyHash is the SHA-256 hex digest of the full key.
	KeyHash string `gorm:"uniqueIndex;size:64;not null" json:"-"`

	// KeyEncrypted is the base64 AES-GCM ciphertext of the plaintext
	// key. Empty when no encryption key is configured.
	KeyEncrypted string `gorm:"size:512" json:"-"`

	// Scopes is the set of permission strings (e.g. activities:write).
	// Checks are exact membership tests, no hierarchy or wildcards.
	Scopes datatypes.JSONSlice[string] `gorm:"type:json" json:"scopes"`

	IsActive bool `gorm:"default:true" json:"is_active"`

	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// RateLimitPerMinute overrides the global default when > 0.
	RateLimitPerMinute int `gorm:"not null;default:0" json:"rate_limit_per_minute"`

	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}

// APIRequestLog records one API-key-authenticated HTTP call. Append-only,
// written unconditionally (success or failure) for observability.
type APIRequestLog struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`

	APIKeyID   uint   `gorm:"index;not null" json:"api_key_id"`
	Endpoint   string `gorm:"size:255;not null" json:"endpoint"`
	Method     string `gorm:"size:16;not null" json:"method"`
	StatusCode int    `gorm:"not null" json:"status_code"`
	DurationMs int64  `gorm:"not null" json:"duration_ms"`
	RemoteIP   string `gorm:"size:64" json:"remote_ip"`
	ErrorText  string `gorm:"size:1024" json:"error_text,omitempty"`
}

// RequestLogBucket stores pre-aggregated hourly metrics per API key for
// fast error-rate and latency-percentile reporting. Filled by the
// aggregation worker.
type RequestLogBucket struct {
	ID uint `gorm:"primaryKey"`

	APIKeyID    uint      `gorm:"uniqueIndex:idx_request_log_bucket,priority:1;not null"`
	BucketStart time.Time `gorm:"uniqueIndex:idx_request_log_bucket,priority:2;not null"` // start of the hour (UTC)

	TotalCount    int64 `gorm:"not null"`
	ErrorCount    int64 `gorm:"not null"` // requests with status >= 400
	DurationP50Ms int64 `gorm:"not null"`
	DurationP95Ms int64 `gorm:"not null"`
	DurationP99Ms int64 `gorm:"not null"`
}

// RateBucket is a per-key fixed-window request counter. One row per
// (key, minute window), incremented atomically by the store so
// concurrent replicas share the same budget.
type RateBucket struct {
	ID uint `gorm:"primaryKey"`

	APIKeyID    uint      `gorm:"uniqueIndex:idx_rate_bucket,priority:1;not null"`
	WindowStart time.Time `gorm:"uniqueIndex:idx_rate_bucket,priority:2;not null"`
	Count       int64     `gorm:"not null"`
}

// Sale is a CRM user. The bootstrap admin (from env) is created as a
// row in this table on startup.
type Sale struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// UserID is the external auth identity (UUID string).
	UserID string `gorm:"uniqueIndex;size:64;not null" json:"user_id"`

	FirstName string `gorm:"size:128" json:"first_name"`
	LastName  string `gorm:"size:128" json:"last_name"`
	Email     string `gorm:"uniqueIndex;size:255;not null" json:"email"`
	Avatar    string `gorm:"size:512" json:"avatar,omitempty"`

	Administrator bool `gorm:"default:false" json:"administrator"`
	Disabled      bool `gorm:"default:false" json:"disabled"`

	// PasswordHash is set for the bootstrap admin only; regular users
	// authenticate through the passwordless (OTP) flow.
	PasswordHash string `gorm:"size:255" json:"-"`
}

// Task is a CRM task linked to at most one contact, company or deal.
type Task struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Text string `gorm:"size:2048" json:"text"`
	Type string `gorm:"size:64" json:"type,omitempty"`

	ContactID *uint `gorm:"index" json:"contact_id,omitempty"`
	CompanyID *uint `gorm:"index" json:"company_id,omitempty"`
	DealID    *uint `gorm:"index" json:"deal_id,omitempty"`

	Status   string     `gorm:"size:32;index" json:"status,omitempty"`
	DueDate  *time.Time `json:"due_date,omitempty"`
	DoneDate *time.Time `json:"done_date,omitempty"`

	SalesID uint `gorm:"index;not null" json:"sales_id"`
}

// ContactNote, CompanyNote, DealNote and TaskNote are the type-matched
// notes tables behind POST /v1/activities. Attachments is an array of
// {src, title, type} referencing uploaded blobs.
type ContactNote struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`

	ContactID *uint  `gorm:"index" json:"contact_id,omitempty"`
	Text      string `gorm:"size:8192" json:"text"`
	Status    string `gorm:"size:32" json:"status,omitempty"`
	Date      *time.Time `json:"date,omitempty"`

	Attachments datatypes.JSON `gorm:"type:json" json:"attachments,omitempty"`

	SalesID uint `gorm:"index;not null" json:"sales_id"`
}

type CompanyNote struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`

	CompanyID *uint  `gorm:"index" json:"company_id,omitempty"`
	Text      string `gorm:"size:8192" json:"text"`
	Date      *time.Time `json:"date,omitempty"`

	Attachments datatypes.JSON `gorm:"type:json" json:"attachments,omitempty"`

	SalesID uint `gorm:"index;not null" json:"sales_id"`
}

type DealNote struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`

	DealID *uint  `gorm:"index" json:"deal_id,omitempty"`
	Text   string `gorm:"size:8192" json:"text"`
	Date   *time.Time `json:"date,omitempty"`

	Attachments datatypes.JSON `gorm:"type:json" json:"attachments,omitempty"`

	SalesID uint `gorm:"index;not null" json:"sales_id"`
}

type TaskNote struct {
	ID uint `gorm:"primaryKey" json:"id"`

	CreatedAt time.Time `json:"created_at"`

	TaskID *uint  `gorm:"index" json:"task_id,omitempty"`
	Text   string `gorm:"size:8192" json:"text"`
	Date   *time.Time `json:"date,omitempty"`

	Attachments datatypes.JSON `gorm:"type:json" json:"attachments,omitempty"`

	SalesID uint `gorm:"index;not null" json:"sales_id"`
}
