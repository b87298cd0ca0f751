package db

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrUnknownIngestionKey is returned when no active channel owns the
// presented key. The message shown to callers never distinguishes
// unknown keys from deactivated ones.
var ErrUnknownIngestionKey = errors.New("invalid ingestion key")

// FindProviderByIngestionKey resolves an ingestion key to its active
// channel. Inactive channels fail exactly like unknown keys.
func FindProviderByIngestionKey(db *gorm.DB, ingestionKey string) (*IngestionProvider, error) {
	var provider IngestionProvider
	err := db.Where("ingestion_key = ? AND is_active = ?", ingestionKey, true).First(&provider).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUnknownIngestionKey
		}
		return nil, err
	}
	return &provider, nil
}

// TouchProvider updates the channel's last-used timestamp. Best-effort:
// the pipeline never fails a request over it.
func TouchProvider(db *gorm.DB, id uint) {
	now := time.Now()
	db.Model(&IngestionProvider{}).Where("id = ?", id).Update("last_used_at", &now)
}

// AuthToken returns the signing secret from the channel config, if any.
// Channels without one skip webhook signature verification.
func (p *IngestionProvider) AuthToken() string {
	if p == nil || p.Config == nil {
		return ""
	}
	if v, ok := p.Config["auth_token"].(string); ok {
		return v
	}
	return ""
}
