package db

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllowRequest consumes one unit of the key's per-minute budget and
// reports whether the request may proceed. The counter is a single row
// per (key, minute window) incremented with an atomic upsert, so
// concurrent gateway replicas share one budget without cross-request
// locking.
func AllowRequest(db *gorm.DB, keyID uint, limit int, now time.Time) (bool, error) {
	window := now.UTC().Truncate(time.Minute)

	bucket := RateBucket{APIKeyID: keyID, WindowStart: window, Count: 1}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "api_key_id"}, {Name: "window_start"}},
		DoUpdates: clause.Assignments(map[string]interface{}{"count": gorm.Expr("count + 1")}),
	}).Create(&bucket).Error
	if err != nil {
		return false, err
	}

	var current RateBucket
	if err := db.Where("api_key_id = ? AND window_start = ?", keyID, window).First(&current).Error; err != nil {
		return false, err
	}

	return current.Count <= int64(limit), nil
}

// EffectiveRateLimit picks the key's own budget when set, otherwise the
// global default.
func EffectiveRateLimit(key *APIKey, defaultLimit int) int {
	if key != nil && key.RateLimitPerMinute > 0 {
		return key.RateLimitPerMinute
	}
	return defaultLimit
}
