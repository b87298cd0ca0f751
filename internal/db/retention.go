package db

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// runRetentionOnce performs a single pass of retention cleanup: request
// log rows older than the retention horizon and rate-limit windows that
// can no longer influence a decision.
func runRetentionOnce(db *gorm.DB, retentionDays int) error {
	now := time.Now()

	horizon := now.AddDate(0, 0, -retentionDays)
	if err := db.Where("created_at <= ?", horizon).Delete(&APIRequestLog{}).Error; err != nil {
		return err
	}

	if err := db.Where("window_start <= ?", now.Add(-2*time.Minute)).Delete(&RateBucket{}).Error; err != nil {
		return err
	}

	return nil
}

// StartRetentionWorker launches a background goroutine that runs the
// retention cleanup once at startup and then once per day.
func StartRetentionWorker(db *gorm.DB, retentionDays int) {
	go func() {
		if err := runRetentionOnce(db, retentionDays); err != nil {
			log.Printf("retention cleanup error (startup): %v", err)
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := runRetentionOnce(db, retentionDays); err != nil {
				log.Printf("retention cleanup error: %v", err)
			}
		}
	}()
}
