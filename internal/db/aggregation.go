package db

import (
	"log"
	"sort"
	"time"

	"gorm.io/gorm"
)

// runAggregationOnce aggregates request logs for the given hour
// (bucketStart to bucketStart+1h) into RequestLogBucket rows. Call with
// bucketStart = time in UTC truncated to hour.
func runAggregationOnce(db *gorm.DB, bucketStart time.Time) error {
	bucketEnd := bucketStart.Add(time.Hour)

	var logs []APIRequestLog
	if err := db.Where("created_at >= ? AND created_at < ?", bucketStart, bucketEnd).
		Select("api_key_id", "status_code", "duration_ms").
		Find(&logs).Error; err != nil {
		return err
	}

	// Group by key; collect status and duration_ms for percentiles.
	groups := make(map[uint][]APIRequestLog)
	for _, l := range logs {
		groups[l.APIKeyID] = append(groups[l.APIKeyID], l)
	}

	for keyID, list := range groups {
		total := int64(len(list))
		var errorCount int64
		durations := make([]int64, 0, len(list))
		for _, l := range list {
			if l.StatusCode >= 400 {
				errorCount++
			}
			durations = append(durations, l.DurationMs)
		}
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		p50 := int64(0)
		p95 := int64(0)
		p99 := int64(0)
		if n := len(durations); n > 0 {
			p50 = durations[(n*50)/100]
			p95 = durations[(n*95)/100]
			p99 = durations[(n*99)/100]
		}

		row := RequestLogBucket{
			APIKeyID:      keyID,
			BucketStart:   bucketStart,
			TotalCount:    total,
			ErrorCount:    errorCount,
			DurationP50Ms: p50,
			DurationP95Ms: p95,
			DurationP99Ms: p99,
		}
		var existing RequestLogBucket
		err := db.Where("api_key_id = ? AND bucket_start = ?", keyID, bucketStart).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			err = db.Create(&row).Error
		} else if err == nil {
			err = db.Model(&existing).Updates(map[string]interface{}{
				"total_count":     row.TotalCount,
				"error_count":     row.ErrorCount,
				"duration_p50_ms": row.DurationP50Ms,
				"duration_p95_ms": row.DurationP95Ms,
				"duration_p99_ms": row.DurationP99Ms,
			}).Error
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// StartAggregationWorker runs aggregation for the last 24 completed
// hours at startup, then once per hour. Buckets are in UTC.
func StartAggregationWorker(db *gorm.DB) {
	go func() {
		now := time.Now().UTC()
		for i := 1; i <= 24; i++ {
			bucketStart := now.Truncate(time.Hour).Add(-time.Duration(i) * time.Hour)
			if err := runAggregationOnce(db, bucketStart); err != nil {
				log.Printf("request log aggregation error (startup) for %s: %v", bucketStart.Format(time.RFC3339), err)
			}
		}

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for t := range ticker.C {
			bucketStart := t.UTC().Truncate(time.Hour).Add(-time.Hour)
			if err := runAggregationOnce(db, bucketStart); err != nil {
				log.Printf("request log aggregation error for %s: %v", bucketStart.Format(time.RFC3339), err)
			}
		}
	}()
}
