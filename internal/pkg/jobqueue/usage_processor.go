package jobqueue

import (
	"fmt"
	"time"

	"github.com/FelixWeidner/OpsForge/app/models"
)

// processUsageRecordJob persists one usage-accounting row. Failures bubble
// up so the queue's retry machinery gets another shot; usage rows are
// best-effort but not throwaway.
func (q *Queue) processUsageRecordJob(job *Job) error {
	payload, err := UsageRecordJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid usage_record payload: %w", err)
	}
	if payload.APIKeyID == 0 || payload.UserID == 0 {
		return fmt.Errorf("usage_record payload missing key or user id")
	}

	record := &models.APIUsage{
		APIKeyID:   payload.APIKeyID,
		UserID:     payload.UserID,
		Endpoint:   payload.Endpoint,
		StatusCode: payload.StatusCode,
		LatencyMs:  payload.LatencyMs,
		OriginIP:   payload.OriginIP,
	}
	if payload.OccurredAt > 0 {
		record.CreatedAt = time.Unix(payload.OccurredAt, 0)
	}

	if err := q.usage.Create(record); err != nil {
		return fmt.Errorf("usage record insert failed: %w", err)
	}
	return nil
}
