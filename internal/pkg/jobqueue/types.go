package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeUsageRecord JobType = "usage_record"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// MarkAsProcessing updates the job for processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.ProcessedAt = &now
	j.UpdatedAt = now
}

// MarkAsCompleted updates the job as completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
}

// MarkAsFailed updates the job as failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.ErrorMsg = errorMsg
	j.RetryCount++
	j.UpdatedAt = time.Now()
}

// MarkAsRetrying updates the job for a retry attempt
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}

// IsRetryable reports whether the job has retry attempts left
func (j *Job) IsRetryable() bool {
	return j.RetryCount <= j.MaxRetries
}

// UsageRecordJobPayload carries one usage-accounting record. Usage writes
// are taken off the request path: the admission gateway enqueues and
// answers, a worker persists.
type UsageRecordJobPayload struct {
	APIKeyID   uint   `json:"api_key_id"`
	UserID     uint   `json:"user_id"`
	Endpoint   string `json:"endpoint"`
	StatusCode int    `json:"status_code"`
	LatencyMs  int64  `json:"latency_ms"`
	OriginIP   string `json:"origin_ip"`
	OccurredAt int64  `json:"occurred_at"`
}

// ToMap converts the payload to a map for storage
func (p UsageRecordJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"api_key_id":  p.APIKeyID,
		"user_id":     p.UserID,
		"endpoint":    p.Endpoint,
		"status_code": p.StatusCode,
		"latency_ms":  p.LatencyMs,
		"origin_ip":   p.OriginIP,
		"occurred_at": p.OccurredAt,
	}
}

// UsageRecordJobPayloadFromMap creates a payload from a stored map
func UsageRecordJobPayloadFromMap(data map[string]interface{}) (*UsageRecordJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload UsageRecordJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}
