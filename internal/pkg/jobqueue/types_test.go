package jobqueue

import (
	"testing"
	"time"

	"github.com/FelixWeidner/OpsForge/app/models"
)

func TestUsageRecordJobPayloadRoundTrip(t *testing.T) {
	in := UsageRecordJobPayload{
		APIKeyID:   12,
		UserID:     7,
		Endpoint:   "/api/v1/generate",
		StatusCode: 200,
		LatencyMs:  42,
		OriginIP:   "203.0.113.9",
		OccurredAt: time.Now().Unix(),
	}

	out, err := UsageRecordJobPayloadFromMap(in.ToMap())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", *out, in)
	}
}

func TestJobRetryBookkeeping(t *testing.T) {
	job := &Job{MaxRetries: 2}

	job.MarkAsFailed("boom")
	if job.Status != JobStatusFailed || job.RetryCount != 1 {
		t.Fatalf("unexpected state after failure: %+v", job)
	}
	if !job.IsRetryable() {
		t.Fatalf("first failure should be retryable")
	}

	job.MarkAsFailed("boom")
	job.MarkAsFailed("boom")
	if job.IsRetryable() {
		t.Fatalf("job past max retries must not be retryable")
	}
}

type fakeUsageRepo struct {
	records []models.APIUsage
	fail    bool
}

func (f *fakeUsageRepo) Create(record *models.APIUsage) error {
	if f.fail {
		return errTest
	}
	f.records = append(f.records, *record)
	return nil
}

func (f *fakeUsageRepo) CountByKeySince(uint, int) (int64, error) { return int64(len(f.records)), nil }

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "insert failed" }

func TestProcessUsageRecordJob(t *testing.T) {
	usage := &fakeUsageRepo{}
	q := &Queue{usage: usage}

	job := &Job{
		Type: JobTypeUsageRecord,
		Payload: UsageRecordJobPayload{
			APIKeyID: 12, UserID: 7, Endpoint: "/api/v1/generate", StatusCode: 200,
		}.ToMap(),
	}
	if err := q.processUsageRecordJob(job); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(usage.records) != 1 || usage.records[0].APIKeyID != 12 {
		t.Fatalf("expected one usage row, got %+v", usage.records)
	}
}

func TestProcessUsageRecordJob_InvalidPayload(t *testing.T) {
	q := &Queue{usage: &fakeUsageRepo{}}

	job := &Job{Type: JobTypeUsageRecord, Payload: map[string]interface{}{"user_id": 7}}
	if err := q.processUsageRecordJob(job); err == nil {
		t.Fatalf("payload without key id must fail")
	}
}

func TestProcessUsageRecordJob_RepoErrorPropagates(t *testing.T) {
	q := &Queue{usage: &fakeUsageRepo{fail: true}}

	job := &Job{
		Type:    JobTypeUsageRecord,
		Payload: UsageRecordJobPayload{APIKeyID: 1, UserID: 1}.ToMap(),
	}
	if err := q.processUsageRecordJob(job); err == nil {
		t.Fatalf("repository failure must bubble up for retry")
	}
}
