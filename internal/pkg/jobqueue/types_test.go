package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobType(t *testing.T) {
	tests := []struct {
		name     string
		jobType  JobType
		expected string
	}{
		{"Notification Dispatch", JobTypeNotificationDispatch, "notification_dispatch"},
		{"Ops Alert", JobTypeOpsAlert, "ops_alert"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.jobType))
		})
	}
}

func TestJobStatus(t *testing.T) {
	tests := []struct {
		name     string
		status   JobStatus
		expected string
	}{
		{"Pending", JobStatusPending, "pending"},
		{"Processing", JobStatusProcessing, "processing"},
		{"Completed", JobStatusCompleted, "completed"},
		{"Failed", JobStatusFailed, "failed"},
		{"Retrying", JobStatusRetrying, "retrying"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, string(tt.status))
		})
	}
}

func TestNotificationJobPayloadRoundTrip(t *testing.T) {
	payload := NotificationJobPayload{
		NotificationType: "credits_purchased",
		UserID:           42,
		Data: map[string]interface{}{
			"credits": float64(10),
			"balance": float64(12),
		},
	}

	restored, err := NotificationJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload.NotificationType, restored.NotificationType)
	assert.Equal(t, payload.UserID, restored.UserID)
	assert.Equal(t, payload.Data["credits"], restored.Data["credits"])
}

func TestOpsAlertJobPayloadRoundTrip(t *testing.T) {
	payload := OpsAlertJobPayload{
		Reason:      "unresolved_account",
		Provider:    "stripe",
		ExternalKey: "evt_123",
		Details:     map[string]interface{}{"email": "ghost@example.com"},
	}

	restored, err := OpsAlertJobPayloadFromMap(payload.ToMap())
	require.NoError(t, err)
	assert.Equal(t, payload.Reason, restored.Reason)
	assert.Equal(t, payload.Provider, restored.Provider)
	assert.Equal(t, payload.ExternalKey, restored.ExternalKey)
	assert.Equal(t, "ghost@example.com", restored.Details["email"])
}

func TestJobStateTransitions(t *testing.T) {
	job := &Job{
		Status:     JobStatusPending,
		MaxRetries: 3,
		CreatedAt:  time.Now(),
	}

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)

	job.MarkAsFailed("boom")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, 1, job.RetryCount)
	assert.True(t, job.IsRetryable())

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.Empty(t, job.ErrorMsg)
	require.NotNil(t, job.CompletedAt)
}

func TestJobIsRetryableExhausted(t *testing.T) {
	job := &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}
	assert.False(t, job.IsRetryable())
}
