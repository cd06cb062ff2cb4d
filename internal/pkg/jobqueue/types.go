package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeNotificationDispatch JobType = "notification_dispatch"
	JobTypeOpsAlert             JobType = "ops_alert"
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

// NotificationJobPayload contains the payload for user notification jobs.
// Data carries the event-specific fields (credits, balance, order refs).
type NotificationJobPayload struct {
	NotificationType string                 `json:"notification_type"`
	UserID           uint                   `json:"user_id"`
	Data             map[string]interface{} `json:"data"`
}

// ToMap converts the payload to a map for storage
func (p NotificationJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"notification_type": p.NotificationType,
		"user_id":           p.UserID,
		"data":              p.Data,
	}
}

// FromMap creates a payload from a map
func NotificationJobPayloadFromMap(data map[string]interface{}) (*NotificationJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload NotificationJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// OpsAlertJobPayload contains the payload for operator alert jobs, raised by
// the reconciliation engine for conditions that need a human (unresolved
// payment identities, claims stuck past the recovery grace period).
type OpsAlertJobPayload struct {
	Reason      string                 `json:"reason"`
	Provider    string                 `json:"provider"`
	ExternalKey string                 `json:"external_key"`
	Details     map[string]interface{} `json:"details"`
}

// ToMap converts the payload to a map for storage
func (p OpsAlertJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"reason":       p.Reason,
		"provider":     p.Provider,
		"external_key": p.ExternalKey,
		"details":      p.Details,
	}
}

// FromMap creates a payload from a map
func OpsAlertJobPayloadFromMap(data map[string]interface{}) (*OpsAlertJobPayload, error) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}

	var payload OpsAlertJobPayload
	err = json.Unmarshal(jsonData, &payload)
	return &payload, err
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
