// Package notify bridges the reconciliation engine to the background job
// queue. Dispatch is asynchronous on purpose: a slow or broken mail setup
// must never slow down or fail a webhook response.
package notify

import (
	"github.com/gofiber/fiber/v2/log"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/jobqueue"
)

// QueueNotifier enqueues notification jobs on the shared job queue. It
// implements the payments engine's Notifier interface.
type QueueNotifier struct {
	queue *jobqueue.Queue
}

// NewQueueNotifier creates a notifier backed by the given queue.
func NewQueueNotifier(queue *jobqueue.Queue) *QueueNotifier {
	return &QueueNotifier{queue: queue}
}

// Notify enqueues one notification. Failures are logged and swallowed;
// callers treat dispatch as fire and forget.
func (n *QueueNotifier) Notify(eventType string, userID uint, payload map[string]interface{}) {
	if n == nil || n.queue == nil {
		return
	}

	if eventType == models.NotificationTypeOpsAlert {
		alert := jobqueue.OpsAlertJobPayload{
			Reason:  stringField(payload, "reason"),
			Details: payload,
		}
		alert.Provider = stringField(payload, "provider")
		alert.ExternalKey = stringField(payload, "external_key")
		if _, err := n.queue.EnqueueJob(jobqueue.JobTypeOpsAlert, alert.ToMap()); err != nil {
			log.Errorf("[Notify] Failed to enqueue ops alert (%s): %v", alert.Reason, err)
		}
		return
	}

	job := jobqueue.NotificationJobPayload{
		NotificationType: eventType,
		UserID:           userID,
		Data:             payload,
	}
	if _, err := n.queue.EnqueueJob(jobqueue.JobTypeNotificationDispatch, job.ToMap()); err != nil {
		log.Errorf("[Notify] Failed to enqueue %s notification for user %d: %v", eventType, userID, err)
	}
}

func stringField(payload map[string]interface{}, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}
