package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gofiber/fiber/v2/log"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/database"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/env"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/mail"
)

// processNotificationJob persists an in-app notification and, if the user
// opted in, sends the matching email. The notification row is the durable
// record; email failure fails the job so the queue retries it.
func (q *Queue) processNotificationJob(ctx context.Context, job *Job) error {
	payload, err := NotificationJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid notification payload: %w", err)
	}
	if payload.UserID == 0 {
		return fmt.Errorf("notification payload missing user_id")
	}

	db := database.GetDB()
	if db == nil {
		return fmt.Errorf("database unavailable")
	}

	var user models.User
	if err := db.WithContext(ctx).First(&user, payload.UserID).Error; err != nil {
		return fmt.Errorf("load user %d: %w", payload.UserID, err)
	}

	subject, body := renderNotification(payload.NotificationType, payload.Data)

	content, _ := json.Marshal(payload.Data)
	if err := models.CreateNotification(db, payload.UserID, payload.NotificationType, string(content), 0); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	settings, err := models.GetOrCreateUserSettings(db, payload.UserID)
	if err != nil {
		return fmt.Errorf("load user settings: %w", err)
	}
	if !settings.NotifyByEmail {
		return nil
	}

	if err := mail.SendMail(user.Email, subject, body); err != nil {
		return fmt.Errorf("send notification mail to user %d: %w", payload.UserID, err)
	}
	return nil
}

// processOpsAlertJob delivers operator alerts to the configured ops mailbox.
// Alerts are logged unconditionally so they survive a missing mail setup.
func (q *Queue) processOpsAlertJob(_ context.Context, job *Job) error {
	payload, err := OpsAlertJobPayloadFromMap(job.Payload)
	if err != nil {
		return fmt.Errorf("invalid ops alert payload: %w", err)
	}

	log.Warnf("[OpsAlert] reason=%s provider=%s external_key=%s details=%v",
		payload.Reason, payload.Provider, payload.ExternalKey, payload.Details)

	opsEmail := env.GetEnv("OPS_ALERT_EMAIL", "")
	if opsEmail == "" {
		// Logged above; nothing more to do without a mailbox.
		return nil
	}

	subject := fmt.Sprintf("[ClickStage] payment alert: %s", payload.Reason)
	body := fmt.Sprintf(
		"<p>Reason: %s</p><p>Provider: %s</p><p>External key: %s</p><pre>%v</pre>",
		payload.Reason, payload.Provider, payload.ExternalKey, payload.Details,
	)
	if err := mail.SendMail(opsEmail, subject, body); err != nil {
		return fmt.Errorf("send ops alert mail: %w", err)
	}
	return nil
}

// renderNotification builds the user-facing subject and body for one
// notification type.
func renderNotification(notificationType string, data map[string]interface{}) (string, string) {
	switch notificationType {
	case models.NotificationTypeCreditsPurchased:
		return "Your staging credits are ready",
			fmt.Sprintf("<p>Your payment was confirmed and <strong>%v</strong> credits were added to your account.</p><p>New balance: %v</p>",
				data["credits"], data["balance"])
	case models.NotificationTypeOrderCreated:
		return "Your staging order was created",
			fmt.Sprintf("<p>Order <strong>%v</strong> is queued for staging.</p>", data["order_uuid"])
	case models.NotificationTypeLowCredits:
		return "You are running low on credits",
			fmt.Sprintf("<p>Only <strong>%v</strong> credits left on your account. Top up to keep staging photos.</p>", data["balance"])
	default:
		return "ClickStage notification", fmt.Sprintf("<p>%v</p>", data)
	}
}
