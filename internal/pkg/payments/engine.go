package payments

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/credits"
)

// Notifier dispatches a user-facing notification. Dispatch is fire and
// forget from the engine's perspective; failures must never affect the
// financial outcome of reconciliation.
type Notifier interface {
	Notify(eventType string, userID uint, payload map[string]interface{})
}

// Engine is the reconciliation orchestrator: claim, ledger mutation, order
// materialization, notification. Once the ledger write lands the unit of
// work is no longer cancellable; only the side-effect steps may fail and be
// re-driven.
type Engine struct {
	registry *Registry
	credits  *credits.Service
	orders   repository.OrderRepository
	users    repository.UserRepository
	notifier Notifier
}

// NewEngine wires the reconciliation engine.
func NewEngine(registry *Registry, creditsSvc *credits.Service, orders repository.OrderRepository, users repository.UserRepository, notifier Notifier) *Engine {
	return &Engine{
		registry: registry,
		credits:  creditsSvc,
		orders:   orders,
		users:    users,
		notifier: notifier,
	}
}

// Reconcile processes one validated payment notification. The returned error
// is non-nil only for transient infrastructure failures, which the gateway
// maps to a retryable response; every business outcome (applied, duplicate,
// rejected, ignored) is a Result with a nil error.
func (e *Engine) Reconcile(ctx context.Context, n *Notification) (*Result, error) {
	if err := n.Validate(); err != nil {
		return &Result{Status: StatusRejected, State: StateRejected, Message: err.Error()}, nil
	}

	user, err := e.users.GetByEmail(strings.ToLower(strings.TrimSpace(n.Email)))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return e.handleUnresolvedAccount(ctx, n)
		}
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	claimed, event, err := e.registry.Claim(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("claim %s/%s: %w", n.Provider, n.ExternalKey, err)
	}

	if !claimed {
		return e.handleLostClaim(ctx, n, event, user.ID)
	}

	return e.applyAndMaterialize(ctx, n, event, user.ID)
}

// handleUnresolvedAccount implements the reject-and-alert policy for payment
// sessions whose customer identity matches no local account: the event is
// still recorded (so redeliveries dedupe), closed with an error, and ops is
// alerted. The gateway acks these with success to stop provider retries.
func (e *Engine) handleUnresolvedAccount(ctx context.Context, n *Notification) (*Result, error) {
	claimed, event, err := e.registry.Claim(ctx, n)
	if err != nil {
		return nil, fmt.Errorf("claim unresolved %s/%s: %w", n.Provider, n.ExternalKey, err)
	}
	if claimed {
		if err := e.registry.Close(ctx, event.ID, "no account for "+n.Email); err != nil {
			log.Printf("payments: closing unresolved event %d failed: %v", event.ID, err)
		}
		e.notifier.Notify(models.NotificationTypeOpsAlert, 0, map[string]interface{}{
			"reason":       "unresolved_account",
			"provider":     n.Provider,
			"external_key": n.ExternalKey,
			"email":        n.Email,
		})
	}
	return &Result{
		Status:  StatusIgnored,
		State:   StateRejected,
		Message: "no account matches the payment identity",
	}, nil
}

// handleLostClaim decides what a loser of the claim race sees. Most of the
// time it is a plain duplicate delivery; when the original holder crashed
// before finalizing, exactly one caller may reclaim and complete the work.
func (e *Engine) handleLostClaim(ctx context.Context, n *Notification, event *models.PaymentEvent, userID uint) (*Result, error) {
	if event.ProcessedAt != nil {
		return &Result{
			Status:         StatusDuplicate,
			State:          StateDuplicate,
			UserID:         event.UserID,
			CreditsApplied: event.CreditsApplied,
			Message:        "notification already processed",
		}, nil
	}

	reclaimed, err := e.registry.ReclaimAbandoned(ctx, n.Provider, n.ExternalKey)
	if err != nil {
		if errors.Is(err, repository.ErrClaimNotReclaimable) {
			// Original holder is presumably still working on it.
			return &Result{
				Status:  StatusDuplicate,
				State:   StateDuplicate,
				Message: "reconciliation in progress",
			}, nil
		}
		return nil, fmt.Errorf("reclaim %s/%s: %w", n.Provider, n.ExternalKey, err)
	}

	// The lost update may or may not have reached the ledger before the
	// crash. Re-check before re-applying so recovery cannot double-credit.
	entry, err := e.credits.EntryForExternalRef(ctx, n.ExternalKey)
	if err == nil {
		log.Printf("payments: recovered finalized ledger entry for %s, completing side effects", n.ExternalKey)
		return e.completeAfterLedger(ctx, n, reclaimed, entry.UserID, entry)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("recovery ledger check for %s: %w", n.ExternalKey, err)
	}

	log.Printf("payments: reclaimed abandoned claim for %s/%s", n.Provider, n.ExternalKey)
	return e.applyAndMaterialize(ctx, n, reclaimed, userID)
}

// applyAndMaterialize runs the claimed path: ledger mutation first, then the
// idempotent side effects.
func (e *Engine) applyAndMaterialize(ctx context.Context, n *Notification, event *models.PaymentEvent, userID uint) (*Result, error) {
	entry, err := e.credits.ApplyDelta(ctx, userID, n.Credits, models.LedgerReasonPurchase, n.ExternalKey, "")
	if err != nil {
		if errors.Is(err, repository.ErrInvalidLedgerReason) || errors.Is(err, credits.ErrInsufficientBalance) {
			// Permanent: unblock future legitimate retries of this key.
			if uerr := e.registry.Unclaim(ctx, event.ID); uerr != nil {
				log.Printf("payments: unclaim of event %d failed: %v", event.ID, uerr)
			}
			return &Result{Status: StatusRejected, State: StateRejected, Message: err.Error()}, nil
		}
		// Transient: keep the claim; abandoned-claim recovery or the
		// provider's redelivery will finish the work.
		return nil, fmt.Errorf("ledger apply for %s: %w", n.ExternalKey, err)
	}

	return e.completeAfterLedger(ctx, n, event, userID, entry)
}

// completeAfterLedger materializes orders, dispatches the notification and
// finalizes the idempotency record. The ledger entry already exists; every
// step here is safe to run again.
func (e *Engine) completeAfterLedger(ctx context.Context, n *Notification, event *models.PaymentEvent, userID uint, entry *models.CreditLedgerEntry) (*Result, error) {
	created, err := e.materializeOrders(ctx, n, userID)
	if err != nil {
		// Claim stays unfinalized; recovery re-checks the ledger and
		// re-drives materialization without re-crediting.
		return nil, fmt.Errorf("materialize orders for %s: %w", n.ExternalKey, err)
	}

	e.notifier.Notify(models.NotificationTypeCreditsPurchased, userID, map[string]interface{}{
		"credits":      entry.Delta,
		"balance":      entry.BalanceAfter,
		"external_key": n.ExternalKey,
		"orders":       created,
	})

	if err := e.registry.Finalize(ctx, event.ID, userID, entry.Delta); err != nil {
		return nil, fmt.Errorf("finalize event %d: %w", event.ID, err)
	}

	return &Result{
		Status:         StatusApplied,
		State:          StateDone,
		UserID:         userID,
		CreditsApplied: entry.Delta,
		OrdersCreated:  created,
	}, nil
}

// materializeOrders creates one pending order per photo covered by the
// payment. Re-running for an already-materialized payment tops up the
// missing tail instead of duplicating: existing orders for the source ref
// are counted first.
func (e *Engine) materializeOrders(ctx context.Context, n *Notification, userID uint) (int, error) {
	if n.PhotoCount <= 0 {
		return 0, nil
	}

	existing, err := e.orders.CountBySourceRef(ctx, n.ExternalKey)
	if err != nil {
		return 0, err
	}

	created := 0
	for i := int(existing); i < n.PhotoCount; i++ {
		order := &models.StagingOrder{
			UUID:        uuid.New().String(),
			UserID:      userID,
			CreditsUsed: 1,
			Status:      models.OrderStatusPending,
			SourceRef:   n.ExternalKey,
			PhotoIndex:  i,
		}
		if err := e.orders.Create(ctx, order); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}

// VerifySession is the client-initiated verification path: an authenticated
// user asks whether their payment completed. The caller identity must match
// the identity embedded in the payment metadata; cross-identity checks fail
// with ErrUnauthorized before any reconciliation work happens.
func (e *Engine) VerifySession(ctx context.Context, user *models.User, provider ProviderClient, sessionID string) (*Result, error) {
	session, err := provider.FetchSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if !strings.EqualFold(strings.TrimSpace(session.Email), strings.TrimSpace(user.Email)) {
		return nil, ErrUnauthorized
	}
	if !session.Paid {
		return &Result{Status: StatusIgnored, State: StateReceived, Message: "payment not completed"}, nil
	}

	return e.Reconcile(ctx, &Notification{
		Provider:    session.Provider,
		ExternalKey: session.ID,
		EventType:   "checkout.session.verified",
		Email:       session.Email,
		Credits:     session.Credits,
		PhotoCount:  session.PhotoCount,
		RawPayload:  session.Raw,
	})
}
