package payments

import (
	"context"
	"time"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
)

// DefaultReclaimGrace is how long a claim may sit without a finalize before
// it counts as abandoned (crash between claim and ledger write).
const DefaultReclaimGrace = 2 * time.Minute

// Registry wraps the payment event repository with claim semantics. Claim is
// the only duplicate gate in the system: a single conditional insert, never
// a read followed by a write.
type Registry struct {
	events repository.PaymentEventRepository
	grace  time.Duration
}

// NewRegistry creates an idempotency registry.
func NewRegistry(events repository.PaymentEventRepository, grace time.Duration) *Registry {
	if grace <= 0 {
		grace = DefaultReclaimGrace
	}
	return &Registry{events: events, grace: grace}
}

// Claim atomically registers an external key. Exactly one caller per
// (provider, external key) pair observes claimed=true; everyone else,
// including concurrent racers and true duplicates, gets claimed=false plus
// the stored row.
func (r *Registry) Claim(ctx context.Context, n *Notification) (bool, *models.PaymentEvent, error) {
	event := &models.PaymentEvent{
		Provider:       n.Provider,
		ExternalKey:    n.ExternalKey,
		EventType:      n.EventType,
		PayloadJSON:    string(n.RawPayload),
		SignatureValid: n.SignatureVerified,
	}
	return r.events.CreateIfNotExists(ctx, event)
}

// Finalize fills in the audit fields after the ledger write succeeded.
func (r *Registry) Finalize(ctx context.Context, eventID uint, userID uint, creditsApplied int64) error {
	return r.events.Finalize(ctx, eventID, userID, creditsApplied)
}

// Close marks an event processed without applying credits.
func (r *Registry) Close(ctx context.Context, eventID uint, processingError string) error {
	return r.events.MarkProcessed(ctx, eventID, processingError)
}

// Unclaim removes an unfinalized claim after a permanent failure so a later
// legitimate retry of the same key can claim again.
func (r *Registry) Unclaim(ctx context.Context, eventID uint) error {
	return r.events.DeleteUnfinalized(ctx, eventID)
}

// ReclaimAbandoned attempts the single bounded recovery retry for a claim
// whose holder never finalized. Returns ErrClaimNotReclaimable (via the
// repository) when the claim is still fresh or was already reclaimed.
func (r *Registry) ReclaimAbandoned(ctx context.Context, provider, externalKey string) (*models.PaymentEvent, error) {
	return r.events.ReclaimAbandoned(ctx, provider, externalKey, r.grace)
}

// Lookup returns the stored idempotency record for an external key.
func (r *Registry) Lookup(ctx context.Context, provider, externalKey string) (*models.PaymentEvent, error) {
	return r.events.GetByExternalKey(ctx, provider, externalKey)
}
