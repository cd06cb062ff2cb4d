package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/internal/pkg/credits"
)

// --- in-memory repository fakes -------------------------------------------

type fakeLedger struct {
	mu       sync.Mutex
	balances map[uint]int64
	entries  []models.CreditLedgerEntry
	nextID   uint
	err      error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{balances: map[uint]int64{}}
}

func (l *fakeLedger) ApplyDelta(ctx context.Context, userID uint, delta int64, reason, externalRef, orderRef string) (*models.CreditLedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return nil, l.err
	}
	if !models.ValidLedgerReason(reason) {
		return nil, repository.ErrInvalidLedgerReason
	}
	before := l.balances[userID]
	after := before + delta
	if after < 0 {
		return nil, repository.ErrInsufficientBalance
	}
	l.nextID++
	entry := models.CreditLedgerEntry{
		ID:            l.nextID,
		UserID:        userID,
		Delta:         delta,
		Reason:        reason,
		BalanceBefore: before,
		BalanceAfter:  after,
		ExternalRef:   externalRef,
		OrderRef:      orderRef,
		CreatedAt:     time.Now(),
	}
	l.balances[userID] = after
	l.entries = append(l.entries, entry)
	return &entry, nil
}

func (l *fakeLedger) GetBalance(ctx context.Context, userID uint) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID], nil
}

func (l *fakeLedger) GetEntries(ctx context.Context, userID uint, offset, limit int) ([]models.CreditLedgerEntry, int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.CreditLedgerEntry
	for _, e := range l.entries {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out, int64(len(out)), nil
}

func (l *fakeLedger) GetEntryByExternalRef(ctx context.Context, externalRef string) (*models.CreditLedgerEntry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.entries {
		if l.entries[i].ExternalRef == externalRef {
			e := l.entries[i]
			return &e, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (l *fakeLedger) SumDeltas(ctx context.Context, userID uint) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var sum int64
	for _, e := range l.entries {
		if e.UserID == userID {
			sum += e.Delta
		}
	}
	return sum, nil
}

type fakeEvents struct {
	mu     sync.Mutex
	rows   map[string]*models.PaymentEvent
	nextID uint
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{rows: map[string]*models.PaymentEvent{}}
}

func eventKey(provider, externalKey string) string { return provider + "/" + externalKey }

func (f *fakeEvents) CreateIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := eventKey(event.Provider, event.ExternalKey)
	if existing, ok := f.rows[key]; ok {
		copied := *existing
		return false, &copied, nil
	}
	f.nextID++
	event.ID = f.nextID
	event.ClaimedAt = time.Now()
	stored := *event
	f.rows[key] = &stored
	copied := stored
	return true, &copied, nil
}

func (f *fakeEvents) Finalize(ctx context.Context, id uint, userID uint, creditsApplied int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			now := time.Now()
			row.UserID = userID
			row.CreditsApplied = creditsApplied
			row.ProcessedAt = &now
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeEvents) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range f.rows {
		if row.ID == id {
			now := time.Now()
			row.ProcessedAt = &now
			row.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

func (f *fakeEvents) DeleteUnfinalized(ctx context.Context, id uint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, row := range f.rows {
		if row.ID == id && row.ProcessedAt == nil {
			delete(f.rows, key)
			return nil
		}
	}
	return nil
}

func (f *fakeEvents) ReclaimAbandoned(ctx context.Context, provider, externalKey string, grace time.Duration) (*models.PaymentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[eventKey(provider, externalKey)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	if row.ProcessedAt != nil || row.Reclaimed || time.Since(row.ClaimedAt) < grace {
		return nil, repository.ErrClaimNotReclaimable
	}
	row.Reclaimed = true
	copied := *row
	return &copied, nil
}

func (f *fakeEvents) GetByExternalKey(ctx context.Context, provider, externalKey string) (*models.PaymentEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[eventKey(provider, externalKey)]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *row
	return &copied, nil
}

func (f *fakeEvents) List(ctx context.Context, offset, limit int) ([]models.PaymentEvent, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.PaymentEvent
	for _, row := range f.rows {
		out = append(out, *row)
	}
	return out, int64(len(out)), nil
}

type fakeOrders struct {
	mu        sync.Mutex
	orders    []models.StagingOrder
	failAfter int // fail Create once this many orders exist; -1 disables
}

func newFakeOrders() *fakeOrders { return &fakeOrders{failAfter: -1} }

func (f *fakeOrders) Create(ctx context.Context, order *models.StagingOrder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAfter >= 0 && len(f.orders) >= f.failAfter {
		return errors.New("orders table unavailable")
	}
	f.orders = append(f.orders, *order)
	return nil
}

func (f *fakeOrders) GetByUUID(ctx context.Context, uuid string) (*models.StagingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.orders {
		if f.orders[i].UUID == uuid {
			o := f.orders[i]
			return &o, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrders) GetBySourceRef(ctx context.Context, sourceRef string) ([]models.StagingOrder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.StagingOrder
	for _, o := range f.orders {
		if o.SourceRef == sourceRef {
			out = append(out, o)
		}
	}
	return out, nil
}

func (f *fakeOrders) CountBySourceRef(ctx context.Context, sourceRef string) (int64, error) {
	out, _ := f.GetBySourceRef(ctx, sourceRef)
	return int64(len(out)), nil
}

func (f *fakeOrders) GetByUserID(ctx context.Context, userID uint, offset, limit int) ([]models.StagingOrder, error) {
	return nil, nil
}

func (f *fakeOrders) UpdateStatus(ctx context.Context, uuid string, from, to string) error {
	return nil
}

type fakeUsers struct {
	byEmail map[string]*models.User
}

func newFakeUsers(users ...*models.User) *fakeUsers {
	f := &fakeUsers{byEmail: map[string]*models.User{}}
	for _, u := range users {
		f.byEmail[u.Email] = u
	}
	return f
}

func (f *fakeUsers) Create(user *models.User) error          { return nil }
func (f *fakeUsers) Update(user *models.User) error          { return nil }
func (f *fakeUsers) Delete(id uint) error                    { return nil }
func (f *fakeUsers) Count() (int64, error)                   { return int64(len(f.byEmail)), nil }
func (f *fakeUsers) List(offset, limit int) ([]models.User, error) {
	return nil, nil
}

func (f *fakeUsers) GetByID(id uint) (*models.User, error) {
	for _, u := range f.byEmail {
		if u.ID == id {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsers) GetByEmail(email string) (*models.User, error) {
	if u, ok := f.byEmail[email]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsers) GetByActivationToken(token string) (*models.User, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeUsers) GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error) {
	return nil, nil, gorm.ErrRecordNotFound
}

type notifyCall struct {
	EventType string
	UserID    uint
	Payload   map[string]interface{}
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
}

func (f *fakeNotifier) Notify(eventType string, userID uint, payload map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, notifyCall{EventType: eventType, UserID: userID, Payload: payload})
}

func (f *fakeNotifier) byType(eventType string) []notifyCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notifyCall
	for _, c := range f.calls {
		if c.EventType == eventType {
			out = append(out, c)
		}
	}
	return out
}

type fakeProvider struct {
	sessions map[string]*Session
}

func (f *fakeProvider) FetchSession(ctx context.Context, sessionID string) (*Session, error) {
	if s, ok := f.sessions[sessionID]; ok {
		return s, nil
	}
	return nil, ErrSessionNotFound
}

// --- harness ---------------------------------------------------------------

type engineFixture struct {
	engine   *Engine
	ledger   *fakeLedger
	events   *fakeEvents
	orders   *fakeOrders
	users    *fakeUsers
	notifier *fakeNotifier
}

func newEngineFixture(grace time.Duration, users ...*models.User) *engineFixture {
	fx := &engineFixture{
		ledger:   newFakeLedger(),
		events:   newFakeEvents(),
		orders:   newFakeOrders(),
		users:    newFakeUsers(users...),
		notifier: &fakeNotifier{},
	}
	registry := NewRegistry(fx.events, grace)
	fx.engine = NewEngine(registry, credits.NewService(fx.ledger), fx.orders, fx.users, fx.notifier)
	return fx
}

func testUser() *models.User {
	return &models.User{ID: 42, Email: "buyer@example.com"}
}

func testNotification() *Notification {
	return &Notification{
		Provider:          models.PaymentProviderStripe,
		ExternalKey:       "cs_test_abc",
		EventType:         "checkout.session.completed",
		Email:             "buyer@example.com",
		Credits:           10,
		PhotoCount:        3,
		RawPayload:        []byte(`{"id":"cs_test_abc"}`),
		SignatureVerified: true,
	}
}

// --- tests -----------------------------------------------------------------

func TestReconcileAppliesCreditsAndMaterializesOrders(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())
	ctx := context.Background()

	result, err := fx.engine.Reconcile(ctx, testNotification())
	require.NoError(t, err)

	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, StateDone, result.State)
	assert.Equal(t, uint(42), result.UserID)
	assert.Equal(t, int64(10), result.CreditsApplied)
	assert.Equal(t, 3, result.OrdersCreated)

	balance, _ := fx.ledger.GetBalance(ctx, 42)
	assert.Equal(t, int64(10), balance)

	event, err := fx.events.GetByExternalKey(ctx, models.PaymentProviderStripe, "cs_test_abc")
	require.NoError(t, err)
	assert.True(t, event.Finalized())
	assert.Equal(t, int64(10), event.CreditsApplied)

	purchases := fx.notifier.byType(models.NotificationTypeCreditsPurchased)
	require.Len(t, purchases, 1)
	assert.Equal(t, uint(42), purchases[0].UserID)
}

func TestReconcileRedeliveryIsDuplicate(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())
	ctx := context.Background()

	first, err := fx.engine.Reconcile(ctx, testNotification())
	require.NoError(t, err)
	require.Equal(t, StatusApplied, first.Status)

	second, err := fx.engine.Reconcile(ctx, testNotification())
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, second.Status)
	assert.Equal(t, StateDuplicate, second.State)
	assert.Equal(t, uint(42), second.UserID)
	assert.Equal(t, int64(10), second.CreditsApplied)

	// The redelivery must not touch money or side effects.
	balance, _ := fx.ledger.GetBalance(ctx, 42)
	assert.Equal(t, int64(10), balance)
	count, _ := fx.orders.CountBySourceRef(ctx, "cs_test_abc")
	assert.Equal(t, int64(3), count)
	assert.Len(t, fx.notifier.byType(models.NotificationTypeCreditsPurchased), 1)
}

func TestReconcileConcurrentDeliveriesCreditOnce(t *testing.T) {
	fx := newEngineFixture(time.Minute, testUser())

	const deliveries = 8
	results := make([]*Result, deliveries)
	errs := make([]error, deliveries)

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = fx.engine.Reconcile(context.Background(), testNotification())
		}(i)
	}
	close(start)
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		switch results[i].Status {
		case StatusApplied:
			applied++
		case StatusDuplicate:
		default:
			t.Fatalf("delivery %d got unexpected status %q", i, results[i].Status)
		}
	}
	assert.Equal(t, 1, applied)

	// One claim, one ledger entry, one set of orders, one notification.
	balance, _ := fx.ledger.GetBalance(context.Background(), 42)
	assert.Equal(t, int64(10), balance)
	assert.Len(t, fx.ledger.entries, 1)
	count, _ := fx.orders.CountBySourceRef(context.Background(), "cs_test_abc")
	assert.Equal(t, int64(3), count)
	assert.Len(t, fx.notifier.byType(models.NotificationTypeCreditsPurchased), 1)
}

func TestReconcileUnresolvedAccountIsIgnoredAndAlerted(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace) // no users at all
	ctx := context.Background()

	result, err := fx.engine.Reconcile(ctx, testNotification())
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, result.Status)
	assert.Equal(t, StateRejected, result.State)

	// Event is recorded and closed so redeliveries dedupe.
	event, err := fx.events.GetByExternalKey(ctx, models.PaymentProviderStripe, "cs_test_abc")
	require.NoError(t, err)
	require.NotNil(t, event.ProcessedAt)
	assert.Contains(t, event.ProcessingError, "buyer@example.com")

	alerts := fx.notifier.byType(models.NotificationTypeOpsAlert)
	require.Len(t, alerts, 1)
	assert.Equal(t, "unresolved_account", alerts[0].Payload["reason"])

	// A redelivery loses the claim and must not alert twice.
	again, err := fx.engine.Reconcile(ctx, testNotification())
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, again.Status)
	assert.Len(t, fx.notifier.byType(models.NotificationTypeOpsAlert), 1)
}

func TestReconcileRejectsInvalidNotification(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())

	n := testNotification()
	n.Credits = 0

	result, err := fx.engine.Reconcile(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, result.Status)
	assert.Equal(t, StateRejected, result.State)

	// Nothing was claimed or written.
	_, err = fx.events.GetByExternalKey(context.Background(), n.Provider, n.ExternalKey)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	assert.Empty(t, fx.ledger.entries)
}

func TestReconcileFreshClaimHeldElsewhereIsDuplicate(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())
	ctx := context.Background()
	n := testNotification()

	// Another worker holds a fresh, unfinalized claim.
	claimed, _, err := fx.events.CreateIfNotExists(ctx, &models.PaymentEvent{
		Provider:    n.Provider,
		ExternalKey: n.ExternalKey,
		EventType:   n.EventType,
	})
	require.NoError(t, err)
	require.True(t, claimed)

	result, err := fx.engine.Reconcile(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, result.Status)
	assert.Contains(t, result.Message, "in progress")

	balance, _ := fx.ledger.GetBalance(ctx, 42)
	assert.Equal(t, int64(0), balance)
}

func TestReconcileReclaimsAbandonedClaimWithoutLedgerEntry(t *testing.T) {
	fx := newEngineFixture(time.Minute, testUser())
	ctx := context.Background()
	n := testNotification()

	// A worker claimed, then crashed before the ledger write.
	_, event, err := fx.events.CreateIfNotExists(ctx, &models.PaymentEvent{
		Provider:    n.Provider,
		ExternalKey: n.ExternalKey,
		EventType:   n.EventType,
	})
	require.NoError(t, err)
	fx.events.rows[eventKey(n.Provider, n.ExternalKey)].ClaimedAt = time.Now().Add(-5 * time.Minute)

	result, err := fx.engine.Reconcile(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, int64(10), result.CreditsApplied)
	assert.Equal(t, 3, result.OrdersCreated)

	balance, _ := fx.ledger.GetBalance(ctx, 42)
	assert.Equal(t, int64(10), balance)

	stored, err := fx.events.GetByExternalKey(ctx, n.Provider, n.ExternalKey)
	require.NoError(t, err)
	assert.Equal(t, event.ID, stored.ID)
	assert.True(t, stored.Finalized())
	assert.True(t, stored.Reclaimed)
}

func TestReconcileReclaimAfterLedgerWriteDoesNotDoubleCredit(t *testing.T) {
	fx := newEngineFixture(time.Minute, testUser())
	ctx := context.Background()
	n := testNotification()

	// Crash happened after the ledger write but before finalize.
	_, _, err := fx.events.CreateIfNotExists(ctx, &models.PaymentEvent{
		Provider:    n.Provider,
		ExternalKey: n.ExternalKey,
		EventType:   n.EventType,
	})
	require.NoError(t, err)
	fx.events.rows[eventKey(n.Provider, n.ExternalKey)].ClaimedAt = time.Now().Add(-5 * time.Minute)
	_, err = fx.ledger.ApplyDelta(ctx, 42, 10, models.LedgerReasonPurchase, n.ExternalKey, "")
	require.NoError(t, err)

	result, err := fx.engine.Reconcile(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, int64(10), result.CreditsApplied)

	// Exactly one ledger entry; recovery only re-drove the side effects.
	balance, _ := fx.ledger.GetBalance(ctx, 42)
	assert.Equal(t, int64(10), balance)
	assert.Len(t, fx.ledger.entries, 1)
	count, _ := fx.orders.CountBySourceRef(ctx, n.ExternalKey)
	assert.Equal(t, int64(3), count)
}

func TestReconcileTransientLedgerFailureKeepsClaim(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())
	ctx := context.Background()
	n := testNotification()

	fx.ledger.err = errors.New("connection reset")

	_, err := fx.engine.Reconcile(ctx, n)
	require.Error(t, err)

	// The claim survives so recovery or redelivery can finish the work.
	event, gerr := fx.events.GetByExternalKey(ctx, n.Provider, n.ExternalKey)
	require.NoError(t, gerr)
	assert.Nil(t, event.ProcessedAt)
}

func TestReconcilePermanentLedgerFailureUnclaims(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())
	ctx := context.Background()
	n := testNotification()

	fx.ledger.err = repository.ErrInvalidLedgerReason

	result, err := fx.engine.Reconcile(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, result.Status)

	// The claim was released so a later legitimate retry can succeed.
	fx.ledger.err = nil
	retry, err := fx.engine.Reconcile(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, retry.Status)
}

func TestReconcileRetryAfterOrderFailureTopsUpMissingOrders(t *testing.T) {
	fx := newEngineFixture(time.Nanosecond, testUser())
	ctx := context.Background()
	n := testNotification()

	// First delivery credits the ledger but dies creating the second order.
	fx.orders.failAfter = 1
	_, err := fx.engine.Reconcile(ctx, n)
	require.Error(t, err)

	balance, _ := fx.ledger.GetBalance(ctx, 42)
	require.Equal(t, int64(10), balance)
	count, _ := fx.orders.CountBySourceRef(ctx, n.ExternalKey)
	require.Equal(t, int64(1), count)

	// The provider redelivers; recovery creates only the missing tail.
	fx.orders.failAfter = -1
	result, err := fx.engine.Reconcile(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, 2, result.OrdersCreated)

	balance, _ = fx.ledger.GetBalance(ctx, 42)
	assert.Equal(t, int64(10), balance)
	count, _ = fx.orders.CountBySourceRef(ctx, n.ExternalKey)
	assert.Equal(t, int64(3), count)
}

func TestVerifySessionRejectsForeignIdentity(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())
	provider := &fakeProvider{sessions: map[string]*Session{
		"cs_1": {ID: "cs_1", Provider: "stripe", Email: "someone-else@example.com", Credits: 10, Paid: true},
	}}

	_, err := fx.engine.VerifySession(context.Background(), testUser(), provider, "cs_1")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestVerifySessionUnpaidIsIgnored(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())
	provider := &fakeProvider{sessions: map[string]*Session{
		"cs_1": {ID: "cs_1", Provider: "stripe", Email: "buyer@example.com", Credits: 10, Paid: false},
	}}

	result, err := fx.engine.VerifySession(context.Background(), testUser(), provider, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, StatusIgnored, result.Status)
	assert.Equal(t, StateReceived, result.State)

	balance, _ := fx.ledger.GetBalance(context.Background(), 42)
	assert.Equal(t, int64(0), balance)
}

func TestVerifySessionPaidReconciles(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())
	provider := &fakeProvider{sessions: map[string]*Session{
		"cs_1": {ID: "cs_1", Provider: "stripe", Email: "Buyer@Example.com", Credits: 10, PhotoCount: 2, Paid: true, Raw: []byte(`{"id":"cs_1"}`)},
	}}

	result, err := fx.engine.VerifySession(context.Background(), testUser(), provider, "cs_1")
	require.NoError(t, err)
	assert.Equal(t, StatusApplied, result.Status)
	assert.Equal(t, int64(10), result.CreditsApplied)
	assert.Equal(t, 2, result.OrdersCreated)

	// Verification and a later webhook for the same session dedupe.
	webhook, err := fx.engine.Reconcile(context.Background(), &Notification{
		Provider:    "stripe",
		ExternalKey: "cs_1",
		EventType:   "checkout.session.completed",
		Email:       "buyer@example.com",
		Credits:     10,
		PhotoCount:  2,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusDuplicate, webhook.Status)
}

func TestClaimRecordsSignatureProvenance(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())
	ctx := context.Background()

	// Webhook path: the gateway verified the provider signature.
	_, err := fx.engine.Reconcile(ctx, testNotification())
	require.NoError(t, err)
	event, err := fx.events.GetByExternalKey(ctx, models.PaymentProviderStripe, "cs_test_abc")
	require.NoError(t, err)
	assert.True(t, event.SignatureValid)

	// Verification path: the session is fetched from the provider and no
	// signature is ever presented, so the audit field must stay false.
	provider := &fakeProvider{sessions: map[string]*Session{
		"cs_verify": {ID: "cs_verify", Provider: "stripe", Email: "buyer@example.com", Credits: 5, Paid: true},
	}}
	_, err = fx.engine.VerifySession(ctx, testUser(), provider, "cs_verify")
	require.NoError(t, err)
	event, err = fx.events.GetByExternalKey(ctx, "stripe", "cs_verify")
	require.NoError(t, err)
	assert.False(t, event.SignatureValid)
}

func TestVerifySessionUnknownSession(t *testing.T) {
	fx := newEngineFixture(DefaultReclaimGrace, testUser())
	provider := &fakeProvider{sessions: map[string]*Session{}}

	_, err := fx.engine.VerifySession(context.Background(), testUser(), provider, "cs_missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
