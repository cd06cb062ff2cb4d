package repository

import (
	"context"
	"time"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"gorm.io/gorm"
)

// UserRepository defines the interface for user-related database operations
type UserRepository interface {
	Create(user *models.User) error
	GetByID(id uint) (*models.User, error)
	GetByEmail(email string) (*models.User, error)
	GetByActivationToken(token string) (*models.User, error)
	GetByAPIKeyHash(hash string) (*models.User, *models.UserSettings, error)
	Update(user *models.User) error
	Delete(id uint) error
	List(offset, limit int) ([]models.User, error)
	Count() (int64, error)
}

// LedgerRepository defines the interface for credit balance and ledger operations.
// ApplyDelta is the only writer of the balance column; all other methods are reads.
type LedgerRepository interface {
	ApplyDelta(ctx context.Context, userID uint, delta int64, reason, externalRef, orderRef string) (*models.CreditLedgerEntry, error)
	GetBalance(ctx context.Context, userID uint) (int64, error)
	GetEntries(ctx context.Context, userID uint, offset, limit int) ([]models.CreditLedgerEntry, int64, error)
	GetEntryByExternalRef(ctx context.Context, externalRef string) (*models.CreditLedgerEntry, error)
	SumDeltas(ctx context.Context, userID uint) (int64, error)
}

// PaymentEventRepository defines the interface for the idempotency registry.
type PaymentEventRepository interface {
	CreateIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error)
	Finalize(ctx context.Context, id uint, userID uint, creditsApplied int64) error
	MarkProcessed(ctx context.Context, id uint, processingError string) error
	DeleteUnfinalized(ctx context.Context, id uint) error
	ReclaimAbandoned(ctx context.Context, provider, externalKey string, grace time.Duration) (*models.PaymentEvent, error)
	GetByExternalKey(ctx context.Context, provider, externalKey string) (*models.PaymentEvent, error)
	List(ctx context.Context, offset, limit int) ([]models.PaymentEvent, int64, error)
}

// OrderRepository defines the interface for staging order operations.
type OrderRepository interface {
	Create(ctx context.Context, order *models.StagingOrder) error
	GetByUUID(ctx context.Context, uuid string) (*models.StagingOrder, error)
	GetBySourceRef(ctx context.Context, sourceRef string) ([]models.StagingOrder, error)
	CountBySourceRef(ctx context.Context, sourceRef string) (int64, error)
	GetByUserID(ctx context.Context, userID uint, offset, limit int) ([]models.StagingOrder, error)
	UpdateStatus(ctx context.Context, uuid string, from, to string) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	User         UserRepository
	Ledger       LedgerRepository
	PaymentEvent PaymentEventRepository
	Order        OrderRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		User:         NewUserRepository(db),
		Ledger:       NewLedgerRepository(db),
		PaymentEvent: NewPaymentEventRepository(db),
		Order:        NewOrderRepository(db),
	}
}
