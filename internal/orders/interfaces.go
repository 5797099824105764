package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Repository is the persistence surface for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error)
	FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	List(ctx context.Context, query ListQuery) ([]models.Order, error)
	// ListPendingBefore returns the oldest pending orders created before cutoff,
	// skipping orders whose payment is still in flight.
	ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	// Transition applies a conditional status update and reports how many rows changed.
	Transition(ctx context.Context, t Transition) (int64, error)
}

// Transition is a single conditional UPDATE. Exactly one of OrderID or
// SessionID selects the row; From is the allowed set of current statuses.
type Transition struct {
	OrderID         uuid.UUID
	SessionID       string
	OwnerID         *uuid.UUID
	From            []enums.OrderStatus
	To              enums.OrderStatus
	// AwaitingPayment requires awaiting_payment_at present (true) or absent (false).
	AwaitingPayment *bool
	At              time.Time
	Set             map[string]any
}

type ListQuery struct {
	Status *enums.OrderStatus
	Cursor *pagination.Cursor
	Limit  int
}

// Notifier is told about orders that just became paid. Implementations must not block.
type Notifier interface {
	DispatchAsync(ctx context.Context, order models.Order)
}

// Refunder issues refunds through the payment processor.
type Refunder interface {
	Refund(ctx context.Context, paymentIntentID string, amountCents int64, idempotencyKey string) (string, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
