package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Order is one checkout attempt, keyed one-to-one by its payment session.
type Order struct {
	ID                    uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	UserID                *uuid.UUID        `gorm:"column:user_id;type:uuid"`
	TenantID              *uuid.UUID        `gorm:"column:tenant_id;type:uuid"`
	SubtotalCents         int64             `gorm:"column:subtotal_cents;not null"`
	ShippingCents         int64             `gorm:"column:shipping_cents;not null"`
	TotalCents            int64             `gorm:"column:total_cents;not null"`
	SettledCents          *int64            `gorm:"column:settled_cents"`
	RefundedCents         *int64            `gorm:"column:refunded_cents"`
	Currency              enums.Currency    `gorm:"column:currency;type:text;not null;default:'usd'"`
	Status                enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	StripeSessionID       string            `gorm:"column:stripe_session_id;not null;uniqueIndex"`
	StripePaymentIntentID *string           `gorm:"column:stripe_payment_intent_id"`
	CustomerEmail         *string           `gorm:"column:customer_email"`
	Carrier               *string           `gorm:"column:carrier"`
	TrackingNumber        *string           `gorm:"column:tracking_number"`
	PaidAt                *time.Time        `gorm:"column:paid_at"`
	FulfilledAt           *time.Time        `gorm:"column:fulfilled_at"`
	RefundedAt            *time.Time        `gorm:"column:refunded_at"`
	CanceledAt            *time.Time        `gorm:"column:canceled_at"`
	// AwaitingPaymentAt marks a completed checkout whose delayed payment has not settled.
	AwaitingPaymentAt     *time.Time        `gorm:"column:awaiting_payment_at"`
	CreatedAt             time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt             time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = enums.OrderStatusPending
	}
	if o.Currency == "" {
		o.Currency = enums.CurrencyUSD
	}
	return nil
}

func (o Order) CursorKey() pagination.Cursor {
	return pagination.Cursor{CreatedAt: o.CreatedAt, ID: o.ID}
}
