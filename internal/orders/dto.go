package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderDTO is the API projection of an order. Amounts are minor units.
type OrderDTO struct {
	ID                uuid.UUID         `json:"id"`
	UserID            *uuid.UUID        `json:"userId"`
	TenantID          *uuid.UUID        `json:"tenantId,omitempty"`
	Subtotal          int64             `json:"subtotal"`
	Shipping          int64             `json:"shipping"`
	Total             int64             `json:"total"`
	SettledAmount     *int64            `json:"settledAmount"`
	RefundedAmount    *int64            `json:"refundedAmount,omitempty"`
	Currency          enums.Currency    `json:"currency"`
	Status            enums.OrderStatus `json:"status"`
	StripeSessionID   string            `json:"stripeSessionId"`
	CustomerEmail     *string           `json:"customerEmail,omitempty"`
	Carrier           *string           `json:"carrier,omitempty"`
	TrackingNumber    *string           `json:"trackingNumber,omitempty"`
	PaidAt            *time.Time        `json:"paidAt,omitempty"`
	FulfilledAt       *time.Time        `json:"fulfilledAt,omitempty"`
	RefundedAt        *time.Time        `json:"refundedAt,omitempty"`
	CanceledAt        *time.Time        `json:"canceledAt,omitempty"`
	// AwaitingPaymentAt is set while a delayed payment method is settling.
	AwaitingPaymentAt *time.Time        `json:"awaitingPaymentAt,omitempty"`
	CreatedAt         time.Time         `json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// ToDTO projects a stored order onto the API shape.
func ToDTO(o models.Order) OrderDTO {
	return OrderDTO{
		ID:                o.ID,
		UserID:            o.UserID,
		TenantID:          o.TenantID,
		Subtotal:          o.SubtotalCents,
		Shipping:          o.ShippingCents,
		Total:             o.TotalCents,
		SettledAmount:     o.SettledCents,
		RefundedAmount:    o.RefundedCents,
		Currency:          o.Currency,
		Status:            o.Status,
		StripeSessionID:   o.StripeSessionID,
		CustomerEmail:     o.CustomerEmail,
		Carrier:           o.Carrier,
		TrackingNumber:    o.TrackingNumber,
		PaidAt:            o.PaidAt,
		FulfilledAt:       o.FulfilledAt,
		RefundedAt:        o.RefundedAt,
		CanceledAt:        o.CanceledAt,
		AwaitingPaymentAt: o.AwaitingPaymentAt,
		CreatedAt:         o.CreatedAt,
		UpdatedAt:         o.UpdatedAt,
	}
}

// ToDTOs maps rows in order; a nil slice yields an empty one.
func ToDTOs(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, len(rows))
	for i, row := range rows {
		out[i] = ToDTO(row)
	}
	return out
}
