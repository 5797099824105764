package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/session"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type orderCreator interface {
	CreatePendingOrder(ctx context.Context, input orders.CreatePendingOrderInput) (*models.Order, error)
}

type checkoutRequest struct {
	UserID          string `json:"userId" validate:"required,uuid"`
	Subtotal        *int64 `json:"subtotal" validate:"required,min=0"`
	Shipping        *int64 `json:"shipping" validate:"required,min=0"`
	Total           *int64 `json:"total" validate:"required,min=0"`
	StripeSessionID string `json:"stripeSessionId" validate:"required,max=255"`
	Currency        string `json:"currency,omitempty" validate:"omitempty,len=3"`
}

// Checkout records a pending order for a payment session the client created.
func Checkout(svc orderCreator, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		s := session.FromContext(ctx)
		if s == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required"))
			return
		}

		var body checkoutRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		userID, err := uuid.Parse(body.UserID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid userId"))
			return
		}
		if userID != s.UserID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeForbidden, "userId does not match the signed-in user"))
			return
		}

		order, err := svc.CreatePendingOrder(ctx, orders.CreatePendingOrderInput{
			OwnerID:         &s.UserID,
			TenantID:        s.TenantID,
			SubtotalCents:   *body.Subtotal,
			ShippingCents:   *body.Shipping,
			TotalCents:      *body.Total,
			StripeSessionID: body.StripeSessionID,
			Currency:        body.Currency,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccessStatus(ctx, w, http.StatusCreated, orders.ToDTO(*order))
	}
}
