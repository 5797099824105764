package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	"github.com/angelmondragon/storefront-backend/api/validators"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// NextCursorHeader carries the keyset cursor for the next admin page.
const NextCursorHeader = "X-Next-Cursor"

type adminOrders interface {
	ListOrders(ctx context.Context, filters orders.ListFilters) (*orders.ListResult, error)
	MarkFulfilled(ctx context.Context, input orders.FulfillInput) (*models.Order, error)
	MarkRefunded(ctx context.Context, input orders.RefundInput) (*models.Order, error)
}

type fulfillRequest struct {
	Carrier        string `json:"carrier" validate:"max=64"`
	TrackingNumber string `json:"trackingNumber" validate:"max=128"`
}

type refundRequest struct {
	Amount int64 `json:"amount" validate:"min=0"`
}

// AdminListOrders returns orders newest first, optionally filtered by status.
func AdminListOrders(svc adminOrders, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		result, err := svc.ListOrders(ctx, orders.ListFilters{
			Status: strings.TrimSpace(r.URL.Query().Get("status")),
			Pagination: pagination.Params{
				Limit:  limit,
				Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
			},
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		if result.NextCursor != "" {
			w.Header().Set(NextCursorHeader, result.NextCursor)
		}
		responses.WriteSuccess(ctx, w, orders.ToDTOs(result.Orders))
	}
}

func AdminFulfillOrder(svc adminOrders, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body fulfillRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.MarkFulfilled(ctx, orders.FulfillInput{
			OrderID:        orderID,
			Carrier:        validators.SanitizeString(body.Carrier, 64),
			TrackingNumber: validators.SanitizeString(body.TrackingNumber, 128),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(ctx, w, orders.ToDTO(*order))
	}
}

// AdminRefundOrder refunds amount minor units; omitting amount refunds the
// full settled amount.
func AdminRefundOrder(svc adminOrders, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		var body refundRequest
		if err := validators.DecodeJSONBody(w, r, &body); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := svc.MarkRefunded(ctx, orders.RefundInput{OrderID: orderID, AmountCents: body.Amount})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(ctx, w, orders.ToDTO(*order))
	}
}
