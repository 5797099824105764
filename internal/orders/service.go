package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/pagination"
)

// Service enforces the order lifecycle.
type Service interface {
	CreatePendingOrder(ctx context.Context, input CreatePendingOrderInput) (*models.Order, error)
	// FinalizeOrderFromPaymentEvent moves a pending order to paid. The bool is
	// true only for the call that performed the transition.
	FinalizeOrderFromPaymentEvent(ctx context.Context, input FinalizeInput) (*models.Order, bool, error)
	// MarkAwaitingPayment records that checkout completed with a delayed
	// payment method. The order stays pending but is no longer expirable.
	MarkAwaitingPayment(ctx context.Context, input AwaitingPaymentInput) (*models.Order, bool, error)
	CancelUnpaidSession(ctx context.Context, sessionID string) (*models.Order, bool, error)
	// RecordProcessorRefund applies a refund issued outside this service,
	// typically from the processor dashboard.
	RecordProcessorRefund(ctx context.Context, input ProcessorRefundInput) (*models.Order, bool, error)
	// ExpireStalePending cancels up to limit pending orders created before
	// cutoff and reports how many it moved.
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
	ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error)
	GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	CancelPending(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error)
	ListOrders(ctx context.Context, filters ListFilters) (*ListResult, error)
	MarkFulfilled(ctx context.Context, input FulfillInput) (*models.Order, error)
	MarkRefunded(ctx context.Context, input RefundInput) (*models.Order, error)
}

type CreatePendingOrderInput struct {
	OwnerID         *uuid.UUID
	TenantID        *uuid.UUID
	SubtotalCents   int64
	ShippingCents   int64
	TotalCents      int64
	StripeSessionID string
	Currency        string
}

type FinalizeInput struct {
	SessionID       string
	SettledCents    int64
	PaymentIntentID string
	CustomerEmail   string
}

type AwaitingPaymentInput struct {
	SessionID       string
	PaymentIntentID string
	CustomerEmail   string
}

// ProcessorRefundInput carries the cumulative amount refunded on a payment intent.
type ProcessorRefundInput struct {
	PaymentIntentID string
	RefundedCents   int64
}

type ListFilters struct {
	Status     string
	Pagination pagination.Params
}

type ListResult struct {
	Orders     []models.Order
	NextCursor string
}

type FulfillInput struct {
	OrderID        uuid.UUID
	Carrier        string
	TrackingNumber string
}

// RefundInput refunds AmountCents; zero means the full settled amount.
type RefundInput struct {
	OrderID     uuid.UUID
	AmountCents int64
}

type ServiceParams struct {
	Repository Repository
	TxRunner   txRunner
	Notifier   Notifier
	Refunder   Refunder
	Metrics    *metrics.OrderMetrics
	Logger     *logger.Logger
	Now        func() time.Time
}

type service struct {
	repo     Repository
	tx       txRunner
	notifier Notifier
	refunder Refunder
	metrics  *metrics.OrderMetrics
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TxRunner == nil {
		return nil, fmt.Errorf("tx runner required")
	}
	if params.Notifier == nil {
		return nil, fmt.Errorf("order notifier required")
	}
	if params.Refunder == nil {
		return nil, fmt.Errorf("refunder required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:     params.Repository,
		tx:       params.TxRunner,
		notifier: params.Notifier,
		refunder: params.Refunder,
		metrics:  params.Metrics,
		logg:     params.Logger,
		now:      func() time.Time { return now().UTC() },
	}, nil
}

func (s *service) CreatePendingOrder(ctx context.Context, input CreatePendingOrderInput) (*models.Order, error) {
	sessionID := strings.TrimSpace(input.StripeSessionID)
	if sessionID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripeSessionId is required")
	}
	if input.SubtotalCents < 0 || input.ShippingCents < 0 || input.TotalCents < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amounts must not be negative")
	}
	if input.TotalCents != input.SubtotalCents+input.ShippingCents {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "total must equal subtotal + shipping").
			WithDetails(map[string]any{
				"subtotal": input.SubtotalCents,
				"shipping": input.ShippingCents,
				"total":    input.TotalCents,
			})
	}
	currency, err := enums.ParseCurrency(input.Currency)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unsupported currency")
	}

	existing, err := s.repo.FindBySessionID(ctx, sessionID)
	switch {
	case err == nil:
		return s.existingForOwner(existing, input.OwnerID)
	case !db.IsNotFound(err):
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by session")
	}

	order := &models.Order{
		UserID:          input.OwnerID,
		TenantID:        input.TenantID,
		SubtotalCents:   input.SubtotalCents,
		ShippingCents:   input.ShippingCents,
		TotalCents:      input.TotalCents,
		Currency:        currency,
		Status:          enums.OrderStatusPending,
		StripeSessionID: sessionID,
	}
	if err := s.repo.Create(ctx, order); err != nil {
		if !db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order")
		}
		// lost the insert race for this session; hand back the winner
		winner, findErr := s.repo.FindBySessionID(ctx, sessionID)
		if findErr != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, findErr, "reload order after conflict")
		}
		return s.existingForOwner(winner, input.OwnerID)
	}

	s.metrics.IncCreated()
	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": order.ID.String(), "stripe_session_id": sessionID})
	s.logg.Info(logCtx, "pending order created")
	return order, nil
}

func (s *service) existingForOwner(order *models.Order, ownerID *uuid.UUID) (*models.Order, error) {
	if order.UserID != nil && (ownerID == nil || *order.UserID != *ownerID) {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "payment session already belongs to another order")
	}
	return order, nil
}

func (s *service) FinalizeOrderFromPaymentEvent(ctx context.Context, input FinalizeInput) (*models.Order, bool, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}
	if input.SettledCents < 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "settled amount must not be negative")
	}

	now := s.now()
	set := map[string]any{
		"settled_cents": input.SettledCents,
		"paid_at":       now,
	}
	if pi := strings.TrimSpace(input.PaymentIntentID); pi != "" {
		set["stripe_payment_intent_id"] = pi
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		set["customer_email"] = email
	}

	affected, err := s.repo.Transition(ctx, Transition{
		SessionID: sessionID,
		From:      []enums.OrderStatus{enums.OrderStatusPending},
		To:        enums.OrderStatusPaid,
		At:        now,
		Set:       set,
	})
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize order")
	}

	order, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, false, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment session")
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":          order.ID.String(),
		"stripe_session_id": sessionID,
		"status":            order.Status.String(),
	})
	if affected == 0 {
		if order.Status == enums.OrderStatusCanceled {
			// money moved for an order nobody will ship; needs a manual refund or reinstatement
			s.metrics.IncPaidAfterCancel()
			s.logg.Error(s.logg.WithFields(logCtx, map[string]any{
				"settled_cents":            input.SettledCents,
				"stripe_payment_intent_id": input.PaymentIntentID,
			}), "order.paid_after_cancel", nil)
			return order, false, nil
		}
		s.metrics.IncFinalizeNoop()
		s.logg.Info(logCtx, "order already finalized; skipping")
		return order, false, nil
	}

	if input.SettledCents != order.TotalCents {
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"settled_cents": input.SettledCents,
			"total_cents":   order.TotalCents,
		}), "settled amount differs from order total")
	}

	s.metrics.IncFinalized()
	s.logg.Info(logCtx, "order marked paid")
	s.notifier.DispatchAsync(ctx, *order)
	return order, true, nil
}

func (s *service) MarkAwaitingPayment(ctx context.Context, input AwaitingPaymentInput) (*models.Order, bool, error) {
	sessionID := strings.TrimSpace(input.SessionID)
	if sessionID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	now := s.now()
	set := map[string]any{"awaiting_payment_at": now}
	if pi := strings.TrimSpace(input.PaymentIntentID); pi != "" {
		set["stripe_payment_intent_id"] = pi
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" {
		set["customer_email"] = email
	}

	notYet := false
	affected, err := s.repo.Transition(ctx, Transition{
		SessionID:       sessionID,
		From:            []enums.OrderStatus{enums.OrderStatusPending},
		To:              enums.OrderStatusPending,
		AwaitingPayment: &notYet,
		At:              now,
		Set:             set,
	})
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order awaiting payment")
	}

	order, err := s.reloadBySession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	if affected > 0 {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_id":          order.ID.String(),
			"stripe_session_id": sessionID,
		}), "order.awaiting_payment")
	}
	return order, affected > 0, nil
}

// CancelUnpaidSession cancels a pending order whose payment session expired
// or whose delayed payment failed.
func (s *service) CancelUnpaidSession(ctx context.Context, sessionID string) (*models.Order, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "session id is required")
	}

	now := s.now()
	affected, err := s.repo.Transition(ctx, Transition{
		SessionID: sessionID,
		From:      []enums.OrderStatus{enums.OrderStatusPending},
		To:        enums.OrderStatusCanceled,
		At:        now,
		Set:       map[string]any{"canceled_at": now},
	})
	if err != nil {
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel unpaid order")
	}

	order, err := s.reloadBySession(ctx, sessionID)
	if err != nil {
		return nil, false, err
	}
	return order, affected > 0, nil
}

func (s *service) RecordProcessorRefund(ctx context.Context, input ProcessorRefundInput) (*models.Order, bool, error) {
	pi := strings.TrimSpace(input.PaymentIntentID)
	if pi == "" {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id is required")
	}
	if input.RefundedCents <= 0 {
		return nil, false, pkgerrors.New(pkgerrors.CodeValidation, "refunded amount must be positive")
	}

	var (
		order   *models.Order
		applied bool
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		current, err := repo.FindByPaymentIntentID(ctx, pi)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment intent")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order by payment intent")
		}

		now := s.now()
		t := Transition{
			OrderID: current.ID,
			To:      enums.OrderStatusRefunded,
			At:      now,
			Set:     map[string]any{"refunded_cents": input.RefundedCents, "refunded_at": now},
		}
		switch {
		case current.Status.CanTransitionTo(enums.OrderStatusRefunded):
			t.From = enums.PredecessorsOf(enums.OrderStatusRefunded)
		case current.Status == enums.OrderStatusRefunded &&
			(current.RefundedCents == nil || *current.RefundedCents < input.RefundedCents):
			// a further partial refund; the processor reports the running total
			t.From = []enums.OrderStatus{enums.OrderStatusRefunded}
		default:
			order = current
			return nil
		}

		affected, err := repo.Transition(ctx, t)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record processor refund")
		}
		applied = affected > 0

		order, err = repo.FindByID(ctx, current.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id":                 order.ID.String(),
		"stripe_payment_intent_id": pi,
		"refunded_cents":           input.RefundedCents,
		"status":                   order.Status.String(),
	})
	if applied {
		s.logg.Info(logCtx, "order.refund_reconciled")
	} else if order.Status != enums.OrderStatusRefunded {
		s.logg.Warn(logCtx, "order.refund_not_applicable")
	}
	return order, applied, nil
}

func (s *service) reloadBySession(ctx context.Context, sessionID string) (*models.Order, error) {
	order, err := s.repo.FindBySessionID(ctx, sessionID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no order for payment session")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload order")
	}
	return order, nil
}

func (s *service) ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error) {
	if limit <= 0 {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "limit must be positive")
	}
	rows, err := s.repo.ListPendingBefore(ctx, cutoff.UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}

	expired := 0
	notAwaiting := false
	for _, order := range rows {
		now := s.now()
		// a webhook may have paid the order, or reported a delayed payment,
		// since it was listed; the predicates leave it alone in that case
		affected, err := s.repo.Transition(ctx, Transition{
			OrderID:         order.ID,
			From:            []enums.OrderStatus{enums.OrderStatusPending},
			To:              enums.OrderStatusCanceled,
			AwaitingPayment: &notAwaiting,
			At:              now,
			Set:             map[string]any{"canceled_at": now},
		})
		if err != nil {
			return expired, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire stale order")
		}
		if affected > 0 {
			expired++
			s.logg.Info(s.logg.WithFields(ctx, map[string]any{
				"order_id":          order.ID.String(),
				"stripe_session_id": order.StripeSessionID,
			}), "order.expired_stale_pending")
		}
	}
	return expired, nil
}

func (s *service) ListOrdersForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	rows, err := s.repo.ListForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list user orders")
	}
	return rows, nil
}

func (s *service) GetOrderForUser(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}
	order, err := s.repo.FindForUser(ctx, orderID, userID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func (s *service) CancelPending(ctx context.Context, orderID, userID uuid.UUID) (*models.Order, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user required")
	}

	now := s.now()
	notAwaiting := false
	affected, err := s.repo.Transition(ctx, Transition{
		OrderID:         orderID,
		OwnerID:         &userID,
		From:            enums.PredecessorsOf(enums.OrderStatusCanceled),
		To:              enums.OrderStatusCanceled,
		AwaitingPayment: &notAwaiting,
		At:              now,
		Set:             map[string]any{"canceled_at": now},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
	}

	order, err := s.GetOrderForUser(ctx, orderID, userID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		if order.Status == enums.OrderStatusPending && order.AwaitingPaymentAt != nil {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment for this order is still processing").
				WithDetails(map[string]any{"status": order.Status, "target": enums.OrderStatusCanceled})
		}
		return nil, stateConflict(order, enums.OrderStatusCanceled)
	}
	return order, nil
}

func (s *service) ListOrders(ctx context.Context, filters ListFilters) (*ListResult, error) {
	query := ListQuery{Limit: pagination.LimitWithBuffer(filters.Pagination.Limit)}

	if raw := strings.TrimSpace(filters.Status); raw != "" {
		status, err := enums.ParseOrderStatus(raw)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter")
		}
		query.Status = &status
	}
	if filters.Pagination.Cursor != "" {
		cursor, err := pagination.ParseCursor(filters.Pagination.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	page, next := pagination.Trim(rows, filters.Pagination.Limit)
	return &ListResult{Orders: page, NextCursor: next}, nil
}

func (s *service) MarkFulfilled(ctx context.Context, input FulfillInput) (*models.Order, error) {
	carrier := strings.TrimSpace(input.Carrier)
	tracking := strings.TrimSpace(input.TrackingNumber)

	now := s.now()
	set := map[string]any{"fulfilled_at": now}
	if carrier != "" {
		set["carrier"] = carrier
	}
	if tracking != "" {
		set["tracking_number"] = tracking
	}

	affected, err := s.repo.Transition(ctx, Transition{
		OrderID: input.OrderID,
		From:    enums.PredecessorsOf(enums.OrderStatusFulfilled),
		To:      enums.OrderStatusFulfilled,
		At:      now,
		Set:     set,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fulfill order")
	}

	order, err := s.loadByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, stateConflict(order, enums.OrderStatusFulfilled)
	}
	s.logg.Info(s.logg.WithField(ctx, "order_id", order.ID.String()), "order fulfilled")
	return order, nil
}

func (s *service) MarkRefunded(ctx context.Context, input RefundInput) (*models.Order, error) {
	order, err := s.loadByID(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.CanTransitionTo(enums.OrderStatusRefunded) {
		return nil, stateConflict(order, enums.OrderStatusRefunded)
	}
	if order.StripePaymentIntentID == nil || *order.StripePaymentIntentID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no payment intent to refund")
	}

	settled := order.TotalCents
	if order.SettledCents != nil {
		settled = *order.SettledCents
	}
	amount := input.AmountCents
	if amount == 0 {
		amount = settled
	}
	if amount <= 0 || amount > settled {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "refund amount must be positive and not exceed the settled amount").
			WithDetails(map[string]any{"settled": settled, "requested": input.AmountCents})
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{"order_id": order.ID.String(), "refund_cents": amount})
	refundID, err := s.refunder.Refund(ctx, *order.StripePaymentIntentID, amount, "order-refund-"+order.ID.String())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "issue refund")
	}

	now := s.now()
	affected, err := s.repo.Transition(ctx, Transition{
		OrderID: order.ID,
		From:    enums.PredecessorsOf(enums.OrderStatusRefunded),
		To:      enums.OrderStatusRefunded,
		At:      now,
		Set:     map[string]any{"refunded_cents": amount, "refunded_at": now},
	})
	if err != nil {
		s.logg.Error(s.logg.WithField(logCtx, "refund_id", refundID), "refund issued but order update failed", err)
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record refund")
	}

	updated, err := s.loadByID(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		s.logg.Warn(s.logg.WithField(logCtx, "refund_id", refundID), "refund issued but order moved concurrently")
		return nil, stateConflict(updated, enums.OrderStatusRefunded)
	}
	s.logg.Info(s.logg.WithField(logCtx, "refund_id", refundID), "order refunded")
	return updated, nil
}

func (s *service) loadByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	return order, nil
}

func stateConflict(order *models.Order, target enums.OrderStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("order cannot move from %s to %s", order.Status, target)).
		WithDetails(map[string]any{"status": order.Status, "target": target})
}
