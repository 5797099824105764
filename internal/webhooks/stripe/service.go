package stripewebhook

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// OrderFinalizer is the part of the order service the webhook drives.
type OrderFinalizer interface {
	FinalizeOrderFromPaymentEvent(ctx context.Context, input orders.FinalizeInput) (*models.Order, bool, error)
	MarkAwaitingPayment(ctx context.Context, input orders.AwaitingPaymentInput) (*models.Order, bool, error)
	CancelUnpaidSession(ctx context.Context, sessionID string) (*models.Order, bool, error)
	RecordProcessorRefund(ctx context.Context, input orders.ProcessorRefundInput) (*models.Order, bool, error)
}

type ServiceParams struct {
	Orders OrderFinalizer
	Logger *logger.Logger
}

type Service struct {
	orders OrderFinalizer
	logg   *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "order service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{orders: params.Orders, logg: params.Logger}, nil
}

// HandleEvent applies a verified event and returns the metrics outcome.
// VALIDATION errors mark payloads that can never apply; any other error is
// worth a retry.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) (string, error) {
	if event == nil || event.Data == nil {
		return metrics.OutcomeRejected, pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted, stripe.EventTypeCheckoutSessionAsyncPaymentSucceeded:
		session, err := decodeSession(event)
		if err != nil {
			return metrics.OutcomeRejected, err
		}
		if event.Type == stripe.EventTypeCheckoutSessionCompleted &&
			session.PaymentStatus == stripe.CheckoutSessionPaymentStatusUnpaid {
			// delayed payment methods finish with async_payment_succeeded
			return s.awaitPayment(ctx, session)
		}
		return s.finalize(ctx, session)

	case stripe.EventTypeCheckoutSessionExpired, stripe.EventTypeCheckoutSessionAsyncPaymentFailed:
		session, err := decodeSession(event)
		if err != nil {
			return metrics.OutcomeRejected, err
		}
		return s.cancel(ctx, session)

	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return metrics.OutcomeRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge")
		}
		return s.refund(ctx, &charge)

	default:
		return metrics.OutcomeIgnored, nil
	}
}

func (s *Service) finalize(ctx context.Context, session *stripe.CheckoutSession) (string, error) {
	input := orders.FinalizeInput{
		SessionID:     session.ID,
		SettledCents:  session.AmountTotal,
		CustomerEmail: customerEmail(session),
	}
	if session.PaymentIntent != nil {
		input.PaymentIntentID = session.PaymentIntent.ID
	}

	order, transitioned, err := s.orders.FinalizeOrderFromPaymentEvent(ctx, input)
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.logg.Warn(s.logg.WithField(ctx, "stripe_session_id", session.ID), "stripe.webhook.order_not_found")
		return metrics.OutcomeNotFound, nil
	case err != nil:
		return metrics.OutcomeFailed, err
	case !transitioned && order != nil && order.Status == enums.OrderStatusCanceled:
		return metrics.OutcomePaidAfterCancel, nil
	case !transitioned:
		return metrics.OutcomeDuplicate, nil
	}
	return metrics.OutcomeProcessed, nil
}

func (s *Service) awaitPayment(ctx context.Context, session *stripe.CheckoutSession) (string, error) {
	input := orders.AwaitingPaymentInput{
		SessionID:     session.ID,
		CustomerEmail: customerEmail(session),
	}
	if session.PaymentIntent != nil {
		input.PaymentIntentID = session.PaymentIntent.ID
	}

	_, marked, err := s.orders.MarkAwaitingPayment(ctx, input)
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.logg.Warn(s.logg.WithField(ctx, "stripe_session_id", session.ID), "stripe.webhook.order_not_found")
		return metrics.OutcomeNotFound, nil
	case err != nil:
		return metrics.OutcomeFailed, err
	case !marked:
		return metrics.OutcomeDuplicate, nil
	}
	s.logg.Info(s.logg.WithField(ctx, "stripe_session_id", session.ID), "stripe.webhook.awaiting_async_payment")
	return metrics.OutcomeProcessed, nil
}

func (s *Service) refund(ctx context.Context, charge *stripe.Charge) (string, error) {
	if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" || charge.AmountRefunded <= 0 {
		s.logg.Warn(s.logg.WithField(ctx, "stripe_charge_id", charge.ID), "stripe.webhook.refund_without_payment_intent")
		return metrics.OutcomeIgnored, nil
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_charge_id":         charge.ID,
		"stripe_payment_intent_id": charge.PaymentIntent.ID,
	})

	_, applied, err := s.orders.RecordProcessorRefund(ctx, orders.ProcessorRefundInput{
		PaymentIntentID: charge.PaymentIntent.ID,
		RefundedCents:   charge.AmountRefunded,
	})
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		s.logg.Warn(ctx, "stripe.webhook.refund_order_not_found")
		return metrics.OutcomeNotFound, nil
	case err != nil:
		return metrics.OutcomeFailed, err
	case !applied:
		return metrics.OutcomeDuplicate, nil
	}
	return metrics.OutcomeProcessed, nil
}

func (s *Service) cancel(ctx context.Context, session *stripe.CheckoutSession) (string, error) {
	_, canceled, err := s.orders.CancelUnpaidSession(ctx, session.ID)
	switch {
	case pkgerrors.IsCode(err, pkgerrors.CodeNotFound):
		return metrics.OutcomeNotFound, nil
	case err != nil:
		return metrics.OutcomeFailed, err
	case !canceled:
		return metrics.OutcomeDuplicate, nil
	}
	s.logg.Info(s.logg.WithField(ctx, "stripe_session_id", session.ID), "stripe.webhook.order_canceled")
	return metrics.OutcomeProcessed, nil
}

func decodeSession(event *stripe.Event) (*stripe.CheckoutSession, error) {
	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode checkout session")
	}
	if strings.TrimSpace(session.ID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "checkout session id missing")
	}
	return &session, nil
}

func customerEmail(session *stripe.CheckoutSession) string {
	if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
		return session.CustomerDetails.Email
	}
	return session.CustomerEmail
}
