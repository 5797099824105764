package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	signatureHeader = "Stripe-Signature"
	maxPayloadBytes = int64(256 << 10)
)

type eventHandler interface {
	HandleEvent(ctx context.Context, event *stripe.Event) (string, error)
}

type eventVerifier interface {
	VerifyEvent(payload []byte, signatureHeader string) (stripe.Event, error)
}

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

// StripeWebhook verifies and dispatches checkout session events. Everything
// except a processing failure is acknowledged with 200 so Stripe stops retrying.
func StripeWebhook(svc eventHandler, verifier eventVerifier, guard eventGuard, m *metrics.OrderMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
		if err != nil {
			m.ObserveWebhook("", metrics.OutcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unreadable webhook payload"))
			return
		}

		event, err := verifier.VerifyEvent(payload, r.Header.Get(signatureHeader))
		if err != nil {
			m.ObserveWebhook("", metrics.OutcomeRejected)
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook signature"))
			return
		}

		ctx = logg.WithFields(ctx, map[string]any{
			"stripe_event_id":   event.ID,
			"stripe_event_type": string(event.Type),
		})

		seen, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			logg.Warn(logg.WithField(ctx, "reason", err.Error()), "stripe.webhook.guard_unavailable")
			seen = false
		}
		if seen {
			m.ObserveWebhook(string(event.Type), metrics.OutcomeDuplicate)
			logg.Info(ctx, "stripe.webhook.duplicate")
			responses.WriteAck(ctx, w)
			return
		}

		// The mark stays only once the event is settled; a failure or panic
		// below frees it for Stripe's retry.
		settled := false
		defer func() {
			if settled {
				return
			}
			if releaseErr := guard.Release(context.WithoutCancel(ctx), event.ID); releaseErr != nil {
				logg.Warn(logg.WithField(ctx, "reason", releaseErr.Error()), "stripe.webhook.release_failed")
			}
		}()

		outcome, err := svc.HandleEvent(ctx, &event)
		if err != nil {
			if typed := pkgerrors.As(err); typed != nil && typed.Code() == pkgerrors.CodeValidation {
				// A payload we cannot decode will not decode on retry either.
				settled = true
				m.ObserveWebhook(string(event.Type), metrics.OutcomeRejected)
				logg.Warn(logg.WithField(ctx, "reason", err.Error()), "stripe.webhook.rejected")
				responses.WriteAck(ctx, w)
				return
			}
			m.ObserveWebhook(string(event.Type), metrics.OutcomeFailed)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		settled = true
		m.ObserveWebhook(string(event.Type), outcome)
		logg.Info(logg.WithField(ctx, "outcome", outcome), "stripe.webhook.processed")
		responses.WriteAck(ctx, w)
	}
}
