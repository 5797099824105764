package notifications

import (
	"context"
	"sync"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const defaultDispatchTimeout = 10 * time.Second

// Dispatcher sends order emails off the request path.
type Dispatcher struct {
	mailer  Mailer
	sender  Sender
	timeout time.Duration
	metrics *metrics.OrderMetrics
	logg    *logger.Logger
	wg      sync.WaitGroup
}

type DispatcherParams struct {
	Mailer  Mailer
	Sender  Sender
	Timeout time.Duration
	Metrics *metrics.OrderMetrics
	Logger  *logger.Logger
}

func NewDispatcher(params DispatcherParams) *Dispatcher {
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &Dispatcher{
		mailer:  params.Mailer,
		sender:  params.Sender,
		timeout: timeout,
		metrics: params.Metrics,
		logg:    params.Logger,
	}
}

// DispatchAsync renders and sends the confirmation for order in the
// background. It returns immediately; failures are logged and counted.
func (d *Dispatcher) DispatchAsync(ctx context.Context, order models.Order) {
	logCtx := d.logg.WithField(ctx, "order_id", order.ID.String())

	msg, err := ConfirmationEmail(order, d.sender)
	if err != nil {
		d.metrics.ObserveEmail(metrics.OutcomeIgnored)
		d.logg.Warn(d.logg.WithField(logCtx, "reason", err.Error()), "email.skipped")
		return
	}

	// the request context is canceled once the webhook response is written
	sendCtx := context.WithoutCancel(logCtx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		sendCtx, cancel := context.WithTimeout(sendCtx, d.timeout)
		defer cancel()

		if err := d.mailer.Send(sendCtx, msg); err != nil {
			d.metrics.ObserveEmail(metrics.OutcomeFailed)
			d.logg.Error(sendCtx, "email.send_failed", err)
			return
		}
		d.metrics.ObserveEmail(metrics.OutcomeSent)
		d.logg.Info(sendCtx, "email.sent")
	}()
}

// Wait blocks until in-flight sends finish or ctx ends.
func (d *Dispatcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
