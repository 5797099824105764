package sweeper

import (
	"context"
	"fmt"
	"time"
)

type staleOrderExpirer interface {
	ExpireStalePending(ctx context.Context, cutoff time.Time, limit int) (int, error)
}

// PendingExpiryJob cancels pending orders whose payment session can no longer
// complete. It backs up the checkout.session.expired webhook, which Stripe
// may never deliver.
type PendingExpiryJob struct {
	orders    staleOrderExpirer
	olderThan time.Duration
	batchSize int
	maxBatch  int
	now       func() time.Time
}

func NewPendingExpiryJob(orders staleOrderExpirer, olderThan time.Duration, batchSize int) (*PendingExpiryJob, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if olderThan <= 0 {
		return nil, fmt.Errorf("pending ttl must be positive")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive")
	}
	return &PendingExpiryJob{
		orders:    orders,
		olderThan: olderThan,
		batchSize: batchSize,
		maxBatch:  50,
		now:       time.Now,
	}, nil
}

func (j *PendingExpiryJob) Name() string { return "pending-order-expiry" }

// Run drains stale orders batch by batch, stopping after maxBatch batches so
// one cycle stays bounded.
func (j *PendingExpiryJob) Run(ctx context.Context) (int, error) {
	cutoff := j.now().UTC().Add(-j.olderThan)
	total := 0
	for i := 0; i < j.maxBatch; i++ {
		n, err := j.orders.ExpireStalePending(ctx, cutoff, j.batchSize)
		total += n
		if err != nil {
			return total, err
		}
		if n < j.batchSize {
			return total, nil
		}
	}
	return total, nil
}
