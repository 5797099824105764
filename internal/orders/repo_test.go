package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

func TestRepositoryCreateEnforcesUniqueSession(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, &models.Order{SubtotalCents: 1, TotalCents: 1, StripeSessionID: "sess_dup"}))
	err := repo.Create(ctx, &models.Order{SubtotalCents: 1, TotalCents: 1, StripeSessionID: "sess_dup"})
	require.Error(t, err)
	assert.True(t, db.IsUniqueViolation(err, ""))
}

func TestRepositoryTransitionIsConditional(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	order := &models.Order{SubtotalCents: 5, TotalCents: 5, StripeSessionID: "sess_t"}
	require.NoError(t, repo.Create(ctx, order))

	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n, err := repo.Transition(ctx, Transition{
		OrderID: order.ID,
		From:    []enums.OrderStatus{enums.OrderStatusPaid},
		To:      enums.OrderStatusFulfilled,
		At:      at,
	})
	require.NoError(t, err)
	assert.Zero(t, n, "pending order must not match a paid-only predicate")

	n, err = repo.Transition(ctx, Transition{
		SessionID: "sess_t",
		From:      []enums.OrderStatus{enums.OrderStatusPending},
		To:        enums.OrderStatusPaid,
		At:        at,
		Set:       map[string]any{"settled_cents": int64(5)},
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	reloaded, err := repo.FindByID(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPaid, reloaded.Status)
	assert.EqualValues(t, 5, *reloaded.SettledCents)

	owner := uuid.New()
	n, err = repo.Transition(ctx, Transition{
		OrderID: order.ID,
		OwnerID: &owner,
		From:    []enums.OrderStatus{enums.OrderStatusPaid},
		To:      enums.OrderStatusRefunded,
		At:      at,
	})
	require.NoError(t, err)
	assert.Zero(t, n, "owner predicate must scope the update")

	_, err = repo.Transition(ctx, Transition{To: enums.OrderStatusPaid, From: []enums.OrderStatus{enums.OrderStatusPending}})
	assert.Error(t, err, "unscoped transition must be refused")
	_, err = repo.Transition(ctx, Transition{OrderID: order.ID, To: enums.OrderStatusPaid})
	assert.Error(t, err)
}

func TestRepositoryFindForUser(t *testing.T) {
	conn := dbtest.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()
	owner := uuid.New()
	require.NoError(t, conn.Create(&models.Profile{ID: owner, Role: enums.ProfileRoleCustomer}).Error)
	order := &models.Order{UserID: &owner, SubtotalCents: 5, TotalCents: 5, StripeSessionID: "sess_u"}
	require.NoError(t, repo.Create(ctx, order))

	found, err := repo.FindForUser(ctx, order.ID, owner)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindForUser(ctx, order.ID, uuid.New())
	assert.True(t, db.IsNotFound(err))
}

func TestRepositoryOrderOwnerMustExist(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ghost := uuid.New()
	err := repo.Create(context.Background(), &models.Order{UserID: &ghost, SubtotalCents: 5, TotalCents: 5, StripeSessionID: "sess_ghost"})
	assert.Error(t, err)
}

func TestRepositoryListPendingBeforeSkipsAwaitingPayment(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	old := time.Now().UTC().Add(-72 * time.Hour)
	cutoff := time.Now().UTC().Add(-48 * time.Hour)

	stale := &models.Order{Status: enums.OrderStatusPending, SubtotalCents: 5, TotalCents: 5, StripeSessionID: "sess_stale", CreatedAt: old}
	waiting := &models.Order{Status: enums.OrderStatusPending, SubtotalCents: 5, TotalCents: 5, StripeSessionID: "sess_waiting", CreatedAt: old, AwaitingPaymentAt: &old}
	require.NoError(t, repo.Create(ctx, stale))
	require.NoError(t, repo.Create(ctx, waiting))

	rows, err := repo.ListPendingBefore(ctx, cutoff, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, stale.ID, rows[0].ID)

	notAwaiting := false
	n, err := repo.Transition(ctx, Transition{
		OrderID:         waiting.ID,
		From:            []enums.OrderStatus{enums.OrderStatusPending},
		To:              enums.OrderStatusCanceled,
		AwaitingPayment: &notAwaiting,
		At:              time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Zero(t, n, "awaiting predicate must guard the update")
}

func TestRepositoryFindByPaymentIntentID(t *testing.T) {
	repo := NewRepository(dbtest.Open(t))
	ctx := context.Background()
	pi := "pi_lookup"
	order := &models.Order{Status: enums.OrderStatusPaid, SubtotalCents: 5, TotalCents: 5, StripeSessionID: "sess_pi", StripePaymentIntentID: &pi}
	require.NoError(t, repo.Create(ctx, order))

	found, err := repo.FindByPaymentIntentID(ctx, pi)
	require.NoError(t, err)
	assert.Equal(t, order.ID, found.ID)

	_, err = repo.FindByPaymentIntentID(ctx, "pi_other")
	assert.True(t, db.IsNotFound(err))
}
