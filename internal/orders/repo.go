package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindBySessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("stripe_session_id = ?", sessionID).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("stripe_payment_intent_id = ?", paymentIntentID).
		Order("created_at ASC").
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindForUser(ctx context.Context, id, userID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").Order("id DESC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// List returns orders newest first using keyset pagination; Limit should already include the look-ahead row.
func (r *repository) List(ctx context.Context, q ListQuery) ([]models.Order, error) {
	query := r.db.WithContext(ctx).Model(&models.Order{})
	if q.Status != nil {
		query = query.Where("status = ?", q.Status.String())
	}
	if q.Cursor != nil {
		query = query.Where("(created_at < ?) OR (created_at = ? AND id < ?)", q.Cursor.CreatedAt, q.Cursor.CreatedAt, q.Cursor.ID)
	}

	var rows []models.Order
	if err := query.Order("created_at DESC").Order("id DESC").Limit(q.Limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending.String(), cutoff).
		Where("awaiting_payment_at IS NULL").
		Order("created_at ASC").Order("id ASC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) Transition(ctx context.Context, t Transition) (int64, error) {
	if len(t.From) == 0 {
		return 0, errors.New("transition requires at least one source status")
	}

	from := make([]string, len(t.From))
	for i, s := range t.From {
		from[i] = s.String()
	}

	query := r.db.WithContext(ctx).Model(&models.Order{}).Where("status IN ?", from)
	switch {
	case t.OrderID != uuid.Nil:
		query = query.Where("id = ?", t.OrderID)
	case t.SessionID != "":
		query = query.Where("stripe_session_id = ?", t.SessionID)
	default:
		return 0, errors.New("transition requires an order id or session id")
	}
	if t.OwnerID != nil {
		query = query.Where("user_id = ?", *t.OwnerID)
	}
	if t.AwaitingPayment != nil {
		if *t.AwaitingPayment {
			query = query.Where("awaiting_payment_at IS NOT NULL")
		} else {
			query = query.Where("awaiting_payment_at IS NULL")
		}
	}

	updates := map[string]any{
		"status":     t.To.String(),
		"updated_at": t.At,
	}
	for k, v := range t.Set {
		updates[k] = v
	}

	res := query.Updates(updates)
	return res.RowsAffected, res.Error
}
