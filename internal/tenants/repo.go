package tenants

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// tenantBootstrapLock serializes first-tenant creation across API instances.
const tenantBootstrapLock = 7301

// Repository handles tenant persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to tenant operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Earliest returns the oldest tenant.
func (r *Repository) Earliest(ctx context.Context) (*models.Tenant, error) {
	return earliest(r.db.WithContext(ctx))
}

// Create persists a new tenant row.
func (r *Repository) Create(ctx context.Context, name string) (*models.Tenant, error) {
	tenant := &models.Tenant{Name: name}
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		return nil, err
	}
	return tenant, nil
}

// EarliestOrCreate returns the oldest tenant, creating one named name when
// the table is empty. Concurrent callers converge on a single tenant.
func (r *Repository) EarliestOrCreate(ctx context.Context, name string) (*models.Tenant, bool, error) {
	var (
		result  *models.Tenant
		created bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if tx.Dialector.Name() == "postgres" {
			if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", tenantBootstrapLock).Error; err != nil {
				return err
			}
		}

		existing, err := earliest(tx)
		if err == nil {
			result = existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		tenant := &models.Tenant{Name: name}
		if err := tx.Create(tenant).Error; err != nil {
			return err
		}
		result, created = tenant, true
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return result, created, nil
}

func earliest(tx *gorm.DB) (*models.Tenant, error) {
	var tenant models.Tenant
	if err := tx.Order("created_at ASC").Order("id ASC").First(&tenant).Error; err != nil {
		return nil, err
	}
	return &tenant, nil
}
