package session

import (
	"context"
	"strings"

	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

const defaultTenantName = "Default Store"

// EnsureTenantID returns the caller's tenant, attaching them to the earliest
// tenant (or a newly created one) when their profile has none.
func (r *Resolver) EnsureTenantID(ctx context.Context, s *Session) (uuid.UUID, error) {
	if s == nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "session required")
	}
	if s.TenantID != nil && *s.TenantID != uuid.Nil {
		return *s.TenantID, nil
	}

	tenant, created, err := r.tenants.EarliestOrCreate(ctx, tenantName(s))
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve tenant")
	}

	logCtx := r.logg.WithFields(ctx, map[string]any{
		"user_id":   s.UserID.String(),
		"tenant_id": tenant.ID.String(),
	})
	if created {
		r.logg.Info(logCtx, "tenant.created")
	}

	if err := r.profiles.SetTenant(ctx, s.UserID, tenant.ID); err != nil {
		r.logg.Warn(r.logg.WithField(logCtx, "error", err.Error()), "tenant.attach_profile_failed")
	}

	id := tenant.ID
	s.TenantID = &id
	return id, nil
}

func tenantName(s *Session) string {
	if name := strings.TrimSpace(s.DisplayName); name != "" {
		return name
	}
	if email := strings.TrimSpace(s.Email); email != "" {
		return email
	}
	return defaultTenantName
}
