package session

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// ProfileStore is the profile persistence the resolver needs.
type ProfileStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	Upsert(ctx context.Context, profile *models.Profile) (*models.Profile, error)
	SetTenant(ctx context.Context, id, tenantID uuid.UUID) error
}

// TenantStore is the tenant persistence the resolver needs.
type TenantStore interface {
	EarliestOrCreate(ctx context.Context, name string) (*models.Tenant, bool, error)
}

// Resolver turns request credentials into a Session.
type Resolver struct {
	cfg      config.IdentityConfig
	profiles ProfileStore
	tenants  TenantStore
	logg     *logger.Logger
}

func NewResolver(cfg config.IdentityConfig, profiles ProfileStore, tenants TenantStore, logg *logger.Logger) *Resolver {
	return &Resolver{cfg: cfg, profiles: profiles, tenants: tenants, logg: logg}
}

// GetServerSession returns nil without error when the request carries no
// usable credential. An error means the profile store failed.
func (r *Resolver) GetServerSession(ctx context.Context, req *http.Request) (*Session, error) {
	token := credentialFromRequest(req, r.cfg.CookieName)
	if token == "" {
		return nil, nil
	}

	claims, err := auth.ParseIdentityToken(r.cfg, token)
	if err != nil {
		r.logg.Warn(r.logg.WithField(ctx, "reason", err.Error()), "session.invalid_token")
		return nil, nil
	}
	userID, _ := claims.UserID()

	s := &Session{
		UserID:      userID,
		Email:       strings.TrimSpace(claims.Email),
		DisplayName: claims.DisplayName(),
		Role:        enums.ProfileRoleCustomer,
		TokenRole:   claims.RequestedRole(),
	}

	profile, err := r.loadProfile(ctx, s)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	if profile != nil {
		s.Role = enums.NormalizeProfileRole(profile.Role.String())
		s.TenantID = profile.TenantID
		if s.Email == "" && profile.Email != nil {
			s.Email = *profile.Email
		}
		if s.DisplayName == "" && profile.DisplayName != nil {
			s.DisplayName = *profile.DisplayName
		}
	}
	return s, nil
}

// loadProfile creates a customer profile on first sight of a subject so that
// orders can always reference their owner. Subjects without an email get a
// profile with no email.
func (r *Resolver) loadProfile(ctx context.Context, s *Session) (*models.Profile, error) {
	profile, err := r.profiles.FindByID(ctx, s.UserID)
	if err == nil {
		return profile, nil
	}
	if !db.IsNotFound(err) {
		return nil, err
	}

	fresh := &models.Profile{ID: s.UserID, Role: enums.ProfileRoleCustomer}
	if s.Email != "" {
		email := s.Email
		fresh.Email = &email
	}
	if s.DisplayName != "" {
		name := s.DisplayName
		fresh.DisplayName = &name
	}
	profile, err = r.profiles.Upsert(ctx, fresh)
	if err != nil {
		return nil, err
	}
	r.logg.Info(r.logg.WithUserID(ctx, s.UserID.String()), "session.profile_created")
	return profile, nil
}

func credentialFromRequest(req *http.Request, cookieName string) string {
	if req == nil {
		return ""
	}
	if raw := strings.TrimSpace(req.Header.Get("Authorization")); raw != "" {
		if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
			return strings.TrimSpace(raw[7:])
		}
	}
	if cookieName == "" {
		return ""
	}
	if c, err := req.Cookie(cookieName); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
