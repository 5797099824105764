package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/profiles"
	"github.com/angelmondragon/storefront-backend/internal/tenants"
	"github.com/angelmondragon/storefront-backend/pkg/auth"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var identityCfg = config.IdentityConfig{JWTSecret: "test-secret", CookieName: "sb-access-token"}

func newResolver(t *testing.T) (*Resolver, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	return NewResolver(identityCfg, profiles.NewRepository(conn), tenants.NewRepository(conn), logger.Nop()), conn
}

func mint(t *testing.T, payload auth.TokenPayload) string {
	t.Helper()
	token, err := auth.MintIdentityToken(identityCfg, time.Now(), payload)
	require.NoError(t, err)
	return token
}

func TestGetServerSessionWithoutCredential(t *testing.T) {
	r, _ := newResolver(t)
	s, err := r.GetServerSession(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetServerSessionRejectsBadToken(t *testing.T) {
	r, _ := newResolver(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")

	s, err := r.GetServerSession(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, s)

	other := config.IdentityConfig{JWTSecret: "other-secret"}
	forged, err := auth.MintIdentityToken(other, time.Now(), auth.TokenPayload{UserID: uuid.New(), Role: "admin"})
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+forged)
	s, err = r.GetServerSession(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestGetServerSessionIgnoresTokenRole(t *testing.T) {
	r, conn := newResolver(t)
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "sb-access-token", Value: mint(t, auth.TokenPayload{
		UserID: userID,
		Email:  "new@example.test",
		Role:   "super_admin",
	})})

	s, err := r.GetServerSession(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, userID, s.UserID)
	assert.Equal(t, enums.ProfileRoleCustomer, s.Role)
	assert.Equal(t, "super_admin", s.TokenRole)
	assert.False(t, s.IsAdmin())

	var stored models.Profile
	require.NoError(t, conn.First(&stored, "id = ?", userID).Error)
	assert.Equal(t, enums.ProfileRoleCustomer, stored.Role)
}

func TestGetServerSessionUsesProfileRole(t *testing.T) {
	r, conn := newResolver(t)
	userID := uuid.New()
	require.NoError(t, conn.Create(&models.Profile{ID: userID, Email: strPtr("admin@example.test"), Role: enums.ProfileRoleAdmin}).Error)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, auth.TokenPayload{UserID: userID}))

	s, err := r.GetServerSession(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, enums.ProfileRoleAdmin, s.Role)
	assert.Equal(t, "admin@example.test", s.Email)
	assert.True(t, s.IsAdmin())
}

func TestGetServerSessionCreatesProfileWithoutEmail(t *testing.T) {
	r, conn := newResolver(t)
	userID := uuid.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, auth.TokenPayload{UserID: userID, Role: "dev"}))

	s, err := r.GetServerSession(context.Background(), req)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, enums.ProfileRoleCustomer, s.Role)
	assert.Empty(t, s.Email)

	var stored models.Profile
	require.NoError(t, conn.First(&stored, "id = ?", userID).Error)
	assert.Nil(t, stored.Email)
	assert.Equal(t, enums.ProfileRoleCustomer, stored.Role)

	// orders reference profiles, so an email-less subject must still be a valid owner
	order := &models.Order{UserID: &userID, SubtotalCents: 100, TotalCents: 100, StripeSessionID: "sess_phone"}
	require.NoError(t, conn.Create(order).Error)
}

func strPtr(v string) *string { return &v }

type failingProfiles struct{ ProfileStore }

func (failingProfiles) FindByID(context.Context, uuid.UUID) (*models.Profile, error) {
	return nil, errors.New("connection refused")
}

func TestGetServerSessionSurfacesStoreFailure(t *testing.T) {
	r := NewResolver(identityCfg, failingProfiles{}, nil, logger.Nop())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+mint(t, auth.TokenPayload{UserID: uuid.New()}))

	_, err := r.GetServerSession(context.Background(), req)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestContextRoundTrip(t *testing.T) {
	assert.Nil(t, FromContext(context.Background()))
	s := &Session{UserID: uuid.New()}
	assert.Same(t, s, FromContext(WithSession(context.Background(), s)))
}
