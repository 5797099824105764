package session

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Session is the authenticated caller as seen by handlers.
type Session struct {
	UserID      uuid.UUID         `json:"userId"`
	Email       string            `json:"email,omitempty"`
	DisplayName string            `json:"displayName,omitempty"`
	Role        enums.ProfileRole `json:"role"`
	// TokenRole is whatever role the identity token asked for. It is kept for
	// logging only; authorization reads Role, which comes from the profile.
	TokenRole string     `json:"-"`
	TenantID  *uuid.UUID `json:"tenantId,omitempty"`
}

func (s *Session) Capabilities() enums.Capabilities {
	if s == nil {
		return enums.Capabilities{}
	}
	return s.Role.Capabilities()
}

func (s *Session) IsAdmin() bool {
	return s.Capabilities().Admin
}

type ctxKey struct{}

// WithSession stores the resolved session on the context.
func WithSession(ctx context.Context, s *Session) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the session placed by the session middleware, or nil.
func FromContext(ctx context.Context) *Session {
	if ctx == nil {
		return nil
	}
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
