package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// IdentityClaims are the claims carried by access tokens issued by the
// hosted identity provider.
type IdentityClaims struct {
	Email        string       `json:"email,omitempty"`
	Role         string       `json:"role,omitempty"`
	UserMetadata UserMetadata `json:"user_metadata,omitempty"`
	jwt.RegisteredClaims
}

type UserMetadata struct {
	Role     string `json:"role,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Name     string `json:"name,omitempty"`
}

// UserID parses the subject as a uuid.
func (c *IdentityClaims) UserID() (uuid.UUID, error) {
	return uuid.Parse(c.Subject)
}

// RequestedRole prefers the app-defined metadata role over the provider's
// top-level role, which is usually just "authenticated".
func (c *IdentityClaims) RequestedRole() string {
	if role := strings.TrimSpace(c.UserMetadata.Role); role != "" {
		return role
	}
	return strings.TrimSpace(c.Role)
}

func (c *IdentityClaims) DisplayName() string {
	if name := strings.TrimSpace(c.UserMetadata.FullName); name != "" {
		return name
	}
	return strings.TrimSpace(c.UserMetadata.Name)
}
