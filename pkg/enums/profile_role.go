package enums

import (
	"fmt"
	"strings"
)

// ProfileRole is the platform-wide role stored on a profile.
type ProfileRole string

const (
	ProfileRoleCustomer   ProfileRole = "customer"
	ProfileRoleSeller     ProfileRole = "seller"
	ProfileRoleAdmin      ProfileRole = "admin"
	ProfileRoleSuperAdmin ProfileRole = "super_admin"
	ProfileRoleDev        ProfileRole = "dev"
)

// Capabilities is the flat permission set granted by a role.
type Capabilities struct {
	Admin       bool
	SuperAdmin  bool
	CanInvite   bool
	CanViewBank bool
}

var roleCapabilities = map[ProfileRole]Capabilities{
	ProfileRoleCustomer:   {},
	ProfileRoleSeller:     {},
	ProfileRoleAdmin:      {Admin: true},
	ProfileRoleSuperAdmin: {Admin: true, SuperAdmin: true, CanViewBank: true},
	ProfileRoleDev:        {Admin: true, SuperAdmin: true, CanInvite: true, CanViewBank: true},
}

// String implements fmt.Stringer.
func (r ProfileRole) String() string {
	return string(r)
}

// IsValid reports whether the value is a known ProfileRole.
func (r ProfileRole) IsValid() bool {
	_, ok := roleCapabilities[r]
	return ok
}

func (r ProfileRole) Capabilities() Capabilities {
	return roleCapabilities[r]
}

func (r ProfileRole) IsAdmin() bool { return r.Capabilities().Admin }

func (r ProfileRole) IsSuperAdmin() bool { return r.Capabilities().SuperAdmin }

// ParseProfileRole converts raw input into a ProfileRole.
func ParseProfileRole(value string) (ProfileRole, error) {
	role := ProfileRole(strings.ToLower(strings.TrimSpace(value)))
	if role.IsValid() {
		return role, nil
	}
	return "", fmt.Errorf("invalid profile role %q", value)
}

// NormalizeProfileRole maps unknown or empty values to the least privileged role.
func NormalizeProfileRole(value string) ProfileRole {
	role, err := ParseProfileRole(value)
	if err != nil {
		return ProfileRoleCustomer
	}
	return role
}
