package user

import (
	"errors"
	"strings"
)

// Role is the role carried in an access token.
type Role string

const (
	RoleOwner  Role = "OWNER"  // pet owner using the app
	RoleDevice Role = "DEVICE" // tracker collar pushing fixes
)

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role string.
func ParseRole(s string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(s)))
	if role.Valid() {
		return role, nil
	}
	return "", ErrInvalidRole
}

// Valid reports whether role is one of the allowed role constants.
func (role Role) Valid() bool {
	switch role {
	case RoleOwner, RoleDevice:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Role.
func (role Role) String() string {
	return string(role)
}

func (role Role) IsOwner() bool  { return role == RoleOwner }
func (role Role) IsDevice() bool { return role == RoleDevice }
