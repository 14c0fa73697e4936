package jwt

import (
	"time"

	"pet-tracker/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Claims defines our canonical JWT claims payload.
type Claims struct {
	Role user.Role `json:"role"` // OWNER or DEVICE
	jwtlib.RegisteredClaims
}

// ensure Claims implements jwtlib.Claims interface
var _ jwtlib.Claims = (*Claims)(nil)

// NewSubjectClaims constructs claims for an owner (subject = owner id) or a device (subject = device id).
func NewSubjectClaims(subject string, role user.Role, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Role: role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}
