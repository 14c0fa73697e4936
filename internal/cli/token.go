package cli

import (
	"fmt"
	"time"

	"pet-tracker/internal/domain/user"
	"pet-tracker/internal/general/jwt"
)

// GenerateToken mints a JWT for an owner or a tracker device.
//
// Typical use (dev-only):
//
//	token, _, err := cli.GenerateToken(secret, "collar-7", "DEVICE", 24*time.Hour)
//
// Keep this package dev/internal only. Do not call it from production code paths.
func GenerateToken(secret, subject, roleStr string, ttl time.Duration) (string, jwt.Claims, error) {
	// parse and validate the role
	role, err := user.ParseRole(roleStr)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("invalid role %q: %w", roleStr, err)
	}
	if ttl <= 0 {
		ttl = 2 * time.Hour
	}

	mgr := jwt.NewManager(secret, ttl)
	token, claims, err := mgr.IssueToken(subject, role)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("issue token: %w", err)
	}

	return token, *claims, nil
}
