package jwt

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"pet-tracker/internal/domain/user"
)

// ErrBadAuthFrame is returned when the first websocket frame is not an auth message.
var ErrBadAuthFrame = errors.New(`first frame must be {"type":"auth","token":"Bearer <jwt>"}`)

// WSIdentity is the peer a websocket was authenticated as.
type WSIdentity struct {
	Subject   string // owner id for OWNER tokens
	Role      user.Role
	ExpiresAt time.Time // zero when the token has no expiry
}

// AuthenticateWSFrame validates the auth frame a client sends right after the upgrade
// and returns who it is. The role must be one of allowed.
func AuthenticateWSFrame(frame []byte, mgr *Manager, allowed ...user.Role) (WSIdentity, error) {
	var msg struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(frame, &msg); err != nil || !strings.EqualFold(strings.TrimSpace(msg.Type), "auth") {
		return WSIdentity{}, ErrBadAuthFrame
	}

	raw, err := bearerToken(msg.Token)
	if err != nil {
		return WSIdentity{}, err
	}
	_, claims, err := mgr.ParseAndValidate(raw)
	if err != nil {
		return WSIdentity{}, err
	}
	if err := RoleAllowed(claims, allowed...); err != nil {
		return WSIdentity{}, err
	}

	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return WSIdentity{}, ErrEmptySubject
	}

	id := WSIdentity{Subject: subject, Role: claims.Role}
	if claims.ExpiresAt != nil {
		id.ExpiresAt = claims.ExpiresAt.Time
	}
	return id, nil
}
