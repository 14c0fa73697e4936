package jwt

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"pet-tracker/internal/domain/user"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrNoAuthHeader       = errors.New("authorization header missing")
	ErrBadAuthScheme      = errors.New("authorization must start with Bearer")
	ErrEmptyToken         = errors.New("bearer token missing")
	ErrInvalidSigningAlgo = errors.New("unexpected signing method")
	ErrRoleForbidden      = errors.New("role not allowed")
	ErrEmptySubject       = errors.New("token subject missing")
)

// Manager handles JWT creation and validation.
type Manager struct {
	secret    []byte
	accessTTL time.Duration
}

// NewManager creates a token manager.
func NewManager(secret string, accessTTL time.Duration) *Manager {
	s := strings.TrimSpace(secret)
	if s == "" {
		panic("jwt: empty secret key")
	}

	return &Manager{
		secret:    []byte(s),
		accessTTL: accessTTL,
	}
}

// IssueToken returns a signed access token for an owner or a tracker device.
func (m *Manager) IssueToken(subject string, role user.Role) (string, *Claims, error) {
	// validate role and subject
	if !role.Valid() {
		return "", nil, fmt.Errorf("invalid role: %s", role)
	}
	if strings.TrimSpace(subject) == "" {
		return "", nil, ErrEmptySubject
	}

	claims := NewSubjectClaims(strings.TrimSpace(subject), role, m.accessTTL)
	tkn := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	signed, err := tkn.SignedString(m.secret)

	return signed, claims, err
}

// FromAuthorization reads "Authorization: Bearer <token>".
func FromAuthorization(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return "", ErrNoAuthHeader
	}
	return bearerToken(authHeader)
}

// bearerToken unwraps "Bearer <token>". It is shared by the HTTP header and the websocket auth frame.
func bearerToken(value string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(value), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrBadAuthScheme
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrEmptyToken
	}
	return token, nil
}

// ParseAndValidate verifies signature and standard claims.
func (m *Manager) ParseAndValidate(tokenString string) (*jwtlib.Token, *Claims, error) {
	// create parser with expected signing method
	parser := jwtlib.NewParser(jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}))

	// validate claims and signature
	claims := &Claims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwtlib.Token) (any, error) {
		if t.Method != jwtlib.SigningMethodHS256 {
			return nil, ErrInvalidSigningAlgo
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, nil, err
	}

	// ensure token is valid
	if !token.Valid {
		return nil, nil, errors.New("invalid token")
	}

	return token, claims, nil
}

// RoleAllowed asserts the claims' role is one of the allowed.
func RoleAllowed(cl *Claims, allowed ...user.Role) error {
	if slices.Contains(allowed, cl.Role) {
		return nil
	}
	return ErrRoleForbidden
}

// Context wiring (used by middleware)
type ctxKey string

const claimsCtxKey ctxKey = "jwtClaims"

// InjectClaims adds JWT claims to the context.
func InjectClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, c)
}

// FromContext extracts JWT claims from the context.
func FromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsCtxKey).(*Claims)
	return c, ok
}
