package jwt

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

var (
	ErrRoleForbidden = errors.New("role not allowed")
	ErrTokenExpired  = errors.New("token expired")
)

// Manager signs and verifies HS256 tokens with a shared secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	parser *jwtlib.Parser
}

// NewManager panics on an empty secret; a keyless manager would accept any forged token.
func NewManager(secret string, ttl time.Duration) *Manager {
	key := strings.TrimSpace(secret)
	if key == "" {
		panic("jwt: empty secret key")
	}
	return &Manager{
		secret: []byte(key),
		ttl:    ttl,
		parser: jwtlib.NewParser(jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()})),
	}
}

// IssueToken signs claims for subject valid for the manager's ttl.
func (m *Manager) IssueToken(subject string, role Role, vehicleType string) (string, *Claims, error) {
	if !role.Valid() {
		return "", nil, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}

	claims := NewUserClaims(subject, role, vehicleType, m.ttl)
	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("jwt: sign: %w", err)
	}
	return signed, claims, nil
}

// Verify checks the signature and the registered claims of raw.
func (m *Manager) Verify(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := m.parser.ParseWithClaims(raw, claims, func(*jwtlib.Token) (any, error) {
		return m.secret, nil
	})
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// PeekClaims decodes a token without checking its signature. The agent never
// holds the backend's key; it reads subject and expiry to fail fast before dialing.
func PeekClaims(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwtlib.NewParser().ParseUnverified(strings.TrimSpace(raw), claims); err != nil {
		return nil, err
	}
	if claims.ExpiresAt != nil && time.Now().After(claims.ExpiresAt.Time) {
		return claims, ErrTokenExpired
	}
	return claims, nil
}
