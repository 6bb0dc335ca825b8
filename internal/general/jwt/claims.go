package jwt

import (
	"errors"
	"slices"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// Role is the audience a token was minted for.
type Role string

const (
	RoleDriver  Role = "DRIVER"  // driver token presented to the dispatch backend
	RoleConsole Role = "CONSOLE" // local presentation layer talking to the agent API
)

// Valid reports whether role is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleDriver || r == RoleConsole
}

var ErrInvalidRole = errors.New("invalid role")

// ParseRole normalizes (uppercases+trims) and validates a role.
func ParseRole(in string) (Role, error) {
	role := Role(strings.ToUpper(strings.TrimSpace(in)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

// Claims defines our canonical JWT claims payload.
type Claims struct {
	Role        Role   `json:"role"`
	VehicleType string `json:"vehicle_type,omitempty"`
	jwtlib.RegisteredClaims
}

var _ jwtlib.Claims = (*Claims)(nil)

// Allow fails with ErrRoleForbidden unless the token's role is one of roles.
func (c *Claims) Allow(roles ...Role) error {
	if slices.Contains(roles, c.Role) {
		return nil
	}
	return ErrRoleForbidden
}

// NewUserClaims constructs claims for subject with the given role and lifetime.
func NewUserClaims(subject string, role Role, vehicleType string, ttl time.Duration) *Claims {
	now := time.Now().UTC()
	return &Claims{
		Role:        role,
		VehicleType: vehicleType,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
}
