package cli

import (
	"fmt"
	"time"

	"driver-dispatch/internal/general/jwt"
)

// GenerateToken mints a JWT for local development: a DRIVER token to present to a test
// dispatch backend, or a CONSOLE token for the agent's local API.
//
// Typical use (dev-only):
//
//	token, _, err := cli.GenerateToken(secret, "64f1c2e8a1b2c3d4e5f60718", "DRIVER", "sedan", 2*time.Hour)
//
// Keep this package dev/internal only. Do not call it from production code paths.
func GenerateToken(secret, subject, roleStr, vehicleType string, ttl time.Duration) (string, jwt.Claims, error) {
	// parse and validate the role
	role, err := jwt.ParseRole(roleStr)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("invalid role %q: %w", roleStr, err)
	}

	mgr := jwt.NewManager(secret, ttl)

	token, claims, err := mgr.IssueToken(subject, role, vehicleType)
	if err != nil {
		return "", jwt.Claims{}, fmt.Errorf("issue token: %w", err)
	}

	return token, *claims, nil
}
