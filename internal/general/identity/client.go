package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"driver-dispatch/internal/domain/driver"
	"driver-dispatch/internal/domain/ride"
	"driver-dispatch/internal/general/contracts"
	"driver-dispatch/internal/general/jwt"
	"driver-dispatch/internal/ports"
)

var (
	ErrUnauthorized = errors.New("driver api rejected the token")
	ErrNoToken      = errors.New("no driver token configured")
)

// Client talks to the driver API with the driver's bearer token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ ports.DriverDirectory = (*Client)(nil)

// NewClient validates the token locally before any request is made: an expired token
// fails here instead of on every poll.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return nil, ErrNoToken
	}
	if _, err := jwt.PeekClaims(token); errors.Is(err, jwt.ErrTokenExpired) {
		return nil, fmt.Errorf("driver token: %w", err)
	}

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

// meResponse is the driver document returned by /api/driver/auth/me.
type meResponse struct {
	ID          string `json:"_id"`
	AltID       string `json:"id"`
	VehicleType string `json:"vehicleType"`
	Vehicle     *struct {
		Type string `json:"type"`
	} `json:"vehicle"`
	Status     string `json:"status"`
	Onboarding *struct {
		Status string `json:"status"`
	} `json:"onboarding"`
}

// Me fetches the signed-in driver and normalizes it into an Identity.
func (c *Client) Me(ctx context.Context) (driver.Identity, error) {
	var me meResponse
	if err := c.get(ctx, "/api/driver/auth/me", &me); err != nil {
		return driver.Identity{}, err
	}
	return c.normalize(me), nil
}

// normalize collapses the two places the backend reports approval into one status and
// falls back to the token subject when the document carries no id.
func (c *Client) normalize(me meResponse) driver.Identity {
	id := firstNonEmpty(me.ID, me.AltID)
	if id == "" {
		if claims, err := jwt.PeekClaims(c.token); err == nil {
			id = claims.Subject
		}
	}

	vehicle := me.VehicleType
	if vehicle == "" && me.Vehicle != nil {
		vehicle = me.Vehicle.Type
	}

	raw := me.Status
	if me.Onboarding != nil && me.Onboarding.Status != "" {
		raw = me.Onboarding.Status
	}
	status, err := driver.ParseApprovalStatus(raw)
	if err != nil {
		status = driver.ApprovalUnset
	}

	return driver.Identity{
		DriverID:       id,
		VehicleType:    driver.NormalizeVehicleType(vehicle),
		ApprovalStatus: status,
	}
}

// PendingRides returns ride requests still open for this driver. The endpoint answers either
// with a bare array or with {"rides": [...]}.
func (c *Client) PendingRides(ctx context.Context) ([]ride.Offer, error) {
	var raw json.RawMessage
	if err := c.get(ctx, "/api/driver/rides?status=pending", &raw); err != nil {
		return nil, err
	}

	var reqs []contracts.RideRequest
	if err := json.Unmarshal(raw, &reqs); err != nil {
		var wrapped struct {
			Rides []contracts.RideRequest `json:"rides"`
		}
		if err := json.Unmarshal(raw, &wrapped); err != nil {
			return nil, fmt.Errorf("decode pending rides: %w", err)
		}
		reqs = wrapped.Rides
	}

	offers := make([]ride.Offer, 0, len(reqs))
	for _, req := range reqs {
		offer := contracts.OfferFromRequest(req)
		if offer.Validate() != nil {
			continue
		}
		offers = append(offers, offer)
	}
	return offers, nil
}

// Earnings returns the driver's earnings summary.
func (c *Client) Earnings(ctx context.Context) (ports.Earnings, error) {
	var out ports.Earnings
	if err := c.get(ctx, "/api/driver/earnings", &out); err != nil {
		return ports.Earnings{}, err
	}
	return out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GET %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
