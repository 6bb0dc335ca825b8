package ride

import (
	"errors"
	"strings"
)

// Status is the lifecycle status of the driver's active ride.
type Status string

const (
	StatusAccepted       Status = "accepted"
	StatusOnTheWay       Status = "on_the_way"
	StatusPickupComplete Status = "pickup_complete"
	StatusInProgress     Status = "in_progress"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
)

var ErrInvalidStatus = errors.New("invalid ride status")

// ParseStatus normalizes (lowercases+trims, "-" becomes "_") and validates a status string.
func ParseStatus(in string) (Status, error) {
	status := Status(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(in)), "-", "_"))
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidStatus
}

// Valid reports whether status is one of the allowed ride status constants.
func (status Status) Valid() bool {
	switch status {
	case StatusAccepted, StatusOnTheWay, StatusPickupComplete, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	default:
		return false
	}
}

// String returns the string representation of the Status.
func (status Status) String() string {
	return string(status)
}

// CanTransitionTo specifies if the status can transition to the next status.
// Forward moves are one step at a time; cancellation is reachable from any non-terminal status.
func (status Status) CanTransitionTo(next Status) bool {
	if status.Terminal() {
		return false
	}
	if next == StatusCancelled {
		return true
	}
	fwd, ok := status.Next()
	return ok && fwd == next
}

// Next returns the forward successor of status.
func (status Status) Next() (Status, bool) {
	switch status {
	case StatusAccepted:
		return StatusOnTheWay, true
	case StatusOnTheWay:
		return StatusPickupComplete, true
	case StatusPickupComplete:
		return StatusInProgress, true
	case StatusInProgress:
		return StatusCompleted, true
	default:
		return "", false
	}
}

// Terminal indicates if the status ends the active ride.
func (status Status) Terminal() bool {
	return status == StatusCompleted || status == StatusCancelled
}

// Text is the human-readable status line shown to the driver.
func (status Status) Text() string {
	switch status {
	case StatusAccepted:
		return "Ride accepted"
	case StatusOnTheWay:
		return "On the way to pickup"
	case StatusPickupComplete:
		return "Pickup complete"
	case StatusInProgress:
		return "Ride in progress"
	case StatusCompleted:
		return "Ride completed"
	case StatusCancelled:
		return "Ride cancelled"
	default:
		return ""
	}
}
