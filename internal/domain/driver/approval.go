package driver

import (
	"errors"
	"strings"
)

// ApprovalStatus is the onboarding approval state of a driver account.
type ApprovalStatus string

const (
	ApprovalUnset       ApprovalStatus = "unset"
	ApprovalPending     ApprovalStatus = "pending"
	ApprovalUnderReview ApprovalStatus = "under_review"
	ApprovalApproved    ApprovalStatus = "approved"
	ApprovalRejected    ApprovalStatus = "rejected"
)

var ErrInvalidApprovalStatus = errors.New("invalid approval status")

// ParseApprovalStatus normalizes (lowercases+trims, "-" and " " become "_") and validates an approval status.
// The empty string maps to ApprovalUnset.
func ParseApprovalStatus(in string) (ApprovalStatus, error) {
	s := strings.ToLower(strings.TrimSpace(in))
	s = strings.NewReplacer("-", "_", " ", "_").Replace(s)
	if s == "" {
		return ApprovalUnset, nil
	}
	status := ApprovalStatus(s)
	if status.Valid() {
		return status, nil
	}
	return "", ErrInvalidApprovalStatus
}

// Valid reports whether status is one of the allowed approval status constants.
func (status ApprovalStatus) Valid() bool {
	switch status {
	case ApprovalUnset, ApprovalPending, ApprovalUnderReview, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// Approved reports whether the driver may hold a live dispatch session.
func (status ApprovalStatus) Approved() bool {
	return status == ApprovalApproved
}

// String returns the string representation of the ApprovalStatus.
func (status ApprovalStatus) String() string {
	return string(status)
}
