package driver

import "strings"

// Identity is the read-only view of the signed-in driver as provided by the identity collaborator.
type Identity struct {
	DriverID       string
	VehicleType    string
	ApprovalStatus ApprovalStatus
	Loading        bool
}

// Eligible reports whether this identity may hold a live dispatch session.
// Unknown or still-loading identities are never eligible.
func (id Identity) Eligible() bool {
	if id.Loading || strings.TrimSpace(id.DriverID) == "" {
		return false
	}
	return id.ApprovalStatus.Approved()
}

// SameSession reports whether a running session for id can keep serving other.
func (id Identity) SameSession(other Identity) bool {
	return id.DriverID == other.DriverID && id.VehicleType == other.VehicleType
}

// NormalizeVehicleType trims and lowercases a vehicle type as the dispatch backend expects it.
func NormalizeVehicleType(in string) string {
	return strings.ToLower(strings.TrimSpace(in))
}
