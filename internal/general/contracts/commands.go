package contracts

// Command is the name of an outbound driver -> backend command.
type Command string

const (
	CmdRegisterLocation Command = "register-location"
	CmdAcceptRide       Command = "accept-ride"
	CmdStartPickup      Command = "start-pickup"
	CmdPickupComplete   Command = "pickup-complete"
	CmdStartRide        Command = "start-ride"
	CmdCompleteRide     Command = "complete-ride"
)

// String returns the wire name of the command.
func (c Command) String() string {
	return string(c)
}

// LatLng is the location shape of register-location.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// RegisterLocation announces presence and position.
type RegisterLocation struct {
	DriverID    string `json:"driverId"`
	Location    LatLng `json:"location"`
	VehicleType string `json:"vehicleType"`
}

// DriverBooking is the payload of accept-ride and start-pickup.
type DriverBooking struct {
	DriverID  string `json:"driverId"`
	BookingID string `json:"bookingId"`
}

// BookingRef is the payload of pickup-complete, start-ride, complete-ride and ride-already-taken.
type BookingRef struct {
	BookingID string `json:"bookingId"`
}
