package contracts

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"driver-dispatch/internal/domain/ride"
)

// GeoPoint is a coordinate pair as the dispatch backend and the fleet bus spell it.
type GeoPoint struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address,omitempty"`
}

// UnmarshalJSON accepts an object with lat and lng (or lon), a bare address string, or null.
func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*p = GeoPoint{}
		return nil
	}

	if data[0] == '"' {
		var address string
		if err := json.Unmarshal(data, &address); err != nil {
			return err
		}
		*p = GeoPoint{Address: strings.TrimSpace(address)}
		return nil
	}

	var raw struct {
		Lat     float64  `json:"lat"`
		Lng     *float64 `json:"lng"`
		Lon     float64  `json:"lon"`
		Address string   `json:"address"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = GeoPoint{Lat: raw.Lat, Lng: raw.Lon, Address: raw.Address}
	if raw.Lng != nil {
		p.Lng = *raw.Lng
	}
	return nil
}

// firstPlace returns the first point that carries anything.
func firstPlace(points ...GeoPoint) ride.Place {
	for _, p := range points {
		if p != (GeoPoint{}) {
			return p.Place()
		}
	}
	return ride.Place{}
}

// Place converts the wire point to the domain place.
func (p GeoPoint) Place() ride.Place {
	return ride.Place{Address: p.Address, Lat: p.Lat, Lng: p.Lng}
}

// OfferFromRequest maps a new-ride-request payload to an offer in the offered state.
func OfferFromRequest(req RideRequest) ride.Offer {
	offeredAt := time.Now().UTC()
	if req.OfferedAt != nil && !req.OfferedAt.IsZero() {
		offeredAt = req.OfferedAt.UTC()
	}
	return ride.Offer{
		BookingID:      strings.TrimSpace(req.BookingID),
		PickupLocation: req.PickupPlace(),
		DropLocation:   req.DropPlace(),
		FareEstimate:   req.FareEstimate,
		CustomerName:   req.CustomerName,
		CustomerPhone:  req.CustomerPhone,
		OfferedAt:      offeredAt,
		State:          ride.OfferOffered,
	}
}

// PickupPlace resolves the pickup from whichever field the backend filled.
func (r RideRequest) PickupPlace() ride.Place {
	return firstPlace(r.PickupLocation, r.PickupPoint, r.Pickup)
}

func (r RideRequest) DropPlace() ride.Place {
	return firstPlace(r.DropLocation, r.DropPoint, r.Drop)
}

func (r RideSnapshot) PickupPlace() ride.Place {
	return firstPlace(r.PickupLocation, r.PickupPoint, r.Pickup)
}

func (r RideSnapshot) DropPlace() ride.Place {
	return firstPlace(r.DropLocation, r.DropPoint, r.Drop)
}
