package geo

import (
	"errors"
	"math"
	"time"
)

// Sample is a single position fix from the positioning provider.
type Sample struct {
	Latitude   float64
	Longitude  float64
	CapturedAt time.Time
}

var (
	ErrInvalidLatitude  = errors.New("latitude must be between -90 and 90")
	ErrInvalidLongitude = errors.New("longitude must be between -180 and 180")
)

// NewSample constructs a validated Sample. A zero capturedAt is replaced with now (UTC).
func NewSample(latitude, longitude float64, capturedAt time.Time) (Sample, error) {
	if capturedAt.IsZero() {
		capturedAt = time.Now().UTC()
	}
	sample := Sample{Latitude: latitude, Longitude: longitude, CapturedAt: capturedAt.UTC()}
	if err := sample.Validate(); err != nil {
		return Sample{}, err
	}
	return sample, nil
}

// Validate checks coordinate ranges.
func (sample Sample) Validate() error {
	if sample.Latitude < -90 || sample.Latitude > 90 || math.IsNaN(sample.Latitude) {
		return ErrInvalidLatitude
	}
	if sample.Longitude < -180 || sample.Longitude > 180 || math.IsNaN(sample.Longitude) {
		return ErrInvalidLongitude
	}
	return nil
}
