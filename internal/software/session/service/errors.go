package service

import "errors"

var (
	ErrNoSession         = errors.New("no dispatch session: driver is not eligible")
	ErrNoLiveOffer       = errors.New("no live ride offer")
	ErrAlreadyAccepted   = errors.New("offer already accepted, awaiting confirmation")
	ErrRideInProgress    = errors.New("a ride is already in progress")
	ErrNoActiveRide      = errors.New("no active ride")
	ErrInvalidTransition = errors.New("command not allowed in the current ride status")
)
