package ports

import (
	"context"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/domain/ride"
)

// UnitOfWork scopes journal writes to one transaction.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type RideEventRepository interface {
	Append(ctx context.Context, e *ride.Event) error
}

// LocationHistoryRepository archives forwarded samples.
type LocationHistoryRepository interface {
	Archive(ctx context.Context, record *geo.LocationHistory) error
}
