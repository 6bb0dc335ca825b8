package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"driver-dispatch/internal/domain/driver"
	"driver-dispatch/internal/general/logger"
	"driver-dispatch/internal/ports"
)

// Applier receives every identity change.
type Applier interface {
	Apply(ctx context.Context, id driver.Identity)
}

// Watcher polls the driver API and forwards identity changes.
type Watcher struct {
	dir      ports.DriverDirectory
	target   Applier
	interval time.Duration
	logger   *logger.Logger

	mu      sync.Mutex
	current driver.Identity
	known   bool
}

func NewWatcher(dir ports.DriverDirectory, target Applier, interval time.Duration, log *logger.Logger) *Watcher {
	return &Watcher{dir: dir, target: target, interval: interval, logger: log}
}

// Run polls until ctx is done. The target first sees a loading identity, then the fetched one.
func (w *Watcher) Run(ctx context.Context) {
	w.push(ctx, driver.Identity{Loading: true})

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.Refresh(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Refresh fetches the identity once. A rejected token clears the identity; transient
// failures keep the last known one.
func (w *Watcher) Refresh(ctx context.Context) {
	id, err := w.dir.Me(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, ErrUnauthorized) {
			w.logger.Warn(ctx, "identity_unauthorized", "Driver token rejected, going offline", nil)
			w.push(ctx, driver.Identity{})
			return
		}
		w.logger.Error(ctx, "identity_fetch_failed", "Failed to fetch driver profile", err, nil)
		return
	}
	w.push(ctx, id)
}

func (w *Watcher) push(ctx context.Context, id driver.Identity) {
	w.mu.Lock()
	changed := !w.known || w.current != id
	w.current = id
	w.known = true
	w.mu.Unlock()

	if !changed {
		return
	}

	w.logger.Info(ctx, "identity_changed", "Driver identity changed", map[string]any{
		"driver_id":       id.DriverID,
		"vehicle_type":    id.VehicleType,
		"approval_status": id.ApprovalStatus.String(),
		"loading":         id.Loading,
	})
	w.target.Apply(ctx, id)
}
