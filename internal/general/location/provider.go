package location

import (
	"context"
	"errors"
	"fmt"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/general/config"
	"driver-dispatch/internal/general/logger"

	"github.com/redis/go-redis/v9"
)

var ErrNoFix = errors.New("no position fix available")

// Provider is a positioning source. Watch blocks until ctx is done, calling onFix for every
// position and onErr for acquisition errors that do not end the watch. A non-nil return means
// the watch itself failed and may be retried.
type Provider interface {
	Watch(ctx context.Context, onFix func(geo.Sample), onErr func(error)) error
}

// Providers builds per-driver providers over connections shared by every session.
type Providers struct {
	cfg *config.Config
	log *logger.Logger
	rc  *redis.Client
}

func NewProviders(cfg *config.Config, log *logger.Logger) *Providers {
	p := &Providers{cfg: cfg, log: log}
	if cfg.Location.Provider == config.ProviderRedis {
		p.rc = redis.NewClient(&redis.Options{Addr: cfg.Location.RedisAddr, Password: cfg.Location.RedisPassword})
	}
	return p
}

// For builds the configured provider for driverID.
func (p *Providers) For(driverID string) (Provider, error) {
	loc := p.cfg.Location
	switch loc.Provider {
	case config.ProviderReplay:
		return NewReplayProvider(loc.TrackFile, loc.ReplayInterval), nil
	case config.ProviderRedis:
		return NewRedisProvider(p.rc, loc.RedisGeoKey, driverID, loc.RedisPoll), nil
	case config.ProviderKafka:
		return NewKafkaProvider(loc.KafkaBrokers, loc.KafkaTopic, loc.KafkaGroup, driverID, p.log), nil
	default:
		return nil, fmt.Errorf("unknown location provider %q", loc.Provider)
	}
}

// Close releases the shared connections.
func (p *Providers) Close() error {
	if p.rc != nil {
		return p.rc.Close()
	}
	return nil
}
