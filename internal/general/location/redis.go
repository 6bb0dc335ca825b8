package location

import (
	"context"
	"fmt"
	"time"

	"driver-dispatch/internal/domain/geo"

	"github.com/redis/go-redis/v9"
)

// GeoReader is the subset of redis operations the provider needs.
type GeoReader interface {
	GeoPos(ctx context.Context, key string, members ...string) *redis.GeoPosCmd
}

// RedisProvider polls the driver's member of a Redis GEO set kept fresh by vehicle telematics.
type RedisProvider struct {
	rc       GeoReader
	key      string
	driverID string
	interval time.Duration
}

func NewRedisProvider(rc GeoReader, key, driverID string, interval time.Duration) *RedisProvider {
	return &RedisProvider{rc: rc, key: key, driverID: driverID, interval: interval}
}

func (p *RedisProvider) Watch(ctx context.Context, onFix func(geo.Sample), onErr func(error)) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var prev *redis.GeoPos
	for {
		pos, err := p.poll(ctx)
		switch {
		case err != nil:
			if ctx.Err() != nil {
				return nil
			}
			onErr(err)
		case prev != nil && prev.Latitude == pos.Latitude && prev.Longitude == pos.Longitude:
			// unchanged since the last poll
		default:
			prev = pos
			sample, err := geo.NewSample(pos.Latitude, pos.Longitude, time.Now())
			if err != nil {
				onErr(err)
				break
			}
			onFix(sample)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (p *RedisProvider) poll(ctx context.Context) (*redis.GeoPos, error) {
	res, err := p.rc.GeoPos(ctx, p.key, p.driverID).Result()
	if err != nil {
		return nil, fmt.Errorf("redis geopos: %w", err)
	}
	if len(res) == 0 || res[0] == nil {
		return nil, ErrNoFix
	}
	return res[0], nil
}
