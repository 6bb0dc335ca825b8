package location

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"driver-dispatch/internal/domain/geo"
	"driver-dispatch/internal/general/logger"

	"github.com/segmentio/kafka-go"
)

// MessageReader is the subset of *kafka.Reader the provider needs.
type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// fixMessage is the telematics record published per vehicle, keyed by driver id.
type fixMessage struct {
	ID  string `json:"id"`
	Loc struct {
		Lat float64 `json:"lat"`
		Lon float64 `json:"lon"`
	} `json:"loc"`
	Updated time.Time `json:"updated"`
}

// KafkaProvider consumes the telematics topic and forwards fixes for one driver.
type KafkaProvider struct {
	newReader func() MessageReader
	driverID  string
	logger    *logger.Logger
}

func NewKafkaProvider(brokers []string, topic, group, driverID string, log *logger.Logger) *KafkaProvider {
	return &KafkaProvider{
		newReader: func() MessageReader {
			cfg := kafka.ReaderConfig{Brokers: brokers, Topic: topic, MinBytes: 1, MaxBytes: 10e6}
			if group != "" {
				cfg.GroupID = group
			} else {
				cfg.StartOffset = kafka.LastOffset
			}
			return kafka.NewReader(cfg)
		},
		driverID: driverID,
		logger:   log,
	}
}

func (p *KafkaProvider) Watch(ctx context.Context, onFix func(geo.Sample), onErr func(error)) error {
	r := p.newReader()
	defer func() {
		_ = r.Close()
	}()

	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			onErr(fmt.Errorf("kafka read: %w", err))

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		if len(m.Key) > 0 && string(m.Key) != p.driverID {
			continue
		}

		var fix fixMessage
		if err := json.Unmarshal(m.Value, &fix); err != nil {
			onErr(fmt.Errorf("kafka payload: %w", err))
			continue
		}
		if fix.ID != "" && fix.ID != p.driverID {
			continue
		}

		sample, err := geo.NewSample(fix.Loc.Lat, fix.Loc.Lon, fix.Updated)
		if err != nil {
			onErr(err)
			continue
		}
		p.logger.Debug(ctx, "kafka_fix_received", "Position fix consumed",
			map[string]any{"partition": m.Partition, "offset": m.Offset})
		onFix(sample)
	}
}
