package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"driver-dispatch/internal/general/contracts"

	amqp "github.com/rabbitmq/amqp091-go"
)

const confirmTimeout = 5 * time.Second

// Publish sends a transient JSON message and blocks until the broker confirms it.
// Telemetry is published without the mandatory flag, so an unbound exchange is not an error.
func (c *Client) Publish(exchange, routingKey string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	l := c.current
	if !l.alive() {
		return ErrNotConnected
	}

	ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
	defer cancel()

	err := l.ch.PublishWithContext(ctx, exchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Transient,
		ContentType:  "application/json",
		AppId:        contracts.Producer,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq: publish to %s: %w", exchange, err)
	}

	select {
	case conf, ok := <-l.confirms:
		if !ok {
			return ErrNotConnected
		}
		if !conf.Ack {
			return fmt.Errorf("rabbitmq: broker nacked delivery %d", conf.DeliveryTag)
		}
		return nil
	case <-ctx.Done():
		// the link is out of step with its confirms now; drop it and let the redial loop replace it
		c.current = nil
		l.close()
		return fmt.Errorf("rabbitmq: confirm: %w", ctx.Err())
	}
}
