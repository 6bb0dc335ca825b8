package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"driver-dispatch/internal/general/config"
	"driver-dispatch/internal/general/contracts"
	"driver-dispatch/internal/general/logger"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	minRedial = time.Second
	maxRedial = 30 * time.Second
)

// ErrNotConnected is returned by Publish while the broker link is down.
var ErrNotConnected = errors.New("rabbitmq: not connected")

// link is one dialed connection with its confirm-mode channel.
type link struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	confirms chan amqp.Confirmation
}

func (l *link) alive() bool {
	return l != nil && !l.conn.IsClosed() && !l.ch.IsClosed()
}

func (l *link) close() {
	_ = l.ch.Close()
	_ = l.conn.Close()
}

// Client publishes fleet telemetry and redials in the background when the broker drops.
type Client struct {
	dsn    string
	logger *logger.Logger
	logCtx context.Context

	// mu guards current and serializes publishes so confirms stay in order
	mu      sync.Mutex
	current *link

	lost chan struct{}
	done chan struct{}
	once sync.Once
}

// ConnectRabbitMQ dials once and fails fast; later outages are healed by the redial loop.
func ConnectRabbitMQ(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Client, error) {
	c := &Client{
		dsn:    dsn(cfg),
		logger: log,
		logCtx: context.WithoutCancel(ctx),
		lost:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	l, err := c.dial()
	if err != nil {
		return nil, err
	}
	c.install(l)
	c.logger.Info(c.logCtx, "rabbitmq_connected", "Telemetry broker connection established", nil)

	go c.redialLoop()
	return c, nil
}

func dsn(cfg *config.Config) string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(cfg.Telemetry.User, cfg.Telemetry.Password),
		Host:   cfg.Telemetry.Host + ":" + strconv.Itoa(cfg.Telemetry.Port),
		Path:   "/",
	}
	return u.String()
}

// Close stops the redial loop and releases the current link. Safe to call twice.
func (c *Client) Close() {
	c.once.Do(func() {
		close(c.done)

		c.mu.Lock()
		if c.current != nil {
			c.current.close()
			c.current = nil
		}
		c.mu.Unlock()
	})
}

// dial opens a link and declares the exchanges telemetry goes to. Queues and bindings
// belong to the consumers.
func (c *Client) dial() (*link, error) {
	conn, err := amqp.DialConfig(c.dsn, amqp.Config{
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(30 * time.Second),
		Properties: amqp.Table{"connection_name": contracts.Producer},
	})
	if err != nil {
		c.logger.Error(c.logCtx, "rabbitmq_dial_failed", "Failed to dial RabbitMQ", err, nil)
		return nil, fmt.Errorf("rabbitmq dial failed: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: open channel: %w", err)
	}

	if err := declare(ch); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}

	return &link{conn: conn, ch: ch, confirms: ch.NotifyPublish(make(chan amqp.Confirmation, 1))}, nil
}

func declare(ch *amqp.Channel) error {
	for name, kind := range map[string]string{
		contracts.ExchangeDriverTopic:    amqp.ExchangeTopic,
		contracts.ExchangeLocationFanout: amqp.ExchangeFanout,
	} {
		if err := ch.ExchangeDeclare(name, kind, true, false, false, false, nil); err != nil {
			return fmt.Errorf("rabbitmq: declare exchange %s: %w", name, err)
		}
	}
	return nil
}

// install swaps in l and arms a watcher that signals the redial loop when l dies.
func (c *Client) install(l *link) {
	c.mu.Lock()
	old := c.current
	c.current = l
	c.mu.Unlock()

	if old != nil {
		old.close()
	}

	connClosed := l.conn.NotifyClose(make(chan *amqp.Error, 1))
	chClosed := l.ch.NotifyClose(make(chan *amqp.Error, 1))
	go func() {
		select {
		case <-c.done:
			return
		case <-connClosed:
		case <-chClosed:
		}
		select {
		case c.lost <- struct{}{}:
		default:
		}
	}()
}

func (c *Client) redialLoop() {
	for {
		select {
		case <-c.done:
			return
		case <-c.lost:
		}

		c.logger.Warn(c.logCtx, "rabbitmq_link_lost", "Telemetry broker link lost, redialing", nil)

		for wait := minRedial; ; wait = min(wait*2, maxRedial) {
			l, err := c.dial()
			if err == nil {
				c.install(l)
				c.logger.Info(c.logCtx, "rabbitmq_reconnected", "Reconnected to telemetry broker", nil)
				break
			}

			c.logger.Error(c.logCtx, "rabbitmq_retry", "Failed to reconnect to telemetry broker", err,
				map[string]any{"retry_in": wait.String()})

			select {
			case <-c.done:
				return
			case <-time.After(wait):
			}
		}
	}
}
