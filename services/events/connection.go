package events

import (
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rabbitmq/amqp091-go"

	"github.com/customeros/mercure/internal/logger"
)

type Config struct {
	// MessageTTL bounds how long a launch waits in the launch queue
	// before it moves to the DLQ.
	MessageTTL          time.Duration
	MaxRetries          int
	PublishTimeout      time.Duration
	ReconnectBackoff    time.Duration
	MaxReconnectBackoff time.Duration
}

func DefaultConfig() *Config {
	return &Config{
		MessageTTL:          240 * time.Hour,
		MaxRetries:          3,
		PublishTimeout:      5 * time.Second,
		ReconnectBackoff:    time.Second,
		MaxReconnectBackoff: 30 * time.Second,
	}
}

var errConnectionClosed = errors.New("rabbitmq connection closed")

// connection owns one broker connection shared by a publisher or a
// subscriber. The topology is declared after every dial.
type connection struct {
	url    string
	log    logger.Logger
	config Config

	mu     sync.Mutex
	conn   *amqp091.Connection
	closed bool
}

func dial(url string, log logger.Logger, config Config) (*connection, error) {
	c := &connection{url: url, log: log, config: config}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.redialLocked(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *connection) redialLocked() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return errors.Wrap(err, "Failed to connect to RabbitMQ")
	}
	channel, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return errors.Wrap(err, "Failed to open channel for exchange/queue setup")
	}
	err = declareTopology(channel, c.config.MessageTTL)
	_ = channel.Close()
	if err != nil {
		_ = conn.Close()
		return err
	}
	c.conn = conn
	go c.watch(conn)
	return nil
}

// watch redials with exponential backoff once conn drops, unless the
// connection was closed on purpose.
func (c *connection) watch(conn *amqp091.Connection) {
	amqpErr := <-conn.NotifyClose(make(chan *amqp091.Error, 1))
	if amqpErr == nil {
		return
	}
	c.log.Warnf("RabbitMQ connection closed: %v, attempting to reconnect", amqpErr)

	backoff := c.config.ReconnectBackoff
	for {
		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			return
		}
		if c.conn != conn && !c.conn.IsClosed() {
			// already redialed by channel()
			c.mu.Unlock()
			return
		}
		err := c.redialLocked()
		c.mu.Unlock()
		if err == nil {
			c.log.Info("Successfully reconnected to RabbitMQ")
			return
		}
		c.log.Errorf("Failed to reconnect: %v, retrying in %v", err, backoff)
		time.Sleep(backoff)
		backoff = nextBackoff(backoff, c.config.MaxReconnectBackoff)
	}
}

func nextBackoff(current, max time.Duration) time.Duration {
	next := current * 2
	if next > max || next <= 0 {
		return max
	}
	return next
}

// channel opens a channel on the live connection, redialing once when the
// connection is gone.
func (c *connection) channel() (*amqp091.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, errConnectionClosed
	}
	if c.conn == nil || c.conn.IsClosed() {
		if err := c.redialLocked(); err != nil {
			return nil, err
		}
	}
	channel, err := c.conn.Channel()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to open channel")
	}
	return channel, nil
}

func (c *connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *connection) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn != nil && !c.conn.IsClosed() {
		return c.conn.Close()
	}
	return nil
}
