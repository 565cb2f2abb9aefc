package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	amqp "github.com/streadway/amqp"
	"go.uber.org/zap"
)

// ErrClosed is returned once the client has been closed.
var ErrClosed = errors.New("rabbitmq client is closed")

// Client holds the RabbitMQ connection, a publishing channel guarded by a
// mutex and a separate channel for consumers.
type Client struct {
	conn       *amqp.Connection
	pubCh      *amqp.Channel
	subCh      *amqp.Channel
	exchange   string
	deadLetter string
	retryDelay time.Duration
	breaker    *gobreaker.CircuitBreaker
	logger     *zap.Logger
	mu         sync.Mutex
	closed     bool
	closeOnce  sync.Once
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL      string
	Exchange string
	// DeadLetterExchange receives messages that failed twice. Empty drops them.
	DeadLetterExchange string
	// RetryDelay is waited before a failed message is requeued.
	RetryDelay time.Duration
}

// NewClient connects to RabbitMQ and declares the durable topic exchange
// that events are published to.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	pubCh, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	subCh, err := conn.Channel()
	if err != nil {
		pubCh.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	err = pubCh.ExchangeDeclare(
		cfg.Exchange, // name
		"topic",      // kind
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		subCh.Close()
		pubCh.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange %s: %w", cfg.Exchange, err)
	}

	logger.Info("rabbitmq connected", zap.String("exchange", cfg.Exchange))

	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = time.Second
	}

	return &Client{
		conn:       conn,
		pubCh:      pubCh,
		subCh:      subCh,
		exchange:   cfg.Exchange,
		deadLetter: cfg.DeadLetterExchange,
		retryDelay: cfg.RetryDelay,
		breaker:    newBreaker("rabbitmq-publish", logger),
		logger:     logger,
	}, nil
}

func newBreaker(name string, logger *zap.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    5 * time.Second,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
}

// Status reports the connection state for health checks.
func (c *Client) Status() string {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed || c.conn == nil || c.conn.IsClosed() {
		return "disconnected"
	}
	return "connected"
}

// Close closes the channels and the connection.
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		for _, ch := range []*amqp.Channel{c.subCh, c.pubCh} {
			if ch == nil {
				continue
			}
			if err := ch.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
			}
		}
		if c.conn != nil {
			if err := c.conn.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
			}
		}
	})
	return errors.Join(errs...)
}

// Publish sends a persistent JSON message to the exchange. Calls fail fast
// with gobreaker.ErrOpenState while the broker keeps failing.
func (c *Client) Publish(ctx context.Context, routingKey string, body []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.closed {
			return nil, ErrClosed
		}
		return nil, c.pubCh.Publish(
			c.exchange, // exchange
			routingKey, // routing key
			false,      // mandatory
			false,      // immediate
			amqp.Publishing{
				ContentType:  "application/json",
				Body:         body,
				DeliveryMode: amqp.Persistent,
				Timestamp:    time.Now(),
			})
	})
	if err != nil {
		return fmt.Errorf("failed to publish %s: %w", routingKey, err)
	}

	c.logger.Debug("event published", zap.String("routing_key", routingKey), zap.Int("bytes", len(body)))
	return nil
}

// Handler processes one delivery. A nil error acks the message. On an error
// the message is requeued once after RetryDelay; a redelivered message that
// fails again is dead-lettered, or dropped when no dead-letter exchange is set.
type Handler func(ctx context.Context, msg amqp.Delivery) error

// Consume declares a durable queue and processes its messages until ctx is
// done or the channel closes.
func (c *Client) Consume(ctx context.Context, queueName string, handler Handler) error {
	var args amqp.Table
	if c.deadLetter != "" {
		args = amqp.Table{"x-dead-letter-exchange": c.deadLetter}
	}
	queue, err := c.subCh.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		args,      // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queueName, err)
	}

	msgs, err := c.subCh.Consume(
		queue.Name, // queue
		"",         // consumer tag
		false,      // auto-ack
		false,      // exclusive
		false,      // no-local
		false,      // no-wait
		nil,        // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	c.logger.Info("consuming", zap.String("queue", queue.Name))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			c.dispatch(ctx, msg, handler)
		}
	}
}

func (c *Client) dispatch(ctx context.Context, msg amqp.Delivery, handler Handler) {
	if err := handler(ctx, msg); err != nil {
		requeue := !msg.Redelivered
		if requeue {
			c.logger.Warn("message processing failed, requeueing",
				zap.Uint64("delivery_tag", msg.DeliveryTag),
				zap.Duration("delay", c.retryDelay),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
			case <-time.After(c.retryDelay):
			}
		} else {
			c.logger.Error("redelivered message failed again, giving up",
				zap.Uint64("delivery_tag", msg.DeliveryTag),
				zap.String("dead_letter_exchange", c.deadLetter),
				zap.ByteString("body", msg.Body),
				zap.Error(err),
			)
		}
		if nackErr := msg.Nack(false, requeue); nackErr != nil {
			c.logger.Error("nack failed", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(nackErr))
		}
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		c.logger.Error("ack failed", zap.Uint64("delivery_tag", msg.DeliveryTag), zap.Error(ackErr))
	}
}
