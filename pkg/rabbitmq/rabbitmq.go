package rabbitmq

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	amqp "github.com/streadway/amqp"
)

// DefaultPublishBuffer is the outbox size used when Config.PublishBuffer is unset.
const DefaultPublishBuffer = 256

var (
	// ErrNoChannel is returned when the client has no open channel.
	ErrNoChannel = errors.New("rabbitmq channel is not available")
	// ErrOutboxFull is returned when the broker cannot keep up and a message is dropped.
	ErrOutboxFull = errors.New("rabbitmq outbox is full")
	// ErrClosed is returned by Publish after Close.
	ErrClosed = errors.New("rabbitmq client is closed")
)

// channel is the subset of *amqp.Channel the client uses.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	Close() error
}

type outgoing struct {
	exchange   string
	routingKey string
	body       []byte
	at         time.Time
}

// Client holds the RabbitMQ connection and channel. Publishing is
// asynchronous: messages go to a bounded outbox drained by one goroutine.
type Client struct {
	conn    *amqp.Connection
	channel channel
	// amqp channels are not safe for concurrent use.
	mu  sync.Mutex
	log logrus.FieldLogger

	outbox    chan outgoing
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL string
	// Exchanges are declared as durable topic exchanges on connect.
	Exchanges []string
	// PublishBuffer bounds the outbox; DefaultPublishBuffer when zero.
	PublishBuffer int
}

// NewClient connects to RabbitMQ, opens a channel and declares the
// configured exchanges.
func NewClient(cfg Config, log logrus.FieldLogger) (*Client, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	for _, name := range cfg.Exchanges {
		err = ch.ExchangeDeclare(
			name,    // name
			"topic", // kind
			true,    // durable
			false,   // auto-deleted
			false,   // internal
			false,   // no-wait
			nil,     // arguments
		)
		if err != nil {
			ch.Close()
			conn.Close()
			return nil, fmt.Errorf("failed to declare exchange %s: %w", name, err)
		}
	}

	log.WithField("exchanges", cfg.Exchanges).Info("RabbitMQ client connected")

	c := newClient(ch, cfg.PublishBuffer, log)
	c.conn = conn
	return c, nil
}

func newClient(ch channel, buffer int, log logrus.FieldLogger) *Client {
	if buffer <= 0 {
		buffer = DefaultPublishBuffer
	}
	c := &Client{
		channel: ch,
		log:     log,
		outbox:  make(chan outgoing, buffer),
		done:    make(chan struct{}),
	}
	c.wg.Add(1)
	go c.drain()
	return c
}

func (c *Client) drain() {
	defer c.wg.Done()
	for {
		select {
		case <-c.done:
			if n := len(c.outbox); n > 0 {
				c.log.WithField("dropped", n).Warn("Discarding unsent events on close")
			}
			return
		case m := <-c.outbox:
			if err := c.send(m); err != nil {
				c.log.WithError(err).WithFields(logrus.Fields{
					"exchange":    m.exchange,
					"routing_key": m.routingKey,
				}).Warn("Failed to publish event")
			}
		}
	}
}

func (c *Client) send(m outgoing) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil {
		return ErrNoChannel
	}

	err := c.channel.Publish(
		m.exchange,
		m.routingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         m.body,
			DeliveryMode: amqp.Persistent,
			Timestamp:    m.at,
		})
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.log.WithFields(logrus.Fields{"exchange": m.exchange, "routing_key": m.routingKey}).Debug("Published event")
	return nil
}

// Publish queues a persistent JSON message for exchange with routingKey. It
// never waits on the broker: a full outbox drops the message with ErrOutboxFull.
func (c *Client) Publish(exchange, routingKey string, body []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.outbox <- outgoing{exchange: exchange, routingKey: routingKey, body: body, at: time.Now()}:
		return nil
	default:
		return ErrOutboxFull
	}
}

// Close stops the publisher and closes the connection. Messages still in
// the outbox are discarded.
func (c *Client) Close() error {
	var errs []error
	c.closeOnce.Do(func() {
		close(c.done)

		// Closing the connection (or the bare channel) releases a publish
		// stuck on the socket so the drain goroutine can exit.
		if c.conn != nil {
			if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
				errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
			}
		} else if c.channel != nil {
			if err := c.channel.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
			}
		}
		c.wg.Wait()

		c.mu.Lock()
		c.channel = nil
		c.conn = nil
		c.mu.Unlock()
	})
	return errors.Join(errs...)
}

// Consume binds a durable queue to exchange under bindingKey and hands every
// delivery to handler on a background goroutine. A nil error acks the
// message; an error nacks it without requeueing, so a poison message cannot
// loop.
func (c *Client) Consume(queue, exchange, bindingKey string, handler func(msg amqp.Delivery) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.channel == nil {
		return ErrNoChannel
	}

	q, err := c.channel.QueueDeclare(
		queue, // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	if err := c.channel.QueueBind(q.Name, bindingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queue, err)
	}

	msgs, err := c.channel.Consume(
		q.Name, // queue
		"",     // consumer tag
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	logCtx := c.log.WithFields(logrus.Fields{"queue": q.Name, "binding_key": bindingKey})
	logCtx.Info("Waiting for account events")

	go func() {
		for msg := range msgs {
			if err := handler(msg); err != nil {
				logCtx.WithError(err).WithField("delivery_tag", msg.DeliveryTag).Warn("Failed to process message")
				if nackErr := msg.Nack(false, false); nackErr != nil {
					logCtx.WithError(nackErr).Error("Failed to nack message")
				}
				continue
			}
			if ackErr := msg.Ack(false); ackErr != nil {
				logCtx.WithError(ackErr).Error("Failed to ack message")
			}
		}
		logCtx.Info("Delivery channel closed")
	}()

	return nil
}
