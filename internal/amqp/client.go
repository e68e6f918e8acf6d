package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"sitefin/internal/core"
)

const (
	maxBackoff     = 30 * time.Second
	publishTimeout = 5 * time.Second
	prefetchCount  = 10
)

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewClient connects and declares the topic exchange. When queueName is set
// the queue is declared too and bound to every summary change; publishers
// pass an empty queue name.
func NewClient(url, exchangeName, queueName string) (*Client, error) {
	client := &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}
	return client, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}

	if err := c.setup(channel); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = channel
	c.mu.Unlock()
	return nil
}

func (c *Client) setup(ch *amqp091.Channel) error {
	err := ch.ExchangeDeclare(
		c.exchangeName, // name
		"topic",        // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if c.queueName == "" {
		return nil
	}

	_, err = ch.QueueDeclare(
		c.queueName, // name
		true,        // durable
		false,       // delete when unused
		false,       // exclusive
		false,       // no-wait
		nil,         // arguments
	)
	if err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}

	err = ch.QueueBind(
		c.queueName,          // queue name
		routingKeyPrefix+"*", // every site
		c.exchangeName,       // exchange
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}

	return ch.Qos(prefetchCount, 0, false)
}

func (c *Client) currentChannel() *amqp091.Channel {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel
}

// Publish implements notify.Publisher. A broken connection is re-dialed once
// before giving up.
func (c *Client) Publish(ctx context.Context, ev core.SummaryChanged) error {
	msg := NewSummaryChangedMessage(ev)
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = c.publish(ctx, msg.RoutingKey(), body)
	if isConnectionError(err) {
		slog.WarnContext(ctx, "AMQP connection lost, reconnecting", "error", err)
		c.closeConnection()
		if rerr := c.connect(); rerr != nil {
			return fmt.Errorf("reconnect: %w", rerr)
		}
		err = c.publish(ctx, msg.RoutingKey(), body)
	}
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}

	slog.DebugContext(ctx, "Published summary changed message",
		"site_id", msg.SiteID,
		"revision", msg.Revision,
		"exchange", c.exchangeName)
	return nil
}

func (c *Client) publish(ctx context.Context, routingKey string, body []byte) error {
	ch := c.currentChannel()
	if ch == nil {
		return amqp091.ErrClosed
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	return ch.PublishWithContext(
		ctx,
		c.exchangeName, // exchange
		routingKey,     // routing key
		false,          // mandatory
		false,          // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
}

// ConsumeSummaryChanged delivers messages to handler until ctx ends. Failed
// handlers requeue the message; broken connections are re-dialed with
// exponential backoff.
func (c *Client) ConsumeSummaryChanged(ctx context.Context, handler func(context.Context, *SummaryChangedMessage) error) error {
	if c.queueName == "" {
		return errors.New("consume requires a queue name")
	}

	attempt := 0
	for {
		err := c.consume(ctx, handler)
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		}
		if !isConnectionError(err) {
			return err
		}

		wait := exponentialBackoff(attempt)
		attempt++
		slog.WarnContext(ctx, "AMQP consumer disconnected, retrying",
			"error", err, "attempt", attempt, "backoff", wait)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}

		c.closeConnection()
		if err := c.connect(); err != nil {
			slog.WarnContext(ctx, "AMQP reconnect failed", "error", err)
			continue
		}
		attempt = 0
	}
}

func (c *Client) consume(ctx context.Context, handler func(context.Context, *SummaryChangedMessage) error) error {
	ch := c.currentChannel()
	if ch == nil {
		return amqp091.ErrClosed
	}

	msgs, err := ch.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack (we want manual ack)
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming summary changed messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}

			msg, err := SummaryChangedMessageFromJSON(delivery.Body)
			if err != nil {
				slog.ErrorContext(ctx, "Failed to unmarshal message", "error", err)
				delivery.Nack(false, false) // reject and don't requeue
				continue
			}

			if err := handler(ctx, msg); err != nil {
				slog.ErrorContext(ctx, "Failed to handle message",
					"error", err,
					"site_id", msg.SiteID,
					"revision", msg.Revision)
				delivery.Nack(false, true) // reject and requeue
				continue
			}

			delivery.Ack(false)
			slog.DebugContext(ctx, "Processed summary changed message",
				"site_id", msg.SiteID,
				"revision", msg.Revision)
		}
	}
}

func (c *Client) closeConnection() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}

// exponentialBackoff returns 1s, 2s, 4s... capped at maxBackoff
func exponentialBackoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "channel closed", "channel/connection is not open"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
