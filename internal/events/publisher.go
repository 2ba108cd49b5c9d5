// Package events publishes dispatch lifecycle events to a RabbitMQ topic
// exchange. Consumers bind their own queues by routing key.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/streadway/amqp"

	"github.com/ignite/dm-dispatch/internal/pkg/logger"
)

// ErrClosed is returned when publishing after Close.
var ErrClosed = errors.New("events: publisher closed")

// channel is the part of *amqp.Channel the publisher needs.
type channel interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPPublisher publishes JSON events. An amqp.Channel is not safe for
// concurrent publishes, so calls are serialized.
type AMQPPublisher struct {
	mu       sync.Mutex
	conn     *amqp.Connection
	ch       channel
	exchange string
	closed   bool
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	logger.Info("amqp publisher connected", "exchange", exchange)
	return &AMQPPublisher{conn: conn, ch: ch, exchange: exchange}, nil
}

func newWithChannel(ch channel, exchange string) *AMQPPublisher {
	return &AMQPPublisher{ch: ch, exchange: exchange}
}

// Publish sends payload as a persistent JSON message with the given
// routing key. The context only guards against publishing after the
// caller has given up.
func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", routingKey, err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	err = p.ch.Publish(p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    uuid.New().String(),
		Timestamp:    time.Now().UTC(),
		Type:         routingKey,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}

// Close shuts the channel and connection. Safe to call more than once.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Nop drops every event. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, string, any) error { return nil }
