// Package events fans committed audit entries out to a RabbitMQ topic exchange.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

const (
	exchangeKindTopic  = "topic"
	contentTypeJSON    = "application/json"
	defaultDialTimeout = 10 * time.Second
	schemeAMQP         = "amqp"
	schemeAMQPS        = "amqps"
)

// ErrInvalidAMQPURL is returned for URLs that are not amqp:// or amqps://.
var ErrInvalidAMQPURL = errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")

// Publisher is implemented by types that can publish JSON events.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
}

// EventProducer holds the RabbitMQ connection and channel for one exchange.
type EventProducer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if index := strings.Index(strings.ToLower(clean), schemeAMQP); index > 0 {
		clean = clean[index:]
	}
	parsed, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != schemeAMQP && parsed.Scheme != schemeAMQPS {
		return "", ErrInvalidAMQPURL
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ and declares a durable topic exchange.
func NewEventProducer(amqpURL string, exchange string) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(exchange) == "" {
		return nil, errors.New("exchange name is required")
	}
	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(defaultDialTimeout)})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	producer := &EventProducer{conn: conn, exchange: exchange}
	if err := producer.reopenChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return producer, nil
}

func (producer *EventProducer) reopenChannel() error {
	channel, err := producer.conn.Channel()
	if err != nil {
		return fmt.Errorf("open channel: %w", err)
	}
	if err := channel.ExchangeDeclare(producer.exchange, exchangeKindTopic, true, false, false, false, nil); err != nil {
		channel.Close()
		return fmt.Errorf("declare exchange %s: %w", producer.exchange, err)
	}
	producer.channel = channel
	return nil
}

// Publish marshals body as JSON and publishes it with routingKey. A failed
// publish reopens the channel and retries once.
func (producer *EventProducer) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	message := amqp091.Publishing{
		ContentType:  contentTypeJSON,
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         payload,
	}

	producer.mu.Lock()
	defer producer.mu.Unlock()
	err = producer.channel.PublishWithContext(ctx, producer.exchange, routingKey, false, false, message)
	if err == nil {
		return nil
	}
	if reopenErr := producer.reopenChannel(); reopenErr != nil {
		return errors.Join(err, reopenErr)
	}
	return producer.channel.PublishWithContext(ctx, producer.exchange, routingKey, false, false, message)
}

// Close closes the channel and connection.
func (producer *EventProducer) Close() error {
	producer.mu.Lock()
	defer producer.mu.Unlock()
	var channelErr error
	if producer.channel != nil {
		channelErr = producer.channel.Close()
	}
	return errors.Join(channelErr, producer.conn.Close())
}
