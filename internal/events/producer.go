package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"dating_platform/internal/logger"

	"github.com/rabbitmq/amqp091-go"
)

// Exchange is the durable topic exchange purchase events are published to.
const Exchange = "purchase_events"

// Publisher emits JSON events keyed by routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

// Fallback is used when no broker is configured or reachable at startup.
type Fallback struct{}

func (Fallback) Publish(_ context.Context, routingKey string, _ any) error {
	logger.Debug("event publish skipped", "component", "events", "mode", "fallback", "routing_key", routingKey)
	return nil
}

func (Fallback) Close() {}

// Producer publishes to RabbitMQ over one channel, reopened once on failure.
type Producer struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be amqp:// or amqps://")
	}
	return clean, nil
}

// NewProducer dials the broker with a bounded timeout and declares the
// exchange.
func NewProducer(amqpURL string) (*Producer, error) {
	clean, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	conn, err := amqp091.DialConfig(clean, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	p := &Producer{conn: conn, exchange: Exchange}
	if err := p.reopen(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

// New returns a broker producer, or the fallback when amqpURL is empty or
// the broker cannot be reached.
func New(amqpURL string) Publisher {
	if strings.TrimSpace(amqpURL) == "" {
		logger.Info("AMQP_URL not set, domain events disabled")
		return Fallback{}
	}
	p, err := NewProducer(amqpURL)
	if err != nil {
		logger.Warn("rabbitmq unavailable, domain events disabled", "error", err)
		return Fallback{}
	}
	logger.Info("rabbitmq producer connected", "exchange", Exchange)
	return p
}

func (p *Producer) reopen() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return err
	}
	if p.channel != nil {
		p.channel.Close()
	}
	p.channel = ch
	return nil
}

func (p *Producer) Publish(ctx context.Context, routingKey string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         payload,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}
	logger.Warn("publish failed, reopening channel", "component", "events", "routing_key", routingKey, "error", err)
	if rerr := p.reopen(); rerr != nil {
		return rerr
	}
	return p.channel.PublishWithContext(ctx, p.exchange, routingKey, false, false, msg)
}

func (p *Producer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}
