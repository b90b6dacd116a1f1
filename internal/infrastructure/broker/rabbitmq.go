package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"dispatch-backend/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const reconnectInterval = 5 * time.Second

var ErrClosed = errors.New("broker connection closed")

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	IsClosed() bool
	Close() error
}

type connection interface {
	IsClosed() bool
	Close() error
}

func dialAMQP(url string) (connection, channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("open channel: %w", err)
	}
	return conn, ch, nil
}

type Message struct {
	NotificationID string                  `json:"notification_id"`
	Type           domain.NotificationType `json:"type"`
	RecipientType  domain.RecipientType    `json:"recipient_type"`
	RecipientID    string                  `json:"recipient_id,omitempty"`
	OrderID        string                  `json:"order_id,omitempty"`
	Title          string                  `json:"title"`
	Message        string                  `json:"message"`
	CreatedAt      time.Time               `json:"created_at"`
}

// RoutingKey is "<recipientType>.<type>", e.g. "driver.driver_assigned".
func RoutingKey(n domain.Notification) string {
	return string(n.RecipientType) + "." + string(n.Type)
}

// Publisher fans committed notifications out to a topic exchange.
type Publisher struct {
	url      string
	exchange string
	log      *slog.Logger
	dial     func(url string) (connection, channel, error)

	mu           sync.Mutex
	conn         connection
	ch           channel
	reconnecting bool
	closed       bool
	done         chan struct{}
}

func NewPublisher(url, exchange string, log *slog.Logger) (*Publisher, error) {
	if log == nil {
		log = slog.Default()
	}
	p := &Publisher{url: url, exchange: exchange, log: log.With("component", "broker"), dial: dialAMQP, done: make(chan struct{})}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

// connect dials a fresh connection and installs it unless the publisher was
// closed in the meantime, in which case the new connection is dropped.
func (p *Publisher) connect() error {
	conn, ch, err := p.dial(p.url)
	if err != nil {
		return err
	}
	if err := ch.ExchangeDeclare(p.exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		ch.Close()
		conn.Close()
		return ErrClosed
	}
	old := p.conn
	p.conn = conn
	p.ch = ch
	p.mu.Unlock()
	if old != nil && !old.IsClosed() {
		old.Close()
	}
	return nil
}

func (p *Publisher) Publish(ctx context.Context, n domain.Notification) error {
	p.mu.Lock()
	ch, closed := p.ch, p.closed
	p.mu.Unlock()
	if closed {
		return ErrClosed
	}
	if ch == nil || ch.IsClosed() {
		go p.reconnect()
		return ErrClosed
	}
	body, err := json.Marshal(Message{
		NotificationID: n.ID,
		Type:           n.Type,
		RecipientType:  n.RecipientType,
		RecipientID:    n.RecipientID,
		OrderID:        n.OrderID,
		Title:          n.Title,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		return err
	}
	return ch.PublishWithContext(ctx, p.exchange, RoutingKey(n), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    n.ID,
		Timestamp:    n.CreatedAt,
		Body:         body,
	})
}

func (p *Publisher) reconnect() {
	p.mu.Lock()
	if p.reconnecting || p.closed {
		p.mu.Unlock()
		return
	}
	p.reconnecting = true
	p.mu.Unlock()
	defer func() {
		p.mu.Lock()
		p.reconnecting = false
		p.mu.Unlock()
	}()

	t := time.NewTicker(reconnectInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := p.connect(); errors.Is(err, ErrClosed) {
				return
			} else if err != nil {
				p.log.Warn("rabbitmq reconnect failed", "error", err)
				continue
			}
			p.log.Info("rabbitmq reconnected")
			return
		case <-p.done:
			return
		}
	}
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	close(p.done)
	if p.ch != nil && !p.ch.IsClosed() {
		if err := p.ch.Close(); err != nil {
			return fmt.Errorf("close rabbitmq channel: %w", err)
		}
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if err := p.conn.Close(); err != nil {
			return fmt.Errorf("close rabbitmq connection: %w", err)
		}
	}
	return nil
}
