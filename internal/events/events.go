// Package events announces answered questions to downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/sqlsight/sqlsight/internal/config"
)

const (
	TypeQuestionAnswered = "question.answered"

	defaultExchange   = "sqlsight.events"
	defaultRoutingKey = TypeQuestionAnswered
)

// QuestionAnswered is published once per Ask call, successful or not.
type QuestionAnswered struct {
	Type       string    `json:"type"`
	QueryID    string    `json:"query_id"`
	Question   string    `json:"question"`
	ChartType  string    `json:"chart_type"`
	Success    bool      `json:"success"`
	RowCount   int       `json:"row_count"`
	Cached     bool      `json:"cached"`
	DurationMS int64     `json:"duration_ms"`
	Caller     string    `json:"caller,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type Publisher interface {
	PublishAnswered(ctx context.Context, event QuestionAnswered) error
	Close() error
}

type NoopPublisher struct{}

func (NoopPublisher) PublishAnswered(context.Context, QuestionAnswered) error { return nil }
func (NoopPublisher) Close() error                                            { return nil }

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// RabbitPublisher publishes JSON events to a durable topic exchange.
type RabbitPublisher struct {
	conn       *amqp.Connection
	mu         sync.Mutex
	ch         amqpChannel
	exchange   string
	routingKey string
}

func NewRabbitPublisher(cfg config.EventsConfig) (*RabbitPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("events url is required")
	}
	exchange := cfg.Exchange
	if exchange == "" {
		exchange = defaultExchange
	}
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	p := newRabbitPublisher(ch, exchange, cfg.RoutingKey)
	p.conn = conn
	return p, nil
}

func newRabbitPublisher(ch amqpChannel, exchange, routingKey string) *RabbitPublisher {
	if routingKey == "" {
		routingKey = defaultRoutingKey
	}
	return &RabbitPublisher{ch: ch, exchange: exchange, routingKey: routingKey}
}

func (p *RabbitPublisher) PublishAnswered(ctx context.Context, event QuestionAnswered) error {
	if event.Type == "" {
		event.Type = TypeQuestionAnswered
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	err = p.ch.PublishWithContext(ctx, p.exchange, p.routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.QueryID,
		Type:         event.Type,
		Timestamp:    event.OccurredAt,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

func (p *RabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
