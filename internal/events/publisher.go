// Package events публикует события об обновлении цен в RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leoygitty/GSR-App/internal/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	// RoutingKeySnapshotUpdated - ключ маршрутизации события обновления снимка.
	RoutingKeySnapshotUpdated = "snapshot.updated"

	publishTimeout = 5 * time.Second
)

// Publisher публикует события о снимках цен.
type Publisher interface {
	PublishSnapshot(ctx context.Context, snap models.PriceSnapshot) error
	Close() error
}

// SnapshotEvent - тело события snapshot.updated.
type SnapshotEvent struct {
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	Date      string `json:"date"`
	GoldUSD   string `json:"gold_usd"`
	SilverUSD string `json:"silver_usd"`
	GSR       string `json:"gsr"`
	FetchedAt string `json:"fetched_at_utc"`
	Provider  string `json:"provider,omitempty"`
	Method    string `json:"method,omitempty"`
}

// NewSnapshotEvent собирает событие из снимка.
func NewSnapshotEvent(snap models.PriceSnapshot) SnapshotEvent {
	return SnapshotEvent{
		EventID:   uuid.NewString(),
		Type:      RoutingKeySnapshotUpdated,
		Date:      snap.Date.Format(models.DateLayout),
		GoldUSD:   snap.GoldUSD.String(),
		SilverUSD: snap.SilverUSD.String(),
		GSR:       snap.Ratio.String(),
		FetchedAt: snap.FetchedAt.UTC().Format(time.RFC3339),
		Provider:  snap.Source.Provider,
		Method:    snap.Source.Method,
	}
}

// NoopPublisher ничего не публикует. Используется, когда брокер не настроен.
type NoopPublisher struct{}

// PublishSnapshot ничего не делает.
func (NoopPublisher) PublishSnapshot(context.Context, models.PriceSnapshot) error { return nil }

// Close ничего не делает.
func (NoopPublisher) Close() error { return nil }

// amqpChannel - часть *amqp.Channel, нужная издателю.
type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialFunc открывает соединение и канал с объявленным exchange.
type dialFunc func(url, exchange string) (closer, amqpChannel, error)

// closer - соединение с брокером.
type closer interface {
	Close() error
	IsClosed() bool
}

// AMQPPublisher публикует события в topic exchange.
type AMQPPublisher struct {
	url      string
	exchange string
	log      logrus.FieldLogger
	dial     dialFunc

	mu   sync.Mutex
	conn closer
	ch   amqpChannel
}

// NewAMQPPublisher подключается к брокеру и объявляет exchange.
func NewAMQPPublisher(url, exchange string, log logrus.FieldLogger) (*AMQPPublisher, error) {
	return newAMQPPublisher(url, exchange, log, dialAMQP)
}

func newAMQPPublisher(url, exchange string, log logrus.FieldLogger, dial dialFunc) (*AMQPPublisher, error) {
	p := &AMQPPublisher{url: url, exchange: exchange, log: log, dial: dial}
	if err := p.connect(); err != nil {
		return nil, err
	}
	return p, nil
}

func dialAMQP(url, exchange string) (closer, amqpChannel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to dial RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,   // arguments
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, fmt.Errorf("failed to declare exchange: %w", err)
	}
	return conn, ch, nil
}

func (p *AMQPPublisher) connect() error {
	conn, ch, err := p.dial(p.url, p.exchange)
	if err != nil {
		return err
	}
	p.conn = conn
	p.ch = ch
	p.log.WithField("exchange", p.exchange).Info("[Events] Подключение к RabbitMQ установлено")
	return nil
}

// PublishSnapshot публикует snapshot.updated. При разорванном соединении
// делает одну попытку переподключения.
func (p *AMQPPublisher) PublishSnapshot(ctx context.Context, snap models.PriceSnapshot) error {
	event := NewSnapshotEvent(snap)
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() {
		p.log.Warn("[Events] Соединение с RabbitMQ потеряно, переподключаемся")
		if err := p.connect(); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = p.ch.PublishWithContext(ctx, p.exchange, RoutingKeySnapshotUpdated, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    event.EventID,
		Timestamp:    snap.FetchedAt,
		Type:         event.Type,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", RoutingKeySnapshotUpdated, err)
	}

	p.log.WithFields(logrus.Fields{
		"event_id": event.EventID,
		"date":     event.Date,
	}).Debug("[Events] Событие опубликовано")
	return nil
}

// Close закрывает канал и соединение.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch != nil {
		_ = p.ch.Close()
		p.ch = nil
	}
	if p.conn != nil {
		err := p.conn.Close()
		p.conn = nil
		return err
	}
	return nil
}

var (
	_ Publisher = NoopPublisher{}
	_ Publisher = (*AMQPPublisher)(nil)
)
