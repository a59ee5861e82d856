// Package service provides outbound integrations used by the handlers.
// Publishing errors are logged and returned so callers can ignore them
// without interrupting the request that triggered the event.
package service

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/items-api/internal/model"
	q "github.com/iliyamo/items-api/internal/queue"
	"github.com/iliyamo/items-api/internal/utils"
)

// Publisher sends item events to RabbitMQ. Each call dials its own
// connection, so a Publisher holds no broker state and is safe for
// concurrent use.
type Publisher struct {
	url string
	ids *utils.IDGenerator
	log *zap.SugaredLogger
	now func() time.Time
}

func NewPublisher(url string, ids *utils.IDGenerator, log *zap.SugaredLogger) *Publisher {
	return &Publisher{url: url, ids: ids, log: log, now: time.Now}
}

// NewItemEvent stamps an event for it.
func (p *Publisher) NewItemEvent(eventType string, it model.Item, actorID uint64) q.ItemEvent {
	return q.ItemEvent{
		ID:         p.ids.Next(),
		Type:       eventType,
		Item:       it,
		ActorID:    actorID,
		OccurredAt: p.now().UTC().Format(time.RFC3339),
	}
}

// PublishItemEvent builds an event and publishes it as a persistent
// message on the items queue.
func (p *Publisher) PublishItemEvent(ctx context.Context, eventType string, it model.Item, actorID uint64) error {
	return p.Publish(ctx, p.NewItemEvent(eventType, it, actorID))
}

// Publish sends ev to the items queue.
func (p *Publisher) Publish(ctx context.Context, ev q.ItemEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		p.log.Errorf("rabbitmq: marshal event failed: %v", err)
		return err
	}

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Warnf("rabbitmq: dial failed: %v", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Warnf("rabbitmq: channel open failed: %v", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		q.ItemsQueue, // name
		true,         // durable
		false,        // autoDelete
		false,        // exclusive
		false,        // noWait
		nil,          // args
	); err != nil {
		p.log.Warnf("rabbitmq: queue declare failed: %v", err)
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    p.now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",           // default exchange
		q.ItemsQueue, // routing key = queue name
		false,        // mandatory
		false,        // immediate
		pub,
	); err != nil {
		p.log.Warnf("rabbitmq: publish failed: %v", err)
		return err
	}
	return nil
}
