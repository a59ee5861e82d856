package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/items-api/internal/model"
)

// ItemProcessor receives created and updated items.
type ItemProcessor interface {
	ProcessItem(ctx context.Context, it model.Item) (map[string]any, error)
}

// Consumer drains ItemsQueue. Every event is written to the audit log;
// created and updated items are also forwarded to the processor.
type Consumer struct {
	url       string
	log       *zap.SugaredLogger
	audit     *zap.Logger
	processor ItemProcessor // may be nil
}

func NewConsumer(url string, log *zap.SugaredLogger, audit *zap.Logger, p ItemProcessor) *Consumer {
	return &Consumer{url: url, log: log, audit: audit, processor: p}
}

// Run connects to RabbitMQ, declares the queue and consumes until ctx is
// cancelled. Dial failures and dropped connections are retried with
// exponential backoff capped at 30s. It returns ctx.Err() on shutdown.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.log.Warnf("item-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warnf("item-consumer: consume loop ended: %v; reconnecting", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.log.Warnf("item-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(ItemsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(ItemsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.Handle(ctx, d.Body); err != nil {
				c.log.Errorf("item-consumer: handle message failed: %v", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// Handle processes one message body. Only undecodable messages are
// errors; a processor failure is logged and the event still counts as
// handled so it is not redelivered forever.
func (c *Consumer) Handle(ctx context.Context, body []byte) error {
	var ev ItemEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}

	c.audit.Info(ev.Type,
		zap.String("event_id", ev.ID),
		zap.Uint64("item_id", ev.Item.ID),
		zap.Uint64("owner_id", ev.Item.OwnerID),
		zap.Uint64("actor_id", ev.ActorID),
		zap.String("title", ev.Item.Title),
		zap.String("occurred_at", ev.OccurredAt),
	)

	if c.processor == nil || (ev.Type != ItemCreated && ev.Type != ItemUpdated) {
		return nil
	}
	if _, err := c.processor.ProcessItem(ctx, ev.Item); err != nil {
		c.log.Warnw("item-consumer: analysis forward failed", "item_id", ev.Item.ID, "err", err)
	}
	return nil
}

// sleep waits for d or until ctx is done; it reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
