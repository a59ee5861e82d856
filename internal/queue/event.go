// Package queue defines the item event payload exchanged over RabbitMQ and
// the background consumer that handles it.
package queue

import "github.com/iliyamo/items-api/internal/model"

// ItemsQueue is the durable queue all item events go through.
const ItemsQueue = "items.events"

// Event types.
const (
	ItemCreated = "item.created"
	ItemUpdated = "item.updated"
	ItemDeleted = "item.deleted"
)

// ItemEvent is published after an item mutation commits. It carries the
// item as it was after the change (or just before deletion) so consumers
// never query the primary database.
type ItemEvent struct {
	ID         string     `json:"id"`   // snowflake ID of the event
	Type       string     `json:"type"` // one of the Item* constants
	Item       model.Item `json:"item"`
	ActorID    uint64     `json:"actor_id"`    // user who made the change
	OccurredAt string     `json:"occurred_at"` // RFC 3339, UTC
}
