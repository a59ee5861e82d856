package model

import "time"

// Item is an owner-scoped resource stored in the `items` table.
// OwnerID is set once at creation to the creating user's id and
// is never rewritten by updates. Title is required; Description may
// be empty.
type Item struct {
	ID          uint64    `db:"id" json:"id"`                   // items.id
	Title       string    `db:"title" json:"title"`             // items.title
	Description string    `db:"description" json:"description"` // items.description
	OwnerID     uint64    `db:"owner_id" json:"owner_id"`       // items.owner_id
	CreatedAt   time.Time `db:"created_at" json:"created_at"`   // items.created_at
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`   // items.updated_at
}
