// This file defines the item repository. An Item belongs to exactly one
// owner; ownership decisions are made by the auth core, so the queries
// here do not filter by owner. Update never touches owner_id.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/iliyamo/items-api/internal/model"
)

const itemColumns = "id, title, description, owner_id, created_at, updated_at"

// ItemRepo encapsulates all database queries related to items.
type ItemRepo struct {
	db *sqlx.DB // db is the underlying database connection pool
}

// NewItemRepo constructs an ItemRepo with the provided DB handle.
func NewItemRepo(db *sqlx.DB) *ItemRepo {
	return &ItemRepo{db: db}
}

// Create inserts a new item. On success the item's ID and timestamps are
// populated from a follow-up SELECT so callers receive the stored record.
func (r *ItemRepo) Create(ctx context.Context, it *model.Item) error {
	const qInsert = "INSERT INTO items (title, description, owner_id) VALUES (?, ?, ?)"
	res, err := r.db.ExecContext(ctx, qInsert, it.Title, it.Description, it.OwnerID)
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert item: %w", err)
	}
	stored, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*it = stored
	return nil
}

// GetByID fetches an item regardless of owner. It returns ErrNotFound if
// no row matches.
func (r *ItemRepo) GetByID(ctx context.Context, id uint64) (model.Item, error) {
	var it model.Item
	if err := r.db.GetContext(ctx, &it, "SELECT "+itemColumns+" FROM items WHERE id = ?", id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Item{}, ErrNotFound
		}
		return model.Item{}, fmt.Errorf("select item: %w", err)
	}
	return it, nil
}

// List returns up to limit items ordered by id, skipping the first skip rows.
func (r *ItemRepo) List(ctx context.Context, skip, limit int) ([]model.Item, error) {
	out := []model.Item{}
	const q = "SELECT " + itemColumns + " FROM items ORDER BY id LIMIT ? OFFSET ?"
	if err := r.db.SelectContext(ctx, &out, q, limit, skip); err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return out, nil
}

// Update rewrites title and description of an existing item and returns
// the stored record. ErrNotFound is returned when the id does not exist.
func (r *ItemRepo) Update(ctx context.Context, id uint64, title, description string) (model.Item, error) {
	const q = `UPDATE items
	           SET title = ?, description = ?, updated_at = CURRENT_TIMESTAMP
	           WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, q, title, description, id); err != nil {
		return model.Item{}, fmt.Errorf("update item: %w", err)
	}
	// RowsAffected is 0 for an unchanged row in MySQL, so existence is
	// confirmed by reading the row back.
	return r.GetByID(ctx, id)
}

// Delete removes an item. ErrNotFound is returned when nothing was deleted.
func (r *ItemRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM items WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
