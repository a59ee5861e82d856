package model

import "time"

// User represents an application user record as stored in the
// `users` table. Email is stored lower-cased, Username is the token
// subject, and IsActive gates authentication. The password hash never
// leaves the server: handlers build their own response types without it.
type User struct {
	ID           uint64    `db:"id"`            // users.id
	Email        string    `db:"email"`         // users.email
	Username     string    `db:"username"`      // users.username
	PasswordHash string    `db:"password_hash"` // users.password_hash
	IsActive     bool      `db:"is_active"`     // users.is_active
	CreatedAt    time.Time `db:"created_at"`    // users.created_at
	UpdatedAt    time.Time `db:"updated_at"`    // users.updated_at
}
