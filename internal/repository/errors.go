// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// auth core and the handlers to distinguish between different failure
// scenarios without depending on the storage driver. ErrNotFound is
// returned for any missing row; the duplicate errors are returned by
// user creation when a unique column is already taken.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row. Handlers
// translate this into an HTTP 404 for items; the auth core treats a
// missing user as a credential failure.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when registering an email that is
// already stored.
var ErrEmailExists = errors.New("email already exists")

// ErrUsernameExists is returned when registering a username that is
// already stored.
var ErrUsernameExists = errors.New("username already exists")

// mysqlDuplicateEntry is the server error number for unique key violations.
const mysqlDuplicateEntry = 1062

// duplicateKey returns the name of the unique key a MySQL 1062 error
// reports, e.g. "uq_users_email" for
// "Duplicate entry 'x' for key 'users.uq_users_email'". The duplicated
// value is never inspected.
func duplicateKey(err error) (string, bool) {
	var me *mysql.MySQLError
	if !errors.As(err, &me) || me.Number != mysqlDuplicateEntry {
		return "", false
	}
	const marker = "for key '"
	i := strings.LastIndex(me.Message, marker)
	if i < 0 {
		return "", true
	}
	key := strings.TrimSuffix(me.Message[i+len(marker):], "'")
	if dot := strings.LastIndex(key, "."); dot >= 0 {
		key = key[dot+1:]
	}
	return key, true
}
