// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file centralizes repository error values and the
// unique-violation probe used to resolve insert races.
package repo

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

// ErrNotFound is returned when a requested record does not exist. It aliases
// gorm.ErrRecordNotFound for convenience and consistency across the service
// layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrAccessDenied is returned by write-path operations when the caller's
// user id does not match the stored owner of a conversation. Read-path
// lookups deliberately collapse this case into ErrNotFound.
var ErrAccessDenied = errors.New("access denied")

// IsDuplicate reports whether err is a unique-constraint violation. Both the
// PostgreSQL and the pure-Go SQLite drivers surface these differently, so the
// check covers the translated GORM error plus the known driver messages.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key value") ||
		strings.Contains(low, "sqlstate 23505")
}
