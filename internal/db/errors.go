package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgconn"
	"gorm.io/gorm"
)

// IsUniqueViolation reports whether err is a storage-level uniqueness
// conflict. The unique indexes double as concurrency control, so callers
// map this onto their domain conflict errors.
func IsUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// SQLite (tests) reports constraint failures as plain strings.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
