package repo

import (
	"database/sql"
	"errors"
	"strings"
)

// Repo wraps all storage access. Every conversation read and write is scoped
// by tenant id; nothing in this package can observe another tenant's rows.
type Repo struct {
	DB *sql.DB
}

var (
	ErrNotFound = errors.New("not found")

	// ErrStale means a compare-and-set precondition no longer held because
	// the row moved concurrently. Callers treat it as a benign no-op.
	ErrStale = errors.New("stale transition")
)

// IsUniqueViolation reports whether err comes from a violated unique
// constraint. The sqlite driver surfaces these as plain errors, so the
// check is textual.
func IsUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}
