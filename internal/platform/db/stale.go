package db

import (
	"errors"

	"github.com/jackc/pgx/v5"
)

// ErrStale is returned by a guarded update whose row no longer holds the
// state the caller read.
var ErrStale = errors.New("db: row changed since it was read")

// Guarded maps the empty result of a guarded UPDATE ... RETURNING to
// ErrStale. The caller read the row first, so no row means the guard failed.
func Guarded(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrStale
	}
	return err
}
