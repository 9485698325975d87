// Package dberr translates storage-engine failures into the apperr taxonomy.
//
// Postgres reports constraint violations as SQLSTATE codes
// (https://www.postgresql.org/docs/current/errcodes-appendix.html). Only the
// templated messages below ever reach a client; the engine text stays on the
// wrapped cause for server-side logging.
package dberr

import (
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

// Engine codes understood by the adapter.
const (
	UniqueViolation     = "23505"
	ForeignKeyViolation = "23503"
	RestrictViolation   = "23001"
	NotNullViolation    = "23502"
	RecordNotFound      = "P0002"
)

const (
	msgNotFound   = "Record not found"
	msgForeignKey = "Referenced record does not exist"
	msgRelation   = "The required relation is violated"
	msgDatabase   = "A database error occurred"
)

// EngineError is the engine-neutral shape of a persistence failure: a code and
// the optional list of fields involved.
type EngineError struct {
	Code    string
	Target  []string
	Message string
}

func (e *EngineError) Error() string {
	if e.Message == "" {
		return "engine error " + e.Code
	}
	return "engine error " + e.Code + ": " + e.Message
}

var keyDetail = regexp.MustCompile(`Key \(([^)]+)\)=`)

// FromPg converts a Postgres error, recovering the violated columns from the
// error's column name or its "Key (a, b)=(...)" detail.
func FromPg(pgErr *pgconn.PgError) *EngineError {
	ee := &EngineError{Code: pgErr.Code, Message: pgErr.Message}
	if m := keyDetail.FindStringSubmatch(pgErr.Detail); len(m) == 2 {
		for _, f := range strings.Split(m[1], ",") {
			if f = strings.TrimSpace(f); f != "" {
				ee.Target = append(ee.Target, f)
			}
		}
	}
	if len(ee.Target) == 0 && pgErr.ColumnName != "" {
		ee.Target = []string{pgErr.ColumnName}
	}
	return ee
}

// Engine extracts the engine failure carried by err, if any.
func Engine(err error) (*EngineError, bool) {
	if err == nil {
		return nil, false
	}
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return FromPg(pgErr), true
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &EngineError{Code: RecordNotFound, Message: err.Error()}, true
	}
	return nil, false
}

// Translate maps a persistence failure onto the taxonomy. The second return
// value is false when err did not originate from the persistence layer.
func Translate(err error) (error, bool) {
	ee, ok := Engine(err)
	if !ok {
		return err, false
	}
	return apperr.Wrap(kindOf(ee), message(ee), err), true
}

func kindOf(ee *EngineError) apperr.Kind {
	switch ee.Code {
	case UniqueViolation:
		return apperr.KindDuplicate
	case ForeignKeyViolation:
		return apperr.KindForeignKey
	case RecordNotFound:
		return apperr.KindNotFound
	case RestrictViolation:
		return apperr.KindRelation
	case NotNullViolation:
		if isRelationColumn(ee.Target) {
			return apperr.KindRelation
		}
	}
	return apperr.KindDatabase
}

func message(ee *EngineError) string {
	switch kindOf(ee) {
	case apperr.KindDuplicate:
		fields := "value"
		if len(ee.Target) > 0 {
			fields = strings.Join(ee.Target, ", ")
		}
		return "A record with this " + fields + " already exists"
	case apperr.KindForeignKey:
		return msgForeignKey
	case apperr.KindNotFound:
		return msgNotFound
	case apperr.KindRelation:
		return msgRelation
	}
	return msgDatabase
}

func isRelationColumn(target []string) bool {
	return len(target) == 1 && strings.HasSuffix(target[0], "_id")
}

// IsUniqueViolation reports whether err is a unique-constraint failure.
func IsUniqueViolation(err error) bool {
	ee, ok := Engine(err)
	return ok && ee.Code == UniqueViolation
}

// IsNotFound reports whether err means the targeted row does not exist.
func IsNotFound(err error) bool {
	ee, ok := Engine(err)
	return ok && ee.Code == RecordNotFound
}
