// Package validation evaluates explicit schemas (field name → constraint
// predicates) against domain values and reports every violation at once as a
// VALIDATION_ERROR.
package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

// Rule checks one value and returns a violation message, or "" when the value
// satisfies the constraint.
type Rule func(v any) string

// Field binds a field name to an accessor and its rules.
type Field[T any] struct {
	Name  string
	Value func(T) any
	Rules []Rule
}

// Schema is an ordered list of fields; violations are reported in schema
// order.
type Schema[T any] []Field[T]

// Check evaluates the schema against v and returns the violations.
func (s Schema[T]) Check(v T) []apperr.Detail {
	var out []apperr.Detail
	for _, f := range s {
		val := f.Value(v)
		for _, rule := range f.Rules {
			if msg := rule(val); msg != "" {
				out = append(out, apperr.Detail{Field: f.Name, Message: f.Name + " " + msg})
				break
			}
		}
	}
	return out
}

// Validate returns an *apperr.Error listing every violation, or nil.
func (s Schema[T]) Validate(v T) error {
	if details := s.Check(v); len(details) > 0 {
		return apperr.Invalid(details...)
	}
	return nil
}

// tags evaluates go-playground format tags. Validate is safe for concurrent
// use and is never reconfigured after construction.
var tags = validator.New()

// Required rejects zero values: empty strings, nil pointers, zero times and
// nil UUIDs.
func Required() Rule {
	return func(v any) string {
		if isEmpty(v) {
			return "is required"
		}
		return ""
	}
}

// Tag applies a go-playground validator tag such as "email" or "e164" to a
// non-empty value.
func Tag(tag, msg string) Rule {
	return func(v any) string {
		if isEmpty(v) {
			return ""
		}
		if err := tags.Var(deref(v), tag); err != nil {
			return msg
		}
		return ""
	}
}

func Email() Rule { return Tag("email", "must be a valid email address") }

// Phone accepts E.164 numbers (+33612345678).
func Phone() Rule { return Tag("e164", "must be an E.164 phone number") }

func MaxLen(n int) Rule {
	return func(v any) string {
		s, ok := deref(v).(string)
		if ok && len([]rune(s)) > n {
			return fmt.Sprintf("must be at most %d characters", n)
		}
		return ""
	}
}

// Pattern requires a non-empty string to match re.
func Pattern(re *regexp.Regexp, msg string) Rule {
	return func(v any) string {
		s, ok := deref(v).(string)
		if ok && s != "" && !re.MatchString(s) {
			return msg
		}
		return ""
	}
}

// Digits requires a non-empty string of exactly n decimal digits.
func Digits(n int) Rule {
	return Pattern(regexp.MustCompile(fmt.Sprintf(`^[0-9]{%d}$`, n)), fmt.Sprintf("must be %d digits", n))
}

func OneOf(allowed ...string) Rule {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[a] = true
	}
	return func(v any) string {
		s, ok := deref(v).(string)
		if ok && s != "" && !set[s] {
			return "must be one of: " + strings.Join(allowed, ", ")
		}
		return ""
	}
}

// Min requires an integer value of at least n.
func Min(n int64) Rule {
	return func(v any) string {
		rv := reflect.ValueOf(deref(v))
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			if rv.Int() < n {
				return fmt.Sprintf("must be at least %d", n)
			}
		}
		return ""
	}
}

// Past requires a non-zero time strictly before now.
func Past(now func() time.Time) Rule {
	return func(v any) string {
		t, ok := deref(v).(time.Time)
		if ok && !t.IsZero() && !t.Before(now()) {
			return "must be in the past"
		}
		return ""
	}
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func isEmpty(v any) bool {
	switch x := deref(v).(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case time.Time:
		return x.IsZero()
	case uuid.UUID:
		return x == uuid.Nil
	}
	rv := reflect.ValueOf(deref(v))
	switch rv.Kind() {
	case reflect.Slice, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// Date parses a YYYY-MM-DD value for field. An empty string yields the zero
// time so that Required can report it.
func Date(field, s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, apperr.Invalid(apperr.Detail{Field: field, Message: field + " must be a date (YYYY-MM-DD)"})
	}
	return t, nil
}
