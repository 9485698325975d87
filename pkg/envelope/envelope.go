// Package envelope defines the two wire shapes of the API: {data, meta} for
// successes and {error} for failures.
package envelope

import (
	"reflect"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/pkg/pagination"
)

// Envelope is the success body.
type Envelope struct {
	Data any   `json:"data"`
	Meta *Meta `json:"meta,omitempty"`
}

type Meta struct {
	Pagination *pagination.Meta `json:"pagination,omitempty"`
}

// ErrorEnvelope is the failure body.
type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

type ErrorBody struct {
	Code      string    `json:"code"`
	Message   string    `json:"message"`
	Details   []Detail  `json:"details,omitempty"`
	RequestID string    `json:"requestId"`
	Timestamp time.Time `json:"timestamp"`
}

type Detail struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Failure builds an error body. The timestamp is normalized to UTC.
func Failure(code, message string, details []Detail, requestID string, at time.Time) *ErrorEnvelope {
	return &ErrorEnvelope{Error: ErrorBody{
		Code:      code,
		Message:   message,
		Details:   details,
		RequestID: requestID,
		Timestamp: at.UTC(),
	}}
}

// Wrap puts v under a data key unless it already has one. A nil result
// becomes {data: null}.
func Wrap(v any) any {
	if isNil(v) {
		return Envelope{Data: nil}
	}
	if hasData(v) {
		return v
	}
	return Envelope{Data: v}
}

// JSON writes v wrapped in the success envelope.
func JSON(c echo.Context, status int, v any) error {
	return c.JSON(status, Wrap(v))
}

// Paginated builds {data, meta: {pagination}} for one page of items.
func Paginated(items any, p pagination.Params, total int) Envelope {
	m := p.Meta(total)
	return Envelope{Data: items, Meta: &Meta{Pagination: &m}}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func hasData(v any) bool {
	switch x := v.(type) {
	case Envelope, *Envelope:
		return true
	case map[string]any:
		_, ok := x["data"]
		return ok
	}

	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return false
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return false
	}
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "data" || (name == "" && f.Name == "Data") {
			return true
		}
	}
	return false
}
