package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rollcare/rollcare/internal/platform/apperr"
	"github.com/rollcare/rollcare/pkg/envelope"
)

// Translator rewrites errors from an adapter (storage, remote APIs) into the
// taxonomy. It reports false when err is not its concern.
type Translator func(err error) (error, bool)

// Failure is the classified form of an error, ready to be rendered.
type Failure struct {
	Status  int
	Code    string
	Message string
	Details []apperr.Detail

	// Server-side only.
	Cause error
	Stack []byte
}

// ErrorHandler is the single terminal place where failures become HTTP
// responses. Install Handle as echo's HTTPErrorHandler.
type ErrorHandler struct {
	logger      zerolog.Logger
	translators []Translator
	metrics     *Metrics
	now         func() time.Time
}

type ErrorHandlerOption func(*ErrorHandler)

// WithTranslator adds an adapter translator. Translators run in order and the
// first match wins.
func WithTranslator(t Translator) ErrorHandlerOption {
	return func(h *ErrorHandler) { h.translators = append(h.translators, t) }
}

// WithErrorMetrics counts responses by error code.
func WithErrorMetrics(m *Metrics) ErrorHandlerOption {
	return func(h *ErrorHandler) { h.metrics = m }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) ErrorHandlerOption {
	return func(h *ErrorHandler) { h.now = now }
}

func NewErrorHandler(logger zerolog.Logger, opts ...ErrorHandlerOption) *ErrorHandler {
	h := &ErrorHandler{logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Classify maps err to a Failure. Rules are applied in order: adapter
// translation (skipped for taxonomy members), taxonomy members, echo HTTP
// errors, validator errors, and finally anything else as an internal or
// unknown failure.
func (h *ErrorHandler) Classify(err error) Failure {
	if _, ok := apperr.As(err); !ok {
		for _, t := range h.translators {
			if out, ok := t(err); ok {
				err = out
				break
			}
		}
	}

	if ae, ok := apperr.As(err); ok {
		f := Failure{
			Status:  ae.Status,
			Code:    ae.Code,
			Message: ae.Message,
			Details: ae.Details,
			Cause:   err,
		}
		if f.Status >= http.StatusInternalServerError {
			f.Stack = stackOf(err)
		}
		return f
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		return fromHTTPError(he, err)
	}

	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		details := make([]apperr.Detail, 0, len(ve))
		for _, fe := range ve {
			details = append(details, apperr.Detail{
				Field:   fe.Field(),
				Message: fmt.Sprintf("%s failed on the '%s' rule", fe.Field(), fe.Tag()),
			})
		}
		return Failure{
			Status:  http.StatusBadRequest,
			Code:    apperr.CodeValidation,
			Message: apperr.MessageValidation,
			Details: details,
			Cause:   err,
		}
	}

	var p *apperr.Panic
	if errors.As(err, &p) && !p.IsFault() {
		return Failure{
			Status:  http.StatusInternalServerError,
			Code:    apperr.CodeSystemUnknown,
			Message: apperr.MessageUnknown,
			Cause:   err,
			Stack:   p.Stack,
		}
	}

	return Failure{
		Status:  http.StatusInternalServerError,
		Code:    apperr.CodeInternal,
		Message: apperr.MessageInternal,
		Cause:   err,
		Stack:   stackOf(err),
	}
}

func fromHTTPError(he *echo.HTTPError, err error) Failure {
	status := he.Code
	if status < 400 || status > 599 {
		status = http.StatusInternalServerError
	}

	if msgs, ok := he.Message.([]string); ok {
		details := make([]apperr.Detail, 0, len(msgs))
		for _, m := range msgs {
			details = append(details, apperr.Detail{Message: m})
		}
		return Failure{
			Status:  http.StatusBadRequest,
			Code:    apperr.CodeValidation,
			Message: apperr.MessageValidation,
			Details: details,
			Cause:   err,
		}
	}

	f := Failure{Status: status, Code: apperr.CodeForStatus(status), Cause: err}
	switch {
	case status == http.StatusInternalServerError:
		f.Message = apperr.MessageInternal
	case status > http.StatusInternalServerError:
		f.Message = http.StatusText(status)
	default:
		if msg, ok := he.Message.(string); ok && msg != "" {
			f.Message = msg
		} else {
			f.Message = http.StatusText(status)
		}
	}
	return f
}

func stackOf(err error) []byte {
	var p *apperr.Panic
	if errors.As(err, &p) {
		return p.Stack
	}
	return nil
}

// Handle renders err as the error envelope and writes exactly one log record
// for it. Responses already committed are left alone.
func (h *ErrorHandler) Handle(err error, c echo.Context) {
	if c.Response().Committed {
		h.logger.Debug().
			Str("request_id", RequestIDFrom(c)).
			Err(err).
			Msg("error after response was committed")
		return
	}

	f := h.Classify(err)

	rid := RequestIDFrom(c)
	if rid == "" {
		rid = uuid.NewString()
		c.Response().Header().Set(RequestIDHeader, rid)
	}

	req := c.Request()
	evt := h.logger.Warn()
	if f.Status >= http.StatusInternalServerError {
		evt = h.logger.Error()
		if f.Cause != nil {
			evt = evt.Str("cause", f.Cause.Error())
		}
		if len(f.Stack) > 0 {
			evt = evt.Str("stack", string(f.Stack))
		}
	}
	evt.
		Str("request_id", rid).
		Str("method", req.Method).
		Str("path", req.URL.Path).
		Int("status", f.Status).
		Str("code", f.Code).
		Str("message", f.Message).
		Msg("request failed")

	if h.metrics != nil {
		h.metrics.ObserveError(f.Code)
	}

	var werr error
	if req.Method == http.MethodHead {
		werr = c.NoContent(f.Status)
	} else {
		werr = c.JSON(f.Status, envelope.Failure(f.Code, f.Message, toDetails(f.Details), rid, h.now()))
	}
	if werr != nil {
		h.logger.Error().Err(werr).Str("request_id", rid).Msg("write error response")
	}
}

func toDetails(in []apperr.Detail) []envelope.Detail {
	if len(in) == 0 {
		return nil
	}
	out := make([]envelope.Detail, len(in))
	for i, d := range in {
		out[i] = envelope.Detail{Field: d.Field, Message: d.Message}
	}
	return out
}
