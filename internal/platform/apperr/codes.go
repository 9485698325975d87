package apperr

import "net/http"

// Stable machine-facing codes. Clients branch on these, never on messages.
const (
	CodeBadRequest          = "VAL_BAD_REQUEST"
	CodeValidation          = "VALIDATION_ERROR"
	CodeUnauthorized        = "AUTH_UNAUTHORIZED"
	CodeForbidden           = "AUTHZ_FORBIDDEN"
	CodeNotFound            = "NOT_FOUND"
	CodeConflict            = "CONFLICT"
	CodeUnprocessable       = "BIZ_UNPROCESSABLE"
	CodeRateLimited         = "RATE_LIMITED"
	CodeInternal            = "SYS_INTERNAL_ERROR"
	CodeServiceUnavailable  = "SYS_SERVICE_UNAVAILABLE"
	CodeUnknown             = "UNKNOWN_ERROR"
	CodeSystemUnknown       = "SYS_UNKNOWN_ERROR"
	CodeDuplicateEntry      = "DUPLICATE_ENTRY"
	CodeForeignKeyViolation = "FOREIGN_KEY_VIOLATION"
	CodeRelationViolation   = "RELATION_VIOLATION"
	CodeDatabase            = "DATABASE_ERROR"
)

// Client-visible messages for failures whose real cause stays server-side.
const (
	MessageValidation = "Validation failed"
	MessageInternal   = "Internal server error"
	MessageUnknown    = "An unexpected error occurred"
)

var statusCodes = map[int]string{
	http.StatusBadRequest:          CodeBadRequest,
	http.StatusUnauthorized:        CodeUnauthorized,
	http.StatusForbidden:           CodeForbidden,
	http.StatusNotFound:            CodeNotFound,
	http.StatusConflict:            CodeConflict,
	http.StatusUnprocessableEntity: CodeUnprocessable,
	http.StatusTooManyRequests:     CodeRateLimited,
	http.StatusInternalServerError: CodeInternal,
	http.StatusServiceUnavailable:  CodeServiceUnavailable,
}

// CodeForStatus is the fallback used whenever a failure carries a status but
// no code of its own.
func CodeForStatus(status int) string {
	if code, ok := statusCodes[status]; ok {
		return code
	}
	return CodeUnknown
}
