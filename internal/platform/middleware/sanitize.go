package middleware

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/rollcare/rollcare/internal/platform/apperr"
)

const maxHeaderValueSize = 8 << 10

var (
	// Logged only.
	sqlPatterns = regexp.MustCompile(`(?i)('+\s*;\s*DROP\b|UNION\s+SELECT\b|'\s+OR\s+1\s*=\s*1|1\s*=\s*1)`)

	// Rejected.
	scriptPatterns = regexp.MustCompile(`(?i)(<script|javascript\s*:|on\w+\s*=)`)
)

// Sanitize rejects requests carrying path traversal, null bytes, header
// injection, oversized header values or script fragments in the query with
// VAL_BAD_REQUEST. SQL-looking query values are only logged.
func Sanitize(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			path := req.URL.Path
			rawPath := req.URL.RawPath
			if rawPath == "" {
				rawPath = path
			}

			if containsPathTraversal(path) || containsPathTraversal(rawPath) {
				return apperr.BadRequest("Path traversal detected")
			}
			if containsNullByte(path) || containsNullByte(rawPath) {
				return apperr.BadRequest("Null byte injection detected")
			}

			for name, values := range req.Header {
				for _, v := range values {
					if len(v) > maxHeaderValueSize {
						return apperr.BadRequest("Header value exceeds maximum size: " + name)
					}
					if strings.ContainsAny(v, "\r\n") {
						return apperr.BadRequest("Header injection detected: " + name)
					}
				}
			}

			for key, values := range req.URL.Query() {
				for _, v := range values {
					if containsNullByte(v) || containsNullByte(key) {
						return apperr.BadRequest("Null byte injection detected in query parameter")
					}
					if sqlPatterns.MatchString(v) {
						logger.Warn().
							Str("request_id", RequestIDFrom(c)).
							Str("param", key).
							Str("path", path).
							Str("remote_ip", c.RealIP()).
							Msg("suspicious query parameter")
					}
					if scriptPatterns.MatchString(v) || scriptPatterns.MatchString(key) {
						return apperr.BadRequest("Script injection detected in query parameter")
					}
				}
			}

			return next(c)
		}
	}
}

func containsPathTraversal(s string) bool {
	if strings.Contains(s, "..") {
		return true
	}
	lower := strings.ToLower(s)
	return strings.Contains(lower, "%2e%2e") || strings.Contains(lower, "%252e")
}

func containsNullByte(s string) bool {
	return strings.ContainsRune(s, '\x00') || strings.Contains(strings.ToLower(s), "%00")
}

// SanitizeString strips null bytes and control characters other than \n, \r
// and \t, then trims surrounding whitespace. Handlers apply it to free text.
func SanitizeString(input string) string {
	var b strings.Builder
	b.Grow(len(input))
	for _, r := range input {
		if r == '\x00' {
			continue
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
