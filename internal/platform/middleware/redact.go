package middleware

// Redacted replaces the value of every deny-listed field in logged bodies.
const Redacted = "[REDACTED]"

// redactedFields is matched case-sensitively against top-level keys only.
var redactedFields = map[string]struct{}{
	"password":          {},
	"passwordHash":      {},
	"token":             {},
	"refreshToken":      {},
	"accessToken":       {},
	"secret":            {},
	"mfaSecret":         {},
	"nir":               {},
	"carteVitaleNumber": {},
}

// Redact returns a shallow copy of body with deny-listed top-level values
// replaced by Redacted. Nested objects are copied by reference, untouched.
func Redact(body map[string]any) map[string]any {
	if body == nil {
		return nil
	}
	out := make(map[string]any, len(body))
	for k, v := range body {
		if _, deny := redactedFields[k]; deny {
			out[k] = Redacted
			continue
		}
		out[k] = v
	}
	return out
}
