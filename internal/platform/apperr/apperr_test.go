package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKind_StatusAndCodeAreFixed(t *testing.T) {
	tests := []struct {
		kind   Kind
		status int
		code   string
	}{
		{KindAuthentication, http.StatusUnauthorized, "AUTH_UNAUTHORIZED"},
		{KindAuthorization, http.StatusForbidden, "AUTHZ_FORBIDDEN"},
		{KindValidation, http.StatusBadRequest, "VALIDATION_ERROR"},
		{KindBadRequest, http.StatusBadRequest, "VAL_BAD_REQUEST"},
		{KindNotFound, http.StatusNotFound, "NOT_FOUND"},
		{KindConflict, http.StatusConflict, "CONFLICT"},
		{KindBusiness, http.StatusUnprocessableEntity, "BIZ_UNPROCESSABLE"},
		{KindRateLimited, http.StatusTooManyRequests, "RATE_LIMITED"},
		{KindInternal, http.StatusInternalServerError, "SYS_INTERNAL_ERROR"},
		{KindUnavailable, http.StatusServiceUnavailable, "SYS_SERVICE_UNAVAILABLE"},
		{KindDuplicate, http.StatusConflict, "DUPLICATE_ENTRY"},
		{KindForeignKey, http.StatusBadRequest, "FOREIGN_KEY_VIOLATION"},
		{KindRelation, http.StatusBadRequest, "RELATION_VIOLATION"},
		{KindDatabase, http.StatusInternalServerError, "DATABASE_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			for i := 0; i < 3; i++ {
				e := New(tt.kind, fmt.Sprintf("attempt %d", i))
				if e.Status != tt.status {
					t.Errorf("status = %d, want %d", e.Status, tt.status)
				}
				if e.Code != tt.code {
					t.Errorf("code = %q, want %q", e.Code, tt.code)
				}
			}
		})
	}
}

func TestCodeForStatus(t *testing.T) {
	tests := map[int]string{
		400: "VAL_BAD_REQUEST",
		401: "AUTH_UNAUTHORIZED",
		403: "AUTHZ_FORBIDDEN",
		404: "NOT_FOUND",
		409: "CONFLICT",
		422: "BIZ_UNPROCESSABLE",
		429: "RATE_LIMITED",
		500: "SYS_INTERNAL_ERROR",
		503: "SYS_SERVICE_UNAVAILABLE",
		418: "UNKNOWN_ERROR",
		502: "UNKNOWN_ERROR",
	}
	for status, want := range tests {
		if got := CodeForStatus(status); got != want {
			t.Errorf("CodeForStatus(%d) = %q, want %q", status, got, want)
		}
	}
}

func TestBusinessStatus_UsesFallbackCode(t *testing.T) {
	e := BusinessStatus(http.StatusConflict, "quote already accepted")
	if e.Kind != KindBusiness {
		t.Errorf("kind = %v, want business", e.Kind)
	}
	if e.Status != http.StatusConflict || e.Code != "CONFLICT" {
		t.Errorf("got %d/%s, want 409/CONFLICT", e.Status, e.Code)
	}
}

func TestInvalid_CarriesDetails(t *testing.T) {
	e := Invalid(Detail{Field: "email", Message: "email must be a valid email"}, Detail{Message: "x"})
	if e.Message != "Validation failed" {
		t.Errorf("message = %q", e.Message)
	}
	if len(e.Details) != 2 {
		t.Fatalf("expected 2 details, got %d", len(e.Details))
	}
}

func TestWithDetails_DoesNotMutateOriginal(t *testing.T) {
	base := BadRequest("bad")
	withDetail := base.WithDetails(Detail{Message: "one"})
	if len(base.Details) != 0 {
		t.Error("original error was mutated")
	}
	if len(withDetail.Details) != 1 {
		t.Error("expected detail on copy")
	}
}

func TestAs_FindsWrappedError(t *testing.T) {
	inner := NotFound("patient not found")
	err := fmt.Errorf("load patient: %w", inner)
	got, ok := As(err)
	if !ok || got != inner {
		t.Fatalf("As did not find wrapped error")
	}
	if !IsKind(err, KindNotFound) {
		t.Error("IsKind should match not_found")
	}
	if !errors.Is(err, NotFound("other message")) {
		t.Error("errors.Is should match on kind and code")
	}
}

func TestInternal_KeepsCauseOutOfMessage(t *testing.T) {
	cause := errors.New("connection reset by peer")
	e := Internal(cause)
	if e.Message != "Internal server error" {
		t.Errorf("message = %q", e.Message)
	}
	if !errors.Is(e, cause) {
		t.Error("cause should be reachable through Unwrap")
	}
}

func TestPanic_Fault(t *testing.T) {
	var m map[string]int
	fault := func() (p *Panic) {
		defer func() { p = &Panic{Value: recover()} }()
		m["x"] = 1
		return nil
	}()
	if !fault.IsFault() {
		t.Error("runtime error panic should be a fault")
	}
	if fault.Unwrap() == nil {
		t.Error("runtime error should unwrap")
	}

	odd := &Panic{Value: 42}
	if odd.IsFault() {
		t.Error("int panic should not be a fault")
	}
	if odd.Unwrap() != nil {
		t.Error("int panic should not unwrap")
	}
}
