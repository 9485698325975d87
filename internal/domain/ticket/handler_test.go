package ticket

import (
	"net/http"
	"testing"
	"time"

	"github.com/rollcare/rollcare/internal/platform/apitest"
	"github.com/rollcare/rollcare/internal/platform/auth"
)

func TestHandler_TicketFlow(t *testing.T) {
	f := newFixture()
	s := apitest.NewServer(t, NewHandler(f.svc).RegisterRoutes)
	camille := apitest.As{Role: auth.RolePatient, Subject: "sub-camille"}
	ops := apitest.As{Role: auth.RoleOps}

	rec := s.Do(t, http.MethodPost, "/tickets", camille, map[string]any{
		"deviceId":    inService.String(),
		"category":    "repair",
		"priority":    "urgent",
		"description": "Brake does not hold",
	})
	apitest.Expect(t, rec, http.StatusCreated)
	var tk Ticket
	apitest.Data(t, rec, &tk)
	path := "/tickets/" + tk.ID.String() + "/status"

	rec = s.Do(t, http.MethodPost, path, camille, map[string]any{"status": "in_progress"})
	apitest.ExpectCode(t, rec, http.StatusForbidden, "AUTHZ_FORBIDDEN")

	when := clock.Add(24 * time.Hour).Format(time.RFC3339)
	apitest.Expect(t, s.Do(t, http.MethodPost, path, ops, map[string]any{"status": "scheduled", "scheduledFor": when}), http.StatusOK)

	rec = s.Do(t, http.MethodPost, path, ops, map[string]any{"status": "resolved", "resolution": "x"})
	apitest.ExpectCode(t, rec, http.StatusUnprocessableEntity, "BIZ_UNPROCESSABLE")

	rec = s.Do(t, http.MethodGet, "/tickets?status=scheduled&deviceId="+inService.String(), ops, nil)
	apitest.Expect(t, rec, http.StatusOK)
	var items []Ticket
	if total := apitest.Page(t, rec, &items); total != 1 || items[0].Priority != PriorityUrgent {
		t.Errorf("total=%d items=%+v", total, items)
	}

	rec = s.Do(t, http.MethodGet, "/tickets?deviceId=nope", ops, nil)
	apitest.ExpectCode(t, rec, http.StatusBadRequest, "VALIDATION_ERROR")
}
