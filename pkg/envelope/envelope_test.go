package envelope

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/labstack/echo/v4"

	"github.com/rollcare/rollcare/pkg/pagination"
)

type device struct {
	ID    string `json:"id"`
	Model string `json:"model"`
}

type prebuilt struct {
	Data  []device `json:"data"`
	Extra string   `json:"extra"`
}

func encode(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return string(b)
}

func TestWrap(t *testing.T) {
	var nilDevice *device
	tests := []struct {
		name string
		in   any
		want string
	}{
		{"nil", nil, `{"data":null}`},
		{"typed nil pointer", nilDevice, `{"data":null}`},
		{"struct", device{ID: "d1", Model: "X"}, `{"data":{"id":"d1","model":"X"}}`},
		{"slice", []string{"a"}, `{"data":["a"]}`},
		{"map without data", map[string]any{"ok": true}, `{"data":{"ok":true}}`},
		{"map with data", map[string]any{"data": 1}, `{"data":1}`},
		{"struct with data field", prebuilt{Data: []device{}, Extra: "x"}, `{"data":[],"extra":"x"}`},
		{"envelope", Envelope{Data: "x"}, `{"data":"x"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := encode(t, Wrap(tt.in)); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestWrap_Idempotent(t *testing.T) {
	for _, v := range []any{nil, device{ID: "d1"}, []int{1, 2}, map[string]any{"a": "b"}} {
		once := Wrap(v)
		twice := Wrap(once)
		if diff := cmp.Diff(encode(t, once), encode(t, twice)); diff != "" {
			t.Errorf("wrapping twice changed the body (-once +twice):\n%s", diff)
		}
	}
}

func TestPaginated(t *testing.T) {
	env := Paginated([]device{{ID: "d1"}}, pagination.Params{Limit: 1, Offset: 0}, 3)
	want := `{"data":[{"id":"d1","model":""}],"meta":{"pagination":{"total":3,"limit":1,"offset":0,"hasMore":true}}}`
	if got := encode(t, env); got != want {
		t.Errorf("got %s", got)
	}
	if got := encode(t, Wrap(env)); got != want {
		t.Errorf("paginated envelope was rewrapped: %s", got)
	}
}

func TestJSON(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	if err := JSON(c, http.StatusCreated, device{ID: "d1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d", rec.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := body["data"]; !ok {
		t.Errorf("missing data key: %s", rec.Body.String())
	}
}

func TestFailure(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.FixedZone("CET", 3600))
	env := Failure("NOT_FOUND", "Patient not found", nil, "rid-1", at)
	want := `{"error":{"code":"NOT_FOUND","message":"Patient not found","requestId":"rid-1","timestamp":"2026-03-01T09:00:00Z"}}`
	if got := encode(t, env); got != want {
		t.Errorf("got %s", got)
	}
}
