package auth

import (
	"net/http"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestRoutes_RegisterRules(t *testing.T) {
	e := echo.New()
	table := NewRouteTable()
	r := NewRoutes(e.Group("/api/v1"), table)
	noop := func(echo.Context) error { return nil }

	r.PublicGET("/health", noop)
	r.GET("/patients/:id", noop, RoleAdmin, RoleOps)
	r.POST("/tickets", noop)

	rule, ok := table.Lookup(http.MethodGet, "/api/v1/health")
	if !ok || !rule.Public {
		t.Errorf("health rule = %+v, %v", rule, ok)
	}
	rule, ok = table.Lookup(http.MethodGet, "/api/v1/patients/:id")
	if !ok || rule.Public || len(rule.Roles) != 2 {
		t.Errorf("patients rule = %+v, %v", rule, ok)
	}
	rule, ok = table.Lookup(http.MethodPost, "/api/v1/tickets")
	if !ok || len(rule.Roles) != 0 {
		t.Errorf("tickets rule = %+v, %v", rule, ok)
	}
	if _, ok := table.Lookup(http.MethodDelete, "/api/v1/tickets"); ok {
		t.Error("undeclared method should not match")
	}
}

func TestRouteTable_EntriesSorted(t *testing.T) {
	table := NewRouteTable()
	table.Allow(http.MethodPost, "/b")
	table.Allow(http.MethodGet, "/b")
	table.Public(http.MethodGet, "/a")

	entries := table.Entries()
	want := []string{"GET /a", "GET /b", "POST /b"}
	if len(entries) != len(want) {
		t.Fatalf("entries = %+v", entries)
	}
	for i, e := range entries {
		if got := e.Method + " " + e.Path; got != want[i] {
			t.Errorf("entries[%d] = %s, want %s", i, got, want[i])
		}
	}
}

func TestRouteTable_AllowCopiesRoles(t *testing.T) {
	table := NewRouteTable()
	roles := []Role{RoleOps}
	table.Allow(http.MethodGet, "/x", roles...)
	roles[0] = RoleAdmin

	rule, _ := table.Lookup(http.MethodGet, "/x")
	if rule.Roles[0] != RoleOps {
		t.Error("table must not alias the caller's slice")
	}
}
