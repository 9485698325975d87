package auth

import (
	"sort"

	"github.com/labstack/echo/v4"
)

// Rule is the access rule of one route.
type Rule struct {
	Public bool
	Roles  []Role
}

// RouteEntry is one row of the table, for listing.
type RouteEntry struct {
	Method string
	Path   string
	Rule   Rule
}

// RouteTable maps (method, registered path pattern) to an access rule. It is
// filled at startup and read-only while serving.
type RouteTable struct {
	rules map[routeKey]Rule
}

type routeKey struct {
	method string
	path   string
}

func NewRouteTable() *RouteTable {
	return &RouteTable{rules: make(map[routeKey]Rule)}
}

// Public declares a route that bypasses the gate.
func (t *RouteTable) Public(method, path string) {
	t.rules[routeKey{method, path}] = Rule{Public: true}
}

// Allow declares a route restricted to roles. No roles means any
// authenticated principal.
func (t *RouteTable) Allow(method, path string, roles ...Role) {
	t.rules[routeKey{method, path}] = Rule{Roles: append([]Role(nil), roles...)}
}

func (t *RouteTable) Lookup(method, path string) (Rule, bool) {
	r, ok := t.rules[routeKey{method, path}]
	return r, ok
}

// Entries lists the table sorted by path then method.
func (t *RouteTable) Entries() []RouteEntry {
	out := make([]RouteEntry, 0, len(t.rules))
	for k, r := range t.rules {
		out = append(out, RouteEntry{Method: k.method, Path: k.path, Rule: r})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Method < out[j].Method
	})
	return out
}

// Routes registers echo routes and their table entries together, so no
// route is served without a declared rule.
type Routes struct {
	group *echo.Group
	table *RouteTable
}

func NewRoutes(g *echo.Group, table *RouteTable) *Routes {
	return &Routes{group: g, table: table}
}

func (r *Routes) add(method, path string, h echo.HandlerFunc, roles []Role) *echo.Route {
	rt := r.group.Add(method, path, h)
	r.table.Allow(rt.Method, rt.Path, roles...)
	return rt
}

func (r *Routes) GET(path string, h echo.HandlerFunc, roles ...Role) *echo.Route {
	return r.add(echo.GET, path, h, roles)
}

func (r *Routes) POST(path string, h echo.HandlerFunc, roles ...Role) *echo.Route {
	return r.add(echo.POST, path, h, roles)
}

func (r *Routes) PUT(path string, h echo.HandlerFunc, roles ...Role) *echo.Route {
	return r.add(echo.PUT, path, h, roles)
}

func (r *Routes) PATCH(path string, h echo.HandlerFunc, roles ...Role) *echo.Route {
	return r.add(echo.PATCH, path, h, roles)
}

func (r *Routes) DELETE(path string, h echo.HandlerFunc, roles ...Role) *echo.Route {
	return r.add(echo.DELETE, path, h, roles)
}

// PublicGET registers a GET route that bypasses the gate.
func (r *Routes) PublicGET(path string, h echo.HandlerFunc) *echo.Route {
	rt := r.group.Add(echo.GET, path, h)
	r.table.Public(rt.Method, rt.Path)
	return rt
}
