package router

import (
	"strings"
	"sync"
	"time"

	"github.com/lms-cloud/gateway/internal/config"
)

// Route represents a configured route.
type Route struct {
	ID            string
	Patterns      []string
	Methods       map[string]bool // nil = all methods
	Service       string
	StripSegments int
	Profile       string // rate-limit profile name; empty = default
	FallbackPath  string
	Timeout       time.Duration

	compiled [][]string // pre-split pattern segments
}

// Table holds the ordered route list. Routes are evaluated in
// registration order and the first match wins; given identical input
// the winner is therefore always the same route.
type Table struct {
	mu     sync.RWMutex
	routes []*Route
	byID   map[string]*Route
}

// New creates an empty route table.
func New() *Table {
	return &Table{byID: make(map[string]*Route)}
}

// Add appends a route to the table.
func (t *Table) Add(cfg config.RouteConfig) *Route {
	route := &Route{
		ID:            cfg.ID,
		Patterns:      cfg.Paths,
		Service:       cfg.Service,
		StripSegments: cfg.StripSegments,
		Profile:       cfg.Profile,
		FallbackPath:  cfg.Fallback,
		Timeout:       cfg.Timeout,
	}

	if len(cfg.Methods) > 0 {
		route.Methods = make(map[string]bool, len(cfg.Methods))
		for _, m := range cfg.Methods {
			route.Methods[strings.ToUpper(m)] = true
		}
	}

	for _, p := range cfg.Paths {
		route.compiled = append(route.compiled, splitPath(p))
	}

	t.mu.Lock()
	t.routes = append(t.routes, route)
	t.byID[route.ID] = route
	t.mu.Unlock()

	return route
}

// Match finds the route for a method and path. Returns nil when no
// route matches.
func (t *Table) Match(method, path string) *Route {
	segments := splitPath(path)

	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, route := range t.routes {
		if route.Methods != nil && !route.Methods[strings.ToUpper(method)] {
			continue
		}
		for _, pattern := range route.compiled {
			if matchSegments(pattern, segments) {
				return route
			}
		}
	}
	return nil
}

// Get returns a route by ID, or nil.
func (t *Table) Get(id string) *Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.byID[id]
}

// Routes returns all configured routes in registration order.
func (t *Table) Routes() []*Route {
	t.mu.RLock()
	defer t.mu.RUnlock()
	result := make([]*Route, len(t.routes))
	copy(result, t.routes)
	return result
}

// RewritePath strips the route's configured number of leading segments
// from the request path before forwarding.
func (r *Route) RewritePath(path string) string {
	if r.StripSegments == 0 {
		return path
	}
	segments := splitPath(path)
	if len(segments) <= r.StripSegments {
		return "/"
	}
	return "/" + strings.Join(segments[r.StripSegments:], "/")
}

// PatternMatches reports whether a single pattern matches a path.
// A "*" component matches exactly one segment; a trailing "**" matches
// one or more segments.
func PatternMatches(pattern, path string) bool {
	return matchSegments(splitPath(pattern), splitPath(path))
}

// matchSegments matches pre-split pattern segments against path segments.
func matchSegments(pattern, segments []string) bool {
	for i, p := range pattern {
		if p == "**" {
			// Trailing multi-segment wildcard: needs at least one segment left
			return len(segments) > i
		}
		if i >= len(segments) {
			return false
		}
		if p == "*" {
			continue
		}
		if p != segments[i] {
			return false
		}
	}
	return len(segments) == len(pattern)
}

// splitPath splits a URL path into non-empty segments.
func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
