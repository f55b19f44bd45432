package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/lms-cloud/gateway/internal/auth"
	"github.com/lms-cloud/gateway/internal/config"
	"github.com/lms-cloud/gateway/internal/logging"
	"github.com/lms-cloud/gateway/internal/registry"
	"github.com/lms-cloud/gateway/internal/router"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestProxy(t *testing.T, upstream string) *Proxy {
	t.Helper()
	resolver, err := registry.NewStatic(map[string]string{"courses": upstream})
	if err != nil {
		t.Fatalf("NewStatic: %v", err)
	}
	return New(Config{Resolver: resolver, DefaultTimeout: 2 * time.Second})
}

func coursesRoute(strip int) *router.Route {
	table := router.New()
	return table.Add(config.RouteConfig{
		ID:            "courses",
		Paths:         []string{"/api/v1/courses/**"},
		Service:       "courses",
		StripSegments: strip,
	})
}

func TestForwardRelaysResponse(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Backend", "courses")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, `{"id":"c1"}`)
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL)
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("POST", "/api/v1/courses?expand=modules", strings.NewReader(`{}`))

	if err := p.Forward(rec, r, coursesRoute(0), nil); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", rec.Code)
	}
	if rec.Header().Get("X-Backend") != "courses" {
		t.Error("upstream headers must be relayed")
	}
	if rec.Body.String() != `{"id":"c1"}` {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestForwardPreservesPathAndQuery(t *testing.T) {
	var gotPath, gotQuery string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL)
	r := httptest.NewRequest("GET", "/api/v1/courses/c1/modules?page=2", nil)
	if err := p.Forward(httptest.NewRecorder(), r, coursesRoute(0), nil); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if gotPath != "/api/v1/courses/c1/modules" {
		t.Errorf("path = %s", gotPath)
	}
	if gotQuery != "page=2" {
		t.Errorf("query = %s", gotQuery)
	}
}

func TestForwardStripsSegments(t *testing.T) {
	var gotPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL)
	r := httptest.NewRequest("GET", "/api/v1/courses/c1", nil)
	if err := p.Forward(httptest.NewRecorder(), r, coursesRoute(2), nil); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if gotPath != "/courses/c1" {
		t.Errorf("path = %s, want /courses/c1", gotPath)
	}
}

func TestForwardInjectsIdentityHeaders(t *testing.T) {
	var got http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL)
	r := httptest.NewRequest("GET", "/api/v1/courses", nil)
	// A client trying to smuggle identity context.
	r.Header.Set(auth.HeaderUserID, "forged-admin")
	r.Header.Set(auth.HeaderUserRoles, "ADMIN")

	principal := &auth.Principal{
		Subject:  "user-42",
		Username: "jdoe",
		Email:    "jdoe@example.edu",
		Roles:    map[string]bool{"ROLE_STUDENT": true},
	}
	if err := p.Forward(httptest.NewRecorder(), r, coursesRoute(0), principal); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if got.Get(auth.HeaderUserID) != "user-42" {
		t.Errorf("X-User-ID = %s, forged value must be replaced", got.Get(auth.HeaderUserID))
	}
	if got.Get(auth.HeaderUserRoles) != "STUDENT" {
		t.Errorf("X-User-Roles = %s", got.Get(auth.HeaderUserRoles))
	}
	if got.Get(auth.HeaderUserName) != "jdoe" || got.Get(auth.HeaderUserEmail) != "jdoe@example.edu" {
		t.Error("identity headers incomplete")
	}
}

func TestForwardStripsForgedHeadersForAnonymous(t *testing.T) {
	var got http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL)
	r := httptest.NewRequest("GET", "/api/v1/courses", nil)
	r.Header.Set(auth.HeaderUserID, "forged-admin")

	if err := p.Forward(httptest.NewRecorder(), r, coursesRoute(0), nil); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if v := got.Get(auth.HeaderUserID); v != "" {
		t.Errorf("forged X-User-ID must be stripped on public routes, got %q", v)
	}
}

func TestForwardSetsForwardedHeaders(t *testing.T) {
	var got http.Header
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
	}))
	defer backend.Close()

	p := newTestProxy(t, backend.URL)
	r := httptest.NewRequest("GET", "/api/v1/courses", nil)
	r.RemoteAddr = "203.0.113.9:51234"
	r.Host = "gateway.lms.example"

	if err := p.Forward(httptest.NewRecorder(), r, coursesRoute(0), nil); err != nil {
		t.Fatalf("Forward: %v", err)
	}

	if got.Get("X-Forwarded-For") != "203.0.113.9" {
		t.Errorf("X-Forwarded-For = %s", got.Get("X-Forwarded-For"))
	}
	if got.Get("X-Forwarded-Proto") != "http" {
		t.Errorf("X-Forwarded-Proto = %s", got.Get("X-Forwarded-Proto"))
	}
	if got.Get("X-Forwarded-Host") != "gateway.lms.example" {
		t.Errorf("X-Forwarded-Host = %s", got.Get("X-Forwarded-Host"))
	}
}

func TestForwardConnectionRefused(t *testing.T) {
	// A server that is immediately closed leaves a port nothing listens on.
	backend := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	addr := backend.URL
	backend.Close()

	p := newTestProxy(t, addr)
	r := httptest.NewRequest("GET", "/api/v1/courses", nil)
	if err := p.Forward(httptest.NewRecorder(), r, coursesRoute(0), nil); err == nil {
		t.Fatal("expected transport error for refused connection")
	}
}

func TestForwardTimeout(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
	}))
	defer backend.Close()

	resolver, _ := registry.NewStatic(map[string]string{"courses": backend.URL})
	p := New(Config{Resolver: resolver, DefaultTimeout: 50 * time.Millisecond})

	r := httptest.NewRequest("GET", "/api/v1/courses", nil)
	err := p.Forward(httptest.NewRecorder(), r, coursesRoute(0), nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !IsTimeout(err) {
		t.Errorf("IsTimeout(%v) = false", err)
	}
}

func TestForwardLogsTruncatedBody(t *testing.T) {
	// Promise 100 bytes, deliver 5. The client side of the relay sees
	// an unexpected EOF mid-body.
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "100")
		io.WriteString(w, "short")
	}))
	defer backend.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	prev := logging.Global()
	logging.SetGlobal(zap.New(core))
	t.Cleanup(func() { logging.SetGlobal(prev) })

	p := newTestProxy(t, backend.URL)
	rec := httptest.NewRecorder()
	r := httptest.NewRequest("GET", "/api/v1/courses", nil)

	// The status line is already committed; the caller cannot be given
	// an error envelope at this point.
	if err := p.Forward(rec, r, coursesRoute(0), nil); err != nil {
		t.Fatalf("Forward: %v", err)
	}
	if rec.Body.String() != "short" {
		t.Errorf("body = %q, want the bytes that did arrive", rec.Body.String())
	}
	if logs.FilterMessage("Relaying upstream body failed mid-stream").Len() != 1 {
		t.Error("truncated relay must be logged")
	}
}

func TestForwardUnknownService(t *testing.T) {
	resolver, _ := registry.NewStatic(nil)
	p := New(Config{Resolver: resolver})

	table := router.New()
	route := table.Add(config.RouteConfig{
		ID:      "ghost",
		Paths:   []string{"/api/v1/ghost/**"},
		Service: "ghost",
	})

	r := httptest.NewRequest("GET", "/api/v1/ghost/x", nil)
	if err := p.Forward(httptest.NewRecorder(), r, route, nil); err == nil {
		t.Fatal("expected resolve error")
	}
}

func TestRemoveHopHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade", "websocket")
	h.Set("Content-Type", "application/json")

	removeHopHeaders(h)

	if h.Get("Connection") != "" || h.Get("Upgrade") != "" {
		t.Error("hop-by-hop headers must be removed")
	}
	if h.Get("Content-Type") != "application/json" {
		t.Error("end-to-end headers must survive")
	}
}
