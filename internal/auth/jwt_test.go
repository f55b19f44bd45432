package auth

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lms-cloud/gateway/internal/config"
	"github.com/lms-cloud/gateway/internal/errors"
)

const testSecret = "unit-test-secret"

func newTestAuthenticator(t *testing.T) *Authenticator {
	t.Helper()
	a, err := NewAuthenticator(config.JWTConfig{
		Algorithm: "HS256",
		Secret:    testSecret,
		Issuer:    "https://idp.lms.local/realms/lms",
	})
	if err != nil {
		t.Fatalf("NewAuthenticator: %v", err)
	}
	return a
}

func signToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	if _, ok := claims["iss"]; !ok {
		claims["iss"] = "https://idp.lms.local/realms/lms"
	}
	if _, ok := claims["exp"]; !ok {
		claims["exp"] = time.Now().Add(time.Hour).Unix()
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("signing token: %v", err)
	}
	return token
}

func TestAuthenticateSuccess(t *testing.T) {
	a := newTestAuthenticator(t)
	token := signToken(t, jwt.MapClaims{
		"sub":                "user-42",
		"preferred_username": "jdoe",
		"email":              "jdoe@example.edu",
		"realm_access":       map[string]interface{}{"roles": []interface{}{"student"}},
	})

	r := httptest.NewRequest("GET", "/api/v1/courses/1", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	p, err := a.Authenticate(r)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if p.Subject != "user-42" || p.Username != "jdoe" || p.Email != "jdoe@example.edu" {
		t.Errorf("unexpected principal: %+v", p)
	}
	if !p.HasAnyRole("STUDENT") {
		t.Error("expected STUDENT role")
	}
}

func TestAuthenticateMissingToken(t *testing.T) {
	a := newTestAuthenticator(t)
	r := httptest.NewRequest("GET", "/api/v1/courses/1", nil)

	_, err := a.Authenticate(r)
	ge, ok := errors.IsGatewayError(err)
	if !ok {
		t.Fatalf("expected GatewayError, got %v", err)
	}
	if ge.Status != 401 || ge.Code != "AUTHENTICATION_FAILED" {
		t.Errorf("unexpected error: %+v", ge)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	a := newTestAuthenticator(t)
	token := signToken(t, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(-time.Hour).Unix(),
	})

	r := httptest.NewRequest("GET", "/api/v1/courses/1", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	if _, err := a.Authenticate(r); err == nil {
		t.Fatal("expected error for expired token")
	}
}

func TestAuthenticateWrongIssuer(t *testing.T) {
	a := newTestAuthenticator(t)
	token := signToken(t, jwt.MapClaims{
		"sub": "user-42",
		"iss": "https://evil.example.com",
	})

	r := httptest.NewRequest("GET", "/api/v1/courses/1", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	_, err := a.Authenticate(r)
	if err == nil {
		t.Fatal("expected issuer mismatch error")
	}
	if ge, _ := errors.IsGatewayError(err); ge.Status != 401 {
		t.Errorf("expected 401, got %d", ge.Status)
	}
}

func TestAuthenticateWrongSignature(t *testing.T) {
	a := newTestAuthenticator(t)
	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-42",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("some-other-secret"))

	r := httptest.NewRequest("GET", "/api/v1/courses/1", nil)
	r.Header.Set("Authorization", "Bearer "+token)

	if _, err := a.Authenticate(r); err == nil {
		t.Fatal("expected signature error")
	}
}

func TestExtractBearer(t *testing.T) {
	r := httptest.NewRequest("GET", "/", nil)
	r.Header.Set("Authorization", "bearer abc.def.ghi")
	if got := extractBearer(r); got != "abc.def.ghi" {
		t.Errorf("expected case-insensitive scheme, got %q", got)
	}

	r.Header.Set("Authorization", "Basic dXNlcjpwYXNz")
	if got := extractBearer(r); got != "" {
		t.Errorf("expected empty for non-bearer scheme, got %q", got)
	}
}

func TestExtractRoles(t *testing.T) {
	claims := map[string]interface{}{
		"realm_access": map[string]interface{}{
			"roles": []interface{}{"student", "offline_access"},
		},
		"roles": []interface{}{"Instructor"},
	}

	roles := ExtractRoles(claims)
	for _, want := range []string{"ROLE_STUDENT", "ROLE_OFFLINE_ACCESS", "ROLE_INSTRUCTOR"} {
		if !roles[want] {
			t.Errorf("missing role %s in %v", want, roles)
		}
	}
}

func TestExtractRolesMissingClaims(t *testing.T) {
	if roles := ExtractRoles(map[string]interface{}{}); len(roles) != 0 {
		t.Errorf("expected no roles, got %v", roles)
	}
	// Wrong shapes are ignored, not fatal
	roles := ExtractRoles(map[string]interface{}{
		"realm_access": "not-a-map",
		"roles":        "not-a-list",
	})
	if len(roles) != 0 {
		t.Errorf("expected no roles for malformed claims, got %v", roles)
	}
}

func TestIdentityHeaders(t *testing.T) {
	p := &Principal{
		Subject:  "user-42",
		Username: "jdoe",
		Email:    "jdoe@example.edu",
		Roles:    map[string]bool{"ROLE_STUDENT": true, "ROLE_ADMIN": true},
	}

	h := p.IdentityHeaders()
	if h[HeaderUserID] != "user-42" || h[HeaderUserName] != "jdoe" || h[HeaderUserEmail] != "jdoe@example.edu" {
		t.Errorf("unexpected identity headers: %v", h)
	}
	// Prefix stripped, sorted, comma-joined
	if h[HeaderUserRoles] != "ADMIN,STUDENT" {
		t.Errorf("unexpected roles header: %s", h[HeaderUserRoles])
	}
}

func TestNewAuthenticatorRejectsMissingMaterial(t *testing.T) {
	if _, err := NewAuthenticator(config.JWTConfig{Algorithm: "HS256"}); err == nil {
		t.Error("expected error for missing secret")
	}
	if _, err := NewAuthenticator(config.JWTConfig{Algorithm: "RS256"}); err == nil {
		t.Error("expected error for missing public key")
	}
	if _, err := NewAuthenticator(config.JWTConfig{Algorithm: "ES256"}); err == nil ||
		!strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported algorithm error, got %v", err)
	}
}
