package auth

import (
	"sort"
	"strings"
)

// Downstream identity headers. Services behind the gateway trust these
// headers as verified identity context; the proxy strips any inbound
// copies before injecting them, and the deployment must ensure the
// services are only reachable through the gateway.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserName  = "X-User-Name"
	HeaderUserEmail = "X-User-Email"
	HeaderUserRoles = "X-User-Roles"
)

// IdentityHeaderNames lists every gateway-asserted identity header,
// for stripping inbound copies before injection.
var IdentityHeaderNames = []string{HeaderUserID, HeaderUserName, HeaderUserEmail, HeaderUserRoles}

// RolePrefix marks internal role strings, mirroring the convention the
// downstream services use for authority comparisons.
const RolePrefix = "ROLE_"

// Principal is the verified identity derived from a request's token.
// It lives for a single request and is never persisted.
type Principal struct {
	Subject  string
	Username string
	Email    string
	Roles    map[string]bool // keys carry the ROLE_ prefix
}

// HasAnyRole reports whether the principal holds at least one of the
// given roles. Role names may be passed with or without the prefix.
func (p *Principal) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if p.Roles[normalizeRole(role)] {
			return true
		}
	}
	return false
}

// RoleList returns the principal's roles without the prefix, sorted,
// for header injection and logging.
func (p *Principal) RoleList() []string {
	roles := make([]string, 0, len(p.Roles))
	for r := range p.Roles {
		roles = append(roles, strings.TrimPrefix(r, RolePrefix))
	}
	sort.Strings(roles)
	return roles
}

// IdentityHeaders returns the header set to inject into the forwarded
// request: caller id, username, email and comma-joined roles.
func (p *Principal) IdentityHeaders() map[string]string {
	return map[string]string{
		HeaderUserID:    p.Subject,
		HeaderUserName:  p.Username,
		HeaderUserEmail: p.Email,
		HeaderUserRoles: strings.Join(p.RoleList(), ","),
	}
}

// ExtractRoles merges the two known role claim shapes: the nested
// realm_access.roles list and the flat roles list. Every entry is
// uppercased and prefixed for internal comparisons.
func ExtractRoles(claims map[string]interface{}) map[string]bool {
	roles := make(map[string]bool)

	if realmAccess, ok := claims["realm_access"].(map[string]interface{}); ok {
		addRoles(roles, realmAccess["roles"])
	}
	addRoles(roles, claims["roles"])

	return roles
}

func addRoles(dst map[string]bool, raw interface{}) {
	list, ok := raw.([]interface{})
	if !ok {
		return
	}
	for _, entry := range list {
		if s, ok := entry.(string); ok && s != "" {
			dst[normalizeRole(s)] = true
		}
	}
}

func normalizeRole(role string) string {
	role = strings.ToUpper(role)
	if !strings.HasPrefix(role, RolePrefix) {
		role = RolePrefix + role
	}
	return role
}
