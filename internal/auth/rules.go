package auth

import (
	"strings"

	"github.com/lms-cloud/gateway/internal/config"
	"github.com/lms-cloud/gateway/internal/errors"
	"github.com/lms-cloud/gateway/internal/router"
)

// rule is one compiled authorization entry.
type rule struct {
	pattern string
	methods map[string]bool // nil = any
	roles   []string        // ANY semantics
	public  bool
}

// Rules is the ordered authorization rule list. Rules are evaluated in
// registration order and the first match wins; a request matching no
// rule requires an authenticated principal with any role.
type Rules struct {
	rules []rule
}

// NewRules compiles the configured rule list.
func NewRules(cfgs []config.AuthorizationRuleConfig) *Rules {
	rs := &Rules{rules: make([]rule, 0, len(cfgs))}
	for _, cfg := range cfgs {
		r := rule{
			pattern: cfg.Path,
			roles:   cfg.Roles,
			public:  cfg.Public,
		}
		if len(cfg.Methods) > 0 {
			r.methods = make(map[string]bool, len(cfg.Methods))
			for _, m := range cfg.Methods {
				r.methods[strings.ToUpper(m)] = true
			}
		}
		rs.rules = append(rs.rules, r)
	}
	return rs
}

// find returns the first rule matching method and path, or nil.
func (rs *Rules) find(method, path string) *rule {
	for i := range rs.rules {
		r := &rs.rules[i]
		if r.methods != nil && !r.methods[strings.ToUpper(method)] {
			continue
		}
		if patternCovers(r.pattern, path) {
			return r
		}
	}
	return nil
}

// patternCovers matches an authorization pattern against a path. A
// rule ending in "/**" also covers the bare prefix itself: a rule
// guarding /api/v1/courses/** must not leave POST /api/v1/courses
// unguarded.
func patternCovers(pattern, path string) bool {
	if router.PatternMatches(pattern, path) {
		return true
	}
	if bare, ok := strings.CutSuffix(pattern, "/**"); ok {
		return router.PatternMatches(bare, path)
	}
	return false
}

// IsPublic reports whether the path may be reached without credentials.
func (rs *Rules) IsPublic(method, path string) bool {
	r := rs.find(method, path)
	return r != nil && r.public
}

// Authorize decides whether the principal may access method+path.
// A nil principal on a non-public path is an authentication failure;
// a principal lacking every required role is an authorization failure.
// The two are deliberately distinct responses.
func (rs *Rules) Authorize(p *Principal, method, path string) error {
	r := rs.find(method, path)

	if r != nil && r.public {
		return nil
	}

	if p == nil {
		return errors.ErrUnauthenticated.WithDetails("Authentication required for " + path)
	}

	if r == nil || len(r.roles) == 0 {
		// Default rule: any authenticated principal
		return nil
	}

	if p.HasAnyRole(r.roles...) {
		return nil
	}
	return errors.ErrForbidden.WithDetails(
		"Requires one of roles: " + strings.Join(r.roles, ", "))
}
