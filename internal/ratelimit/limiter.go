package ratelimit

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/lms-cloud/gateway/internal/auth"
	"github.com/lms-cloud/gateway/internal/config"
)

// Profile is a named token-bucket shape. ReplenishRate is tokens per
// second; BurstCapacity is the bucket size and the hard ceiling on a
// spike.
type Profile struct {
	Name          string
	ReplenishRate float64
	BurstCapacity int
}

// Decision is the outcome of a single token request.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
	Limit      int
}

// Store takes one token from the bucket identified by key, applying
// the profile's shape. Implementations must be atomic per key: two
// concurrent calls for the last token may not both succeed.
type Store interface {
	Take(ctx context.Context, key string, p Profile) (Decision, error)
}

// Limiter resolves the profile for a route and consults the store.
type Limiter struct {
	store    Store
	profiles map[string]Profile
	fallback string
}

// NewLimiter builds a limiter over the configured profiles. Routes
// naming no profile use the "default" profile.
func NewLimiter(store Store, profiles map[string]config.ProfileConfig) *Limiter {
	l := &Limiter{
		store:    store,
		profiles: make(map[string]Profile, len(profiles)),
		fallback: "default",
	}
	for name, p := range profiles {
		l.profiles[name] = Profile{
			Name:          name,
			ReplenishRate: p.ReplenishRate,
			BurstCapacity: p.BurstCapacity,
		}
	}
	return l
}

// Profile returns the named profile, falling back to default.
func (l *Limiter) Profile(name string) Profile {
	if name == "" {
		name = l.fallback
	}
	p, ok := l.profiles[name]
	if !ok {
		p = l.profiles[l.fallback]
	}
	return p
}

// Check takes one token for the request under the route's profile.
// Buckets are scoped per profile and per caller, so one caller
// exhausting a bucket never starves another.
func (l *Limiter) Check(ctx context.Context, profileName, callerKey string) (Decision, error) {
	p := l.Profile(profileName)
	return l.store.Take(ctx, p.Name+":"+callerKey, p)
}

// KeyFor identifies the caller for rate-limit accounting: the
// authenticated subject when present, else the client IP, else a
// shared anonymous bucket.
func KeyFor(p *auth.Principal, r *http.Request) string {
	if p != nil && p.Subject != "" {
		return "sub:" + p.Subject
	}
	if ip := ClientIP(r); ip != "" {
		return "ip:" + ip
	}
	return "anonymous"
}

// ClientIP returns the socket peer address. Forwarding headers like
// X-Forwarded-For are client-controlled and would let an anonymous
// caller mint a fresh bucket per request, so they are ignored here.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
