package registry

import (
	"fmt"
	"net/url"
	"sort"
	"sync"
)

// Resolver maps a logical service name to its base URL. Load
// balancing and instance discovery live behind this boundary; the
// gateway only ever sees one address per service.
type Resolver interface {
	Resolve(service string) (*url.URL, error)
}

// Static resolves services from a fixed table built at startup.
type Static struct {
	mu       sync.RWMutex
	services map[string]*url.URL
}

// NewStatic builds a resolver from service name to base URL strings.
func NewStatic(upstreams map[string]string) (*Static, error) {
	s := &Static{services: make(map[string]*url.URL, len(upstreams))}
	for name, raw := range upstreams {
		u, err := url.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("upstream %s: %w", name, err)
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, fmt.Errorf("upstream %s: URL %q must be absolute", name, raw)
		}
		s.services[name] = u
	}
	return s, nil
}

// Resolve returns the base URL for service.
func (s *Static) Resolve(service string) (*url.URL, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.services[service]
	if !ok {
		return nil, fmt.Errorf("unknown service %q", service)
	}
	return u, nil
}

// Set replaces or adds the address for service.
func (s *Static) Set(service string, u *url.URL) {
	s.mu.Lock()
	s.services[service] = u
	s.mu.Unlock()
}

// Services returns the known service names, sorted.
func (s *Static) Services() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.services))
	for name := range s.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
