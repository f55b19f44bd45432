package config

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/goccy/go-yaml"
)

// validHTTPMethods contains all valid HTTP method names.
var validHTTPMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true,
	"DELETE": true, "PATCH": true, "OPTIONS": true,
}

// Loader handles configuration loading and parsing.
type Loader struct {
	envPattern *regexp.Regexp
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPattern: regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`),
	}
}

// Load reads and parses a configuration file.
func (l *Loader) Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return l.Parse(data)
}

// Parse parses configuration from YAML bytes.
func (l *Loader) Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := l.expandEnvVars(string(data))

	// Start with defaults
	cfg := DefaultConfig()

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := l.validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} with environment variable values.
func (l *Loader) expandEnvVars(input string) string {
	return l.envPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := strings.TrimPrefix(strings.TrimSuffix(match, "}"), "${")
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match // Keep original if env var not set
	})
}

// validate checks configuration for errors.
func (l *Loader) validate(cfg *Config) error {
	if cfg.Listen.Address == "" {
		return fmt.Errorf("listen address is required")
	}

	// Validate rate limit profiles
	if cfg.RateLimit.DefaultProfile != "" {
		if _, ok := cfg.RateLimit.Profiles[cfg.RateLimit.DefaultProfile]; !ok {
			return fmt.Errorf("default rate limit profile %q is not defined", cfg.RateLimit.DefaultProfile)
		}
	}
	for name, p := range cfg.RateLimit.Profiles {
		if p.ReplenishRate <= 0 {
			return fmt.Errorf("rate limit profile %s: replenish_rate must be positive", name)
		}
		if p.BurstCapacity <= 0 {
			return fmt.Errorf("rate limit profile %s: burst_capacity must be positive", name)
		}
	}

	if cfg.CircuitBreaker.FailureThreshold < 0 {
		return fmt.Errorf("circuit_breaker: failure_threshold must not be negative")
	}
	if cfg.CircuitBreaker.Cooldown < 0 {
		return fmt.Errorf("circuit_breaker: cooldown must not be negative")
	}

	// Validate upstream URLs
	for service, rawURL := range cfg.Upstreams {
		u, err := url.Parse(rawURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("upstream %s: invalid URL %q", service, rawURL)
		}
	}

	// Validate routes
	routeIDs := make(map[string]bool)
	for i, route := range cfg.Routes {
		if route.ID == "" {
			return fmt.Errorf("route %d: id is required", i)
		}
		if routeIDs[route.ID] {
			return fmt.Errorf("duplicate route id: %s", route.ID)
		}
		routeIDs[route.ID] = true

		if len(route.Paths) == 0 {
			return fmt.Errorf("route %s: at least one path is required", route.ID)
		}
		for _, p := range route.Paths {
			if !strings.HasPrefix(p, "/") {
				return fmt.Errorf("route %s: path %q must start with /", route.ID, p)
			}
			if err := validatePattern(p); err != nil {
				return fmt.Errorf("route %s: %w", route.ID, err)
			}
		}
		if route.Service == "" {
			return fmt.Errorf("route %s: service is required", route.ID)
		}
		if _, ok := cfg.Upstreams[route.Service]; !ok {
			return fmt.Errorf("route %s: unknown upstream service %q", route.ID, route.Service)
		}
		for _, m := range route.Methods {
			if !validHTTPMethods[strings.ToUpper(m)] {
				return fmt.Errorf("route %s: invalid HTTP method %q", route.ID, m)
			}
		}
		if route.Profile != "" {
			if _, ok := cfg.RateLimit.Profiles[route.Profile]; !ok {
				return fmt.Errorf("route %s: unknown rate limit profile %q", route.ID, route.Profile)
			}
		}
		if route.StripSegments < 0 {
			return fmt.Errorf("route %s: strip_segments must not be negative", route.ID)
		}
	}

	// Validate authorization rules
	for i, rule := range cfg.Authorization {
		if rule.Path == "" {
			return fmt.Errorf("authorization rule %d: path is required", i)
		}
		if err := validatePattern(rule.Path); err != nil {
			return fmt.Errorf("authorization rule %d: %w", i, err)
		}
		if rule.Public && len(rule.Roles) > 0 {
			return fmt.Errorf("authorization rule %d: public rules must not list roles", i)
		}
		for _, m := range rule.Methods {
			if !validHTTPMethods[strings.ToUpper(m)] {
				return fmt.Errorf("authorization rule %d: invalid HTTP method %q", i, m)
			}
		}
	}

	return nil
}

// validatePattern rejects patterns with "**" anywhere but the last segment.
func validatePattern(pattern string) error {
	segments := strings.Split(strings.Trim(pattern, "/"), "/")
	for i, seg := range segments {
		if seg == "**" && i != len(segments)-1 {
			return fmt.Errorf("pattern %q: ** is only allowed as the final segment", pattern)
		}
		if strings.Contains(seg, "*") && seg != "*" && seg != "**" {
			return fmt.Errorf("pattern %q: partial wildcards are not supported", pattern)
		}
	}
	return nil
}
