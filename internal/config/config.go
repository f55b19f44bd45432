package config

import (
	"time"
)

// Config represents the complete gateway configuration.
type Config struct {
	Listen         ListenConfig              `yaml:"listen"`
	Admin          AdminConfig               `yaml:"admin"`
	Logging        LoggingConfig             `yaml:"logging"`
	JWT            JWTConfig                 `yaml:"jwt"`
	CORS           CORSConfig                `yaml:"cors"`
	Redis          RedisConfig               `yaml:"redis"`
	RateLimit      RateLimitConfig           `yaml:"rate_limit"`
	CircuitBreaker CircuitBreakerConfig      `yaml:"circuit_breaker"`
	Upstreams      map[string]string         `yaml:"upstreams"` // service id -> base URL
	Routes         []RouteConfig             `yaml:"routes"`
	Authorization  []AuthorizationRuleConfig `yaml:"authorization"`
}

// ListenConfig defines the public listener.
type ListenConfig struct {
	Address           string        `yaml:"address"`
	ReadTimeout       time.Duration `yaml:"read_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
}

// AdminConfig defines the admin/metrics listener.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// JWTConfig defines token verification settings.
type JWTConfig struct {
	Algorithm string   `yaml:"algorithm"`  // HS256/HS384/HS512 or RS256/RS384/RS512
	Secret    string   `yaml:"secret"`     // HMAC secret
	PublicKey string   `yaml:"public_key"` // PEM-encoded RSA public key
	Issuer    string   `yaml:"issuer"`
	Audience  []string `yaml:"audience"`
}

// CORSConfig defines cross-origin settings for the public listener.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins"`
	AllowedMethods   []string `yaml:"allowed_methods"`
	AllowedHeaders   []string `yaml:"allowed_headers"`
	ExposedHeaders   []string `yaml:"exposed_headers"`
	AllowCredentials bool     `yaml:"allow_credentials"`
	MaxAge           int      `yaml:"max_age"` // seconds
}

// RedisConfig defines the shared rate-limiter store. When Addr is empty
// the gateway falls back to the in-process store.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// RateLimitConfig defines the named token-bucket profiles.
type RateLimitConfig struct {
	DefaultProfile string                   `yaml:"default_profile"`
	Profiles       map[string]ProfileConfig `yaml:"profiles"`
}

// ProfileConfig defines one token-bucket profile.
type ProfileConfig struct {
	ReplenishRate float64 `yaml:"replenish_rate"` // tokens per second
	BurstCapacity int     `yaml:"burst_capacity"` // bucket size
}

// CircuitBreakerConfig defines per-route breaker parameters.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// RouteConfig defines a route entry. Patterns support "*" (exactly one
// segment) and a trailing "**" (one or more segments).
type RouteConfig struct {
	ID            string        `yaml:"id"`
	Paths         []string      `yaml:"paths"`
	Methods       []string      `yaml:"methods"` // empty = any
	Service       string        `yaml:"service"` // upstream service id
	StripSegments int           `yaml:"strip_segments"`
	Profile       string        `yaml:"rate_limit_profile"` // empty = default profile
	Fallback      string        `yaml:"fallback"`           // e.g. /fallback/course
	Timeout       time.Duration `yaml:"timeout"`
}

// AuthorizationRuleConfig defines one entry of the ordered rule list.
// First match wins. Roles use ANY semantics; Public marks the path as
// reachable without credentials.
type AuthorizationRuleConfig struct {
	Path    string   `yaml:"path"`
	Methods []string `yaml:"methods"` // empty = any
	Roles   []string `yaml:"roles"`
	Public  bool     `yaml:"public"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen: ListenConfig{
			Address:           ":8080",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
			ReadHeaderTimeout: 10 * time.Second,
		},
		Admin: AdminConfig{
			Enabled: true,
			Address: ":9090",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			DefaultProfile: "default",
			Profiles: map[string]ProfileConfig{
				"default": {ReplenishRate: 10, BurstCapacity: 20},
				"auth":    {ReplenishRate: 5, BurstCapacity: 10},
				"read":    {ReplenishRate: 50, BurstCapacity: 100},
			},
		},
		CircuitBreaker: CircuitBreakerConfig{
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
	}
}
