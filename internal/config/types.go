package config

import (
	"fmt"
	"net"
	"time"
)

// Config holds all configuration for the application
type Config struct {
	Filename    string               `yaml:"-" mapstructure:"-"`
	Environment string               `yaml:"environment" mapstructure:"environment"`
	Server      ServerConfig         `yaml:"server" mapstructure:"server"`
	Logging     LoggingConfig        `yaml:"logging" mapstructure:"logging"`
	RateLimit   RateLimitConfig      `yaml:"rate_limit" mapstructure:"rate_limit"`
	Redis       RedisConfig          `yaml:"redis" mapstructure:"redis"`
	WAF         WAFConfig            `yaml:"waf" mapstructure:"waf"`
	Signature   SignatureConfig      `yaml:"signature" mapstructure:"signature"`
	Headers     HeadersConfig        `yaml:"headers" mapstructure:"headers"`
	Auth        AuthConfig           `yaml:"auth" mapstructure:"auth"`
	Upstream    UpstreamConfig       `yaml:"upstream" mapstructure:"upstream"`
	Audit       AuditConfig          `yaml:"audit" mapstructure:"audit"`
	Routes      []RoutePolicyDef     `yaml:"routes" mapstructure:"routes"`
	Schemas     map[string]SchemaDef `yaml:"schemas" mapstructure:"schemas"`
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host                    string        `yaml:"host" mapstructure:"host"`
	MaxBodySize             string        `yaml:"max_body_size" mapstructure:"max_body_size"`
	TrustedProxyCIDRs       []string      `yaml:"trusted_proxy_cidrs" mapstructure:"trusted_proxy_cidrs"`
	TrustedProxyCIDRsParsed []*net.IPNet  `yaml:"-" mapstructure:"-"` // parsed once in Validate
	MaxBodyBytes            int64         `yaml:"-" mapstructure:"-"`
	Port                    int           `yaml:"port" mapstructure:"port"`
	ReadTimeout             time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout            time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout             time.Duration `yaml:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout         time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	TrustProxyHeaders       bool          `yaml:"trust_proxy_headers" mapstructure:"trust_proxy_headers"`
	RequestLogging          bool          `yaml:"request_logging" mapstructure:"request_logging"`
}

// GetAddress returns the server address in host:port format
func (s *ServerConfig) GetAddress() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level"`
	Theme      string `yaml:"theme" mapstructure:"theme"`
	Dir        string `yaml:"dir" mapstructure:"dir"`
	MaxSize    int    `yaml:"max_size" mapstructure:"max_size"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAge     int    `yaml:"max_age" mapstructure:"max_age"`
	FileOutput bool   `yaml:"file_output" mapstructure:"file_output"`
	AuditFile  bool   `yaml:"audit_file" mapstructure:"audit_file"`
}

// RateLimitConfig selects the counter backend and the per-class budgets.
type RateLimitConfig struct {
	Backend       string                      `yaml:"backend" mapstructure:"backend"`
	Classes       map[string]LimitClassConfig `yaml:"classes" mapstructure:"classes"`
	Paths         ClassPathConfig             `yaml:"paths" mapstructure:"paths"`
	SweepInterval time.Duration               `yaml:"sweep_interval" mapstructure:"sweep_interval"`
	PerUser       bool                        `yaml:"per_user" mapstructure:"per_user"`
}

// LimitClassConfig overrides one class of the built-in table; zero fields
// keep the built-in value.
type LimitClassConfig struct {
	Message     string        `yaml:"message" mapstructure:"message"`
	Window      time.Duration `yaml:"window" mapstructure:"window"`
	MaxRequests int           `yaml:"max_requests" mapstructure:"max_requests"`
}

// ClassPathConfig lists the path segments that pick a limit class. An
// entry only matches whole segments, so "/auth" never covers /authors.
type ClassPathConfig struct {
	Auth      []string `yaml:"auth" mapstructure:"auth"`
	Upload    []string `yaml:"upload" mapstructure:"upload"`
	Admin     []string `yaml:"admin" mapstructure:"admin"`
	Analytics []string `yaml:"analytics" mapstructure:"analytics"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr" mapstructure:"addr"`
	Password     string        `yaml:"password" mapstructure:"password"`
	KeyPrefix    string        `yaml:"key_prefix" mapstructure:"key_prefix"`
	DB           int           `yaml:"db" mapstructure:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout" mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	OpTimeout    time.Duration `yaml:"op_timeout" mapstructure:"op_timeout"`
}

type WAFConfig struct {
	RulesFile       string `yaml:"rules_file" mapstructure:"rules_file"`
	MaxInspectSize  string `yaml:"max_inspect_size" mapstructure:"max_inspect_size"`
	MaxInspectBytes int64  `yaml:"-" mapstructure:"-"`
	BlockThreshold  int    `yaml:"block_threshold" mapstructure:"block_threshold"`
	Enabled         bool   `yaml:"enabled" mapstructure:"enabled"`
}

type SignatureConfig struct {
	Secret      string        `yaml:"secret" mapstructure:"secret"`
	Window      time.Duration `yaml:"window" mapstructure:"window"`
	TrackNonces bool          `yaml:"track_nonces" mapstructure:"track_nonces"`
}

// HeadersConfig feeds the CSP and CORS builders.
type HeadersConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ConnectSrc     []string `yaml:"connect_src" mapstructure:"connect_src"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" mapstructure:"jwt_secret"`
	Issuer    string `yaml:"issuer" mapstructure:"issuer"`
	Audience  string `yaml:"audience" mapstructure:"audience"`
}

type UpstreamConfig struct {
	URL     string        `yaml:"url" mapstructure:"url"`
	Timeout time.Duration `yaml:"timeout" mapstructure:"timeout"`
}

type AuditConfig struct {
	RecentEvents int `yaml:"recent_events" mapstructure:"recent_events"`
}

// RoutePolicyDef is the config form of a route policy, matched by path prefix.
type RoutePolicyDef struct {
	Prefix           string   `yaml:"prefix" mapstructure:"prefix"`
	LimitClass       string   `yaml:"limit_class" mapstructure:"limit_class"`
	Schema           string   `yaml:"schema" mapstructure:"schema"`
	Methods          []string `yaml:"methods" mapstructure:"methods"`
	Roles            []string `yaml:"roles" mapstructure:"roles"`
	RequireAuth      bool     `yaml:"require_auth" mapstructure:"require_auth"`
	RequireSignature bool     `yaml:"require_signature" mapstructure:"require_signature"`
	Audit            bool     `yaml:"audit" mapstructure:"audit"`
}

// SchemaDef is a named body schema referenced by RoutePolicyDef.Schema.
type SchemaDef struct {
	Fields []FieldDef `yaml:"fields" mapstructure:"fields"`
}

// FieldDef constrains one JSON path of a request body.
type FieldDef struct {
	Path      string   `yaml:"path" mapstructure:"path"`
	Type      string   `yaml:"type" mapstructure:"type"`
	Pattern   string   `yaml:"pattern" mapstructure:"pattern"`
	Enum      []string `yaml:"enum" mapstructure:"enum"`
	MinLength int      `yaml:"min_length" mapstructure:"min_length"`
	MaxLength int      `yaml:"max_length" mapstructure:"max_length"`
	Required  bool     `yaml:"required" mapstructure:"required"`
}
