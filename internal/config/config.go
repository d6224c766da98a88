package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/docker/go-units"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/util"
)

const (
	DefaultPort = 8443
	DefaultHost = "localhost"

	DefaultMaxBodySize    = "10MB"
	DefaultMaxInspectSize = "64KB"
	DefaultBlockThreshold = 15

	BackendMemory = "memory"
	BackendRedis  = "redis"

	EnvPrefix     = "GATEKEEPER"
	EnvConfigFile = "GATEKEEPER_CONFIG_FILE"
)

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Environment: constants.EnvironmentDevelopment,
		Server: ServerConfig{
			Host:            DefaultHost,
			Port:            DefaultPort,
			MaxBodySize:     DefaultMaxBodySize,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 10 * time.Second,
			RequestLogging:  true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Theme:      "default",
			Dir:        "./logs",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			AuditFile:  true,
		},
		RateLimit: RateLimitConfig{
			Backend:       BackendMemory,
			SweepInterval: 5 * time.Minute,
			PerUser:       true,
			Paths: ClassPathConfig{
				Auth:      []string{"/auth", "/login", "/signup", "/password", "/signature"},
				Upload:    []string{"/upload", "/uploads", "/file", "/files"},
				Admin:     []string{"/admin", "/system"},
				Analytics: []string{"/analytics", "/report", "/reports"},
			},
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			KeyPrefix:    "gatekeeper:",
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			OpTimeout:    time.Second,
		},
		WAF: WAFConfig{
			Enabled:        true,
			BlockThreshold: DefaultBlockThreshold,
			MaxInspectSize: DefaultMaxInspectSize,
		},
		Signature: SignatureConfig{
			Window:      5 * time.Minute,
			TrackNonces: true,
		},
		Auth: AuthConfig{
			Issuer: "sitegate",
		},
		Upstream: UpstreamConfig{
			Timeout: 30 * time.Second,
		},
		Audit: AuditConfig{
			RecentEvents: 200,
		},
	}
}

// Load reads config.yaml (or GATEKEEPER_CONFIG_FILE) over the defaults,
// applies GATEKEEPER_* environment overrides and validates the result.
// onChange, when non-nil, is called whenever the config file is rewritten.
func Load(onChange func(fsnotify.Event)) (*Config, error) {
	v := viper.New()
	config := DefaultConfig()
	setDefaults(v, config)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// secrets are usually only ever set through the environment
	for key, env := range map[string]string{
		"signature.secret": "GATEKEEPER_SIGNATURE_SECRET",
		"auth.jwt_secret":  "GATEKEEPER_AUTH_JWT_SECRET",
		"redis.password":   "GATEKEEPER_REDIS_PASSWORD",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if configFile := os.Getenv(EnvConfigFile); configFile != "" {
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.Filename = v.ConfigFileUsed()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	if onChange != nil && config.Filename != "" {
		v.OnConfigChange(onChange)
		v.WatchConfig()
	}

	return config, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("environment", c.Environment)

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.max_body_size", c.Server.MaxBodySize)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", c.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.trust_proxy_headers", c.Server.TrustProxyHeaders)
	v.SetDefault("server.trusted_proxy_cidrs", c.Server.TrustedProxyCIDRs)
	v.SetDefault("server.request_logging", c.Server.RequestLogging)

	v.SetDefault("logging.level", c.Logging.Level)
	v.SetDefault("logging.theme", c.Logging.Theme)
	v.SetDefault("logging.dir", c.Logging.Dir)
	v.SetDefault("logging.max_size", c.Logging.MaxSize)
	v.SetDefault("logging.max_backups", c.Logging.MaxBackups)
	v.SetDefault("logging.max_age", c.Logging.MaxAge)
	v.SetDefault("logging.file_output", c.Logging.FileOutput)
	v.SetDefault("logging.audit_file", c.Logging.AuditFile)

	v.SetDefault("rate_limit.backend", c.RateLimit.Backend)
	v.SetDefault("rate_limit.sweep_interval", c.RateLimit.SweepInterval)
	v.SetDefault("rate_limit.per_user", c.RateLimit.PerUser)
	v.SetDefault("rate_limit.paths.auth", c.RateLimit.Paths.Auth)
	v.SetDefault("rate_limit.paths.upload", c.RateLimit.Paths.Upload)
	v.SetDefault("rate_limit.paths.admin", c.RateLimit.Paths.Admin)
	v.SetDefault("rate_limit.paths.analytics", c.RateLimit.Paths.Analytics)

	v.SetDefault("redis.addr", c.Redis.Addr)
	v.SetDefault("redis.password", c.Redis.Password)
	v.SetDefault("redis.db", c.Redis.DB)
	v.SetDefault("redis.key_prefix", c.Redis.KeyPrefix)
	v.SetDefault("redis.dial_timeout", c.Redis.DialTimeout)
	v.SetDefault("redis.read_timeout", c.Redis.ReadTimeout)
	v.SetDefault("redis.write_timeout", c.Redis.WriteTimeout)
	v.SetDefault("redis.op_timeout", c.Redis.OpTimeout)

	v.SetDefault("waf.enabled", c.WAF.Enabled)
	v.SetDefault("waf.block_threshold", c.WAF.BlockThreshold)
	v.SetDefault("waf.max_inspect_size", c.WAF.MaxInspectSize)
	v.SetDefault("waf.rules_file", c.WAF.RulesFile)

	v.SetDefault("signature.window", c.Signature.Window)
	v.SetDefault("signature.track_nonces", c.Signature.TrackNonces)

	v.SetDefault("headers.allowed_origins", c.Headers.AllowedOrigins)
	v.SetDefault("headers.connect_src", c.Headers.ConnectSrc)

	v.SetDefault("auth.issuer", c.Auth.Issuer)
	v.SetDefault("auth.audience", c.Auth.Audience)

	v.SetDefault("upstream.url", c.Upstream.URL)
	v.SetDefault("upstream.timeout", c.Upstream.Timeout)

	v.SetDefault("audit.recent_events", c.Audit.RecentEvents)
}

// Validate checks the loaded values and fills the parsed forms
// (byte sizes, CIDRs) the rest of the application reads.
func (c *Config) Validate() error {
	switch c.Environment {
	case constants.EnvironmentDevelopment, constants.EnvironmentProduction:
	default:
		return domain.NewConfigValidationError("environment", c.Environment, "must be development or production")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return domain.NewConfigValidationError("server.port", c.Server.Port, "must be between 1 and 65535")
	}

	bodyBytes, err := units.RAMInBytes(c.Server.MaxBodySize)
	if err != nil || bodyBytes <= 0 {
		return domain.NewConfigValidationError("server.max_body_size", c.Server.MaxBodySize, "must be a positive size such as 10MB")
	}
	c.Server.MaxBodyBytes = bodyBytes

	cidrs, err := util.ParseTrustedCIDRs(c.Server.TrustedProxyCIDRs)
	if err != nil {
		return domain.NewConfigValidationError("server.trusted_proxy_cidrs", c.Server.TrustedProxyCIDRs, err.Error())
	}
	c.Server.TrustedProxyCIDRsParsed = cidrs

	switch c.RateLimit.Backend {
	case BackendMemory:
		if c.RateLimit.SweepInterval <= 0 {
			return domain.NewConfigValidationError("rate_limit.sweep_interval", c.RateLimit.SweepInterval, "must be positive")
		}
	case BackendRedis:
		if c.Redis.Addr == "" {
			return domain.NewConfigValidationError("redis.addr", c.Redis.Addr, "required when rate_limit.backend is redis")
		}
		if c.Redis.OpTimeout <= 0 {
			return domain.NewConfigValidationError("redis.op_timeout", c.Redis.OpTimeout, "must be positive")
		}
	default:
		return domain.NewConfigValidationError("rate_limit.backend", c.RateLimit.Backend, "must be memory or redis")
	}

	for name, class := range c.RateLimit.Classes {
		if !domain.LimitClass(name).IsValid() {
			return domain.NewConfigValidationError("rate_limit.classes", name, "unknown limit class")
		}
		if class.MaxRequests < 0 || class.Window < 0 {
			return domain.NewConfigValidationError("rate_limit.classes."+name, class, "window and max_requests must not be negative")
		}
	}

	inspectBytes, err := units.RAMInBytes(c.WAF.MaxInspectSize)
	if err != nil || inspectBytes <= 0 {
		return domain.NewConfigValidationError("waf.max_inspect_size", c.WAF.MaxInspectSize, "must be a positive size such as 64KB")
	}
	c.WAF.MaxInspectBytes = inspectBytes

	if c.WAF.BlockThreshold <= 0 {
		return domain.NewConfigValidationError("waf.block_threshold", c.WAF.BlockThreshold, "must be positive")
	}

	if c.Signature.Window <= 0 {
		return domain.NewConfigValidationError("signature.window", c.Signature.Window, "must be positive")
	}

	if c.Upstream.URL != "" {
		u, err := url.Parse(c.Upstream.URL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return domain.NewConfigValidationError("upstream.url", c.Upstream.URL, "must be an absolute URL")
		}
	}

	for _, route := range c.Routes {
		if !strings.HasPrefix(route.Prefix, "/") {
			return domain.NewConfigValidationError("routes.prefix", route.Prefix, "must start with /")
		}
		if route.LimitClass != "" && !domain.LimitClass(route.LimitClass).IsValid() {
			return domain.NewConfigValidationError("routes.limit_class", route.LimitClass, "unknown limit class")
		}
		if route.Schema != "" {
			if _, ok := c.Schemas[route.Schema]; !ok {
				return domain.NewConfigValidationError("routes.schema", route.Schema, "schema is not defined")
			}
		}
	}

	return nil
}

// LimitPolicies merges configured class overrides onto the built-in table.
func (c *Config) LimitPolicies() map[domain.LimitClass]domain.LimitPolicy {
	policies := domain.DefaultLimitPolicies()
	for name, override := range c.RateLimit.Classes {
		class := domain.LimitClass(name)
		policy, ok := policies[class]
		if !ok {
			continue
		}
		if override.Window > 0 {
			policy.Window = override.Window
		}
		if override.MaxRequests > 0 {
			policy.MaxRequests = override.MaxRequests
		}
		if override.Message != "" {
			policy.Message = override.Message
		}
		policies[class] = policy
	}
	return policies
}

// WatchFile reloads path through its own viper instance and calls onChange
// on every write. Used for files that live beside config.yaml, such as the
// custom WAF rules.
func WatchFile(path string, onChange func(fsnotify.Event)) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("cannot watch %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.OnConfigChange(func(e fsnotify.Event) {
		if e.Has(fsnotify.Write) || e.Has(fsnotify.Create) {
			onChange(e)
		}
	})
	v.WatchConfig()
	return nil
}
