package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sitegate/gatekeeper/internal/adapter/audit"
	"github.com/sitegate/gatekeeper/internal/adapter/auth"
	"github.com/sitegate/gatekeeper/internal/adapter/metrics"
	"github.com/sitegate/gatekeeper/internal/adapter/security"
	"github.com/sitegate/gatekeeper/internal/adapter/validation"
	"github.com/sitegate/gatekeeper/internal/adapter/waf"
	"github.com/sitegate/gatekeeper/internal/app/gateway"
	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
	"github.com/sitegate/gatekeeper/internal/router"
)

// Application owns every long-lived component and the HTTP server that
// fronts them.
type Application struct {
	startTime time.Time
	configMu  sync.RWMutex
	config    *config.Config
	logger    *logger.StyledLogger
	server    *http.Server
	registry  *router.RouteRegistry
	gateway   *gateway.Gateway
	policies  *gateway.PolicyTable
	waf       *waf.Engine
	sink      *audit.Sink
	collector *metrics.Collector
	handler   http.Handler
	cleanup   []func()
	stopOnce  sync.Once
}

// New wires the gateway from cfg. Nothing listens until Run is called.
func New(startTime time.Time, cfg *config.Config, log *logger.StyledLogger) (_ *Application, err error) {
	app := &Application{
		startTime: startTime,
		config:    cfg,
		logger:    log,
		registry:  router.NewRouteRegistry(log),
	}

	// on failure, release whatever was opened so far in reverse order
	var sec *security.Adapters
	defer func() {
		if err == nil {
			return
		}
		if app.gateway != nil {
			_ = app.gateway.Close(context.Background())
		} else {
			if sec != nil {
				_ = sec.Stop()
			}
			if app.sink != nil {
				app.sink.Shutdown()
			}
		}
		for i := len(app.cleanup) - 1; i >= 0; i-- {
			app.cleanup[i]()
		}
	}()

	// the sink echoes to the console when no audit file is kept
	var auditLog *slog.Logger
	if cfg.Logging.AuditFile {
		l, cleanup, err := logger.NewAudit(auditLoggerConfig(cfg))
		if err != nil {
			return nil, fmt.Errorf("creating audit logger: %w", err)
		}
		auditLog = l
		app.cleanup = append(app.cleanup, cleanup)
	}
	app.sink = audit.NewSink(auditLog, log, audit.Options{RecentEvents: cfg.Audit.RecentEvents})

	promRegistry := metrics.NewRegistry()
	collector, err := metrics.NewCollector(promRegistry)
	if err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	app.collector = collector

	sec, err = security.NewSecurityServices(cfg, collector, app.sink, log)
	if err != nil {
		return nil, err
	}

	engine, err := waf.NewFromConfig(cfg.WAF, sec.Metrics, log)
	if err != nil {
		return nil, fmt.Errorf("loading waf rules: %w", err)
	}
	app.waf = engine

	schemas, err := validation.CompileSchemas(cfg.Schemas)
	if err != nil {
		return nil, fmt.Errorf("compiling schemas: %w", err)
	}
	policies, err := gateway.NewPolicyTable(cfg.Routes, schemas, ports.RoutePolicy{})
	if err != nil {
		return nil, err
	}
	app.policies = policies

	var authenticator ports.Authenticator
	if cfg.Auth.JWTSecret != "" {
		authenticator = auth.NewJWTAuthenticator(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.Audience)
	} else {
		log.Warn("No JWT secret configured, every request is anonymous")
	}

	gw, err := gateway.New(gateway.Options{
		Security:          sec,
		WAF:               engine,
		Authenticator:     authenticator,
		Metrics:           collector,
		Sink:              app.sink,
		Logger:            log,
		MaxBodyBytes:      cfg.Server.MaxBodyBytes,
		TrustProxyHeaders: cfg.Server.TrustProxyHeaders,
		TrustedProxyCIDRs: cfg.Server.TrustedProxyCIDRsParsed,
	})
	if err != nil {
		return nil, err
	}
	app.gateway = gw

	if err = app.registerRoutes(promRegistry); err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	app.registry.WireUp(mux)
	app.handler = mux
	if cfg.Server.RequestLogging {
		app.handler = gateway.AccessLog(log)(mux)
	}

	app.server = &http.Server{
		Addr:         cfg.Server.GetAddress(),
		Handler:      app.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.InfoWithNumbers("Security pipeline ready: %s stages, %s WAF rules, %s route policies", int64(len(gw.Stages())), int64(len(engine.Rules())), int64(policies.Len()))
	return app, nil
}

func (a *Application) registerRoutes(promRegistry *prometheus.Registry) error {
	a.registry.Register(constants.DefaultHealthCheckEndpoint, http.HandlerFunc(a.healthHandler), "Health check", http.MethodGet)
	a.registry.Register(constants.DefaultSecurityStatsPath, http.HandlerFunc(a.securityStatsHandler), "Security event statistics", http.MethodGet)
	a.registry.Register(constants.DefaultSecurityEventsPath, http.HandlerFunc(a.securityEventsHandler), "Live security event stream", http.MethodGet)
	a.registry.Register(constants.DefaultMetricsPath, a.collector.Handler(), "Prometheus metrics", http.MethodGet)
	a.registry.Register(constants.DefaultVersionPath, http.HandlerFunc(a.versionHandler), "Version information", http.MethodGet)

	cfg := a.getConfig()
	if cfg.Upstream.URL == "" {
		a.logger.Warn("No upstream configured, /api/ is not served")
		return nil
	}

	upstream, err := newUpstreamProxy(cfg.Upstream, a.logger)
	if err != nil {
		return err
	}
	a.registry.RegisterProtected(constants.DefaultAPIPathPrefix, a.gateway.WrapResolved("api", a.policies, upstream), "Upstream API", "ANY")
	return nil
}

// Handler is the fully wired mux, for tests and embedding.
func (a *Application) Handler() http.Handler {
	return a.handler
}

func (a *Application) WAF() *waf.Engine {
	return a.waf
}

func (a *Application) Sink() *audit.Sink {
	return a.sink
}

// WatchFiles starts the hot reload watchers: the config file (for the
// WAF switch) and the custom WAF rules file.
func (a *Application) WatchFiles() {
	cfg := a.getConfig()
	if cfg.Filename != "" {
		if err := config.WatchFile(cfg.Filename, a.onConfigChange); err != nil {
			a.logger.Warn("Config hot reload disabled", "error", err)
		}
	}
	if cfg.WAF.RulesFile != "" {
		if err := a.waf.WatchCustomRules(cfg.WAF.RulesFile); err != nil {
			a.logger.Warn("WAF rule hot reload disabled", "file", cfg.WAF.RulesFile, "error", err)
		}
	}
}

// onConfigChange applies what can change without a restart.
func (a *Application) onConfigChange(e fsnotify.Event) {
	next, err := config.Load(nil)
	if err != nil {
		a.logger.Error("Ignoring config change", "file", e.Name, "error", err)
		return
	}

	current := a.getConfig()
	if next.WAF.Enabled != current.WAF.Enabled {
		a.waf.SetEnabled(next.WAF.Enabled)
		a.logger.Info("WAF toggled by config reload", "enabled", next.WAF.Enabled)
	}
	a.setConfig(next)
	a.logger.Info("Configuration reloaded, server and limiter settings apply on restart", "file", e.Name)
}

func (a *Application) setConfig(cfg *config.Config) {
	a.configMu.Lock()
	defer a.configMu.Unlock()
	a.config = cfg
}

func (a *Application) getConfig() *config.Config {
	a.configMu.RLock()
	defer a.configMu.RUnlock()
	return a.config
}

func auditLoggerConfig(cfg *config.Config) *logger.Config {
	return &logger.Config{
		LogDir:     cfg.Logging.Dir,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		AuditFile:  true,
	}
}
