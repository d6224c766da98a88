package constants

const (
	DefaultHealthCheckEndpoint = "/internal/health"
	DefaultSecurityStatsPath   = "/internal/security/stats"
	DefaultSecurityEventsPath  = "/internal/security/events"
	DefaultMetricsPath         = "/internal/metrics"
	DefaultVersionPath         = "/version"
	DefaultAPIPathPrefix       = "/api/"
)

const (
	EnvironmentDevelopment = "development"
	EnvironmentProduction  = "production"
)
