package waf

import (
	"github.com/sitegate/gatekeeper/internal/adapter/security"
	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/logger"
)

// NewFromConfig builds the engine and merges the custom rules file, if
// one is configured. Watching the file is left to the caller.
func NewFromConfig(cfg config.WAFConfig, metrics *security.MetricsAdapter, logger *logger.StyledLogger) (*Engine, error) {
	engine := NewEngine(Options{
		BlockThreshold:  cfg.BlockThreshold,
		MaxInspectBytes: int(cfg.MaxInspectBytes),
		Disabled:        !cfg.Enabled,
	}, metrics, logger)

	if cfg.RulesFile != "" {
		n, err := engine.LoadCustomRules(cfg.RulesFile)
		if err != nil {
			return nil, err
		}
		logger.InfoWithCount("Loaded WAF custom rules", n, "file", cfg.RulesFile)
	}
	return engine, nil
}
