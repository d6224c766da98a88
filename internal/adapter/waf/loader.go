package waf

import (
	"errors"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/sitegate/gatekeeper/internal/config"
	"github.com/sitegate/gatekeeper/internal/core/domain"
)

type rulesFile struct {
	Rules []RuleSpec `yaml:"rules"`
}

// ParseRules compiles a YAML rule catalog. Every rule is compiled before
// any is returned, so a bad pattern rejects the whole file.
func ParseRules(data []byte) ([]domain.WAFRule, error) {
	var file rulesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing waf rules: %w", err)
	}

	seen := make(map[string]struct{}, len(file.Rules))
	rules := make([]domain.WAFRule, 0, len(file.Rules))
	var errs []error
	for _, spec := range file.Rules {
		if _, dup := seen[spec.ID]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", domain.ErrDuplicateRule, spec.ID))
			continue
		}
		seen[spec.ID] = struct{}{}

		rule, err := spec.Compile()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rules = append(rules, rule)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return rules, nil
}

func LoadRulesFile(path string) ([]domain.WAFRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading waf rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// LoadCustomRules reads path and swaps it in as the engine's custom rules.
func (e *Engine) LoadCustomRules(path string) (int, error) {
	rules, err := LoadRulesFile(path)
	if err != nil {
		return 0, err
	}
	if err := e.ReplaceCustomRules(rules); err != nil {
		return 0, err
	}
	return len(rules), nil
}

// WatchCustomRules reloads path whenever it changes. A file that fails to
// parse leaves the running catalog untouched.
func (e *Engine) WatchCustomRules(path string) error {
	return config.WatchFile(path, func(ev fsnotify.Event) {
		n, err := e.LoadCustomRules(path)
		if err != nil {
			e.logger.Error("Failed to reload WAF rules, keeping current catalog", "file", ev.Name, "error", err)
			return
		}
		e.logger.InfoWithCount("Reloaded WAF custom rules", n, "file", ev.Name)
	})
}
