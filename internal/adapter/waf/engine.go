package waf

/*
				Gatekeeper WAF - Rule Engine
	Engine matches requests against an ordered rule catalog. The catalog is
	an immutable slice behind an atomic pointer: analysis loads it once per
	request and never locks, while AddRule, RemoveRule and rule file reloads
	build a new slice under a writer mutex and swap it in. A violation can
	therefore only ever reference a rule from the snapshot it was matched
	against.
*/

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/sitegate/gatekeeper/internal/adapter/security"
	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
)

const (
	StageWAF = "waf"

	DefaultBlockThreshold  = 15
	DefaultMaxInspectBytes = 64 << 10
)

type Options struct {
	BlockThreshold  int
	MaxInspectBytes int
	Disabled        bool
}

type catalog struct {
	rules []domain.WAFRule
	// ids loaded from the rules file, replaced wholesale on reload
	custom map[string]struct{}
}

type Engine struct {
	catalog   atomic.Pointer[catalog]
	metrics   *security.MetricsAdapter
	logger    *logger.StyledLogger
	now       func() time.Time
	writeMu   sync.Mutex
	threshold int
	maxBytes  int
	enabled   atomic.Bool
}

func NewEngine(opts Options, metrics *security.MetricsAdapter, logger *logger.StyledLogger) *Engine {
	if opts.BlockThreshold <= 0 {
		opts.BlockThreshold = DefaultBlockThreshold
	}
	if opts.MaxInspectBytes <= 0 {
		opts.MaxInspectBytes = DefaultMaxInspectBytes
	}

	e := &Engine{
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		threshold: opts.BlockThreshold,
		maxBytes:  opts.MaxInspectBytes,
	}
	e.catalog.Store(&catalog{rules: DefaultRules(), custom: map[string]struct{}{}})
	e.enabled.Store(!opts.Disabled)
	return e
}

func (e *Engine) Name() string {
	return StageWAF
}

func (e *Engine) SetEnabled(enabled bool) {
	e.enabled.Store(enabled)
}

func (e *Engine) Enabled() bool {
	return e.enabled.Load()
}

// Rules returns a snapshot of the active catalog in evaluation order.
func (e *Engine) Rules() []domain.WAFRule {
	return slices.Clone(e.catalog.Load().rules)
}

// AddRule appends a rule to the end of the catalog.
func (e *Engine) AddRule(rule domain.WAFRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	current := e.catalog.Load()
	if indexOf(current.rules, rule.ID) >= 0 {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateRule, rule.ID)
	}

	next := &catalog{
		rules:  append(slices.Clone(current.rules), rule),
		custom: current.custom,
	}
	e.catalog.Store(next)
	return nil
}

func (e *Engine) RemoveRule(id string) error {
	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	current := e.catalog.Load()
	idx := indexOf(current.rules, id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", domain.ErrRuleNotFound, id)
	}

	custom := current.custom
	if _, ok := custom[id]; ok {
		custom = cloneSet(custom)
		delete(custom, id)
	}

	e.catalog.Store(&catalog{
		rules:  slices.Delete(slices.Clone(current.rules), idx, idx+1),
		custom: custom,
	})
	return nil
}

// ReplaceCustomRules swaps the previously loaded file rules for rules in a
// single step. Nothing changes if any of them clashes with a rule that
// did not come from the file.
func (e *Engine) ReplaceCustomRules(rules []domain.WAFRule) error {
	for _, r := range rules {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	e.writeMu.Lock()
	defer e.writeMu.Unlock()

	current := e.catalog.Load()
	next := make([]domain.WAFRule, 0, len(current.rules)+len(rules))
	for _, r := range current.rules {
		if _, ok := current.custom[r.ID]; !ok {
			next = append(next, r)
		}
	}

	custom := make(map[string]struct{}, len(rules))
	for _, r := range rules {
		if indexOf(next, r.ID) >= 0 {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateRule, r.ID)
		}
		next = append(next, r)
		custom[r.ID] = struct{}{}
	}

	e.catalog.Store(&catalog{rules: next, custom: custom})
	return nil
}

func indexOf(rules []domain.WAFRule, id string) int {
	return slices.IndexFunc(rules, func(r domain.WAFRule) bool { return r.ID == id })
}

func cloneSet(m map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(m))
	for k := range m {
		out[k] = struct{}{}
	}
	return out
}

// Analyze scores a request against the current catalog. body is the
// already-buffered request body; the request stream itself is not read.
func (e *Engine) Analyze(r *http.Request, body []byte) domain.RequestAnalysis {
	rules := e.catalog.Load().rules
	blob := buildBlob(r, body, e.maxBytes)
	now := e.now()

	var analysis domain.RequestAnalysis
	for i := range rules {
		rule := &rules[i]
		loc := rule.Pattern.FindStringIndex(blob)
		if loc == nil {
			continue
		}

		analysis.Violations = append(analysis.Violations, domain.WAFViolation{
			RuleID:          rule.ID,
			RuleName:        rule.Name,
			Severity:        rule.Severity,
			Category:        rule.Category,
			Action:          rule.Action,
			MatchedFragment: sanitiseFragment(blob[loc[0]:loc[1]]),
			Timestamp:       now,
		})
		analysis.RiskScore += rule.Severity.Weight()
		if rule.Action == domain.ActionBlock {
			analysis.Blocked = true
		}
	}

	if analysis.RiskScore >= e.threshold {
		analysis.Blocked = true
	}
	return analysis
}

func (e *Engine) Check(ctx context.Context, req *ports.SecurityRequest) *domain.ApiError {
	if !e.Enabled() {
		return nil
	}

	body, err := req.Body()
	if err != nil {
		// the size stage already refused oversized bodies; inspect what we have
		body = nil
	}

	analysis := e.Analyze(req.HTTP, body)
	if len(analysis.Violations) == 0 {
		return nil
	}

	for _, v := range analysis.Violations {
		e.metrics.RecordViolation(v)
		e.metrics.Emit(ctx, domain.NewSecurityEvent(domain.EventWAFViolation, v.Severity, req.ApiCtx, map[string]any{
			"ruleId":          v.RuleID,
			"ruleName":        v.RuleName,
			"category":        string(v.Category),
			"action":          string(v.Action),
			"matchedFragment": v.MatchedFragment,
			"path":            req.HTTP.URL.Path,
			"method":          req.HTTP.Method,
		}))
	}

	if !analysis.Blocked {
		e.logger.Info("WAF rules matched below block threshold",
			"path", req.HTTP.URL.Path,
			"risk_score", analysis.RiskScore,
			"violations", len(analysis.Violations),
			"client_ip", req.ApiCtx.IP)
		return nil
	}

	reference := uuid.NewString()
	ruleIDs := make([]string, len(analysis.Violations))
	for i, v := range analysis.Violations {
		ruleIDs[i] = v.RuleID
	}

	e.logger.Warn("WAF blocked request",
		"reference", reference,
		"method", req.HTTP.Method,
		"path", req.HTTP.URL.Path,
		"risk_score", analysis.RiskScore,
		"rules", ruleIDs,
		"client_ip", req.ApiCtx.IP)

	e.metrics.Emit(ctx, domain.NewSecurityEvent(domain.EventWAFBlocked, highestSeverity(analysis.Violations), req.ApiCtx, map[string]any{
		"referenceId": reference,
		"riskScore":   analysis.RiskScore,
		"ruleIds":     ruleIDs,
		"path":        req.HTTP.URL.Path,
	}))

	req.ResponseHeaders.Set(constants.HeaderWAFBlocked, "true")
	req.ResponseHeaders.Set(constants.HeaderWAFRuleCount, strconv.Itoa(len(analysis.Violations)))

	return domain.ErrWAFBlocked.WithDetails(map[string]any{
		"referenceId": reference,
	})
}

func highestSeverity(violations []domain.WAFViolation) domain.Severity {
	top := domain.SeverityLow
	for _, v := range violations {
		if v.Severity.Weight() > top.Weight() {
			top = v.Severity
		}
	}
	return top
}
