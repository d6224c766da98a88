package domain

import (
	"fmt"
	"regexp"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Weight is the risk score contribution of a single violation.
func (s Severity) Weight() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 3
	case SeverityHigh:
		return 7
	case SeverityCritical:
		return 10
	default:
		return 0
	}
}

func (s Severity) IsValid() bool {
	return s.Weight() > 0
}

type RuleAction string

const (
	ActionLog       RuleAction = "log"
	ActionBlock     RuleAction = "block"
	ActionChallenge RuleAction = "challenge"
)

func (a RuleAction) IsValid() bool {
	return a == ActionLog || a == ActionBlock || a == ActionChallenge
}

type RuleCategory string

const (
	CategorySQLi  RuleCategory = "sqli"
	CategoryXSS   RuleCategory = "xss"
	CategoryLFI   RuleCategory = "lfi"
	CategoryCMDi  RuleCategory = "cmdi"
	CategoryNoSQL RuleCategory = "nosql"
	CategorySSRF  RuleCategory = "ssrf"
	CategoryXXE   RuleCategory = "xxe"
)

func (c RuleCategory) IsValid() bool {
	switch c {
	case CategorySQLi, CategoryXSS, CategoryLFI, CategoryCMDi, CategoryNoSQL, CategorySSRF, CategoryXXE:
		return true
	}
	return false
}

// WAFRule is one attack signature. Pattern is compiled once when the rule
// enters a catalog and never mutated afterwards.
type WAFRule struct {
	Pattern     *regexp.Regexp
	ID          string
	Name        string
	Description string
	Severity    Severity
	Action      RuleAction
	Category    RuleCategory
}

func (r WAFRule) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("waf rule id is required")
	}
	if r.Pattern == nil {
		return fmt.Errorf("waf rule %s has no pattern", r.ID)
	}
	if !r.Severity.IsValid() {
		return fmt.Errorf("waf rule %s has unknown severity %q", r.ID, r.Severity)
	}
	if !r.Action.IsValid() {
		return fmt.Errorf("waf rule %s has unknown action %q", r.ID, r.Action)
	}
	if !r.Category.IsValid() {
		return fmt.Errorf("waf rule %s has unknown category %q", r.ID, r.Category)
	}
	return nil
}

type WAFViolation struct {
	Timestamp       time.Time    `json:"timestamp"`
	RuleID          string       `json:"ruleId"`
	RuleName        string       `json:"ruleName"`
	Severity        Severity     `json:"severity"`
	Category        RuleCategory `json:"category"`
	Action          RuleAction   `json:"action"`
	MatchedFragment string       `json:"matchedFragment"`
}

type RequestAnalysis struct {
	Violations []WAFViolation
	RiskScore  int
	Blocked    bool
}
