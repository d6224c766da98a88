package waf

import (
	"regexp"

	"github.com/sitegate/gatekeeper/internal/core/domain"
)

// RuleSpec is the uncompiled form of a rule, shared by the built-in
// catalog and the YAML rules file.
type RuleSpec struct {
	ID          string              `yaml:"id"`
	Name        string              `yaml:"name"`
	Description string              `yaml:"description"`
	Pattern     string              `yaml:"pattern"`
	Severity    domain.Severity     `yaml:"severity"`
	Action      domain.RuleAction   `yaml:"action"`
	Category    domain.RuleCategory `yaml:"category"`
}

func (s RuleSpec) Compile() (domain.WAFRule, error) {
	re, err := regexp.Compile(s.Pattern)
	if err != nil {
		return domain.WAFRule{}, &domain.RuleCompileError{RuleID: s.ID, Err: err}
	}
	rule := domain.WAFRule{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		Pattern:     re,
		Severity:    s.Severity,
		Action:      s.Action,
		Category:    s.Category,
	}
	if rule.Name == "" {
		rule.Name = rule.ID
	}
	if err := rule.Validate(); err != nil {
		return domain.WAFRule{}, err
	}
	return rule, nil
}

// Built-in catalog, evaluated in this order.
var builtinSpecs = []RuleSpec{
	// SQL injection
	{
		ID: "sqli-union", Name: "SQL UNION injection",
		Description: "UNION followed by SELECT, the usual shape of a data exfiltration query",
		Pattern:     `(?i)\bunion\b[\s\S]{0,40}?\bselect\b`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategorySQLi,
	},
	{
		ID: "sqli-comment", Name: "SQL comment or quote break-out",
		Description: "A quote closed and followed by a statement terminator or comment",
		Pattern:     `(?i)('|%27)\s*(;|--|/\*|#)|(\s|;)--(\s|$)`,
		Severity:    domain.SeverityMedium, Action: domain.ActionLog, Category: domain.CategorySQLi,
	},
	{
		ID: "sqli-boolean", Name: "Boolean-based blind SQL injection",
		Description: "Tautologies such as ' OR 1=1 or AND 'a'='a'",
		Pattern:     `(?i)('|%27|")\s*(or|and)\s+('?\w+'?)\s*=\s*('?\w+'?)|\b(or|and)\s+\d+\s*=\s*\d+`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategorySQLi,
	},
	{
		ID: "sqli-time", Name: "Time-based blind SQL injection",
		Description: "Database delay functions used to probe for injection",
		Pattern:     `(?i)\b(sleep|pg_sleep|benchmark|waitfor\s+delay)\s*[\('"]`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategorySQLi,
	},

	// Cross-site scripting
	{
		ID: "xss-script", Name: "Script tag",
		Description: "An opening <script> element",
		Pattern:     `(?i)<\s*script[^>]*>`,
		Severity:    domain.SeverityCritical, Action: domain.ActionBlock, Category: domain.CategoryXSS,
	},
	{
		ID: "xss-event", Name: "Event handler or javascript: URL",
		Description: "Inline DOM event handlers and javascript: pseudo URLs",
		Pattern:     `(?i)\bon(error|load|click|mouseover|focus|blur|submit|change|keyup|keydown)\s*=|javascript\s*:`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategoryXSS,
	},
	{
		ID: "xss-expression", Name: "CSS expression",
		Description: "Legacy IE CSS expression() evaluation",
		Pattern:     `(?i)\bexpression\s*\(`,
		Severity:    domain.SeverityMedium, Action: domain.ActionLog, Category: domain.CategoryXSS,
	},
	{
		ID: "xss-data-uri", Name: "HTML data URI",
		Description: "data:text/html URIs that render attacker markup",
		Pattern:     `(?i)data\s*:\s*text/html`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategoryXSS,
	},

	// Local file inclusion
	{
		ID: "lfi-traversal", Name: "Directory traversal",
		Description: "Three or more parent directory steps, plain or percent-encoded",
		Pattern:     `(?i)(\.\.[/\\]){3,}|(%2e%2e(%2f|%5c)){3,}`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategoryLFI,
	},
	{
		ID: "lfi-unix", Name: "Sensitive Unix path",
		Description: "References to credential, host and process files",
		Pattern:     `(?i)/(etc/(passwd|shadow|hosts|group)|proc/self/|var/log/)`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategoryLFI,
	},
	{
		ID: "lfi-windows", Name: "Sensitive Windows path",
		Description: "References to Windows system directories and boot files",
		Pattern:     `(?i)(c:\\windows|\\windows\\system32|boot\.ini|win\.ini)`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategoryLFI,
	},

	// Command injection
	{
		ID: "cmdi-shell", Name: "Shell metacharacter chaining",
		Description: "Command separators, pipes or substitutions followed by a command",
		Pattern:     "(?i)(;|&&|\\|\\||\\|)\\s*(ls|cat|id|whoami|uname|wget|curl|nc|bash|sh|rm|chmod|ping|nslookup)\\b|\\$\\(\\s*(ls|cat|id|whoami|uname|wget|curl|nc|bash|sh|rm)\\b|`\\s*(ls|cat|id|whoami|uname|wget|curl|nc|bash|sh|rm)\\b[^`]*`",
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategoryCMDi,
	},
	{
		ID: "cmdi-command", Name: "System interpreter",
		Description: "Direct references to shells and script interpreters",
		Pattern:     `(?i)(/bin/(ba|z|da)?sh|/usr/bin/(env|perl|python\d?|php)|\bcmd\.exe|\bpowershell(\.exe)?)\b`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategoryCMDi,
	},

	// NoSQL injection
	{
		ID: "nosql-operator", Name: "MongoDB query operator",
		Description: "Query operators smuggled into JSON bodies or bracketed query keys",
		Pattern:     `(?i)[\[{"']\s*\$(ne|gt|gte|lt|lte|in|nin|regex|exists|or|and|not|elemMatch)\b`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategoryNoSQL,
	},
	{
		ID: "nosql-js", Name: "MongoDB JavaScript evaluation",
		Description: "$where clauses and shell-style collection calls",
		Pattern:     `(?i)\$where\b|\bdb\.[a-z_]+\.(find|insert|update|remove|drop)\s*\(|\bmapReduce\b`,
		Severity:    domain.SeverityCritical, Action: domain.ActionBlock, Category: domain.CategoryNoSQL,
	},

	// Server-side request forgery
	{
		ID: "ssrf-private", Name: "Private network URL",
		Description: "URLs pointing at loopback or RFC 1918 addresses",
		Pattern:     `(?i)\b(https?|gopher|ftp|file|dict)://(localhost|127\.\d+\.\d+\.\d+|0\.0\.0\.0|10\.\d+\.\d+\.\d+|192\.168\.\d+\.\d+|172\.(1[6-9]|2\d|3[01])\.\d+\.\d+|\[::1\])`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategorySSRF,
	},
	{
		ID: "ssrf-metadata", Name: "Cloud metadata endpoint",
		Description: "Instance metadata services of the major clouds",
		Pattern:     `(?i)169\.254\.169\.254|metadata\.google\.internal|100\.100\.100\.200|fd00:ec2::254`,
		Severity:    domain.SeverityCritical, Action: domain.ActionBlock, Category: domain.CategorySSRF,
	},

	// XML external entities
	{
		ID: "xxe-entity", Name: "External entity declaration",
		Description: "ENTITY declarations that pull SYSTEM or PUBLIC resources",
		Pattern:     `(?i)<!ENTITY\s+[^>]*\b(SYSTEM|PUBLIC)\b`,
		Severity:    domain.SeverityCritical, Action: domain.ActionBlock, Category: domain.CategoryXXE,
	},
	{
		ID: "xxe-doctype", Name: "DOCTYPE with internal subset",
		Description: "A DOCTYPE whose internal subset declares entities",
		Pattern:     `(?i)<!DOCTYPE[^>]*\[\s*<!ENTITY`,
		Severity:    domain.SeverityHigh, Action: domain.ActionBlock, Category: domain.CategoryXXE,
	},
}

var builtinRules = mustCompileAll(builtinSpecs)

func mustCompileAll(specs []RuleSpec) []domain.WAFRule {
	rules := make([]domain.WAFRule, 0, len(specs))
	for _, s := range specs {
		r, err := s.Compile()
		if err != nil {
			panic(err)
		}
		rules = append(rules, r)
	}
	return rules
}

// DefaultRules returns a copy of the built-in catalog.
func DefaultRules() []domain.WAFRule {
	return append([]domain.WAFRule(nil), builtinRules...)
}
