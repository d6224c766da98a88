package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrStoreUnavailable = errors.New("counter store unavailable")
	ErrStoreClosed      = errors.New("counter store closed")
	ErrRuleNotFound     = errors.New("waf rule not found")
	ErrDuplicateRule    = errors.New("waf rule already exists")
)

// StoreError wraps any failure coming out of a CounterStore backend so callers
// can tell a backend outage apart from a programming error.
type StoreError struct {
	Err     error
	Backend string
	Op      string
	Key     string
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("%s store %s failed for key %s: %v", e.Backend, e.Op, e.Key, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func NewStoreError(backend, op, key string, err error) *StoreError {
	return &StoreError{
		Backend: backend,
		Op:      op,
		Key:     key,
		Err:     err,
	}
}

type ConfigValidationError struct {
	Field  string
	Value  interface{}
	Reason string
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("invalid configuration for %s=%v: %s", e.Field, e.Value, e.Reason)
}

func NewConfigValidationError(field string, value interface{}, reason string) *ConfigValidationError {
	return &ConfigValidationError{
		Field:  field,
		Value:  value,
		Reason: reason,
	}
}

// RuleCompileError is returned when a WAF rule pattern does not compile.
type RuleCompileError struct {
	Err    error
	RuleID string
}

func (e *RuleCompileError) Error() string {
	return fmt.Sprintf("waf rule %s has an invalid pattern: %v", e.RuleID, e.Err)
}

func (e *RuleCompileError) Unwrap() error {
	return e.Err
}

var (
	ErrSignatureHeadersMissing = errors.New("signature headers missing")
	ErrSignatureExpired        = errors.New("signature timestamp outside replay window")
	ErrSignatureMalformed      = errors.New("signature timestamp malformed")
	ErrSignatureMismatch       = errors.New("signature mismatch")
	ErrSignatureSecretMissing  = errors.New("signature secret not configured")
	ErrNonceReplayed           = errors.New("signature nonce already used")
)

// SignatureError carries why a signed request was rejected. Skew is only set
// for ErrSignatureExpired.
type SignatureError struct {
	Err   error
	Nonce string
	Skew  time.Duration
}

func (e *SignatureError) Error() string {
	if e.Skew != 0 {
		return fmt.Sprintf("signature rejected (skew %v): %v", e.Skew, e.Err)
	}
	return fmt.Sprintf("signature rejected: %v", e.Err)
}

func (e *SignatureError) Unwrap() error {
	return e.Err
}
