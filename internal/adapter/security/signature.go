package security

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sitegate/gatekeeper/internal/core/constants"
	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/internal/core/ports"
	"github.com/sitegate/gatekeeper/internal/logger"
)

const (
	StageSignature = "signature"

	DefaultSignatureWindow = 5 * time.Minute
	NonceKeyPrefix         = "nonce:"

	// timestamps below this are read as seconds rather than milliseconds
	secondsCutoff = 100_000_000_000
)

// SignatureValidator checks HMAC-SHA256 request signatures computed over
// METHOD:PATH:BODY:TIMESTAMP:NONCE. With a nonce store each nonce is
// accepted once per replay window.
type SignatureValidator struct {
	nonces  ports.CounterStore
	metrics *MetricsAdapter
	logger  *logger.StyledLogger
	now     func() time.Time
	secret  []byte
	window  time.Duration
}

func NewSignatureValidator(secret string, window time.Duration, nonces ports.CounterStore, metrics *MetricsAdapter, logger *logger.StyledLogger) *SignatureValidator {
	if window <= 0 {
		window = DefaultSignatureWindow
	}
	return &SignatureValidator{
		secret:  []byte(secret),
		window:  window,
		nonces:  nonces,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func (sv *SignatureValidator) Name() string {
	return StageSignature
}

// CanonicalString is the exact byte sequence both sides sign.
func CanonicalString(method, path string, body []byte, timestamp, nonce string) string {
	var b strings.Builder
	b.Grow(len(method) + len(path) + len(body) + len(timestamp) + len(nonce) + 4)
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(':')
	b.WriteString(path)
	b.WriteByte(':')
	b.Write(body)
	b.WriteByte(':')
	b.WriteString(timestamp)
	b.WriteByte(':')
	b.WriteString(nonce)
	return b.String()
}

func computeSignature(secret []byte, canonical string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(canonical))
	return hex.EncodeToString(mac.Sum(nil))
}

// Sign produces the three signing headers for a request. The timestamp is
// written in epoch milliseconds.
func Sign(secret, method, path string, body []byte, at time.Time, nonce string) http.Header {
	ts := strconv.FormatInt(at.UnixMilli(), 10)
	h := make(http.Header, 3)
	h.Set(constants.HeaderSignature, computeSignature([]byte(secret), CanonicalString(method, path, body, ts, nonce)))
	h.Set(constants.HeaderTimestamp, ts)
	h.Set(constants.HeaderNonce, nonce)
	return h
}

// Validate returns nil for an authentic, fresh request and a
// *domain.SignatureError otherwise.
func (sv *SignatureValidator) Validate(ctx context.Context, r *http.Request, body []byte) error {
	if len(sv.secret) == 0 {
		return &domain.SignatureError{Err: domain.ErrSignatureSecretMissing}
	}

	signature := r.Header.Get(constants.HeaderSignature)
	timestamp := r.Header.Get(constants.HeaderTimestamp)
	nonce := r.Header.Get(constants.HeaderNonce)
	if signature == "" || timestamp == "" || nonce == "" {
		return &domain.SignatureError{Err: domain.ErrSignatureHeadersMissing, Nonce: nonce}
	}

	signedAt, err := parseSignatureTimestamp(timestamp)
	if err != nil {
		return &domain.SignatureError{Err: domain.ErrSignatureMalformed, Nonce: nonce}
	}

	skew := sv.now().Sub(signedAt)
	if skew > sv.window || skew < -sv.window {
		return &domain.SignatureError{Err: domain.ErrSignatureExpired, Nonce: nonce, Skew: skew}
	}

	expected := computeSignature(sv.secret, CanonicalString(r.Method, r.URL.Path, body, timestamp, nonce))
	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return &domain.SignatureError{Err: domain.ErrSignatureMismatch, Nonce: nonce}
	}

	// only authentic requests may burn a nonce
	if sv.nonces != nil {
		rec, err := sv.nonces.Increment(ctx, NonceKeyPrefix+nonce, 2*sv.window)
		if err != nil {
			// replay check skipped, same fail-open rule as the limiter
			sv.metrics.RecordStoreError(ctx, sv.nonces.Name(), err, nil, "")
			return nil
		}
		if rec.Count > 1 {
			return &domain.SignatureError{Err: domain.ErrNonceReplayed, Nonce: nonce}
		}
	}

	return nil
}

func parseSignatureTimestamp(raw string) (time.Time, error) {
	v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || v <= 0 {
		return time.Time{}, domain.ErrSignatureMalformed
	}
	if v < secondsCutoff {
		return time.Unix(v, 0), nil
	}
	return time.UnixMilli(v), nil
}

// Check only runs for routes that ask for signed requests.
func (sv *SignatureValidator) Check(ctx context.Context, req *ports.SecurityRequest) *domain.ApiError {
	if !req.Policy.RequireSignature {
		return nil
	}

	body, err := req.Body()
	if err != nil {
		return domain.ErrInvalidSignature
	}

	verr := sv.Validate(ctx, req.HTTP, body)
	if verr == nil {
		return nil
	}

	reason := verr.Error()
	var sigErr *domain.SignatureError
	if errors.As(verr, &sigErr) {
		reason = sigErr.Err.Error()
	}

	if errors.Is(verr, domain.ErrSignatureSecretMissing) {
		sv.logger.Error("Signed route hit without a signature secret configured", "path", req.HTTP.URL.Path)
	} else {
		sv.logger.Warn("Invalid request signature",
			"reason", reason,
			"path", req.HTTP.URL.Path,
			"client_ip", req.ApiCtx.IP)
	}

	sv.metrics.Emit(ctx, domain.NewSecurityEvent(domain.EventInvalidSignature, domain.SeverityHigh, req.ApiCtx, map[string]any{
		"reason": reason,
		"path":   req.HTTP.URL.Path,
		"method": req.HTTP.Method,
	}))

	return domain.ErrInvalidSignature
}
