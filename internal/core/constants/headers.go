package constants

// Request headers used for client identity, in precedence order.
const (
	HeaderXForwardedFor  = "X-Forwarded-For"
	HeaderXRealIP        = "X-Real-IP"
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderXClientIP      = "X-Client-IP"
)

const (
	HeaderSignature = "X-Signature"
	HeaderTimestamp = "X-Timestamp"
	HeaderNonce     = "X-Nonce"

	HeaderOrigin                     = "Origin"
	HeaderAuthorization              = "Authorization"
	HeaderAccessControlRequestMethod = "Access-Control-Request-Method"
	HeaderXRequestID                 = "X-Request-ID"
	HeaderForwardedUser              = "X-Gatekeeper-User"
)

const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"

	HeaderWAFBlocked   = "X-WAF-Blocked"
	HeaderWAFRuleCount = "X-WAF-Rule-Count"
)

const (
	HeaderCSP                 = "Content-Security-Policy"
	HeaderContentTypeOptions  = "X-Content-Type-Options"
	HeaderFrameOptions        = "X-Frame-Options"
	HeaderXSSProtection       = "X-XSS-Protection"
	HeaderReferrerPolicy      = "Referrer-Policy"
	HeaderHSTS                = "Strict-Transport-Security"
	HeaderPermissionsPolicy   = "Permissions-Policy"
	HeaderVary                = "Vary"
	HeaderACAllowOrigin       = "Access-Control-Allow-Origin"
	HeaderACAllowCredentials  = "Access-Control-Allow-Credentials"
	HeaderACAllowMethods      = "Access-Control-Allow-Methods"
	HeaderACAllowHeaders      = "Access-Control-Allow-Headers"
	HeaderACExposeHeaders     = "Access-Control-Expose-Headers"
	HeaderACMaxAge            = "Access-Control-Max-Age"
)
