package util

import (
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/sitegate/gatekeeper/internal/core/constants"
)

// forwardedHeaders are consulted in order; the first non-empty one wins.
var forwardedHeaders = []string{
	constants.HeaderXForwardedFor,
	constants.HeaderXRealIP,
	constants.HeaderCFConnectingIP,
	constants.HeaderXClientIP,
}

func GenerateRequestID() string {
	return uuid.NewString()
}

// GetClientIP resolves the caller's address. Forwarded headers are only
// honoured when trustProxyHeaders is set and, if trustedCIDRs is non-empty,
// the direct peer sits inside one of them.
func GetClientIP(r *http.Request, trustProxyHeaders bool, trustedCIDRs []*net.IPNet) string {
	if !trustProxyHeaders {
		return remoteHost(r)
	}

	if len(trustedCIDRs) > 0 {
		sourceIP := getSourceIP(r)
		if sourceIP == nil || !isIPInTrustedCIDRs(sourceIP, trustedCIDRs) {
			return remoteHost(r)
		}
	}

	for _, header := range forwardedHeaders {
		value := r.Header.Get(header)
		if value == "" {
			continue
		}
		// x-forwarded-for is a list, client first
		if ip := strings.TrimSpace(strings.Split(value, ",")[0]); ip != "" {
			return ip
		}
	}

	return remoteHost(r)
}

func remoteHost(r *http.Request) string {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	if r.RemoteAddr == "" {
		return "unknown"
	}
	return r.RemoteAddr
}

func getSourceIP(r *http.Request) net.IP {
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(ip)
	}
	return net.ParseIP(r.RemoteAddr)
}
