package waf

import (
	"net/http"
	"sort"
	"strings"

	"github.com/sitegate/gatekeeper/internal/core/constants"
)

const maxFragmentLen = 100

// Headers that never reach the inspection blob. Forwarding headers carry
// proxy addresses that look like SSRF targets, credentials are opaque and
// negotiation headers routinely contain "*/*;q=" style noise.
var skippedHeaders = map[string]struct{}{
	constants.HeaderXForwardedFor:  {},
	constants.HeaderXRealIP:        {},
	constants.HeaderCFConnectingIP: {},
	constants.HeaderXClientIP:      {},
	"X-Forwarded-Host":             {},
	"X-Forwarded-Proto":            {},
	"Forwarded":                    {},
	constants.HeaderAuthorization:  {},
	"Cookie":                       {},
	constants.HeaderSignature:      {},
	constants.HeaderTimestamp:      {},
	constants.HeaderNonce:          {},
	constants.HeaderOrigin:         {},
	"Referer":                      {},
	"Connection":                   {},
	"Content-Length":               {},
}

func skipHeader(name string) bool {
	canonical := http.CanonicalHeaderKey(name)
	if strings.HasPrefix(canonical, "Accept") {
		return true
	}
	_, ok := skippedHeaders[canonical]
	return ok
}

// buildBlob flattens the parts of a request an attacker controls into one
// string: the URL with its query, the remaining headers in a stable order
// and the body. Each of the three sections is capped at limit bytes on its
// own, so padding one section cannot push another out of view.
func buildBlob(r *http.Request, body []byte, limit int) string {
	var b strings.Builder

	b.WriteString(capSection(targetSection(r), limit))
	b.WriteByte('\n')

	names := make([]string, 0, len(r.Header))
	for name := range r.Header {
		if !skipHeader(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	var hb strings.Builder
	for _, name := range names {
		for _, v := range r.Header[name] {
			hb.WriteString(name)
			hb.WriteString(": ")
			hb.WriteString(v)
			hb.WriteByte('\n')
		}
	}
	b.WriteString(capSection(hb.String(), limit))

	if limit > 0 && len(body) > limit {
		body = body[:limit]
	}
	b.Write(body)

	return b.String()
}

// targetSection holds the decoded path and query, followed by the raw form
// when decoding changed anything.
func targetSection(r *http.Request) string {
	rawPath := r.URL.EscapedPath()
	decoded := lenientUnescape(rawPath, false)
	raw := rawPath
	if r.URL.RawQuery != "" {
		decoded += "?" + lenientUnescape(r.URL.RawQuery, true)
		raw += "?" + r.URL.RawQuery
	}
	if decoded == raw {
		return raw
	}
	return decoded + "\n" + raw
}

// lenientUnescape decodes every valid %XX escape and leaves malformed ones
// as literal text. One bad escape must not hide the rest of the query.
func lenientUnescape(s string, plusAsSpace bool) string {
	if !strings.ContainsAny(s, "%+") {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]):
			b.WriteByte(unhex(s[i+1])<<4 | unhex(s[i+2]))
			i += 2
		case c == '+' && plusAsSpace:
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func isHex(c byte) bool {
	return ('0' <= c && c <= '9') || ('a' <= c && c <= 'f') || ('A' <= c && c <= 'F')
}

func unhex(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

func capSection(s string, limit int) string {
	if limit > 0 && len(s) > limit {
		return s[:limit]
	}
	return s
}

var fragmentStripper = strings.NewReplacer("<", "", ">", "", `"`, "", "'", "", "&", "")

// sanitiseFragment keeps matched text safe to log and hand to dashboards.
func sanitiseFragment(s string) string {
	s = fragmentStripper.Replace(s)
	if len(s) <= maxFragmentLen {
		return s
	}
	runes := []rune(s)
	if len(runes) > maxFragmentLen {
		runes = runes[:maxFragmentLen]
	}
	return string(runes)
}
