package util

import (
	"net"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

func TestGenerateRequestID(t *testing.T) {
	id1 := GenerateRequestID()
	id2 := GenerateRequestID()

	if id1 == id2 {
		t.Error("Generated IDs should be unique")
	}
	if _, err := uuid.Parse(id1); err != nil {
		t.Errorf("Generated ID should be a uuid, got %s", id1)
	}
}

func TestGetClientIP_NoProxyHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/sites", nil)
	req.RemoteAddr = "192.168.1.100:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.1")

	if ip := GetClientIP(req, false, nil); ip != "192.168.1.100" {
		t.Errorf("Expected 192.168.1.100, got %s", ip)
	}
}

func TestGetClientIP_ForwardedFirstEntryWins(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/sites", nil)
	req.RemoteAddr = "10.0.0.5:443"
	req.Header.Set("X-Forwarded-For", "203.0.113.1, 10.0.0.5")
	req.Header.Set("X-Real-IP", "198.51.100.7")

	if ip := GetClientIP(req, true, nil); ip != "203.0.113.1" {
		t.Errorf("Expected 203.0.113.1, got %s", ip)
	}
}

func TestGetClientIP_HeaderPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		want    string
	}{
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.7", "CF-Connecting-IP": "198.51.100.8"}, "198.51.100.7"},
		{"cloudflare", map[string]string{"CF-Connecting-IP": "198.51.100.8", "X-Client-IP": "198.51.100.9"}, "198.51.100.8"},
		{"client ip", map[string]string{"X-Client-IP": "198.51.100.9"}, "198.51.100.9"},
		{"none", map[string]string{}, "10.0.0.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/api/sites", nil)
			req.RemoteAddr = "10.0.0.5:443"
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if ip := GetClientIP(req, true, nil); ip != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, ip)
			}
		})
	}
}

func TestGetClientIP_UntrustedPeerIgnoresHeaders(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/sites", nil)
	req.RemoteAddr = "203.0.113.1:12345"
	req.Header.Set("X-Forwarded-For", "10.0.0.1")

	trusted, _ := ParseTrustedCIDRs([]string{"192.168.0.0/16"})
	if ip := GetClientIP(req, true, trusted); ip != "203.0.113.1" {
		t.Errorf("Expected 203.0.113.1 (ignoring untrusted proxy headers), got %s", ip)
	}
}

func TestGetClientIP_TrustedPeer(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/sites", nil)
	req.RemoteAddr = "192.168.1.1:12345"
	req.Header.Set("X-Forwarded-For", "203.0.113.1")

	trusted, _ := ParseTrustedCIDRs([]string{"192.168.0.0/16"})
	if ip := GetClientIP(req, true, trusted); ip != "203.0.113.1" {
		t.Errorf("Expected 203.0.113.1, got %s", ip)
	}
}

func TestGetClientIP_IPv6(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/sites", nil)
	req.RemoteAddr = "[2001:db8::1]:8080"

	if ip := GetClientIP(req, false, nil); ip != "2001:db8::1" {
		t.Errorf("Expected 2001:db8::1, got %s", ip)
	}
}

func TestGetSourceIP(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.168.1.1:80"
	if ip := getSourceIP(req); !ip.Equal(net.ParseIP("192.168.1.1")) {
		t.Errorf("Expected 192.168.1.1, got %v", ip)
	}
}
