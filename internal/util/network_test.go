package util

import (
	"net"
	"strings"
	"testing"
)

func TestParseTrustedCIDRs_Valid(t *testing.T) {
	cidrs, err := ParseTrustedCIDRs([]string{"10.0.0.0/8", " 192.168.0.0/16 ", ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cidrs) != 2 {
		t.Fatalf("expected 2 networks, got %d", len(cidrs))
	}
	if !isIPInTrustedCIDRs(net.ParseIP("10.1.2.3"), cidrs) {
		t.Error("10.1.2.3 should be inside 10.0.0.0/8")
	}
	if isIPInTrustedCIDRs(net.ParseIP("203.0.113.9"), cidrs) {
		t.Error("203.0.113.9 should not be trusted")
	}
}

func TestParseTrustedCIDRs_Invalid(t *testing.T) {
	if _, err := ParseTrustedCIDRs([]string{"10.0.0.0/33"}); err == nil {
		t.Error("expected error for invalid CIDR")
	}
}

func TestParseTrustedCIDRs_Empty(t *testing.T) {
	cidrs, err := ParseTrustedCIDRs(nil)
	if err != nil || cidrs != nil {
		t.Errorf("expected nil result for empty input, got %v, %v", cidrs, err)
	}
}

func TestListen_ReportsTakenAddress(t *testing.T) {
	first, err := Listen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer first.Close()

	addr := first.Addr().String()
	if _, err := Listen(addr); err == nil {
		t.Fatalf("expected %s to be reported as taken", addr)
	} else if !strings.Contains(err.Error(), addr) {
		t.Errorf("error should name the address, got %v", err)
	}
}
