package blocklist

import (
	"net"
	"testing"

	"github.com/semiotic-ai/network-topology/internal/ids"
)

func TestNilAddressSetAllowsAll(t *testing.T) {
	var s *AddressSet
	if s.Blocked(ids.IndexerAddr{1}) {
		t.Error("expected nil AddressSet to allow everything")
	}
}

func TestEmptyAddressSetAllowsAll(t *testing.T) {
	s := NewAddressSet(nil)
	if s.Blocked(ids.IndexerAddr{1}) {
		t.Error("expected empty AddressSet to allow everything")
	}
}

func TestAddressSetBlocksConfigured(t *testing.T) {
	blocked := ids.IndexerAddr{2}
	s := NewAddressSet([]ids.IndexerAddr{blocked})
	if !s.Blocked(blocked) {
		t.Error("expected configured address to be blocked")
	}
	if s.Blocked(ids.IndexerAddr{3}) {
		t.Error("expected unconfigured address to be allowed")
	}
}

func TestHostSetBlocksCIDR(t *testing.T) {
	s := NewHostSet([]string{"104.18.40.0/24"})
	if !s.BlockedAny([]net.IP{net.ParseIP("104.18.40.31")}) {
		t.Error("expected IP within CIDR to be blocked")
	}
	if s.BlockedAny([]net.IP{net.ParseIP("8.8.8.8")}) {
		t.Error("expected IP outside CIDR to be allowed")
	}
}

func TestNilHostSetAllowsAll(t *testing.T) {
	var s *HostSet
	if s.BlockedAny([]net.IP{net.ParseIP("1.2.3.4")}) {
		t.Error("expected nil HostSet to allow everything")
	}
}

func TestHostSetSkipsMalformedCIDR(t *testing.T) {
	s := NewHostSet([]string{"not-a-cidr"})
	if s != nil {
		t.Error("expected all-malformed CIDR list to yield a nil HostSet")
	}
}
