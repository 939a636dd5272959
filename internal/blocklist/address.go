// Package blocklist implements the indexer address blocklist and the
// blocklist half of host resolution (resolved-IP CIDR membership). The POI
// blocklist is configured alongside the POI resolver in internal/poi,
// since it is evaluated against probe results rather than membership alone.
package blocklist

import (
	"crypto/sha256"
	"crypto/subtle"
	"net"

	"github.com/semiotic-ai/network-topology/internal/ids"
)

// AddressSet is a constant-time membership predicate over indexer
// addresses. A nil or empty AddressSet allows every address: an
// unconfigured blocklist must never reject anything.
type AddressSet struct {
	hashed map[[32]byte]struct{}
}

// NewAddressSet builds an AddressSet from a list of blocked addresses.
func NewAddressSet(addrs []ids.IndexerAddr) *AddressSet {
	if len(addrs) == 0 {
		return nil
	}
	hashed := make(map[[32]byte]struct{}, len(addrs))
	for _, a := range addrs {
		hashed[sha256.Sum256(a[:])] = struct{}{}
	}
	return &AddressSet{hashed: hashed}
}

// Blocked reports whether addr is in the set. Comparison happens in
// constant time per-candidate to avoid leaking which prefix of a submitted
// address matched.
func (s *AddressSet) Blocked(addr ids.IndexerAddr) bool {
	if s == nil || len(s.hashed) == 0 {
		return false
	}
	sum := sha256.Sum256(addr[:])
	for candidate := range s.hashed {
		if subtle.ConstantTimeCompare(sum[:], candidate[:]) == 1 {
			return true
		}
	}
	return false
}

// HostSet is a membership predicate over resolved IP addresses against a
// set of configured CIDR networks. A nil or empty HostSet allows every
// host.
type HostSet struct {
	networks []*net.IPNet
}

// NewHostSet builds a HostSet from a list of CIDR strings. Malformed CIDRs
// are skipped (the caller is expected to validate configuration up front;
// this constructor never errors so it can be used fluently at startup).
func NewHostSet(cidrs []string) *HostSet {
	var nets []*net.IPNet
	for _, c := range cidrs {
		_, ipNet, err := net.ParseCIDR(c)
		if err != nil {
			continue
		}
		nets = append(nets, ipNet)
	}
	if len(nets) == 0 {
		return nil
	}
	return &HostSet{networks: nets}
}

// BlockedAny reports whether any of ips falls within a configured network.
func (s *HostSet) BlockedAny(ips []net.IP) bool {
	if s == nil || len(s.networks) == 0 {
		return false
	}
	for _, ip := range ips {
		for _, n := range s.networks {
			if n.Contains(ip) {
				return true
			}
		}
	}
	return false
}
