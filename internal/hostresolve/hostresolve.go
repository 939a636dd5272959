// Package hostresolve turns an indexer URL into the set of IP addresses for
// its host, cached for the lifetime of one refresh and deduplicated across
// concurrent lookups of the same host. A resolution failure or timeout is
// always fatal to the indexer: downstream probes require a reachable host.
package hostresolve

import (
	"context"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/semiotic-ai/network-topology/internal/xerrors"
)

// Resolver caches DNS resolutions for one refresh's lifetime and collapses
// concurrent lookups of the same host into a single net.Resolver call.
type Resolver struct {
	dns     *net.Resolver
	timeout time.Duration

	mu    sync.Mutex
	cache map[string][]net.IP

	group singleflight.Group
}

// New builds a Resolver. Call it once per refresh; discard it afterward so
// the cache does not bleed into the next refresh.
func New(timeout time.Duration) *Resolver {
	return &Resolver{
		dns:     net.DefaultResolver,
		timeout: timeout,
		cache:   make(map[string][]net.IP),
	}
}

// Resolve returns the IP addresses for host, using the per-refresh cache
// and deduplicating concurrent callers.
func (r *Resolver) Resolve(ctx context.Context, host string) ([]net.IP, error) {
	r.mu.Lock()
	if ips, ok := r.cache[host]; ok {
		r.mu.Unlock()
		return ips, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(host, func() (any, error) {
		lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()

		addrs, err := r.dns.LookupIPAddr(lookupCtx, host)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindProbeTimeout, "hostresolve", "dns lookup failed for "+host, err)
		}
		ips := make([]net.IP, 0, len(addrs))
		for _, a := range addrs {
			ips = append(ips, a.IP)
		}

		r.mu.Lock()
		r.cache[host] = ips
		r.mu.Unlock()
		return ips, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]net.IP), nil
}
