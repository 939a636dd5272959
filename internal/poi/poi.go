// Package poi implements the proof-of-indexing resolver and blocklist. For
// each indexer it probes only the deployments the operator has configured
// forbidden POIs for, filters the indexer's surviving deployment set
// against the probe results, and blocks the indexer outright if nothing
// survives.
package poi

import (
	"context"
	"fmt"
	"sync"

	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/model"
	"github.com/semiotic-ai/network-topology/internal/probe"
	"github.com/semiotic-ai/network-topology/internal/xerrors"
)

// Entry is one configured (deployment, block, forbidden POI) triple.
type Entry struct {
	Deployment   ids.DeploymentId
	Block        uint64
	ForbiddenPOI string
}

// Blocklist indexes configured entries by deployment for fast intersection
// against an indexer's surviving deployment set.
type Blocklist struct {
	byDeployment map[ids.DeploymentId][]Entry
}

// NewBlocklist builds a Blocklist from a flat list of entries. A nil or
// empty Blocklist lets every indexer through without probing.
func NewBlocklist(entries []Entry) *Blocklist {
	if len(entries) == 0 {
		return nil
	}
	byDep := make(map[ids.DeploymentId][]Entry)
	for _, e := range entries {
		byDep[e.Deployment] = append(byDep[e.Deployment], e)
	}
	return &Blocklist{byDeployment: byDep}
}

type probeRequestItem struct {
	Deployment string `json:"deployment"`
	Block      uint64 `json:"block"`
}

type probeRequest struct {
	Items []probeRequestItem `json:"items"`
}

type probeResponse struct {
	// POIs is keyed by "<deploymentHex>@<block>", matching the request item.
	POIs map[string]string `json:"pois"`
}

func cacheKey(indexer ids.IndexerAddr, dep ids.DeploymentId, block uint64) string {
	return fmt.Sprintf("%s/%s@%d", indexer, dep, block)
}

func itemKey(dep ids.DeploymentId, block uint64) string {
	return fmt.Sprintf("%s@%d", dep, block)
}

// Resolver probes public-poi and filters an indexer's deployments against
// the configured Blocklist. One Resolver is built per refresh; its cache is
// scoped to that refresh's lifetime.
type Resolver struct {
	client    *probe.Client
	blocklist *Blocklist

	mu    sync.Mutex
	cache map[string]string // cacheKey -> POI
}

// New builds a Resolver. blocklist may be nil.
func New(client *probe.Client, blocklist *Blocklist) *Resolver {
	return &Resolver{client: client, blocklist: blocklist, cache: make(map[string]string)}
}

// Resolve probes baseURL for the intersection of info.Deployments and the
// configured blocklist's deployments, drops any deployment whose returned
// POI matches a forbidden value, and blocks the indexer entirely if its
// deployment set becomes empty.
func (r *Resolver) Resolve(ctx context.Context, baseURL string, info *model.IndexerInfo) error {
	if r.blocklist == nil {
		return nil
	}

	type target struct {
		dep   ids.DeploymentId
		block uint64
	}
	var targets []target
	for dep := range info.Deployments {
		entries, ok := r.blocklist.byDeployment[dep]
		if !ok {
			continue
		}
		for _, e := range entries {
			targets = append(targets, target{dep: dep, block: e.Block})
		}
	}
	if len(targets) == 0 {
		return nil
	}

	req := probeRequest{Items: make([]probeRequestItem, 0, len(targets))}
	uncached := make(map[string]target)
	r.mu.Lock()
	for _, t := range targets {
		if _, ok := r.cache[cacheKey(info.ID, t.dep, t.block)]; ok {
			continue
		}
		req.Items = append(req.Items, probeRequestItem{Deployment: t.dep.String(), Block: t.block})
		uncached[itemKey(t.dep, t.block)] = t
	}
	r.mu.Unlock()

	if len(req.Items) > 0 {
		var resp probeResponse
		if err := r.client.PostJSON(ctx, "poi", baseURL, "/public-poi", req, &resp); err != nil {
			return xerrors.Wrap(xerrors.KindBlocklistHit, "poi", "poi probe failed", err)
		}
		r.mu.Lock()
		for key, t := range uncached {
			r.cache[cacheKey(info.ID, t.dep, t.block)] = resp.POIs[key]
		}
		r.mu.Unlock()
	}

	blocked := make(map[ids.DeploymentId]struct{})
	for _, t := range targets {
		poiValue := r.cachedPOI(info.ID, t.dep, t.block)
		for _, e := range r.blocklist.byDeployment[t.dep] {
			if e.Block == t.block && e.ForbiddenPOI == poiValue && poiValue != "" {
				blocked[t.dep] = struct{}{}
			}
		}
	}

	for dep := range blocked {
		info.DropDeployment(dep)
	}
	if len(info.Deployments) == 0 {
		return xerrors.New(xerrors.KindBlocklistHit, "poi", "all deployments poi-blocked")
	}
	return nil
}

func (r *Resolver) cachedPOI(indexer ids.IndexerAddr, dep ids.DeploymentId, block uint64) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cache[cacheKey(indexer, dep, block)]
}
