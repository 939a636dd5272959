// Package indexerpipeline implements the per-indexer orchestration: address
// blocklist, host resolve, version floors, POI, progress and cost-model, run
// in that fixed order against each surviving indexer record. Steps that drop
// an indexer return early; indexers are processed concurrently relative to
// each other, bounded only by a worker pool and the shared HTTP client's
// connection pool.
package indexerpipeline

import (
	"context"
	"log"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/semiotic-ai/network-topology/internal/blocklist"
	"github.com/semiotic-ai/network-topology/internal/costmodel"
	"github.com/semiotic-ai/network-topology/internal/hostresolve"
	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/model"
	"github.com/semiotic-ai/network-topology/internal/poi"
	"github.com/semiotic-ai/network-topology/internal/progress"
	"github.com/semiotic-ai/network-topology/internal/version"
	"github.com/semiotic-ai/network-topology/internal/xerrors"
)

// Timeouts bundles the per-probe timeouts that host resolution, version,
// POI, progress and cost-model each apply independently.
type Timeouts struct {
	AgentVersion time.Duration
	NodeVersion  time.Duration
	HostResolve  time.Duration
	POI          time.Duration
	Progress     time.Duration
	CostModel    time.Duration
}

// Processor runs the full address-blocklist-to-cost-model pipeline against
// every surviving indexer record.
type Processor struct {
	addressBlocklist *blocklist.AddressSet
	hostBlocklist    *blocklist.HostSet
	hostResolver     *hostresolve.Resolver
	versionResolver  *version.Resolver
	poiResolver      *poi.Resolver
	progressResolver *progress.Resolver
	costResolver     *costmodel.Resolver
	timeouts         Timeouts
	debug            bool
}

// Config wires the per-step collaborators. HostResolver and POIResolver
// each hold a cache that must not outlive one refresh, so the caller
// constructs them fresh per refresh; the other collaborators hold no
// per-refresh state.
type Config struct {
	AddressBlocklist *blocklist.AddressSet
	HostBlocklist    *blocklist.HostSet
	HostResolver     *hostresolve.Resolver
	VersionResolver  *version.Resolver
	POIResolver      *poi.Resolver
	ProgressResolver *progress.Resolver
	CostResolver     *costmodel.Resolver
	Timeouts         Timeouts
	Debug            bool
}

// New builds a Processor for one refresh.
func New(cfg Config) *Processor {
	return &Processor{
		addressBlocklist: cfg.AddressBlocklist,
		hostBlocklist:    cfg.HostBlocklist,
		hostResolver:     cfg.HostResolver,
		versionResolver:  cfg.VersionResolver,
		poiResolver:      cfg.POIResolver,
		progressResolver: cfg.ProgressResolver,
		costResolver:     cfg.CostResolver,
		timeouts:         cfg.Timeouts,
		debug:            cfg.Debug,
	}
}

// poolSize bounds the fan-out: each worker spends nearly all its time
// waiting on probe I/O, so the pool runs well past the core count.
func poolSize() int {
	n := runtime.NumCPU() * 8
	if n < 8 {
		return 8
	}
	return n
}

// Run processes every indexer in raw concurrently and returns the survivor
// map. If zero indexers survive, it returns xerrors.KindNoSurvivors.
func (p *Processor) Run(ctx context.Context, raw map[ids.IndexerAddr]*model.IndexerInfo) (map[ids.IndexerAddr]*model.IndexerInfo, error) {
	survivors := make(map[ids.IndexerAddr]*model.IndexerInfo, len(raw))
	var survivorsMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize())

	for addr, info := range raw {
		addr, info := addr, info
		g.Go(func() error {
			ok := p.processOne(gctx, info)
			if ok {
				survivorsMu.Lock()
				survivors[addr] = info
				survivorsMu.Unlock()
			}
			return nil
		})
	}
	// Errors from individual indexers never abort the whole fan-out (they
	// are per-indexer blocks, not refresh-fatal); g.Wait() only reports an
	// error if a step function itself returned one, which none do above.
	_ = g.Wait()

	if len(survivors) == 0 {
		return nil, xerrors.New(xerrors.KindNoSurvivors, "indexerpipeline", "no indexers survived the pipeline")
	}
	return survivors, nil
}

// processOne runs the pipeline steps in order against one indexer, returning
// false if any step drops it.
func (p *Processor) processOne(ctx context.Context, info *model.IndexerInfo) bool {
	// address blocklist
	if p.addressBlocklist.Blocked(info.ID) {
		p.log(info.ID, "address blocklist hit")
		return false
	}

	// host resolve + host blocklist
	resolveCtx, cancel := context.WithTimeout(ctx, p.timeouts.HostResolve)
	ips, err := p.hostResolver.Resolve(resolveCtx, info.URL.Hostname())
	cancel()
	if err != nil {
		p.log(info.ID, "host resolution failed: "+err.Error())
		return false
	}
	ipStrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		ipStrs = append(ipStrs, ip.String())
	}
	info.ResolvedIPs = ipStrs
	if p.hostBlocklist.BlockedAny(ips) {
		p.log(info.ID, "host blocklist hit")
		return false
	}

	// version floors
	baseURL := info.URL.String()
	agentVer, nodeVer, err := p.versionResolver.Resolve(ctx, baseURL, p.timeouts.AgentVersion, p.timeouts.NodeVersion)
	if err != nil {
		p.log(info.ID, "version check failed: "+err.Error())
		return false
	}
	info.AgentVersion = agentVer
	info.NodeVersion = nodeVer

	// POI blocklist
	poiCtx, cancel := context.WithTimeout(ctx, p.timeouts.POI)
	err = p.poiResolver.Resolve(poiCtx, baseURL, info)
	cancel()
	if err != nil {
		p.log(info.ID, "poi check failed: "+err.Error())
		return false
	}

	// indexing progress
	progressCtx, cancel := context.WithTimeout(ctx, p.timeouts.Progress)
	err = p.progressResolver.Resolve(progressCtx, baseURL, info)
	cancel()
	if err != nil {
		p.log(info.ID, "progress probe failed: "+err.Error())
		return false
	}

	// cost model, best-effort (never drops the indexer)
	costCtx, cancel := context.WithTimeout(ctx, p.timeouts.CostModel)
	p.costResolver.Resolve(costCtx, baseURL, info)
	cancel()

	return true
}

func (p *Processor) log(addr ids.IndexerAddr, msg string) {
	if p.debug {
		log.Printf("indexerpipeline: dropping indexer %s: %s", addr, msg)
	}
}
