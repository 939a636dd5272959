// Package topology implements the ticker-driven refresh loop that drives
// registry fetch -> preprocessing -> the indexer pipeline -> snapshot
// building, and publishes the resulting Snapshot atomically. The first
// refresh must complete before New returns, so consumers never observe an
// empty snapshot.
package topology

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Masterminds/semver/v3"
	"golang.org/x/sync/errgroup"

	"github.com/semiotic-ai/network-topology/internal/blocklist"
	"github.com/semiotic-ai/network-topology/internal/costmodel"
	"github.com/semiotic-ai/network-topology/internal/hostresolve"
	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/indexerpipeline"
	"github.com/semiotic-ai/network-topology/internal/model"
	"github.com/semiotic-ai/network-topology/internal/poi"
	"github.com/semiotic-ai/network-topology/internal/preprocess"
	"github.com/semiotic-ai/network-topology/internal/probe"
	"github.com/semiotic-ai/network-topology/internal/progress"
	"github.com/semiotic-ai/network-topology/internal/snapshot"
	"github.com/semiotic-ai/network-topology/internal/version"
	"github.com/semiotic-ai/network-topology/internal/xerrors"
)

// RegistryClient is the narrow interface the refresh loop consumes from the
// registry client. internal/registry.Client implements it.
type RegistryClient interface {
	FetchSubgraphs(ctx context.Context) ([]model.RawSubgraph, error)
	FetchIndexers(ctx context.Context) ([]model.RawIndexer, error)
}

// BlocklistSource supplies the three blocklists at the start of each tick,
// so an operator-managed store (internal/blockliststore) can refresh them
// without the refresh loop knowing anything about persistence. A nil
// source falls back to whatever was passed into Config at construction.
type BlocklistSource interface {
	AddressBlocklist(ctx context.Context) ([]ids.IndexerAddr, error)
	HostBlocklistCIDRs(ctx context.Context) ([]string, error)
	POIEntries(ctx context.Context) ([]poi.Entry, error)
}

// RefreshStats carries first-class refresh metadata, used for logging and
// handed to the OnPublish and OnFailure hooks (snapshotfeed and opsalert
// consume it there). adminapi does not read it.
type RefreshStats struct {
	StartedAt    time.Time
	Duration     time.Duration
	Subgraphs    int
	Deployments  int
	Indexers     int
	Err          error
}

// PublishHook is invoked after every successful publish. Subscriber
// failures never affect the refresh itself — a failure never tears down
// the loop.
type PublishHook func(snap *snapshot.Snapshot, stats RefreshStats)

// FailureHook is invoked after a fatal refresh error, with the previous
// snapshot retained.
type FailureHook func(err error, stats RefreshStats)

// Config configures the Refresher.
type Config struct {
	Registry         RegistryClient
	ProbeClient      *probe.Client
	Compiler         costmodel.Compiler
	BlocklistSource  BlocklistSource // optional
	AddressBlocklist *blocklist.AddressSet
	HostBlocklist    *blocklist.HostSet
	POIBlocklist     *poi.Blocklist

	RefreshInterval time.Duration
	FetchTimeout    time.Duration // per side: subgraphs, indexers

	MinAgentVersion string
	MinNodeVersion  string

	Timeouts indexerpipeline.Timeouts

	Debug bool

	OnPublish PublishHook
	OnFailure FailureHook
}

// Refresher owns the only process-wide mutable cell (the published
// snapshot pointer) and refreshes it on a ticker.
type Refresher struct {
	cfg Config

	current atomic.Pointer[snapshot.Snapshot]

	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

// New builds a Refresher and blocks until its first refresh completes
// successfully, so a caller never observes a Refresher with no published
// snapshot.
func New(ctx context.Context, cfg Config) (*Refresher, error) {
	if cfg.RefreshInterval <= 0 {
		cfg.RefreshInterval = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 15 * time.Second
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Refresher{
		cfg:    cfg,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if err := r.tick(runCtx); err != nil {
		cancel()
		return nil, err
	}

	go r.loop(runCtx)
	return r, nil
}

// Current returns the most recently published snapshot. It never blocks
// and is never nil once New has returned successfully.
func (r *Refresher) Current() *snapshot.Snapshot {
	return r.current.Load()
}

// Stop cancels the refresh loop and waits for it to exit. Any in-flight
// refresh's outstanding probes are dropped, and its partially-processed
// indexer records are discarded.
func (r *Refresher) Stop() {
	r.stopOnce.Do(func() {
		r.cancel()
		<-r.done
	})
}

// Refresh runs one refresh cycle out of band (used by adminapi's operator
// POST /refresh endpoint), in addition to the regular ticker.
func (r *Refresher) Refresh(ctx context.Context) error {
	return r.tick(ctx)
}

func (r *Refresher) loop(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// A failure never tears down the loop; the next tick retries
			// unconditionally. tick() itself already logs and invokes
			// OnFailure.
			_ = r.tick(ctx)
		}
	}
}

// tick runs one full refresh: fetch -> preprocess -> pipeline -> build ->
// publish. On any fatal error the previous snapshot is retained untouched.
func (r *Refresher) tick(ctx context.Context) error {
	stats := RefreshStats{StartedAt: time.Now()}
	deadline := 2 * r.cfg.FetchTimeout
	refreshCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	addressBlocklist, hostBlocklist, poiBlocklist, err := r.loadBlocklists(refreshCtx)
	if err != nil {
		return r.fail(err, stats)
	}

	var (
		rawSubgraphs []model.RawSubgraph
		rawIndexers  []model.RawIndexer
	)
	g, gctx := errgroup.WithContext(refreshCtx)
	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(gctx, r.cfg.FetchTimeout)
		defer cancel()
		subs, err := r.cfg.Registry.FetchSubgraphs(fetchCtx)
		if err != nil {
			return err
		}
		rawSubgraphs = subs
		return nil
	})
	g.Go(func() error {
		fetchCtx, cancel := context.WithTimeout(gctx, r.cfg.FetchTimeout)
		defer cancel()
		idxs, err := r.cfg.Registry.FetchIndexers(fetchCtx)
		if err != nil {
			return err
		}
		rawIndexers = idxs
		return nil
	})
	if err := g.Wait(); err != nil {
		return r.fail(err, stats)
	}

	subgraphs, err := preprocess.ProcessRawSubgraphs(rawSubgraphs, r.cfg.Debug)
	if err != nil {
		return r.fail(err, stats)
	}

	allocationsByIndexer := preprocess.AllocationsByIndexer(rawSubgraphs)
	internalIndexers := preprocess.ProcessRawIndexers(rawIndexers, allocationsByIndexer, r.cfg.Debug)

	hostResolver := hostresolve.New(r.cfg.Timeouts.HostResolve)
	versionResolver := version.New(r.cfg.ProbeClient, r.cfg.MinAgentVersion, r.cfg.MinNodeVersion)
	poiResolver := poi.New(r.cfg.ProbeClient, poiBlocklist)
	progressResolver := progress.New(r.cfg.ProbeClient)
	costResolver := costmodel.New(r.cfg.ProbeClient, r.cfg.Compiler)

	proc := indexerpipeline.New(indexerpipeline.Config{
		AddressBlocklist: addressBlocklist,
		HostBlocklist:    hostBlocklist,
		HostResolver:     hostResolver,
		VersionResolver:  versionResolver,
		POIResolver:      poiResolver,
		ProgressResolver: progressResolver,
		CostResolver:     costResolver,
		Timeouts:         r.cfg.Timeouts,
		Debug:            r.cfg.Debug,
	})

	survivingIndexers, err := proc.Run(refreshCtx, internalIndexers)
	if err != nil {
		return r.fail(err, stats)
	}

	snap := snapshot.Build(survivingIndexers, subgraphs)

	stats.Duration = time.Since(stats.StartedAt)
	stats.Subgraphs = len(snap.Subgraphs)
	stats.Deployments = len(snap.Deployments)
	stats.Indexers = len(snap.Indexers)

	r.current.Store(snap)

	if r.cfg.OnPublish != nil {
		r.cfg.OnPublish(snap, stats)
	}
	log.Printf("topology: refresh published in %s: %d subgraphs, %d deployments, %d indexers",
		stats.Duration, stats.Subgraphs, stats.Deployments, stats.Indexers)
	return nil
}

func (r *Refresher) fail(err error, stats RefreshStats) error {
	stats.Duration = time.Since(stats.StartedAt)
	stats.Err = err
	log.Printf("topology: refresh failed after %s, retaining previous snapshot: %v", stats.Duration, err)
	if r.cfg.OnFailure != nil {
		r.cfg.OnFailure(err, stats)
	}
	return err
}

// loadBlocklists reloads the three blocklists from the configured
// BlocklistSource, falling back to the static config-supplied ones when no
// source is configured or the reload itself fails (the static blocklists
// are never nil'd out by a transient store error).
func (r *Refresher) loadBlocklists(ctx context.Context) (*blocklist.AddressSet, *blocklist.HostSet, *poi.Blocklist, error) {
	addressBlocklist := r.cfg.AddressBlocklist
	hostBlocklist := r.cfg.HostBlocklist
	poiBlocklist := r.cfg.POIBlocklist

	if r.cfg.BlocklistSource == nil {
		return addressBlocklist, hostBlocklist, poiBlocklist, nil
	}

	addrs, err := r.cfg.BlocklistSource.AddressBlocklist(ctx)
	if err != nil {
		log.Printf("topology: failed to load address blocklist from store, using the static config blocklist: %v", err)
	} else {
		addressBlocklist = blocklist.NewAddressSet(addrs)
	}

	cidrs, err := r.cfg.BlocklistSource.HostBlocklistCIDRs(ctx)
	if err != nil {
		log.Printf("topology: failed to load host blocklist from store, using the static config blocklist: %v", err)
	} else {
		hostBlocklist = blocklist.NewHostSet(cidrs)
	}

	entries, err := r.cfg.BlocklistSource.POIEntries(ctx)
	if err != nil {
		log.Printf("topology: failed to load poi blocklist from store, using the static config blocklist: %v", err)
	} else {
		poiBlocklist = poi.NewBlocklist(entries)
	}

	return addressBlocklist, hostBlocklist, poiBlocklist, nil
}

// ParseVersionFloor is a small helper exposed for callers that want to
// parse or report the configured floors without reaching into
// internal/version directly. No package in this module calls it.
func ParseVersionFloor(v string) (*semver.Version, error) {
	return semver.NewVersion(v)
}

// IsFatal re-exports xerrors.IsFatal for callers that only import topology.
func IsFatal(err error) bool { return xerrors.IsFatal(err) }
