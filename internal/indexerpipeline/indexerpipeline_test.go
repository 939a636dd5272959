package indexerpipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/semiotic-ai/network-topology/internal/blocklist"
	"github.com/semiotic-ai/network-topology/internal/costmodel"
	"github.com/semiotic-ai/network-topology/internal/hostresolve"
	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/model"
	"github.com/semiotic-ai/network-topology/internal/poi"
	"github.com/semiotic-ai/network-topology/internal/probe"
	"github.com/semiotic-ai/network-topology/internal/progress"
	"github.com/semiotic-ai/network-topology/internal/version"
)

func addr(b byte) ids.IndexerAddr {
	var a ids.IndexerAddr
	a[19] = b
	return a
}

func dep(b byte) ids.DeploymentId {
	var d ids.DeploymentId
	d[31] = b
	return d
}

func happyIndexerServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/agent-version":
			w.Write([]byte(`{"version":"1.0.0"}`))
		case "/node-version":
			w.Write([]byte(`{"version":"1.0.0"}`))
		case "/public-poi":
			w.Write([]byte(`{"pois":{}}`))
		case "/indexing-status":
			w.Write([]byte(`{"progress":{}}`))
		case "/cost-models":
			w.Write([]byte(`{"sources":{}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func defaultTimeouts() Timeouts {
	return Timeouts{
		AgentVersion: time.Second,
		NodeVersion:  time.Second,
		HostResolve:  time.Second,
		POI:          time.Second,
		Progress:     time.Second,
		CostModel:    time.Second,
	}
}

func newProcessor(t *testing.T, addressBL *blocklist.AddressSet, hostBL *blocklist.HostSet) *Processor {
	t.Helper()
	client := probe.NewClient(probe.Config{MaxIdleConns: 4, IdleTimeout: time.Second, RPS: 1000, Burst: 1000})
	return New(Config{
		AddressBlocklist: addressBL,
		HostBlocklist:    hostBL,
		HostResolver:     hostresolve.New(time.Second),
		VersionResolver:  version.New(client, "0.0.0", "0.0.0"),
		POIResolver:      poi.New(client, nil),
		ProgressResolver: progress.New(client),
		CostResolver:     costmodel.New(client, costmodel.SourceHashCompiler{}),
		Timeouts:         defaultTimeouts(),
		Debug:            false,
	})
}

func indexerAt(t *testing.T, id ids.IndexerAddr, srv *httptest.Server, deps ...ids.DeploymentId) *model.IndexerInfo {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	info := &model.IndexerInfo{
		ID:                 id,
		URL:                u,
		Deployments:        make(map[ids.DeploymentId]struct{}),
		LargestAllocation:  make(map[ids.DeploymentId]ids.AllocationId),
		IndexingsProgress:  make(map[ids.DeploymentId]model.ProgressInfo),
		IndexingsCostModel: make(map[ids.DeploymentId]model.CompiledCostModel),
	}
	for _, d := range deps {
		info.Deployments[d] = struct{}{}
	}
	return info
}

func TestRunSurvivesHappyPath(t *testing.T) {
	srv := happyIndexerServer(t)
	defer srv.Close()

	p := newProcessor(t, nil, nil)
	raw := map[ids.IndexerAddr]*model.IndexerInfo{
		addr(1): indexerAt(t, addr(1), srv, dep(1)),
	}
	survivors, err := p.Run(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(survivors) != 1 {
		t.Fatalf("expected 1 survivor, got %d", len(survivors))
	}
	got := survivors[addr(1)]
	if got.AgentVersion == nil || got.AgentVersion.String() != "1.0.0" {
		t.Errorf("expected agent version populated, got %v", got.AgentVersion)
	}
}

func TestRunDropsAddressBlocklisted(t *testing.T) {
	srv := happyIndexerServer(t)
	defer srv.Close()

	addressBL := blocklist.NewAddressSet([]ids.IndexerAddr{addr(1)})
	p := newProcessor(t, addressBL, nil)
	raw := map[ids.IndexerAddr]*model.IndexerInfo{
		addr(1): indexerAt(t, addr(1), srv, dep(1)),
		addr(2): indexerAt(t, addr(2), srv, dep(1)),
	}
	survivors, err := p.Run(context.Background(), raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := survivors[addr(1)]; ok {
		t.Error("expected address-blocklisted indexer to be dropped")
	}
	if _, ok := survivors[addr(2)]; !ok {
		t.Error("expected non-blocklisted indexer to survive")
	}
}

func TestRunNoSurvivorsIsError(t *testing.T) {
	srv := happyIndexerServer(t)
	defer srv.Close()

	addressBL := blocklist.NewAddressSet([]ids.IndexerAddr{addr(1)})
	p := newProcessor(t, addressBL, nil)
	raw := map[ids.IndexerAddr]*model.IndexerInfo{
		addr(1): indexerAt(t, addr(1), srv, dep(1)),
	}
	_, err := p.Run(context.Background(), raw)
	if err == nil {
		t.Fatal("expected NoSurvivors error when every indexer is dropped")
	}
}

func TestRunVersionFloorBlocks(t *testing.T) {
	srv := happyIndexerServer(t)
	defer srv.Close()

	client := probe.NewClient(probe.Config{MaxIdleConns: 4, IdleTimeout: time.Second, RPS: 1000, Burst: 1000})
	p := New(Config{
		HostResolver:     hostresolve.New(time.Second),
		VersionResolver:  version.New(client, "999.0.0", "0.0.0"),
		POIResolver:      poi.New(client, nil),
		ProgressResolver: progress.New(client),
		CostResolver:     costmodel.New(client, costmodel.SourceHashCompiler{}),
		Timeouts:         defaultTimeouts(),
	})
	raw := map[ids.IndexerAddr]*model.IndexerInfo{
		addr(1): indexerAt(t, addr(1), srv, dep(1)),
	}
	_, err := p.Run(context.Background(), raw)
	if err == nil {
		t.Fatal("expected NoSurvivors when the agent version floor is unmet")
	}
}
