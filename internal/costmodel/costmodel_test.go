package costmodel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/model"
	"github.com/semiotic-ai/network-topology/internal/probe"
)

func testClient() *probe.Client {
	return probe.NewClient(probe.Config{MaxIdleConns: 4, IdleTimeout: time.Second, RPS: 1000, Burst: 1000})
}

func dep(b byte) ids.DeploymentId {
	var d ids.DeploymentId
	d[31] = b
	return d
}

func newInfo(deps ...ids.DeploymentId) *model.IndexerInfo {
	info := &model.IndexerInfo{
		ID:                 ids.IndexerAddr{1},
		Deployments:        make(map[ids.DeploymentId]struct{}),
		IndexingsCostModel: make(map[ids.DeploymentId]model.CompiledCostModel),
	}
	for _, d := range deps {
		info.Deployments[d] = struct{}{}
	}
	return info
}

func TestResolveCompilesSources(t *testing.T) {
	d1 := dep(1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sources":{"` + d1.String() + `":"default => v => 1;"}}`))
	}))
	defer srv.Close()

	info := newInfo(d1)
	r := New(testClient(), SourceHashCompiler{})
	r.Resolve(context.Background(), srv.URL, info)

	cm, ok := info.IndexingsCostModel[d1]
	if !ok {
		t.Fatal("expected compiled cost model for d1")
	}
	if cm.Model == nil || cm.SourceHash == "" {
		t.Errorf("expected populated compiled model, got %+v", cm)
	}
}

func TestResolveFetchFailureIsTolerated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	info := newInfo(dep(1))
	r := New(testClient(), SourceHashCompiler{})
	r.Resolve(context.Background(), srv.URL, info)

	if len(info.IndexingsCostModel) != 0 {
		t.Fatalf("expected no cost models on fetch failure, got %d", len(info.IndexingsCostModel))
	}
}

type failingCompiler struct{}

func (failingCompiler) Compile(string, string) (any, error) {
	return nil, errors.New("compile error")
}

func TestResolveCompileFailureAndEmptySourceAddNoEntry(t *testing.T) {
	d1, d2 := dep(1), dep(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"sources":{"` + d1.String() + `":"bad","` + d2.String() + `":""}}`))
	}))
	defer srv.Close()

	info := newInfo(d1, d2)
	r := New(testClient(), failingCompiler{})
	r.Resolve(context.Background(), srv.URL, info)

	if len(info.IndexingsCostModel) != 0 {
		t.Fatalf("expected no entries after compile failure and empty source, got %d", len(info.IndexingsCostModel))
	}
}

func TestResolveNoDeploymentsSkipsProbe(t *testing.T) {
	info := newInfo()
	r := New(testClient(), SourceHashCompiler{})
	r.Resolve(context.Background(), "http://unreachable.invalid", info)
	if len(info.IndexingsCostModel) != 0 {
		t.Fatal("expected no cost models when indexer has no deployments")
	}
}
