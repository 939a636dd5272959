package progress

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/model"
	"github.com/semiotic-ai/network-topology/internal/probe"
	"github.com/semiotic-ai/network-topology/internal/xerrors"
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
		Deployments:       make(map[ids.DeploymentId]struct{}),
		IndexingsProgress: make(map[ids.DeploymentId]model.ProgressInfo),
	}
	for _, d := range deps {
		info.Deployments[d] = struct{}{}
	}
	return info
}

func TestResolvePopulatesKnownDeployments(t *testing.T) {
	d1, d2 := dep(1), dep(2)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"progress":{"` + d1.String() + `":{"latestBlock":100,"minBlock":1}}}`))
	}))
	defer srv.Close()

	info := newInfo(d1, d2)
	r := New(testClient())
	if err := r.Resolve(context.Background(), srv.URL, info); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, ok := info.IndexingsProgress[d1]
	if !ok || got.LatestBlock != 100 {
		t.Fatalf("expected progress for d1, got %+v ok=%v", got, ok)
	}
	if _, ok := info.IndexingsProgress[d2]; ok {
		t.Fatal("d2 absent from response must not produce an entry")
	}
}

func TestResolveProbeFailureBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	info := newInfo(dep(1))
	r := New(testClient())
	err := r.Resolve(context.Background(), srv.URL, info)
	if err == nil {
		t.Fatal("expected block on progress probe failure")
	}
	if !xerrors.IsKind(err, xerrors.KindProbeTransport) {
		t.Fatalf("expected KindProbeTransport, got %v", err)
	}
}

func TestResolveNoDeploymentsSkipsProbe(t *testing.T) {
	info := newInfo()
	r := New(testClient())
	if err := r.Resolve(context.Background(), "http://unreachable.invalid", info); err != nil {
		t.Fatalf("expected no probe for zero deployments: %v", err)
	}
}
