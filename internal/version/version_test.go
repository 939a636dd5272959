package version

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/semiotic-ai/network-topology/internal/probe"
	"github.com/semiotic-ai/network-topology/internal/xerrors"
)

func testClient() *probe.Client {
	return probe.NewClient(probe.Config{MaxIdleConns: 4, IdleTimeout: time.Second, RPS: 1000, Burst: 1000})
}

func versionServer(t *testing.T, agent, node string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/agent-version":
			w.Write([]byte(`{"version":"` + agent + `"}`))
		case "/node-version":
			if node == "" {
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			w.Write([]byte(`{"version":"` + node + `"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
}

func TestResolveSuccess(t *testing.T) {
	srv := versionServer(t, "1.2.0", "1.0.0")
	defer srv.Close()

	r := New(testClient(), "1.0.0", "1.0.0")
	agent, node, err := r.Resolve(context.Background(), srv.URL, time.Second, time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if agent.String() != "1.2.0" || node.String() != "1.0.0" {
		t.Fatalf("unexpected versions: agent=%s node=%s", agent, node)
	}
}

func TestResolveAgentBelowMinimumBlocks(t *testing.T) {
	srv := versionServer(t, "0.1.0", "1.0.0")
	defer srv.Close()

	r := New(testClient(), "1.0.0", "1.0.0")
	_, _, err := r.Resolve(context.Background(), srv.URL, time.Second, time.Second)
	if err == nil {
		t.Fatal("expected block for agent version below minimum")
	}
}

func TestResolveAgentProbeFailureBlocks(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	r := New(testClient(), "1.0.0", "1.0.0")
	_, _, err := r.Resolve(context.Background(), srv.URL, time.Second, time.Second)
	if err == nil {
		t.Fatal("expected block when agent-version probe fails")
	}
}

func TestResolveNodeProbeFailureSoftFailsToMinimum(t *testing.T) {
	srv := versionServer(t, "1.2.0", "")
	defer srv.Close()

	r := New(testClient(), "1.0.0", "2.5.0")
	agent, node, err := r.Resolve(context.Background(), srv.URL, time.Second, time.Second)
	if err != nil {
		t.Fatalf("node probe failure must not block the indexer: %v", err)
	}
	if agent.String() != "1.2.0" {
		t.Fatalf("unexpected agent version: %s", agent)
	}
	if node.String() != "2.5.0" {
		t.Fatalf("expected node version to soft-fail to the configured minimum, got %s", node)
	}
}

func TestResolveNodeBelowMinimumBlocks(t *testing.T) {
	srv := versionServer(t, "1.2.0", "0.1.0")
	defer srv.Close()

	r := New(testClient(), "1.0.0", "1.0.0")
	_, _, err := r.Resolve(context.Background(), srv.URL, time.Second, time.Second)
	if err == nil {
		t.Fatal("expected block for node version below minimum")
	}
	if !xerrors.IsKind(err, xerrors.KindBlocklistHit) {
		t.Fatalf("expected KindBlocklistHit, got %v", err)
	}
}

func TestResolveMalformedFloorDefaultsToZero(t *testing.T) {
	srv := versionServer(t, "0.0.1", "0.0.1")
	defer srv.Close()

	r := New(testClient(), "not-a-version", "not-a-version")
	agent, node, err := r.Resolve(context.Background(), srv.URL, time.Second, time.Second)
	if err != nil {
		t.Fatalf("malformed floor should default to 0.0.0 and accept everything: %v", err)
	}
	if agent.String() != "0.0.1" || node.String() != "0.0.1" {
		t.Fatalf("unexpected versions: agent=%s node=%s", agent, node)
	}
}
