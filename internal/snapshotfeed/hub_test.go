package snapshotfeed

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/semiotic-ai/network-topology/internal/topology"
)

func dialHub(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	return conn
}

func TestBroadcastReachesSubscriber(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	defer conn.Close()

	// The register path runs in the upgrade handler; give it a beat before
	// broadcasting.
	waitForClients(t, hub, 1)

	stats := topology.RefreshStats{
		StartedAt:   time.Now(),
		Duration:    120 * time.Millisecond,
		Subgraphs:   3,
		Deployments: 2,
		Indexers:    5,
	}
	hub.Broadcast("refresh-1", stats)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var evt UpdateEvent
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if evt.RefreshID != "refresh-1" {
		t.Errorf("expected refresh id refresh-1, got %q", evt.RefreshID)
	}
	if evt.Subgraphs != 3 || evt.Deployments != 2 || evt.Indexers != 5 {
		t.Errorf("unexpected counts in event: %+v", evt)
	}
	if evt.DurationMS != 120 {
		t.Errorf("expected 120ms duration, got %d", evt.DurationMS)
	}
}

func TestBroadcastWithNoSubscribersIsHarmless(t *testing.T) {
	hub := NewHub()
	hub.Broadcast("refresh-1", topology.RefreshStats{})
}

func TestDisconnectedSubscriberIsRemoved(t *testing.T) {
	hub := NewHub()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	conn := dialHub(t, srv)
	waitForClients(t, hub, 1)

	conn.Close()
	waitForClients(t, hub, 0)
}

func waitForClients(t *testing.T, hub *Hub, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.RLock()
		n := len(hub.clients)
		hub.mu.RUnlock()
		if n == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d connected clients", want)
}
