package hostresolve

import (
	"context"
	"testing"
	"time"
)

func TestResolveLocalhost(t *testing.T) {
	r := New(2 * time.Second)
	ips, err := r.Resolve(context.Background(), "localhost")
	if err != nil {
		t.Fatalf("unexpected error resolving localhost: %v", err)
	}
	if len(ips) == 0 {
		t.Fatal("expected at least one IP for localhost")
	}
}

func TestResolveCachesResult(t *testing.T) {
	r := New(2 * time.Second)
	first, err := r.Resolve(context.Background(), "localhost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := r.Resolve(context.Background(), "localhost")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(first) != len(second) {
		t.Errorf("expected cached result to match first resolution")
	}
}

func TestResolveUnknownHostFails(t *testing.T) {
	r := New(500 * time.Millisecond)
	_, err := r.Resolve(context.Background(), "this-host-does-not-exist.invalid")
	if err == nil {
		t.Fatal("expected error resolving a nonexistent host")
	}
}
