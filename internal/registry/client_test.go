package registry

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func fixedSubgraphHandler(t *testing.T, pages [][]wireSubgraph) http.HandlerFunc {
	call := 0
	return func(w http.ResponseWriter, r *http.Request) {
		var req graphqlRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if call >= len(pages) {
			t.Fatalf("unexpected extra page request %d", call)
		}
		page := pages[call]
		call++
		resp := graphqlResponse[subgraphsPage]{Data: subgraphsPage{Subgraphs: page}}
		json.NewEncoder(w).Encode(resp)
	}
}

func TestFetchSubgraphsPaginatesUntilShortPage(t *testing.T) {
	full := make([]wireSubgraph, 2)
	for i := range full {
		full[i] = wireSubgraph{
			ID: idHex(byte(i + 1)),
			Versions: []wireVersion{{
				VersionNumber: 1,
				Deployment:    wireDeployment{ID: idHex(byte(i + 1))},
			}},
		}
	}
	short := []wireSubgraph{{
		ID:       idHex(9),
		Versions: []wireVersion{{VersionNumber: 1, Deployment: wireDeployment{ID: idHex(9)}}},
	}}

	srv := httptest.NewServer(fixedSubgraphHandler(t, [][]wireSubgraph{full, short}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Tokens: StaticToken("t"), PageSize: 2})
	got, err := c.FetchSubgraphs(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 subgraphs across pages, got %d", len(got))
	}
}

func TestFetchSubgraphsEmptyIsError(t *testing.T) {
	srv := httptest.NewServer(fixedSubgraphHandler(t, [][]wireSubgraph{{}}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Tokens: StaticToken("t"), PageSize: 200})
	_, err := c.FetchSubgraphs(context.Background())
	if err == nil {
		t.Fatal("expected error for empty registry result")
	}
}

func TestFetchSubgraphsUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(Config{BaseURL: srv.URL, Tokens: StaticToken("t")})
	_, err := c.FetchSubgraphs(context.Background())
	if err == nil {
		t.Fatal("expected registry auth error")
	}
}

func idHex(last byte) string {
	b := make([]byte, 32)
	b[31] = last
	hexStr := "0x"
	for _, v := range b {
		hexStr += byteToHex(v)
	}
	return hexStr
}

func byteToHex(b byte) string {
	const digits = "0123456789abcdef"
	return string([]byte{digits[b>>4], digits[b&0x0f]})
}
