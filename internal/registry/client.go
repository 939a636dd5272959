// Package registry implements the paginated registry client: it fetches
// raw subgraphs and indexers from the network registry and converts their
// wire representation into model.Raw* values. The registry's own query
// language and pagination mechanism are external to this package; it only
// assumes a GraphQL-style endpoint that accepts {first, last} cursor
// variables and returns pages ordered by id ascending.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"

	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/model"
	"github.com/semiotic-ai/network-topology/internal/xerrors"
)

// TokenSource supplies the bearer token attached to every registry request.
// A static token and an OAuth2 client-credentials flow both implement this.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// staticToken is the simplest TokenSource: a fixed bearer token from config.
type staticToken string

func (s staticToken) Token(context.Context) (string, error) { return string(s), nil }

// StaticToken wraps a fixed bearer token as a TokenSource.
func StaticToken(token string) TokenSource { return staticToken(token) }

// Client is the paginated registry client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     TokenSource
	pageSize   int
	l2Enabled  bool
}

// Config configures Client.
type Config struct {
	BaseURL    string
	Tokens     TokenSource
	PageSize   int // default 200
	L2Enabled  bool
	HTTPClient *http.Client // optional; defaults to http.DefaultClient
}

// New builds a registry Client.
func New(cfg Config) *Client {
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 200
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    cfg.BaseURL,
		tokens:     cfg.Tokens,
		pageSize:   pageSize,
		l2Enabled:  cfg.L2Enabled,
	}
}

// FetchSubgraphs pages through every raw subgraph in the registry. An
// empty total result is treated as an error, not an empty network.
func (c *Client) FetchSubgraphs(ctx context.Context) ([]model.RawSubgraph, error) {
	var out []model.RawSubgraph
	last := ""
	for {
		var page subgraphsPage
		vars := map[string]any{
			"first":    c.pageSize,
			"last":     last,
			"l2Fields": c.l2Enabled,
		}
		if err := c.query(ctx, subgraphsQuery, vars, &page); err != nil {
			return nil, err
		}
		for _, w := range page.Subgraphs {
			sg, err := convertSubgraph(w)
			if err != nil {
				log.Printf("registry: dropping malformed subgraph %q during fetch: %v", w.ID, err)
				continue
			}
			out = append(out, sg)
		}
		if len(page.Subgraphs) < c.pageSize {
			break
		}
		last = page.Subgraphs[len(page.Subgraphs)-1].ID
	}
	if len(out) == 0 {
		return nil, xerrors.New(xerrors.KindEmptyRegistryResult, "registry", "fetch_subgraphs returned zero records")
	}
	return out, nil
}

// FetchIndexers pages through every raw indexer in the registry.
func (c *Client) FetchIndexers(ctx context.Context) ([]model.RawIndexer, error) {
	var out []model.RawIndexer
	last := ""
	for {
		var page indexersPage
		vars := map[string]any{"first": c.pageSize, "last": last}
		if err := c.query(ctx, indexersQuery, vars, &page); err != nil {
			return nil, err
		}
		for _, w := range page.Indexers {
			idx, err := convertIndexer(w)
			if err != nil {
				log.Printf("registry: dropping malformed indexer %q during fetch: %v", w.ID, err)
				continue
			}
			out = append(out, idx)
		}
		if len(page.Indexers) < c.pageSize {
			break
		}
		last = page.Indexers[len(page.Indexers)-1].ID
	}
	if len(out) == 0 {
		return nil, xerrors.New(xerrors.KindEmptyRegistryResult, "registry", "fetch_indexers returned zero records")
	}
	return out, nil
}

func (c *Client) query(ctx context.Context, q string, vars map[string]any, out any) error {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return xerrors.Wrap(xerrors.KindRegistry, "registry", "failed to obtain auth token", err)
	}

	body, err := json.Marshal(graphqlRequest{Query: q, Variables: vars})
	if err != nil {
		return xerrors.Wrap(xerrors.KindRegistry, "registry", "failed to encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, strings.NewReader(string(body)))
	if err != nil {
		return xerrors.Wrap(xerrors.KindRegistry, "registry", "failed to build request", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return xerrors.Wrap(xerrors.KindRegistry, "registry", "transport error", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return xerrors.New(xerrors.KindRegistry, "registry", fmt.Sprintf("authentication error (status %d)", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK {
		return xerrors.New(xerrors.KindRegistry, "registry", fmt.Sprintf("unexpected status %d", resp.StatusCode))
	}

	switch v := out.(type) {
	case *subgraphsPage:
		var decoded graphqlResponse[subgraphsPage]
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return xerrors.Wrap(xerrors.KindRegistry, "registry", "failed to parse response", err)
		}
		if len(decoded.Errors) > 0 {
			return xerrors.New(xerrors.KindRegistry, "registry", "registry returned GraphQL errors: "+decoded.Errors[0].Message)
		}
		*v = decoded.Data
	case *indexersPage:
		var decoded graphqlResponse[indexersPage]
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return xerrors.Wrap(xerrors.KindRegistry, "registry", "failed to parse response", err)
		}
		if len(decoded.Errors) > 0 {
			return xerrors.New(xerrors.KindRegistry, "registry", "registry returned GraphQL errors: "+decoded.Errors[0].Message)
		}
		*v = decoded.Data
	default:
		return xerrors.New(xerrors.KindRegistry, "registry", "unsupported response type")
	}
	return nil
}

func convertIndexer(w wireIndexer) (model.RawIndexer, error) {
	addr, err := ids.ParseIndexerAddr(w.ID)
	if err != nil {
		return model.RawIndexer{}, err
	}
	tokens, ok := new(big.Int).SetString(w.StakedTokens, 10)
	if !ok {
		tokens = big.NewInt(0)
	}
	return model.RawIndexer{ID: addr, URL: w.URL, StakedTokens: tokens}, nil
}

func convertAllocation(w wireAllocation) (model.RawAllocation, error) {
	allocID, err := ids.ParseAllocationId(w.ID)
	if err != nil {
		return model.RawAllocation{}, err
	}
	indexer, err := convertIndexer(w.Indexer)
	if err != nil {
		return model.RawAllocation{}, err
	}
	tokens, ok := new(big.Int).SetString(w.AllocatedTokens, 10)
	if !ok {
		tokens = big.NewInt(0)
	}
	return model.RawAllocation{ID: allocID, Indexer: indexer, AllocatedTokens: tokens}, nil
}

func convertDeployment(w wireDeployment) (model.RawDeployment, error) {
	depID, err := ids.ParseDeploymentId(w.ID)
	if err != nil {
		return model.RawDeployment{}, err
	}
	allocs := make([]model.RawAllocation, 0, len(w.Allocations))
	for _, wa := range w.Allocations {
		a, err := convertAllocation(wa)
		if err != nil {
			log.Printf("registry: dropping malformed allocation %q on deployment %s: %v", wa.ID, w.ID, err)
			continue
		}
		allocs = append(allocs, a)
	}
	return model.RawDeployment{
		ID:                 depID,
		Allocations:        allocs,
		ManifestNetwork:    w.ManifestNetwork,
		ManifestStartBlock: w.ManifestStartBlock,
		TransferredToL2:    w.TransferredToL2,
	}, nil
}

func convertSubgraph(w wireSubgraph) (model.RawSubgraph, error) {
	sgID, err := ids.ParseSubgraphId(w.ID)
	if err != nil {
		return model.RawSubgraph{}, err
	}
	var l2ID *ids.SubgraphId
	if w.IDOnL2 != nil && *w.IDOnL2 != "" {
		parsed, err := ids.ParseSubgraphId(*w.IDOnL2)
		if err == nil {
			l2ID = &parsed
		}
	}
	versions := make([]model.RawVersion, 0, len(w.Versions))
	for _, wv := range w.Versions {
		dep, err := convertDeployment(wv.Deployment)
		if err != nil {
			log.Printf("registry: dropping malformed version %d on subgraph %s: %v", wv.VersionNumber, w.ID, err)
			continue
		}
		versions = append(versions, model.RawVersion{VersionNumber: wv.VersionNumber, Deployment: dep})
	}
	return model.RawSubgraph{ID: sgID, IDOnL2: l2ID, Versions: versions}, nil
}
