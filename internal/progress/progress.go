// Package progress implements the batched indexing-status probe. A probe
// failure blocks the indexer; a deployment simply absent from the response
// is not an error.
package progress

import (
	"context"

	"github.com/semiotic-ai/network-topology/internal/model"
	"github.com/semiotic-ai/network-topology/internal/probe"
	"github.com/semiotic-ai/network-topology/internal/xerrors"
)

type probeRequest struct {
	Deployments []string `json:"deployments"`
}

type progressEntry struct {
	LatestBlock uint64  `json:"latestBlock"`
	MinBlock    *uint64 `json:"minBlock,omitempty"`
}

type probeResponse struct {
	// Progress is keyed by deployment hex id; missing keys mean "no data",
	// never an error.
	Progress map[string]progressEntry `json:"progress"`
}

// Resolver probes indexing-status for a set of deployments in one request.
type Resolver struct {
	client *probe.Client
}

// New builds a Resolver.
func New(client *probe.Client) *Resolver {
	return &Resolver{client: client}
}

// Resolve probes baseURL for the progress of every deployment in
// info.Deployments and populates info.IndexingsProgress. A transport,
// timeout, or parse failure blocks the indexer.
func (r *Resolver) Resolve(ctx context.Context, baseURL string, info *model.IndexerInfo) error {
	if len(info.Deployments) == 0 {
		return nil
	}

	req := probeRequest{Deployments: make([]string, 0, len(info.Deployments))}
	for dep := range info.Deployments {
		req.Deployments = append(req.Deployments, dep.String())
	}

	var resp probeResponse
	if err := r.client.PostJSON(ctx, "progress", baseURL, "/indexing-status", req, &resp); err != nil {
		return xerrors.Wrap(xerrors.KindProbeTransport, "progress", "progress probe failed", err)
	}

	for dep := range info.Deployments {
		entry, ok := resp.Progress[dep.String()]
		if !ok {
			continue
		}
		info.IndexingsProgress[dep] = model.ProgressInfo{
			LatestBlock: entry.LatestBlock,
			MinBlock:    entry.MinBlock,
		}
	}
	return nil
}
