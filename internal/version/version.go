// Package version probes an indexer's agent and node versions and enforces
// configured minima. Apart from the cost-model probe, which is best-effort
// throughout, the node-version probe is the only probe in the pipeline
// permitted to soft-fail.
package version

import (
	"context"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/semiotic-ai/network-topology/internal/probe"
	"github.com/semiotic-ai/network-topology/internal/xerrors"
)

type versionResponse struct {
	Version string `json:"version"`
}

// Resolver probes agent-version and node-version and enforces the
// configured floors.
type Resolver struct {
	client   *probe.Client
	minAgent *semver.Version
	minNode  *semver.Version
}

// New builds a version Resolver. minAgent/minNode are parsed once at
// startup; a malformed floor is treated as "0.0.0" (accept everything)
// rather than panicking the refresh loop.
func New(client *probe.Client, minAgentVersion, minNodeVersion string) *Resolver {
	minAgent, err := semver.NewVersion(minAgentVersion)
	if err != nil {
		minAgent = semver.MustParse("0.0.0")
	}
	minNode, err := semver.NewVersion(minNodeVersion)
	if err != nil {
		minNode = semver.MustParse("0.0.0")
	}
	return &Resolver{client: client, minAgent: minAgent, minNode: minNode}
}

// Resolve probes both endpoints with independent timeouts — these are
// never batched into one combined call. It returns the parsed agent/node
// versions on success, or a blocking error.
// A node-probe failure is not an error: it resolves to minNode.
func (r *Resolver) Resolve(ctx context.Context, baseURL string, agentTimeout, nodeTimeout time.Duration) (agent, node *semver.Version, err error) {
	agentCtx, cancel := context.WithTimeout(ctx, agentTimeout)
	defer cancel()
	var agentResp versionResponse
	if err := r.client.PostJSON(agentCtx, "version", baseURL, "/agent-version", nil, &agentResp); err != nil {
		return nil, nil, xerrors.Wrap(xerrors.KindBlocklistHit, "version", "agent-version probe failed", err)
	}
	agentVer, err := semver.NewVersion(agentResp.Version)
	if err != nil {
		return nil, nil, xerrors.Wrap(xerrors.KindProbeParse, "version", "agent-version did not parse as semver", err)
	}
	if agentVer.LessThan(r.minAgent) {
		return nil, nil, xerrors.New(xerrors.KindBlocklistHit, "version", "agent version below minimum")
	}

	nodeCtx, cancel2 := context.WithTimeout(ctx, nodeTimeout)
	defer cancel2()
	var nodeResp versionResponse
	nodeVer := r.minNode
	if err := r.client.PostJSON(nodeCtx, "version", baseURL, "/node-version", nil, &nodeResp); err != nil {
		// Soft-fail: accept at the configured minimum. This asymmetry with
		// the agent-version probe is intentional, not a bug.
		return agentVer, r.minNode, nil
	}
	parsed, err := semver.NewVersion(nodeResp.Version)
	if err == nil {
		nodeVer = parsed
	}
	if nodeVer.LessThan(r.minNode) {
		return nil, nil, xerrors.New(xerrors.KindBlocklistHit, "version", "node version below minimum")
	}

	return agentVer, nodeVer, nil
}
