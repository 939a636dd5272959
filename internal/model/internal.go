package model

import (
	"math/big"
	"net/url"

	"github.com/Masterminds/semver/v3"

	"github.com/semiotic-ai/network-topology/internal/ids"
)

// DeploymentAllocation is a validated (indexer, allocation) pairing kept on
// a DeploymentInfo after pre-processing.
type DeploymentAllocation struct {
	AllocationID ids.AllocationId
	IndexerAddr  ids.IndexerAddr
}

// DeploymentInfo is the validated, internal representation of a deployment.
type DeploymentInfo struct {
	ID                 ids.DeploymentId
	Allocations        []DeploymentAllocation
	ManifestNetwork    string
	ManifestStartBlock *uint64
	TransferredToL2    bool
}

// SubgraphVersionInfo pairs a version number with its validated deployment.
type SubgraphVersionInfo struct {
	VersionNumber uint32
	Deployment    DeploymentInfo
}

// SubgraphInfo is the validated, internal representation of a subgraph.
type SubgraphInfo struct {
	ID       ids.SubgraphId
	IDOnL2   *ids.SubgraphId
	Versions []SubgraphVersionInfo // non-empty
}

// ProgressInfo is the per-deployment indexing progress reported by the
// progress probe.
type ProgressInfo struct {
	LatestBlock uint64
	MinBlock    *uint64
}

// CompiledCostModel is the result of compiling a cost-model source for one
// deployment. The compiler itself is an external collaborator; this is just
// the artifact it hands back.
type CompiledCostModel struct {
	DeploymentID ids.DeploymentId
	SourceHash   string
	Model        any // opaque handle into the injected Compiler's representation
}

// IndexerInfo is the validated, internal, mutable-during-one-refresh
// representation of an indexer as it moves through the pipeline (address
// blocklist, host resolve, version, POI, progress, cost-model).
type IndexerInfo struct {
	ID                ids.IndexerAddr
	URL               *url.URL
	StakedTokens      *big.Int
	Deployments       map[ids.DeploymentId]struct{}
	LargestAllocation map[ids.DeploymentId]ids.AllocationId
	TotalAllocated    map[ids.DeploymentId]*big.Int

	AgentVersion *semver.Version
	NodeVersion  *semver.Version

	IndexingsProgress  map[ids.DeploymentId]ProgressInfo
	IndexingsCostModel map[ids.DeploymentId]CompiledCostModel

	// ResolvedIPs is populated by the host resolver and kept only for the
	// lifetime of one refresh; it is not part of any published view.
	ResolvedIPs []string
}

// HasDeployment reports whether d is still in the indexer's surviving
// deployment set.
func (i *IndexerInfo) HasDeployment(d ids.DeploymentId) bool {
	_, ok := i.Deployments[d]
	return ok
}

// DropDeployment removes d from the indexer's surviving set along with its
// derived aggregates, used by the POI resolver when a deployment is blocked
// for this indexer specifically.
func (i *IndexerInfo) DropDeployment(d ids.DeploymentId) {
	delete(i.Deployments, d)
	delete(i.LargestAllocation, d)
	delete(i.TotalAllocated, d)
}
