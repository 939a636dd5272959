// Package model defines the raw (registry), internal (validated) and their
// shared value types used by the pre-processor and the per-indexer
// pipeline. Snapshot-level (published) types live in internal/snapshot.
package model

import (
	"math/big"

	"github.com/semiotic-ai/network-topology/internal/ids"
)

// RawIndexer is one indexer record as returned by the registry.
type RawIndexer struct {
	ID           ids.IndexerAddr
	URL          string // empty means "not set"
	StakedTokens *big.Int
}

// RawAllocation associates an indexer with a deployment at a stake weight.
type RawAllocation struct {
	ID              ids.AllocationId
	Indexer         RawIndexer
	AllocatedTokens *big.Int
}

// RawDeployment is a content-addressed indexed instance as returned by the
// registry, nested under a RawVersion.
type RawDeployment struct {
	ID                  ids.DeploymentId
	Allocations         []RawAllocation
	ManifestNetwork     string // optional, empty if unset
	ManifestStartBlock  *uint64
	TransferredToL2     bool
}

// RawVersion pairs a subgraph version number with its deployment.
type RawVersion struct {
	VersionNumber uint32
	Deployment    RawDeployment
}

// RawSubgraph is one subgraph record as returned by the registry.
type RawSubgraph struct {
	ID       ids.SubgraphId
	IDOnL2   *ids.SubgraphId
	Versions []RawVersion // must be non-empty once validated
}
