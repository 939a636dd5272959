// Package ids defines the value-typed identifiers shared across the
// network-topology resolver: subgraphs, deployments, indexers and
// allocations. Every type here is comparable so it can be used as a map
// key; the four single-value ids are also totally ordered via Less, while
// the composite IndexingId has no ordering method.
package ids

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// SubgraphId is the opaque 32-byte key identifying a subgraph.
type SubgraphId [32]byte

// DeploymentId is the content address (32 bytes) of a deployment manifest.
type DeploymentId [32]byte

// IndexerAddr is the 20-byte on-chain address of an indexer.
type IndexerAddr [20]byte

// AllocationId is the 20-byte address identifying an allocation.
type AllocationId [20]byte

func (id SubgraphId) String() string    { return "0x" + hex.EncodeToString(id[:]) }
func (id DeploymentId) String() string  { return "0x" + hex.EncodeToString(id[:]) }
func (id IndexerAddr) String() string   { return "0x" + hex.EncodeToString(id[:]) }
func (id AllocationId) String() string  { return "0x" + hex.EncodeToString(id[:]) }

// Less gives SubgraphId a total order, used for ordered sequences of
// subgraph ids (e.g. DeploymentView.Subgraphs).
func (id SubgraphId) Less(other SubgraphId) bool {
	return string(id[:]) < string(other[:])
}

func (id DeploymentId) Less(other DeploymentId) bool {
	return string(id[:]) < string(other[:])
}

func (id IndexerAddr) Less(other IndexerAddr) bool {
	return string(id[:]) < string(other[:])
}

func (id AllocationId) Less(other AllocationId) bool {
	return string(id[:]) < string(other[:])
}

func parseHex(s string, out []byte) error {
	s = strings.TrimPrefix(s, "0x")
	s = strings.TrimPrefix(s, "0X")
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid hex id %q: %w", s, err)
	}
	if len(decoded) != len(out) {
		return fmt.Errorf("invalid id %q: expected %d bytes, got %d", s, len(out), len(decoded))
	}
	copy(out, decoded)
	return nil
}

// ParseSubgraphId parses a "0x"-prefixed (or bare) hex string into a SubgraphId.
func ParseSubgraphId(s string) (SubgraphId, error) {
	var id SubgraphId
	err := parseHex(s, id[:])
	return id, err
}

// ParseDeploymentId parses a "0x"-prefixed (or bare) hex string into a DeploymentId.
func ParseDeploymentId(s string) (DeploymentId, error) {
	var id DeploymentId
	err := parseHex(s, id[:])
	return id, err
}

// ParseIndexerAddr parses a "0x"-prefixed (or bare) hex string into an IndexerAddr.
func ParseIndexerAddr(s string) (IndexerAddr, error) {
	var id IndexerAddr
	err := parseHex(s, id[:])
	return id, err
}

// ParseAllocationId parses a "0x"-prefixed (or bare) hex string into an AllocationId.
func ParseAllocationId(s string) (AllocationId, error) {
	var id AllocationId
	err := parseHex(s, id[:])
	return id, err
}

// IndexingId is the composite key (deployment, indexer) identifying one
// unit of queryable capacity.
type IndexingId struct {
	Deployment DeploymentId
	Indexer    IndexerAddr
}

func (id IndexingId) String() string {
	return fmt.Sprintf("%s/%s", id.Deployment, id.Indexer)
}
