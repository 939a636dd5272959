package preprocess

import (
	"math/big"
	"testing"

	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/model"
)

func addr(b byte) ids.IndexerAddr {
	var a ids.IndexerAddr
	a[19] = b
	return a
}

func dep(b byte) ids.DeploymentId {
	var d ids.DeploymentId
	d[31] = b
	return d
}

func alloc(b byte) ids.AllocationId {
	var a ids.AllocationId
	a[19] = b
	return a
}

func TestProcessRawIndexersDropsInvalidURL(t *testing.T) {
	raw := []model.RawIndexer{
		{ID: addr(1), URL: "", StakedTokens: big.NewInt(1)},
		{ID: addr(2), URL: "ftp://x.example.com", StakedTokens: big.NewInt(1)},
		{ID: addr(3), URL: "https://good.example.com", StakedTokens: big.NewInt(1)},
	}
	byIndexer := map[ids.IndexerAddr][]indexerAllocation{
		addr(3): {{Deployment: dep(1), Allocation: model.RawAllocation{ID: alloc(1), AllocatedTokens: big.NewInt(10)}}},
	}
	out := ProcessRawIndexers(raw, byIndexer, false)
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving indexer, got %d", len(out))
	}
	if _, ok := out[addr(3)]; !ok {
		t.Fatal("expected indexer 3 to survive")
	}
}

func TestProcessRawIndexersDropsNoAllocations(t *testing.T) {
	raw := []model.RawIndexer{{ID: addr(1), URL: "https://x.example.com", StakedTokens: big.NewInt(1)}}
	out := ProcessRawIndexers(raw, map[ids.IndexerAddr][]indexerAllocation{}, false)
	if len(out) != 0 {
		t.Fatalf("expected 0 survivors, got %d", len(out))
	}
}

func TestLargestAllocationSortsByTokensDescendingThenID(t *testing.T) {
	allocs := []model.RawAllocation{
		{ID: alloc(2), AllocatedTokens: big.NewInt(100)},
		{ID: alloc(1), AllocatedTokens: big.NewInt(100)},
		{ID: alloc(3), AllocatedTokens: big.NewInt(50)},
	}
	winner, total := largestAllocation(allocs)
	if winner != alloc(1) {
		t.Errorf("expected tie broken toward lower id alloc(1), got %v", winner)
	}
	if total.Cmp(big.NewInt(250)) != 0 {
		t.Errorf("expected total 250, got %s", total.String())
	}
}

func TestProcessRawIndexersComputesLargestAndTotal(t *testing.T) {
	raw := []model.RawIndexer{{ID: addr(1), URL: "https://x.example.com", StakedTokens: big.NewInt(1)}}
	byIndexer := map[ids.IndexerAddr][]indexerAllocation{
		addr(1): {
			{Deployment: dep(1), Allocation: model.RawAllocation{ID: alloc(1), AllocatedTokens: big.NewInt(5)}},
			{Deployment: dep(1), Allocation: model.RawAllocation{ID: alloc(2), AllocatedTokens: big.NewInt(15)}},
			{Deployment: dep(2), Allocation: model.RawAllocation{ID: alloc(3), AllocatedTokens: big.NewInt(7)}},
		},
	}
	out := ProcessRawIndexers(raw, byIndexer, false)
	info := out[addr(1)]
	if info == nil {
		t.Fatal("expected indexer to survive")
	}
	if info.LargestAllocation[dep(1)] != alloc(2) {
		t.Errorf("expected largest allocation on dep1 to be alloc(2)")
	}
	if info.TotalAllocated[dep(1)].Cmp(big.NewInt(20)) != 0 {
		t.Errorf("expected total 20 on dep1, got %s", info.TotalAllocated[dep(1)].String())
	}
	if len(info.Deployments) != 2 {
		t.Errorf("expected 2 distinct deployments, got %d", len(info.Deployments))
	}
}

func TestProcessRawSubgraphsDropsEmptyVersions(t *testing.T) {
	raw := []model.RawSubgraph{
		{ID: ids.SubgraphId{1}, Versions: nil},
	}
	_, err := ProcessRawSubgraphs(raw, false)
	if err == nil {
		t.Fatal("expected NoSurvivors error when all subgraphs drop")
	}
}

func TestProcessRawSubgraphsForcesTransferFlagFalseWithAllocations(t *testing.T) {
	raw := []model.RawSubgraph{
		{
			ID: ids.SubgraphId{1},
			Versions: []model.RawVersion{{
				VersionNumber: 1,
				Deployment: model.RawDeployment{
					ID:              dep(1),
					TransferredToL2: true,
					Allocations: []model.RawAllocation{
						{ID: alloc(1), Indexer: model.RawIndexer{ID: addr(1)}, AllocatedTokens: big.NewInt(1)},
					},
				},
			}},
		},
	}
	out, err := ProcessRawSubgraphs(raw, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := out[ids.SubgraphId{1}].Versions[0].Deployment
	if got.TransferredToL2 {
		t.Error("expected TransferredToL2 forced false when allocations present")
	}
}
