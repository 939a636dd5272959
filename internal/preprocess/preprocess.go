// Package preprocess implements the pure transforms that turn raw registry
// records into validated internal records, dropping anything malformed
// along the way.
package preprocess

import (
	"log"
	"math/big"
	"net/url"
	"sort"

	"github.com/semiotic-ai/network-topology/internal/ids"
	"github.com/semiotic-ai/network-topology/internal/model"
	"github.com/semiotic-ai/network-topology/internal/xerrors"
)

// indexerAllocation is one allocation as seen from the indexer side, with
// its deployment id carried alongside it (the raw hierarchy nests
// allocations under deployments, not the reverse, so this is the flattened
// view ProcessRawIndexers needs).
type indexerAllocation struct {
	Deployment ids.DeploymentId
	Allocation model.RawAllocation
}

// AllocationsByIndexer flattens the (subgraph -> version -> deployment ->
// allocation) hierarchy returned by the registry into a per-indexer view,
// the shape ProcessRawIndexers consumes.
func AllocationsByIndexer(subgraphs []model.RawSubgraph) map[ids.IndexerAddr][]indexerAllocation {
	out := make(map[ids.IndexerAddr][]indexerAllocation)
	for _, sg := range subgraphs {
		for _, v := range sg.Versions {
			for _, a := range v.Deployment.Allocations {
				out[a.Indexer.ID] = append(out[a.Indexer.ID], indexerAllocation{
					Deployment: v.Deployment.ID,
					Allocation: a,
				})
			}
		}
	}
	return out
}

// ProcessRawIndexers validates and converts raw indexers into internal
// records, keyed by address. Validation order: URL present, parses,
// http/https scheme, non-empty host, at least one allocation, at least one
// distinct deployment. Any failure drops the indexer (logged at debug
// level).
func ProcessRawIndexers(raw []model.RawIndexer, allocationsByIndexer map[ids.IndexerAddr][]indexerAllocation, debug bool) map[ids.IndexerAddr]*model.IndexerInfo {
	out := make(map[ids.IndexerAddr]*model.IndexerInfo, len(raw))

	for _, r := range raw {
		info, err := processOneIndexer(r, allocationsByIndexer[r.ID])
		if err != nil {
			if debug {
				log.Printf("preprocess: dropping indexer %s: %v", r.ID, err)
			}
			continue
		}
		out[r.ID] = info
	}
	return out
}

func processOneIndexer(r model.RawIndexer, allocations []indexerAllocation) (*model.IndexerInfo, error) {
	if r.URL == "" {
		return nil, xerrors.New(xerrors.KindValidation, "preprocess", "missing url")
	}
	u, err := url.Parse(r.URL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindValidation, "preprocess", "url does not parse", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, xerrors.New(xerrors.KindValidation, "preprocess", "url scheme must be http or https")
	}
	if u.Host == "" {
		return nil, xerrors.New(xerrors.KindValidation, "preprocess", "url has empty host")
	}
	if len(allocations) == 0 {
		return nil, xerrors.New(xerrors.KindValidation, "preprocess", "no allocations")
	}

	deployments := make(map[ids.DeploymentId]struct{})
	byDeployment := make(map[ids.DeploymentId][]model.RawAllocation)
	order := make([]ids.DeploymentId, 0)
	for _, a := range allocations {
		if _, ok := deployments[a.Deployment]; !ok {
			deployments[a.Deployment] = struct{}{}
			order = append(order, a.Deployment)
		}
		byDeployment[a.Deployment] = append(byDeployment[a.Deployment], a.Allocation)
	}
	if len(deployments) == 0 {
		return nil, xerrors.New(xerrors.KindValidation, "preprocess", "no distinct deployments derived from allocations")
	}

	largest := make(map[ids.DeploymentId]ids.AllocationId, len(order))
	totals := make(map[ids.DeploymentId]*big.Int, len(order))
	for _, dep := range order {
		allocID, total := largestAllocation(byDeployment[dep])
		largest[dep] = allocID
		totals[dep] = total
	}

	stakedTokens := r.StakedTokens
	if stakedTokens == nil {
		stakedTokens = big.NewInt(0)
	}

	return &model.IndexerInfo{
		ID:                 r.ID,
		URL:                u,
		StakedTokens:       stakedTokens,
		Deployments:        deployments,
		LargestAllocation:  largest,
		TotalAllocated:     totals,
		IndexingsProgress:  make(map[ids.DeploymentId]model.ProgressInfo),
		IndexingsCostModel: make(map[ids.DeploymentId]model.CompiledCostModel),
	}, nil
}

// largestAllocation sorts by allocated tokens descending, ties broken by
// AllocationId ascending, and takes the first. It deliberately does not
// rely on the registry handing back allocations pre-sorted by creation
// time; that ordering is not part of the registry contract.
func largestAllocation(allocs []model.RawAllocation) (ids.AllocationId, *big.Int) {
	sorted := make([]model.RawAllocation, len(allocs))
	copy(sorted, allocs)
	sort.Slice(sorted, func(i, j int) bool {
		cmp := sorted[i].AllocatedTokens.Cmp(sorted[j].AllocatedTokens)
		if cmp != 0 {
			return cmp > 0
		}
		return sorted[i].ID.Less(sorted[j].ID)
	})

	total := big.NewInt(0)
	for _, a := range allocs {
		total.Add(total, a.AllocatedTokens)
	}
	return sorted[0].ID, total
}

// ProcessRawSubgraphs validates and converts raw subgraphs into internal
// records keyed by id. A subgraph survives only if it has at least one
// version yielding a valid DeploymentInfo; if the resulting map is empty
// the whole refresh fails (NoSurvivors).
func ProcessRawSubgraphs(raw []model.RawSubgraph, debug bool) (map[ids.SubgraphId]*model.SubgraphInfo, error) {
	out := make(map[ids.SubgraphId]*model.SubgraphInfo, len(raw))

	for _, r := range raw {
		info, err := processOneSubgraph(r)
		if err != nil {
			if debug {
				log.Printf("preprocess: dropping subgraph %s: %v", r.ID, err)
			}
			continue
		}
		out[r.ID] = info
	}
	if len(out) == 0 {
		return nil, xerrors.New(xerrors.KindNoSurvivors, "preprocess", "no subgraphs survived validation")
	}
	return out, nil
}

func processOneSubgraph(r model.RawSubgraph) (*model.SubgraphInfo, error) {
	versions := make([]model.SubgraphVersionInfo, 0, len(r.Versions))
	for _, v := range r.Versions {
		versions = append(versions, model.SubgraphVersionInfo{
			VersionNumber: v.VersionNumber,
			Deployment:    convertDeployment(v.Deployment),
		})
	}
	if len(versions) == 0 {
		return nil, xerrors.New(xerrors.KindValidation, "preprocess", "no versions yielded a valid deployment")
	}
	return &model.SubgraphInfo{ID: r.ID, IDOnL2: r.IDOnL2, Versions: versions}, nil
}

func convertDeployment(d model.RawDeployment) model.DeploymentInfo {
	allocations := make([]model.DeploymentAllocation, 0, len(d.Allocations))
	for _, a := range d.Allocations {
		allocations = append(allocations, model.DeploymentAllocation{
			AllocationID: a.ID,
			IndexerAddr:  a.Indexer.ID,
		})
	}
	// A deployment with allocations present has the transfer flag forced
	// to false: an L2-transferred deployment has zero allocations by
	// definition.
	transferred := d.TransferredToL2 && len(allocations) == 0
	return model.DeploymentInfo{
		ID:                 d.ID,
		Allocations:        allocations,
		ManifestNetwork:    d.ManifestNetwork,
		ManifestStartBlock: d.ManifestStartBlock,
		TransferredToL2:    transferred,
	}
}
